package servicefile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	schema, err := LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	return NewLoader(schema)
}

func writeService(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test service file: %v", err)
	}
	return path
}

func TestLoadSchemaEmbedded(t *testing.T) {
	schema, err := LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	if got := len(schema.ActionTypes()); got != len(domain.ActionKinds()) {
		t.Errorf("ActionTypes() has %d entries, want %d", got, len(domain.ActionKinds()))
	}
}

func TestParseSchemaRejectsDrift(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
	}{
		{"action type without handler", `"mkdir", "run_command"]`, `"mkdir", "reboot"]`},
		{"handler missing from schema", `, "run_command"]`, `]`},
		{"seconds maximum past duration range", `"maximum": 9223372036`, `"maximum": 10000000000`},
		{"input default outside enum", `"default": "system"`, `"default": "radio"`},
		{"not a JSON Schema", `"minItems": 1`, `"minItems": "one"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := string(embeddedSchema)
			if !strings.Contains(doc, tt.old) {
				t.Fatalf("embedded schema has no %q", tt.old)
			}
			if _, err := ParseSchema([]byte(strings.Replace(doc, tt.old, tt.new, 1))); err == nil {
				t.Error("ParseSchema() error = nil, want rejection")
			}
		})
	}
}

func TestLoadSchemaFacts(t *testing.T) {
	schema, err := LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	if schema.Interval.Default != domain.DefaultIntervalSeconds {
		t.Errorf("Interval.Default = %d, want %d", schema.Interval.Default, domain.DefaultIntervalSeconds)
	}
	if schema.Interval.Maximum != domain.MaxSeconds {
		t.Errorf("Interval.Maximum = %d, want %d", schema.Interval.Maximum, domain.MaxSeconds)
	}
	if len(schema.Interval.Aliases) != 1 || schema.Interval.Aliases[0] != "interval" {
		t.Errorf("Interval.Aliases = %v, want [interval]", schema.Interval.Aliases)
	}
	if schema.Input.Default != domain.InputSystem {
		t.Errorf("Input.Default = %q, want system", schema.Input.Default)
	}
}

func TestLoaderLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeService(t, dir, "idle.json", `{
		// comments are allowed
		"name": "idle-notify",
		"condition": "no_activity(5)",
		"interval_seconds": 1,
		"input": "sensor",
		"actions": [
			{"type": "notify", "message": "hi"},
			{"type": "shell", "command": "echo ok"},
			{"type": "mkdir", "path": "/tmp/wr"},
		],
	}`)

	loaded, err := newTestLoader(t).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	def := loaded.Definition
	if def.Name != "idle-notify" || def.Condition != "no_activity(5)" {
		t.Errorf("identity = %q/%q", def.Name, def.Condition)
	}
	if def.IntervalSeconds != 1 {
		t.Errorf("IntervalSeconds = %d, want 1", def.IntervalSeconds)
	}
	if def.Input != domain.InputSensor {
		t.Errorf("Input = %q, want sensor", def.Input)
	}
	if def.SourcePath != path {
		t.Errorf("SourcePath = %q, want %q", def.SourcePath, path)
	}
	if def.LastModifiedAt.IsZero() {
		t.Error("LastModifiedAt should carry the file mtime")
	}
	if def.HasRun() {
		t.Error("a freshly loaded definition should never have run")
	}
	if len(def.Actions) != 3 {
		t.Fatalf("Actions = %d, want 3", len(def.Actions))
	}
	if def.Actions[0].Kind != domain.ActionNotify || def.Actions[0].Message != "hi" {
		t.Errorf("Actions[0] = %+v", def.Actions[0])
	}
	if got := def.Actions[1].ShellCommand(); got != "echo ok" {
		t.Errorf("Actions[1].ShellCommand() = %q, want command fallback", got)
	}
	if len(loaded.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", loaded.Warnings)
	}
}

func TestLoaderDefaults(t *testing.T) {
	loaded, err := newTestLoader(t).LoadBytes("mem.json",
		[]byte(`{"name":"a","condition":"always_true","actions":[{"type":"list_files","path":"/"}]}`), time.Time{})
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if loaded.Definition.IntervalSeconds != domain.DefaultIntervalSeconds {
		t.Errorf("IntervalSeconds = %d, want %d", loaded.Definition.IntervalSeconds, domain.DefaultIntervalSeconds)
	}
	if loaded.Definition.Input != domain.InputSystem {
		t.Errorf("Input = %q, want system", loaded.Definition.Input)
	}
}

func TestLoaderKeepsTextAsWritten(t *testing.T) {
	loaded, err := newTestLoader(t).LoadBytes("mem.json",
		[]byte(`{"name":" padded ","condition":"always_true\n","actions":[{"type":"notify","message":"m"}]}`), time.Time{})
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if loaded.Definition.Name != " padded " {
		t.Errorf("Name = %q, want it unchanged", loaded.Definition.Name)
	}
	if loaded.Definition.Condition != "always_true\n" {
		t.Errorf("Condition = %q, want it unchanged", loaded.Definition.Condition)
	}
}

func TestLoaderIntervalAlias(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		wantInterval int
		wantWarning  string
	}{
		{
			name:         "deprecated alias",
			doc:          `{"name":"a","condition":"always_true","interval":30,"actions":[{"type":"notify","message":"m"}]}`,
			wantInterval: 30,
			wantWarning:  "deprecated",
		},
		{
			name:         "canonical wins",
			doc:          `{"name":"a","condition":"always_true","interval":30,"interval_seconds":5,"actions":[{"type":"notify","message":"m"}]}`,
			wantInterval: 5,
			wantWarning:  "takes precedence",
		},
		{
			name:         "largest interval",
			doc:          `{"name":"a","condition":"always_true","interval_seconds":9223372036,"actions":[{"type":"notify","message":"m"}]}`,
			wantInterval: 9223372036,
		},
		{
			name:         "integral float",
			doc:          `{"name":"a","condition":"always_true","interval_seconds":10.0,"actions":[{"type":"notify","message":"m"}]}`,
			wantInterval: 10,
		},
	}

	loader := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := loader.LoadBytes("mem.json", []byte(tt.doc), time.Time{})
			if err != nil {
				t.Fatalf("LoadBytes() error = %v", err)
			}
			if loaded.Definition.IntervalSeconds != tt.wantInterval {
				t.Errorf("IntervalSeconds = %d, want %d", loaded.Definition.IntervalSeconds, tt.wantInterval)
			}
			if tt.wantWarning == "" {
				if len(loaded.Warnings) != 0 {
					t.Errorf("Warnings = %v, want none", loaded.Warnings)
				}
				return
			}
			if len(loaded.Warnings) != 1 || !strings.Contains(loaded.Warnings[0], tt.wantWarning) {
				t.Errorf("Warnings = %v, want one containing %q", loaded.Warnings, tt.wantWarning)
			}
		})
	}
}

func TestLoaderValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantField string
	}{
		{"missing actions", `{"name":"a","condition":"always_true"}`, "actions"},
		{"empty actions", `{"name":"a","condition":"always_true","actions":[]}`, "actions"},
		{"missing name", `{"condition":"always_true","actions":[{"type":"notify","message":"m"}]}`, "name"},
		{"blank condition", `{"name":"a","condition":"  ","actions":[{"type":"notify","message":"m"}]}`, "condition"},
		{"name not string", `{"name":7,"condition":"always_true","actions":[{"type":"notify","message":"m"}]}`, "name"},
		{"negative interval", `{"name":"a","condition":"always_true","interval_seconds":-1,"actions":[{"type":"notify","message":"m"}]}`, "interval_seconds"},
		{"negative alias", `{"name":"a","condition":"always_true","interval":-1,"actions":[{"type":"notify","message":"m"}]}`, "interval"},
		{"fractional interval", `{"name":"a","condition":"always_true","interval_seconds":1.5,"actions":[{"type":"notify","message":"m"}]}`, "interval_seconds"},
		{"string interval", `{"name":"a","condition":"always_true","interval_seconds":"5","actions":[{"type":"notify","message":"m"}]}`, "interval_seconds"},
		{"interval past max duration", `{"name":"a","condition":"always_true","interval_seconds":10000000000,"actions":[{"type":"notify","message":"m"}]}`, "interval_seconds"},
		{"alias past max duration", `{"name":"a","condition":"always_true","interval":10000000000,"actions":[{"type":"notify","message":"m"}]}`, "interval"},
		{"interval overflows int64", `{"name":"a","condition":"always_true","interval_seconds":99999999999999999999,"actions":[{"type":"notify","message":"m"}]}`, "interval_seconds"},
		{"unknown input", `{"name":"a","condition":"always_true","input":"radio","actions":[{"type":"notify","message":"m"}]}`, "input"},
		{"unknown action type", `{"name":"a","condition":"always_true","actions":[{"type":"notify","message":"m"},{"type":"reboot"}]}`, "actions[1].type"},
		{"action missing type", `{"name":"a","condition":"always_true","actions":[{"message":"m"}]}`, "actions[0].type"},
		{"shell missing cmd", `{"name":"a","condition":"always_true","actions":[{"type":"shell"}]}`, "actions[0].cmd"},
		{"mkdir missing path", `{"name":"a","condition":"always_true","actions":[{"type":"mkdir"}]}`, "actions[0].path"},
		{"empty param", `{"name":"a","condition":"always_true","actions":[{"type":"notify","message":""}]}`, "actions[0].message"},
		{"param not string", `{"name":"a","condition":"always_true","actions":[{"type":"list_files","path":["/"]}]}`, "actions[0].path"},
	}

	loader := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.LoadBytes("bad.json", []byte(tt.doc), time.Time{})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("LoadBytes() error = %v, want *ValidationError", err)
			}
			found := false
			for _, v := range verr.Violations {
				if v.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("violations %v do not name %q", verr.Violations, tt.wantField)
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	src := "{\n  \"name\": \"x\",\n  \"condition\" \"y\"\n}"
	_, err := Parse("broken.json", []byte(src))

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if perr.Line != 3 {
		t.Errorf("Line = %d, want 3", perr.Line)
	}
	if !strings.HasPrefix(perr.Error(), "broken.json:3:") {
		t.Errorf("Error() = %q, want a path:line:col prefix", perr.Error())
	}
}

func TestParseRejectsNonObjects(t *testing.T) {
	for _, src := range []string{`[]`, `"text"`, ``, `{"a":1} {"b":2}`} {
		var perr *ParseError
		if _, err := Parse("x.json", []byte(src)); !errors.As(err, &perr) {
			t.Errorf("Parse(%q) error = %v, want *ParseError", src, err)
		}
	}
}

func TestLoaderLoadFileNotFound(t *testing.T) {
	_, err := newTestLoader(t).LoadFile("/nonexistent/path/service.json")
	if err == nil {
		t.Fatal("LoadFile() with non-existent file should return error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestFromDefinition(t *testing.T) {
	def := domain.ServiceDefinition{
		Name:      "a",
		Condition: "always_true",
		Actions:   []domain.ActionSpec{{Kind: domain.ActionMkdir, Path: "/tmp/x"}},
	}
	doc := FromDefinition(def)
	if doc.LastRunAt != nil {
		t.Error("LastRunAt should be omitted for a service that never ran")
	}
	if len(doc.Actions) != 1 || doc.Actions[0].Type != "mkdir" {
		t.Errorf("Actions = %+v", doc.Actions)
	}
}
