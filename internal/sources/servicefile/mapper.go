package servicefile

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
)

// Mapper converts validated documents to domain.ServiceDefinition
type Mapper struct {
	schema *Schema
}

// NewMapper creates a new mapper instance
func NewMapper(schema *Schema) *Mapper {
	return &Mapper{schema: schema}
}

// Map assumes doc already passed Validate. Name and condition are kept as
// written.
func (m *Mapper) Map(doc map[string]any) domain.ServiceDefinition {
	def := domain.ServiceDefinition{
		Name:            str(doc["name"]),
		Condition:       str(doc["condition"]),
		IntervalSeconds: m.intervalSeconds(doc),
		Input:           m.schema.Input.Default,
	}

	if in, ok := doc[m.schema.Input.Field].(string); ok && in != "" {
		def.Input = in
	}

	list, _ := doc["actions"].([]any)
	def.Actions = make([]domain.ActionSpec, 0, len(list))
	for _, item := range list {
		obj, _ := item.(map[string]any)
		def.Actions = append(def.Actions, domain.ActionSpec{
			Kind:    domain.ActionKind(str(obj[m.schema.Action.TypeField])),
			Message: str(obj["message"]),
			Cmd:     str(obj["cmd"]),
			Command: str(obj["command"]),
			Path:    str(obj["path"]),
		})
	}

	return def
}

// intervalSeconds resolves the canonical field first, then aliases. Values
// are clamped to [0, Maximum].
func (m *Mapper) intervalSeconds(doc map[string]any) int {
	spec := m.schema.Interval
	fields := append([]string{spec.Field}, spec.Aliases...)
	for _, f := range fields {
		raw, ok := doc[f]
		if !ok {
			continue
		}
		n, err := integer(raw)
		if err != nil {
			break
		}
		return int(min(max(n, 0), spec.Maximum))
	}
	return spec.Default
}

// integer accepts JSON numbers with no fractional part.
func integer(raw any) (int64, error) {
	num, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("must be an integer, got %s", jsonType(raw))
	}
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > float64(domain.MaxSeconds) {
		return 0, fmt.Errorf("must be an integer, got %s", num.String())
	}
	return int64(f), nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// ─────────────────────────────
// Normalized views
// ─────────────────────────────

// Document is the canonical rendering of a loaded service, used by the
// validate command and the HTTP API.
type Document struct {
	Name            string           `json:"name" yaml:"name"`
	Condition       string           `json:"condition" yaml:"condition"`
	IntervalSeconds int              `json:"interval_seconds" yaml:"interval_seconds"`
	Input           string           `json:"input" yaml:"input"`
	Actions         []ActionDocument `json:"actions" yaml:"actions"`
	SourcePath      string           `json:"source_path" yaml:"source_path"`
	LastModifiedAt  time.Time        `json:"last_modified_at" yaml:"last_modified_at"`
	LastRunAt       *time.Time       `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
}

type ActionDocument struct {
	Type    string `json:"type" yaml:"type"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Cmd     string `json:"cmd,omitempty" yaml:"cmd,omitempty"`
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// FromDefinition renders def as a Document.
func FromDefinition(def domain.ServiceDefinition) Document {
	doc := Document{
		Name:            def.Name,
		Condition:       def.Condition,
		IntervalSeconds: def.IntervalSeconds,
		Input:           def.Input,
		SourcePath:      def.SourcePath,
		LastModifiedAt:  def.LastModifiedAt,
		Actions:         make([]ActionDocument, len(def.Actions)),
	}
	if def.HasRun() {
		t := def.LastRunAt
		doc.LastRunAt = &t
	}
	for i, a := range def.Actions {
		doc.Actions[i] = ActionDocument{
			Type:    string(a.Kind),
			Message: a.Message,
			Cmd:     a.Cmd,
			Command: a.Command,
			Path:    a.Path,
		}
	}
	return doc
}
