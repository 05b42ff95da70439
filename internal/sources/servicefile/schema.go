package servicefile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
)

//go:embed schema.json
var embeddedSchema []byte

const schemaURL = "service.schema.json"

// Field names the mapper reads. The schema document must declare all of them.
const (
	intervalField = "interval_seconds"
	inputField    = "input"
	typeField     = "type"
)

// Schema is a compiled JSON Schema for service files plus the few facts the
// mapper needs from it: defaults, the interval aliases and the action types.
type Schema struct {
	Title    string
	Interval IntervalSchema
	Input    InputSchema
	Action   ActionSchema

	compiled *jsonschema.Schema
}

type IntervalSchema struct {
	Field   string
	Aliases []string
	Default int
	Maximum int64
}

type InputSchema struct {
	Field   string
	Enum    []string
	Default string
}

type ActionSchema struct {
	TypeField string
	Types     []string
}

// schemaDoc is the subset of the JSON Schema document read back into Go.
type schemaDoc struct {
	Title      string                `json:"title"`
	Properties map[string]schemaProp `json:"properties"`
	Defs       map[string]schemaProp `json:"$defs"`
}

type schemaProp struct {
	Default    json.RawMessage       `json:"default"`
	AliasOf    string                `json:"x-alias-of"`
	Enum       []string              `json:"enum"`
	Maximum    *int64                `json:"maximum"`
	Properties map[string]schemaProp `json:"properties"`
}

// LoadSchema compiles the embedded schema document.
func LoadSchema() (*Schema, error) {
	return ParseSchema(embeddedSchema)
}

// ParseSchema compiles a JSON Schema document and checks that it agrees with
// the action handlers and duration limits compiled into the binary.
func ParseSchema(data []byte) (*Schema, error) {
	raw, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, raw); err != nil {
		return nil, fmt.Errorf("failed to add service schema: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile service schema: %w", err)
	}

	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse service schema: %w", err)
	}
	s, err := fromDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid service schema: %w", err)
	}
	s.compiled = compiled
	return s, nil
}

func fromDoc(doc schemaDoc) (*Schema, error) {
	s := &Schema{
		Title:    doc.Title,
		Interval: IntervalSchema{Field: intervalField},
		Input:    InputSchema{Field: inputField},
		Action:   ActionSchema{TypeField: typeField},
	}

	interval, ok := doc.Properties[intervalField]
	if !ok {
		return nil, fmt.Errorf("property %q missing", intervalField)
	}
	if err := json.Unmarshal(interval.Default, &s.Interval.Default); err != nil {
		return nil, fmt.Errorf("%s default: %w", intervalField, err)
	}
	seconds := doc.Defs["seconds"]
	if seconds.Maximum == nil || *seconds.Maximum != domain.MaxSeconds {
		return nil, fmt.Errorf("seconds maximum must be %d", domain.MaxSeconds)
	}
	s.Interval.Maximum = *seconds.Maximum
	if s.Interval.Default < 0 || int64(s.Interval.Default) > s.Interval.Maximum {
		return nil, fmt.Errorf("%s default %d out of range", intervalField, s.Interval.Default)
	}
	for name, prop := range doc.Properties {
		if prop.AliasOf == intervalField {
			s.Interval.Aliases = append(s.Interval.Aliases, name)
		}
	}
	sort.Strings(s.Interval.Aliases)

	input, ok := doc.Properties[inputField]
	if !ok {
		return nil, fmt.Errorf("property %q missing", inputField)
	}
	if err := json.Unmarshal(input.Default, &s.Input.Default); err != nil {
		return nil, fmt.Errorf("%s default: %w", inputField, err)
	}
	s.Input.Enum = input.Enum
	if !slices.Contains(s.Input.Enum, s.Input.Default) {
		return nil, fmt.Errorf("%s default %q not in enum", inputField, s.Input.Default)
	}

	action, ok := doc.Defs["action"]
	if !ok {
		return nil, errors.New("action definition missing")
	}
	types := action.Properties[typeField].Enum
	if len(types) == 0 {
		return nil, errors.New("action type enum is empty")
	}
	for _, name := range types {
		if !domain.ActionKind(name).Known() {
			return nil, fmt.Errorf("action type %q has no handler", name)
		}
	}
	for _, kind := range domain.ActionKinds() {
		if !slices.Contains(types, string(kind)) {
			return nil, fmt.Errorf("action type %q missing from schema", kind)
		}
	}
	s.Action.Types = slices.Sorted(slices.Values(types))
	return s, nil
}

// ActionTypes returns the accepted action type names, sorted.
func (s *Schema) ActionTypes() []string {
	return slices.Clone(s.Action.Types)
}
