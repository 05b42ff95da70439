package servicefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
)

// ParseError reports malformed JSON with the position of the fault.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Loaded is a successfully validated service file.
type Loaded struct {
	Definition domain.ServiceDefinition
	Warnings   []string
}

// Loader reads service files and checks them against a Schema
type Loader struct {
	schema *Schema
	mapper *Mapper
}

// NewLoader creates a loader bound to schema
func NewLoader(schema *Schema) *Loader {
	return &Loader{
		schema: schema,
		mapper: NewMapper(schema),
	}
}

func (l *Loader) Schema() *Schema { return l.schema }

// LoadFile reads, parses, validates and maps one service file. The returned
// error is a *ParseError, a *ValidationError or a wrapped I/O error.
func (l *Loader) LoadFile(path string) (Loaded, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("failed to stat service file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("failed to read service file: %w", err)
	}
	return l.LoadBytes(path, data, info.ModTime())
}

// LoadBytes is LoadFile for content already in memory.
func (l *Loader) LoadBytes(path string, data []byte, modTime time.Time) (Loaded, error) {
	doc, err := Parse(path, data)
	if err != nil {
		return Loaded{}, err
	}

	warnings, err := l.schema.Validate(path, doc)
	if err != nil {
		return Loaded{}, err
	}

	def := l.mapper.Map(doc)
	def.SourcePath = path
	def.LastModifiedAt = modTime
	return Loaded{Definition: def, Warnings: warnings}, nil
}

// Parse decodes a service document. Comments and trailing commas are
// tolerated; the top level must be a single object.
func Parse(path string, data []byte) (map[string]any, error) {
	// jsonc.ToJSON keeps byte offsets stable, so positions still point
	// into the original file.
	clean := jsonc.ToJSON(data)

	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Path: path, Err: errors.New("empty document")}
		}
		return nil, positioned(path, data, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		line, col := lineColumn(data, dec.InputOffset())
		return nil, &ParseError{Path: path, Line: line, Column: col, Err: errors.New("unexpected data after top-level object")}
	}

	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, &ParseError{Path: path, Line: 1, Column: 1, Err: fmt.Errorf("top level must be an object, got %s", jsonType(raw))}
	}
	return doc, nil
}

func positioned(path string, data []byte, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := lineColumn(data, syntaxErr.Offset)
		return &ParseError{Path: path, Line: line, Column: col, Err: err}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		line, col := lineColumn(data, int64(len(data)))
		return &ParseError{Path: path, Line: line, Column: col, Err: err}
	}
	return &ParseError{Path: path, Err: err}
}

// lineColumn maps a byte offset to a 1-based line and column.
func lineColumn(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
