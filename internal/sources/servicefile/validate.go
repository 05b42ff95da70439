package servicefile

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Violation is one failed constraint on one field.
type Violation struct {
	Field      string
	Constraint string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Constraint)
}

// ValidationError reports every schema violation found in a document. A
// document with any violation is rejected as a whole.
type ValidationError struct {
	Path       string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s: invalid service: %s", e.Path, strings.Join(parts, "; "))
}

// Validate checks doc against the schema. Warnings describe accepted but
// deprecated input.
func (s *Schema) Validate(path string, doc map[string]any) ([]string, error) {
	warnings := s.aliasWarnings(doc)
	if err := s.compiled.Validate(doc); err != nil {
		return warnings, &ValidationError{Path: path, Violations: violations(err)}
	}
	return warnings, nil
}

// aliasWarnings reports deprecated interval spellings. When both spellings
// are present the canonical one wins.
func (s *Schema) aliasWarnings(doc map[string]any) []string {
	var warnings []string
	field := s.Interval.Field
	_, canonical := doc[field]
	for _, alias := range s.Interval.Aliases {
		if _, present := doc[alias]; !present {
			continue
		}
		if canonical {
			warnings = append(warnings, fmt.Sprintf("%q ignored: %q takes precedence", alias, field))
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%q is deprecated, use %q", alias, field))
	}
	return warnings
}

func violations(err error) []Violation {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []Violation{{Field: fieldName(nil), Constraint: err.Error()}}
	}

	var out []Violation
	collect(verr, &out)
	slices.SortStableFunc(out, func(a, b Violation) int {
		if c := strings.Compare(a.Field, b.Field); c != 0 {
			return c
		}
		return strings.Compare(a.Constraint, b.Constraint)
	})
	return slices.Compact(out)
}

// collect flattens the error tree into one violation per failed leaf.
func collect(e *jsonschema.ValidationError, out *[]Violation) {
	switch k := e.ErrorKind.(type) {
	case *kind.Required:
		for _, name := range k.Missing {
			*out = append(*out, Violation{Field: fieldName(slices.Concat(e.InstanceLocation, []string{name})), Constraint: "is required"})
		}
		return
	case *kind.AnyOf:
		// alternatives such as cmd or command read better as one line
		if missing := requiredIn(e); len(missing) > 0 {
			*out = append(*out, Violation{
				Field:      fieldName(slices.Concat(e.InstanceLocation, missing[:1])),
				Constraint: fmt.Sprintf("one of %s is required", strings.Join(missing, ", ")),
			})
			return
		}
	}

	if len(e.Causes) == 0 {
		*out = append(*out, Violation{Field: fieldName(e.InstanceLocation), Constraint: constraint(e.ErrorKind)})
		return
	}
	for _, cause := range e.Causes {
		collect(cause, out)
	}
}

func requiredIn(e *jsonschema.ValidationError) []string {
	var names []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if k, ok := e.ErrorKind.(*kind.Required); ok {
			for _, name := range k.Missing {
				if !slices.Contains(names, name) {
					names = append(names, name)
				}
			}
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(e)
	return names
}

func constraint(k jsonschema.ErrorKind) string {
	if _, ok := k.(*kind.Pattern); ok {
		// the only pattern in the schema is the non-blank text rule
		return "must not be empty"
	}
	return k.LocalizedString(printer)
}

// fieldName renders an instance location as actions[0].cmd.
func fieldName(loc []string) string {
	var b strings.Builder
	for _, seg := range loc {
		if _, err := strconv.Atoi(seg); err == nil && b.Len() > 0 {
			fmt.Fprintf(&b, "[%s]", seg)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	if b.Len() == 0 {
		return "(document)"
	}
	return b.String()
}
