package repair

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Shape names the record layout a reply is expected to hold.
type Shape string

const (
	ShapeClause     Shape = "clause"
	ShapeSuggestion Shape = "suggestion"
)

const clauseSchema = `{
	"type": "object",
	"required": ["title", "text"],
	"properties": {
		"title": {"type": "string", "minLength": 1, "pattern": "\\S"},
		"text": {"type": "string"}
	}
}`

const suggestionSchema = `{
	"type": "object",
	"required": ["original_text", "suggestion"],
	"properties": {
		"original_text": {"type": "string"},
		"suggestion": {"type": "string", "minLength": 1, "pattern": "\\S"}
	}
}`

var schemas = map[Shape]*jsonschema.Schema{
	ShapeClause:     jsonschema.MustCompileString("clause.json", clauseSchema),
	ShapeSuggestion: jsonschema.MustCompileString("suggestion.json", suggestionSchema),
}

// ParseShape accepts the singular or plural shape name.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "clause", "clauses":
		return ShapeClause, nil
	case "suggestion", "suggestions":
		return ShapeSuggestion, nil
	}
	return "", fmt.Errorf("unknown record shape %q", name)
}

// Keys returns the required keys of a record, in output order.
func (s Shape) Keys() []string {
	switch s {
	case ShapeClause:
		return []string{"title", "text"}
	case ShapeSuggestion:
		return []string{"original_text", "suggestion"}
	}
	return nil
}

func (s Shape) schema() (*jsonschema.Schema, error) {
	sch, ok := schemas[s]
	if !ok {
		return nil, fmt.Errorf("unknown record shape %q", string(s))
	}
	return sch, nil
}

// unwrap turns the parsed top-level value into the candidate element list.
// An object carrying a record key is a single record. An object without one
// that holds exactly one array is a wrapper around the list.
func (s Shape) unwrap(top any) ([]any, error) {
	switch v := top.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, k := range s.Keys() {
			if _, ok := v[k]; ok {
				return []any{v}, nil
			}
		}
		var inner []any
		arrays := 0
		for _, field := range v {
			if arr, ok := field.([]any); ok {
				inner = arr
				arrays++
			}
		}
		if arrays == 1 {
			return inner, nil
		}
		return []any{v}, nil
	default:
		return nil, fmt.Errorf("top-level %T is not a record list", top)
	}
}
