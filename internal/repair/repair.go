// Package repair turns free-form language model replies into validated
// record lists. A reply goes through an ordered list of textual fixups
// (see Sanitize), is parsed as JSON, unwrapped to a list and each element is
// checked against the record schema of the requested Shape. Elements that do
// not match are dropped and counted, never patched with invented values.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecoverableFormat is returned when a reply cannot be parsed as JSON
// even after every fixup has been applied.
var ErrUnrecoverableFormat = errors.New("unrecoverable model reply format")

// FormatError carries the reply text for diagnostics. It matches
// ErrUnrecoverableFormat with errors.Is.
type FormatError struct {
	Raw      string
	Repaired string
	Err      error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v: %v", ErrUnrecoverableFormat, e.Err)
}

func (e *FormatError) Unwrap() []error {
	return []error{ErrUnrecoverableFormat, e.Err}
}

// Clause is one identified contract clause.
type Clause struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Suggestion is one negotiation suggestion tied to a passage of the contract.
type Suggestion struct {
	OriginalText string `json:"original_text"`
	Suggestion   string `json:"suggestion"`
}

// Result is the outcome of a repair run.
type Result struct {
	// Records holds the validated elements in reply order.
	Records []json.RawMessage
	// Dropped counts elements that failed validation.
	Dropped int
	// Applied names the fixups that changed the text, in pipeline order.
	Applied []string
	// Repaired is the text that was handed to the JSON parser.
	Repaired string
}

// Repair sanitizes raw, parses it and keeps the elements that match shape.
func Repair(raw string, shape Shape) (*Result, error) {
	sch, err := shape.schema()
	if err != nil {
		return nil, err
	}

	repaired, applied := Sanitize(raw)

	dec := json.NewDecoder(strings.NewReader(repaired))
	dec.UseNumber()
	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, &FormatError{Raw: raw, Repaired: repaired, Err: err}
	}

	elems, err := shape.unwrap(top)
	if err != nil {
		return nil, &FormatError{Raw: raw, Repaired: repaired, Err: err}
	}

	res := &Result{
		Records:  make([]json.RawMessage, 0, len(elems)),
		Applied:  applied,
		Repaired: repaired,
	}
	for _, el := range elems {
		if err := sch.Validate(el); err != nil {
			res.Dropped++
			continue
		}
		b, err := json.Marshal(el)
		if err != nil {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, b)
	}
	return res, nil
}

// Clauses repairs raw as a clause list.
func Clauses(raw string) ([]Clause, *Result, error) {
	return decodeAs[Clause](raw, ShapeClause)
}

// Suggestions repairs raw as a suggestion list.
func Suggestions(raw string) ([]Suggestion, *Result, error) {
	return decodeAs[Suggestion](raw, ShapeSuggestion)
}

func decodeAs[T any](raw string, shape Shape) ([]T, *Result, error) {
	res, err := Repair(raw, shape)
	if err != nil {
		return nil, nil, err
	}
	out, err := Decode[T](res.Records)
	if err != nil {
		return nil, res, err
	}
	return out, res, nil
}

// Decode converts validated records into typed values. The result is never nil.
func Decode[T any](records []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(records))
	for i, rec := range records {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
