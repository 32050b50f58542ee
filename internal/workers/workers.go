package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned by Execute for names a worker does not expose.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidToolInput is returned when tool arguments are malformed or
	// miss a required field.
	ErrInvalidToolInput = errors.New("invalid tool input")
)

type ToolDef struct {
	Name        string
	Description string
}

// Worker is a capability exposed as a set of tools. Tool input and output
// are JSON documents.
type Worker interface {
	GetTools() []ToolDef
	Execute(ctx context.Context, name string, input json.RawMessage) ([]byte, error)
}

// ToolInput is the argument object shared by all tools. Tools that work on
// one stored upload require Filename; the others ignore it.
type ToolInput struct {
	Filename string `json:"filename,omitempty" jsonschema:"name of a previously uploaded contract file (.pdf or .docx)"`
}

func decodeFileRequest(input json.RawMessage) (ToolInput, error) {
	var req ToolInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &req); err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidToolInput, err)
		}
	}
	if req.Filename == "" {
		return req, fmt.Errorf("%w: filename is required", ErrInvalidToolInput)
	}
	return req, nil
}
