package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ericksa/contractassist/internal/workers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoWorker struct{}

func (echoWorker) GetTools() []workers.ToolDef {
	return []workers.ToolDef{
		{Name: "echo", Description: "Echo the filename"},
		{Name: "fail", Description: "Always fails"},
	}
}

func (echoWorker) Execute(ctx context.Context, name string, input json.RawMessage) ([]byte, error) {
	switch name {
	case "echo_echo", "echo":
		var in workers.ToolInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"filename": in.Filename})
	case "echo_fail", "fail":
		return nil, errors.New("tool exploded")
	}
	return nil, workers.ErrUnknownTool
}

func newTestHandler() *Handler {
	return NewHandler(map[string]workers.Worker{"echo": echoWorker{}}, "test", nil)
}

func connect(t *testing.T, h *Handler) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := h.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestHandler_Tools(t *testing.T) {
	h := newTestHandler()
	assert.Equal(t, []Tool{
		{Name: "echo_echo", Description: "Echo the filename"},
		{Name: "echo_fail", Description: "Always fails"},
	}, h.Tools())
}

func TestHandler_ListTools(t *testing.T) {
	cs := connect(t, newTestHandler())

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := []string{}
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"echo_echo", "echo_fail"}, names)
}

func TestHandler_CallTool(t *testing.T) {
	cs := connect(t, newTestHandler())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo_echo",
		Arguments: map[string]any{"filename": "lease.pdf"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"filename":"lease.pdf"}`, text.Text)
}

func TestHandler_CallToolError(t *testing.T) {
	cs := connect(t, newTestHandler())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo_fail",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "tool exploded", res.Content[0].(*mcp.TextContent).Text)
}

func TestHandler_ExecuteTool(t *testing.T) {
	h := newTestHandler()

	out, err := h.ExecuteTool(context.Background(), "echo_echo", json.RawMessage(`{"filename":"a.docx"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"filename":"a.docx"}`, string(out))

	_, err = h.ExecuteTool(context.Background(), "nope_echo", nil)
	assert.ErrorIs(t, err, workers.ErrUnknownTool)

	_, err = h.ExecuteTool(context.Background(), "echo_", nil)
	assert.ErrorIs(t, err, workers.ErrUnknownTool)
}
