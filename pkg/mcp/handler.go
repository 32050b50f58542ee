package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ericksa/contractassist/internal/workers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Tool is a registered tool under its full, worker prefixed name.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Handler exposes worker tools over MCP streamable HTTP. Tool names are the
// worker key and the tool name joined by "_" (contract_list).
type Handler struct {
	workers map[string]workers.Worker
	tools   []Tool
	server  *mcp.Server
	http    http.Handler
	logger  *zap.Logger
}

func NewHandler(ws map[string]workers.Worker, version string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		workers: ws,
		logger:  logger,
	}
	h.initMCPServer(version)
	h.http = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return h.server
	}, nil)
	return h
}

func (h *Handler) initMCPServer(version string) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "Contract Assist",
		Version: version,
	}, nil)

	names := make([]string, 0, len(h.workers))
	for name := range h.workers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		worker := h.workers[name]
		for _, tool := range worker.GetTools() {
			toolName := fmt.Sprintf("%s_%s", name, tool.Name)
			mcp.AddTool(server, &mcp.Tool{
				Name:        toolName,
				Description: tool.Description,
			}, h.wrapTool(worker, toolName))
			h.tools = append(h.tools, Tool{Name: toolName, Description: tool.Description})
		}
	}

	h.server = server
}

func (h *Handler) wrapTool(w workers.Worker, toolName string) mcp.ToolHandlerFor[workers.ToolInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input workers.ToolInput) (*mcp.CallToolResult, any, error) {
		inputBytes, _ := json.Marshal(input)
		result, err := w.Execute(ctx, toolName, inputBytes)
		if err != nil {
			h.logger.Warn("tool call failed", zap.String("tool", toolName), zap.Error(err))
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: err.Error()},
				},
			}, nil, nil
		}
		h.logger.Debug("tool call", zap.String("tool", toolName), zap.Int("bytes", len(result)))
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(result)},
			},
		}, nil, nil
	}
}

// Server returns the underlying MCP server, for in-process transports.
func (h *Handler) Server() *mcp.Server {
	return h.server
}

// Tools lists every registered tool in registration order.
func (h *Handler) Tools() []Tool {
	return h.tools
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.server == nil {
		http.Error(w, "MCP server not initialized", http.StatusInternalServerError)
		return
	}
	h.http.ServeHTTP(w, r)
}

// ExecuteTool runs a tool by its full name without going through MCP.
func (h *Handler) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) ([]byte, error) {
	for name, worker := range h.workers {
		if shortName, ok := strings.CutPrefix(toolName, name+"_"); ok && shortName != "" {
			return worker.Execute(ctx, shortName, args)
		}
	}
	return nil, fmt.Errorf("%w: %s", workers.ErrUnknownTool, toolName)
}
