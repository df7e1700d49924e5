package movewatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/movewatch/kit"
	"github.com/hazyhaar/movewatch/movewatch/internal/engine"
)

// RegisterMCP registers the movewatch tools on an MCP server.
func (w *Watcher) RegisterMCP(srv *mcp.Server) {
	w.registerStateTool(srv)
	w.registerHistoryTool(srv)
	w.registerEngineTool(srv)
}

func (w *Watcher) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(w.logger, tool.Name)(endpoint), decode)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// decodeArgs unmarshals tool arguments into v. Absent arguments leave v
// untouched.
func decodeArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params.Arguments, v)
}

// --- state ---

func (w *Watcher) registerStateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "movewatch_state",
		Description: "Current watcher state: bound move list, published sequence, last update, overlay and engine status.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return w.State(ctx)
	}
	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}
	w.addTool(srv, tool, endpoint, decode)
}

// --- history ---

type historyReq struct {
	Limit int `json:"limit"`
}

func (w *Watcher) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "movewatch_history",
		Description: "Most recent dispatched move sequences, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum number of updates (default 20)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyReq)
		updates, err := w.History(ctx, r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"updates": updates, "count": len(updates)}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r historyReq
		if err := decodeArgs(req, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	w.addTool(srv, tool, endpoint, decode)
}

// --- engine ---

type engineReq struct {
	Action string `json:"action"`
}

func (w *Watcher) registerEngineTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "movewatch_engine",
		Description: "Query or control the analysis engine: status, start or stop.",
		InputSchema: inputSchema(map[string]any{
			"action": map[string]any{"type": "string", "enum": []string{"status", "start", "stop"}},
		}, []string{"action"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*engineReq)
		var err error
		switch r.Action {
		case "status":
		case "start":
			err = w.engine.Start(ctx)
		case "stop":
			err = w.engine.Stop(ctx)
		default:
			return nil, fmt.Errorf("unknown action %q", r.Action)
		}
		if err != nil {
			return nil, err
		}
		status, err := w.engine.Status(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": status, "running": status == engine.Running}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r engineReq
		if err := decodeArgs(req, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	w.addTool(srv, tool, endpoint, decode)
}
