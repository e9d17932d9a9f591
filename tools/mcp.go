package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes every registered tool over MCP. Calls run as
// callerID; an empty callerID runs them as a trusted local caller.
func (r *Registry) NewMCPServer(name, version, callerID string) (*server.MCPServer, error) {
	srv := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	for _, toolName := range r.Names() {
		s, _ := r.Schema(toolName)
		raw, err := json.Marshal(s.Schema)
		if err != nil {
			return nil, err
		}
		srv.AddTool(mcp.NewToolWithRawSchema(toolName, s.Description, raw), r.mcpHandler(toolName, callerID))
	}
	r.logger.Info().Int("tools", len(r.handlers)).Str("callerID", callerID).Msg("MCP server ready")
	return srv, nil
}

// mcpHandler adapts a registry tool to an MCP handler. Tool failures are
// reported as error results so the model can read them.
func (r *Registry) mcpHandler(toolName, callerID string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		result, err := r.Handle(ctx, toolName, callerID, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
