// Package tools exposes engine operations as named JSON tools, served over
// MCP and reused by the gRPC memory service.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	ctxpkg "github.com/aschepis/backscratcher/memtier/context"
	"github.com/aschepis/backscratcher/memtier/memory"
	"github.com/aschepis/backscratcher/memtier/tools/schemas"
)

// maxLoggedResult truncates results in log lines.
const maxLoggedResult = 500

// ToolHandler handles a tool call on behalf of a caller.
type ToolHandler func(ctx context.Context, callerID string, args json.RawMessage) (any, error)

// Registry maps tool names to handlers and schemas.
type Registry struct {
	handlers map[string]ToolHandler
	schemas  map[string]schemas.ToolSchema
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	return &Registry{
		handlers: make(map[string]ToolHandler),
		schemas:  make(map[string]schemas.ToolSchema),
		logger:   logger,
	}
}

// Register registers a handler for a tool name. The schema comes from the
// schemas package; tools without one accept any object.
func (r *Registry) Register(name string, h ToolHandler) {
	r.logger.Debug().Str("name", name).Msg("Registering tool handler")
	r.handlers[name] = h
	if s, ok := schemas.All()[name]; ok {
		r.schemas[name] = s
	} else {
		r.schemas[name] = schemas.ToolSchema{
			Description: name,
			Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		}
	}
}

// Names lists registered tools in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the schema registered for name.
func (r *Registry) Schema(name string) (schemas.ToolSchema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Handle dispatches a tool call. callerID is attached to the context so the
// engine's authorizer sees who is asking.
func (r *Registry) Handle(ctx context.Context, toolName, callerID string, args []byte) (any, error) {
	h, ok := r.handlers[toolName]
	if !ok {
		r.logger.Error().Str("tool", toolName).Msg("Unknown tool requested")
		return nil, fmt.Errorf("unknown tool: %s", toolName)
	}
	if len(args) == 0 {
		args = []byte("{}")
	}
	if callerID != "" {
		ctx = ctxpkg.WithCaller(ctx, callerID)
	}
	r.logger.Debug().Str("tool", toolName).Str("callerID", callerID).RawJSON("args", compactJSON(args)).Msg("Executing tool")

	result, err := h(ctx, callerID, json.RawMessage(args))
	if err != nil {
		r.logger.Warn().Str("tool", toolName).Str("callerID", callerID).Err(err).Msg("Tool returned error")
		return nil, err
	}
	if out, e := json.Marshal(result); e == nil {
		s := string(out)
		if len(s) > maxLoggedResult {
			s = s[:maxLoggedResult] + "... (truncated)"
		}
		r.logger.Debug().Str("tool", toolName).Str("result", s).Msg("Tool returned result")
	}
	return result, nil
}

// compactJSON returns args when they are valid JSON, otherwise a quoted copy,
// so RawJSON never emits a broken log line.
func compactJSON(args []byte) []byte {
	if json.Valid(args) {
		return args
	}
	quoted, _ := json.Marshal(string(args))
	return quoted
}

func decode(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return memory.NewValidationError("failed to unmarshal arguments", err)
	}
	return nil
}
