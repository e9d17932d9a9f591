// Package schemas holds the JSON schemas of the memory tools.
package schemas

// ToolSchema represents a tool's description and JSON schema.
type ToolSchema struct {
	Description string
	Schema      map[string]any
}

// All returns every tool schema.
func All() map[string]ToolSchema {
	return MemorySchemas()
}

func object(required []string, props map[string]any) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func num(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

func strList(desc string) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": map[string]any{"type": "string"}}
}
