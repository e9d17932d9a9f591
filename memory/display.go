package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// displayKeys are checked in order when a structured payload is turned into text.
var displayKeys = []string{"text", "content", "title", "summary", "description", "name"}

// DisplayText normalizes a content payload into the text that is stored,
// searched and embedded. Strings pass through; maps prefer a well-known text
// field; anything else is rendered as JSON.
func DisplayText(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []byte:
		return string(c)
	case fmt.Stringer:
		return c.String()
	case map[string]interface{}:
		for _, k := range displayKeys {
			if s, ok := c[k].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	case []interface{}:
		parts := make([]string, 0, len(c))
		for _, item := range c {
			if s := strings.TrimSpace(DisplayText(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
