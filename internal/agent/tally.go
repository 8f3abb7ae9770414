package agent

import "encoding/json"

// toolCallShape mirrors the known vendor encodings of a tool call. The same
// logical call arrives as {"tool": ...}, {"name": ..., "arguments": ...},
// {"function": {"name": ...}}, or {"type": "tool_use", "name": ...}
// depending on the provider.
type toolCallShape struct {
	Tool     string          `json:"tool"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Function json.RawMessage `json:"function"`
}

// ExtractToolName recovers the tool name from a raw vendor tool-call
// payload, trying each known shape in turn. Returns "unknown" when no shape
// matches.
func ExtractToolName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown"
	}
	var shape toolCallShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return "unknown"
	}
	switch {
	case shape.Tool != "":
		return shape.Tool
	case shape.Name != "":
		return shape.Name
	}
	if len(shape.Function) > 0 {
		var fn struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(shape.Function, &fn); err == nil && fn.Name != "" {
			return fn.Name
		}
	}
	return "unknown"
}

// callName resolves the tool name for tallying: the adapter's mapping first,
// then the multi-shape raw extraction.
func callName(tc ToolCall) string {
	if tc.Name != "" {
		return tc.Name
	}
	return ExtractToolName(tc.Raw)
}
