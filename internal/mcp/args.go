package mcp

import (
	"encoding/json"
	"fmt"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
)

// args is the decoded argument object of a tool call.
type args map[string]any

func parseArgs(req *mcplib.CallToolRequest) args {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return args{}
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return args{}
	}
	return m
}

// str returns the string argument key, or "" when absent or not a string.
func (a args) str(key string) string {
	s, _ := a[key].(string)
	return s
}

// integer returns a numeric argument truncated to int. JSON numbers decode
// as float64.
func (a args) integer(key string, def int) int {
	f, ok := a[key].(float64)
	if !ok {
		return def
	}
	return int(f)
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{&mcplib.TextContent{Text: text}},
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encoding result: %v", err))
	}
	return textResult(string(data))
}

func errorResult(msg string) *mcplib.CallToolResult {
	var r mcplib.CallToolResult
	r.SetError(fmt.Errorf("%s", msg))
	return &r
}

// schema builds an object input schema from property descriptions.
func schema(props map[string]string, required ...string) map[string]any {
	p := make(map[string]any, len(props))
	for name, desc := range props {
		typ := "string"
		if name == "limit" || name == "progress" {
			typ = "integer"
		}
		p[name] = map[string]any{"type": typ, "description": desc}
	}
	s := map[string]any{"type": "object", "properties": p}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
