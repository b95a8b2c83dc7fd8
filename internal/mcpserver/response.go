// Package mcpserver is the external MCP adapter:
// a thin layer mapping every core operation to one MCP tool with a
// JSON-schema-validated input and the {ok, kind, message} envelope of
// every response as output.
package mcpserver

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codegraph-rag/engine/internal/errs"
)

// ok wraps data in the success envelope and marshals it to a single
// TextContent block.
func ok(data any) (*mcp.CallToolResult, error) {
	body := map[string]any{"ok": true, "data": data}
	content, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(content)}}}, nil
}

// toolError converts err into the {ok:false, kind, message}
// envelope, reported inside the result with IsError set rather than as an
// MCP protocol-level error, so the calling model can see and self-correct
// the surrounding protocol stream.
func toolError(err error) (*mcp.CallToolResult, error) {
	kind := "IOError"
	if eerr, isEngine := err.(*errs.EngineError); isEngine {
		kind = string(eerr.Kind)
	}
	body := map[string]any{"ok": false, "kind": kind, "message": err.Error()}
	content, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
		IsError: true,
	}, nil
}

// badArgs reports a parameter-unmarshal or validation failure as
// InvalidArgument, the error kind reserved for schema violations.
func badArgs(field, reason string) (*mcp.CallToolResult, error) {
	return toolError(errs.InvalidArgument(field, reason))
}
