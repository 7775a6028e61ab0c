// Package toolhost adapts the Tool Dispatcher into real MCP builtin tools:
// each of the five entries in toolschema.All() is exposed as an
// [mcpsdk.Tool] and executed through [mcpsdk.CallToolResult], the same SDK
// shapes the teacher's mcphost.Host uses for its external server tools —
// here there is no external transport, so ExecuteTool calls straight into
// the Dispatcher instead of round-tripping through an MCP session.
//
// Unlike the teacher's mcphost.Host, there is no tiered tool catalogue here —
// spec.md's five tools are always fully visible to the model, so the
// teacher's BudgetTier/rolling-window latency calibration has no job to do
// and is dropped (see DESIGN.md).
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/searshs/voicebridge/internal/dispatcher"
	"github.com/searshs/voicebridge/internal/session"
	"github.com/searshs/voicebridge/internal/toolschema"
)

// Host is a per-call tool host: it closes over the call's
// session.ConversationState so every tool invocation mutates the right
// state, and exposes the fixed five-tool catalogue as real MCP tools to the
// Realtime Bridge.
type Host struct {
	mu       sync.Mutex
	state    *session.ConversationState
	dispatch *dispatcher.Dispatcher
}

// New builds a Host bound to one call's state and dispatcher. A fresh Host
// must be constructed per call — it is not a process-wide singleton, unlike
// the teacher's mcphost.Host.
func New(state *session.ConversationState, dispatch *dispatcher.Dispatcher) *Host {
	return &Host{state: state, dispatch: dispatch}
}

// AvailableTools returns the fixed tool catalogue as SDK [mcpsdk.Tool]
// values, unconditionally.
func (h *Host) AvailableTools() []*mcpsdk.Tool {
	defs := toolschema.All()
	tools := make([]*mcpsdk.Tool, len(defs))
	for i, def := range defs {
		tools[i] = toMCPTool(def)
	}
	return tools
}

// ExecuteTool calls the named tool with JSON-encoded args. name must match a
// toolschema.Definition.Name. A non-nil [*mcpsdk.CallToolResult] is returned
// on success even when its IsError field is true; a Go error is returned
// only when the tool name itself does not exist in the catalogue, matching
// mcphost.Host.ExecuteTool's "transport/protocol failure vs. application
// failure" contract.
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcpsdk.CallToolResult, error) {
	found := false
	for _, def := range toolschema.All() {
		if def.Name == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("toolhost: tool %q not found", name)
	}

	// The dispatcher mutates state in place; the Bridge calls ExecuteTool
	// only from the model session's receive goroutine, one call at a time,
	// so this mutex only serialises any additional caller against it.
	h.mu.Lock()
	defer h.mu.Unlock()

	content, err := h.dispatch.Execute(ctx, name, args, h.state)
	if err != nil {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			IsError: true,
		}, nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: content}},
	}, nil
}

// toMCPTool converts a toolschema.Definition into the SDK's Tool shape,
// round-tripping Parameters through JSON into a *jsonschema.Schema the same
// way the teacher's schemaToMap does in the opposite direction.
func toMCPTool(def toolschema.Definition) *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: schemaFromMap(def.Parameters),
	}
}

// schemaFromMap marshals a JSON-Schema-shaped map into a *jsonschema.Schema.
// Falls back to a bare object schema if the map doesn't round-trip, which
// should not happen for the fixed catalogue in toolschema.
func schemaFromMap(m map[string]any) *jsonschema.Schema {
	data, err := json.Marshal(m)
	if err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	return &schema
}
