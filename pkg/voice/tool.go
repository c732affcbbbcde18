package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Tool is a function the model can invoke during a conversation.
type Tool struct {
	// Name is the unique identifier for the tool (e.g., "set_size").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters maps argument names to their JSON schema, e.g.
	//   map[string]any{"size": voice.StringParam("small, medium, or large")}
	Parameters map[string]any `json:"parameters"`

	// Required lists the arguments the model must supply.
	Required []string `json:"required,omitempty"`

	// Handler is called when the model invokes this tool. The returned string
	// is sent back to the model to continue the conversation.
	Handler func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// StringParam returns the JSON schema of a free-text argument.
func StringParam(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

// Schema returns the full JSON schema object for the tool's arguments.
func (t Tool) Schema() map[string]any {
	props := t.Parameters
	if props == nil {
		props = map[string]any{}
	}
	required := t.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// StringArg returns a string argument, or "" when it is absent or not a string.
func StringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// ToolCall represents an invocation of a tool by the model.
type ToolCall struct {
	// ID is used to match results back to the correct call.
	ID string `json:"id"`

	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	// CallID matches the ToolCall.ID this result corresponds to.
	CallID string `json:"call_id"`

	// Result is the string sent back to the model.
	Result string `json:"result"`

	// Error is set if the tool execution failed.
	Error error `json:"-"`
}

// Toolset holds the tools of one session and runs them one at a time.
type Toolset struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string

	// run serializes handlers so tools never observe each other mid-update.
	run sync.Mutex
}

// NewToolset creates a toolset with the given tools.
func NewToolset(tools ...Tool) *Toolset {
	ts := &Toolset{tools: make(map[string]Tool)}
	for _, t := range tools {
		ts.Add(t)
	}
	return ts
}

// Add registers a tool, replacing any tool with the same name.
func (ts *Toolset) Add(t Tool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.tools[t.Name]; !ok {
		ts.order = append(ts.order, t.Name)
	}
	ts.tools[t.Name] = t
}

// Get returns the named tool.
func (ts *Toolset) Get(name string) (Tool, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (ts *Toolset) List() []Tool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]Tool, 0, len(ts.order))
	for _, name := range ts.order {
		out = append(out, ts.tools[name])
	}
	return out
}

// Len returns the number of tools.
func (ts *Toolset) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.order)
}

// Dispatch runs the called tool. Calls are serialized per toolset. Unknown
// tools, handler errors and panics are turned into a result string for the
// model and reported in ToolResult.Error.
func (ts *Toolset) Dispatch(ctx context.Context, call ToolCall) (res ToolResult) {
	res.CallID = call.ID

	tool, ok := ts.Get(call.Name)
	if !ok || tool.Handler == nil {
		res.Error = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		res.Result = "Function not found"
		return res
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	ts.run.Lock()
	defer ts.run.Unlock()

	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Errorf("%w: %s panicked: %v", ErrToolFailed, call.Name, r)
			res.Result = "Error: tool failed"
		}
	}()

	out, err := tool.Handler(ctx, args)
	if err != nil {
		res.Error = fmt.Errorf("%w: %s: %v", ErrToolFailed, call.Name, err)
		res.Result = "Error: " + strings.TrimSpace(err.Error())
		return res
	}
	res.Result = out
	return res
}
