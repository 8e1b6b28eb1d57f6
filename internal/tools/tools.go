// Package tools defines the agent-facing tool surface: the Tool interface,
// a per-worker registry, and the market, signal, memory, and news tool
// implementations. Tools return either a success payload or an error; the
// error-containment stage decides what the model sees.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/types"
)

// Schema is the JSON-schema subset a tool declares for its arguments
type Schema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// ObjectSchema builds an object schema from properties and required keys
func ObjectSchema(properties map[string]interface{}, required ...string) *Schema {
	if required == nil {
		required = []string{}
	}
	return &Schema{Type: "object", Properties: properties, Required: required}
}

// Prop builds one string/number/etc. property entry
func Prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

// ArrayProp builds an array property entry with the given item type
func ArrayProp(itemType, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": itemType},
		"description": description,
	}
}

// ValidateArgs checks the raw arguments against the schema's required list.
// Full type checking is left to each tool's typed decode; this catches the
// model omitting a field it must supply.
func (s *Schema) ValidateArgs(tool string, args json.RawMessage) error {
	if s == nil || len(s.Required) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if len(args) > 0 {
		if err := json.Unmarshal(args, &m); err != nil {
			return types.NewValidationError(tool, "arguments are not a JSON object: %v", err)
		}
	}
	for _, key := range s.Required {
		if _, ok := m[key]; !ok {
			return types.NewValidationError(tool, "missing required argument %q", key)
		}
	}
	return nil
}

// Result is a successful tool payload: text surfaced to the model plus any
// image attachments (chart renders) the model should see.
type Result struct {
	Content string
	Images  []types.Attachment
}

// Text builds a text-only result
func Text(format string, args ...interface{}) *Result {
	return &Result{Content: fmt.Sprintf(format, args...)}
}

// Tool is one agent-invocable action
type Tool interface {
	Name() string
	Description() string
	InputSchema() *Schema
	Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error)
}

// Registry maps tool names to implementations. Each worker gets its own
// registry, so the supervisor's gated tools never leak into a delegated
// analyst's surface.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register inserts a tool when its name is not in use
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get fetches a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns the tools in registration order. The order is stable so the
// model sees the same tool listing on every turn of a session.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered tool names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Execute validates the call against the tool's schema and runs it
func (r *Registry) Execute(ctx context.Context, sc *session.Context, call types.ToolCall) (*Result, error) {
	tool, ok := r.Get(call.Name)
	if !ok {
		return nil, types.NewValidationError(call.Name, "unknown tool")
	}
	if err := tool.InputSchema().ValidateArgs(call.Name, call.Args); err != nil {
		return nil, err
	}
	return tool.Execute(ctx, sc, call.Args)
}

// DecodeArgs unmarshals raw tool arguments into a typed struct, mapping
// malformed payloads to a validation failure
func DecodeArgs(tool string, args json.RawMessage, dst interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return types.NewValidationError(tool, "malformed arguments: %v", err)
	}
	return nil
}

// EffectCounter counts side-effecting executions by tool name. The signal
// tools bump it on every persisted write, which lets tests prove a gated
// call that was rejected or left pending never executed.
type EffectCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// Inc records one execution; safe on a nil counter
func (c *EffectCounter) Inc(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

// Count reports recorded executions for a tool name
func (c *EffectCounter) Count(name string) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}
