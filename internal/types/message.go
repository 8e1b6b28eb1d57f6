package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a transcript message
type Role string

const (
	RoleUser      Role = "user"      // Human input
	RoleAssistant Role = "assistant" // Model output (may propose tool calls)
	RoleTool      Role = "tool"      // Tool results for a prior assistant turn
	RoleSystem    Role = "system"    // Injected instructions (context preamble, repair notices)
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

// Attachment is an inline binary payload (chart renders, screenshots)
// carried alongside message or tool-result text. Data is base64-encoded
// in JSON by encoding/json's []byte handling.
type Attachment struct {
	MediaType string `json:"media_type"` // e.g. "image/png"
	Data      []byte `json:"data"`
}

// ToolCall is a single action proposed by an assistant message.
// The ID is assigned by the model provider and is the only join key
// between a call and its result.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ArgsMap decodes the argument payload into a generic map. Tools that
// declare typed parameter structs should unmarshal Args directly instead.
func (c *ToolCall) ArgsMap() (map[string]interface{}, error) {
	if len(c.Args) == 0 {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(c.Args, &m); err != nil {
		return nil, fmt.Errorf("decoding args for tool %s: %w", c.Name, err)
	}
	return m, nil
}

// Validate checks if the tool call has valid field values
func (c *ToolCall) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("tool call id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("tool call %s: name is required", c.ID)
	}
	return nil
}

// ErrorKind classifies a structured tool failure surfaced to the model.
// Transient failures never appear here (they are retried away or promoted
// to fatal); depth and structural violations never appear here either
// (they terminate the loop instead of becoming results).
type ErrorKind string

const (
	KindFatal       ErrorKind = "fatal"       // Unexpected or exhausted-retry failure
	KindValidation  ErrorKind = "validation"  // Malformed arguments; never retried
	KindRejected    ErrorKind = "rejected"    // Human declined the gated call
	KindInterrupted ErrorKind = "interrupted" // Call abandoned by a suspension or crash; not executed
)

// IsValid checks if the error kind value is valid
func (k ErrorKind) IsValid() bool {
	switch k {
	case KindFatal, KindValidation, KindRejected, KindInterrupted:
		return true
	}
	return false
}

// Failure is the structured failure descriptor carried by a failed ToolResult
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error renders the failure as the text surfaced to the model
func (f *Failure) Error() string {
	return fmt.Sprintf("[%s] %s", f.Kind, f.Message)
}

// ToolResult is the outcome of exactly one ToolCall, joined by CallID.
// It holds either a success payload (Content, optionally Images) or a
// structured Failure, never both.
type ToolResult struct {
	CallID  string       `json:"call_id"`
	Name    string       `json:"name,omitempty"`
	Content string       `json:"content,omitempty"`
	Images  []Attachment `json:"images,omitempty"`
	Failure *Failure     `json:"failure,omitempty"`
	TaskID  string       `json:"task_id,omitempty"` // set when the result came from a delegated task
}

// IsError reports whether the result carries a failure descriptor
func (r *ToolResult) IsError() bool {
	return r.Failure != nil
}

// Text returns the payload surfaced to the model: the failure rendering
// for errors, the content otherwise.
func (r *ToolResult) Text() string {
	if r.Failure != nil {
		return r.Failure.Error()
	}
	return r.Content
}

// Validate checks if the tool result has valid field values
func (r *ToolResult) Validate() error {
	if r.CallID == "" {
		return fmt.Errorf("tool result call_id is required")
	}
	if r.Failure != nil && !r.Failure.Kind.IsValid() {
		return fmt.Errorf("tool result %s: invalid failure kind %q", r.CallID, r.Failure.Kind)
	}
	return nil
}

// Message is one entry in a transcript. Assistant messages may carry
// proposed ToolCalls; tool messages carry the matching ToolResults.
type Message struct {
	Role      Role         `json:"role"`
	Content   string       `json:"content,omitempty"`
	Images    []Attachment `json:"images,omitempty"`
	ToolCalls []ToolCall   `json:"tool_calls,omitempty"`
	Results   []ToolResult `json:"results,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewUserMessage builds a user message, attaching any pending images
func NewUserMessage(content string, images ...Attachment) Message {
	return Message{Role: RoleUser, Content: content, Images: images, CreatedAt: time.Now().UTC()}
}

// NewSystemMessage builds an injected-instruction message
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, CreatedAt: time.Now().UTC()}
}

// NewToolMessage builds a tool message carrying one turn's merged results
func NewToolMessage(results []ToolResult) Message {
	return Message{Role: RoleTool, Results: results, CreatedAt: time.Now().UTC()}
}

// Validate checks if the message has valid field values
func (m *Message) Validate() error {
	if !m.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", m.Role)
	}
	if m.Role != RoleAssistant && len(m.ToolCalls) > 0 {
		return fmt.Errorf("%s message cannot propose tool calls", m.Role)
	}
	if m.Role != RoleTool && len(m.Results) > 0 {
		return fmt.Errorf("%s message cannot carry tool results", m.Role)
	}
	for i := range m.ToolCalls {
		if err := m.ToolCalls[i].Validate(); err != nil {
			return err
		}
	}
	for i := range m.Results {
		if err := m.Results[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
