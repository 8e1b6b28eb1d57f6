// Package ai is the model-client boundary: one CompletionClient interface
// the conversation loop calls, one production implementation on the
// Anthropic SDK, and the protections every call rides through: retry with
// backoff, a circuit breaker, and a process-wide concurrency cap.
package ai

import (
	"context"
	"os"
	"time"

	"github.com/tapedesk/tape/internal/tools"
	"github.com/tapedesk/tape/internal/types"
)

// Tiered model selection: the supervisor reasons across workers and gates,
// the workers run focused analysis loops where the cheaper model holds up.
//
// Environment overrides:
//   - TAPE_MODEL: supervisor model
//   - TAPE_WORKER_MODEL: delegated-worker model
const (
	// ModelSonnet is the high-end model for supervisor reasoning
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for worker loops
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// DefaultModel returns the supervisor model, honoring TAPE_MODEL
func DefaultModel() string {
	if model := os.Getenv("TAPE_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// WorkerModel returns the delegated-worker model, honoring TAPE_WORKER_MODEL
func WorkerModel() string {
	if model := os.Getenv("TAPE_WORKER_MODEL"); model != "" {
		return model
	}
	return ModelHaiku
}

// Stop reasons surfaced on a Completion. Values match the provider's wire
// strings so transcripts and logs read the same in both places.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// Request is one completion call: the full transcript so far plus the tool
// surface the model may draw from.
type Request struct {
	// Model overrides the client's default when set
	Model string

	// System is the assembled system prompt (base + stage decorations)
	System string

	// MaxTokens caps the completion; 0 uses the client default
	MaxTokens int

	// Messages is the transcript in order. Every proposed tool call must
	// already have its result present; the loop enforces this before
	// calling.
	Messages []types.Message

	// Tools is the callable surface advertised to the model
	Tools []tools.Tool
}

// Completion is one assistant turn: text, proposed tool calls in proposal
// order, and the token usage to fold into the session.
type Completion struct {
	Text       string
	ToolCalls  []types.ToolCall
	StopReason string
	Usage      types.Usage
}

// HasToolCalls reports whether the turn proposes any tool calls
func (c *Completion) HasToolCalls() bool {
	return len(c.ToolCalls) > 0
}

// Message renders the completion as a transcript assistant message
func (c *Completion) Message() types.Message {
	return types.Message{
		Role:      types.RoleAssistant,
		Content:   c.Text,
		ToolCalls: c.ToolCalls,
		CreatedAt: time.Now().UTC(),
	}
}

// CompletionClient is the "complete one turn" primitive. Implementations
// must be safe for concurrent use: supervisor and worker loops share one
// client.
type CompletionClient interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}
