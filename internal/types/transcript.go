package types

import (
	"fmt"
)

// Transcript is the ordered, append-only message history for one session.
// It is owned by a single conversation loop; nothing else mutates it.
type Transcript []Message

// UnresolvedCalls returns the ToolCalls that have no matching ToolResult
// anywhere in the transcript, in proposal order. A transcript with
// unresolved calls must not be handed to the completion client.
func (t Transcript) UnresolvedCalls() []ToolCall {
	resolved := t.resultIndex()
	var dangling []ToolCall
	for i := range t {
		for _, call := range t[i].ToolCalls {
			if _, ok := resolved[call.ID]; !ok {
				dangling = append(dangling, call)
			}
		}
	}
	return dangling
}

// HasResult reports whether any message carries a result for the call id
func (t Transcript) HasResult(callID string) bool {
	_, ok := t.resultIndex()[callID]
	return ok
}

// LastAssistant returns the most recent assistant message, or nil
func (t Transcript) LastAssistant() *Message {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleAssistant {
			return &t[i]
		}
	}
	return nil
}

// Validate enforces the structural invariant: every message is well formed,
// every proposed ToolCall has exactly one matching ToolResult, and no result
// references an unknown call. Violations wrap ErrTranscriptCorrupt.
func (t Transcript) Validate() error {
	calls := make(map[string]int)
	for i := range t {
		if err := t[i].Validate(); err != nil {
			return fmt.Errorf("message %d: %v: %w", i, err, ErrTranscriptCorrupt)
		}
		for _, call := range t[i].ToolCalls {
			if _, dup := calls[call.ID]; dup {
				return fmt.Errorf("duplicate tool call id %s: %w", call.ID, ErrTranscriptCorrupt)
			}
			calls[call.ID] = 0
		}
		for _, res := range t[i].Results {
			n, ok := calls[res.CallID]
			if !ok {
				return fmt.Errorf("result references unknown tool call %s: %w", res.CallID, ErrTranscriptCorrupt)
			}
			if n > 0 {
				return fmt.Errorf("tool call %s has multiple results: %w", res.CallID, ErrTranscriptCorrupt)
			}
			calls[res.CallID] = n + 1
		}
	}
	for id, n := range calls {
		if n == 0 {
			return fmt.Errorf("tool call %s has no result: %w", id, ErrTranscriptCorrupt)
		}
	}
	return nil
}

// Clone returns a deep-enough copy for checkpoint serialization: the
// message slice is copied so later appends don't alias the snapshot.
func (t Transcript) Clone() Transcript {
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

func (t Transcript) resultIndex() map[string]struct{} {
	idx := make(map[string]struct{})
	for i := range t {
		for _, res := range t[i].Results {
			idx[res.CallID] = struct{}{}
		}
	}
	return idx
}
