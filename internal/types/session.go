package types

import (
	"fmt"
	"time"
)

// SessionState represents the lifecycle of a conversation session
type SessionState string

const (
	SessionStateRunning          SessionState = "running"           // Loop is advancing (or resumable after crash)
	SessionStateAwaitingApproval SessionState = "awaiting_approval" // Suspended on one or more pending interrupts
	SessionStateCompleted        SessionState = "completed"         // Terminal answer produced
	SessionStateFailed           SessionState = "failed"            // Unrecoverable error
)

// IsValid checks if the session state value is valid
func (s SessionState) IsValid() bool {
	switch s {
	case SessionStateRunning, SessionStateAwaitingApproval, SessionStateCompleted, SessionStateFailed:
		return true
	}
	return false
}

// ValidTransitions defines the valid transitions for the session state machine.
//
// State Machine Diagram:
//
//	running ⇄ awaiting_approval
//	   ↓             ↓
//	completed      failed (also reachable from running)
func (s SessionState) ValidTransitions() []SessionState {
	switch s {
	case SessionStateRunning:
		return []SessionState{SessionStateAwaitingApproval, SessionStateCompleted, SessionStateFailed}
	case SessionStateAwaitingApproval:
		return []SessionState{SessionStateRunning, SessionStateFailed}
	case SessionStateCompleted:
		return []SessionState{} // Terminal state
	case SessionStateFailed:
		return []SessionState{} // Terminal state
	default:
		return []SessionState{}
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s SessionState) CanTransitionTo(target SessionState) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// Usage accumulates model token consumption for a session
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add folds another usage sample into the accumulator
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Session is the persisted record for one conversation (supervisor or
// delegated worker). Worker sessions carry the parent id and target name.
type Session struct {
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	State     SessionState `json:"state"`
	Model     string       `json:"model,omitempty"`
	ParentID  string       `json:"parent_id,omitempty"` // delegating session, if any
	Worker    string       `json:"worker,omitempty"`    // worker target for delegated sessions
	Depth     int          `json:"depth"`
	Usage     Usage        `json:"usage"`
	FinalText string       `json:"final_text,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Validate checks if the session has valid field values
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if !s.State.IsValid() {
		return fmt.Errorf("session %s: invalid state %q", s.ID, s.State)
	}
	if s.Depth < 0 {
		return fmt.Errorf("session %s: depth cannot be negative", s.ID)
	}
	if s.Worker == "" && s.ParentID != "" {
		return fmt.Errorf("session %s: parent_id set without worker target", s.ID)
	}
	return nil
}

// SessionFilter selects sessions for listing
type SessionFilter struct {
	State     *SessionState // filter by state (nil matches all)
	RootsOnly bool          // exclude delegated worker sessions
	Limit     int           // cap result count (0 means no limit)
}

// PendingTurn is the mid-turn remainder stored when a turn suspends before
// all of its tool calls resolved. Calls preserves the original proposal
// order; Results stashes completed siblings so an approved resume never
// re-executes them; Children maps delegation call ids to suspended child
// session ids so a top-level decision resumes the nested loop.
type PendingTurn struct {
	Calls      []ToolCall        `json:"calls"`
	Results    []ToolResult      `json:"results,omitempty"`
	Interrupts map[string]string `json:"interrupts,omitempty"` // call id → pending InterruptRequest id
	Children   map[string]string `json:"children,omitempty"`   // call id → child session id
}

// ResolvedCallIDs returns the call ids that already have a stashed result
func (p *PendingTurn) ResolvedCallIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.Results))
	for i := range p.Results {
		ids[p.Results[i].CallID] = struct{}{}
	}
	return ids
}

// Tracked reports whether the call carries resume bookkeeping: a recorded
// interrupt awaiting (or holding) a decision, or a suspended child session.
// An untracked unresolved call on a resumed turn is abandoned: nothing will
// ever resolve it and its side effects are unknown.
func (p *PendingTurn) Tracked(callID string) bool {
	if _, ok := p.Interrupts[callID]; ok {
		return true
	}
	_, ok := p.Children[callID]
	return ok
}

// Checkpoint is the transactional snapshot written after every fully
// resolved step: the transcript, any mid-turn remainder, and the schema
// version it was written under.
type Checkpoint struct {
	SessionID     string       `json:"session_id"`
	SchemaVersion string       `json:"schema_version"`
	Transcript    Transcript   `json:"transcript"`
	Pending       *PendingTurn `json:"pending,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Validate checks if the checkpoint has valid field values
func (c *Checkpoint) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("checkpoint session_id is required")
	}
	if c.SchemaVersion == "" {
		return fmt.Errorf("checkpoint %s: schema_version is required", c.SessionID)
	}
	return nil
}
