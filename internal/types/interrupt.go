package types

import (
	"fmt"
	"time"
)

// Decision is a human verdict on a gated tool call
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// IsValid checks if the decision value is valid
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApprove, DecisionReject:
		return true
	}
	return false
}

// InterruptState represents where a gated tool call sits in its approval lifecycle
type InterruptState string

const (
	InterruptStateRunning          InterruptState = "running"           // No gate matched; normal execution
	InterruptStateAwaitingApproval InterruptState = "awaiting_approval" // Gate fired; tool not executed; loop suspended
	InterruptStateApproved         InterruptState = "approved"          // Human approved; execution pending
	InterruptStateRejected         InterruptState = "rejected"          // Human declined; rejection result pending
	InterruptStateResumed          InterruptState = "resumed"           // Decision applied; loop continued
)

// IsValid checks if the interrupt state value is valid
func (s InterruptState) IsValid() bool {
	switch s {
	case InterruptStateRunning, InterruptStateAwaitingApproval,
		InterruptStateApproved, InterruptStateRejected, InterruptStateResumed:
		return true
	}
	return false
}

// ValidTransitions defines the valid transitions for the approval state machine.
//
// State Machine Diagram:
//
//	running → awaiting_approval → approved → resumed
//	                    ↓
//	                 rejected → resumed
//
// Valid transitions:
//   - running → awaiting_approval (tool name matched a policy entry)
//   - awaiting_approval → approved (human approved the call)
//   - awaiting_approval → rejected (human declined the call)
//   - approved → resumed (original call executed, loop continued)
//   - rejected → resumed (rejection result synthesized, loop continued)
func (s InterruptState) ValidTransitions() []InterruptState {
	switch s {
	case InterruptStateRunning:
		return []InterruptState{InterruptStateAwaitingApproval}
	case InterruptStateAwaitingApproval:
		return []InterruptState{InterruptStateApproved, InterruptStateRejected}
	case InterruptStateApproved:
		return []InterruptState{InterruptStateResumed}
	case InterruptStateRejected:
		return []InterruptState{InterruptStateResumed}
	case InterruptStateResumed:
		return []InterruptState{} // Terminal state
	default:
		return []InterruptState{}
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s InterruptState) CanTransitionTo(target InterruptState) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// IsPending reports whether the interrupt still blocks its turn
func (s InterruptState) IsPending() bool {
	return s == InterruptStateAwaitingApproval
}

// InterruptRequest is a gated tool call waiting for (or carrying) a human
// decision. Created when a policy-marked call is about to execute; it leaves
// the pending set once a decision is recorded, and the row is kept for audit.
type InterruptRequest struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Call        ToolCall       `json:"call"`
	Description string         `json:"description"` // rendered by the policy's describe function
	Policy      string         `json:"policy"`      // policy entry (tool name) that fired
	Allowed     []Decision     `json:"allowed"`
	State       InterruptState `json:"state"`
	Decision    Decision       `json:"decision,omitempty"`
	Reason      string         `json:"reason,omitempty"` // human-supplied, surfaced on rejection
	CreatedAt   time.Time      `json:"created_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	ResumedAt   *time.Time     `json:"resumed_at,omitempty"`
}

// Validate checks if the interrupt request has valid field values
func (r *InterruptRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("interrupt id is required")
	}
	if r.SessionID == "" {
		return fmt.Errorf("interrupt %s: session_id is required", r.ID)
	}
	if err := r.Call.Validate(); err != nil {
		return fmt.Errorf("interrupt %s: %w", r.ID, err)
	}
	if !r.State.IsValid() {
		return fmt.Errorf("interrupt %s: invalid state %q", r.ID, r.State)
	}
	if len(r.Allowed) == 0 {
		return fmt.Errorf("interrupt %s: at least one allowed decision is required", r.ID)
	}
	for _, d := range r.Allowed {
		if !d.IsValid() {
			return fmt.Errorf("interrupt %s: invalid allowed decision %q", r.ID, d)
		}
	}
	if r.Decision != "" && !r.Decision.IsValid() {
		return fmt.Errorf("interrupt %s: invalid decision %q", r.ID, r.Decision)
	}
	return nil
}

// InterruptFilter selects interrupt requests for listing
type InterruptFilter struct {
	SessionID   string // filter to one session (empty matches all)
	PendingOnly bool   // only awaiting_approval rows
	Limit       int    // cap result count (0 means no limit)
}

// Allows reports whether the policy permits the given decision
func (r *InterruptRequest) Allows(d Decision) bool {
	for _, a := range r.Allowed {
		if a == d {
			return true
		}
	}
	return false
}
