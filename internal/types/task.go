package types

import (
	"fmt"
	"time"
)

// ContextSnapshot is the immutable slice of session context injected into a
// delegated task's preamble: what the worker needs to know about "now".
type ContextSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol,omitempty"`
	Exchange  string    `json:"exchange,omitempty"`
	Interval  string    `json:"interval,omitempty"`
	Profile   string    `json:"profile,omitempty"` // free-form user profile note
}

// SubagentTask describes one delegated sub-conversation. It lives only for
// the duration of the delegation that created it; the id ties the worker's
// final answer back to the delegation call for traceability.
type SubagentTask struct {
	ID        string          `json:"id"`
	Target    string          `json:"target"` // worker identifier
	Task      string          `json:"task"`   // task description text
	Snapshot  ContextSnapshot `json:"snapshot"`
	Depth     int             `json:"depth"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks if the task has valid field values
func (t *SubagentTask) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.Target == "" {
		return fmt.Errorf("task %s: target worker is required", t.ID)
	}
	if t.Task == "" {
		return fmt.Errorf("task %s: task description is required", t.ID)
	}
	if t.Depth < 1 {
		return fmt.Errorf("task %s: depth must be at least 1 (got %d)", t.ID, t.Depth)
	}
	return nil
}
