package events

import (
	"time"
)

// EventType represents the type of event that occurred during a session.
type EventType string

const (
	// EventTypeSessionStarted indicates a conversation session began
	EventTypeSessionStarted EventType = "session_started"
	// EventTypeSessionCompleted indicates a session produced a final answer
	EventTypeSessionCompleted EventType = "session_completed"
	// EventTypeSessionFailed indicates a session terminated with an unrecoverable error
	EventTypeSessionFailed EventType = "session_failed"
	// EventTypeSessionSuspended indicates a session suspended awaiting approval
	EventTypeSessionSuspended EventType = "session_suspended"
	// EventTypeSessionResumed indicates a suspended session picked back up
	EventTypeSessionResumed EventType = "session_resumed"

	// EventTypeTurnCompleted indicates one full model turn resolved (all tool calls answered)
	EventTypeTurnCompleted EventType = "turn_completed"
	// EventTypeModelRetry indicates a model call failed transiently and was rescheduled
	EventTypeModelRetry EventType = "model_retry"

	// EventTypeToolCompleted indicates a tool call executed successfully
	EventTypeToolCompleted EventType = "tool_completed"
	// EventTypeToolFailed indicates a tool call failed and was converted to an error result
	EventTypeToolFailed EventType = "tool_failed"
	// EventTypeToolRepaired indicates a dangling tool call was patched with a synthetic result
	EventTypeToolRepaired EventType = "tool_repaired"

	// EventTypeApprovalRequested indicates a gated tool call suspended the session
	EventTypeApprovalRequested EventType = "approval_requested"
	// EventTypeApprovalDecided indicates a human approved or rejected a gated call
	EventTypeApprovalDecided EventType = "approval_decided"

	// EventTypeTaskDelegated indicates the supervisor handed a task to a worker
	EventTypeTaskDelegated EventType = "task_delegated"
	// EventTypeTaskReturned indicates a delegated worker session finished
	EventTypeTaskReturned EventType = "task_returned"
	// EventTypeDepthLimit indicates a delegation was refused at the depth ceiling
	EventTypeDepthLimit EventType = "depth_limit"

	// EventTypeSignalPublished indicates a trading signal was created
	EventTypeSignalPublished EventType = "signal_published"
	// EventTypeSignalUpdated indicates a trading signal was modified
	EventTypeSignalUpdated EventType = "signal_updated"

	// EventTypeCircuitBreakerStateChange indicates the model-call circuit breaker transitioned
	EventTypeCircuitBreakerStateChange EventType = "circuit_breaker_state_change"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// AgentEvent represents an event that occurred while a session was running.
// Events are stored for the activity feed and post-hoc review.
type AgentEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// SessionID is the session that produced this event
	SessionID string `json:"session_id"`
	// Worker is the worker target for delegated sessions, empty for the supervisor
	Worker string `json:"worker,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// EventFilter selects events for listing.
type EventFilter struct {
	// SessionID filters to a single session (empty matches all)
	SessionID string
	// Type filters to a single event type (empty matches all)
	Type EventType
	// Severity filters to a single severity (empty matches all)
	Severity EventSeverity
	// AfterTime filters to events strictly after this time (zero disables)
	AfterTime time.Time
	// BeforeTime filters to events strictly before this time (zero disables)
	BeforeTime time.Time
	// Limit caps the number of returned events (0 means no limit)
	Limit int
}

// ToolCompletedData contains structured data for tool execution events.
type ToolCompletedData struct {
	// Tool is the tool name that executed
	Tool string `json:"tool"`
	// CallID is the model-assigned call id
	CallID string `json:"call_id"`
	// DurationMs is how long execution took in milliseconds
	DurationMs int64 `json:"duration_ms"`
	// Error is the failure text for tool_failed events, empty on success
	Error string `json:"error,omitempty"`
}

// ApprovalDecidedData contains structured data for approval decision events.
type ApprovalDecidedData struct {
	// InterruptID is the interrupt request that was decided
	InterruptID string `json:"interrupt_id"`
	// Tool is the gated tool name
	Tool string `json:"tool"`
	// Decision is the human verdict ("approve" or "reject")
	Decision string `json:"decision"`
	// Reason is the human-supplied reason, if any
	Reason string `json:"reason,omitempty"`
}

// TaskDelegatedData contains structured data for delegation events.
type TaskDelegatedData struct {
	// Target is the worker the task was handed to
	Target string `json:"target"`
	// ChildSessionID is the session created for the worker
	ChildSessionID string `json:"child_session_id"`
	// Depth is the nesting depth of the child session
	Depth int `json:"depth"`
}

// ModelRetryData contains structured data for model retry events.
type ModelRetryData struct {
	// Attempt is the attempt number that failed (1-based)
	Attempt int `json:"attempt"`
	// MaxAttempts is the attempt budget for the call
	MaxAttempts int `json:"max_attempts"`
	// DelayMs is the backoff before the next attempt in milliseconds
	DelayMs int64 `json:"delay_ms"`
	// Error is the failure that triggered the retry
	Error string `json:"error"`
}

// SignalPublishedData contains structured data for trading signal events.
type SignalPublishedData struct {
	// SignalID is the persisted signal id
	SignalID string `json:"signal_id"`
	// Symbol is the instrument, e.g. "BTCUSDT"
	Symbol string `json:"symbol"`
	// Direction is "long" or "short"
	Direction string `json:"direction"`
	// Entry is the entry price
	Entry float64 `json:"entry"`
	// StopLoss is the stop price
	StopLoss float64 `json:"stop_loss"`
	// SizePct is the percent of account equity at risk
	SizePct float64 `json:"size_pct"`
	// Leverage is the position leverage
	Leverage float64 `json:"leverage"`
}
