package events

import (
	"time"

	"github.com/google/uuid"
)

// NewSessionEvent creates a new AgentEvent for session-level events (no specific data structure).
func NewSessionEvent(eventType EventType, sessionID, worker string, severity EventSeverity, message string, data map[string]interface{}) *AgentEvent {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &AgentEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Worker:    worker,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}

// NewSimpleEvent creates a new AgentEvent with no structured data.
func NewSimpleEvent(eventType EventType, sessionID, worker string, severity EventSeverity, message string) *AgentEvent {
	return &AgentEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Worker:    worker,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
	}
}

// NewToolCompletedEvent creates a new AgentEvent for a tool execution with type-safe data.
func NewToolCompletedEvent(sessionID, worker string, severity EventSeverity, message string, data ToolCompletedData) (*AgentEvent, error) {
	eventType := EventTypeToolCompleted
	if data.Error != "" {
		eventType = EventTypeToolFailed
	}
	event := NewSimpleEvent(eventType, sessionID, worker, severity, message)
	if err := event.SetToolCompletedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewApprovalDecidedEvent creates a new AgentEvent for an approval decision with type-safe data.
func NewApprovalDecidedEvent(sessionID string, severity EventSeverity, message string, data ApprovalDecidedData) (*AgentEvent, error) {
	event := NewSimpleEvent(EventTypeApprovalDecided, sessionID, "", severity, message)
	if err := event.SetApprovalDecidedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewTaskDelegatedEvent creates a new AgentEvent for a delegation with type-safe data.
func NewTaskDelegatedEvent(sessionID string, severity EventSeverity, message string, data TaskDelegatedData) (*AgentEvent, error) {
	event := NewSimpleEvent(EventTypeTaskDelegated, sessionID, "", severity, message)
	if err := event.SetTaskDelegatedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewModelRetryEvent creates a new AgentEvent for a rescheduled model call with type-safe data.
func NewModelRetryEvent(sessionID, worker string, message string, data ModelRetryData) (*AgentEvent, error) {
	event := NewSimpleEvent(EventTypeModelRetry, sessionID, worker, SeverityWarning, message)
	if err := event.SetModelRetryData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewSignalPublishedEvent creates a new AgentEvent for a published or updated trading signal.
func NewSignalPublishedEvent(eventType EventType, sessionID string, message string, data SignalPublishedData) (*AgentEvent, error) {
	event := NewSimpleEvent(eventType, sessionID, "", SeverityInfo, message)
	if err := event.SetSignalPublishedData(data); err != nil {
		return nil, err
	}
	return event, nil
}
