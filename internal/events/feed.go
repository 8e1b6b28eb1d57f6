package events

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Sink persists agent events. The sqlite storage backend satisfies this.
type Sink interface {
	StoreAgentEvent(ctx context.Context, event *AgentEvent) error
}

// Feed records agent events for the activity feed. Event storage is
// best-effort: a failing sink is reported to the warning writer and
// never fails the caller, so a full disk cannot take down a session.
type Feed struct {
	sink Sink
	warn io.Writer
}

// NewFeed creates a feed backed by the given sink. A nil sink produces
// a feed that drops everything, which is what tests usually want.
func NewFeed(sink Sink) *Feed {
	return &Feed{
		sink: sink,
		warn: os.Stderr,
	}
}

// SetWarnWriter redirects sink-failure warnings, primarily for tests.
func (f *Feed) SetWarnWriter(w io.Writer) {
	f.warn = w
}

// Emit stores a single event, best-effort.
func (f *Feed) Emit(ctx context.Context, event *AgentEvent) {
	if f == nil || f.sink == nil || event == nil {
		return
	}
	// Skip storage if the session is shutting down
	if ctx.Err() != nil {
		return
	}
	if err := f.sink.StoreAgentEvent(ctx, event); err != nil {
		fmt.Fprintf(f.warn, "warning: failed to store %s event: %v\n", event.Type, err)
	}
}

// EmitSimple builds and stores an event with no structured data, best-effort.
func (f *Feed) EmitSimple(ctx context.Context, eventType EventType, sessionID, worker string, severity EventSeverity, message string) {
	if f == nil || f.sink == nil {
		return
	}
	f.Emit(ctx, NewSimpleEvent(eventType, sessionID, worker, severity, message))
}
