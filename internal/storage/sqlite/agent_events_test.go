package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/tapedesk/tape/internal/events"
)

// TestAgentEventStorage verifies storing and retrieving activity feed events.
func TestAgentEventStorage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("StoreAndGetBySession", func(t *testing.T) {
		event := events.NewSessionEvent(events.EventTypeToolCompleted, "sess-1", "technical_analyst",
			events.SeverityInfo, "get_indicator finished", map[string]interface{}{
				"tool":        "get_indicator",
				"call_id":     "call-1",
				"duration_ms": float64(42),
			})
		if err := store.StoreAgentEvent(ctx, event); err != nil {
			t.Fatalf("Failed to store event: %v", err)
		}

		got, err := store.GetAgentEventsBySession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("Failed to get events: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(got))
		}
		if got[0].Type != events.EventTypeToolCompleted {
			t.Errorf("Expected tool_completed, got %s", got[0].Type)
		}
		if got[0].Worker != "technical_analyst" {
			t.Errorf("Worker lost: %q", got[0].Worker)
		}
		if got[0].Data["tool"] != "get_indicator" {
			t.Errorf("Data lost: %+v", got[0].Data)
		}
	})

	t.Run("FilterBySeverity", func(t *testing.T) {
		warn := events.NewSimpleEvent(events.EventTypeModelRetry, "sess-1", "", events.SeverityWarning, "retrying after 429")
		if err := store.StoreAgentEvent(ctx, warn); err != nil {
			t.Fatalf("Failed to store event: %v", err)
		}

		got, err := store.GetAgentEvents(ctx, events.EventFilter{
			SessionID: "sess-1",
			Severity:  events.SeverityWarning,
		})
		if err != nil {
			t.Fatalf("Failed to filter events: %v", err)
		}
		if len(got) != 1 || got[0].Type != events.EventTypeModelRetry {
			t.Errorf("Expected the retry warning, got %+v", got)
		}
	})

	t.Run("RecentOrderingAndLimit", func(t *testing.T) {
		base := time.Now()
		for i, id := range []string{"evt-a", "evt-b", "evt-c"} {
			event := events.NewSimpleEvent(events.EventTypeTurnCompleted, "sess-2", "", events.SeverityInfo, id)
			event.ID = id
			event.Timestamp = base.Add(time.Duration(i) * time.Second)
			if err := store.StoreAgentEvent(ctx, event); err != nil {
				t.Fatalf("Failed to store event: %v", err)
			}
		}

		got, err := store.GetRecentAgentEvents(ctx, 2)
		if err != nil {
			t.Fatalf("Failed to get recent events: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 events, got %d", len(got))
		}
		if got[0].ID != "evt-c" {
			t.Errorf("Expected most recent first, got %s", got[0].ID)
		}
	})
}
