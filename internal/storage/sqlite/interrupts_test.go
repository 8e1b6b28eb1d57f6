package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tapedesk/tape/internal/types"
)

func testInterrupt(id, sessionID, callID string) *types.InterruptRequest {
	return &types.InterruptRequest{
		ID:        id,
		SessionID: sessionID,
		Call: types.ToolCall{
			ID:   callID,
			Name: "create_trading_signal",
			Args: json.RawMessage(`{"symbol":"BTCUSDT","direction":"long","entry":64250.0}`),
		},
		Description: "LONG BTCUSDT @ 64250, stop 62800, risking 2% at 5x",
		Policy:      "create_trading_signal",
		Allowed:     []types.Decision{types.DecisionApprove, types.DecisionReject},
		State:       types.InterruptStateAwaitingApproval,
	}
}

// TestInterruptRoundTrip verifies create and get preserve the gated call,
// its args, and the allowed decision set.
func TestInterruptRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := store.CreateInterrupt(ctx, testInterrupt("int-1", "sess-1", "call-1")); err != nil {
		t.Fatalf("Failed to create interrupt: %v", err)
	}

	got, err := store.GetInterrupt(ctx, "int-1")
	if err != nil {
		t.Fatalf("Failed to get interrupt: %v", err)
	}
	if got == nil {
		t.Fatal("Expected interrupt, got nil")
	}
	if got.Call.Name != "create_trading_signal" {
		t.Errorf("Expected tool create_trading_signal, got %q", got.Call.Name)
	}
	if !strings.Contains(string(got.Call.Args), "BTCUSDT") {
		t.Errorf("Args lost: %s", got.Call.Args)
	}
	if len(got.Allowed) != 2 || !got.Allows(types.DecisionReject) {
		t.Errorf("Allowed decisions lost: %+v", got.Allowed)
	}
	if got.State != types.InterruptStateAwaitingApproval {
		t.Errorf("Expected awaiting_approval, got %s", got.State)
	}
	if got.DecidedAt != nil {
		t.Error("Expected nil decided_at for pending interrupt")
	}

	missing, err := store.GetInterrupt(ctx, "int-404")
	if err != nil {
		t.Fatalf("Missing interrupt should not error: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing interrupt")
	}
}

// TestInterruptDuplicateCall verifies the same tool call cannot be gated twice.
func TestInterruptDuplicateCall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := store.CreateInterrupt(ctx, testInterrupt("int-1", "sess-1", "call-1")); err != nil {
		t.Fatalf("Failed to create interrupt: %v", err)
	}

	err := store.CreateInterrupt(ctx, testInterrupt("int-2", "sess-1", "call-1"))
	if err == nil {
		t.Fatal("Expected error gating the same call twice")
	}
}

// TestResolveInterrupt verifies approve and reject record the decision
// exactly once.
func TestResolveInterrupt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := store.CreateInterrupt(ctx, testInterrupt("int-1", "sess-1", "call-1")); err != nil {
		t.Fatalf("Failed to create interrupt: %v", err)
	}
	if err := store.CreateInterrupt(ctx, testInterrupt("int-2", "sess-1", "call-2")); err != nil {
		t.Fatalf("Failed to create interrupt: %v", err)
	}

	// Approve
	if err := store.ResolveInterrupt(ctx, "int-1", types.DecisionApprove, ""); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}
	got, err := store.GetInterrupt(ctx, "int-1")
	if err != nil {
		t.Fatalf("Failed to get interrupt: %v", err)
	}
	if got.State != types.InterruptStateApproved {
		t.Errorf("Expected approved, got %s", got.State)
	}
	if got.Decision != types.DecisionApprove {
		t.Errorf("Expected approve decision, got %s", got.Decision)
	}
	if got.DecidedAt == nil {
		t.Error("Expected decided_at to be set")
	}

	// Reject with reason
	if err := store.ResolveInterrupt(ctx, "int-2", types.DecisionReject, "size too large for this regime"); err != nil {
		t.Fatalf("Failed to reject: %v", err)
	}
	got, err = store.GetInterrupt(ctx, "int-2")
	if err != nil {
		t.Fatalf("Failed to get interrupt: %v", err)
	}
	if got.State != types.InterruptStateRejected {
		t.Errorf("Expected rejected, got %s", got.State)
	}
	if got.Reason != "size too large for this regime" {
		t.Errorf("Reason lost: %q", got.Reason)
	}

	// Double decide fails
	err = store.ResolveInterrupt(ctx, "int-1", types.DecisionReject, "")
	if err == nil {
		t.Fatal("Expected error deciding an already-decided interrupt")
	}
	if !strings.Contains(err.Error(), "already decided") {
		t.Errorf("Expected already-decided error, got: %v", err)
	}

	// Missing interrupt
	if err := store.ResolveInterrupt(ctx, "int-404", types.DecisionApprove, ""); err == nil {
		t.Fatal("Expected error for missing interrupt")
	}

	// Invalid decision
	if err := store.ResolveInterrupt(ctx, "int-1", types.Decision("maybe"), ""); err == nil {
		t.Fatal("Expected error for invalid decision")
	}
}

// TestMarkInterruptResumed verifies only decided interrupts can be resumed.
func TestMarkInterruptResumed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := store.CreateInterrupt(ctx, testInterrupt("int-1", "sess-1", "call-1")); err != nil {
		t.Fatalf("Failed to create interrupt: %v", err)
	}

	// Pending interrupts cannot be resumed
	err := store.MarkInterruptResumed(ctx, "int-1")
	if err == nil {
		t.Fatal("Expected error resuming a pending interrupt")
	}

	if err := store.ResolveInterrupt(ctx, "int-1", types.DecisionApprove, ""); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}
	if err := store.MarkInterruptResumed(ctx, "int-1"); err != nil {
		t.Fatalf("Failed to mark resumed: %v", err)
	}

	got, err := store.GetInterrupt(ctx, "int-1")
	if err != nil {
		t.Fatalf("Failed to get interrupt: %v", err)
	}
	if got.State != types.InterruptStateResumed {
		t.Errorf("Expected resumed, got %s", got.State)
	}
	if got.ResumedAt == nil {
		t.Error("Expected resumed_at to be set")
	}

	// Resuming twice fails
	if err := store.MarkInterruptResumed(ctx, "int-1"); err == nil {
		t.Fatal("Expected error resuming twice")
	}
}

// TestListInterrupts verifies session and pending filters, and that the
// queue reads oldest first.
func TestListInterrupts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := store.CreateSession(ctx, testSession("sess-2")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := store.CreateInterrupt(ctx, testInterrupt("int-1", "sess-1", "call-1")); err != nil {
		t.Fatalf("Failed to create interrupt: %v", err)
	}
	if err := store.CreateInterrupt(ctx, testInterrupt("int-2", "sess-1", "call-2")); err != nil {
		t.Fatalf("Failed to create interrupt: %v", err)
	}
	if err := store.CreateInterrupt(ctx, testInterrupt("int-3", "sess-2", "call-3")); err != nil {
		t.Fatalf("Failed to create interrupt: %v", err)
	}
	if err := store.ResolveInterrupt(ctx, "int-1", types.DecisionApprove, ""); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}

	pending, err := store.ListInterrupts(ctx, types.InterruptFilter{PendingOnly: true})
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("Expected 2 pending interrupts, got %d", len(pending))
	}

	bySession, err := store.ListInterrupts(ctx, types.InterruptFilter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("Failed to list by session: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("Expected 2 interrupts for sess-1, got %d", len(bySession))
	}
	if bySession[0].ID != "int-1" {
		t.Errorf("Expected oldest first, got %s", bySession[0].ID)
	}
}
