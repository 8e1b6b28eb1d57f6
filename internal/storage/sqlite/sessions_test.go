package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tapedesk/tape/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSession(id string) *types.Session {
	return &types.Session{
		ID:    id,
		Title: "BTC outlook",
		State: types.SessionStateRunning,
		Model: "claude-sonnet-4-5",
	}
}

// TestSessionRoundTrip verifies create and get preserve all fields,
// including the nullable parent reference.
func TestSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := testSession("sess-1")
	if err := store.CreateSession(ctx, parent); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	child := &types.Session{
		ID:       "sess-2",
		State:    types.SessionStateRunning,
		ParentID: "sess-1",
		Worker:   "technical_analyst",
		Depth:    1,
	}
	if err := store.CreateSession(ctx, child); err != nil {
		t.Fatalf("Failed to create child session: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-2")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got == nil {
		t.Fatal("Expected session, got nil")
	}
	if got.ParentID != "sess-1" {
		t.Errorf("Expected parent sess-1, got %q", got.ParentID)
	}
	if got.Worker != "technical_analyst" {
		t.Errorf("Expected worker technical_analyst, got %q", got.Worker)
	}
	if got.Depth != 1 {
		t.Errorf("Expected depth 1, got %d", got.Depth)
	}

	root, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Failed to get root session: %v", err)
	}
	if root.ParentID != "" {
		t.Errorf("Expected empty parent for root, got %q", root.ParentID)
	}

	missing, err := store.GetSession(ctx, "sess-404")
	if err != nil {
		t.Fatalf("Missing session should not error: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing session")
	}
}

// TestListSessions verifies state and root filtering.
func TestListSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	done := testSession("sess-2")
	done.State = types.SessionStateCompleted
	if err := store.CreateSession(ctx, done); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	child := &types.Session{ID: "sess-3", State: types.SessionStateRunning, ParentID: "sess-1", Worker: "technical_analyst", Depth: 1}
	if err := store.CreateSession(ctx, child); err != nil {
		t.Fatalf("Failed to create child session: %v", err)
	}

	all, err := store.ListSessions(ctx, types.SessionFilter{})
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(all))
	}

	roots, err := store.ListSessions(ctx, types.SessionFilter{RootsOnly: true})
	if err != nil {
		t.Fatalf("Failed to list root sessions: %v", err)
	}
	if len(roots) != 2 {
		t.Errorf("Expected 2 root sessions, got %d", len(roots))
	}

	running := types.SessionStateRunning
	active, err := store.ListSessions(ctx, types.SessionFilter{State: &running})
	if err != nil {
		t.Fatalf("Failed to list running sessions: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("Expected 2 running sessions, got %d", len(active))
	}
}

// TestUpdateSessionState verifies the state machine is enforced.
func TestUpdateSessionState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	// running → awaiting_approval → running → completed
	if err := store.UpdateSessionState(ctx, "sess-1", types.SessionStateAwaitingApproval); err != nil {
		t.Fatalf("Valid transition failed: %v", err)
	}
	if err := store.UpdateSessionState(ctx, "sess-1", types.SessionStateRunning); err != nil {
		t.Fatalf("Valid transition failed: %v", err)
	}
	if err := store.UpdateSessionState(ctx, "sess-1", types.SessionStateCompleted); err != nil {
		t.Fatalf("Valid transition failed: %v", err)
	}

	// completed is terminal
	err := store.UpdateSessionState(ctx, "sess-1", types.SessionStateRunning)
	if err == nil {
		t.Fatal("Expected error transitioning out of completed")
	}
	if !strings.Contains(err.Error(), "invalid state transition") {
		t.Errorf("Expected transition error, got: %v", err)
	}

	if err := store.UpdateSessionState(ctx, "sess-404", types.SessionStateCompleted); err == nil {
		t.Fatal("Expected error for missing session")
	}
}

// TestCheckpointRoundTrip verifies a checkpoint with a mid-turn remainder
// survives a save/load cycle byte-for-byte where it matters.
func TestCheckpointRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	transcript := types.Transcript{
		types.NewUserMessage("what's the 4h RSI on BTC?"),
		{
			Role: types.RoleAssistant,
			ToolCalls: []types.ToolCall{
				{ID: "call-1", Name: "get_indicator", Args: json.RawMessage(`{"name":"rsi"}`)},
				{ID: "call-2", Name: "create_trading_signal", Args: json.RawMessage(`{"symbol":"BTCUSDT"}`)},
			},
		},
	}
	pending := &types.PendingTurn{
		Calls: transcript[1].ToolCalls,
		Results: []types.ToolResult{
			{CallID: "call-1", Name: "get_indicator", Content: "RSI(14) = 61.3"},
		},
		Interrupts: map[string]string{"call-2": "int-1"},
		Children:   map[string]string{"call-2": "sess-9"},
	}

	session.State = types.SessionStateAwaitingApproval
	session.Usage = types.Usage{InputTokens: 1200, OutputTokens: 80}
	cp := &types.Checkpoint{
		SessionID:  "sess-1",
		Transcript: transcript,
		Pending:    pending,
	}
	if err := store.SaveCheckpoint(ctx, session, cp); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
	if cp.SchemaVersion != SchemaVersion {
		t.Errorf("Expected checkpoint stamped %s, got %s", SchemaVersion, cp.SchemaVersion)
	}

	got, err := store.GetCheckpoint(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Failed to get checkpoint: %v", err)
	}
	if got == nil {
		t.Fatal("Expected checkpoint, got nil")
	}
	if len(got.Transcript) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(got.Transcript))
	}
	if got.Transcript[1].ToolCalls[1].Name != "create_trading_signal" {
		t.Errorf("Tool call lost: %+v", got.Transcript[1].ToolCalls)
	}
	if got.Pending == nil {
		t.Fatal("Expected pending turn, got nil")
	}
	if len(got.Pending.Results) != 1 || got.Pending.Results[0].Content != "RSI(14) = 61.3" {
		t.Errorf("Stashed result lost: %+v", got.Pending.Results)
	}
	if got.Pending.Children["call-2"] != "sess-9" {
		t.Errorf("Child mapping lost: %+v", got.Pending.Children)
	}

	// Session row was updated in the same transaction
	sess, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if sess.State != types.SessionStateAwaitingApproval {
		t.Errorf("Expected awaiting_approval, got %s", sess.State)
	}
	if sess.Usage.InputTokens != 1200 {
		t.Errorf("Expected usage saved, got %+v", sess.Usage)
	}
}

// TestCheckpointOverwrite verifies the latest save wins and clearing the
// pending remainder persists.
func TestCheckpointOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	first := &types.Checkpoint{
		SessionID:  "sess-1",
		Transcript: types.Transcript{types.NewUserMessage("one")},
		Pending:    &types.PendingTurn{Calls: []types.ToolCall{{ID: "c1", Name: "get_candles", Args: json.RawMessage(`{}`)}}},
	}
	if err := store.SaveCheckpoint(ctx, session, first); err != nil {
		t.Fatalf("Failed to save first checkpoint: %v", err)
	}

	second := &types.Checkpoint{
		SessionID: "sess-1",
		Transcript: types.Transcript{
			types.NewUserMessage("one"),
			{Role: types.RoleAssistant, Content: "done"},
		},
	}
	if err := store.SaveCheckpoint(ctx, session, second); err != nil {
		t.Fatalf("Failed to save second checkpoint: %v", err)
	}

	got, err := store.GetCheckpoint(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Failed to get checkpoint: %v", err)
	}
	if len(got.Transcript) != 2 {
		t.Errorf("Expected 2 messages after overwrite, got %d", len(got.Transcript))
	}
	if got.Pending != nil {
		t.Errorf("Expected pending cleared, got %+v", got.Pending)
	}
}

// TestCheckpointRequiresSession verifies a checkpoint cannot exist without
// its session row.
func TestCheckpointRequiresSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp := &types.Checkpoint{
		SessionID:  "sess-404",
		Transcript: types.Transcript{types.NewUserMessage("hello")},
	}
	err := store.SaveCheckpoint(ctx, testSession("sess-404"), cp)
	if err == nil {
		t.Fatal("Expected error saving checkpoint for missing session")
	}
	if !strings.Contains(err.Error(), "session not found") {
		t.Errorf("Expected session-not-found error, got: %v", err)
	}
}

// TestGetCheckpointSchemaGate verifies checkpoints from an incompatible
// layout are refused on read.
func TestGetCheckpointSchemaGate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	cp := &types.Checkpoint{
		SessionID:  "sess-1",
		Transcript: types.Transcript{types.NewUserMessage("hello")},
	}
	if err := store.SaveCheckpoint(ctx, session, cp); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}

	if _, err := store.db.Exec(`UPDATE checkpoints SET schema_version = 'v2.0.0'`); err != nil {
		t.Fatalf("Failed to tamper checkpoint version: %v", err)
	}

	_, err := store.GetCheckpoint(ctx, "sess-1")
	if err == nil {
		t.Fatal("Expected error reading checkpoint with incompatible schema")
	}
	if !strings.Contains(err.Error(), "cannot resume") {
		t.Errorf("Expected resume refusal, got: %v", err)
	}

	missing, err := store.GetCheckpoint(ctx, "sess-404")
	if err != nil {
		t.Fatalf("Missing checkpoint should not error: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing checkpoint")
	}
}
