package middleware

import (
	"context"
	"fmt"

	"github.com/tapedesk/tape/internal/types"
)

// HistoryRepair is the innermost stage. Before every model step it scans
// the transcript for tool calls that never got a result (debris left by a
// crash or an abandoned suspension) and closes them with synthesized
// interrupted-kind results, because a transcript with dangling calls must
// never reach the completion client. Calls the resume flow will still
// resolve (a live pending interrupt, a stashed sibling result, a suspended
// child session) are left alone. A call whose side effects are unknown is
// never re-executed.
type HistoryRepair struct{}

// NewHistoryRepair creates the repair stage
func NewHistoryRepair() *HistoryRepair {
	return &HistoryRepair{}
}

func (r *HistoryRepair) Name() string { return "repair" }

// Before repairs the transcript ahead of a model step
func (r *HistoryRepair) Before(ctx context.Context, step *Step) (Verdict, error) {
	if step.Phase == PhaseModel && step.Transcript != nil {
		Repair(step.Transcript, step.PendingTurn)
	}
	return Continue, nil
}

func (r *HistoryRepair) After(ctx context.Context, step *Step) error {
	return nil
}

// Repair closes dangling tool calls with synthesized interrupted results,
// appended as one tool message, and returns what it synthesized in proposal
// order. Calls tracked by the pending turn are skipped: the resume flow owns
// those. Repairing an already-repaired transcript changes nothing. The
// engine also calls this directly whenever a checkpoint is loaded.
func Repair(t *types.Transcript, pending *types.PendingTurn) []types.ToolResult {
	dangling := t.UnresolvedCalls()
	if len(dangling) == 0 {
		return nil
	}

	keep := make(map[string]struct{})
	if pending != nil {
		for callID := range pending.Interrupts {
			keep[callID] = struct{}{}
		}
		for i := range pending.Results {
			keep[pending.Results[i].CallID] = struct{}{}
		}
		for callID := range pending.Children {
			keep[callID] = struct{}{}
		}
	}

	var repaired []types.ToolResult
	for _, call := range dangling {
		if _, ok := keep[call.ID]; ok {
			continue
		}
		repaired = append(repaired, InterruptedResult(call))
	}
	if len(repaired) == 0 {
		return nil
	}

	*t = append(*t, types.NewToolMessage(repaired))
	return repaired
}

// InterruptedResult closes an abandoned tool call: the call never ran (or
// its effects are unknowable) and the model is told so. Used by Repair for
// transcript debris and by the engine when a resumed turn carries calls no
// decision or child session will ever resolve.
func InterruptedResult(call types.ToolCall) types.ToolResult {
	return types.ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Failure: &types.Failure{
			Kind:    types.KindInterrupted,
			Message: fmt.Sprintf("tool call %s was interrupted before execution; it did not run and produced no effects", call.Name),
		},
	}
}
