package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/middleware"
	"github.com/tapedesk/tape/internal/retry"
	"github.com/tapedesk/tape/internal/tools"
	"github.com/tapedesk/tape/internal/types"
)

// executeTurn resolves the open turn in r.pending. Unresolved calls run as
// concurrent pipeline steps; stashed siblings merge without re-executing;
// on a resumed turn, calls with no bookkeeping close as interrupted. Once
// every call resolves, the results land in one tool message in the original
// proposal order. A nil, nil return means the turn merged and the loop
// continues; a non-nil Result means it suspended on pending approvals.
func (r *run) executeTurn(ctx context.Context, resumed bool) (*Result, error) {
	turn := r.pending
	stashed := turn.ResolvedCallIDs()
	steps := make([]*middleware.Step, len(turn.Calls))
	closed := make([]*types.ToolResult, len(turn.Calls))

	g, gctx := errgroup.WithContext(ctx)
	if r.e.toolLimit > 0 {
		g.SetLimit(r.e.toolLimit)
	}

	for i := range turn.Calls {
		call := &turn.Calls[i]
		if _, done := stashed[call.ID]; done {
			continue
		}
		if resumed && !turn.Tracked(call.ID) {
			// Nothing will ever resolve this call and its side effects
			// are unknown; close it without re-executing.
			res := middleware.InterruptedResult(*call)
			closed[i] = &res
			r.emitRepaired(ctx, call.ID, call.Name)
			continue
		}

		step := &middleware.Step{
			Phase:       middleware.PhaseTool,
			Session:     r.sc,
			Call:        call,
			PendingTurn: snapshotTurn(turn),
		}
		steps[i] = step
		g.Go(func() error {
			return r.e.pipeline.Run(gctx, step, r.execTool)
		})
	}

	terminal := g.Wait()

	var pendings []*types.InterruptRequest
	for i := range turn.Calls {
		step := steps[i]
		if step == nil {
			continue
		}
		foldBookkeeping(turn, step.PendingTurn, turn.Calls[i].ID)
		closed[i] = step.Result
		if step.Pending != nil {
			pendings = append(pendings, step.Pending)
		}
	}

	// Rebuild the stash in proposal order from old and new results
	byID := make(map[string]*types.ToolResult, len(turn.Calls))
	for i := range turn.Results {
		byID[turn.Results[i].CallID] = &turn.Results[i]
	}
	for i := range closed {
		if closed[i] != nil {
			byID[closed[i].CallID] = closed[i]
		}
	}
	resolved := make([]types.ToolResult, 0, len(turn.Calls))
	for _, call := range turn.Calls {
		if res, ok := byID[call.ID]; ok {
			resolved = append(resolved, *res)
		}
	}
	turn.Results = resolved

	if terminal != nil {
		return nil, terminal
	}

	if len(pendings) > 0 {
		if err := r.checkpoint(ctx, types.SessionStateAwaitingApproval); err != nil {
			return nil, err
		}
		r.emit(ctx, events.EventTypeSessionSuspended, events.SeverityInfo,
			fmt.Sprintf("suspended on %d pending approval(s)", len(pendings)))
		return &Result{
			Status:  types.SessionStateAwaitingApproval,
			Pending: pendings,
			Usage:   r.sess.Usage,
		}, nil
	}

	if len(resolved) != len(turn.Calls) {
		return nil, fmt.Errorf("turn resolved %d of %d tool calls: %w",
			len(resolved), len(turn.Calls), types.ErrTranscriptCorrupt)
	}

	r.transcript = append(r.transcript, types.NewToolMessage(resolved))
	r.pending = nil
	if err := r.checkpoint(ctx, types.SessionStateRunning); err != nil {
		return nil, err
	}
	r.emit(ctx, events.EventTypeTurnCompleted, events.SeverityInfo,
		fmt.Sprintf("turn merged %d tool result(s)", len(resolved)))
	return nil, nil
}

// execTool is the pipeline executor for tool steps: schema-validated
// registry execution under an independent retry budget per call.
func (r *run) execTool(ctx context.Context, step *middleware.Step) error {
	call := *step.Call
	start := time.Now()
	var out *tools.Result
	err := retry.Do(ctx, "tool "+call.Name, r.e.toolRetry, func(ctx context.Context) error {
		res, err := r.e.tools.Execute(ctx, step.Session, call)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		r.emitTool(ctx, call, elapsed, err)
		return err
	}

	step.Result = &types.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: out.Content,
		Images:  out.Images,
	}
	r.emitTool(ctx, call, elapsed, nil)
	return nil
}

func (r *run) emitTool(ctx context.Context, call types.ToolCall, durationMs int64, err error) {
	data := events.ToolCompletedData{Tool: call.Name, CallID: call.ID, DurationMs: durationMs}
	msg := fmt.Sprintf("%s completed in %dms", call.Name, durationMs)
	severity := events.SeverityInfo
	if err != nil {
		data.Error = err.Error()
		msg = fmt.Sprintf("%s failed: %v", call.Name, err)
		severity = events.SeverityWarning
	}
	event, buildErr := events.NewToolCompletedEvent(r.sess.ID, r.sc.Worker, severity, msg, data)
	if buildErr == nil {
		r.e.feed.Emit(ctx, event)
	}
}

// ToolClassify layers tool-argument validation onto the baseline classes:
// a ValidationError is the model's mistake, retrying cannot fix it.
func ToolClassify(err error) (retry.Class, time.Duration) {
	if types.IsValidation(err) {
		return retry.ClassValidation, 0
	}
	return retry.DefaultClassifier(err)
}

// snapshotTurn gives a concurrent tool step its own bookkeeping view.
// Stages record per-call state (interrupt ids, child session ids) into the
// step's PendingTurn; each step writes only its private copy and the run
// goroutine folds the copies back, staying the canonical turn's single
// writer.
func snapshotTurn(turn *types.PendingTurn) *types.PendingTurn {
	return &types.PendingTurn{
		Calls:      turn.Calls,
		Results:    turn.Results,
		Interrupts: copyIDMap(turn.Interrupts),
		Children:   copyIDMap(turn.Children),
	}
}

func copyIDMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// foldBookkeeping reconciles one call's bookkeeping from a step's private
// view into the canonical turn: presence in the copy wins, absence means
// the stage consumed it (a decision applied, a child completed).
func foldBookkeeping(turn, private *types.PendingTurn, callID string) {
	if id, ok := private.Interrupts[callID]; ok {
		if turn.Interrupts == nil {
			turn.Interrupts = make(map[string]string)
		}
		turn.Interrupts[callID] = id
	} else {
		delete(turn.Interrupts, callID)
	}
	if id, ok := private.Children[callID]; ok {
		if turn.Children == nil {
			turn.Children = make(map[string]string)
		}
		turn.Children[callID] = id
	} else {
		delete(turn.Children, callID)
	}
}
