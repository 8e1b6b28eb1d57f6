package approval

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/middleware"
	"github.com/tapedesk/tape/internal/storage"
	"github.com/tapedesk/tape/internal/types"
)

// Resolver answers approval gates in-process. An interactive session
// installs one so gates resolve at the prompt instead of suspending the
// whole process; Resolve blocks until the human decides or ctx is done.
type Resolver interface {
	Resolve(ctx context.Context, req *types.InterruptRequest) (types.Decision, string, error)
}

// Controller is the middleware stage enforcing the approval policy. On a
// tool step whose name matches the policy it persists an InterruptRequest
// and halts the pipeline, so the executor never sees the call; the call
// proceeds only after SubmitDecision records an approval.
type Controller struct {
	policy   Policy
	store    storage.Storage
	feed     *events.Feed
	resolver Resolver
}

// NewController creates the approval stage for the given policy.
func NewController(policy Policy, store storage.Storage, feed *events.Feed) *Controller {
	return &Controller{policy: policy, store: store, feed: feed}
}

// SetResolver installs an in-process decision source. While one is set,
// gates block on it instead of suspending the session.
func (c *Controller) SetResolver(r Resolver) {
	c.resolver = r
}

// Name identifies the stage in pipeline traces.
func (c *Controller) Name() string { return "approval" }

// Before gates tool steps against the policy. A call re-entering the
// pipeline after a suspension may already carry a decision: approved lets
// it through to the executor, rejected injects the rejection result, and
// still-pending re-suspends without creating a duplicate interrupt.
func (c *Controller) Before(ctx context.Context, step *middleware.Step) (middleware.Verdict, error) {
	if step.Phase != middleware.PhaseTool || step.Call == nil {
		return middleware.Continue, nil
	}
	rule, ok := c.policy.Match(step.Call.Name)
	if !ok {
		return middleware.Continue, nil
	}
	if step.Session == nil {
		return middleware.Continue, fmt.Errorf("approval gate for %s: step has no session", step.Call.Name)
	}

	existing, err := c.lookupExisting(ctx, step)
	if err != nil {
		return middleware.Continue, err
	}
	if existing != nil {
		return c.applyDecision(ctx, step, existing)
	}

	req := &types.InterruptRequest{
		ID:          uuid.New().String(),
		SessionID:   step.Session.SessionID,
		Call:        *step.Call,
		Description: rule.describe(step.Call, step.Session),
		Policy:      step.Call.Name,
		Allowed:     rule.AllowedDecisions(),
		State:       types.InterruptStateAwaitingApproval,
		CreatedAt:   step.Session.Clock(),
	}
	if err := c.store.CreateInterrupt(ctx, req); err != nil {
		return middleware.Continue, fmt.Errorf("failed to create interrupt: %w", err)
	}
	c.recordPending(step, req)
	c.feed.Emit(ctx, events.NewSessionEvent(events.EventTypeApprovalRequested,
		req.SessionID, step.Session.Worker, events.SeverityInfo,
		fmt.Sprintf("approval requested for %s", req.Call.Name),
		map[string]interface{}{
			"interrupt_id": req.ID,
			"tool":         req.Call.Name,
			"call_id":      req.Call.ID,
		}))

	if c.resolver != nil {
		return c.resolveInline(ctx, step, req)
	}

	step.Pending = req
	return middleware.Halt, nil
}

// After is a no-op; the gate acts entirely before execution.
func (c *Controller) After(ctx context.Context, step *middleware.Step) error {
	return nil
}

// SubmitDecision records a human verdict on a pending interrupt and
// returns the decided request. Approvals from the CLI, the REPL resolver,
// and tests all pass through here; the state machine rejects a second
// decision for the same interrupt.
func (c *Controller) SubmitDecision(ctx context.Context, interruptID string, decision types.Decision, reason string) (*types.InterruptRequest, error) {
	req, err := c.store.GetInterrupt(ctx, interruptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interrupt: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("interrupt not found: %s", interruptID)
	}
	if !decision.IsValid() {
		return nil, fmt.Errorf("invalid decision: %s", decision)
	}
	if !req.Allows(decision) {
		return nil, fmt.Errorf("decision %s not allowed for interrupt %s (allowed: %v)", decision, interruptID, req.Allowed)
	}
	if !req.State.IsPending() {
		return nil, fmt.Errorf("interrupt %s already decided (state: %s)", interruptID, req.State)
	}

	if err := c.store.ResolveInterrupt(ctx, interruptID, decision, reason); err != nil {
		return nil, err
	}

	event, err := events.NewApprovalDecidedEvent(req.SessionID, events.SeverityInfo,
		fmt.Sprintf("decision for %s: %s", req.Call.Name, decision),
		events.ApprovalDecidedData{
			InterruptID: interruptID,
			Tool:        req.Call.Name,
			Decision:    string(decision),
			Reason:      reason,
		})
	if err == nil {
		c.feed.Emit(ctx, event)
	}

	decided, err := c.store.GetInterrupt(ctx, interruptID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload interrupt: %w", err)
	}
	return decided, nil
}

// MarkResumed records that a decided interrupt's outcome was applied to
// the conversation.
func (c *Controller) MarkResumed(ctx context.Context, interruptID string) error {
	return c.store.MarkInterruptResumed(ctx, interruptID)
}

// Pending lists interrupts still awaiting a decision, oldest first.
// An empty sessionID matches every session.
func (c *Controller) Pending(ctx context.Context, sessionID string) ([]*types.InterruptRequest, error) {
	return c.store.ListInterrupts(ctx, types.InterruptFilter{SessionID: sessionID, PendingOnly: true})
}

// lookupExisting finds a prior interrupt for this call through the pending
// turn bookkeeping. Returns (nil, nil) when the call was never gated.
func (c *Controller) lookupExisting(ctx context.Context, step *middleware.Step) (*types.InterruptRequest, error) {
	if step.PendingTurn == nil {
		return nil, nil
	}
	id, ok := step.PendingTurn.Interrupts[step.Call.ID]
	if !ok {
		return nil, nil
	}
	req, err := c.store.GetInterrupt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load interrupt %s: %w", id, err)
	}
	if req == nil {
		return nil, fmt.Errorf("interrupt %s recorded for call %s but not found", id, step.Call.ID)
	}
	return req, nil
}

// applyDecision translates a decided interrupt into step behavior.
func (c *Controller) applyDecision(ctx context.Context, step *middleware.Step, req *types.InterruptRequest) (middleware.Verdict, error) {
	switch req.State {
	case types.InterruptStateApproved:
		if err := c.MarkResumed(ctx, req.ID); err != nil {
			return middleware.Continue, err
		}
		c.clearPending(step, req)
		return middleware.Continue, nil

	case types.InterruptStateRejected:
		if err := c.MarkResumed(ctx, req.ID); err != nil {
			return middleware.Continue, err
		}
		c.clearPending(step, req)
		step.Result = RejectionResult(req)
		return middleware.Halt, nil

	case types.InterruptStateAwaitingApproval:
		if c.resolver != nil {
			return c.resolveInline(ctx, step, req)
		}
		step.Pending = req
		return middleware.Halt, nil

	default:
		// Resumed without a stashed result means a crash landed between
		// applying the decision and checkpointing it. The call's effects
		// are unknown, so it is reported as interrupted, never run again.
		c.clearPending(step, req)
		step.Result = &types.ToolResult{
			CallID: req.Call.ID,
			Name:   req.Call.Name,
			Failure: &types.Failure{
				Kind:    types.KindInterrupted,
				Message: fmt.Sprintf("tool call %s was interrupted after its approval decision; whether it executed is unknown and it was not run again", req.Call.ID),
			},
		}
		return middleware.Halt, nil
	}
}

// resolveInline blocks on the in-process resolver and applies the verdict
// immediately. A failed resolver falls back to suspension so the gate is
// never skipped.
func (c *Controller) resolveInline(ctx context.Context, step *middleware.Step, req *types.InterruptRequest) (middleware.Verdict, error) {
	decision, reason, err := c.resolver.Resolve(ctx, req)
	if err != nil {
		step.Pending = req
		return middleware.Halt, nil
	}
	decided, err := c.SubmitDecision(ctx, req.ID, decision, reason)
	if err != nil {
		return middleware.Continue, err
	}
	return c.applyDecision(ctx, step, decided)
}

func (c *Controller) recordPending(step *middleware.Step, req *types.InterruptRequest) {
	if step.PendingTurn == nil {
		return
	}
	if step.PendingTurn.Interrupts == nil {
		step.PendingTurn.Interrupts = make(map[string]string)
	}
	step.PendingTurn.Interrupts[req.Call.ID] = req.ID
}

func (c *Controller) clearPending(step *middleware.Step, req *types.InterruptRequest) {
	if step.PendingTurn != nil {
		delete(step.PendingTurn.Interrupts, req.Call.ID)
	}
}

// RejectionResult synthesizes the ToolResult surfaced to the model when a
// human rejects a gated call. The wording instructs the model not to
// retry: a rejection is a decision, not a transient failure.
func RejectionResult(req *types.InterruptRequest) *types.ToolResult {
	msg := fmt.Sprintf("the user rejected this %s call", req.Call.Name)
	if req.Reason != "" {
		msg += ": " + req.Reason
	}
	msg += ". Do not retry the call or attempt the same action by other means; acknowledge the rejection and continue."
	return &types.ToolResult{
		CallID: req.Call.ID,
		Name:   req.Call.Name,
		Failure: &types.Failure{
			Kind:    types.KindRejected,
			Message: msg,
		},
	}
}
