// Package dispatch implements delegation: the delegate_task tool, the
// worker registry behind it, and the middleware stage that runs nested
// worker loops. A delegation is a tool call whose execution is an entire
// sub-conversation; the stage owns its lifecycle, including suspension
// when a gate fires inside the child.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/middleware"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/storage"
	"github.com/tapedesk/tape/internal/tools"
	"github.com/tapedesk/tape/internal/types"
)

// ToolName is the delegation tool's registered name
const ToolName = "delegate_task"

// Runner runs one conversation loop for a delegated worker session. The
// desk assembly adapts the engine to this; the small seam keeps delegation
// testable without a model client.
type Runner interface {
	// Run starts a fresh worker loop. task already carries the context
	// preamble. A returned error means the child loop failed.
	Run(ctx context.Context, child *session.Context, w Worker, task string) (*Outcome, error)

	// Resume continues a suspended worker loop from its checkpoint.
	Resume(ctx context.Context, child *session.Context, w Worker) (*Outcome, error)
}

// Outcome is the slice of a worker loop's result delegation consumes.
type Outcome struct {
	// Status is completed or awaiting_approval; failures come back as errors
	Status types.SessionState

	// FinalText is the worker's answer when Status is completed
	FinalText string

	// Pending carries the child's gates awaiting a decision when Status
	// is awaiting_approval
	Pending []*types.InterruptRequest
}

// Config wires a Dispatcher
type Config struct {
	Registry *Registry
	Runner   Runner
	Store    storage.Storage
	Feed     *events.Feed

	// MaxDepth is the delegation recursion ceiling. A delegation that
	// would place a worker deeper than this fails terminally.
	MaxDepth int
}

// Dispatcher is the delegation stage: a ToolProvider contributing
// delegate_task, and the Before hook that executes those calls as nested
// worker loops. Delegation steps never reach the regular tool executor;
// suspension and resume need the step's pending-turn bookkeeping, which
// the flat Execute seam does not carry.
type Dispatcher struct {
	registry *Registry
	runner   Runner
	store    storage.Storage
	feed     *events.Feed
	maxDepth int
}

// New creates the dispatch stage
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("worker registry is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("loop runner is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("max depth must be at least 1 (got %d)", cfg.MaxDepth)
	}
	return &Dispatcher{
		registry: cfg.Registry,
		runner:   cfg.Runner,
		store:    cfg.Store,
		feed:     cfg.Feed,
		maxDepth: cfg.MaxDepth,
	}, nil
}

// Name identifies the stage in pipeline traces.
func (d *Dispatcher) Name() string { return "dispatch" }

// Tools contributes the delegation tool to the loop's surface
func (d *Dispatcher) Tools() []tools.Tool {
	return []tools.Tool{&DelegateTool{d: d}}
}

// DecoratePrompt adds the delegation instructions to the system prompt
func (d *Dispatcher) DecoratePrompt(base string) string {
	section := "## Delegation\n\n" +
		"Use delegate_task to hand focused analysis to a specialist worker. " +
		"Worker results are invisible to the user: synthesize findings into a clear response before answering. " +
		"Run independent delegations in parallel; reuse prior results instead of re-delegating the same question."
	if base == "" {
		return section
	}
	return base + "\n\n" + section
}

// Before intercepts delegate_task tool steps and runs the delegation. A
// call already recorded in the pending turn's children resumes its
// suspended worker loop instead of starting a new one.
func (d *Dispatcher) Before(ctx context.Context, step *middleware.Step) (middleware.Verdict, error) {
	if step.Phase != middleware.PhaseTool || step.Call == nil || step.Call.Name != ToolName {
		return middleware.Continue, nil
	}
	if step.Session == nil {
		return middleware.Continue, fmt.Errorf("delegate_task: step has no session")
	}
	if step.PendingTurn != nil {
		if childID, ok := step.PendingTurn.Children[step.Call.ID]; ok {
			return d.resumeChild(ctx, step, childID)
		}
	}
	return d.startChild(ctx, step)
}

// After is a no-op; delegation happens entirely in Before.
func (d *Dispatcher) After(ctx context.Context, step *middleware.Step) error {
	return nil
}

func (d *Dispatcher) startChild(ctx context.Context, step *middleware.Step) (middleware.Verdict, error) {
	sc := step.Session

	var args struct {
		Target string `json:"target"`
		Task   string `json:"task"`
	}
	if err := tools.DecodeArgs(ToolName, step.Call.Args, &args); err != nil {
		return middleware.Continue, err
	}
	if strings.TrimSpace(args.Task) == "" {
		return middleware.Continue, types.NewValidationError(ToolName, "task description is required")
	}
	w, ok := d.registry.Lookup(args.Target)
	if !ok {
		return middleware.Continue, types.NewValidationError(ToolName,
			"unknown worker %q (available: %s)", args.Target, strings.Join(d.registry.IDs(), ", "))
	}

	childDepth := sc.Depth + 1
	if childDepth > d.maxDepth {
		d.feed.EmitSimple(ctx, events.EventTypeDepthLimit, sc.SessionID, w.ID, events.SeverityWarning,
			fmt.Sprintf("delegation to %s refused at depth %d (limit %d)", w.ID, childDepth, d.maxDepth))
		return middleware.Continue, types.DepthExceeded(childDepth, d.maxDepth)
	}

	task := &types.SubagentTask{
		ID:        uuid.New().String(),
		Target:    w.ID,
		Task:      args.Task,
		Snapshot:  sc.Snapshot(),
		Depth:     childDepth,
		CreatedAt: sc.Clock(),
	}
	// One id serves as both the task tag and the child session id, so the
	// join survives a suspension without extra bookkeeping.
	childID := task.ID
	child := sc.Child(w.ID, childID)

	if err := d.store.CreateSession(ctx, &types.Session{
		ID:       childID,
		Title:    truncate(args.Task, 80),
		State:    types.SessionStateRunning,
		ParentID: sc.SessionID,
		Worker:   w.ID,
		Depth:    childDepth,
	}); err != nil {
		return middleware.Continue, fmt.Errorf("failed to create worker session: %w", err)
	}

	if event, err := events.NewTaskDelegatedEvent(sc.SessionID, events.SeverityInfo,
		fmt.Sprintf("delegated to %s", w.ID),
		events.TaskDelegatedData{Target: w.ID, ChildSessionID: childID, Depth: childDepth},
	); err == nil {
		d.feed.Emit(ctx, event)
	}

	outcome, err := d.runner.Run(ctx, child, w, Preamble(task.Snapshot, args.Task))
	if err != nil {
		d.feed.EmitSimple(ctx, events.EventTypeTaskReturned, sc.SessionID, w.ID, events.SeverityError,
			fmt.Sprintf("worker %s failed: %v", w.ID, err))
		// The child's failure may be terminal for its own loop; for this
		// loop it is a failed delegation, contained as a tool result.
		return middleware.Continue, fmt.Errorf("delegated task to %s failed: %v", w.ID, err)
	}
	return d.applyOutcome(ctx, step, w, childID, outcome)
}

func (d *Dispatcher) resumeChild(ctx context.Context, step *middleware.Step, childID string) (middleware.Verdict, error) {
	sess, err := d.store.GetSession(ctx, childID)
	if err != nil {
		return middleware.Continue, fmt.Errorf("failed to load worker session %s: %w", childID, err)
	}
	if sess == nil {
		return middleware.Continue, fmt.Errorf("worker session %s not found", childID)
	}
	w, ok := d.registry.Lookup(sess.Worker)
	if !ok {
		return middleware.Continue, fmt.Errorf("worker %q for session %s is not registered", sess.Worker, childID)
	}

	child := step.Session.Child(w.ID, childID)
	outcome, err := d.runner.Resume(ctx, child, w)
	if err != nil {
		d.feed.EmitSimple(ctx, events.EventTypeTaskReturned, step.Session.SessionID, w.ID, events.SeverityError,
			fmt.Sprintf("worker %s failed on resume: %v", w.ID, err))
		return middleware.Continue, fmt.Errorf("delegated task to %s failed: %v", w.ID, err)
	}
	return d.applyOutcome(ctx, step, w, childID, outcome)
}

func (d *Dispatcher) applyOutcome(ctx context.Context, step *middleware.Step, w Worker, childID string, outcome *Outcome) (middleware.Verdict, error) {
	switch outcome.Status {
	case types.SessionStateCompleted:
		if step.PendingTurn != nil {
			delete(step.PendingTurn.Children, step.Call.ID)
		}
		step.Result = &types.ToolResult{
			CallID:  step.Call.ID,
			Name:    ToolName,
			Content: strings.TrimRight(outcome.FinalText, " \t\n"),
			TaskID:  childID,
		}
		d.feed.EmitSimple(ctx, events.EventTypeTaskReturned, step.Session.SessionID, w.ID, events.SeverityInfo,
			fmt.Sprintf("%s returned a result", w.ID))
		return middleware.Halt, nil

	case types.SessionStateAwaitingApproval:
		if len(outcome.Pending) == 0 {
			return middleware.Continue, fmt.Errorf("worker session %s suspended without pending interrupts", childID)
		}
		if step.PendingTurn != nil {
			if step.PendingTurn.Children == nil {
				step.PendingTurn.Children = make(map[string]string)
			}
			step.PendingTurn.Children[step.Call.ID] = childID
		}
		step.Pending = outcome.Pending[0]
		return middleware.Halt, nil

	default:
		return middleware.Continue, fmt.Errorf("unexpected worker loop state %q for session %s", outcome.Status, childID)
	}
}

func (d *Dispatcher) toolDescription() string {
	var sb strings.Builder
	sb.WriteString("Launch a specialized worker for a focused task.\n\nAvailable workers:\n")
	for _, w := range d.registry.List() {
		fmt.Fprintf(&sb, "- %s: %s\n", w.ID, w.Description)
	}
	sb.WriteString("\nWorker results are invisible to the user. Synthesize findings before answering. " +
		"Reuse prior results instead of re-delegating the same question.")
	return sb.String()
}

// DelegateTool is the model-facing schema for delegation. Its calls are
// handled by the dispatch stage's Before hook, so Execute only guards
// against a misassembled pipeline.
type DelegateTool struct {
	d *Dispatcher
}

// Name returns the tool's registered name
func (t *DelegateTool) Name() string { return ToolName }

// Description lists the available workers for the supervisor model
func (t *DelegateTool) Description() string { return t.d.toolDescription() }

// InputSchema declares the delegation arguments
func (t *DelegateTool) InputSchema() *tools.Schema {
	return tools.ObjectSchema(map[string]interface{}{
		"target": tools.Prop("string", "Worker to delegate to (see the worker list above)"),
		"task":   tools.Prop("string", "Complete task description, including any relevant details from the conversation"),
	}, "target", "task")
}

// Execute rejects direct invocation; the dispatch stage handles the call.
func (t *DelegateTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*tools.Result, error) {
	return nil, fmt.Errorf("delegate_task reached the tool executor; the dispatch stage must run ahead of execution")
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
