// Package engine drives conversation loops. One run owns a session's
// transcript end to end, alternating model steps and tool turns through the
// middleware pipeline, checkpointing after every fully resolved step, and
// suspending whenever a step needs a human decision. The run goroutine is
// the transcript's single writer: concurrent tool steps hand their outcomes
// back to it for an ordered merge.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tapedesk/tape/internal/ai"
	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/middleware"
	"github.com/tapedesk/tape/internal/retry"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/storage"
	"github.com/tapedesk/tape/internal/tools"
	"github.com/tapedesk/tape/internal/types"
)

// DefaultMaxTurns caps model steps per run when the config doesn't
const DefaultMaxTurns = 40

// Config wires an Engine
type Config struct {
	// Client produces completions; one shared client serves every engine
	Client ai.CompletionClient

	// Pipeline is the ordered middleware stack for this loop shape
	Pipeline *middleware.Pipeline

	// Tools is the loop's tool surface. Tools contributed by pipeline
	// stages (delegate_task, read_skill) are folded in by New.
	Tools *tools.Registry

	// Store persists sessions, checkpoints, and interrupts
	Store storage.Storage

	// Feed receives activity events (optional)
	Feed *events.Feed

	// SystemPrompt is the base prompt; PromptDecorator stages extend it
	SystemPrompt string

	// Model overrides the client's default model for this loop
	Model string

	// MaxTurns caps model steps per run (default DefaultMaxTurns)
	MaxTurns int

	// ToolRetry is the retry policy for tool execution. Every call gets
	// its own independent attempt budget. The zero value uses the default
	// policy with ToolClassify.
	ToolRetry retry.Policy

	// MaxToolConcurrency caps parallel tool execution within one turn
	// (0 = one goroutine per proposed call)
	MaxToolConcurrency int
}

// Engine executes conversation loops for one loop shape: a prompt, a tool
// surface, and a pipeline. It holds no per-run state and is safe for
// concurrent runs: two delegations to the same worker in one turn share
// the worker's engine.
type Engine struct {
	client    ai.CompletionClient
	pipeline  *middleware.Pipeline
	tools     *tools.Registry
	store     storage.Storage
	feed      *events.Feed
	prompt    string
	model     string
	maxTurns  int
	toolRetry retry.Policy
	toolLimit int
}

// New creates an engine. Tools contributed by pipeline stages are
// registered into the registry so the model sees one coherent surface and
// execution has one lookup path.
func New(cfg Config) (*Engine, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("completion client is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("middleware pipeline is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.MaxTurns < 0 {
		return nil, fmt.Errorf("max turns cannot be negative (got %d)", cfg.MaxTurns)
	}

	maxTurns := cfg.MaxTurns
	if maxTurns == 0 {
		maxTurns = DefaultMaxTurns
	}
	toolRetry := cfg.ToolRetry
	if toolRetry.Classify == nil {
		toolRetry.Classify = ToolClassify
	}

	for _, t := range cfg.Pipeline.Tools() {
		if cfg.Tools.Has(t.Name()) {
			continue
		}
		if err := cfg.Tools.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register stage tool %s: %w", t.Name(), err)
		}
	}

	return &Engine{
		client:    cfg.Client,
		pipeline:  cfg.Pipeline,
		tools:     cfg.Tools,
		store:     cfg.Store,
		feed:      cfg.Feed,
		prompt:    cfg.Pipeline.DecoratePrompt(cfg.SystemPrompt),
		model:     cfg.Model,
		maxTurns:  maxTurns,
		toolRetry: toolRetry,
		toolLimit: cfg.MaxToolConcurrency,
	}, nil
}

// Result is a run's outcome surface
type Result struct {
	// Status is completed, awaiting_approval, or failed
	Status types.SessionState

	// FinalText is the model's terminal answer when Status is completed
	FinalText string

	// Pending lists the interrupts awaiting a decision when Status is
	// awaiting_approval
	Pending []*types.InterruptRequest

	// Usage is the session's accumulated token consumption
	Usage types.Usage
}

// Run appends a user turn and drives the loop until it completes, suspends,
// or fails terminally. The session row must already exist; a fresh session
// starts its transcript here, a continued one reloads its checkpoint first.
// A session suspended mid-turn refuses new input; Resume owns that path.
func (e *Engine) Run(ctx context.Context, sc *session.Context, input string) (*Result, error) {
	if sc == nil {
		return nil, fmt.Errorf("session context is required")
	}
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("input is required")
	}
	sess, err := e.loadSession(ctx, sc)
	if err != nil {
		return nil, err
	}
	cp, err := e.store.GetCheckpoint(ctx, sc.SessionID)
	if err != nil {
		return nil, err
	}

	r := &run{e: e, sc: sc, sess: sess}
	if cp != nil {
		if cp.Pending != nil {
			return nil, fmt.Errorf("session %s is suspended mid-turn; resume it instead of sending new input", sc.SessionID)
		}
		r.transcript = cp.Transcript
		r.repairLoaded(ctx)
	}

	r.transcript = append(r.transcript, types.NewUserMessage(input, sc.TakeImages()...))
	if cp == nil {
		r.emit(ctx, events.EventTypeSessionStarted, events.SeverityInfo, "session started")
	}
	if err := r.checkpoint(ctx, types.SessionStateRunning); err != nil {
		return nil, err
	}
	return r.drive(ctx)
}

// Resume reloads a suspended or crashed session and continues it. A pending
// turn re-enters the pipeline first: decided gates apply their verdicts,
// suspended children resume, abandoned calls close as interrupted. Then the
// loop proceeds at the model step.
func (e *Engine) Resume(ctx context.Context, sc *session.Context) (*Result, error) {
	if sc == nil {
		return nil, fmt.Errorf("session context is required")
	}
	sess, err := e.loadSession(ctx, sc)
	if err != nil {
		return nil, err
	}
	switch sess.State {
	case types.SessionStateCompleted:
		return nil, fmt.Errorf("session %s already completed", sc.SessionID)
	case types.SessionStateFailed:
		return nil, fmt.Errorf("session %s failed terminally and cannot resume", sc.SessionID)
	}
	cp, err := e.store.GetCheckpoint(ctx, sc.SessionID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("session %s has no checkpoint to resume", sc.SessionID)
	}

	r := &run{e: e, sc: sc, sess: sess, transcript: cp.Transcript, pending: cp.Pending}
	if r.pending == nil {
		r.repairLoaded(ctx)
	}
	r.emit(ctx, events.EventTypeSessionResumed, events.SeverityInfo,
		fmt.Sprintf("resumed from state %s", sess.State))

	if r.pending != nil {
		res, err := r.executeTurn(ctx, true)
		if err != nil {
			return r.fail(ctx, err)
		}
		if res != nil {
			return res, nil
		}
	}
	return r.drive(ctx)
}

func (e *Engine) loadSession(ctx context.Context, sc *session.Context) (*types.Session, error) {
	sess, err := e.store.GetSession(ctx, sc.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sc.SessionID, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s not found", sc.SessionID)
	}
	return sess, nil
}

// run is the mutable state of one loop execution, owned by a single
// goroutine for its whole life.
type run struct {
	e          *Engine
	sc         *session.Context
	sess       *types.Session
	transcript types.Transcript
	pending    *types.PendingTurn
	turns      int
}

// drive advances the loop from a clean step boundary: transcript valid, no
// unresolved turn.
func (r *run) drive(ctx context.Context) (*Result, error) {
	for {
		if r.turns >= r.e.maxTurns {
			return r.fail(ctx, fmt.Errorf("%w (%d turns)", types.ErrTurnLimit, r.turns))
		}
		if err := r.transcript.Validate(); err != nil {
			return r.fail(ctx, err)
		}

		comp, err := r.modelStep(ctx)
		if err != nil {
			return r.fail(ctx, err)
		}
		r.turns++
		r.sess.Usage.Add(comp.Usage)
		r.transcript = append(r.transcript, comp.Message())

		if !comp.HasToolCalls() {
			return r.finish(ctx, comp.Text)
		}

		// The assistant message and its open turn become durable before
		// any tool runs; a crash from here resumes through repair.
		r.pending = &types.PendingTurn{Calls: comp.ToolCalls}
		if err := r.checkpoint(ctx, types.SessionStateRunning); err != nil {
			return r.fail(ctx, err)
		}

		res, err := r.executeTurn(ctx, false)
		if err != nil {
			return r.fail(ctx, err)
		}
		if res != nil {
			return res, nil
		}
	}
}

// modelStep runs one completion through the pipeline. Model-phase failures
// are never contained: an exhausted completion call ends the session.
func (r *run) modelStep(ctx context.Context) (*ai.Completion, error) {
	step := &middleware.Step{
		Phase:       middleware.PhaseModel,
		Session:     r.sc,
		Transcript:  &r.transcript,
		PendingTurn: r.pending,
	}
	var comp *ai.Completion
	err := r.e.pipeline.Run(ctx, step, func(ctx context.Context, _ *middleware.Step) error {
		c, err := r.e.client.Complete(ctx, &ai.Request{
			Model:    r.e.model,
			System:   r.e.prompt,
			Messages: r.transcript,
			Tools:    r.e.tools.List(),
		})
		if err != nil {
			return err
		}
		comp = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("model step: %w", err)
	}
	if comp == nil {
		return nil, fmt.Errorf("model step halted by %s stage without a completion", step.HaltedBy())
	}
	return comp, nil
}

func (r *run) finish(ctx context.Context, text string) (*Result, error) {
	r.sess.FinalText = text
	r.pending = nil
	if err := r.checkpoint(ctx, types.SessionStateCompleted); err != nil {
		return nil, err
	}
	r.emit(ctx, events.EventTypeSessionCompleted, events.SeverityInfo,
		fmt.Sprintf("completed after %d turn(s)", r.turns))
	return &Result{
		Status:    types.SessionStateCompleted,
		FinalText: text,
		Usage:     r.sess.Usage,
	}, nil
}

// fail marks the session failed and surfaces the terminal cause. The
// checkpoint write is best-effort here; the previous step's checkpoint
// already guarantees a resumable-by-repair state.
func (r *run) fail(ctx context.Context, cause error) (*Result, error) {
	if err := r.checkpoint(ctx, types.SessionStateFailed); err != nil {
		fmt.Fprintf(os.Stderr, "failed to checkpoint failed session %s: %v\n", r.sess.ID, err)
	}
	r.emit(ctx, events.EventTypeSessionFailed, events.SeverityError, cause.Error())
	return &Result{Status: types.SessionStateFailed, Usage: r.sess.Usage}, cause
}

// checkpoint atomically persists the session row and a transcript snapshot.
// This is the durability boundary of a step.
func (r *run) checkpoint(ctx context.Context, state types.SessionState) error {
	r.sess.State = state
	cp := &types.Checkpoint{
		SessionID:  r.sess.ID,
		Transcript: r.transcript.Clone(),
		Pending:    r.pending,
	}
	if err := r.e.store.SaveCheckpoint(ctx, r.sess, cp); err != nil {
		return fmt.Errorf("failed to checkpoint session %s: %w", r.sess.ID, err)
	}
	return nil
}

// repairLoaded closes transcript debris right after a checkpoint load
func (r *run) repairLoaded(ctx context.Context) {
	for _, res := range middleware.Repair(&r.transcript, r.pending) {
		r.emitRepaired(ctx, res.CallID, res.Name)
	}
}

func (r *run) emit(ctx context.Context, t events.EventType, severity events.EventSeverity, msg string) {
	r.e.feed.EmitSimple(ctx, t, r.sess.ID, r.sc.Worker, severity, msg)
}

func (r *run) emitRepaired(ctx context.Context, callID, name string) {
	r.e.feed.EmitSimple(ctx, events.EventTypeToolRepaired, r.sess.ID, r.sc.Worker,
		events.SeverityWarning,
		fmt.Sprintf("closed abandoned tool call %s (%s) without executing it", callID, name))
}
