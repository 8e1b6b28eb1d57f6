package desk

import (
	"context"
	"fmt"

	"github.com/tapedesk/tape/internal/ai"
	"github.com/tapedesk/tape/internal/dispatch"
	"github.com/tapedesk/tape/internal/engine"
	"github.com/tapedesk/tape/internal/middleware"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/tools"
)

// workerRunner adapts the engine to the dispatcher's Runner seam. Worker
// engines are built lazily and cached per worker id; an engine holds no
// per-run state, so concurrent delegations to one worker share it.
type workerRunner struct {
	d *Desk
}

func (r *workerRunner) Run(ctx context.Context, child *session.Context, w dispatch.Worker, task string) (*dispatch.Outcome, error) {
	eng, err := r.d.workerEngine(w)
	if err != nil {
		return nil, err
	}
	res, err := eng.Run(ctx, child, task)
	if err != nil {
		return nil, err
	}
	return outcomeFrom(res), nil
}

func (r *workerRunner) Resume(ctx context.Context, child *session.Context, w dispatch.Worker) (*dispatch.Outcome, error) {
	eng, err := r.d.workerEngine(w)
	if err != nil {
		return nil, err
	}
	res, err := eng.Resume(ctx, child)
	if err != nil {
		return nil, err
	}
	return outcomeFrom(res), nil
}

func outcomeFrom(res *engine.Result) *dispatch.Outcome {
	return &dispatch.Outcome{
		Status:    res.Status,
		FinalText: res.FinalText,
		Pending:   res.Pending,
	}
}

// workerEngine builds (or returns the cached) loop for one worker: the
// worker's declared tool subset, the restricted stage set, and the cheaper
// worker model. Workers get a dispatcher only when they explicitly allow
// further delegation; the depth ceiling still applies to the opt-in.
func (d *Desk) workerEngine(w dispatch.Worker) (*engine.Engine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if eng, ok := d.workerLoops[w.ID]; ok {
		return eng, nil
	}

	reg := tools.NewRegistry()
	for _, name := range w.Tools {
		tool, err := d.buildTool(name)
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", w.ID, err)
		}
		if err := reg.Register(tool); err != nil {
			return nil, fmt.Errorf("worker %s: %w", w.ID, err)
		}
	}

	stages := []middleware.Stage{middleware.NewContainment(), d.gate}
	if w.AllowDelegation {
		stages = append(stages, d.dispatcher)
	}
	if d.skills != nil {
		stages = append(stages, d.skills)
	}
	stages = append(stages, middleware.NewHistoryRepair())

	model := d.cfg.API.WorkerModel
	if model == "" {
		model = ai.WorkerModel()
	}
	eng, err := engine.New(engine.Config{
		Client:       d.client,
		Pipeline:     middleware.New(stages...),
		Tools:        reg,
		Store:        d.store,
		Feed:         d.feed,
		SystemPrompt: w.Prompt,
		Model:        model,
		MaxTurns:     d.cfg.Engine.WorkerMaxTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %w", w.ID, err)
	}
	d.workerLoops[w.ID] = eng
	return eng, nil
}
