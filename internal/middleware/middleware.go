// Package middleware composes the conversation loop's cross-cutting stages
// into an ordered pipeline. Stages wrap every step as an explicit list:
// Before hooks run outermost-first, After hooks unwind innermost-first,
// rather than as nested closures, so the composition order is something the
// assembly can read, reorder, and test. Order is a hard contract: error
// containment outermost, history repair innermost.
package middleware

import (
	"context"
	"fmt"

	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/tools"
	"github.com/tapedesk/tape/internal/types"
)

// Phase says which unit of loop work a step carries
type Phase string

const (
	// PhaseModel is one completion call: transcript in, assistant message out
	PhaseModel Phase = "model"
	// PhaseTool is the execution of one proposed tool call
	PhaseTool Phase = "tool"
)

// Step is the unit of work flowing through the pipeline. Model-phase steps
// carry the transcript; tool-phase steps carry one call and collect either
// a result, a pending interrupt, or an error for the containment stage.
type Step struct {
	Phase   Phase
	Session *session.Context

	// Transcript points at the loop's history (model phase only). Stages
	// mutate it on the loop goroutine; the loop stays the single writer.
	Transcript *types.Transcript

	// PendingTurn is the suspended mid-turn remainder when resuming; repair
	// uses it to tell abandoned calls from ones the resume will resolve.
	PendingTurn *types.PendingTurn

	// Call is the tool call being executed (tool phase only)
	Call *types.ToolCall

	// Result is the call's outcome, set by the executor or by a stage
	Result *types.ToolResult

	// Pending is set by the approval gate when the call needs a human
	// decision; the step halts without executing and the loop suspends.
	Pending *types.InterruptRequest

	// Err is a failure raised by a stage or the executor. The containment
	// stage converts non-terminal tool-phase errors into Result failures.
	Err error

	haltedBy string
}

// Halted reports whether a Before hook short-circuited this step
func (s *Step) Halted() bool { return s.haltedBy != "" }

// HaltedBy returns the name of the stage that short-circuited the step
func (s *Step) HaltedBy() string { return s.haltedBy }

// Verdict is a Before hook's decision about the rest of the step
type Verdict int

const (
	// Continue hands the step to the next inner stage
	Continue Verdict = iota
	// Halt skips the remaining inner stages and the executor. After hooks
	// of every stage already entered still run.
	Halt
)

// Stage is one pipeline layer. Tool-phase steps run concurrently, so a
// stage must be safe for concurrent use.
type Stage interface {
	Name() string
	Before(ctx context.Context, step *Step) (Verdict, error)
	After(ctx context.Context, step *Step) error
}

// ToolProvider is implemented by stages that contribute tools to the loop
// (the dispatcher's delegate_task, the skills stage's read_skill)
type ToolProvider interface {
	Tools() []tools.Tool
}

// PromptDecorator is implemented by stages that extend the system prompt
type PromptDecorator interface {
	DecoratePrompt(base string) string
}

// Executor runs the step's actual work once every Before hook allowed it
type Executor func(ctx context.Context, step *Step) error

// Pipeline is the ordered stage list, outermost first
type Pipeline struct {
	stages []Stage
}

// New builds a pipeline from outermost to innermost stage
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the ordered stage list
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Tools collects the tools contributed by ToolProvider stages, in stage order
func (p *Pipeline) Tools() []tools.Tool {
	var out []tools.Tool
	for _, stage := range p.stages {
		if tp, ok := stage.(ToolProvider); ok {
			out = append(out, tp.Tools()...)
		}
	}
	return out
}

// DecoratePrompt threads the system prompt through every PromptDecorator
// stage, outermost first
func (p *Pipeline) DecoratePrompt(base string) string {
	prompt := base
	for _, stage := range p.stages {
		if pd, ok := stage.(PromptDecorator); ok {
			prompt = pd.DecoratePrompt(prompt)
		}
	}
	return prompt
}

// Run drives one step: Before hooks outer to inner, the executor, then After
// hooks inner to outer for every stage whose Before ran. A Halt verdict or a
// Before error skips the remaining inner stages and the executor. Executor
// panics are recovered into step.Err so a misbehaving tool cannot take down
// the loop. The returned error is whatever failure survived the After chain;
// a contained failure comes back as nil with step.Result carrying it.
func (p *Pipeline) Run(ctx context.Context, step *Step, exec Executor) error {
	entered := 0
	for _, stage := range p.stages {
		verdict, err := stage.Before(ctx, step)
		entered++
		if err != nil {
			step.Err = err
			break
		}
		if verdict == Halt {
			step.haltedBy = stage.Name()
			break
		}
	}

	if step.Err == nil && !step.Halted() && exec != nil {
		p.execute(ctx, step, exec)
	}

	for i := entered - 1; i >= 0; i-- {
		if err := p.stages[i].After(ctx, step); err != nil {
			step.Err = err
		}
	}
	return step.Err
}

func (p *Pipeline) execute(ctx context.Context, step *Step, exec Executor) {
	defer func() {
		if r := recover(); r != nil {
			step.Err = fmt.Errorf("panic in %s: %v", stepLabel(step), r)
		}
	}()
	if err := exec(ctx, step); err != nil {
		step.Err = err
	}
}

func stepLabel(step *Step) string {
	if step.Phase == PhaseTool && step.Call != nil {
		return "tool " + step.Call.Name
	}
	return string(step.Phase) + " step"
}
