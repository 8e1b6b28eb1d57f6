package middleware

import (
	"context"

	"github.com/tapedesk/tape/internal/types"
)

// Containment is the outermost stage. Its After hook converts failures
// raised anywhere inside the step (inner stages, the executor, recovered
// panics) into structured ToolResult failures, so the loop keeps going
// with the model informed instead of dying on the first bad tool call.
//
// Three kinds of failure are never contained: transcript corruption and the
// delegation depth ceiling (structural, the loop must abort), and
// model-phase failures (there is no tool result to carry them; an exhausted
// completion call ends the session).
type Containment struct{}

// NewContainment creates the containment stage
func NewContainment() *Containment {
	return &Containment{}
}

func (c *Containment) Name() string { return "containment" }

// Before passes through; containment only acts on the way out
func (c *Containment) Before(ctx context.Context, step *Step) (Verdict, error) {
	return Continue, nil
}

// After converts a non-terminal tool-phase error into the step's Result
func (c *Containment) After(ctx context.Context, step *Step) error {
	if step.Err == nil {
		return nil
	}
	if types.IsTerminal(step.Err) {
		return nil
	}
	if step.Phase != PhaseTool || step.Call == nil {
		return nil
	}

	step.Result = &types.ToolResult{
		CallID:  step.Call.ID,
		Name:    step.Call.Name,
		Failure: types.FailureFrom(step.Err),
	}
	step.Err = nil
	return nil
}
