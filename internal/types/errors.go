package types

import (
	"errors"
	"fmt"
)

// Terminal conditions. These are the only failures allowed to abort a
// conversation loop; everything else is contained as a ToolResult failure.
var (
	// ErrTranscriptCorrupt marks a structural invariant violation. Always a
	// programming-level bug; never silently repaired beyond the dangling-call
	// rule in the repair stage.
	ErrTranscriptCorrupt = errors.New("transcript structurally invalid")

	// ErrDepthExceeded marks a delegation chain that hit the recursion ceiling
	ErrDepthExceeded = errors.New("delegation depth exceeded")

	// ErrTurnLimit marks a loop that ran past its configured turn ceiling
	ErrTurnLimit = errors.New("conversation turn limit reached")
)

// DepthExceeded wraps ErrDepthExceeded with the observed depth and ceiling
func DepthExceeded(depth, limit int) error {
	return fmt.Errorf("delegation depth %d exceeds limit %d: %w", depth, limit, ErrDepthExceeded)
}

// IsTerminal reports whether err must abort the loop instead of being
// contained as a structured ToolResult failure.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrTranscriptCorrupt) ||
		errors.Is(err, ErrDepthExceeded) ||
		errors.Is(err, ErrTurnLimit)
}

// ValidationError marks malformed tool arguments. Never retried; contained
// as a validation-kind ToolResult failure.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// NewValidationError builds a ValidationError for the given tool
func NewValidationError(tool, format string, args ...interface{}) error {
	return &ValidationError{Tool: tool, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err (anywhere in its chain) is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// FailureFrom converts an execution error into the structured descriptor
// surfaced to the model. Terminal errors must be checked before calling this.
func FailureFrom(err error) *Failure {
	if err == nil {
		return nil
	}
	if IsValidation(err) {
		return &Failure{Kind: KindValidation, Message: err.Error()}
	}
	return &Failure{Kind: KindFatal, Message: err.Error()}
}
