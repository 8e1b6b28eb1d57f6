// Package retry wraps a single external call with a classify-and-backoff
// policy. Only transient failures are retried; validation and fatal
// failures return immediately, and exhausting the attempt budget promotes
// the last transient error to a fatal one via Exhausted.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"
)

// Class is the declared classification of a call failure
type Class int

const (
	ClassTransient  Class = iota // Retryable: timeouts, 5xx, rate limits
	ClassValidation              // Never retried: malformed arguments
	ClassFatal                   // Never retried: auth failures, unexpected errors
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "TRANSIENT"
	case ClassValidation:
		return "VALIDATION"
	case ClassFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Classifier maps an error to its class plus an optional server-suggested
// wait (e.g. from a Retry-After header). A zero wait means use the backoff
// schedule. The mapping is declared, never inferred from retry outcomes.
type Classifier func(error) (Class, time.Duration)

// Policy holds the retry configuration for one call site
type Policy struct {
	MaxAttempts    int           // Total attempts including the first (default: 4)
	BaseDelay      time.Duration // First backoff delay (default: 1s)
	MaxDelay       time.Duration // Backoff cap (default: 30s)
	Multiplier     float64       // Backoff growth factor (default: 2.0)
	Jitter         float64       // Random fraction of the delay added on top, in [0, 1) (default: 0.1)
	AttemptTimeout time.Duration // Per-attempt timeout, 0 = none
	Classify       Classifier    // Defaults to DefaultClassifier

	// OnRetry observes each rescheduled attempt just before the backoff
	// wait: the 1-based attempt that failed, the chosen delay, and the
	// error. Observation only; it cannot alter the schedule.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Exhausted wraps the last transient error once the attempt budget is spent.
// Downstream containment treats it as fatal.
type Exhausted struct {
	Op       string
	Attempts int
	Last     error
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *Exhausted) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err is a spent retry budget
func IsExhausted(err error) bool {
	var ex *Exhausted
	return errors.As(err, &ex)
}

// Do executes fn under the policy. Each call site gets its own attempt
// budget; concurrent calls never share one. The context is checked before
// every attempt and during every backoff wait.
func Do(ctx context.Context, op string, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy().BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy().MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultPolicy().Multiplier
	}
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", op, err)
		}

		attemptCtx := ctx
		cancel := func() {}
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 0 {
				fmt.Fprintf(os.Stderr, "%s succeeded after %d retries\n", op, attempt)
			}
			return nil
		}
		lastErr = err

		class, wait := classify(err)
		if class != ClassTransient {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := Delay(p, attempt)
		if wait > delay {
			delay = wait
		}
		fmt.Fprintf(os.Stderr, "%s failed (attempt %d/%d), retrying in %v: %v\n",
			op, attempt+1, p.MaxAttempts, delay, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
		}
	}

	return &Exhausted{Op: op, Attempts: p.MaxAttempts, Last: lastErr}
}

// Delay computes the backoff before attempt+1: base * multiplier^attempt
// plus a random jitter fraction, capped at MaxDelay before jitter. The
// pre-jitter series is monotonically non-decreasing up to the cap.
func Delay(p Policy, attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// DefaultClassifier is the declared baseline mapping: context deadline and
// network timeouts are transient, cancellation and everything unrecognized
// is fatal, and well-known HTTP status substrings classify the rest. Call
// sites with typed errors (API clients, tool executors) layer their own
// classifier on top.
func DefaultClassifier(err error) (Class, time.Duration) {
	if err == nil {
		return ClassFatal, 0
	}
	if errors.Is(err, context.Canceled) {
		return ClassFatal, 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient, 0
	}

	errStr := strings.ToLower(err.Error())

	// Rate limits and server errors are transient
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "overloaded") {
		return ClassTransient, 0
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return ClassTransient, 0
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") {
		return ClassTransient, 0
	}

	// Auth failures are fatal, malformed requests are validation
	if strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "forbidden") {
		return ClassFatal, 0
	}
	if strings.Contains(errStr, "400") || strings.Contains(errStr, "422") ||
		strings.Contains(errStr, "bad request") || strings.Contains(errStr, "invalid request") {
		return ClassValidation, 0
	}

	return ClassFatal, 0
}
