package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    8 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0,
	}
}

// TestDoTransientThenSuccess tests that N transient failures followed by a
// success yield exactly N+1 attempts
func TestDoTransientThenSuccess(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		t.Run(fmt.Sprintf("%d failures", n), func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
				attempts++
				if attempts <= n {
					return errors.New("503 service unavailable")
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, n+1, attempts)
		})
	}
}

// TestDoExhaustsBudget tests promotion of the last transient error to Exhausted
func TestDoExhaustsBudget(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), "flaky", fastPolicy(), func(ctx context.Context) error {
		attempts++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.True(t, IsExhausted(err))
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Contains(t, err.Error(), "connection reset")

	var ex *Exhausted
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, "flaky", ex.Op)
	assert.Equal(t, 4, ex.Attempts)
}

// TestDoNeverRetriesNonTransient tests that validation and fatal errors
// return immediately with a single attempt
func TestDoNeverRetriesNonTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"auth is fatal", errors.New("401 unauthorized")},
		{"bad request is validation", errors.New("400 bad request")},
		{"unknown is fatal", errors.New("mysterious failure")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
				attempts++
				return tt.err
			})
			assert.Equal(t, 1, attempts)
			assert.Equal(t, tt.err, err)
			assert.False(t, IsExhausted(err))
		})
	}
}

// TestDelayMonotonic tests that the pre-jitter backoff series never decreases
// and caps at MaxDelay
func TestDelayMonotonic(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, Jitter: 0}

	var prev time.Duration
	for attempt := 0; attempt < 10; attempt++ {
		d := Delay(p, attempt)
		assert.GreaterOrEqual(t, d, prev, "delay must not decrease at attempt %d", attempt)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
	assert.Equal(t, time.Second, Delay(p, 0))
	assert.Equal(t, 2*time.Second, Delay(p, 1))
	assert.Equal(t, 4*time.Second, Delay(p, 2))
	assert.Equal(t, 30*time.Second, Delay(p, 5))
}

// TestDelayJitterBounds tests that jitter stays within its declared fraction
func TestDelayJitterBounds(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, Jitter: 0.25}

	for attempt := 0; attempt < 6; attempt++ {
		base := Delay(Policy{BaseDelay: p.BaseDelay, MaxDelay: p.MaxDelay, Multiplier: p.Multiplier}, attempt)
		for i := 0; i < 50; i++ {
			d := Delay(p, attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.LessOrEqual(t, d, base+time.Duration(float64(base)*p.Jitter))
		}
	}
}

// TestDoHonorsWaitHint tests that a server-suggested wait floors the backoff
func TestDoHonorsWaitHint(t *testing.T) {
	p := fastPolicy()
	p.Classify = func(err error) (Class, time.Duration) {
		return ClassTransient, 20 * time.Millisecond
	}

	attempts := 0
	start := time.Now()
	err := Do(context.Background(), "hinted", p, func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("429 rate limited")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

// TestDoContextCancellation tests that cancellation aborts the backoff wait
func TestDoContextCancellation(t *testing.T) {
	p := fastPolicy()
	p.BaseDelay = time.Minute
	p.MaxDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, "slow", p, func(ctx context.Context) error {
			return errors.New("503 service unavailable")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

// TestDoAttemptTimeout tests that per-attempt deadlines classify as transient
func TestDoAttemptTimeout(t *testing.T) {
	p := fastPolicy()
	p.AttemptTimeout = 5 * time.Millisecond

	attempts := 0
	err := Do(context.Background(), "hang", p, func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

// TestDefaultClassifier tests the declared error-class mapping
func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Class
	}{
		{"nil", nil, ClassFatal},
		{"deadline exceeded", context.DeadlineExceeded, ClassTransient},
		{"canceled", context.Canceled, ClassFatal},
		{"rate limit", errors.New("HTTP 429: rate limit exceeded"), ClassTransient},
		{"overloaded", errors.New("overloaded_error: try later"), ClassTransient},
		{"internal server error", errors.New("500 internal server error"), ClassTransient},
		{"bad gateway", errors.New("502 bad gateway"), ClassTransient},
		{"service unavailable", errors.New("service unavailable (503)"), ClassTransient},
		{"gateway timeout", errors.New("504 gateway timeout"), ClassTransient},
		{"connection refused", errors.New("dial tcp: connection refused"), ClassTransient},
		{"network timeout", errors.New("request timeout"), ClassTransient},
		{"unauthorized", errors.New("401 unauthorized"), ClassFatal},
		{"forbidden", errors.New("HTTP 403: forbidden"), ClassFatal},
		{"bad request", errors.New("HTTP 400: bad request"), ClassValidation},
		{"unprocessable", errors.New("422 unprocessable entity"), ClassValidation},
		{"unknown", errors.New("something odd"), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, _ := DefaultClassifier(tt.err)
			assert.Equal(t, tt.expected, class)
		})
	}
}

// TestClassStringer tests Class.String()
func TestClassStringer(t *testing.T) {
	assert.Equal(t, "TRANSIENT", ClassTransient.String())
	assert.Equal(t, "VALIDATION", ClassValidation.String())
	assert.Equal(t, "FATAL", ClassFatal.String())
	assert.Equal(t, "UNKNOWN", Class(99).String())
}
