package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedesk/tape/internal/retry"
	"github.com/tapedesk/tape/internal/types"
)

const cannedResponse = `{
	"id": "msg_test",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-5-20250929",
	"content": [{"type": "text", "text": "looks rangebound"}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 42, "output_tokens": 7}
}`

// fastPolicy retries immediately so failure-path tests stay quick
func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastPolicy(3)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestModelEnvOverrides(t *testing.T) {
	t.Setenv("TAPE_MODEL", "")
	t.Setenv("TAPE_WORKER_MODEL", "")
	assert.Equal(t, ModelSonnet, DefaultModel())
	assert.Equal(t, ModelHaiku, WorkerModel())

	t.Setenv("TAPE_MODEL", "claude-test-1")
	t.Setenv("TAPE_WORKER_MODEL", "claude-test-2")
	assert.Equal(t, "claude-test-1", DefaultModel())
	assert.Equal(t, "claude-test-2", WorkerModel())
}

func TestCompleteRoundTrip(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cannedResponse))
	}, Config{MaxConcurrentCalls: 2})

	comp, err := client.Complete(context.Background(), &Request{
		System:   "desk assistant",
		Messages: []types.Message{{Role: types.RoleUser, Content: "how does BTC look?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "looks rangebound", comp.Text)
	assert.Equal(t, StopEndTurn, comp.StopReason)
	assert.Equal(t, int64(42), comp.Usage.InputTokens)
	assert.Equal(t, int64(7), comp.Usage.OutputTokens)
	assert.Equal(t, int64(1), calls.Load())
}

func TestCompleteRetriesTransient(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"type":"overloaded_error","message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cannedResponse))
	}, Config{})

	comp, err := client.Complete(context.Background(), &Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "looks rangebound", comp.Text)
	assert.Equal(t, int64(2), calls.Load(), "first attempt 503, second succeeds")
}

func TestCompleteExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"type":"api_error","message":"internal server error"}}`, http.StatusInternalServerError)
	}, Config{Retry: fastPolicy(3)})

	_, err := client.Complete(context.Background(), &Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, retry.IsExhausted(err))
	assert.Equal(t, int64(3), calls.Load())
}

func TestCompleteDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`, http.StatusUnauthorized)
	}, Config{})

	_, err := client.Complete(context.Background(), &Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load(), "auth failures are not retried")

	// Auth failures must not poison the breaker
	assert.Equal(t, CircuitClosed, client.breaker.State())
}

func TestCompleteOpensBreaker(t *testing.T) {
	var calls atomic.Int64
	breaker := NewBreaker(2, 1, time.Minute)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"type":"api_error","message":"service unavailable"}}`, http.StatusServiceUnavailable)
	}, Config{Retry: fastPolicy(2), Breaker: breaker})

	_, err := client.Complete(context.Background(), &Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, breaker.State())

	// Next call fails fast without reaching the server
	before := calls.Load()
	_, err = client.Complete(context.Background(), &Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, calls.Load())

	require.Error(t, client.HealthCheck(context.Background()))
}

func TestHealthCheckWhenClosed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cannedResponse))
	}, Config{})
	require.NoError(t, client.HealthCheck(context.Background()))
}
