package ai

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/retry"
)

// Config holds production client configuration
type Config struct {
	// APIKey is the Anthropic key; empty reads ANTHROPIC_API_KEY
	APIKey string

	// BaseURL overrides the API endpoint (proxies, testing)
	BaseURL string

	// Model is the default model when a request does not name one
	Model string

	// MaxTokens is the default completion cap (default: 4096)
	MaxTokens int

	// Retry is the per-call retry policy; zero value uses DefaultPolicy
	// with a 60s attempt timeout
	Retry retry.Policy

	// MaxConcurrentCalls caps in-flight completions across every loop in
	// the process (0 = unlimited)
	MaxConcurrentCalls int

	// Breaker guards the API; nil installs a default (5 failures to open,
	// 2 probe successes to close, 30s open timeout)
	Breaker *Breaker

	// Feed receives circuit breaker transition events (optional)
	Feed *events.Feed
}

// Client is the production CompletionClient on the Anthropic SDK. One
// instance serves every loop in the process; the breaker and the
// concurrency cap are deliberately process-wide.
type Client struct {
	api       *anthropic.Client
	model     string
	maxTokens int
	policy    retry.Policy
	classify  retry.Classifier
	breaker   *Breaker
	sem       *semaphore.Weighted
	feed      *events.Feed
}

var _ CompletionClient = (*Client)(nil)

// NewClient creates the production client
func NewClient(cfg Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	// SDK-internal retries are disabled: the retry policy here is the only
	// retry layer, so the classifier and the breaker see every attempt.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	api := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
		policy.AttemptTimeout = 60 * time.Second
	}
	if policy.Classify == nil {
		policy.Classify = Classify
	}
	classify := policy.Classify

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewBreaker(5, 2, 30*time.Second)
	}

	var sem *semaphore.Weighted
	if cfg.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}

	c := &Client{
		api:       &api,
		model:     model,
		maxTokens: maxTokens,
		policy:    policy,
		classify:  classify,
		breaker:   breaker,
		sem:       sem,
		feed:      cfg.Feed,
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = c.retryScheduled
	}
	breaker.Notify(c.breakerChanged)
	return c, nil
}

// Complete runs one completion through the concurrency cap, the breaker,
// and the retry policy.
func (c *Client) Complete(ctx context.Context, req *Request) (*Completion, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("failed to acquire completion slot: %w", err)
		}
		defer c.sem.Release(1)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = int64(c.maxTokens)
	}
	params := buildParams(req, model, maxTokens)

	var comp *Completion
	err := retry.Do(ctx, "completion", c.policy, func(ctx context.Context) error {
		if err := c.breaker.Allow(); err != nil {
			return err
		}
		msg, err := c.api.Messages.New(ctx, params)
		if err != nil {
			// Only transient failures count against the breaker; an auth
			// or validation error says nothing about API health.
			if class, _ := c.classify(err); class == retry.ClassTransient {
				c.breaker.RecordFailure()
			}
			return err
		}
		c.breaker.RecordSuccess()
		comp = parseMessage(msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// HealthCheck reports whether the client can take calls right now
func (c *Client) HealthCheck(ctx context.Context) error {
	state, failures, _ := c.breaker.Metrics()
	if state == CircuitOpen {
		return fmt.Errorf("model client unavailable: %w (failures=%d)", ErrCircuitOpen, failures)
	}
	return nil
}

func (c *Client) retryScheduled(attempt int, delay time.Duration, err error) {
	event, buildErr := events.NewModelRetryEvent("", "",
		fmt.Sprintf("completion attempt %d/%d failed, retrying in %v", attempt, c.policy.MaxAttempts, delay),
		events.ModelRetryData{
			Attempt:     attempt,
			MaxAttempts: c.policy.MaxAttempts,
			DelayMs:     delay.Milliseconds(),
			Error:       err.Error(),
		})
	if buildErr == nil {
		c.feed.Emit(context.Background(), event)
	}
}

func (c *Client) breakerChanged(from, to CircuitState, failures int) {
	severity := events.SeverityInfo
	if to == CircuitOpen {
		severity = events.SeverityWarning
	}
	msg := fmt.Sprintf("circuit breaker %s -> %s (failures=%d)", from, to, failures)
	fmt.Fprintf(os.Stderr, "%s\n", msg)
	c.feed.EmitSimple(context.Background(), events.EventTypeCircuitBreakerStateChange, "", "", severity, msg)
}
