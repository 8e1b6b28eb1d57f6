// Package desk assembles the trading copilot from the module's parts:
// storage, model client, market data, worker registry, approval policy,
// and the supervisor engine. The CLI and the REPL talk to a Desk; nothing
// below this package knows how the pieces fit together.
package desk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tapedesk/tape/internal/ai"
	"github.com/tapedesk/tape/internal/approval"
	"github.com/tapedesk/tape/internal/config"
	"github.com/tapedesk/tape/internal/dispatch"
	"github.com/tapedesk/tape/internal/engine"
	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/market"
	"github.com/tapedesk/tape/internal/middleware"
	"github.com/tapedesk/tape/internal/retry"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/skills"
	"github.com/tapedesk/tape/internal/storage"
	"github.com/tapedesk/tape/internal/tools"
	"github.com/tapedesk/tape/internal/types"
)

// Config wires a Desk
type Config struct {
	// Settings is the loaded desk configuration
	Settings config.Config

	// Store persists everything; the caller owns its lifecycle
	Store storage.Storage

	// Client overrides the model client. Nil builds the production
	// Anthropic client, which requires an API key.
	Client ai.CompletionClient

	// Market overrides the candle provider. Nil follows
	// Settings.Market.Provider.
	Market market.Provider

	// Headlines overrides the news provider. Nil uses the deterministic
	// fixture provider.
	Headlines tools.HeadlinesProvider

	// SkillsDir holds skill documents; empty disables the skills stage
	SkillsDir string

	// ChartDir receives saved chart PNGs; empty disables saving
	ChartDir string

	// Effects is the shared side-effect counter for gated tools.
	// Nil disables counting (the tools accept a nil counter).
	Effects *tools.EffectCounter
}

// Desk is the assembled copilot: one per process, serving any number of
// sequential sessions over one store and one model client.
type Desk struct {
	cfg        config.Config
	store      storage.Storage
	feed       *events.Feed
	client     ai.CompletionClient
	market     market.Provider
	headlines  tools.HeadlinesProvider
	workers    *dispatch.Registry
	gate       *approval.Controller
	dispatcher *dispatch.Dispatcher
	skills     *skills.Stage
	supervisor *engine.Engine
	chartDir   string
	effects    *tools.EffectCounter

	mu          sync.Mutex
	workerLoops map[string]*engine.Engine
}

// New assembles a desk. The supervisor pipeline is containment, approval
// gate, dispatcher, skills (when configured), history repair. The gate and
// the dispatcher sit between the ordered pair the loop contract pins down.
func New(cfg Config) (*Desk, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Desk{
		cfg:         cfg.Settings,
		store:       cfg.Store,
		feed:        events.NewFeed(cfg.Store),
		market:      cfg.Market,
		headlines:   cfg.Headlines,
		chartDir:    cfg.ChartDir,
		effects:     cfg.Effects,
		workerLoops: make(map[string]*engine.Engine),
	}

	if d.market == nil {
		provider, err := buildMarket(cfg.Settings.Market)
		if err != nil {
			return nil, err
		}
		d.market = provider
	}
	if d.headlines == nil {
		d.headlines = &tools.FixtureHeadlines{Seed: 1}
	}

	d.client = cfg.Client
	if d.client == nil {
		client, err := ai.NewClient(ai.Config{
			Model:              cfg.Settings.API.Model,
			MaxTokens:          cfg.Settings.API.MaxTokens,
			Retry:              completionRetry(cfg.Settings.API),
			MaxConcurrentCalls: cfg.Settings.API.MaxConcurrentCalls,
			Feed:               d.feed,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create model client: %w", err)
		}
		d.client = client
	}

	if cfg.SkillsDir != "" {
		stage, err := skills.NewStage(cfg.SkillsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load skills: %w", err)
		}
		d.skills = stage
	}

	d.workers = dispatch.DefaultRegistry()
	d.gate = approval.NewController(DefaultPolicy(), d.store, d.feed)

	dispatcher, err := dispatch.New(dispatch.Config{
		Registry: d.workers,
		Runner:   &workerRunner{d: d},
		Store:    d.store,
		Feed:     d.feed,
		MaxDepth: cfg.Settings.Engine.MaxDelegationDepth,
	})
	if err != nil {
		return nil, err
	}
	d.dispatcher = dispatcher

	reg := tools.NewRegistry()
	for _, name := range supervisorTools {
		tool, err := d.buildTool(name)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(tool); err != nil {
			return nil, err
		}
	}

	stages := []middleware.Stage{middleware.NewContainment(), d.gate, d.dispatcher}
	if d.skills != nil {
		stages = append(stages, d.skills)
	}
	stages = append(stages, middleware.NewHistoryRepair())

	sup, err := engine.New(engine.Config{
		Client:       d.client,
		Pipeline:     middleware.New(stages...),
		Tools:        reg,
		Store:        d.store,
		Feed:         d.feed,
		SystemPrompt: supervisorPrompt,
		Model:        cfg.Settings.API.Model,
		MaxTurns:     cfg.Settings.Engine.MaxTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor engine: %w", err)
	}
	d.supervisor = sup
	return d, nil
}

// supervisorTools is the supervisor's direct tool surface. Chart work and
// news research live with the delegated workers; delegate_task and
// read_skill arrive through pipeline stages.
var supervisorTools = []string{
	"get_latest_candle",
	"get_active_signals",
	"calculate_position_size",
	"create_trading_signal",
	"update_trading_signal",
	"save_memory",
	"search_memory",
	"list_memories",
	"delete_memory",
}

func buildMarket(cfg config.MarketConfig) (market.Provider, error) {
	switch cfg.Provider {
	case "binance":
		return market.NewHTTPProvider(cfg.BaseURL, cfg.RateLimit, cfg.Timeout.Std()), nil
	case "synthetic":
		return market.NewSyntheticProvider(1), nil
	default:
		return nil, fmt.Errorf("unknown market provider %q (want binance or synthetic)", cfg.Provider)
	}
}

func completionRetry(cfg config.APIConfig) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = cfg.MaxAttempts
	p.BaseDelay = cfg.BaseBackoff.Std()
	p.MaxDelay = cfg.MaxBackoff.Std()
	return p
}

// buildTool maps a registry name to a wired tool instance
func (d *Desk) buildTool(name string) (tools.Tool, error) {
	switch name {
	case "get_latest_candle":
		return &tools.LatestCandleTool{Provider: d.market}, nil
	case "get_candles_around_date":
		return &tools.CandlesAroundTool{Provider: d.market}, nil
	case "get_indicator":
		return &tools.IndicatorTool{Provider: d.market}, nil
	case "generate_chart":
		return &tools.ChartTool{Provider: d.market, Dir: d.chartDir}, nil
	case "get_market_headlines":
		return &tools.HeadlinesTool{Provider: d.headlines}, nil
	case "get_active_signals":
		return &tools.ActiveSignalsTool{Store: d.store}, nil
	case "calculate_position_size":
		return &tools.PositionSizeTool{Trading: d.cfg.Trading}, nil
	case "create_trading_signal":
		return &tools.CreateSignalTool{Store: d.store, Feed: d.feed, Trading: d.cfg.Trading, Effects: d.effects}, nil
	case "update_trading_signal":
		return &tools.UpdateSignalTool{Store: d.store, Feed: d.feed, Effects: d.effects}, nil
	case "save_memory":
		return &tools.SaveMemoryTool{Store: d.store}, nil
	case "search_memory":
		return &tools.SearchMemoryTool{Store: d.store}, nil
	case "list_memories":
		return &tools.ListMemoriesTool{Store: d.store}, nil
	case "delete_memory":
		return &tools.DeleteMemoryTool{Store: d.store}, nil
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

// NewSession creates a supervisor session row and its ambient context,
// seeded from the trading configuration.
func (d *Desk) NewSession(ctx context.Context, title string) (*session.Context, error) {
	id := uuid.New().String()
	sess := &types.Session{
		ID:    id,
		Title: strings.TrimSpace(title),
		State: types.SessionStateRunning,
		Model: d.cfg.API.Model,
	}
	if err := d.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return d.contextFor(id, 0, ""), nil
}

func (d *Desk) contextFor(id string, depth int, worker string) *session.Context {
	sc := session.New(id)
	sc.Symbol = d.cfg.Trading.DefaultSymbol
	sc.Exchange = d.cfg.Trading.DefaultExchange
	sc.Interval = d.cfg.Trading.DefaultInterval
	sc.Profile = d.cfg.Trading.Profile
	sc.Depth = depth
	sc.Worker = worker
	return sc
}

// Run sends one user turn into the supervisor loop
func (d *Desk) Run(ctx context.Context, sc *session.Context, input string) (*engine.Result, error) {
	return d.supervisor.Run(ctx, sc, input)
}

// Resume continues a suspended or crashed supervisor session. Suspended
// delegations resume through the dispatcher's bookkeeping; callers always
// resume the root.
func (d *Desk) Resume(ctx context.Context, sessionID string) (*engine.Result, error) {
	sess, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if sess.ParentID != "" {
		return nil, fmt.Errorf("session %s is a delegated worker session; resume its root %s instead",
			sessionID, sess.ParentID)
	}
	return d.supervisor.Resume(ctx, d.contextFor(sess.ID, sess.Depth, sess.Worker))
}

// SubmitDecision records an approval verdict for a pending interrupt
func (d *Desk) SubmitDecision(ctx context.Context, interruptID string, decision types.Decision, reason string) (*types.InterruptRequest, error) {
	return d.gate.SubmitDecision(ctx, interruptID, decision, reason)
}

// PendingInterrupts lists a session's gates awaiting a decision. An empty
// session id lists every pending gate in the workspace.
func (d *Desk) PendingInterrupts(ctx context.Context, sessionID string) ([]*types.InterruptRequest, error) {
	if sessionID != "" {
		return d.gate.Pending(ctx, sessionID)
	}
	return d.store.ListInterrupts(ctx, types.InterruptFilter{PendingOnly: true})
}

// SetResolver installs an in-process decision source, letting interactive
// sessions answer gates at the prompt instead of suspending.
func (d *Desk) SetResolver(r approval.Resolver) {
	d.gate.SetResolver(r)
}

// Store exposes the backing storage for inventory commands
func (d *Desk) Store() storage.Storage {
	return d.store
}

// Feed exposes the activity feed emitter
func (d *Desk) Feed() *events.Feed {
	return d.feed
}

// Workers lists the registered delegation targets
func (d *Desk) Workers() []dispatch.Worker {
	return d.workers.List()
}
