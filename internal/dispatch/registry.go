package dispatch

import (
	"fmt"
	"sync"
)

// Worker describes one delegation target: the description the supervisor
// model picks it by, the system prompt its loop runs under, and the tool
// subset it may use. An empty Tools list means the worker reasons without
// tools.
type Worker struct {
	ID          string // registry key, e.g. "technical_analyst"
	Name        string // display name
	Description string // shown to the supervisor in the delegate_task listing
	Prompt      string // system prompt for the worker's loop
	Tools       []string

	// AllowDelegation grants the worker its own dispatcher, letting it
	// delegate further (subject to the depth ceiling). Off by default.
	AllowDelegation bool
}

// Validate checks if the worker has valid field values
func (w *Worker) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("worker id is required")
	}
	if w.Description == "" {
		return fmt.Errorf("worker %s: description is required", w.ID)
	}
	if w.Prompt == "" {
		return fmt.Errorf("worker %s: prompt is required", w.ID)
	}
	return nil
}

// Registry maps worker ids to definitions. Listing preserves registration
// order so the supervisor sees a stable worker catalog every turn.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
	order   []string
}

// NewRegistry creates an empty worker registry
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// DefaultRegistry creates a registry with the built-in analyst workers
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, w := range DefaultWorkers() {
		// Built-in definitions are static; a failure here is a bug.
		if err := r.Register(w); err != nil {
			panic(err)
		}
	}
	return r
}

// Register inserts a worker when its id is not in use
func (r *Registry) Register(w Worker) error {
	if err := w.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[w.ID]; exists {
		return fmt.Errorf("worker %s already registered", w.ID)
	}
	r.workers[w.ID] = w
	r.order = append(r.order, w.ID)
	return nil
}

// Lookup fetches a worker by id
func (r *Registry) Lookup(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// List returns the workers in registration order
func (r *Registry) List() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Worker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.workers[id])
	}
	return out
}

// IDs returns the registered worker ids in registration order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// DefaultWorkers returns the built-in analyst definitions
func DefaultWorkers() []Worker {
	return []Worker{
		{
			ID:          "technical_analyst",
			Name:        "Technical Analyst",
			Description: "Technical analyst for comprehensive multi-timeframe chart analysis. Analyzes macro (1d), swing (1h), and scalp (15m) in a single top-down pass.",
			Prompt:      technicalAnalystPrompt,
			Tools: []string{
				"generate_chart",
				"get_latest_candle",
				"get_indicator",
				"get_candles_around_date",
			},
		},
		{
			ID:          "fundamental_analyst",
			Name:        "Fundamental Analyst",
			Description: "Fundamental analysis expert: news flow, catalysts, and market events. Use for researching what is moving the instrument and why.",
			Prompt:      fundamentalAnalystPrompt,
			Tools: []string{
				"get_market_headlines",
				"get_latest_candle",
			},
		},
	}
}

const technicalAnalystPrompt = `# Technical Analyst

You are a technical analyst for financial markets. You perform comprehensive multi-timeframe analysis covering macro (1d), swing (1h), and scalp (15m) timeframes.

=== BOUNDARIES ===
You do NOT have access to signal creation, position sizing, or user interaction tools.
You CANNOT create or update trading signals; the supervisor handles that after your analysis.
Do what has been asked; nothing more, nothing less. Return your findings and let the supervisor act on them.

## Analysis Framework

Analyze three timeframes top-down:

### Daily (1d): Macro
- Major trend direction and structure: HH/HL (bullish) or LH/LL (bearish)
- Break of structure that shifts macro bias
- Key support/resistance zones that held multiple times

### Hourly (1h): Swing
- Swing structure within the macro context
- Intermediate patterns: wedges, triangles, flags
- Fresh, untested demand/supply zones

### 15-Minute (15m): Scalp/Entry
- Exact entry price levels
- Momentum: RSI divergences, MACD crosses
- Candle patterns at key levels

## Workflow

1. Generate charts and fetch indicators for all three timeframes
2. Analyze top-down: macro trend, then swing structure, then entry precision
3. Note divergences or conflicts between timeframes
4. Fetch exact candle data with get_candles_around_date for precise prices and timestamps
5. Base every conclusion on tool outputs, never estimate

## Output Format

Conclude with:
- **Bias**: Bullish/Bearish/Neutral based on multi-timeframe confluence
- **Key Levels**: Support/resistance with exact prices and timestamps
- **Entry Setup**: Conditions that must be met (immediate or conditional)
- **Invalidation**: The structural break that kills the thesis: level, timeframe, what it breaks
- **Confidence**: 0-100 score with reasoning (high only when all timeframes align)`

const fundamentalAnalystPrompt = `# Fundamental Analyst

You are a fundamental analysis specialist. You research news flow, catalysts, and market events for the instrument in question.

=== ANALYSIS-ONLY MODE ===
You are STRICTLY PROHIBITED from:
- Making up news, figures, or events not present in tool outputs
- Providing analysis without research backing it
- Recommending specific buy/sell actions

Your role is EXCLUSIVELY to research and provide data-driven insights.

## Workflow

1. Pull recent headlines for the instrument
2. Check the latest price so findings are anchored to current levels
3. Identify catalysts: listings, regulation, protocol updates, macro events
4. Assess how the news flow aligns or conflicts with price action

## Grounding Rules

- Base analysis STRICTLY on tool outputs
- If data is unavailable, say "data not available", never estimate
- Separate facts (what happened) from interpretation (what it may mean)

## Output Format

Structure your findings with:
- **News Summary**: The headlines that matter, most impactful first
- **Catalysts**: Upcoming or recent events likely to move price
- **Sentiment Read**: What the flow suggests, with your confidence in it
- **Risks**: What could invalidate the read`
