package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/tapedesk/tape/internal/market"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/types"
)

// Headline is one market news item
type Headline struct {
	Time   time.Time
	Source string
	Title  string
}

// HeadlinesProvider serves recent market news for a symbol
type HeadlinesProvider interface {
	Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error)
}

// FixtureHeadlines serves deterministic generated headlines, the news
// counterpart of the synthetic candle provider: offline runs and tests get
// stable, plausible material to reason over.
type FixtureHeadlines struct {
	Seed int64

	// Now supplies the clock; defaults to time.Now
	Now func() time.Time
}

var headlineSources = []string{"Reuters", "Bloomberg", "CoinDesk", "The Block", "FT"}

var headlineTemplates = []string{
	"%s futures open interest climbs as funding turns positive",
	"Spot %s ETF logs third straight session of net inflows",
	"%s options market prices in wider moves ahead of CPI print",
	"Miners trim %s reserves as hash price compresses",
	"Derivatives desks report renewed institutional interest in %s",
	"%s perpetual funding flips negative on profit taking",
	"On-chain activity for %s hits a six-week high",
	"Large %s holder consolidates positions, exchange balances fall",
}

// Headlines implements HeadlinesProvider. Items are keyed by (seed, symbol,
// day, slot) so repeated queries in one session return identical material.
func (p *FixtureHeadlines) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sym := market.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > len(headlineTemplates) {
		limit = len(headlineTemplates)
	}

	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now().UTC()
	}
	day := now.Format("2006-01-02")
	base := strings.TrimSuffix(strings.TrimSuffix(sym, "USDT"), "USD")
	if base == "" {
		base = sym
	}

	out := make([]Headline, 0, limit)
	for i := 0; i < limit; i++ {
		h := fnv.New64a()
		fmt.Fprintf(h, "%d|%s|%s|%d", p.Seed, sym, day, i)
		pick := h.Sum64()
		tmpl := headlineTemplates[pick%uint64(len(headlineTemplates))]
		source := headlineSources[(pick/7)%uint64(len(headlineSources))]
		age := time.Duration(1+pick%36) * 20 * time.Minute
		out = append(out, Headline{
			Time:   now.Add(-age),
			Source: source,
			Title:  fmt.Sprintf(tmpl, base),
		})
	}
	return out, nil
}

// HeadlinesTool surfaces recent market news to the fundamental analyst
type HeadlinesTool struct {
	Provider HeadlinesProvider
}

func (t *HeadlinesTool) Name() string { return "get_market_headlines" }

func (t *HeadlinesTool) Description() string {
	return "Fetches recent market headlines for a symbol. Use to ground " +
		"fundamental analysis in current narratives; combine with price " +
		"action before drawing conclusions."
}

func (t *HeadlinesTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"symbol": Prop("string", "Asset symbol. Defaults to the session symbol."),
		"limit":  Prop("integer", "Maximum headlines. Default 5."),
	})
}

func (t *HeadlinesTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Symbol string `json:"symbol"`
		Limit  int    `json:"limit"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	symbol, _, _ := marketScope(sc, in.Symbol, "", "")
	if symbol == "" {
		return nil, types.NewValidationError(t.Name(), "symbol is required (no session default set)")
	}

	headlines, err := t.Provider.Headlines(ctx, symbol, in.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetching headlines: %w", err)
	}
	if len(headlines) == 0 {
		return Text("No recent headlines for %s.", symbol), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent headlines for %s:\n\n", symbol)
	for _, h := range headlines {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", h.Time.Format("2006-01-02 15:04"), h.Source, h.Title)
	}
	return &Result{Content: b.String()}, nil
}
