package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tapedesk/tape/internal/market"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/types"
)

const candleTimeLayout = "2006-01-02T15:04:05"

// marketScope resolves the symbol/exchange/interval a market tool should
// use: explicit arguments win, the session's ambient parameters fill gaps.
func marketScope(sc *session.Context, symbol, exchange, interval string) (string, string, string) {
	if symbol == "" && sc != nil {
		symbol = sc.Symbol
	}
	if exchange == "" && sc != nil {
		exchange = sc.Exchange
	}
	if exchange == "" {
		exchange = "binance"
	}
	if interval == "" && sc != nil {
		interval = sc.Interval
	}
	if interval == "" {
		interval = "4h"
	}
	return market.NormalizeSymbol(symbol), exchange, interval
}

// LatestCandleTool reports the newest 5m bar for a quick price check
type LatestCandleTool struct {
	Provider market.Provider
}

func (t *LatestCandleTool) Name() string { return "get_latest_candle" }

func (t *LatestCandleTool) Description() string {
	return "Fetches the current price (latest 5m candle) for a symbol. " +
		"Use for quick price checks before signal creation; the close is the " +
		"natural entry suggestion. Faster than generate_chart when you only " +
		"need the current price."
}

func (t *LatestCandleTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"symbol":   Prop("string", "Asset symbol (e.g. 'BTCUSDT'). Defaults to the session symbol."),
		"exchange": Prop("string", "Exchange name. Defaults to the session exchange."),
	})
}

func (t *LatestCandleTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Symbol   string `json:"symbol"`
		Exchange string `json:"exchange"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	symbol, exchange, _ := marketScope(sc, in.Symbol, in.Exchange, "")
	if symbol == "" {
		return nil, types.NewValidationError(t.Name(), "symbol is required (no session default set)")
	}

	c, err := t.Provider.LatestCandle(ctx, symbol, exchange)
	if err != nil {
		return nil, fmt.Errorf("fetching latest candle: %w", err)
	}

	return Text("Latest candle for %s on %s:\n- Open: %.2f\n- High: %.2f\n- Low: %.2f\n- Close: %.2f\n- Volume: %.2f\n- Timestamp: %s",
		symbol, exchange, c.Open, c.High, c.Low, c.Close, c.Volume, c.OpenTime.Format(candleTimeLayout)), nil
}

// CandlesAroundTool fetches the bars surrounding a specific date for exact
// price lookup after visual chart analysis
type CandlesAroundTool struct {
	Provider market.Provider
}

func (t *CandlesAroundTool) Name() string { return "get_candles_around_date" }

func (t *CandlesAroundTool) Description() string {
	return "Fetches candles around a specific date for precise price lookup. " +
		"Use after visual chart analysis to pin exact support/resistance " +
		"levels. Never estimate dates; derive them from the chart. For the " +
		"current price use get_latest_candle instead."
}

func (t *CandlesAroundTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"symbol":   Prop("string", "Asset symbol. Defaults to the session symbol."),
		"interval": Prop("string", "Candle interval (e.g. '1h', '4h', '1d'). Defaults to the session interval."),
		"exchange": Prop("string", "Exchange name. Defaults to the session exchange."),
		"date":     Prop("string", "Target date: 'YYYY-MM-DD' or 'YYYY-MM-DDTHH:MM:SS'."),
	}, "date")
}

func (t *CandlesAroundTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
		Exchange string `json:"exchange"`
		Date     string `json:"date"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	symbol, exchange, interval := marketScope(sc, in.Symbol, in.Exchange, in.Interval)

	target, err := parseDate(in.Date)
	if err != nil {
		return nil, types.NewValidationError(t.Name(), "invalid date %q: use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", in.Date)
	}

	candles, err := t.Provider.CandlesAround(ctx, symbol, exchange, interval, target, 21)
	if err != nil {
		return nil, fmt.Errorf("fetching candles around %s: %w", in.Date, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candle data around %s for %s on %s", in.Date, symbol, exchange)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Candles for %s on %s (%s):\n\n", symbol, exchange, interval)
	b.WriteString("| Datetime            | Open      | High      | Low       | Close     | Volume     |\n")
	b.WriteString("|---------------------|-----------|-----------|-----------|-----------|------------|\n")
	for _, c := range candles {
		fmt.Fprintf(&b, "| %s | %9.2f | %9.2f | %9.2f | %9.2f | %10.2f |\n",
			c.OpenTime.Format(candleTimeLayout), c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	return &Result{Content: b.String()}, nil
}

// parseDate accepts a date or datetime; a bare date means midnight UTC
func parseDate(s string) (time.Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "T")
	if t, err := time.Parse(candleTimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// IndicatorTool computes a technical indicator from recent candles
type IndicatorTool struct {
	Provider market.Provider
}

func (t *IndicatorTool) Name() string { return "get_indicator" }

func (t *IndicatorTool) Description() string {
	return "Computes technical indicator values for a symbol from recent " +
		"candles. Momentum: rsi. Trend: ema, sma, macd. Volatility: atr, " +
		"bbands. Use to confirm chart analysis with numbers; combine several " +
		"indicators for confluence."
}

func (t *IndicatorTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"symbol":    Prop("string", "Asset symbol. Defaults to the session symbol."),
		"indicator": Prop("string", "Indicator name: rsi, sma, ema, macd, atr, bbands."),
		"exchange":  Prop("string", "Exchange name. Defaults to the session exchange."),
		"interval":  Prop("string", "Candle interval. Defaults to the session interval."),
		"period":    Prop("integer", "Indicator period (e.g. 14 for RSI, 20 for SMA/EMA/BBands)."),
	}, "indicator")
}

func (t *IndicatorTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Symbol    string `json:"symbol"`
		Indicator string `json:"indicator"`
		Exchange  string `json:"exchange"`
		Interval  string `json:"interval"`
		Period    int    `json:"period"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	symbol, exchange, interval := marketScope(sc, in.Symbol, in.Exchange, in.Interval)
	name := strings.ToLower(strings.TrimSpace(in.Indicator))

	period := in.Period
	if period <= 0 {
		period = defaultPeriod(name)
	}

	limit := period * 5
	if limit < 150 {
		limit = 150
	}
	if limit > 500 {
		limit = 500
	}
	candles, err := t.Provider.Candles(ctx, symbol, exchange, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching candles for %s: %w", name, err)
	}
	closes := market.Closes(candles)

	switch name {
	case "rsi":
		v, ok := market.Last(market.RSI(closes, period))
		if !ok {
			return nil, insufficientData(name, period, len(candles))
		}
		return Text("RSI(%d) (%s) for %s: %.2f", period, interval, symbol, v), nil

	case "sma", "ema":
		series := market.SMA(closes, period)
		if name == "ema" {
			series = market.EMA(closes, period)
		}
		v, ok := market.Last(series)
		if !ok {
			return nil, insufficientData(name, period, len(candles))
		}
		return Text("%s(%d) (%s) for %s: %.2f", strings.ToUpper(name), period, interval, symbol, v), nil

	case "atr":
		v, ok := market.Last(market.ATR(candles, period))
		if !ok {
			return nil, insufficientData(name, period, len(candles))
		}
		return Text("ATR(%d) (%s) for %s: %.2f", period, interval, symbol, v), nil

	case "macd":
		macd, signal, hist := market.MACD(closes, 12, 26, 9)
		m, ok1 := market.Last(macd)
		s, ok2 := market.Last(signal)
		h, ok3 := market.Last(hist)
		if !ok1 || !ok2 || !ok3 {
			return nil, insufficientData(name, 26+9, len(candles))
		}
		return Text("MACD(12,26,9) (%s) for %s:\n- MACD Line: %.2f\n- Signal Line: %.2f\n- Histogram: %.2f",
			interval, symbol, m, s, h), nil

	case "bbands":
		upper, middle, lower := market.Bollinger(closes, period, 2)
		u, ok1 := market.Last(upper)
		m, ok2 := market.Last(middle)
		l, ok3 := market.Last(lower)
		if !ok1 || !ok2 || !ok3 {
			return nil, insufficientData(name, period, len(candles))
		}
		return Text("Bollinger Bands(%d) (%s) for %s:\n- Upper: %.2f\n- Middle: %.2f\n- Lower: %.2f",
			period, interval, symbol, u, m, l), nil

	default:
		return nil, types.NewValidationError(t.Name(), "unsupported indicator %q (use rsi, sma, ema, macd, atr, bbands)", in.Indicator)
	}
}

func defaultPeriod(indicator string) int {
	switch indicator {
	case "rsi", "atr":
		return 14
	default:
		return 20
	}
}

func insufficientData(indicator string, period, got int) error {
	return fmt.Errorf("not enough candle data for %s(%d): got %d candles", indicator, period, got)
}

// ChartTool renders a price chart and returns it as an image the model can
// read, saving a copy for the human alongside
type ChartTool struct {
	Provider market.Provider

	// Dir receives saved PNG copies; empty disables saving
	Dir string
}

func (t *ChartTool) Name() string { return "generate_chart" }

func (t *ChartTool) Description() string {
	return "Generates a price chart (close line with SMA overlay) for visual " +
		"analysis. The rendered image is attached to the result. Call once " +
		"per timeframe when doing multi-timeframe analysis."
}

func (t *ChartTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"symbol":     Prop("string", "Asset symbol. Defaults to the session symbol."),
		"interval":   Prop("string", "Candle interval: 1d, 4h, 1h, 30m, 15m, 5m. Defaults to the session interval."),
		"exchange":   Prop("string", "Exchange name. Defaults to the session exchange."),
		"sma_period": Prop("integer", "Moving-average overlay period. Default 20."),
	})
}

func (t *ChartTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Symbol    string `json:"symbol"`
		Interval  string `json:"interval"`
		Exchange  string `json:"exchange"`
		SMAPeriod int    `json:"sma_period"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	symbol, exchange, interval := marketScope(sc, in.Symbol, in.Exchange, in.Interval)

	limit := market.DefaultChartLimit(interval)
	candles, err := t.Provider.Candles(ctx, symbol, exchange, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching candles for chart: %w", err)
	}

	png, err := market.RenderChart(candles, market.ChartOptions{
		Symbol:    symbol,
		Exchange:  exchange,
		Interval:  interval,
		SMAPeriod: in.SMAPeriod,
	})
	if err != nil {
		return nil, err
	}

	latest := candles[len(candles)-1]
	content := fmt.Sprintf("Chart for %s %s (%s): %d candles, latest close %.2f.",
		symbol, interval, exchange, len(candles), latest.Close)

	if t.Dir != "" {
		now := time.Now().UTC()
		if sc != nil {
			now = sc.Clock()
		}
		name := fmt.Sprintf("%s_%s_%s.png", symbol, interval, now.Format("20060102_150405"))
		path := filepath.Join(t.Dir, name)
		if err := os.MkdirAll(t.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating charts dir: %w", err)
		}
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return nil, fmt.Errorf("saving chart: %w", err)
		}
		content += fmt.Sprintf(" Saved to %s.", path)
	}

	return &Result{
		Content: content,
		Images:  []types.Attachment{{MediaType: "image/png", Data: png}},
	}, nil
}
