package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/tapedesk/tape/internal/config"
	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/market"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/storage"
	"github.com/tapedesk/tape/internal/types"
)

// ActiveSignalsTool lists the desk's trading signals
type ActiveSignalsTool struct {
	Store storage.Storage
}

func (t *ActiveSignalsTool) Name() string { return "get_active_signals" }

func (t *ActiveSignalsTool) Description() string {
	return "Retrieves trading signals. Check existing signals before creating " +
		"new ones, and use the returned IDs with update_trading_signal. " +
		"Without filters only active signals are returned."
}

func (t *ActiveSignalsTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"status": Prop("string", "Filter by status: active, filled, closed, invalidated, or 'all'."),
		"symbol": Prop("string", "Filter by instrument (e.g. 'BTCUSDT')."),
	})
}

func (t *ActiveSignalsTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Status string `json:"status"`
		Symbol string `json:"symbol"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}

	filter := types.SignalFilter{Limit: 50}
	if in.Symbol != "" {
		filter.Symbol = market.NormalizeSymbol(in.Symbol)
	}
	switch strings.ToLower(in.Status) {
	case "", "active":
		status := types.SignalStatusActive
		filter.Status = &status
	case "all":
		// no status filter
	default:
		status := types.SignalStatus(strings.ToLower(in.Status))
		if !status.IsValid() {
			return nil, types.NewValidationError(t.Name(), "invalid status %q (use active, filled, closed, invalidated, or all)", in.Status)
		}
		filter.Status = &status
	}

	signals, err := t.Store.ListSignals(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing signals: %w", err)
	}
	if len(signals) == 0 {
		var filters []string
		if filter.Status != nil {
			filters = append(filters, "status="+string(*filter.Status))
		}
		if filter.Symbol != "" {
			filters = append(filters, "symbol="+filter.Symbol)
		}
		if len(filters) > 0 {
			return Text("No trading signals found (filters: %s).", strings.Join(filters, ", ")), nil
		}
		return Text("No trading signals found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d trading signal(s):\n", len(signals))
	for _, s := range signals {
		fmt.Fprintf(&b, "\n---\nID: %s\nSymbol: %s | Direction: %s | Status: %s\n",
			s.ID, s.Symbol, s.Direction, s.Status)
		fmt.Fprintf(&b, "Entry: %.2f | Stop Loss: %.2f | Targets: %s\n",
			s.Entry, s.StopLoss, formatTargets(s.Targets))
		fmt.Fprintf(&b, "Size: %.1f%% | Leverage: %.1fx\n", s.SizePct, s.Leverage)
		if s.Rationale != "" {
			fmt.Fprintf(&b, "Rationale: %s\n", s.Rationale)
		}
	}
	return &Result{Content: b.String()}, nil
}

func formatTargets(targets []float64) string {
	if len(targets) == 0 {
		return "none"
	}
	parts := make([]string, len(targets))
	for i, tgt := range targets {
		parts[i] = fmt.Sprintf("%.2f", tgt)
	}
	return strings.Join(parts, ", ")
}

// PositionSizeTool derives quantity, leverage, and capital from the risk
// budget and the entry/stop distance
type PositionSizeTool struct {
	Trading config.TradingConfig
}

func (t *PositionSizeTool) Name() string { return "calculate_position_size" }

func (t *PositionSizeTool) Description() string {
	return "Calculates position sizing (quantity, leverage, capital) from the " +
		"stop-loss distance: risk_amount = equity x size_pct, quantity = " +
		"risk_amount / |entry - stop|, leverage capped at the configured " +
		"maximum. Call BEFORE create_trading_signal and pass the results along."
}

func (t *PositionSizeTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"symbol":      Prop("string", "Trading symbol. Defaults to the session symbol."),
		"entry_price": Prop("number", "Entry price for the trade."),
		"stop_loss":   Prop("number", "Stop loss price level."),
		"size_pct":    Prop("number", "Risk as percent of equity (0-100). Uses the configured default if omitted."),
	}, "entry_price", "stop_loss")
}

func (t *PositionSizeTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Symbol     string  `json:"symbol"`
		EntryPrice float64 `json:"entry_price"`
		StopLoss   float64 `json:"stop_loss"`
		SizePct    float64 `json:"size_pct"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	if in.EntryPrice <= 0 || in.StopLoss <= 0 {
		return nil, types.NewValidationError(t.Name(), "entry_price and stop_loss must be positive")
	}
	if in.EntryPrice == in.StopLoss {
		return nil, types.NewValidationError(t.Name(), "entry_price and stop_loss must differ")
	}

	equity := t.Trading.AccountEquity
	if equity <= 0 {
		return nil, fmt.Errorf("account equity is not configured; set trading.account_equity")
	}
	sizePct := in.SizePct
	if sizePct <= 0 {
		sizePct = t.Trading.DefaultSizePct
	}
	symbol, _, _ := marketScope(sc, in.Symbol, "", "")

	riskAmount := equity * sizePct / 100
	quantity := riskAmount / math.Abs(in.EntryPrice-in.StopLoss)
	notional := quantity * in.EntryPrice
	leverage := math.Max(1, notional/equity)
	if leverage > t.Trading.MaxLeverage {
		notional = equity * t.Trading.MaxLeverage
		quantity = notional / in.EntryPrice
		leverage = t.Trading.MaxLeverage
	}
	quantity = roundQuantity(quantity)
	capital := quantity * in.EntryPrice

	return Text("Position Sizing for %s:\n- Quantity: %g\n- Leverage: %.2fx\n- Capital Allocated: $%.2f\n- Risk Amount: $%.2f (%g%% of equity)\n- Account Equity: $%.2f\n\nUse size_pct=%g and leverage=%.2f when calling create_trading_signal.",
		symbol, quantity, leverage, capital, riskAmount, sizePct, equity, sizePct, leverage), nil
}

// roundQuantity rounds to 8 decimals, the finest step crypto venues accept
func roundQuantity(q float64) float64 {
	return math.Round(q*1e8) / 1e8
}

// parseDirection accepts the signal side in either naming convention
func parseDirection(s string) (types.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return types.DirectionLong, nil
	case "short", "sell":
		return types.DirectionShort, nil
	default:
		return "", fmt.Errorf("invalid direction %q (use 'long' or 'short')", s)
	}
}

// CreateSignalTool persists a new trading signal. It is side-effecting and
// sits behind the approval gate; executing it means a human approved it.
type CreateSignalTool struct {
	Store   storage.Storage
	Feed    *events.Feed
	Trading config.TradingConfig
	Effects *EffectCounter
}

func (t *CreateSignalTool) Name() string { return "create_trading_signal" }

func (t *CreateSignalTool) Description() string {
	return "Creates a new trading signal. Requires prior analysis: use " +
		"get_latest_candle for the entry suggestion and " +
		"calculate_position_size for sizing before calling this. Never " +
		"invent price levels that were not derived from analysis."
}

func (t *CreateSignalTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"symbol":    Prop("string", "Instrument (e.g. 'BTCUSDT'). Defaults to the session symbol."),
		"direction": Prop("string", "Trade side: 'long' or 'short'."),
		"entry":     Prop("number", "Suggested entry price."),
		"stop_loss": Prop("number", "Stop loss level. Below entry for longs, above for shorts."),
		"targets":   ArrayProp("number", "Take-profit levels, nearest first."),
		"size_pct":  Prop("number", "Percent of equity at risk. Uses the configured default if omitted."),
		"leverage":  Prop("number", "Leverage multiplier. Defaults to 1."),
		"rationale": Prop("string", "Technical reasoning behind the signal."),
		"exchange":  Prop("string", "Exchange name. Defaults to the session exchange."),
	}, "direction", "entry", "stop_loss", "rationale")
}

func (t *CreateSignalTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Symbol    string    `json:"symbol"`
		Direction string    `json:"direction"`
		Entry     float64   `json:"entry"`
		StopLoss  float64   `json:"stop_loss"`
		Targets   []float64 `json:"targets"`
		SizePct   float64   `json:"size_pct"`
		Leverage  float64   `json:"leverage"`
		Rationale string    `json:"rationale"`
		Exchange  string    `json:"exchange"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}

	direction, err := parseDirection(in.Direction)
	if err != nil {
		return nil, types.NewValidationError(t.Name(), "%v", err)
	}
	symbol, exchange, _ := marketScope(sc, in.Symbol, in.Exchange, "")
	if symbol == "" {
		return nil, types.NewValidationError(t.Name(), "symbol is required (no session default set)")
	}

	sizePct := in.SizePct
	if sizePct <= 0 {
		sizePct = t.Trading.DefaultSizePct
	}
	leverage := in.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	if t.Trading.MaxLeverage > 0 && leverage > t.Trading.MaxLeverage {
		return nil, types.NewValidationError(t.Name(), "leverage %g exceeds the configured maximum %g", leverage, t.Trading.MaxLeverage)
	}

	signal := &types.TradingSignal{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Exchange:  exchange,
		Direction: direction,
		Entry:     in.Entry,
		StopLoss:  in.StopLoss,
		Targets:   in.Targets,
		SizePct:   sizePct,
		Leverage:  leverage,
		Status:    types.SignalStatusActive,
		Rationale: in.Rationale,
	}
	if err := signal.Validate(); err != nil {
		return nil, types.NewValidationError(t.Name(), "%v", err)
	}

	if err := t.Store.CreateSignal(ctx, signal); err != nil {
		return nil, fmt.Errorf("creating signal: %w", err)
	}
	t.Effects.Inc(t.Name())
	t.emitPublished(ctx, sc, signal)

	return Text("Trading signal created.\nID: %s\nSymbol: %s\nDirection: %s\nEntry: %.2f\nStop Loss: %.2f\nTargets: %s\nSize: %.1f%% | Leverage: %.1fx",
		signal.ID, signal.Symbol, strings.ToUpper(string(signal.Direction)), signal.Entry,
		signal.StopLoss, formatTargets(signal.Targets), signal.SizePct, signal.Leverage), nil
}

func (t *CreateSignalTool) emitPublished(ctx context.Context, sc *session.Context, s *types.TradingSignal) {
	sessionID := ""
	if sc != nil {
		sessionID = sc.SessionID
	}
	msg := fmt.Sprintf("published %s %s signal @ %.2f", s.Direction, s.Symbol, s.Entry)
	ev, err := events.NewSignalPublishedEvent(events.EventTypeSignalPublished, sessionID, msg, events.SignalPublishedData{
		SignalID:  s.ID,
		Symbol:    s.Symbol,
		Direction: string(s.Direction),
		Entry:     s.Entry,
		StopLoss:  s.StopLoss,
		SizePct:   s.SizePct,
		Leverage:  s.Leverage,
	})
	if err == nil {
		t.Feed.Emit(ctx, ev)
	}
}

// UpdateSignalTool modifies an existing trading signal. Side-effecting and
// gated like CreateSignalTool.
type UpdateSignalTool struct {
	Store   storage.Storage
	Feed    *events.Feed
	Effects *EffectCounter
}

func (t *UpdateSignalTool) Name() string { return "update_trading_signal" }

func (t *UpdateSignalTool) Description() string {
	return "Updates an existing trading signal: move the stop, adjust " +
		"targets, or advance the status (active, filled, closed, " +
		"invalidated). Find signal IDs with get_active_signals first."
}

func (t *UpdateSignalTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"signal_id": Prop("string", "The signal ID to update."),
		"status":    Prop("string", "New status: active, filled, closed, invalidated."),
		"entry":     Prop("number", "Updated entry price."),
		"stop_loss": Prop("number", "Updated stop loss."),
		"targets":   ArrayProp("number", "Updated take-profit levels."),
		"size_pct":  Prop("number", "Updated risk percent."),
		"leverage":  Prop("number", "Updated leverage."),
		"rationale": Prop("string", "Updated reasoning (appended context, post-trade notes)."),
	}, "signal_id")
}

func (t *UpdateSignalTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		SignalID  string    `json:"signal_id"`
		Status    *string   `json:"status"`
		Entry     *float64  `json:"entry"`
		StopLoss  *float64  `json:"stop_loss"`
		Targets   []float64 `json:"targets"`
		SizePct   *float64  `json:"size_pct"`
		Leverage  *float64  `json:"leverage"`
		Rationale *string   `json:"rationale"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	var changes []string
	if in.Status != nil {
		status := types.SignalStatus(strings.ToLower(*in.Status))
		if !status.IsValid() {
			return nil, types.NewValidationError(t.Name(), "invalid status %q (use active, filled, closed, invalidated)", *in.Status)
		}
		updates["status"] = string(status)
		changes = append(changes, "status="+string(status))
	}
	if in.Entry != nil {
		updates["entry"] = *in.Entry
		changes = append(changes, fmt.Sprintf("entry=%.2f", *in.Entry))
	}
	if in.StopLoss != nil {
		updates["stop_loss"] = *in.StopLoss
		changes = append(changes, fmt.Sprintf("stop_loss=%.2f", *in.StopLoss))
	}
	if in.Targets != nil {
		updates["targets"] = in.Targets
		changes = append(changes, "targets="+formatTargets(in.Targets))
	}
	if in.SizePct != nil {
		updates["size_pct"] = *in.SizePct
		changes = append(changes, fmt.Sprintf("size_pct=%.1f", *in.SizePct))
	}
	if in.Leverage != nil {
		updates["leverage"] = *in.Leverage
		changes = append(changes, fmt.Sprintf("leverage=%.1f", *in.Leverage))
	}
	if in.Rationale != nil {
		updates["rationale"] = *in.Rationale
		changes = append(changes, "rationale updated")
	}
	if len(updates) == 0 {
		return nil, types.NewValidationError(t.Name(), "no fields to update")
	}

	if err := t.Store.UpdateSignal(ctx, in.SignalID, updates); err != nil {
		return nil, fmt.Errorf("updating signal: %w", err)
	}
	t.Effects.Inc(t.Name())
	t.emitUpdated(ctx, sc, in.SignalID, changes)

	return Text("Trading signal %s updated.\nChanges: %s", in.SignalID, strings.Join(changes, ", ")), nil
}

func (t *UpdateSignalTool) emitUpdated(ctx context.Context, sc *session.Context, id string, changes []string) {
	sessionID := ""
	if sc != nil {
		sessionID = sc.SessionID
	}
	sig, err := t.Store.GetSignal(ctx, id)
	if err != nil || sig == nil {
		t.Feed.EmitSimple(ctx, events.EventTypeSignalUpdated, sessionID, "", events.SeverityInfo,
			fmt.Sprintf("updated signal %s (%s)", id, strings.Join(changes, ", ")))
		return
	}
	msg := fmt.Sprintf("updated %s %s signal (%s)", sig.Direction, sig.Symbol, strings.Join(changes, ", "))
	ev, err := events.NewSignalPublishedEvent(events.EventTypeSignalUpdated, sessionID, msg, events.SignalPublishedData{
		SignalID:  sig.ID,
		Symbol:    sig.Symbol,
		Direction: string(sig.Direction),
		Entry:     sig.Entry,
		StopLoss:  sig.StopLoss,
		SizePct:   sig.SizePct,
		Leverage:  sig.Leverage,
	})
	if err == nil {
		t.Feed.Emit(ctx, ev)
	}
}
