package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedesk/tape/internal/config"
	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/storage/sqlite"
	"github.com/tapedesk/tape/internal/types"
)

func newToolStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func tradingDefaults() config.TradingConfig {
	return config.TradingConfig{
		DefaultSizePct: 2.0,
		MaxLeverage:    5.0,
		AccountEquity:  10000,
	}
}

func TestCreateSignalTool(t *testing.T) {
	ctx := context.Background()
	store := newToolStore(t)
	effects := &EffectCounter{}
	tool := &CreateSignalTool{
		Store:   store,
		Feed:    events.NewFeed(store),
		Trading: tradingDefaults(),
		Effects: effects,
	}
	sc := marketSession()

	res, err := tool.Execute(ctx, sc, json.RawMessage(`{
		"direction": "long",
		"entry": 64000,
		"stop_loss": 62000,
		"targets": [66000, 68000],
		"rationale": "4h higher low with RSI reset"
	}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Trading signal created.")
	assert.Contains(t, res.Content, "Symbol: BTCUSDT")
	assert.Contains(t, res.Content, "Direction: LONG")
	assert.Contains(t, res.Content, "Targets: 66000.00, 68000.00")
	assert.Equal(t, 1, effects.Count("create_trading_signal"))

	// persisted with config defaults filled in
	signals, err := store.ListSignals(ctx, types.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, types.DirectionLong, sig.Direction)
	assert.Equal(t, types.SignalStatusActive, sig.Status)
	assert.Equal(t, 2.0, sig.SizePct)
	assert.Equal(t, 1.0, sig.Leverage)
	assert.False(t, sig.CreatedAt.IsZero())

	// the publish event landed in the activity feed
	evs, err := store.GetAgentEventsBySession(ctx, sc.SessionID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.EventTypeSignalPublished, evs[0].Type)
	data, err := evs[0].GetSignalPublishedData()
	require.NoError(t, err)
	assert.Equal(t, sig.ID, data.SignalID)
	assert.Equal(t, 64000.0, data.Entry)
}

func TestCreateSignalToolRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store := newToolStore(t)
	effects := &EffectCounter{}
	tool := &CreateSignalTool{
		Store:   store,
		Feed:    events.NewFeed(store),
		Trading: tradingDefaults(),
		Effects: effects,
	}
	sc := marketSession()

	cases := []struct {
		name string
		args string
		want string
	}{
		{"bad direction", `{"direction":"sideways","entry":100,"stop_loss":90,"rationale":"r"}`, "invalid direction"},
		{"stop above long entry", `{"direction":"long","entry":100,"stop_loss":110,"rationale":"r"}`, "must be below entry"},
		{"stop below short entry", `{"direction":"short","entry":100,"stop_loss":90,"rationale":"r"}`, "must be above entry"},
		{"leverage over cap", `{"direction":"long","entry":100,"stop_loss":90,"leverage":50,"rationale":"r"}`, "exceeds the configured maximum"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tool.Execute(ctx, sc, json.RawMessage(tc.args))
			require.Error(t, err)
			assert.True(t, types.IsValidation(err), "%s should be a validation error", tc.name)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	// nothing was persisted and no side effect was recorded
	signals, err := store.ListSignals(ctx, types.SignalFilter{})
	require.NoError(t, err)
	assert.Empty(t, signals)
	assert.Zero(t, effects.Count("create_trading_signal"))
}

func TestCreateSignalToolShortAcceptsSell(t *testing.T) {
	ctx := context.Background()
	store := newToolStore(t)
	tool := &CreateSignalTool{
		Store:   store,
		Feed:    events.NewFeed(nil),
		Trading: tradingDefaults(),
		Effects: &EffectCounter{},
	}

	res, err := tool.Execute(ctx, marketSession(), json.RawMessage(
		`{"direction":"sell","entry":64000,"stop_loss":65500,"rationale":"rejection at range high"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Direction: SHORT")
}

func TestUpdateSignalTool(t *testing.T) {
	ctx := context.Background()
	store := newToolStore(t)
	effects := &EffectCounter{}

	create := &CreateSignalTool{Store: store, Feed: events.NewFeed(store), Trading: tradingDefaults(), Effects: effects}
	sc := marketSession()
	_, err := create.Execute(ctx, sc, json.RawMessage(
		`{"direction":"long","entry":64000,"stop_loss":62000,"rationale":"r"}`))
	require.NoError(t, err)
	signals, err := store.ListSignals(ctx, types.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	id := signals[0].ID

	update := &UpdateSignalTool{Store: store, Feed: events.NewFeed(store), Effects: effects}
	res, err := update.Execute(ctx, sc, json.RawMessage(fmt.Sprintf(
		`{"signal_id":%q,"status":"filled","stop_loss":63000}`, id)))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "updated")
	assert.Contains(t, res.Content, "status=filled")
	assert.Contains(t, res.Content, "stop_loss=63000.00")
	assert.Equal(t, 1, effects.Count("update_trading_signal"))

	got, err := store.GetSignal(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.SignalStatusFilled, got.Status)
	assert.Equal(t, 63000.0, got.StopLoss)
	assert.Equal(t, 64000.0, got.Entry, "unmentioned fields stay put")

	evs, err := store.GetAgentEvents(ctx, events.EventFilter{Type: events.EventTypeSignalUpdated})
	require.NoError(t, err)
	require.Len(t, evs, 1)
}

func TestUpdateSignalToolValidation(t *testing.T) {
	ctx := context.Background()
	store := newToolStore(t)
	tool := &UpdateSignalTool{Store: store, Feed: events.NewFeed(nil), Effects: &EffectCounter{}}

	_, err := tool.Execute(ctx, nil, json.RawMessage(`{"signal_id":"sig-1"}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
	assert.Contains(t, err.Error(), "no fields to update")

	_, err = tool.Execute(ctx, nil, json.RawMessage(`{"signal_id":"sig-1","status":"mooning"}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	_, err = tool.Execute(ctx, nil, json.RawMessage(`{"signal_id":"missing","status":"closed"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestActiveSignalsTool(t *testing.T) {
	ctx := context.Background()
	store := newToolStore(t)
	sc := marketSession()

	list := &ActiveSignalsTool{Store: store}
	res, err := list.Execute(ctx, sc, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "No trading signals found (filters: status=active).", res.Content)

	create := &CreateSignalTool{Store: store, Feed: events.NewFeed(nil), Trading: tradingDefaults(), Effects: &EffectCounter{}}
	_, err = create.Execute(ctx, sc, json.RawMessage(
		`{"symbol":"BTCUSDT","direction":"long","entry":64000,"stop_loss":62000,"rationale":"btc long"}`))
	require.NoError(t, err)
	_, err = create.Execute(ctx, sc, json.RawMessage(
		`{"symbol":"ETHUSDT","direction":"short","entry":3200,"stop_loss":3350,"rationale":"eth short"}`))
	require.NoError(t, err)

	// close the ETH signal so the default view drops it
	signals, err := store.ListSignals(ctx, types.SignalFilter{Symbol: "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	update := &UpdateSignalTool{Store: store, Feed: events.NewFeed(nil), Effects: &EffectCounter{}}
	_, err = update.Execute(ctx, sc, json.RawMessage(fmt.Sprintf(
		`{"signal_id":%q,"status":"closed"}`, signals[0].ID)))
	require.NoError(t, err)

	res, err = list.Execute(ctx, sc, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Found 1 trading signal(s):")
	assert.Contains(t, res.Content, "BTCUSDT")
	assert.NotContains(t, res.Content, "ETHUSDT")

	res, err = list.Execute(ctx, sc, json.RawMessage(`{"status":"all"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Found 2 trading signal(s):")

	res, err = list.Execute(ctx, sc, json.RawMessage(`{"status":"closed","symbol":"eth/usdt"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "ETHUSDT")
	assert.NotContains(t, res.Content, "BTCUSDT")

	_, err = list.Execute(ctx, sc, json.RawMessage(`{"status":"mooning"}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestPositionSizeTool(t *testing.T) {
	tool := &PositionSizeTool{Trading: tradingDefaults()}
	sc := marketSession()

	// equity 10000, 2% risk, 10-point stop distance: qty 20, leverage 1
	res, err := tool.Execute(context.Background(), sc, json.RawMessage(
		`{"entry_price":100,"stop_loss":90}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Position Sizing for BTCUSDT:")
	assert.Contains(t, res.Content, "- Quantity: 20\n")
	assert.Contains(t, res.Content, "- Leverage: 1.00x")
	assert.Contains(t, res.Content, "- Capital Allocated: $2000.00")
	assert.Contains(t, res.Content, "- Risk Amount: $200.00 (2% of equity)")
	assert.Contains(t, res.Content, "Use size_pct=2 and leverage=1.00")
}

func TestPositionSizeToolLeverageCap(t *testing.T) {
	tool := &PositionSizeTool{Trading: tradingDefaults()}

	// tight 0.1-point stop would need 20x; capped at 5x and resized
	res, err := tool.Execute(context.Background(), marketSession(), json.RawMessage(
		`{"entry_price":100,"stop_loss":99.9}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "- Quantity: 500\n")
	assert.Contains(t, res.Content, "- Leverage: 5.00x")
	assert.Contains(t, res.Content, "- Capital Allocated: $50000.00")
}

func TestPositionSizeToolValidation(t *testing.T) {
	tool := &PositionSizeTool{Trading: tradingDefaults()}
	ctx := context.Background()

	_, err := tool.Execute(ctx, nil, json.RawMessage(`{"entry_price":100,"stop_loss":100}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	_, err = tool.Execute(ctx, nil, json.RawMessage(`{"entry_price":-5,"stop_loss":90}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	noEquity := &PositionSizeTool{Trading: config.TradingConfig{DefaultSizePct: 2, MaxLeverage: 5}}
	_, err = noEquity.Execute(ctx, nil, json.RawMessage(`{"entry_price":100,"stop_loss":90}`))
	require.Error(t, err)
	assert.False(t, types.IsValidation(err), "missing equity is an operator problem, not a model mistake")
	assert.Contains(t, err.Error(), "account equity")
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]types.Direction{
		"long": types.DirectionLong, "BUY": types.DirectionLong,
		"short": types.DirectionShort, " Sell ": types.DirectionShort,
	} {
		got, err := parseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := parseDirection("hold")
	require.Error(t, err)
}

func TestFormatTargets(t *testing.T) {
	assert.Equal(t, "none", formatTargets(nil))
	assert.Equal(t, "66000.00, 68000.00", formatTargets([]float64{66000, 68000}))
	assert.False(t, strings.HasSuffix(formatTargets([]float64{1}), ","))
}
