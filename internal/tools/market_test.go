package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedesk/tape/internal/market"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/types"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func marketSession() *session.Context {
	sc := session.New("sess-market")
	sc.Symbol = "BTCUSDT"
	sc.Exchange = "binance"
	sc.Interval = "4h"
	sc.Now = fixedNow
	return sc
}

func syntheticProvider() *market.SyntheticProvider {
	p := market.NewSyntheticProvider(1)
	p.Now = fixedNow
	return p
}

// stubProvider returns canned candles, for exercising thin-data error paths
type stubProvider struct {
	candles []market.Candle
}

func (p *stubProvider) LatestCandle(ctx context.Context, symbol, exchange string) (*market.Candle, error) {
	c := p.candles[len(p.candles)-1]
	return &c, nil
}

func (p *stubProvider) Candles(ctx context.Context, symbol, exchange, interval string, limit int) ([]market.Candle, error) {
	return p.candles, nil
}

func (p *stubProvider) CandlesAround(ctx context.Context, symbol, exchange, interval string, t time.Time, n int) ([]market.Candle, error) {
	return p.candles, nil
}

func TestLatestCandleTool(t *testing.T) {
	tool := &LatestCandleTool{Provider: syntheticProvider()}
	sc := marketSession()

	res, err := tool.Execute(context.Background(), sc, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Content, "Latest candle for BTCUSDT on binance:"), res.Content)
	assert.Contains(t, res.Content, "- Close: ")
	assert.Contains(t, res.Content, "- Volume: ")

	// explicit symbol beats the session default, and gets normalized
	res, err = tool.Execute(context.Background(), sc, json.RawMessage(`{"symbol":"eth/usdt"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Latest candle for ETHUSDT")
}

func TestLatestCandleToolNoSymbol(t *testing.T) {
	tool := &LatestCandleTool{Provider: syntheticProvider()}
	sc := session.New("bare")
	sc.Now = fixedNow

	_, err := tool.Execute(context.Background(), sc, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestCandlesAroundTool(t *testing.T) {
	tool := &CandlesAroundTool{Provider: syntheticProvider()}
	sc := marketSession()

	res, err := tool.Execute(context.Background(), sc, json.RawMessage(`{"date":"2025-05-01"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Candles for BTCUSDT on binance (4h):")
	assert.Contains(t, res.Content, "| Datetime")
	assert.Equal(t, 21, strings.Count(res.Content, "| 2025-"), "expected 21 data rows")

	// space-separated datetime is accepted
	_, err = tool.Execute(context.Background(), sc, json.RawMessage(`{"date":"2025-05-01 08:00:00"}`))
	require.NoError(t, err)
}

func TestCandlesAroundToolBadDate(t *testing.T) {
	tool := &CandlesAroundTool{Provider: syntheticProvider()}

	_, err := tool.Execute(context.Background(), marketSession(), json.RawMessage(`{"date":"yesterday"}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
	assert.Contains(t, err.Error(), "invalid date")
}

func TestIndicatorTool(t *testing.T) {
	tool := &IndicatorTool{Provider: syntheticProvider()}
	sc := marketSession()

	cases := []struct {
		args   string
		prefix string
	}{
		{`{"indicator":"rsi"}`, "RSI(14) (4h) for BTCUSDT: "},
		{`{"indicator":"sma","period":10}`, "SMA(10) (4h) for BTCUSDT: "},
		{`{"indicator":"ema"}`, "EMA(20) (4h) for BTCUSDT: "},
		{`{"indicator":"atr"}`, "ATR(14) (4h) for BTCUSDT: "},
		{`{"indicator":"macd"}`, "MACD(12,26,9) (4h) for BTCUSDT:"},
		{`{"indicator":"bbands"}`, "Bollinger Bands(20) (4h) for BTCUSDT:"},
	}
	for _, tc := range cases {
		res, err := tool.Execute(context.Background(), sc, json.RawMessage(tc.args))
		require.NoError(t, err, tc.args)
		assert.True(t, strings.HasPrefix(res.Content, tc.prefix),
			"args %s: got %q", tc.args, res.Content)
	}

	res, err := tool.Execute(context.Background(), sc, json.RawMessage(`{"indicator":"macd"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "- Signal Line: ")
	assert.Contains(t, res.Content, "- Histogram: ")
}

func TestIndicatorToolUnknown(t *testing.T) {
	tool := &IndicatorTool{Provider: syntheticProvider()}

	_, err := tool.Execute(context.Background(), marketSession(), json.RawMessage(`{"indicator":"vwap"}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
	assert.Contains(t, err.Error(), "unsupported indicator")
}

func TestIndicatorToolInsufficientData(t *testing.T) {
	stub := &stubProvider{candles: []market.Candle{
		{OpenTime: fixedNow(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{OpenTime: fixedNow().Add(4 * time.Hour), Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 12},
	}}
	tool := &IndicatorTool{Provider: stub}

	_, err := tool.Execute(context.Background(), marketSession(), json.RawMessage(`{"indicator":"rsi"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough candle data")
}

func TestChartTool(t *testing.T) {
	dir := t.TempDir()
	tool := &ChartTool{Provider: syntheticProvider(), Dir: dir}
	sc := marketSession()

	res, err := tool.Execute(context.Background(), sc, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	assert.Equal(t, "image/png", res.Images[0].MediaType)
	assert.True(t, bytes.HasPrefix(res.Images[0].Data, []byte{0x89, 'P', 'N', 'G'}))
	assert.Contains(t, res.Content, "Chart for BTCUSDT 4h (binance):")
	assert.Contains(t, res.Content, "Saved to ")

	// the saved copy uses the session clock for its name
	saved := filepath.Join(dir, "BTCUSDT_4h_20250601_120000.png")
	info, err := os.Stat(saved)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestChartToolNoSaveDir(t *testing.T) {
	tool := &ChartTool{Provider: syntheticProvider()}

	res, err := tool.Execute(context.Background(), marketSession(), json.RawMessage(`{"interval":"1h"}`))
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	assert.NotContains(t, res.Content, "Saved to")
	assert.Contains(t, res.Content, "BTCUSDT 1h")
}
