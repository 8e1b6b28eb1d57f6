package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesFixture = `[
  [1700000000000, "100.0", "110.0", "90.0", "105.0", "1234.5", 1700000299999, "0", 10, "0", "0", "0"],
  [1700000300000, "105.0", "115.5", "95.0", "108.25", "2345.6", 1700000599999, "0", 12, "0", "0", "0"]
]`

func klineServer(t *testing.T, handler http.HandlerFunc) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPProvider(srv.URL, 50, 5*time.Second)
}

func TestHTTPProviderCandles(t *testing.T) {
	var gotQuery map[string]string
	p := klineServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		gotQuery = map[string]string{
			"symbol":   r.URL.Query().Get("symbol"),
			"interval": r.URL.Query().Get("interval"),
			"limit":    r.URL.Query().Get("limit"),
		}
		w.Write([]byte(klinesFixture))
	})

	candles, err := p.Candles(context.Background(), "binance:btc/usdt", "binance", "5m", 2)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotQuery["symbol"], "symbol must be normalized on the wire")
	assert.Equal(t, "5m", gotQuery["interval"])
	assert.Equal(t, "2", gotQuery["limit"])

	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), candles[0].OpenTime)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 110.0, candles[0].High)
	assert.Equal(t, 90.0, candles[0].Low)
	assert.Equal(t, 105.0, candles[0].Close)
	assert.Equal(t, 1234.5, candles[0].Volume)
	assert.Equal(t, 108.25, candles[1].Close)
}

func TestHTTPProviderLatestCandle(t *testing.T) {
	p := klineServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Write([]byte(klinesFixture))
	})

	latest, err := p.LatestCandle(context.Background(), "BTCUSDT", "binance")
	require.NoError(t, err)
	assert.Equal(t, 108.25, latest.Close, "must return the newest bar")
}

func TestHTTPProviderCandlesAround(t *testing.T) {
	p := klineServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("startTime"), "around-date lookups must window by start time")
		assert.Equal(t, "21", r.URL.Query().Get("limit"))
		w.Write([]byte(klinesFixture))
	})

	target := time.Date(2023, 11, 14, 22, 0, 0, 0, time.UTC)
	_, err := p.CandlesAround(context.Background(), "BTCUSDT", "binance", "5m", target, 21)
	require.NoError(t, err)
}

func TestHTTPProviderStatusError(t *testing.T) {
	p := klineServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
	})

	_, err := p.Candles(context.Background(), "BTCUSDT", "binance", "5m", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429", "status digits drive retry classification")
	assert.Contains(t, err.Error(), "Too many requests")
}

func TestHTTPProviderMalformedRow(t *testing.T) {
	p := klineServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1700000000000, "not-a-number", "1", "1", "1", "1"]]`))
	})

	_, err := p.Candles(context.Background(), "BTCUSDT", "binance", "5m", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kline row 0")
}

func TestHTTPProviderEmptyResponse(t *testing.T) {
	p := klineServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := p.LatestCandle(context.Background(), "NOPEUSDT", "binance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candle data")
}

func TestHTTPProviderRejectsBadInterval(t *testing.T) {
	p := NewHTTPProvider("http://127.0.0.1:1", 10, time.Second)
	_, err := p.Candles(context.Background(), "BTCUSDT", "binance", "9h", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported interval", "must fail before touching the network")
}
