// Package market provides candle data access and local technical analysis:
// a Provider interface with a Binance-style REST implementation and a
// deterministic synthetic implementation, indicator math computed from
// candles, and PNG chart rendering.
package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Candle is one OHLCV bar. OpenTime is the bar's opening timestamp in UTC;
// the bar covers [OpenTime, OpenTime+interval).
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Provider serves candle data. Implementations must return candles oldest
// first and must never fabricate bars for instruments they don't know.
type Provider interface {
	// LatestCandle returns the most recent 5m candle for a quick price check
	LatestCandle(ctx context.Context, symbol, exchange string) (*Candle, error)

	// Candles returns up to limit candles ending at the present, oldest first
	Candles(ctx context.Context, symbol, exchange, interval string, limit int) ([]Candle, error)

	// CandlesAround returns up to n candles surrounding t, oldest first
	CandlesAround(ctx context.Context, symbol, exchange, interval string, t time.Time, n int) ([]Candle, error)
}

// intervalDurations maps the supported candle intervals to bar widths.
// Months are excluded: their irregular width breaks bucket arithmetic.
var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// IntervalDuration converts an interval label to its bar width
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervalDurations[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q (use one of 1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w)", interval)
	}
	return d, nil
}

// ValidInterval reports whether the interval label is supported
func ValidInterval(interval string) bool {
	_, ok := intervalDurations[interval]
	return ok
}

// symbolPrefixes are venue prefixes users paste from charting UIs
var symbolPrefixes = []string{"X:", "BINANCE:", "COINBASE:", "KRAKEN:"}

// NormalizeSymbol strips venue prefixes and separators and uppercases, so
// "binance:btc/usdt" and "BTCUSDT" address the same instrument.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, prefix := range symbolPrefixes {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.ReplaceAll(s, "/", "")
}
