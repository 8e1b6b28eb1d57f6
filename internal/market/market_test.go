package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":          "BTCUSDT",
		"btcusdt":          "BTCUSDT",
		"BTC/USDT":         "BTCUSDT",
		"binance:btc/usdt": "BTCUSDT",
		"X:ETHUSDT":        "ETHUSDT",
		"KRAKEN:SOL/USD":   "SOLUSD",
		"  ethusdt ":       "ETHUSDT",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSymbol(in), "input %q", in)
	}
}

func TestIntervalDuration(t *testing.T) {
	d, err := IntervalDuration("4h")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, d)

	d, err = IntervalDuration("1w")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	_, err = IntervalDuration("1M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported interval")

	assert.True(t, ValidInterval("5m"))
	assert.False(t, ValidInterval("2w"))
}
