package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47}

func TestRenderChart(t *testing.T) {
	p := NewSyntheticProvider(5)
	p.Now = fixedClock()
	candles, err := p.Candles(context.Background(), "BTCUSDT", "binance", "4h", 60)
	require.NoError(t, err)

	png, err := RenderChart(candles, ChartOptions{
		Symbol:    "BTCUSDT",
		Exchange:  "binance",
		Interval:  "4h",
		SMAPeriod: 20,
	})
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.Equal(t, pngSignature, png[:4], "output must be a PNG")
}

func TestRenderChartShortWindow(t *testing.T) {
	p := NewSyntheticProvider(5)
	p.Now = fixedClock()

	// Shorter than the SMA period: overlay is skipped, render still works
	candles, err := p.Candles(context.Background(), "BTCUSDT", "binance", "1h", 10)
	require.NoError(t, err)
	png, err := RenderChart(candles, ChartOptions{Symbol: "BTCUSDT", Interval: "1h", SMAPeriod: 20})
	require.NoError(t, err)
	assert.Equal(t, pngSignature, png[:4])

	_, err = RenderChart(candles[:1], ChartOptions{Symbol: "BTCUSDT", Interval: "1h"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 candles")
}

func TestDefaultChartLimit(t *testing.T) {
	assert.Equal(t, 180, DefaultChartLimit("4h"))
	assert.Equal(t, 288, DefaultChartLimit("5m"))
	assert.Equal(t, 180, DefaultChartLimit("weird"))
}
