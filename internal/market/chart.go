package market

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// chartLimits are the candle counts that keep a rendered chart readable
// per interval
var chartLimits = map[string]int{
	"1m":  240,
	"5m":  288,
	"15m": 288,
	"30m": 336,
	"1h":  168,
	"4h":  180,
	"1d":  180,
}

// DefaultChartLimit returns the candle count to fetch for a chart of the
// given interval
func DefaultChartLimit(interval string) int {
	if n, ok := chartLimits[interval]; ok {
		return n
	}
	return 180
}

// ChartOptions configures RenderChart
type ChartOptions struct {
	Symbol   string
	Exchange string
	Interval string

	// SMAPeriod sets the moving-average overlay period
	// Default: 20
	SMAPeriod int

	// Width and Height of the PNG in pixels
	// Default: 1280x720
	Width  int
	Height int
}

// RenderChart renders a close-price line with an SMA overlay to PNG bytes.
// Candles must be oldest first. The overlay is skipped when the window is
// shorter than the SMA period.
func RenderChart(candles []Candle, opts ChartOptions) ([]byte, error) {
	if len(candles) < 2 {
		return nil, fmt.Errorf("need at least 2 candles to render a chart (got %d)", len(candles))
	}
	if opts.SMAPeriod <= 0 {
		opts.SMAPeriod = 20
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}

	closes := Closes(candles)
	xs := make([]time.Time, len(candles))
	for i := range candles {
		xs[i] = candles[i].OpenTime
	}

	tickFormat := "2006-01-02"
	if width, err := IntervalDuration(opts.Interval); err == nil && width < 24*time.Hour {
		tickFormat = "01-02 15:04"
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "close",
			XValues: xs,
			YValues: closes,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("00aa66"),
				StrokeWidth: 1.6,
			},
		},
	}

	if sma := SMA(closes, opts.SMAPeriod); len(sma) >= 2 {
		offset := len(closes) - len(sma)
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("SMA(%d)", opts.SMAPeriod),
			XValues: xs[offset:],
			YValues: sma,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("3366cc"),
				StrokeWidth: 1.2,
			},
		})
	}

	title := fmt.Sprintf("%s %s", NormalizeSymbol(opts.Symbol), opts.Interval)
	if opts.Exchange != "" {
		title += fmt.Sprintf(" (%s)", opts.Exchange)
	}

	graph := chart.Chart{
		Title:  title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat(tickFormat),
		},
		YAxis: chart.YAxis{
			Name: "price",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("rendering chart: %w", err)
	}
	return buf.Bytes(), nil
}
