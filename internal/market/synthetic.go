package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"
)

// SyntheticProvider serves deterministic generated candles for offline use,
// development, and tests. The same (symbol, interval, bar) always yields the
// same candle regardless of query shape, and consecutive bars are continuous
// (each open equals the previous close), so indicator math behaves like it
// would on real data.
type SyntheticProvider struct {
	// Seed shifts the whole generated universe; two providers with the same
	// seed serve identical data
	Seed int64

	// BasePrice anchors generated prices; per-symbol offsets derive from it
	BasePrice float64

	// Now supplies the clock; defaults to time.Now
	Now func() time.Time
}

// NewSyntheticProvider creates a provider with the default price anchor
func NewSyntheticProvider(seed int64) *SyntheticProvider {
	return &SyntheticProvider{Seed: seed, BasePrice: 64000}
}

func (p *SyntheticProvider) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// LatestCandle implements Provider
func (p *SyntheticProvider) LatestCandle(ctx context.Context, symbol, exchange string) (*Candle, error) {
	candles, err := p.Candles(ctx, symbol, exchange, "5m", 1)
	if err != nil {
		return nil, err
	}
	return &candles[len(candles)-1], nil
}

// Candles implements Provider
func (p *SyntheticProvider) Candles(ctx context.Context, symbol, exchange, interval string, limit int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.window(symbol, interval, p.now(), limit, true)
}

// CandlesAround implements Provider
func (p *SyntheticProvider) CandlesAround(ctx context.Context, symbol, exchange, interval string, t time.Time, n int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 21
	}
	width, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	end := t.Add(width * time.Duration(n/2))
	return p.window(symbol, interval, end, n, false)
}

// window returns limit candles whose last bar ends at or before end.
// clampToNow trims bars that would open in the future.
func (p *SyntheticProvider) window(symbol, interval string, end time.Time, limit int, clampToNow bool) ([]Candle, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	width, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	last := end.Unix() / int64(width.Seconds())
	if clampToNow {
		nowBucket := p.now().Unix() / int64(width.Seconds())
		if last > nowBucket {
			last = nowBucket
		}
	}

	candles := make([]Candle, 0, limit)
	for bucket := last - int64(limit) + 1; bucket <= last; bucket++ {
		candles = append(candles, p.candleAt(sym, width, bucket))
	}
	return candles, nil
}

// candleAt generates the bar for one bucket. Open is the previous bucket's
// close, which keeps any window over the same series continuous.
func (p *SyntheticProvider) candleAt(symbol string, width time.Duration, bucket int64) Candle {
	o := p.closeAt(symbol, width, bucket-1)
	c := p.closeAt(symbol, width, bucket)

	rng := p.rng(symbol, width, bucket)
	hi := math.Max(o, c) * (1 + 0.004*rng.Float64())
	lo := math.Min(o, c) * (1 - 0.004*rng.Float64())
	vol := 800 + 400*rng.Float64()

	return Candle{
		OpenTime: time.Unix(bucket*int64(width.Seconds()), 0).UTC(),
		Open:     o,
		High:     hi,
		Low:      lo,
		Close:    c,
		Volume:   vol,
	}
}

// closeAt is the deterministic close price for one bucket: a per-symbol
// anchor modulated by two slow cycles plus bounded hash noise.
func (p *SyntheticProvider) closeAt(symbol string, width time.Duration, bucket int64) float64 {
	anchor := p.anchor(symbol)
	phase := float64(bucket)
	trend := 0.06*math.Sin(phase/48) + 0.025*math.Sin(phase/7+1.3)
	noise := 0.006 * (p.rng(symbol, width, bucket).Float64()*2 - 1)
	return anchor * (1 + trend + noise)
}

// anchor derives a stable per-symbol price level from BasePrice
func (p *SyntheticProvider) anchor(symbol string) float64 {
	base := p.BasePrice
	if base <= 0 {
		base = 64000
	}
	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(symbol)))
	// Spread symbols across roughly [0.05x, 1.05x] of the base price
	frac := float64(h.Sum64()%1000)/1000*1.0 + 0.05
	return base * frac
}

// rng returns the deterministic noise source for one bar
func (p *SyntheticProvider) rng(symbol string, width time.Duration, bucket int64) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%d|%d", p.Seed, symbol, int64(width.Seconds()), bucket)
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
