package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Binance REST endpoint
const DefaultBaseURL = "https://api.binance.com"

// maxKlineLimit is Binance's per-request row cap
const maxKlineLimit = 1000

// HTTPProvider fetches candles from a Binance-style /api/v3/klines REST API.
// All requests pass through a shared rate limiter so concurrent tool calls
// cannot burn the venue's request budget.
type HTTPProvider struct {
	// BaseURL is the API root, without a trailing slash
	BaseURL string

	// HTTPClient for kline requests
	HTTPClient *http.Client

	limiter *rate.Limiter
}

// NewHTTPProvider creates a provider with the given request budget in
// requests/second. A zero baseURL uses the public endpoint.
func NewHTTPProvider(baseURL string, rps float64, timeout time.Duration) *HTTPProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if rps <= 0 {
		rps = 10
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &HTTPProvider{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// LatestCandle implements Provider. The exchange argument is accepted for
// interface symmetry; this provider serves exactly one venue.
func (p *HTTPProvider) LatestCandle(ctx context.Context, symbol, exchange string) (*Candle, error) {
	candles, err := p.klines(ctx, symbol, "5m", 1, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candle data for %s", NormalizeSymbol(symbol))
	}
	return &candles[len(candles)-1], nil
}

// Candles implements Provider
func (p *HTTPProvider) Candles(ctx context.Context, symbol, exchange, interval string, limit int) ([]Candle, error) {
	if !ValidInterval(interval) {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	return p.klines(ctx, symbol, interval, limit, time.Time{}, time.Time{})
}

// CandlesAround implements Provider: a window of n candles centered on t
func (p *HTTPProvider) CandlesAround(ctx context.Context, symbol, exchange, interval string, t time.Time, n int) ([]Candle, error) {
	width, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 21
	}
	start := t.Add(-width * time.Duration(n/2))
	return p.klines(ctx, symbol, interval, n, start, time.Time{})
}

// klines performs one rate-limited request against /api/v3/klines
func (p *HTTPProvider) klines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]Candle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	if limit <= 0 {
		limit = 1
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	q := url.Values{}
	q.Set("symbol", NormalizeSymbol(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	reqURL := p.BaseURL + "/api/v3/klines?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying klines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		// The status digits in the message are what the retry classifier
		// keys on: 429/5xx retry, 4xx do not.
		return nil, fmt.Errorf("klines request returned %d: %s", resp.StatusCode, string(body))
	}

	// Binance encodes each kline as a positional array:
	// [openTime(ms), open, high, low, close, volume, closeTime, ...]
	// with prices quoted as strings.
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding klines response: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("kline row %d: %w", i, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKlineRow(row []json.RawMessage) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("unexpected field count %d (want at least 6)", len(row))
	}

	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return Candle{}, fmt.Errorf("parsing open time: %w", err)
	}

	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(row[i], &s); err != nil {
			return Candle{}, fmt.Errorf("parsing field %d: %w", i, err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("parsing field %d value %q: %w", i, s, err)
		}
		fields[i-1] = f
	}

	return Candle{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}
