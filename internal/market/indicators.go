package market

import "math"

// Indicator series are computed locally from candles rather than fetched,
// so every provider (including the synthetic one) gets the same math.
//
// Alignment convention: a series with warm-up period p is shorter than its
// input; result[0] corresponds to input[p-1] (or input[p] where the math
// consumes deltas). Callers overlaying a series on its source should offset
// by len(input)-len(series).

// Closes extracts the close series from candles
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// Last returns the newest value of a series, false when the series is empty
func Last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// SMA returns the simple moving average series; result[i] averages
// values[i..i+period-1]. Returns nil when values are shorter than period.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// EMA returns the exponential moving average series, seeded with the SMA of
// the first period values. Same alignment as SMA.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)

	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	ema := seed / float64(period)
	out = append(out, ema)

	for _, v := range values[period:] {
		ema += k * (v - ema)
		out = append(out, ema)
	}
	return out
}

// RSI returns the relative strength index series with Wilder smoothing.
// result[0] corresponds to values[period]; an all-gain window reads 100,
// an all-loss window reads 0.
func RSI(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(values)-period)
	out = append(out, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR returns the average true range series with Wilder smoothing.
// result[0] corresponds to candles[period].
func ATR(candles []Candle, period int) []float64 {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	tr := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close
		r := c.High - c.Low
		r = math.Max(r, math.Abs(c.High-prevClose))
		r = math.Max(r, math.Abs(c.Low-prevClose))
		tr = append(tr, r)
	}

	var atr float64
	for _, r := range tr[:period] {
		atr += r
	}
	atr /= float64(period)

	out := make([]float64, 0, len(tr)-period+1)
	out = append(out, atr)
	for _, r := range tr[period:] {
		atr = (atr*float64(period-1) + r) / float64(period)
		out = append(out, atr)
	}
	return out
}

// MACD returns the MACD line, signal line, and histogram for the standard
// fast/slow/signal EMAs. The macd series aligns to values[slow-1:]; signal
// and hist align to the tail of macd (offset signalPeriod-1 further).
func MACD(values []float64, fast, slow, signalPeriod int) (macd, signal, hist []float64) {
	if fast <= 0 || slow <= fast || signalPeriod <= 0 || len(values) < slow {
		return nil, nil, nil
	}

	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	// fastEMA is longer; trim its head so both series end-align
	offset := len(fastEMA) - len(slowEMA)
	macd = make([]float64, len(slowEMA))
	for i := range slowEMA {
		macd[i] = fastEMA[i+offset] - slowEMA[i]
	}

	signal = EMA(macd, signalPeriod)
	if signal == nil {
		return macd, nil, nil
	}
	tail := macd[len(macd)-len(signal):]
	hist = make([]float64, len(signal))
	for i := range signal {
		hist[i] = tail[i] - signal[i]
	}
	return macd, signal, hist
}

// Bollinger returns the upper, middle, and lower band series for the given
// period and width multiplier. Same alignment as SMA. The deviation is the
// population standard deviation, per charting convention.
func Bollinger(values []float64, period int, k float64) (upper, middle, lower []float64) {
	middle = SMA(values, period)
	if middle == nil {
		return nil, nil, nil
	}
	upper = make([]float64, len(middle))
	lower = make([]float64, len(middle))
	for i := range middle {
		window := values[i : i+period]
		var sq float64
		for _, v := range window {
			d := v - middle[i]
			sq += d * d
		}
		dev := math.Sqrt(sq / float64(period))
		upper[i] = middle[i] + k*dev
		lower[i] = middle[i] - k*dev
	}
	return upper, middle, lower
}
