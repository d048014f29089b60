package analytics

import (
	"math"

	"github.com/sigscreen/sigscreen/internal/market"
)

// EMA computes an exponential moving average over values. Inputs shorter
// than the period are returned unchanged; the first period-1 outputs carry
// the raw values, seeded with the simple average of the first period.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 1 || len(values) < period {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values))
	out = append(out, values[:period-1]...)

	prev := 0.0
	for _, v := range values[:period] {
		prev += v
	}
	prev /= float64(period)
	out = append(out, prev)

	for _, v := range values[period:] {
		prev = v*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

// ATR returns the average true range over the last period bars. With fewer
// than period+1 bars it falls back to the mean of the available true
// ranges; an empty series yields zero.
func ATR(series market.Series, period int) float64 {
	bars := series.Klines
	if len(bars) < 2 {
		return 0.0
	}

	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high := bars[i].High
		low := bars[i].Low
		prevClose := bars[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}

	if len(trs) < period {
		sum := 0.0
		for _, tr := range trs {
			sum += tr
		}
		return sum / float64(len(trs))
	}

	sum := 0.0
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return sum / float64(period)
}

// HTFTrend buckets a higher-timeframe series into a coarse trend score:
// +-5 for a move beyond 2%, +-3 beyond 0.7%, 0 otherwise, measured from
// the close ~30 bars back to the latest close.
func HTFTrend(series market.Series) int {
	if series.Len() < 20 {
		return 0
	}

	closes := series.Closes()
	last := closes[len(closes)-1]
	lookback := len(closes) - 1 - 30
	if lookback < 0 {
		lookback = 0
	}
	ref := closes[lookback]
	if ref <= 0 {
		return 0
	}

	changePct := (last - ref) / ref * 100
	switch {
	case changePct > 2:
		return 5
	case changePct > 0.7:
		return 3
	case changePct < -2:
		return -5
	case changePct < -0.7:
		return -3
	default:
		return 0
	}
}

// TrendScore grades short-term direction on [-10, 10] from EMA alignment
// and volume-weighted close momentum.
func TrendScore(closes, volumes []float64) int {
	if len(closes) < 21 {
		return 0
	}

	fast := EMA(closes, 9)
	slow := EMA(closes, 21)
	last := len(closes) - 1

	score := 0
	if fast[last] > slow[last] {
		score += 3
	} else if fast[last] < slow[last] {
		score -= 3
	}

	// Consecutive closes in one direction, volume-confirmed.
	up, down := 0, 0
	for i := last; i > last-5 && i > 0; i-- {
		if closes[i] > closes[i-1] {
			up++
		} else if closes[i] < closes[i-1] {
			down++
		}
	}
	score += up - down

	// Momentum over the last 10 bars.
	ref := closes[last-10]
	if ref > 0 {
		changePct := (closes[last] - ref) / ref * 100
		switch {
		case changePct > 1.5:
			score += 2
		case changePct < -1.5:
			score -= 2
		}
	}

	if avgVolume(volumes[len(volumes)-5:]) > 1.5*avgVolume(volumes) {
		if score > 0 {
			score++
		} else if score < 0 {
			score--
		}
	}

	return clampInt(score, -10, 10)
}

// RiskScore grades conditions on [0, 10]: higher means choppier, thinner,
// more dangerous to trade.
func RiskScore(closes, volumes []float64) int {
	if len(closes) < 20 {
		return 5
	}

	last := len(closes) - 1
	vol := stddevReturns(closes[last-19:])
	score := 0

	// Return volatility dominates the grade.
	switch {
	case vol > 0.015:
		score += 6
	case vol > 0.008:
		score += 4
	case vol > 0.004:
		score += 2
	}

	// Direction flips over the last 10 closes mark chop.
	flips := 0
	for i := last - 8; i <= last; i++ {
		if (closes[i]-closes[i-1])*(closes[i-1]-closes[i-2]) < 0 {
			flips++
		}
	}
	if flips >= 5 {
		score += 2
	}

	// Fading volume thins the book.
	if avgVolume(volumes[len(volumes)-5:]) < 0.5*avgVolume(volumes) {
		score += 2
	}

	return clampInt(score, 0, 10)
}

func stddevReturns(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			rets = append(rets, (closes[i]-closes[i-1])/closes[i-1])
		}
	}
	if len(rets) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	return math.Sqrt(variance / float64(len(rets)))
}

func avgVolume(volumes []float64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range volumes {
		sum += v
	}
	return sum / float64(len(volumes))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
