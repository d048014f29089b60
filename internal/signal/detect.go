package signal

import (
	"math"

	"github.com/sigscreen/sigscreen/internal/analytics"
	"github.com/sigscreen/sigscreen/internal/market"
	"github.com/sigscreen/sigscreen/internal/regime"
)

// Detection thresholds for the pattern detectors.
const (
	minDetectBars    = 30
	pumpMovePct      = 1.0 // move over the last 3 bars
	pumpVolumeRatio  = 2.0 // recent vs overall volume
	reversalSwingPct = 2.0 // prior move before the turn
	reversalWindow   = 40
)

// Detection is a raw pattern hit with a base rating, before any context
// adjustment.
type Detection struct {
	Detected bool
	Type     Type
	Rating   int
}

// DetectBigPump flags a sharp upside move on surging volume over the most
// recent bars of a 1m series.
func DetectBigPump(series market.Series) Detection {
	return detectImpulseMove(series, true, TypeBigPump)
}

// DetectBigDump flags the mirrored downside move.
func DetectBigDump(series market.Series) Detection {
	return detectImpulseMove(series, false, TypeBigDump)
}

func detectImpulseMove(series market.Series, up bool, sigType Type) Detection {
	if series.Len() < minDetectBars {
		return Detection{}
	}

	closes := series.Closes()
	volumes := series.Volumes()
	last := len(closes) - 1
	ref := closes[last-3]
	if ref <= 0 {
		return Detection{}
	}

	changePct := (closes[last] - ref) / ref * 100
	if !up {
		changePct = -changePct
	}

	overall := mean(volumes)
	recent := mean(volumes[len(volumes)-3:])
	volRatio := 0.0
	if overall > 0 {
		volRatio = recent / overall
	}

	if changePct < pumpMovePct || volRatio < pumpVolumeRatio {
		return Detection{}
	}

	rating := 50 +
		int(math.Min(changePct*8, 30)) +
		int(math.Min(volRatio*3, 20))

	return Detection{Detected: true, Type: sigType, Rating: clamp(rating, 0, 100)}
}

// DetectReversal looks for an exhausted move turning over: a swing of at
// least reversalSwingPct within the lookback window followed by three
// consecutive closes against it.
func DetectReversal(series market.Series) Detection {
	if series.Len() < reversalWindow {
		return Detection{}
	}

	closes := series.Closes()
	window := closes[len(closes)-reversalWindow:]
	last := len(window) - 1

	// Prior swing extremes, excluding the turn bars themselves.
	body := window[:last-2]
	lo, hi := body[0], body[0]
	for _, c := range body {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if lo <= 0 {
		return Detection{}
	}
	swingPct := (hi - lo) / lo * 100
	if swingPct < reversalSwingPct {
		return Detection{}
	}

	c0, c1, c2 := window[last], window[last-1], window[last-2]

	// Dump then three rising closes off the low: bullish turn.
	if c0 > c1 && c1 > c2 && c2 <= lo*1.01 {
		recoveryPct := (c0 - lo) / lo * 100
		rating := 45 + int(math.Min(swingPct*5, 25)) + int(math.Min(recoveryPct*10, 15))
		return Detection{Detected: true, Type: TypeReversalBullish, Rating: clamp(rating, 0, 100)}
	}

	// Pump then three falling closes off the high: bearish turn.
	if c0 < c1 && c1 < c2 && c2 >= hi*0.99 {
		fadePct := (hi - c0) / lo * 100
		rating := 45 + int(math.Min(swingPct*5, 25)) + int(math.Min(fadePct*10, 15))
		return Detection{Detected: true, Type: TypeReversalBearish, Rating: clamp(rating, 0, 100)}
	}

	return Detection{}
}

// ImpulseScore reads the last three closes: +5 for two consecutive up
// moves, -5 for two down, 0 otherwise.
func ImpulseScore(closes []float64) int {
	if len(closes) < 3 {
		return 0
	}
	last := len(closes) - 1
	c0, c1, c2 := closes[last], closes[last-1], closes[last-2]
	if c0 > c1 && c1 > c2 {
		return 5
	}
	if c0 < c1 && c1 < c2 {
		return -5
	}
	return 0
}

// AdjustRating folds market context into a detector's base rating: impulse
// agreement, trend alignment, risk discount, the regime factor, and the
// regime-specific nudges (trending favors momentum patterns, ranging
// favors reversals, high volatility discounts everything).
func AdjustRating(base int, sigType Type, cx regime.Context, trendScore, riskScore, impulse int) int {
	rating := float64(base + impulse)

	if sigType.Bullish() {
		rating += float64(trendScore)
	} else {
		rating -= float64(trendScore)
	}
	rating -= float64(riskScore) / 2

	rating *= cx.Factor
	switch cx.Regime {
	case analytics.RegimeTrending:
		if !sigType.Reversal() {
			rating *= 1.05
		}
	case analytics.RegimeRanging:
		if sigType.Reversal() {
			rating *= 1.07
		}
	case analytics.RegimeHighVol:
		rating *= 0.9
	}

	return clamp(int(rating), 0, 100)
}

// ReversalRefinement applies the fine-grained reversal checks: close
// momentum in the turn's direction, a failed retest of the prior high/low
// on fading volume, and a double-bottom/top within noise range. Returns a
// signed rating adjustment.
func ReversalRefinement(sigType Type, series market.Series) int {
	if !sigType.Reversal() || series.Len() < 5 {
		return 0
	}

	bars := series.Klines
	last := len(bars) - 1
	c0, c1, c2 := bars[last].Close, bars[last-1].Close, bars[last-2].Close
	h0, h1 := bars[last].High, bars[last-1].High
	l0, l1 := bars[last].Low, bars[last-1].Low
	v0, v1 := bars[last].Volume, bars[last-1].Volume

	bullish := sigType.Bullish()
	adj := 0

	movePct := func(a, b float64) float64 {
		return (a - b) / math.Max(b, 1e-7) * 100
	}

	// Momentum into the turn confirms; momentum against it penalizes.
	if bullish {
		if c0 > c1 && movePct(c0, c1) > 0.2 {
			adj += 7
		}
		if c0 < c1 && movePct(c1, c0) > 0.2 {
			adj -= 5
		}
	} else {
		if c0 < c1 && movePct(c1, c0) > 0.2 {
			adj += 7
		}
		if c0 > c1 && movePct(c0, c1) > 0.2 {
			adj -= 5
		}
	}

	// Failed retest on fading volume: a marginal new extreme the move
	// could not hold.
	if !bullish && h0 > h1 {
		diff := movePct(h0, h1)
		if diff > 0.1 && diff < 0.4 && v0 < v1 {
			adj += 5
		}
	}
	if bullish && l0 < l1 {
		diff := movePct(l1, l0)
		if diff > 0.1 && diff < 0.4 && v0 < v1 {
			adj += 5
		}
	}

	// Double bottom/top: the middle close pivots within noise range.
	if bullish && c2 > c1 && c0 > c1 && math.Abs(movePct(c1, c2)) < 0.6 {
		adj += 5
	}
	if !bullish && c2 < c1 && c0 < c1 && math.Abs(movePct(c1, c2)) < 0.6 {
		adj += 5
	}

	return adj
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
