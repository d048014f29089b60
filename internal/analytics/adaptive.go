package analytics

// Regime is a coarse market-condition classification used to adjust signal
// thresholds.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeHighVol  Regime = "high_vol"
	RegimeNeutral  Regime = "neutral"
)

// Adaptive score bounds.
const (
	minAdaptiveScore = 40
	maxAdaptiveScore = 90
)

// AdaptiveMinScore calibrates the minimum signal threshold to market
// conditions. High volatility regimes and elevated global volatility push
// the threshold up (stricter); a ranging regime in quiet conditions relaxes
// it. For a fixed regime the result is monotonically non-decreasing in
// globalVol, and the output is clamped to [40, 90].
func AdaptiveMinScore(regime Regime, globalVol float64, baseScore int) int {
	adjusted := baseScore

	switch regime {
	case RegimeHighVol:
		adjusted += 10
	case RegimeRanging:
		adjusted -= 5
	case RegimeTrending:
		adjusted += 3
	}

	switch {
	case globalVol > 1.5:
		adjusted += 5
	case globalVol < 0.7:
		adjusted -= 3
	}

	return clampInt(adjusted, minAdaptiveScore, maxAdaptiveScore)
}
