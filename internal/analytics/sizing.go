package analytics

import "math"

// Stop and take-profit geometry, in multiples of the stop distance.
const (
	stopATRMultiple      = 1.5
	tpConservativeFactor = 1.5
	tpAggressiveFactor   = 3.0
)

// PositionSizing is the computed size and level geometry for a signal.
type PositionSizing struct {
	SizeUSD           float64 `json:"size_usd"`
	RiskAmountUSD     float64 `json:"risk_amount_usd"`
	StopDistance      float64 `json:"stop_distance"`       // price units
	StopLossPct       float64 `json:"stop_loss_pct"`
	TPConservativePct float64 `json:"tp_conservative_pct"`
	TPAggressivePct   float64 `json:"tp_aggressive_pct"`
	QualityScore      float64 `json:"quality_score"` // 0-100
}

// CalculatePositionSize derives the stop distance from ATR scaled inversely
// by confidence (higher confidence means a tighter stop), sets both take
// profits as fixed multiples of that stop, and sizes the position as
// risk budget over stop fraction, scaled by signal quality and scaled down
// strictly monotonically as riskScore rises.
func CalculatePositionSize(rating int, confidence, atr float64, riskScore int, accountSize, riskPerTrade float64) PositionSizing {
	if atr <= 0 || accountSize <= 0 || riskPerTrade <= 0 {
		return PositionSizing{}
	}
	confidence = math.Max(0, math.Min(confidence, 1))

	// Stop widens as confidence drops: 1.5 ATR at full confidence, up to
	// 3 ATR with none.
	stopDistance := atr * stopATRMultiple * (2 - confidence)

	quality := float64(rating) / 100 * confidence
	baseRisk := accountSize * riskPerTrade * quality

	// Strictly decreasing in riskScore; floor keeps the size positive.
	riskFactor := math.Max(1.2-0.06*float64(riskScore), 0.2)
	riskAmount := baseRisk * riskFactor

	stopFraction := stopDistance / 100
	size := 0.0
	if stopFraction > 0 {
		size = riskAmount / stopFraction
	}

	return PositionSizing{
		SizeUSD:           round2(size),
		RiskAmountUSD:     round2(riskAmount),
		StopDistance:      stopDistance,
		StopLossPct:       round2(stopFraction * 100),
		TPConservativePct: round2(stopFraction * tpConservativeFactor * 100),
		TPAggressivePct:   round2(stopFraction * tpAggressiveFactor * 100),
		QualityScore:      round2(quality * 100),
	}
}

// StopTakeProfit places directional stop-loss and take-profit levels around
// the entry price. TPs sit at the conservative/aggressive multiples of the
// stop distance on the profitable side.
func StopTakeProfit(entry, stopDistance float64, long bool) (stopLoss, tpConservative, tpAggressive float64) {
	tpNear := stopDistance * tpConservativeFactor
	tpFar := stopDistance * tpAggressiveFactor
	if long {
		return entry - stopDistance, entry + tpNear, entry + tpFar
	}
	return entry + stopDistance, entry - tpNear, entry - tpFar
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
