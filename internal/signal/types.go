package signal

import (
	"time"

	"github.com/sigscreen/sigscreen/internal/analytics"
)

// Type enumerates the signal patterns the detectors emit.
type Type string

const (
	TypeBigPump         Type = "BIG_PUMP"
	TypeBigDump         Type = "BIG_DUMP"
	TypeReversalBullish Type = "REVERSAL_BULLISH"
	TypeReversalBearish Type = "REVERSAL_BEARISH"
)

// Bullish reports whether the type trades to the upside.
func (t Type) Bullish() bool {
	return t == TypeBigPump || t == TypeReversalBullish
}

// Reversal reports whether the type is a reversal pattern.
func (t Type) Reversal() bool {
	return t == TypeReversalBullish || t == TypeReversalBearish
}

// OutcomeState tracks resolution of an emitted signal.
type OutcomeState string

const (
	// OutcomePending means the signal has not been resolved yet.
	OutcomePending OutcomeState = "pending"
	// OutcomeSuccess means the take-profit level was reached before the stop.
	OutcomeSuccess OutcomeState = "success"
	// OutcomeFailure means the stop-loss level was reached first.
	OutcomeFailure OutcomeState = "failure"
	// OutcomeTimeout means neither level was reached within the check
	// window. Kept distinct from failure: an undecided trade is not a
	// wrong one.
	OutcomeTimeout OutcomeState = "timeout"
)

// Resolved reports whether the state is terminal.
func (s OutcomeState) Resolved() bool { return s != OutcomePending }

// Outcome carries the realized result of a signal. All fields are zero
// until the performance tracker resolves the signal, exactly once.
type Outcome struct {
	State      OutcomeState `json:"state"`
	PnLPercent float64      `json:"pnl_percent,omitempty"`
	ExitPrice  float64      `json:"exit_price,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// Signal is a fully scored trading signal. Rating and confidence are
// immutable after creation; only the Outcome block is mutated later, by
// the performance tracker.
type Signal struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Type       Type    `json:"type"`
	Price      float64 `json:"price"`
	Rating     int     `json:"rating"`     // 0-100
	Confidence float64 `json:"confidence"` // 0.0-1.0
	TrendScore int     `json:"trend_score"`
	RiskScore  int     `json:"risk_score"`
	Regime     string  `json:"regime"`

	StopLoss       float64 `json:"stop_loss"`
	TPConservative float64 `json:"tp_conservative"`
	TPAggressive   float64 `json:"tp_aggressive"`

	Sizing  analytics.PositionSizing `json:"position_sizing"`
	Profile analytics.VolumeProfile  `json:"volume_profile"`
	Whale   analytics.WhaleActivity  `json:"whale_activity"`

	CreatedAt time.Time `json:"created_at"`
	Outcome   Outcome   `json:"outcome"`
}
