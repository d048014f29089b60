package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sigscreen/sigscreen/internal/analytics"
	"github.com/sigscreen/sigscreen/internal/market"
	"github.com/sigscreen/sigscreen/internal/regime"
)

// Bybit v5 kline interval codes.
const (
	intervalFast = "1"
	intervalMid  = "15"
	intervalSlow = "60"
)

const (
	fastBars  = 120
	midBars   = 96
	slowBars  = 96
	bookDepth = 20

	whaleThresholdMultiplier = 3.0
	profileLevels            = 20
	atrPeriod                = 14
)

// RegimeSource supplies the market-wide context for rating adjustment.
// Satisfied by *regime.Detector.
type RegimeSource interface {
	Context(ctx context.Context) regime.Context
}

// Evaluator runs the full per-symbol pipeline: detect a pattern, score it
// against trend, risk and regime, gate it on the adaptive threshold, and
// attach sizing, stop/take-profit levels, the volume profile and whale
// walls.
type Evaluator struct {
	provider  market.Provider
	regimes   RegimeSource
	logger    zerolog.Logger
	refSymbol string

	minScore     int
	accountSize  float64
	riskPerTrade float64
}

// EvaluatorConfig carries the tunables the pipeline needs.
type EvaluatorConfig struct {
	ReferenceSymbol string
	MinScore        int
	AccountSize     float64
	RiskPerTrade    float64
}

func NewEvaluator(provider market.Provider, regimes RegimeSource, cfg EvaluatorConfig, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		provider:     provider,
		regimes:      regimes,
		logger:       logger.With().Str("component", "evaluator").Logger(),
		refSymbol:    cfg.ReferenceSymbol,
		minScore:     cfg.MinScore,
		accountSize:  cfg.AccountSize,
		riskPerTrade: cfg.RiskPerTrade,
	}
}

// Evaluate scores one symbol. A nil signal with nil error means no signal
// cleared the threshold; an error means market data could not be fetched.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string) (*Signal, error) {
	fast, err := e.provider.Klines(ctx, symbol, intervalFast, fastBars)
	if err != nil {
		return nil, fmt.Errorf("fetch %s klines for %s: %w", intervalFast, symbol, err)
	}

	detection := strongestDetection(fast)
	if !detection.Detected {
		return nil, nil
	}

	mid, err := e.provider.Klines(ctx, symbol, intervalMid, midBars)
	if err != nil {
		return nil, fmt.Errorf("fetch %s klines for %s: %w", intervalMid, symbol, err)
	}
	slow, err := e.provider.Klines(ctx, symbol, intervalSlow, slowBars)
	if err != nil {
		return nil, fmt.Errorf("fetch %s klines for %s: %w", intervalSlow, symbol, err)
	}

	cx := e.regimes.Context(ctx)
	bullish := detection.Type.Bullish()

	if !analytics.TrendAllows(symbol, e.refSymbol, cx.Trend, bullish) {
		e.logger.Debug().
			Str("symbol", symbol).
			Str("type", string(detection.Type)).
			Int("ref_trend", cx.Trend).
			Msg("signal rejected by reference trend filter")
		return nil, nil
	}

	trendScore := combineTrend(
		analytics.TrendScore(mid.Closes(), mid.Volumes()),
		analytics.HTFTrend(slow),
	)
	riskScore := analytics.RiskScore(fast.Closes(), fast.Volumes())
	impulse := ImpulseScore(fast.Closes())

	rating := AdjustRating(detection.Rating, detection.Type, cx, trendScore, riskScore, impulse)
	rating = clamp(rating+ReversalRefinement(detection.Type, fast), 0, 100)

	// Book failures degrade to a neutral read rather than dropping the
	// signal: resting liquidity is a refinement, not a prerequisite.
	whale := analytics.WhaleActivity{Bias: analytics.BiasNeutral}
	if book, bookErr := e.provider.OrderBook(ctx, symbol, bookDepth); bookErr != nil {
		e.logger.Debug().Err(bookErr).Str("symbol", symbol).Msg("order book unavailable, whale read neutral")
	} else {
		whale = analytics.DetectWhaleWalls(book, whaleThresholdMultiplier)
	}
	whaleAligned := (bullish && whale.Bias == analytics.BiasBullish) ||
		(!bullish && whale.Bias == analytics.BiasBearish)
	whaleAgainst := (bullish && whale.Bias == analytics.BiasBearish) ||
		(!bullish && whale.Bias == analytics.BiasBullish)
	if whaleAligned {
		rating = clamp(rating+3, 0, 100)
	} else if whaleAgainst {
		rating = clamp(rating-3, 0, 100)
	}

	threshold := analytics.AdaptiveMinScore(cx.Regime, cx.GlobalVol, e.minScore)
	if rating < threshold {
		e.logger.Debug().
			Str("symbol", symbol).
			Int("rating", rating).
			Int("threshold", threshold).
			Msg("signal below adaptive threshold")
		return nil, nil
	}

	atr := analytics.ATR(fast, atrPeriod)
	if atr <= 0 {
		e.logger.Debug().Str("symbol", symbol).Msg("no usable ATR, skipping")
		return nil, nil
	}

	lastBar, ok := fast.Last()
	if !ok {
		return nil, nil
	}
	price := lastBar.Close
	profile := analytics.ComputeVolumeProfile(fast, profileLevels)

	confidence := float64(rating) / 100 * 0.8
	if whaleAligned {
		confidence += 0.1
	}
	if profile.Valid {
		confidence += 0.05
	}
	if confidence > 1 {
		confidence = 1
	}

	sizing := analytics.CalculatePositionSize(rating, confidence, atr, riskScore, e.accountSize, e.riskPerTrade)
	stopLoss, tpConservative, tpAggressive := analytics.StopTakeProfit(price, sizing.StopDistance, bullish)

	sig := &Signal{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Type:       detection.Type,
		Price:      price,
		Rating:     rating,
		Confidence: confidence,
		TrendScore: trendScore,
		RiskScore:  riskScore,
		Regime:     string(cx.Regime),

		StopLoss:       stopLoss,
		TPConservative: tpConservative,
		TPAggressive:   tpAggressive,

		Sizing:  sizing,
		Profile: profile,
		Whale:   whale,

		CreatedAt: time.Now().UTC(),
		Outcome:   Outcome{State: OutcomePending},
	}

	e.logger.Info().
		Str("symbol", symbol).
		Str("type", string(sig.Type)).
		Int("rating", sig.Rating).
		Float64("confidence", sig.Confidence).
		Float64("price", sig.Price).
		Msg("signal emitted")

	return sig, nil
}

// strongestDetection runs every detector on the fast series and keeps the
// highest-rated hit.
func strongestDetection(fast market.Series) Detection {
	var best Detection
	for _, det := range []Detection{
		DetectBigPump(fast),
		DetectBigDump(fast),
		DetectReversal(fast),
	} {
		if det.Detected && det.Rating > best.Rating {
			best = det
		}
	}
	return best
}

// combineTrend folds the higher timeframe read into the mid timeframe
// score, staying within the score's own range.
func combineTrend(mid, htf int) int {
	return clamp(mid+htf, -10, 10)
}
