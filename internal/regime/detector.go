package regime

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigscreen/sigscreen/internal/analytics"
	"github.com/sigscreen/sigscreen/internal/market"
	"github.com/sigscreen/sigscreen/internal/market/cache"
)

// Volatility (ATR as % of price) above this marks a high-vol regime;
// GlobalVol is normalized against the baseline so ~1.0 reads as normal.
const (
	highVolThresholdPct = 0.5
	baselineVolPct      = 0.3
)

// Context is the market-regime classification of the reference instrument,
// consumed by the evaluator to calibrate thresholds and ratings.
type Context struct {
	Regime    analytics.Regime `json:"regime"`
	Factor    float64          `json:"factor"`     // rating multiplier
	GlobalVol float64          `json:"global_vol"` // 1.0 = normal volatility
	Trend     int              `json:"trend"`      // reference 1h trend, [-5, 5]
}

// Neutral is the fallback context used when reference data is unavailable.
func Neutral() Context {
	return Context{Regime: analytics.RegimeNeutral, Factor: 1.0, GlobalVol: 1.0}
}

// Detector classifies the reference instrument (typically BTC) into a
// coarse regime, caching the result so the classification is refreshed at
// most once per TTL.
type Detector struct {
	provider  market.Provider
	cache     *cache.TTLCache
	refSymbol string
	ttl       time.Duration
}

// NewDetector creates a detector for refSymbol with the given context TTL.
func NewDetector(provider market.Provider, refSymbol string, ttl time.Duration) *Detector {
	return &Detector{
		provider:  provider,
		cache:     cache.NewTTLCache(),
		refSymbol: refSymbol,
		ttl:       ttl,
	}
}

// Context returns the current (possibly cached) market context. Fetch
// failures degrade to the neutral context rather than failing the caller;
// the neutral result is not cached so the next call retries.
func (d *Detector) Context(ctx context.Context) Context {
	value, err := d.cache.GetOrFetch(ctx, "regime:"+d.refSymbol, d.ttl, func(ctx context.Context) (interface{}, error) {
		return d.classify(ctx)
	})
	if err != nil {
		log.Warn().Err(err).Str("symbol", d.refSymbol).Msg("regime classification failed, using neutral context")
		return Neutral()
	}
	return value.(Context)
}

func (d *Detector) classify(ctx context.Context) (Context, error) {
	series, err := d.provider.Klines(ctx, d.refSymbol, "15", 50)
	if err != nil {
		return Context{}, err
	}
	last, ok := series.Last()
	if !ok || last.Close <= 0 {
		return Neutral(), nil
	}

	hourly, err := d.provider.Klines(ctx, d.refSymbol, "60", 96)
	if err != nil {
		return Context{}, err
	}

	trendScore := analytics.TrendScore(series.Closes(), series.Volumes())
	atr := analytics.ATR(series, 14)
	volatilityPct := atr / last.Close * 100

	result := Context{
		Regime:    analytics.RegimeNeutral,
		Factor:    1.0,
		GlobalVol: volatilityPct / baselineVolPct,
		Trend:     analytics.HTFTrend(hourly),
	}

	switch {
	case volatilityPct > highVolThresholdPct:
		result.Regime = analytics.RegimeHighVol
		result.Factor = 0.9
	case trendScore > 5 || trendScore < -5:
		result.Regime = analytics.RegimeTrending
		result.Factor = 1.1
	case trendScore > -2 && trendScore < 2:
		result.Regime = analytics.RegimeRanging
		result.Factor = 1.05
	}

	log.Debug().
		Str("symbol", d.refSymbol).
		Str("regime", string(result.Regime)).
		Float64("global_vol", result.GlobalVol).
		Int("trend", result.Trend).
		Msg("reference regime classified")

	return result, nil
}
