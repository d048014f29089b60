package scan

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sigscreen/sigscreen/internal/market"
	"github.com/sigscreen/sigscreen/internal/metrics"
	"github.com/sigscreen/sigscreen/internal/notify"
	"github.com/sigscreen/sigscreen/internal/signal"
	"github.com/sigscreen/sigscreen/internal/track"
)

// Evaluator scores one symbol. A nil signal with nil error means nothing
// cleared the threshold.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string) (*signal.Signal, error)
}

// Tracker is the performance tracking surface the orchestrator drives.
// Satisfied by *track.Tracker.
type Tracker interface {
	AddSignal(ctx context.Context, sig signal.Signal) error
	CheckPending(ctx context.Context)
	Stats() track.Stats
	ShouldAlertDegradation() (bool, track.Stats)
	DegradedTypes() []signal.Type
}

// Config controls the scan loop.
type Config struct {
	Interval             time.Duration
	Cooldown             time.Duration
	MaxConcurrency       int
	TopN                 int
	QuoteFilter          string
	CheckEvery           int
	DegradationThreshold float64
}

// Orchestrator runs the scan cycle: build the universe, evaluate symbols
// under the concurrency cap, forward the top signals, and periodically
// drive outcome checking and performance reporting.
type Orchestrator struct {
	provider  market.Provider
	evaluator Evaluator
	tracker   Tracker
	notifier  notify.Notifier
	metrics   *metrics.Registry
	cfg       Config
	logger    zerolog.Logger

	sem chan struct{}

	mu            sync.Mutex
	cooldownUntil map[string]time.Time

	cycles       int
	lastOutcomes track.TypeStats
}

func NewOrchestrator(provider market.Provider, evaluator Evaluator, tracker Tracker,
	notifier notify.Notifier, reg *metrics.Registry, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:      provider,
		evaluator:     evaluator,
		tracker:       tracker,
		notifier:      notifier,
		metrics:       reg,
		cfg:           cfg,
		logger:        logger.With().Str("component", "orchestrator").Logger(),
		sem:           make(chan struct{}, cfg.MaxConcurrency),
		cooldownUntil: make(map[string]time.Time),
	}
}

// Run executes scan cycles until the context ends. The first cycle starts
// immediately.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	o.RunCycle(ctx)
	for {
		select {
		case <-ticker.C:
			o.RunCycle(ctx)
		case <-ctx.Done():
			o.logger.Info().Msg("scan loop stopped")
			return
		}
	}
}

// RunCycle performs one full scan pass.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	start := time.Now()

	universe, err := o.universe(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("failed to build scan universe")
		return
	}
	o.metrics.SymbolsInScan.Set(float64(len(universe)))

	candidates := o.evaluateAll(ctx, universe)
	o.dispatch(ctx, candidates)

	o.cycles++
	if o.cfg.CheckEvery > 0 && o.cycles%o.cfg.CheckEvery == 0 {
		o.performancePass(ctx)
	}

	o.metrics.ScanCycles.Inc()
	o.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	o.logger.Info().
		Int("universe", len(universe)).
		Int("signals", len(candidates)).
		Dur("elapsed", time.Since(start)).
		Msg("scan cycle complete")
}

// universe lists tradable symbols matching the quote filter, skipping
// those still in cooldown.
func (o *Orchestrator) universe(ctx context.Context) ([]string, error) {
	tickers, err := o.provider.Tickers(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	o.mu.Lock()
	for symbol, until := range o.cooldownUntil {
		if now.After(until) {
			delete(o.cooldownUntil, symbol)
		}
	}
	cooled := make(map[string]bool, len(o.cooldownUntil))
	for symbol := range o.cooldownUntil {
		cooled[symbol] = true
	}
	o.mu.Unlock()

	symbols := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		if !strings.HasSuffix(ticker.Symbol, o.cfg.QuoteFilter) {
			continue
		}
		if cooled[ticker.Symbol] {
			o.metrics.SignalsRejected.WithLabelValues("cooldown").Inc()
			continue
		}
		symbols = append(symbols, ticker.Symbol)
	}
	return symbols, nil
}

// evaluateAll fans the universe out under the concurrency cap and
// collects everything that cleared the threshold.
func (o *Orchestrator) evaluateAll(ctx context.Context, symbols []string) []signal.Signal {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		candidates []signal.Signal
	)

	for _, symbol := range symbols {
		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return candidates
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-o.sem }()

			sig, err := o.evaluator.Evaluate(ctx, symbol)
			if err != nil {
				o.metrics.SignalsRejected.WithLabelValues("error").Inc()
				o.logger.Debug().Err(err).Str("symbol", symbol).Msg("evaluation failed")
				return
			}
			if sig == nil {
				return
			}

			mu.Lock()
			candidates = append(candidates, *sig)
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()
	return candidates
}

// dispatch forwards the strongest candidates, records them with the
// tracker, and starts their cooldowns.
func (o *Orchestrator) dispatch(ctx context.Context, candidates []signal.Signal) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Rating > candidates[j].Rating
	})
	if o.cfg.TopN > 0 && len(candidates) > o.cfg.TopN {
		for _, dropped := range candidates[o.cfg.TopN:] {
			o.metrics.SignalsRejected.WithLabelValues("top_n").Inc()
			o.logger.Debug().
				Str("symbol", dropped.Symbol).
				Int("rating", dropped.Rating).
				Msg("signal below cycle cutoff")
		}
		candidates = candidates[:o.cfg.TopN]
	}

	for _, sig := range candidates {
		o.mu.Lock()
		o.cooldownUntil[sig.Symbol] = time.Now().Add(o.cfg.Cooldown)
		o.mu.Unlock()

		// Recording is best effort: a store error must not hold back
		// delivery.
		if err := o.tracker.AddSignal(ctx, sig); err != nil {
			o.logger.Error().Err(err).Str("signal_id", sig.ID).Msg("failed to record signal")
		}
		if err := o.notifier.Signal(ctx, sig); err != nil {
			o.logger.Error().Err(err).Str("signal_id", sig.ID).Msg("failed to deliver signal")
		}
		o.metrics.SignalsEmitted.WithLabelValues(string(sig.Type)).Inc()
	}
}

// performancePass resolves due outcomes, reports, and alerts on win-rate
// degradation.
func (o *Orchestrator) performancePass(ctx context.Context) {
	o.tracker.CheckPending(ctx)

	alert, stats := o.tracker.ShouldAlertDegradation()
	o.observeOutcomes(stats.Overall)
	o.metrics.WinRate.Set(stats.Overall.WinRate)

	if err := o.notifier.Report(ctx, stats); err != nil {
		o.logger.Error().Err(err).Msg("failed to deliver performance report")
	}
	if alert {
		msg := notify.FormatDegradationAlert(stats, o.tracker.DegradedTypes(), o.cfg.DegradationThreshold)
		if err := o.notifier.Alert(ctx, msg); err != nil {
			o.logger.Error().Err(err).Msg("failed to deliver degradation alert")
		}
	}
}

// observeOutcomes feeds the outcome counters with the delta since the
// previous pass.
func (o *Orchestrator) observeOutcomes(overall track.TypeStats) {
	add := func(state string, now, prev int) {
		if d := now - prev; d > 0 {
			o.metrics.Outcomes.WithLabelValues(state).Add(float64(d))
		}
	}
	add("success", overall.Success, o.lastOutcomes.Success)
	add("failure", overall.Failure, o.lastOutcomes.Failure)
	add("timeout", overall.Timeout, o.lastOutcomes.Timeout)
	o.lastOutcomes = overall
}
