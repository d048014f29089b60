package track

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sigscreen/sigscreen/internal/market"
	"github.com/sigscreen/sigscreen/internal/signal"
)

// maxResolveBars caps a single resolution fetch at the venue's per-request
// kline limit.
const maxResolveBars = 1000

// Config controls outcome resolution and degradation alerting.
type Config struct {
	CheckAfter           time.Duration // age before a signal is checked
	DegradationThreshold float64       // win rate below this alerts
	MinResolved          int           // resolved signals needed before alerting
}

// Tracker records emitted signals and resolves their outcomes against
// later price action. Each signal resolves exactly once: take-profit
// reached first is a success, stop-loss first is a failure, and neither
// within the check window is a timeout.
type Tracker struct {
	store    Store
	provider market.Provider
	cfg      Config
	logger   zerolog.Logger

	mu       sync.Mutex
	signals  map[string]*signal.Signal
	order    []string        // IDs in arrival order
	checking map[string]bool // outcome checks in flight
}

func New(store Store, provider market.Provider, cfg Config, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:    store,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "tracker").Logger(),
		signals:  make(map[string]*signal.Signal),
		checking: make(map[string]bool),
	}
}

// LoadHistory primes the tracker from the store. Prior runs' pending
// signals resume outcome checking.
func (t *Tracker) LoadHistory(ctx context.Context) error {
	signals, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load signal history: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range signals {
		sig := signals[i]
		if _, seen := t.signals[sig.ID]; !seen {
			t.order = append(t.order, sig.ID)
		}
		t.signals[sig.ID] = &sig
	}

	t.logger.Info().Int("signals", len(signals)).Msg("signal history loaded")
	return nil
}

// AddSignal records a newly emitted signal.
func (t *Tracker) AddSignal(ctx context.Context, sig signal.Signal) error {
	if sig.ID == "" {
		return fmt.Errorf("signal has no ID")
	}
	if err := t.store.Append(ctx, sig); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.signals[sig.ID]; !seen {
		t.order = append(t.order, sig.ID)
	}
	t.signals[sig.ID] = &sig
	return nil
}

// CheckOutcome resolves one signal if its check window has elapsed.
// Already-resolved signals and signals still inside the window are left
// untouched; concurrent calls for the same ID coalesce to one check.
func (t *Tracker) CheckOutcome(ctx context.Context, id string) error {
	t.mu.Lock()
	sig, ok := t.signals[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("unknown signal %s", id)
	}
	if sig.Outcome.State.Resolved() || t.checking[id] {
		t.mu.Unlock()
		return nil
	}
	if time.Since(sig.CreatedAt) < t.cfg.CheckAfter {
		t.mu.Unlock()
		return nil
	}
	t.checking[id] = true
	snapshot := *sig
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.checking, id)
		t.mu.Unlock()
	}()

	outcome, resolved, err := t.resolve(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("failed to resolve signal %s: %w", id, err)
	}
	if !resolved {
		return nil
	}

	t.mu.Lock()
	sig.Outcome = outcome
	updated := *sig
	t.mu.Unlock()

	if err := t.store.Update(ctx, updated); err != nil {
		return fmt.Errorf("failed to persist outcome for %s: %w", id, err)
	}

	t.logger.Info().
		Str("signal_id", id).
		Str("symbol", updated.Symbol).
		Str("state", string(outcome.State)).
		Float64("pnl_pct", outcome.PnLPercent).
		Msg("signal outcome resolved")
	return nil
}

// resolve walks the minute bars inside the check window. Hitting both
// levels inside one bar counts as a failure, since bar data cannot order
// the touches.
func (t *Tracker) resolve(ctx context.Context, sig signal.Signal) (signal.Outcome, bool, error) {
	windowEnd := sig.CreatedAt.Add(t.cfg.CheckAfter)
	// Fetch back to the signal's creation, not just the window length:
	// a pass running long after the window closed still needs the
	// window's bars.
	limit := int(time.Since(sig.CreatedAt).Minutes()) + 5
	if limit < 10 {
		limit = 10
	}
	if limit > maxResolveBars {
		limit = maxResolveBars
	}

	series, err := t.provider.Klines(ctx, sig.Symbol, "1", limit)
	if err != nil {
		return signal.Outcome{}, false, err
	}

	long := sig.Type.Bullish()
	var window []market.Kline
	for _, bar := range series.Klines {
		if bar.OpenTime.Before(sig.CreatedAt.Truncate(time.Minute)) {
			continue
		}
		if !bar.OpenTime.Before(windowEnd) {
			break
		}
		window = append(window, bar)
	}
	if len(window) == 0 {
		if len(series.Klines) > 0 && !series.Klines[0].OpenTime.Before(windowEnd) {
			// The window's bars have aged out of reach; no later fetch
			// can recover them, so the trade times out flat at entry.
			return outcomeAt(sig, signal.OutcomeTimeout, sig.Price, time.Now().UTC()), true, nil
		}
		// Data gap a later pass can still fill; leave pending.
		return signal.Outcome{}, false, nil
	}

	now := time.Now().UTC()
	for _, bar := range window {
		hitTP := (long && bar.High >= sig.TPConservative) ||
			(!long && bar.Low <= sig.TPConservative)
		hitSL := (long && bar.Low <= sig.StopLoss) ||
			(!long && bar.High >= sig.StopLoss)

		switch {
		case hitTP && hitSL:
			return outcomeAt(sig, signal.OutcomeFailure, sig.StopLoss, now), true, nil
		case hitTP:
			return outcomeAt(sig, signal.OutcomeSuccess, sig.TPConservative, now), true, nil
		case hitSL:
			return outcomeAt(sig, signal.OutcomeFailure, sig.StopLoss, now), true, nil
		}
	}

	// Neither level inside the window: the trade timed out at wherever
	// price drifted to.
	exit := window[len(window)-1].Close
	return outcomeAt(sig, signal.OutcomeTimeout, exit, now), true, nil
}

func outcomeAt(sig signal.Signal, state signal.OutcomeState, exit float64, at time.Time) signal.Outcome {
	pnl := 0.0
	if sig.Price > 0 {
		pnl = (exit - sig.Price) / sig.Price * 100
		if !sig.Type.Bullish() {
			pnl = -pnl
		}
	}
	return signal.Outcome{
		State:      state,
		PnLPercent: pnl,
		ExitPrice:  exit,
		ResolvedAt: &at,
	}
}

// CheckPending runs an outcome pass over every unresolved signal whose
// window has elapsed. Individual failures are logged and skipped so one
// bad symbol cannot stall the pass.
func (t *Tracker) CheckPending(ctx context.Context) {
	t.mu.Lock()
	due := make([]string, 0)
	for _, id := range t.order {
		sig := t.signals[id]
		if !sig.Outcome.State.Resolved() && time.Since(sig.CreatedAt) >= t.cfg.CheckAfter {
			due = append(due, id)
		}
	}
	t.mu.Unlock()

	for _, id := range due {
		if ctx.Err() != nil {
			return
		}
		if err := t.CheckOutcome(ctx, id); err != nil {
			t.logger.Warn().Err(err).Str("signal_id", id).Msg("outcome check failed")
		}
	}
}

// TypeStats aggregates outcomes for one slice of the history. The win
// rate counts timeouts in the denominator: an undecided trade still spent
// the budgeted time without winning.
type TypeStats struct {
	Total   int     `json:"total"`
	Success int     `json:"success"`
	Failure int     `json:"failure"`
	Timeout int     `json:"timeout"`
	Pending int     `json:"pending"`
	WinRate float64 `json:"win_rate"`
	AvgPnL  float64 `json:"avg_pnl_pct"`
}

func (s *TypeStats) add(sig *signal.Signal) {
	s.Total++
	switch sig.Outcome.State {
	case signal.OutcomeSuccess:
		s.Success++
	case signal.OutcomeFailure:
		s.Failure++
	case signal.OutcomeTimeout:
		s.Timeout++
	default:
		s.Pending++
	}
}

func (s *TypeStats) finalize(pnlSum float64) {
	resolved := s.Success + s.Failure + s.Timeout
	if resolved > 0 {
		s.WinRate = float64(s.Success) / float64(resolved)
		s.AvgPnL = pnlSum / float64(resolved)
	}
}

// Stats is the full performance report.
type Stats struct {
	Overall  TypeStats                 `json:"overall"`
	ByType   map[signal.Type]TypeStats `json:"by_type"`
	ByRating map[string]TypeStats      `json:"by_rating"`
}

func ratingBucket(rating int) string {
	switch {
	case rating >= 90:
		return "90-100"
	case rating >= 80:
		return "80-89"
	case rating >= 70:
		return "70-79"
	default:
		return "60-69"
	}
}

// Stats aggregates the full history by type and by rating bucket.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{
		ByType:   make(map[signal.Type]TypeStats),
		ByRating: make(map[string]TypeStats),
	}
	pnlOverall := 0.0
	pnlByType := make(map[signal.Type]float64)
	pnlByRating := make(map[string]float64)

	for _, id := range t.order {
		sig := t.signals[id]
		bucket := ratingBucket(sig.Rating)

		stats.Overall.add(sig)
		byType := stats.ByType[sig.Type]
		byType.add(sig)
		stats.ByType[sig.Type] = byType
		byRating := stats.ByRating[bucket]
		byRating.add(sig)
		stats.ByRating[bucket] = byRating

		if sig.Outcome.State.Resolved() {
			pnlOverall += sig.Outcome.PnLPercent
			pnlByType[sig.Type] += sig.Outcome.PnLPercent
			pnlByRating[bucket] += sig.Outcome.PnLPercent
		}
	}

	stats.Overall.finalize(pnlOverall)
	for sigType, ts := range stats.ByType {
		ts.finalize(pnlByType[sigType])
		stats.ByType[sigType] = ts
	}
	for bucket, ts := range stats.ByRating {
		ts.finalize(pnlByRating[bucket])
		stats.ByRating[bucket] = ts
	}
	return stats
}

// DegradedTypes returns the signal types whose win rate has fallen below
// the degradation threshold, provided enough of their signals have
// resolved to make the rate meaningful. Sorted for stable reporting.
func (t *Tracker) DegradedTypes() []signal.Type {
	stats := t.Stats()

	var degraded []signal.Type
	for sigType, ts := range stats.ByType {
		resolved := ts.Success + ts.Failure + ts.Timeout
		if resolved >= t.cfg.MinResolved && ts.WinRate < t.cfg.DegradationThreshold {
			degraded = append(degraded, sigType)
		}
	}
	sort.Slice(degraded, func(i, j int) bool { return degraded[i] < degraded[j] })
	return degraded
}

// ShouldAlertDegradation reports whether the overall win rate has fallen
// below the threshold with enough resolved history behind it.
func (t *Tracker) ShouldAlertDegradation() (bool, Stats) {
	stats := t.Stats()
	resolved := stats.Overall.Success + stats.Overall.Failure + stats.Overall.Timeout
	if resolved < t.cfg.MinResolved {
		return false, stats
	}
	return stats.Overall.WinRate < t.cfg.DegradationThreshold, stats
}
