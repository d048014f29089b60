package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscreen/sigscreen/internal/market"
	"github.com/sigscreen/sigscreen/internal/metrics"
	"github.com/sigscreen/sigscreen/internal/signal"
	"github.com/sigscreen/sigscreen/internal/track"
)

type stubProvider struct {
	tickers    []market.Ticker
	tickersErr error
}

func (p *stubProvider) Tickers(ctx context.Context) ([]market.Ticker, error) {
	return p.tickers, p.tickersErr
}

func (p *stubProvider) Klines(ctx context.Context, symbol, interval string, limit int) (market.Series, error) {
	return market.Series{}, nil
}

func (p *stubProvider) OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBookSnapshot, error) {
	return market.OrderBookSnapshot{}, nil
}

type stubEvaluator struct {
	mu          sync.Mutex
	signals     map[string]*signal.Signal
	errs        map[string]error
	inFlight    int32
	maxObserved int32
	evaluated   []string
}

func (e *stubEvaluator) Evaluate(ctx context.Context, symbol string) (*signal.Signal, error) {
	cur := atomic.AddInt32(&e.inFlight, 1)
	defer atomic.AddInt32(&e.inFlight, -1)
	for {
		max := atomic.LoadInt32(&e.maxObserved)
		if cur <= max || atomic.CompareAndSwapInt32(&e.maxObserved, max, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond) // let goroutines overlap

	e.mu.Lock()
	e.evaluated = append(e.evaluated, symbol)
	e.mu.Unlock()

	if err := e.errs[symbol]; err != nil {
		return nil, err
	}
	return e.signals[symbol], nil
}

type stubTracker struct {
	mu            sync.Mutex
	added         []signal.Signal
	addErr        error
	checkPendings int
	stats         track.Stats
	alert         bool
	degraded      []signal.Type
}

func (t *stubTracker) AddSignal(ctx context.Context, sig signal.Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.addErr != nil {
		return t.addErr
	}
	t.added = append(t.added, sig)
	return nil
}

func (t *stubTracker) CheckPending(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkPendings++
}

func (t *stubTracker) Stats() track.Stats { return t.stats }

func (t *stubTracker) ShouldAlertDegradation() (bool, track.Stats) { return t.alert, t.stats }

func (t *stubTracker) DegradedTypes() []signal.Type { return t.degraded }

type stubNotifier struct {
	mu      sync.Mutex
	signals []signal.Signal
	reports int
	alerts  []string
}

func (n *stubNotifier) Signal(ctx context.Context, sig signal.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, sig)
	return nil
}

func (n *stubNotifier) Report(ctx context.Context, stats track.Stats) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports++
	return nil
}

func (n *stubNotifier) Alert(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
	return nil
}

func usdtTickers(symbols ...string) []market.Ticker {
	tickers := make([]market.Ticker, len(symbols))
	for i, s := range symbols {
		tickers[i] = market.Ticker{Symbol: s, LastPrice: 100}
	}
	return tickers
}

func sigFor(symbol string, rating int) *signal.Signal {
	return &signal.Signal{
		ID:        symbol + "-sig",
		Symbol:    symbol,
		Type:      signal.TypeBigPump,
		Price:     100,
		Rating:    rating,
		CreatedAt: time.Now().UTC(),
		Outcome:   signal.Outcome{State: signal.OutcomePending},
	}
}

func testOrchestrator(p *stubProvider, e *stubEvaluator, tr *stubTracker, n *stubNotifier, cfg Config) *Orchestrator {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.QuoteFilter == "" {
		cfg.QuoteFilter = "USDT"
	}
	return NewOrchestrator(p, e, tr, n, metrics.NewRegistry(), cfg, zerolog.Nop())
}

func TestRunCycleForwardsSignals(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT", "BBBUSDT", "CCCUSDT")}
	e := &stubEvaluator{signals: map[string]*signal.Signal{
		"AAAUSDT": sigFor("AAAUSDT", 80),
		"CCCUSDT": sigFor("CCCUSDT", 70),
	}}
	tr := &stubTracker{}
	n := &stubNotifier{}

	o := testOrchestrator(p, e, tr, n, Config{Cooldown: time.Minute, TopN: 10})
	o.RunCycle(context.Background())

	assert.Len(t, e.evaluated, 3)
	require.Len(t, tr.added, 2)
	require.Len(t, n.signals, 2)
	assert.Equal(t, "AAAUSDT", n.signals[0].Symbol, "strongest signal first")
}

func TestRunCycleDeliversDespiteStoreError(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT")}
	e := &stubEvaluator{signals: map[string]*signal.Signal{
		"AAAUSDT": sigFor("AAAUSDT", 80),
	}}
	tr := &stubTracker{addErr: errors.New("store down")}
	n := &stubNotifier{}

	o := testOrchestrator(p, e, tr, n, Config{Cooldown: time.Minute, TopN: 10})
	o.RunCycle(context.Background())

	require.Len(t, n.signals, 1, "a recording failure must not suppress delivery")
	assert.Empty(t, tr.added)
}

func TestRunCycleFiltersQuoteCurrency(t *testing.T) {
	p := &stubProvider{tickers: []market.Ticker{
		{Symbol: "AAAUSDT"}, {Symbol: "BBBBTC"}, {Symbol: "CCCUSDC"},
	}}
	e := &stubEvaluator{}
	o := testOrchestrator(p, e, &stubTracker{}, &stubNotifier{}, Config{Cooldown: time.Minute})

	o.RunCycle(context.Background())
	assert.Equal(t, []string{"AAAUSDT"}, e.evaluated)
}

func TestRunCycleHonorsCooldown(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT", "BBBUSDT")}
	e := &stubEvaluator{signals: map[string]*signal.Signal{
		"AAAUSDT": sigFor("AAAUSDT", 80),
	}}
	tr := &stubTracker{}
	n := &stubNotifier{}
	o := testOrchestrator(p, e, tr, n, Config{Cooldown: time.Hour, TopN: 10})

	o.RunCycle(context.Background())
	require.Len(t, n.signals, 1)

	// Second cycle: AAAUSDT is cooling down, BBBUSDT is re-evaluated.
	e.mu.Lock()
	e.evaluated = nil
	e.mu.Unlock()
	o.RunCycle(context.Background())

	assert.Equal(t, []string{"BBBUSDT"}, e.evaluated)
	assert.Len(t, n.signals, 1, "no repeat signal during cooldown")
}

func TestRunCycleCooldownExpires(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT")}
	e := &stubEvaluator{signals: map[string]*signal.Signal{
		"AAAUSDT": sigFor("AAAUSDT", 80),
	}}
	n := &stubNotifier{}
	o := testOrchestrator(p, e, &stubTracker{}, n, Config{Cooldown: 5 * time.Millisecond, TopN: 10})

	o.RunCycle(context.Background())
	time.Sleep(10 * time.Millisecond)
	o.RunCycle(context.Background())

	assert.Len(t, n.signals, 2, "expired cooldown re-admits the symbol")
}

func TestRunCycleTopNCutoff(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT", "BBBUSDT", "CCCUSDT")}
	e := &stubEvaluator{signals: map[string]*signal.Signal{
		"AAAUSDT": sigFor("AAAUSDT", 65),
		"BBBUSDT": sigFor("BBBUSDT", 90),
		"CCCUSDT": sigFor("CCCUSDT", 75),
	}}
	tr := &stubTracker{}
	n := &stubNotifier{}
	o := testOrchestrator(p, e, tr, n, Config{Cooldown: time.Minute, TopN: 2})

	o.RunCycle(context.Background())

	require.Len(t, n.signals, 2)
	assert.Equal(t, "BBBUSDT", n.signals[0].Symbol)
	assert.Equal(t, "CCCUSDT", n.signals[1].Symbol)
}

func TestRunCycleConcurrencyCap(t *testing.T) {
	symbols := make([]string, 12)
	for i := range symbols {
		symbols[i] = string(rune('A'+i)) + "AAUSDT"
	}
	p := &stubProvider{tickers: usdtTickers(symbols...)}
	e := &stubEvaluator{}
	o := testOrchestrator(p, e, &stubTracker{}, &stubNotifier{}, Config{
		Cooldown:       time.Minute,
		MaxConcurrency: 3,
	})

	o.RunCycle(context.Background())

	assert.Len(t, e.evaluated, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&e.maxObserved), int32(3))
}

func TestRunCycleSurvivesEvaluatorErrors(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT", "BBBUSDT")}
	e := &stubEvaluator{
		errs:    map[string]error{"AAAUSDT": errors.New("fetch failed")},
		signals: map[string]*signal.Signal{"BBBUSDT": sigFor("BBBUSDT", 70)},
	}
	n := &stubNotifier{}
	o := testOrchestrator(p, e, &stubTracker{}, n, Config{Cooldown: time.Minute, TopN: 10})

	o.RunCycle(context.Background())
	require.Len(t, n.signals, 1)
	assert.Equal(t, "BBBUSDT", n.signals[0].Symbol)
}

func TestPerformancePassCadence(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT")}
	tr := &stubTracker{}
	n := &stubNotifier{}
	o := testOrchestrator(p, &stubEvaluator{}, tr, n, Config{
		Cooldown:   time.Minute,
		CheckEvery: 3,
	})

	for i := 0; i < 6; i++ {
		o.RunCycle(context.Background())
	}

	assert.Equal(t, 2, tr.checkPendings, "outcome pass every third cycle")
	assert.Equal(t, 2, n.reports)
}

func TestPerformancePassAlertsOnDegradation(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT")}
	tr := &stubTracker{
		alert:    true,
		stats:    track.Stats{Overall: track.TypeStats{Total: 30, Success: 8, Failure: 20, Timeout: 2, WinRate: 8.0 / 30.0}},
		degraded: []signal.Type{signal.TypeBigPump},
	}
	n := &stubNotifier{}
	o := testOrchestrator(p, &stubEvaluator{}, tr, n, Config{
		Cooldown:             time.Minute,
		CheckEvery:           1,
		DegradationThreshold: 0.45,
	})

	o.RunCycle(context.Background())

	require.Len(t, n.alerts, 1)
	assert.Contains(t, n.alerts[0], "ALERT")
	assert.Contains(t, n.alerts[0], "BIG_PUMP")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	p := &stubProvider{tickers: usdtTickers("AAAUSDT")}
	o := testOrchestrator(p, &stubEvaluator{}, &stubTracker{}, &stubNotifier{}, Config{
		Interval: 5 * time.Millisecond,
		Cooldown: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("orchestrator did not stop on cancel")
	}
}

func TestUniverseErrorSkipsCycle(t *testing.T) {
	p := &stubProvider{tickersErr: errors.New("venue down")}
	e := &stubEvaluator{}
	o := testOrchestrator(p, e, &stubTracker{}, &stubNotifier{}, Config{Cooldown: time.Minute})

	o.RunCycle(context.Background())
	assert.Empty(t, e.evaluated)
}
