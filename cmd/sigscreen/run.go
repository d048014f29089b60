package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/sigscreen/sigscreen/internal/config"
	"github.com/sigscreen/sigscreen/internal/market"
	"github.com/sigscreen/sigscreen/internal/market/bybit"
	"github.com/sigscreen/sigscreen/internal/market/cache"
	"github.com/sigscreen/sigscreen/internal/metrics"
	"github.com/sigscreen/sigscreen/internal/notify"
	"github.com/sigscreen/sigscreen/internal/regime"
	"github.com/sigscreen/sigscreen/internal/scan"
	sig "github.com/sigscreen/sigscreen/internal/signal"
	"github.com/sigscreen/sigscreen/internal/track"
)

// app holds the wired component graph.
type app struct {
	cfg          *config.Config
	registry     *metrics.Registry
	provider     market.Provider
	stream       *bybit.BookStream
	tracker      *track.Tracker
	orchestrator *scan.Orchestrator
	monitor      *metrics.Server
	closers      []func()
}

// wsSeedSymbols caps how many books the live stream mirrors. Remaining
// symbols fall back to REST snapshots.
const wsSeedSymbols = 30

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	registry := metrics.NewRegistry()
	logger := log.Logger

	client := bybit.NewClient(bybit.Config{
		BaseURL:        cfg.Provider.BaseURL,
		RequestTimeout: cfg.Provider.RequestTimeout,
		RPS:            cfg.Provider.RPS,
		Burst:          cfg.Provider.Burst,
		MaxRetries:     cfg.Provider.MaxRetries,
	}, registry, logger)

	var shared *cache.RedisTier
	if cfg.Cache.RedisAddr != "" {
		shared = cache.NewRedisTier(cfg.Cache.RedisAddr)
		logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("shared cache tier enabled")
	}
	var provider market.Provider = market.NewCachedProvider(client, shared, cfg.Cache.KlinesTTL, registry)

	var stream *bybit.BookStream
	if cfg.Provider.WSBaseURL != "" {
		stream = bybit.NewBookStream(cfg.Provider.WSBaseURL, nil, logger)
		provider = bybit.NewLiveBookProvider(provider, stream)
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	tracker := track.New(store, provider, track.Config{
		CheckAfter:           cfg.Tracker.CheckAfter,
		DegradationThreshold: cfg.Tracker.DegradationThreshold,
		MinResolved:          cfg.Tracker.MinResolved,
	}, logger)

	detector := regime.NewDetector(provider, cfg.Scan.ReferenceSym, cfg.Cache.ContextTTL)
	evaluator := sig.NewEvaluator(provider, detector, sig.EvaluatorConfig{
		ReferenceSymbol: cfg.Scan.ReferenceSym,
		MinScore:        cfg.Scan.MinScore,
		AccountSize:     cfg.Risk.AccountSize,
		RiskPerTrade:    cfg.Risk.RiskPerTrade,
	}, logger)

	notifier := notify.NewConsoleNotifier(logger)

	orchestrator := scan.NewOrchestrator(provider, evaluator, tracker, notifier, registry, scan.Config{
		Interval:             cfg.Scan.Interval,
		Cooldown:             cfg.Scan.Cooldown,
		MaxConcurrency:       cfg.Scan.MaxConcurrency,
		TopN:                 cfg.Scan.TopN,
		QuoteFilter:          cfg.Scan.QuoteFilter,
		CheckEvery:           cfg.Tracker.CheckEvery,
		DegradationThreshold: cfg.Tracker.DegradationThreshold,
	}, logger)

	a := &app{
		cfg:          cfg,
		registry:     registry,
		provider:     provider,
		stream:       stream,
		tracker:      tracker,
		orchestrator: orchestrator,
		monitor:      metrics.NewServer(cfg.Monitor.Addr, registry, tracker, logger),
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	return a, nil
}

func buildStore(cfg *config.Config) (track.Store, func(), error) {
	if cfg.Tracker.PostgresDSN != "" {
		db, err := sqlx.Connect("postgres", cfg.Tracker.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		return track.NewPostgresStore(db, 10*time.Second), func() { db.Close() }, nil
	}
	return track.NewFileStore(cfg.Tracker.StorePath), nil, nil
}

// startStream subscribes the live book mirror to the highest-turnover
// symbols in the scan universe and runs the consumer until ctx ends.
func (a *app) startStream(ctx context.Context) {
	tickers, err := a.provider.Tickers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("book stream seed failed, using REST snapshots")
	} else {
		var eligible []market.Ticker
		for _, t := range tickers {
			if strings.HasSuffix(t.Symbol, a.cfg.Scan.QuoteFilter) {
				eligible = append(eligible, t)
			}
		}
		sort.Slice(eligible, func(i, j int) bool {
			return eligible[i].Turnover24h > eligible[j].Turnover24h
		})
		if len(eligible) > wsSeedSymbols {
			eligible = eligible[:wsSeedSymbols]
		}
		symbols := make([]string, len(eligible))
		for i, t := range eligible {
			symbols[i] = t.Symbol
		}
		a.stream.Subscribe(symbols)
		log.Info().Int("symbols", len(symbols)).Msg("book stream seeded")
	}
	go a.stream.Run(ctx)
}

func (a *app) close() {
	for _, fn := range a.closers {
		fn()
	}
}

func runScan(configPath string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.tracker.LoadHistory(ctx); err != nil {
		return err
	}

	go func() {
		if err := a.monitor.Start(); err != nil {
			log.Error().Err(err).Msg("monitor server failed")
		}
	}()

	if a.stream != nil {
		a.startStream(ctx)
	}

	log.Info().
		Str("version", version).
		Dur("interval", a.cfg.Scan.Interval).
		Int("max_concurrency", a.cfg.Scan.MaxConcurrency).
		Msg("scan loop starting")

	a.orchestrator.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.monitor.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("monitor shutdown failed")
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func runOnce(configPath string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.tracker.LoadHistory(ctx); err != nil {
		return err
	}
	a.orchestrator.RunCycle(ctx)
	return nil
}

func runMonitor(configPath string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.tracker.LoadHistory(ctx); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.monitor.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("monitor shutdown failed")
		}
	}()

	return a.monitor.Start()
}

func runStats(configPath string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	if err := a.tracker.LoadHistory(ctx); err != nil {
		return err
	}

	fmt.Println(notify.FormatReport(a.tracker.Stats()))

	if degraded := a.tracker.DegradedTypes(); len(degraded) > 0 {
		_, stats := a.tracker.ShouldAlertDegradation()
		fmt.Println(notify.FormatDegradationAlert(stats, degraded, a.cfg.Tracker.DegradationThreshold))
	}
	return nil
}
