package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all Prometheus metrics for the screener.
type Registry struct {
	ScanCycles    prometheus.Counter
	ScanDuration  prometheus.Histogram
	SymbolsInScan prometheus.Gauge

	SignalsEmitted  *prometheus.CounterVec // by type
	SignalsRejected *prometheus.CounterVec // by reason
	Outcomes        *prometheus.CounterVec // by state

	CacheHits   *prometheus.CounterVec // by tier
	CacheMisses *prometheus.CounterVec

	ProviderRequests *prometheus.CounterVec // by endpoint, result
	ProviderLatency  *prometheus.HistogramVec

	WinRate prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates the metric set on a dedicated Prometheus registry so
// tests can run registries side by side.
func NewRegistry() *Registry {
	r := &Registry{
		ScanCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigscreen_scan_cycles_total",
			Help: "Completed scan cycles",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigscreen_scan_duration_seconds",
			Help:    "Wall time per scan cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		SymbolsInScan: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigscreen_symbols_in_scan",
			Help: "Symbols in the current scan universe",
		}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscreen_signals_emitted_total",
			Help: "Signals forwarded to the notifier, by type",
		}, []string{"type"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscreen_signals_rejected_total",
			Help: "Symbols skipped during evaluation, by reason",
		}, []string{"reason"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscreen_outcomes_total",
			Help: "Resolved signal outcomes, by state",
		}, []string{"state"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscreen_cache_hits_total",
			Help: "Market data cache hits, by tier",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscreen_cache_misses_total",
			Help: "Market data cache misses, by tier",
		}, []string{"tier"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscreen_provider_requests_total",
			Help: "Upstream market data requests, by endpoint and result",
		}, []string{"endpoint", "result"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sigscreen_provider_latency_seconds",
			Help:    "Upstream request latency, by endpoint",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		WinRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigscreen_win_rate",
			Help: "Overall resolved win rate, 0 to 1",
		}),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(
		r.ScanCycles, r.ScanDuration, r.SymbolsInScan,
		r.SignalsEmitted, r.SignalsRejected, r.Outcomes,
		r.CacheHits, r.CacheMisses,
		r.ProviderRequests, r.ProviderLatency,
		r.WinRate,
	)
	return r
}

// Gatherer exposes the underlying registry for the HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// ObserveCache feeds the cache counters; tier is "local" or "shared".
func (r *Registry) ObserveCache(tier string, hit bool) {
	if hit {
		r.CacheHits.WithLabelValues(tier).Inc()
		return
	}
	r.CacheMisses.WithLabelValues(tier).Inc()
}
