package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscreen/sigscreen/internal/track"
)

type fixedStats struct{ stats track.Stats }

func (f *fixedStats) Stats() track.Stats { return f.stats }

func newTestServer(t *testing.T, stats track.Stats) *httptest.Server {
	t.Helper()
	srv := NewServer(":0", NewRegistry(), &fixedStats{stats: stats}, zerolog.Nop())
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, track.Stats{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, track.Stats{
		Overall: track.TypeStats{Total: 7, Success: 3, WinRate: 0.6},
	})

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats track.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 7, stats.Overall.Total)
	assert.InDelta(t, 0.6, stats.Overall.WinRate, 1e-9)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := NewRegistry()
	registry.ScanCycles.Inc()
	registry.SignalsEmitted.WithLabelValues("BIG_PUMP").Inc()

	srv := NewServer(":0", registry, &fixedStats{}, zerolog.Nop())
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "sigscreen_scan_cycles_total 1")
	assert.Contains(t, body, `sigscreen_signals_emitted_total{type="BIG_PUMP"} 1`)
}
