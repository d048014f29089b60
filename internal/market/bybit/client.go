package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sigscreen/sigscreen/internal/market"
	"github.com/sigscreen/sigscreen/internal/metrics"
)

// category pins all requests to USDT-margined perpetuals.
const category = "linear"

// Config bounds the REST client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RPS            float64
	Burst          int
	MaxRetries     int
}

// Client is the Bybit v5 market data client. Every request passes the
// token bucket first and then the circuit breaker, so a tripped breaker
// sheds load without burning rate budget.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	metrics    *metrics.Registry
	logger     zerolog.Logger
}

func NewClient(cfg Config, reg *metrics.Registry, logger zerolog.Logger) *Client {
	logger = logger.With().Str("component", "bybit").Logger()

	settings := gobreaker.Settings{
		Name:        "bybit-rest",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: cfg.MaxRetries,
		metrics:    reg,
		logger:     logger,
	}
}

// envelope is the Bybit v5 response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// Tickers returns the full linear-perpetual universe.
func (c *Client) Tickers(ctx context.Context) ([]market.Ticker, error) {
	params := url.Values{"category": {category}}

	var result struct {
		List []struct {
			Symbol      string `json:"symbol"`
			LastPrice   string `json:"lastPrice"`
			Turnover24h string `json:"turnover24h"`
		} `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/tickers", params, &result); err != nil {
		return nil, err
	}

	tickers := make([]market.Ticker, 0, len(result.List))
	for _, raw := range result.List {
		price, err := strconv.ParseFloat(raw.LastPrice, 64)
		if err != nil {
			continue
		}
		turnover, _ := strconv.ParseFloat(raw.Turnover24h, 64)
		tickers = append(tickers, market.Ticker{
			Symbol:      raw.Symbol,
			LastPrice:   price,
			Turnover24h: turnover,
		})
	}
	return tickers, nil
}

// Klines returns up to limit bars, oldest first. Bybit serves them newest
// first; the reversal happens here so everything downstream sees
// chronological series.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) (market.Series, error) {
	params := url.Values{
		"category": {category},
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/kline", params, &result); err != nil {
		return market.Series{}, err
	}

	klines := make([]market.Kline, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}
		bar, err := parseKline(row)
		if err != nil {
			return market.Series{}, fmt.Errorf("malformed kline for %s: %w", symbol, err)
		}
		klines = append(klines, bar)
	}

	return market.Series{Symbol: symbol, Interval: interval, Klines: klines}, nil
}

// OrderBook returns the book snapshot, both sides best price first.
func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBookSnapshot, error) {
	params := url.Values{
		"category": {category},
		"symbol":   {symbol},
		"limit":    {strconv.Itoa(depth)},
	}

	var result struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	}
	if err := c.get(ctx, "/v5/market/orderbook", params, &result); err != nil {
		return market.OrderBookSnapshot{}, err
	}

	bids, err := parseLevels(result.Bids)
	if err != nil {
		return market.OrderBookSnapshot{}, fmt.Errorf("malformed bids for %s: %w", symbol, err)
	}
	asks, err := parseLevels(result.Asks)
	if err != nil {
		return market.OrderBookSnapshot{}, fmt.Errorf("malformed asks for %s: %w", symbol, err)
	}

	return market.OrderBookSnapshot{Symbol: symbol, Bids: bids, Asks: asks}, nil
}

// get runs one API call with rate limiting, the circuit breaker, and
// jittered retries on transient failures.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			backoff += time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		raw, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, path, params)
		})
		c.observe(path, time.Since(start), err)

		if err != nil {
			lastErr = err
			if err == gobreaker.ErrOpenState || ctx.Err() != nil {
				return fmt.Errorf("bybit request %s: %w", path, err)
			}
			continue
		}

		if err := json.Unmarshal(raw.([]byte), out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("bybit request %s failed after %d attempts: %w", path, c.maxRetries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.RetCode != 0 {
		return nil, fmt.Errorf("api error %d: %s", env.RetCode, env.RetMsg)
	}
	return []byte(env.Result), nil
}

func (c *Client) observe(path string, elapsed time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.ProviderRequests.WithLabelValues(path, result).Inc()
	c.metrics.ProviderLatency.WithLabelValues(path).Observe(elapsed.Seconds())
}

func parseKline(row []string) (market.Kline, error) {
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return market.Kline{}, err
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return market.Kline{}, err
		}
		vals[i] = v
	}
	return market.Kline{
		OpenTime: time.UnixMilli(ms).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func parseLevels(rows [][]string) ([]market.Level, error) {
	levels := make([]market.Level, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, err
		}
		size, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, err
		}
		levels = append(levels, market.Level{Price: price, Size: size})
	}
	return levels, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
