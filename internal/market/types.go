package market

import (
	"context"
	"fmt"
	"time"
)

// Kline is a single OHLCV bar.
type Kline struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Series is an ordered sequence of bars for one symbol/interval, oldest
// first. A Series is immutable once fetched.
type Series struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	Klines   []Kline `json:"klines"`
}

// Len returns the number of bars in the series.
func (s Series) Len() int { return len(s.Klines) }

// Last returns the most recent bar, or false when the series is empty.
func (s Series) Last() (Kline, bool) {
	if len(s.Klines) == 0 {
		return Kline{}, false
	}
	return s.Klines[len(s.Klines)-1], true
}

// Closes returns the close prices in chronological order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Klines))
	for i, k := range s.Klines {
		out[i] = k.Close
	}
	return out
}

// Volumes returns the traded volumes in chronological order.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s.Klines))
	for i, k := range s.Klines {
		out[i] = k.Volume
	}
	return out
}

// Level is a single price/size pair on one side of the book.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBookSnapshot captures resting liquidity at a point in time. Bids are
// ordered best (highest) first, asks best (lowest) first. Snapshots are
// consumed by whale detection only and never persisted.
type OrderBookSnapshot struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticker is a universe entry from the venue's ticker endpoint.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"last_price"`
	Turnover24h float64 `json:"turnover_24h"`
}

// Provider supplies read-only market data. Implementations may fail
// transiently; callers tolerate and skip.
type Provider interface {
	Tickers(ctx context.Context) ([]Ticker, error)
	Klines(ctx context.Context, symbol, interval string, limit int) (Series, error)
	OrderBook(ctx context.Context, symbol string, depth int) (OrderBookSnapshot, error)
}

// SeriesKey builds the cache key for a symbol/interval/length request.
func SeriesKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("klines:%s:%s:%d", symbol, interval, limit)
}
