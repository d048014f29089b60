package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sigscreen/sigscreen/internal/market"
)

const (
	wsBookDepth    = 50
	wsPingInterval = 20 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsReconnectMin = time.Second
	wsReconnectMax = 30 * time.Second
)

// BookStream maintains live order books over the public websocket. It is
// an optional fast path: consumers fall back to REST snapshots when a
// symbol has no live book yet.
type BookStream struct {
	url    string
	logger zerolog.Logger

	mu      sync.RWMutex
	symbols []string
	books   map[string]*liveBook
}

type liveBook struct {
	bids      map[string]float64 // price string -> size, as sent by the venue
	asks      map[string]float64
	updatedAt time.Time
}

func NewBookStream(wsURL string, symbols []string, logger zerolog.Logger) *BookStream {
	return &BookStream{
		url:     wsURL,
		symbols: symbols,
		logger:  logger.With().Str("component", "bybit_ws").Logger(),
		books:   make(map[string]*liveBook),
	}
}

// Subscribe replaces the symbol set. Takes effect on the next (re)connect.
func (s *BookStream) Subscribe(symbols []string) {
	s.mu.Lock()
	s.symbols = symbols
	s.mu.Unlock()
}

// Run connects and consumes until the context ends, reconnecting with
// backoff on any failure. Books reset on reconnect since the venue sends
// a fresh snapshot per subscription.
func (s *BookStream) Run(ctx context.Context) {
	backoff := wsReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("websocket disconnected, reconnecting")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > wsReconnectMax {
			backoff = wsReconnectMax
		}
	}
}

func (s *BookStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.books = make(map[string]*liveBook)
	symbols := append([]string(nil), s.symbols...)
	s.mu.Unlock()

	args := make([]string, len(symbols))
	for i, symbol := range symbols {
		args[i] = fmt.Sprintf("orderbook.%d.%s", wsBookDepth, symbol)
	}
	if len(args) > 0 {
		sub := map[string]interface{}{"op": "subscribe", "args": args}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe failed: %w", err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(ctx, conn, done)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			return err
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		if err := s.handleMessage(payload); err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed message")
		}
	}
}

func (s *BookStream) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

type bookMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	} `json:"data"`
}

func (s *BookStream) handleMessage(payload []byte) error {
	var msg bookMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	if msg.Data.Symbol == "" {
		// Subscription acks and pongs.
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[msg.Data.Symbol]
	if !ok || msg.Type == "snapshot" {
		book = &liveBook{bids: make(map[string]float64), asks: make(map[string]float64)}
		s.books[msg.Data.Symbol] = book
	}

	applyDelta(book.bids, msg.Data.Bids)
	applyDelta(book.asks, msg.Data.Asks)
	book.updatedAt = time.Now().UTC()
	return nil
}

// applyDelta merges level updates; a zero size removes the level.
func applyDelta(side map[string]float64, rows [][]string) {
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		size, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		if size == 0 {
			delete(side, row[0])
			continue
		}
		side[row[0]] = size
	}
}

// Snapshot returns the live book for a symbol, bids best first and asks
// best first, or false when no live book exists yet.
func (s *BookStream) Snapshot(symbol string) (market.OrderBookSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[symbol]
	if !ok || len(book.bids) == 0 || len(book.asks) == 0 {
		return market.OrderBookSnapshot{}, false
	}

	bids := sideLevels(book.bids)
	asks := sideLevels(book.asks)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	return market.OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: book.updatedAt,
	}, true
}

// LiveBookProvider layers the websocket book mirror over another
// provider: order books come from the live mirror when one exists for the
// symbol, everything else passes through.
type LiveBookProvider struct {
	market.Provider
	stream *BookStream
}

func NewLiveBookProvider(upstream market.Provider, stream *BookStream) *LiveBookProvider {
	return &LiveBookProvider{Provider: upstream, stream: stream}
}

func (p *LiveBookProvider) OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBookSnapshot, error) {
	if book, ok := p.stream.Snapshot(symbol); ok {
		if depth > 0 {
			if len(book.Bids) > depth {
				book.Bids = book.Bids[:depth]
			}
			if len(book.Asks) > depth {
				book.Asks = book.Asks[:depth]
			}
		}
		return book, nil
	}
	return p.Provider.OrderBook(ctx, symbol, depth)
}

func sideLevels(side map[string]float64) []market.Level {
	levels := make([]market.Level, 0, len(side))
	for priceStr, size := range side {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		levels = append(levels, market.Level{Price: price, Size: size})
	}
	return levels
}
