package bybit

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscreen/sigscreen/internal/market"
)

func TestBookStreamSnapshotThenDelta(t *testing.T) {
	s := NewBookStream("ws://unused", []string{"SOLUSDT"}, zerolog.Nop())

	snapshot := []byte(`{"topic":"orderbook.50.SOLUSDT","type":"snapshot","data":{
		"s":"SOLUSDT",
		"b":[["142.30","500"],["142.20","800"]],
		"a":[["142.40","450"]]
	}}`)
	require.NoError(t, s.handleMessage(snapshot))

	book, ok := s.Snapshot("SOLUSDT")
	require.True(t, ok)
	require.Len(t, book.Bids, 2)
	assert.InDelta(t, 142.30, book.Bids[0].Price, 1e-9, "best bid first")
	assert.InDelta(t, 142.40, book.Asks[0].Price, 1e-9)

	// Delta: grow one bid, remove the other, add an ask.
	delta := []byte(`{"topic":"orderbook.50.SOLUSDT","type":"delta","data":{
		"s":"SOLUSDT",
		"b":[["142.30","750"],["142.20","0"]],
		"a":[["142.50","300"]]
	}}`)
	require.NoError(t, s.handleMessage(delta))

	book, ok = s.Snapshot("SOLUSDT")
	require.True(t, ok)
	require.Len(t, book.Bids, 1)
	assert.InDelta(t, 750, book.Bids[0].Size, 1e-9)
	require.Len(t, book.Asks, 2)
	assert.InDelta(t, 142.40, book.Asks[0].Price, 1e-9, "asks stay best first")
	assert.InDelta(t, 142.50, book.Asks[1].Price, 1e-9)
}

func TestBookStreamFreshSnapshotResets(t *testing.T) {
	s := NewBookStream("ws://unused", []string{"SOLUSDT"}, zerolog.Nop())

	first := []byte(`{"type":"snapshot","data":{"s":"SOLUSDT","b":[["142.30","500"]],"a":[["142.40","450"]]}}`)
	require.NoError(t, s.handleMessage(first))

	second := []byte(`{"type":"snapshot","data":{"s":"SOLUSDT","b":[["143.00","100"]],"a":[["143.10","200"]]}}`)
	require.NoError(t, s.handleMessage(second))

	book, ok := s.Snapshot("SOLUSDT")
	require.True(t, ok)
	require.Len(t, book.Bids, 1)
	assert.InDelta(t, 143.00, book.Bids[0].Price, 1e-9, "a new snapshot replaces the book")
}

func TestBookStreamIgnoresAcks(t *testing.T) {
	s := NewBookStream("ws://unused", nil, zerolog.Nop())

	ack := []byte(`{"success":true,"op":"subscribe","conn_id":"abc"}`)
	require.NoError(t, s.handleMessage(ack))

	_, ok := s.Snapshot("SOLUSDT")
	assert.False(t, ok)
}

func TestBookStreamUnknownSymbol(t *testing.T) {
	s := NewBookStream("ws://unused", []string{"SOLUSDT"}, zerolog.Nop())
	_, ok := s.Snapshot("BTCUSDT")
	assert.False(t, ok)
}

type restBookProvider struct {
	market.Provider
	calls int
}

func (p *restBookProvider) OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBookSnapshot, error) {
	p.calls++
	return market.OrderBookSnapshot{
		Symbol: symbol,
		Bids:   []market.Level{{Price: 100, Size: 1}},
	}, nil
}

func TestLiveBookProviderPrefersStream(t *testing.T) {
	s := NewBookStream("ws://unused", []string{"SOLUSDT"}, zerolog.Nop())
	snapshot := []byte(`{"type":"snapshot","data":{"s":"SOLUSDT",
		"b":[["142.30","500"],["142.20","800"],["142.10","100"]],
		"a":[["142.40","450"]]
	}}`)
	require.NoError(t, s.handleMessage(snapshot))

	rest := &restBookProvider{}
	p := NewLiveBookProvider(rest, s)

	book, err := p.OrderBook(context.Background(), "SOLUSDT", 2)
	require.NoError(t, err)
	assert.Zero(t, rest.calls, "live book should not hit REST")
	require.Len(t, book.Bids, 2, "depth trims the mirrored book")
	assert.InDelta(t, 142.30, book.Bids[0].Price, 1e-9)

	// No live book for this symbol yet, so the call falls through.
	book, err = p.OrderBook(context.Background(), "BTCUSDT", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rest.calls)
	assert.InDelta(t, 100, book.Bids[0].Price, 1e-9)
}

func TestBookStreamSubscribeReplacesSymbols(t *testing.T) {
	s := NewBookStream("ws://unused", []string{"SOLUSDT"}, zerolog.Nop())
	s.Subscribe([]string{"BTCUSDT", "ETHUSDT"})

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, s.symbols)
}
