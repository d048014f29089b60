package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscreen/sigscreen/internal/market"
)

func TestDetectWhaleWalls_EmptyBookNeutral(t *testing.T) {
	activity := DetectWhaleWalls(market.OrderBookSnapshot{}, 10)
	assert.Equal(t, BiasNeutral, activity.Bias)
	assert.Nil(t, activity.BidWall)
	assert.Nil(t, activity.AskWall)
}

func TestDetectWhaleWalls_LargeBidWallBullish(t *testing.T) {
	book := market.OrderBookSnapshot{
		Bids: []market.Level{{Price: 100, Size: 10}, {Price: 99, Size: 10}, {Price: 98, Size: 200}},
		Asks: []market.Level{{Price: 101, Size: 10}, {Price: 102, Size: 10}, {Price: 103, Size: 10}},
	}

	activity := DetectWhaleWalls(book, 2.0)
	assert.Equal(t, BiasBullish, activity.Bias)
	require.NotNil(t, activity.BidWall)
	assert.Equal(t, 98.0, activity.BidWall.Price)
	assert.Equal(t, 200.0, activity.BidWall.Size)
	assert.Equal(t, 1, activity.BidWallCount)
	assert.Zero(t, activity.AskWallCount)
}

func TestDetectWhaleWalls_LargeAskWallBearish(t *testing.T) {
	book := market.OrderBookSnapshot{
		Bids: []market.Level{{Price: 100, Size: 10}, {Price: 99, Size: 10}, {Price: 98, Size: 10}},
		Asks: []market.Level{{Price: 101, Size: 10}, {Price: 102, Size: 10}, {Price: 103, Size: 200}},
	}

	activity := DetectWhaleWalls(book, 2.0)
	assert.Equal(t, BiasBearish, activity.Bias)
	require.NotNil(t, activity.AskWall)
	assert.Equal(t, 103.0, activity.AskWall.Price)
}

func TestDetectWhaleWalls_SymmetricBookNeutral(t *testing.T) {
	book := market.OrderBookSnapshot{
		Bids: []market.Level{{Price: 100, Size: 10}, {Price: 99, Size: 10}, {Price: 98, Size: 150}},
		Asks: []market.Level{{Price: 101, Size: 10}, {Price: 102, Size: 10}, {Price: 103, Size: 150}},
	}

	activity := DetectWhaleWalls(book, 2.0)
	assert.Equal(t, BiasNeutral, activity.Bias, "equal wall counts and sizes tie-break to neutral")
	assert.Equal(t, activity.BidWallCount, activity.AskWallCount)
	assert.Equal(t, activity.BidWallVolume, activity.AskWallVolume)
}

func TestDetectWhaleWalls_LargestWallPerSide(t *testing.T) {
	book := market.OrderBookSnapshot{
		Bids: []market.Level{{Price: 100, Size: 5}, {Price: 99, Size: 120}, {Price: 98, Size: 90}},
		Asks: []market.Level{{Price: 101, Size: 5}, {Price: 102, Size: 5}, {Price: 103, Size: 5}},
	}

	activity := DetectWhaleWalls(book, 1.5)
	require.NotNil(t, activity.BidWall)
	assert.Equal(t, 120.0, activity.BidWall.Size, "the single largest bid wall is reported")
}

func TestTrendAllows(t *testing.T) {
	tests := []struct {
		name     string
		symbol   string
		refTrend int
		bullish  bool
		want     bool
	}{
		{"reference symbol always passes", "BTCUSDT", -10, true, true},
		{"pump against strong reference dump rejected", "ETHUSDT", -7, true, false},
		{"dump against strong reference pump rejected", "ETHUSDT", 7, false, false},
		{"pump with mild reference dump passes", "ETHUSDT", -3, true, true},
		{"dump with mild reference pump passes", "ETHUSDT", 3, false, true},
		{"aligned directions pass", "ETHUSDT", 7, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrendAllows(tt.symbol, "BTCUSDT", tt.refTrend, tt.bullish)
			assert.Equal(t, tt.want, got)
		})
	}
}
