package analytics

import "github.com/sigscreen/sigscreen/internal/market"

// Bias labels which side of the book dominates.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// dominanceRatio is how much one side's wall volume must exceed the
// other's before the bias leaves neutral.
const dominanceRatio = 1.5

// maxBookLevels caps how deep into the book wall detection looks.
const maxBookLevels = 20

// WhaleWall is a single outsized resting order.
type WhaleWall struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// WhaleActivity summarizes outsized resting liquidity on both sides.
type WhaleActivity struct {
	Bias          Bias       `json:"bias"`
	BidWall       *WhaleWall `json:"bid_wall,omitempty"` // largest bid wall
	AskWall       *WhaleWall `json:"ask_wall,omitempty"` // largest ask wall
	BidWallCount  int        `json:"bid_wall_count"`
	AskWallCount  int        `json:"ask_wall_count"`
	BidWallVolume float64    `json:"bid_wall_volume"`
	AskWallVolume float64    `json:"ask_wall_volume"`
}

// DetectWhaleWalls flags book levels whose size exceeds the side's average
// by thresholdMultiplier. Bias goes bullish when bid wall volume dominates
// ask wall volume (and vice versa); equal sides, including the empty book,
// stay neutral.
func DetectWhaleWalls(book market.OrderBookSnapshot, thresholdMultiplier float64) WhaleActivity {
	neutral := WhaleActivity{Bias: BiasNeutral}

	bids := book.Bids
	asks := book.Asks
	if len(bids) > maxBookLevels {
		bids = bids[:maxBookLevels]
	}
	if len(asks) > maxBookLevels {
		asks = asks[:maxBookLevels]
	}
	if len(bids) == 0 || len(asks) == 0 {
		return neutral
	}

	bidWalls, bidVolume := findWalls(bids, thresholdMultiplier)
	askWalls, askVolume := findWalls(asks, thresholdMultiplier)

	activity := WhaleActivity{
		Bias:          BiasNeutral,
		BidWallCount:  len(bidWalls),
		AskWallCount:  len(askWalls),
		BidWallVolume: bidVolume,
		AskWallVolume: askVolume,
	}

	if len(bidWalls) > 0 {
		activity.BidWall = largestWall(bidWalls)
	}
	if len(askWalls) > 0 {
		activity.AskWall = largestWall(askWalls)
	}

	if bidVolume > askVolume*dominanceRatio {
		activity.Bias = BiasBullish
	} else if askVolume > bidVolume*dominanceRatio {
		activity.Bias = BiasBearish
	}

	return activity
}

func findWalls(levels []market.Level, thresholdMultiplier float64) ([]WhaleWall, float64) {
	total := 0.0
	for _, l := range levels {
		total += l.Size
	}
	average := total / float64(len(levels))

	var walls []WhaleWall
	volume := 0.0
	for _, l := range levels {
		if l.Size > average*thresholdMultiplier {
			walls = append(walls, WhaleWall{Price: l.Price, Size: l.Size})
			volume += l.Size
		}
	}
	return walls, volume
}

func largestWall(walls []WhaleWall) *WhaleWall {
	largest := walls[0]
	for _, w := range walls[1:] {
		if w.Size > largest.Size {
			largest = w
		}
	}
	return &largest
}
