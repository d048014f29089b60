package analytics

import (
	"sort"

	"github.com/sigscreen/sigscreen/internal/market"
)

// highVolumeFraction marks buckets carrying at least this share of the
// maximum bucket volume as significant levels.
const highVolumeFraction = 0.7

// VolumeProfile partitions a series' traded range into equal-width price
// buckets and accumulates volume per bucket.
type VolumeProfile struct {
	// POC is the center price of the bucket with maximum volume.
	POC float64 `json:"poc"`
	// VPOC is the volume-weighted average price across all bars.
	VPOC float64 `json:"vpoc"`
	// HighVolumeLevels are bucket prices above the high-volume fraction of
	// the maximum bucket, ordered by descending volume.
	HighVolumeLevels []float64 `json:"high_volume_levels"`
	// BucketVolumes holds the accumulated volume per bucket, low price first.
	BucketVolumes []float64 `json:"bucket_volumes,omitempty"`
	// Valid is false when the series is too short or has no price range;
	// consumers treat an invalid profile as a neutral result.
	Valid bool `json:"valid"`
}

// ComputeVolumeProfile builds a profile over numLevels buckets. A bar's
// volume is split evenly across every bucket its high-low range touches,
// so the bucket volumes always sum to the input volume. Series shorter
// than 10 bars, or with a degenerate price range, yield an invalid profile.
func ComputeVolumeProfile(series market.Series, numLevels int) VolumeProfile {
	bars := series.Klines
	if len(bars) < 10 || numLevels <= 0 {
		return VolumeProfile{}
	}

	priceMin := bars[0].Low
	priceMax := bars[0].High
	for _, bar := range bars {
		if bar.Low < priceMin {
			priceMin = bar.Low
		}
		if bar.High > priceMax {
			priceMax = bar.High
		}
	}

	priceRange := priceMax - priceMin
	if priceRange <= 0 {
		return VolumeProfile{}
	}

	levelSize := priceRange / float64(numLevels)
	volumes := make([]float64, numLevels)

	for _, bar := range bars {
		start := int((bar.Low - priceMin) / levelSize)
		end := int((bar.High - priceMin) / levelSize)
		if start < 0 {
			start = 0
		}
		// A low sitting exactly on the range top indexes one past the
		// last bucket.
		if start >= numLevels {
			start = numLevels - 1
		}
		if end >= numLevels {
			end = numLevels - 1
		}
		if end < start {
			end = start
		}
		share := bar.Volume / float64(end-start+1)
		for level := start; level <= end; level++ {
			volumes[level] += share
		}
	}

	pocLevel := 0
	maxVolume := volumes[0]
	totalVolume := 0.0
	for level, vol := range volumes {
		totalVolume += vol
		if vol > maxVolume {
			maxVolume = vol
			pocLevel = level
		}
	}
	if totalVolume <= 0 {
		return VolumeProfile{}
	}

	levelPrice := func(level int) float64 {
		return priceMin + float64(level)*levelSize + levelSize/2
	}

	// VPOC: volume-weighted typical price over the raw bars, independent of
	// the bucketing.
	weighted := 0.0
	barVolume := 0.0
	for _, bar := range bars {
		typical := (bar.High + bar.Low + bar.Close) / 3
		weighted += typical * bar.Volume
		barVolume += bar.Volume
	}

	type bucket struct {
		level  int
		volume float64
	}
	var high []bucket
	for level, vol := range volumes {
		if vol >= highVolumeFraction*maxVolume {
			high = append(high, bucket{level: level, volume: vol})
		}
	}
	sort.Slice(high, func(i, j int) bool { return high[i].volume > high[j].volume })

	levels := make([]float64, len(high))
	for i, b := range high {
		levels[i] = levelPrice(b.level)
	}

	return VolumeProfile{
		POC:              levelPrice(pocLevel),
		VPOC:             weighted / barVolume,
		HighVolumeLevels: levels,
		BucketVolumes:    volumes,
		Valid:            true,
	}
}
