package analytics

// countertrendThreshold is the reference trend magnitude beyond which
// opposing signals are filtered. Note HTFTrend saturates at exactly this
// value and the comparisons below are strict, so a reference trend
// sourced from HTFTrend passes unconditionally; only a stronger external
// trend score trips the filter.
const countertrendThreshold = 5

// TrendAllows is the trend-correlation filter: a signal is rejected when
// the reference instrument's trend exceeds the magnitude threshold in the
// direction opposite the signal. The reference instrument itself always
// passes.
func TrendAllows(symbol, refSymbol string, refTrend int, bullish bool) bool {
	if symbol == refSymbol {
		return true
	}
	if bullish && refTrend < -countertrendThreshold {
		return false
	}
	if !bullish && refTrend > countertrendThreshold {
		return false
	}
	return true
}
