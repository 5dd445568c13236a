package scoring

// Momentum returns the signed percentage change between two equal time
// slices. A zero prior slice is defined as 100 when the current slice
// has any activity and 0 otherwise, so brand-new activity signals
// distinctly from no activity without an undefined division.
func Momentum(current, prior float64) float64 {
	if prior == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - prior) / prior * 100
}
