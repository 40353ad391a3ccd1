package strategy

// pnlPercent returns (price - entry) / entry * 100, or 0 for a non-positive entry.
func pnlPercent(entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (price - entry) / entry * 100
}
