package stats

// medianSorted averages the two middle values of an even-length sample.
// sorted must be in ascending order and non-empty.
func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}
