package predictor

// Stats holds statistics for the geometric predictor.
type Stats struct {
	// Predictions is the total number of predictions made.
	Predictions uint64
	// Correct is the number of resolved predictions that matched.
	Correct uint64
	// Mispredictions is the number of resolved predictions that did not.
	Mispredictions uint64
	// Allocations is the number of entries created on a cold lookup.
	Allocations uint64
	// Promotions is the number of entries moved to the next bank.
	Promotions uint64
	// Flushes is the number of in-flight predictions cancelled.
	Flushes uint64
}

// Resolved returns the number of predictions that have been resolved.
func (s Stats) Resolved() uint64 {
	return s.Correct + s.Mispredictions
}

// Accuracy returns the prediction accuracy as a percentage.
func (s Stats) Accuracy() float64 {
	if s.Resolved() == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Resolved()) * 100
}

// MispredictionRate returns the misprediction rate as a percentage.
func (s Stats) MispredictionRate() float64 {
	if s.Resolved() == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Resolved()) * 100
}
