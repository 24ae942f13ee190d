package core

import "github.com/sarchlab/convpred/insts"

// DepthStats holds the conditional branch statistics of one dependence
// depth.
type DepthStats struct {
	// Branches is the number of resolved conditional branches.
	Branches uint64
	// Mispredictions is the number of those that were mispredicted.
	Mispredictions uint64
	// PenaltyCycles is the number of cycles charged to the mispredictions.
	PenaltyCycles uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (d DepthStats) Accuracy() float64 {
	if d.Branches == 0 {
		return 0
	}
	return float64(d.Branches-d.Mispredictions) / float64(d.Branches) * 100
}

// MispredictionRate returns the misprediction rate as a percentage.
func (d DepthStats) MispredictionRate() float64 {
	if d.Branches == 0 {
		return 0
	}
	return float64(d.Mispredictions) / float64(d.Branches) * 100
}

// Stats holds performance statistics for the core.
type Stats struct {
	// Instructions is the number of committed instructions.
	Instructions uint64
	// Flushes is the number of squashed instructions.
	Flushes uint64
	// ReferenceMispredictions counts the reference predictor's misses.
	ReferenceMispredictions uint64
	// SpecUpdates counts speculative updates by branch type.
	SpecUpdates [insts.NumBranchTypes]uint64

	// DepthStats aggregates every depth.
	DepthStats

	// ByDepth has one bucket per dependence depth.
	ByDepth []DepthStats
}

// MPKI returns mispredictions per thousand committed instructions.
func (s Stats) MPKI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Mispredictions) * 1000 / float64(s.Instructions)
}

// ReferenceAccuracy returns the reference predictor's accuracy as a
// percentage.
func (s Stats) ReferenceAccuracy() float64 {
	if s.Branches == 0 {
		return 0
	}
	return float64(s.Branches-s.ReferenceMispredictions) / float64(s.Branches) * 100
}

func (s Stats) clone() Stats {
	s.ByDepth = append([]DepthStats(nil), s.ByDepth...)
	return s
}
