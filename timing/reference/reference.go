// Package reference provides a conventional tournament branch predictor
// (bimodal + gshare with a chooser, plus a Branch Target Buffer). The core
// runs it beside the geometric predictor as a baseline and records its
// direction in the debug log.
package reference

// Config holds configuration for the reference predictor.
type Config struct {
	// BHTSize is the number of entries in the bimodal, gshare and chooser
	// tables. Must be a power of 2. Default is 4096.
	BHTSize uint32 `json:"bht_size" toml:"bht_size"`
	// BTBSize is the number of entries in the Branch Target Buffer.
	// Must be a power of 2. Default is 512.
	BTBSize uint32 `json:"btb_size" toml:"btb_size"`
	// GlobalHistoryLength is the number of outcomes folded into the
	// gshare index. Default is 12.
	GlobalHistoryLength uint32 `json:"global_history_length" toml:"global_history_length"`
	// UseTournament enables gshare and the chooser. When false the
	// predictor is purely bimodal.
	UseTournament bool `json:"use_tournament" toml:"use_tournament"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		BHTSize:             4096,
		BTBSize:             512,
		GlobalHistoryLength: 12,
		UseTournament:       true,
	}
}

// Stats holds statistics for the reference predictor.
type Stats struct {
	// Predictions is the total number of branch predictions made.
	Predictions uint64
	// Correct is the number of updates whose chosen prediction matched.
	Correct uint64
	// Mispredictions is the number of updates whose chosen prediction
	// did not match.
	Mispredictions uint64
	// BimodalCorrect and GshareCorrect count correct component predictions.
	BimodalCorrect uint64
	GshareCorrect  uint64
	// TournamentChoseBimodal and TournamentChoseGshare count the chooser's
	// decisions at prediction time.
	TournamentChoseBimodal uint64
	TournamentChoseGshare  uint64
	// BTBHits is the number of BTB hits.
	BTBHits uint64
	// BTBMisses is the number of BTB misses.
	BTBMisses uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s Stats) Accuracy() float64 {
	total := s.Correct + s.Mispredictions
	if total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(total) * 100
}

// BTBHitRate returns the BTB hit rate as a percentage.
func (s Stats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(total) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted target address (if known from BTB).
	Target uint64
	// TargetKnown indicates whether the target address is known.
	TargetKnown bool
}

// Predictor is a tournament predictor over 2-bit saturating counters.
// Counter states: 0=Strongly Not Taken, 1=Weakly Not Taken,
// 2=Weakly Taken, 3=Strongly Taken.
type Predictor struct {
	config Config

	bimodal []uint8
	gshare  []uint8
	// chooser >= 2 selects gshare.
	chooser []uint8

	ghr     uint64
	ghrMask uint64

	btb      []btbEntry
	btbValid []bool

	stats Stats
}

// btbEntry represents an entry in the Branch Target Buffer.
type btbEntry struct {
	pc     uint64
	target uint64
}

// New creates a reference predictor. Zero sizes fall back to defaults.
func New(config Config) *Predictor {
	defaults := DefaultConfig()
	if config.BHTSize == 0 {
		config.BHTSize = defaults.BHTSize
	}
	if config.BTBSize == 0 {
		config.BTBSize = defaults.BTBSize
	}

	p := &Predictor{
		config:   config,
		bimodal:  make([]uint8, config.BHTSize),
		gshare:   make([]uint8, config.BHTSize),
		chooser:  make([]uint8, config.BHTSize),
		ghrMask:  uint64(1)<<config.GlobalHistoryLength - 1,
		btb:      make([]btbEntry, config.BTBSize),
		btbValid: make([]bool, config.BTBSize),
	}
	p.resetTables()

	return p
}

func (p *Predictor) resetTables() {
	// Weakly taken, and the chooser weakly prefers bimodal.
	for i := range p.bimodal {
		p.bimodal[i] = 2
		p.gshare[i] = 2
		p.chooser[i] = 1
	}
	for i := range p.btbValid {
		p.btbValid[i] = false
	}
	p.ghr = 0
}

// Config returns the predictor configuration.
func (p *Predictor) Config() Config {
	return p.config
}

func (p *Predictor) bhtIndex(pc uint64) uint32 {
	// Drop the alignment bits.
	return uint32((pc >> 2) & uint64(p.config.BHTSize-1))
}

func (p *Predictor) gshareIndex(pc uint64) uint32 {
	return uint32(((pc >> 2) ^ p.ghr) & uint64(p.config.BHTSize-1))
}

func (p *Predictor) btbIndex(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(p.config.BTBSize-1))
}

// components returns the bimodal and gshare directions and whether the
// chooser currently selects gshare.
func (p *Predictor) components(pc uint64) (bimodal, gshare, useGshare bool) {
	idx := p.bhtIndex(pc)
	bimodal = p.bimodal[idx] >= 2
	gshare = p.gshare[p.gshareIndex(pc)] >= 2
	useGshare = p.config.UseTournament && p.chooser[idx] >= 2
	return bimodal, gshare, useGshare
}

// Predict makes a branch prediction for the given PC.
func (p *Predictor) Predict(pc uint64) Prediction {
	pred := Prediction{}

	bimodal, gshare, useGshare := p.components(pc)
	pred.Taken = bimodal
	if useGshare {
		pred.Taken = gshare
		p.stats.TournamentChoseGshare++
	} else if p.config.UseTournament {
		p.stats.TournamentChoseBimodal++
	}

	btbIdx := p.btbIndex(pc)
	if p.btbValid[btbIdx] && p.btb[btbIdx].pc == pc {
		pred.Target = p.btb[btbIdx].target
		pred.TargetKnown = true
		p.stats.BTBHits++
	} else {
		p.stats.BTBMisses++
	}

	p.stats.Predictions++
	return pred
}

// PredictTaken returns only the predicted direction.
func (p *Predictor) PredictTaken(pc uint64) bool {
	return p.Predict(pc).Taken
}

// Update trains the predictor with the actual branch outcome.
func (p *Predictor) Update(pc uint64, taken bool, target uint64) {
	idx := p.bhtIndex(pc)
	gIdx := p.gshareIndex(pc)

	bimodal, gshare, useGshare := p.components(pc)
	predicted := bimodal
	if useGshare {
		predicted = gshare
	}

	if predicted == taken {
		p.stats.Correct++
	} else {
		p.stats.Mispredictions++
	}
	if bimodal == taken {
		p.stats.BimodalCorrect++
	}
	if gshare == taken {
		p.stats.GshareCorrect++
	}

	// The chooser only learns when the components disagree.
	if p.config.UseTournament && bimodal != gshare {
		p.chooser[idx] = saturate(p.chooser[idx], gshare == taken)
	}

	p.bimodal[idx] = saturate(p.bimodal[idx], taken)
	p.gshare[gIdx] = saturate(p.gshare[gIdx], taken)

	p.ghr <<= 1
	if taken {
		p.ghr |= 1
	}
	p.ghr &= p.ghrMask

	if taken {
		btbIdx := p.btbIndex(pc)
		p.btb[btbIdx] = btbEntry{pc: pc, target: target}
		p.btbValid[btbIdx] = true
	}
}

// saturate steps a 2-bit counter up or down.
func saturate(counter uint8, up bool) uint8 {
	if up {
		if counter < 3 {
			return counter + 1
		}
		return counter
	}
	if counter > 0 {
		return counter - 1
	}
	return counter
}

// Stats returns the predictor statistics.
func (p *Predictor) Stats() Stats {
	return p.stats
}

// Reset clears all predictor state and statistics.
func (p *Predictor) Reset() {
	p.resetTables()
	p.stats = Stats{}
}
