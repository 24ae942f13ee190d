// Package predictor implements a geometric-history convolution branch
// predictor.
//
// Each conditional branch owns a set of entries spread across banks of
// decreasing history length. An entry remembers the global history seen when
// it was created as a vector of trits, and a saturating counter gives its
// direction. Weights that disagree with the history on correct predictions
// decay to "don't care"; when enough of an entry's older weights have
// decayed the entry moves to the next, shorter bank.
//
// Usage:
//
//	p, err := predictor.NewGeometricPredictor(predictor.DefaultConfig())
//	id := predictor.MustInstID(seqNo, piece)
//	taken, err := p.Predict(id, pc)
//	...
//	err = p.Update(id, resolved, taken, nextPC)
package predictor

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tliron/commonlog"
)

// Snapshot is the state remembered for an in-flight branch between its
// prediction and its resolution.
type Snapshot struct {
	ID         InstID
	PC         uint64
	History    *HistoryRegister
	Entry      EntryID
	Prediction bool
	Allocated  bool
}

// GeometricPredictor is the multi-bank convolution predictor. It is not safe
// for concurrent use; every simulated core owns its own instance.
type GeometricPredictor struct {
	sim.HookableBase

	config  *Config
	history *HistoryRegister
	banks   []*TableBank

	// bankOf tracks the current bank of every entry.
	bankOf   map[EntryID]int
	inflight map[InstID]*Snapshot
	nextID   EntryID

	stats Stats
	log   commonlog.Logger
}

// NewGeometricPredictor creates a predictor with empty banks and an
// all-not-taken history.
func NewGeometricPredictor(config *Config) (*GeometricPredictor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid predictor config: %w", err)
	}

	p := &GeometricPredictor{
		config:   config.Clone(),
		history:  NewHistoryRegister(config.MaxHistoryLength),
		bankOf:   make(map[EntryID]int),
		inflight: make(map[InstID]*Snapshot),
		log:      commonlog.GetLogger("convpred.predictor"),
	}
	for b, l := range config.HistoryLengths {
		p.banks = append(p.banks, NewTableBank(b, l))
	}

	return p, nil
}

// Config returns a copy of the predictor configuration.
func (p *GeometricPredictor) Config() *Config {
	return p.config.Clone()
}

// History returns the live global history. Callers must not push to it
// while predictions are in flight.
func (p *GeometricPredictor) History() *HistoryRegister {
	return p.history
}

// NumBanks returns the number of banks.
func (p *GeometricPredictor) NumBanks() int {
	return len(p.banks)
}

// Bank returns bank b.
func (p *GeometricPredictor) Bank(b int) *TableBank {
	return p.banks[b]
}

// InFlight returns the number of predictions awaiting resolution.
func (p *GeometricPredictor) InFlight() int {
	return len(p.inflight)
}

// Snapshot returns the in-flight record of id.
func (p *GeometricPredictor) Snapshot(id InstID) (*Snapshot, bool) {
	s, ok := p.inflight[id]
	return s, ok
}

// Entry returns a copy of the entry with the given id under pc.
func (p *GeometricPredictor) Entry(pc uint64, id EntryID) (Entry, bool) {
	e, ok := p.lookupEntry(pc, id)
	if !ok {
		return Entry{}, false
	}
	return *e.clone(), true
}

func (p *GeometricPredictor) lookupEntry(pc uint64, id EntryID) (*Entry, bool) {
	b, ok := p.bankOf[id]
	if !ok {
		return nil, false
	}
	return p.banks[b].Get(pc, id)
}

// Match scans the banks in order and returns the entry of pc with the
// highest similarity to h, together with the direction it predicts. Only
// scores at or above the threshold are eligible and the first entry found
// wins ties, so shorter scans favour lower banks. A nil entry means no
// entry is eligible.
func (p *GeometricPredictor) Match(pc uint64, h *HistoryRegister) (bool, *Entry) {
	var best *Entry
	bestScore := p.config.Threshold - 1

	for _, bank := range p.banks {
		for _, e := range bank.Lookup(pc) {
			score := e.Score(h)
			if score >= p.config.Threshold && score > bestScore {
				bestScore = score
				best = e
			}
		}
	}

	if best == nil {
		return false, nil
	}
	return best.Counter >= p.config.CounterMax/2, best
}

// Predict predicts the direction of the conditional branch id at pc. The
// live history is snapshotted so that the later Update learns against the
// history seen here. A branch without an eligible entry allocates one in
// bank 0 and predicts not-taken.
func (p *GeometricPredictor) Predict(id InstID, pc uint64) (bool, error) {
	if _, ok := p.inflight[id]; ok {
		return false, fmt.Errorf("%w: %v", ErrDuplicateInstruction, id)
	}

	snap := &Snapshot{
		ID:      id,
		PC:      pc,
		History: p.history.Clone(),
	}

	taken, entry := p.Match(pc, snap.History)
	if entry == nil {
		entry = p.allocate(pc)
		taken = false
		snap.Allocated = true
	}

	snap.Entry = entry.ID
	snap.Prediction = taken
	p.inflight[id] = snap
	p.stats.Predictions++

	p.invoke(HookPosPredict, snap, nil)

	return taken, nil
}

// allocate creates a bank-0 entry whose weights copy the live history.
func (p *GeometricPredictor) allocate(pc uint64) *Entry {
	bank := p.banks[0]
	weights := make([]Trit, bank.HistoryLength())
	for i := range weights {
		if p.history.Bit(i) {
			weights[i] = TritTaken
		} else {
			weights[i] = TritNotTaken
		}
	}

	e := &Entry{
		ID:      p.nextID,
		PC:      pc,
		Weights: weights,
		Counter: p.config.CounterMax / 2,
	}
	p.nextID++

	bank.Insert(e)
	p.bankOf[e.ID] = bank.Index()
	p.stats.Allocations++

	p.log.Debugf("allocated entry %d for pc 0x%x", e.ID, pc)
	p.invoke(HookPosAllocate, *e.clone(), nil)

	return e
}

// SpecUpdate pushes a conditional branch outcome right after its
// prediction. It only has an effect in speculative-history mode.
func (p *GeometricPredictor) SpecUpdate(taken bool) {
	if p.config.SpeculativeHistory {
		p.history.Push(taken)
	}
}

// Update trains the entry matched when id was predicted and consumes its
// snapshot. Unless the predictor runs in speculative-history mode, the
// resolved direction is then pushed onto the global history.
func (p *GeometricPredictor) Update(id InstID, resolved, predicted bool, nextPC uint64) error {
	snap, ok := p.inflight[id]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownInstruction, id)
	}
	delete(p.inflight, id)

	if !p.config.SpeculativeHistory {
		defer p.history.Push(resolved)
	}

	entry, ok := p.lookupEntry(snap.PC, snap.Entry)
	if !ok {
		return fmt.Errorf("%w: entry %d of %v is gone", ErrUnknownInstruction, snap.Entry, id)
	}

	if resolved == predicted {
		p.stats.Correct++
	} else {
		p.stats.Mispredictions++
	}

	if resolved {
		entry.Counter = min(entry.Counter+1, p.config.CounterMax)
	} else {
		entry.Counter = max(entry.Counter-1, 0)
	}

	zeroed := 0
	if resolved == predicted {
		zeroed = p.decohere(entry, snap.History)
	}

	promoted := false
	length := len(entry.Weights)
	if entry.Bank < len(p.banks)-1 &&
		zeroed > length*p.config.PromotionNumerator/p.config.PromotionDenominator {
		p.promote(entry)
		promoted = true
	}

	p.invoke(HookPosUpdate, snap, UpdateDetail{
		Resolved:  resolved,
		Predicted: predicted,
		Zeroed:    zeroed,
		Promoted:  promoted,
	})

	return nil
}

// decohere clears every weight that disagrees with h and returns how many
// of the cleared weights lie in the second half of the vector.
func (p *GeometricPredictor) decohere(e *Entry, h *HistoryRegister) int {
	half := len(e.Weights) / 2
	zeroed := 0
	for i, w := range e.Weights {
		if w == TritDontCare {
			continue
		}
		if (w == TritTaken) != h.Bit(i) {
			e.Weights[i] = TritDontCare
			if i > half {
				zeroed++
			}
		}
	}
	return zeroed
}

// promote moves e to the next bank, keeping the leading weights that fit.
func (p *GeometricPredictor) promote(e *Entry) {
	from := p.banks[e.Bank]
	to := p.banks[e.Bank+1]

	moved := &Entry{
		ID:      e.ID,
		PC:      e.PC,
		Weights: append([]Trit(nil), e.Weights[:to.HistoryLength()]...),
		Counter: e.Counter,
	}

	from.Remove(e.PC, e.ID)
	to.Insert(moved)
	p.bankOf[e.ID] = to.Index()
	p.stats.Promotions++

	p.log.Debugf("promoted entry %d of pc 0x%x from bank %d to bank %d",
		e.ID, e.PC, from.Index(), to.Index())
	p.invoke(HookPosPromote, *moved.clone(), from.Index())
}

// Flush cancels the in-flight prediction of id without training. It
// returns false when nothing was in flight, so repeated flushes are safe.
func (p *GeometricPredictor) Flush(id InstID) bool {
	if _, ok := p.inflight[id]; !ok {
		return false
	}
	delete(p.inflight, id)
	p.stats.Flushes++
	return true
}

// StorageBits estimates the storage used by all banks.
func (p *GeometricPredictor) StorageBits() int {
	total := 0
	for _, b := range p.banks {
		total += b.StorageBits()
	}
	return total
}

// Stats returns the predictor statistics.
func (p *GeometricPredictor) Stats() Stats {
	return p.stats
}

// ResetStats clears the statistics without touching learned state.
func (p *GeometricPredictor) ResetStats() {
	p.stats = Stats{}
}

// Reset clears all learned state, in-flight predictions, the history and
// the statistics.
func (p *GeometricPredictor) Reset() {
	for b, l := range p.config.HistoryLengths {
		p.banks[b] = NewTableBank(b, l)
	}
	p.history.Reset()
	p.bankOf = make(map[EntryID]int)
	p.inflight = make(map[InstID]*Snapshot)
	p.nextID = 0
	p.stats = Stats{}
}
