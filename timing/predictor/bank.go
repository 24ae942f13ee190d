package predictor

import (
	"fmt"
	"sort"
)

// Trit is a weight restricted to -1, 0 and +1. Zero means "don't care".
type Trit int8

// Trit values.
const (
	TritNotTaken Trit = -1
	TritDontCare Trit = 0
	TritTaken    Trit = 1
)

// EntryID identifies an entry across banks. Ids are assigned in increasing
// order and survive promotion.
type EntryID uint64

// Entry is one learned pattern of one branch.
type Entry struct {
	ID      EntryID
	PC      uint64
	Bank    int
	Weights []Trit
	Counter int
}

// Score returns the similarity between the weights and a history: +1 for
// every weight that agrees with its history bit, -1 for every weight that
// disagrees, 0 for don't-care weights.
func (e *Entry) Score(h *HistoryRegister) int {
	score := 0
	for i, w := range e.Weights {
		if w == TritDontCare {
			continue
		}
		if (w == TritTaken) == h.Bit(i) {
			score++
		} else {
			score--
		}
	}
	return score
}

// clone returns a copy that shares no memory with e.
func (e *Entry) clone() *Entry {
	c := *e
	c.Weights = append([]Trit(nil), e.Weights...)
	return &c
}

// TableBank holds the entries of one history length, grouped by PC. Entries
// of a PC are kept in ascending id order so that scans are deterministic.
type TableBank struct {
	index         int
	historyLength int
	entries       map[uint64][]*Entry
	count         int
}

// NewTableBank creates an empty bank.
func NewTableBank(index, historyLength int) *TableBank {
	return &TableBank{
		index:         index,
		historyLength: historyLength,
		entries:       make(map[uint64][]*Entry),
	}
}

// Index returns the bank number.
func (b *TableBank) Index() int {
	return b.index
}

// HistoryLength returns the weight-vector length of the bank's entries.
func (b *TableBank) HistoryLength() int {
	return b.historyLength
}

// Len returns the number of entries in the bank.
func (b *TableBank) Len() int {
	return b.count
}

// NumPCs returns the number of branches with at least one entry.
func (b *TableBank) NumPCs() int {
	return len(b.entries)
}

// Lookup returns the entries of pc in ascending id order. The slice is
// owned by the bank.
func (b *TableBank) Lookup(pc uint64) []*Entry {
	return b.entries[pc]
}

// Get returns the entry with the given id under pc.
func (b *TableBank) Get(pc uint64, id EntryID) (*Entry, bool) {
	list := b.entries[pc]
	i := sort.Search(len(list), func(i int) bool { return list[i].ID >= id })
	if i < len(list) && list[i].ID == id {
		return list[i], true
	}
	return nil, false
}

// Insert adds e under e.PC, replacing an entry with the same id.
func (b *TableBank) Insert(e *Entry) {
	if len(e.Weights) != b.historyLength {
		panic(fmt.Errorf("%w: %d weights in bank %d of length %d",
			ErrCapacityExceeded, len(e.Weights), b.index, b.historyLength))
	}
	e.Bank = b.index

	list := b.entries[e.PC]
	i := sort.Search(len(list), func(i int) bool { return list[i].ID >= e.ID })
	if i < len(list) && list[i].ID == e.ID {
		list[i] = e
		return
	}

	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = e
	b.entries[e.PC] = list
	b.count++
}

// Remove deletes the entry with the given id under pc. The PC's table is
// dropped when it becomes empty.
func (b *TableBank) Remove(pc uint64, id EntryID) bool {
	list := b.entries[pc]
	i := sort.Search(len(list), func(i int) bool { return list[i].ID >= id })
	if i >= len(list) || list[i].ID != id {
		return false
	}

	list = append(list[:i], list[i+1:]...)
	if len(list) == 0 {
		delete(b.entries, pc)
	} else {
		b.entries[pc] = list
	}
	b.count--
	return true
}

// StorageBits estimates the storage cost: every entry holds two bits per
// weight plus a counter.
func (b *TableBank) StorageBits() int {
	return b.count * (b.historyLength*2 + 3)
}
