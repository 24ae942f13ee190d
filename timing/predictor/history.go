package predictor

import "fmt"

// HistoryRegister is a fixed-length global history of branch outcomes.
// Bit 0 is the most recent outcome.
type HistoryRegister struct {
	words  []uint64
	length int
}

// NewHistoryRegister creates a history of the given length with every bit
// not-taken.
func NewHistoryRegister(length int) *HistoryRegister {
	if length <= 0 {
		panic(fmt.Errorf("%w: history length %d", ErrCapacityExceeded, length))
	}
	return &HistoryRegister{
		words:  make([]uint64, (length+63)/64),
		length: length,
	}
}

// Len returns the number of bits held. It never changes.
func (h *HistoryRegister) Len() int {
	return h.length
}

// Push shifts every outcome one position older, discards the oldest and
// records taken as bit 0.
func (h *HistoryRegister) Push(taken bool) {
	var carry uint64
	if taken {
		carry = 1
	}
	for i := range h.words {
		next := h.words[i] >> 63
		h.words[i] = h.words[i]<<1 | carry
		carry = next
	}

	// Bits past the declared length must stay clear so that Clone and
	// equality comparisons do not see discarded outcomes.
	if rem := h.length % 64; rem != 0 {
		h.words[len(h.words)-1] &= (uint64(1) << rem) - 1
	}
}

// Bit returns outcome i, where 0 is the most recent. Reading past the
// length is a contract violation and panics.
func (h *HistoryRegister) Bit(i int) bool {
	if i < 0 || i >= h.length {
		panic(fmt.Errorf("%w: history bit %d of %d", ErrCapacityExceeded, i, h.length))
	}
	return h.words[i/64]>>(uint(i)%64)&1 == 1
}

// Low64 returns the 64 most recent outcomes packed with bit 0 as the most
// recent one.
func (h *HistoryRegister) Low64() uint64 {
	return h.words[0]
}

// Clone returns an independent copy.
func (h *HistoryRegister) Clone() *HistoryRegister {
	c := &HistoryRegister{
		words:  make([]uint64, len(h.words)),
		length: h.length,
	}
	copy(c.words, h.words)
	return c
}

// Reset clears every outcome to not-taken.
func (h *HistoryRegister) Reset() {
	for i := range h.words {
		h.words[i] = 0
	}
}
