package predictor

import "fmt"

// MaxPieces is the number of sub-instructions a fetch group slot can hold.
const MaxPieces = 16

// InstID uniquely identifies a dynamic instruction: the sequence number in
// the upper bits and the piece index in the low four bits.
type InstID uint64

// NewInstID packs a sequence number and a piece index.
func NewInstID(seqNo uint64, piece uint8) (InstID, error) {
	if piece >= MaxPieces {
		return 0, fmt.Errorf("%w: piece %d >= %d", ErrMalformedIdentifier, piece, MaxPieces)
	}
	return InstID(seqNo<<4 | uint64(piece&0xF)), nil
}

// MustInstID is like NewInstID but panics on a malformed piece index.
func MustInstID(seqNo uint64, piece uint8) InstID {
	id, err := NewInstID(seqNo, piece)
	if err != nil {
		panic(err)
	}
	return id
}

// SeqNo returns the sequence number.
func (id InstID) SeqNo() uint64 {
	return uint64(id) >> 4
}

// Piece returns the piece index.
func (id InstID) Piece() uint8 {
	return uint8(id & 0xF)
}

func (id InstID) String() string {
	return fmt.Sprintf("%d.%d", id.SeqNo(), id.Piece())
}
