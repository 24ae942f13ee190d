// Package trace defines the event stream a simulator hands to a core and
// its CBOR encoding. Traces can be recorded from a simulator or generated
// from synthetic workloads.
package trace

import (
	"fmt"

	"github.com/sarchlab/convpred/insts"
	"github.com/sarchlab/convpred/timing/predictor"
)

// Kind is the pipeline event an Event reports.
type Kind uint8

// Event kinds, in the order a well-formed instruction produces them.
const (
	KindFetch Kind = iota
	KindPredict
	KindSpecUpdate
	KindDecode
	KindResolve
	KindCommit
	KindFlush
)

var kindNames = [...]string{
	KindFetch:      "fetch",
	KindPredict:    "predict",
	KindSpecUpdate: "spec-update",
	KindDecode:     "decode",
	KindResolve:    "resolve",
	KindCommit:     "commit",
	KindFlush:      "flush",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Event is one call from the simulator into a core.
type Event struct {
	Kind  Kind   `cbor:"k"`
	SeqNo uint64 `cbor:"seq"`
	Piece uint8  `cbor:"p,omitempty"`
	PC    uint64 `cbor:"pc"`
	Cycle uint64 `cbor:"c"`

	// Class is set on spec-update events, Taken holds the pushed outcome.
	Class insts.Class `cbor:"cls,omitempty"`
	Taken bool        `cbor:"t,omitempty"`

	// Decode is set on decode events, Exec on resolve and commit events.
	Decode *insts.DecodeInfo  `cbor:"dec,omitempty"`
	Exec   *insts.ExecuteInfo `cbor:"exe,omitempty"`
}

// ID returns the packed instruction id of the event.
func (e Event) ID() (predictor.InstID, error) {
	return predictor.NewInstID(e.SeqNo, e.Piece)
}

func (e Event) String() string {
	return fmt.Sprintf("%s %d.%d pc=0x%x @%d", e.Kind, e.SeqNo, e.Piece, e.PC, e.Cycle)
}
