// Package debuglog keeps the per-instruction annotations a core produces
// while it replays a trace, and persists finished runs into SQLite.
package debuglog

import (
	"fmt"
	"sort"

	"github.com/sarchlab/convpred/insts"
	"github.com/sarchlab/convpred/timing/predictor"
)

// Record is the annotation of one dynamic instruction.
type Record struct {
	ID     predictor.InstID
	PC     uint64
	NextPC uint64
	Class  insts.Class

	FetchCycle   uint64
	PredictCycle uint64
	ExecuteCycle uint64

	// Predicted is the geometric predictor's direction, Reference the
	// reference predictor's and Resolved the executed one. All three are
	// only valid for conditional branches.
	Predicted insts.OptionalBool
	Reference insts.OptionalBool
	Resolved  insts.OptionalBool

	SrcRegs []insts.RegID
	DstReg  insts.OptionalReg
	MemVA   uint64

	// GHist holds the 64 most recent history bits at prediction time.
	GHist uint64
	// LoadDependence is the dependence depth of a conditional branch.
	LoadDependence int
}

// Mispredicted reports whether the record is a resolved conditional branch
// whose prediction was wrong.
func (r *Record) Mispredicted() bool {
	p, okP := r.Predicted.Get()
	res, okR := r.Resolved.Get()
	return okP && okR && p != res
}

func (r *Record) String() string {
	return fmt.Sprintf("%v pc=0x%x next=0x%x %v src=%s dst=%v dep=%d",
		r.ID, r.PC, r.NextPC, r.Class, insts.FormatRegs(r.SrcRegs), r.DstReg,
		r.LoadDependence)
}

// Log holds the records of in-flight instructions and of instructions that
// have already committed.
type Log struct {
	pending   map[predictor.InstID]*Record
	completed []Record
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{pending: make(map[predictor.InstID]*Record)}
}

// Record returns the pending record of id, creating it on first use.
func (l *Log) Record(id predictor.InstID) *Record {
	r, ok := l.pending[id]
	if !ok {
		r = &Record{ID: id}
		l.pending[id] = r
	}
	return r
}

// Lookup returns the pending record of id without creating one.
func (l *Log) Lookup(id predictor.InstID) (*Record, bool) {
	r, ok := l.pending[id]
	return r, ok
}

// Complete moves the record of id to the completed list.
func (l *Log) Complete(id predictor.InstID) bool {
	r, ok := l.pending[id]
	if !ok {
		return false
	}
	delete(l.pending, id)
	l.completed = append(l.completed, *r)
	return true
}

// Drop discards the pending record of id.
func (l *Log) Drop(id predictor.InstID) bool {
	if _, ok := l.pending[id]; !ok {
		return false
	}
	delete(l.pending, id)
	return true
}

// Pending returns the number of records still in flight.
func (l *Log) Pending() int {
	return len(l.pending)
}

// Completed returns the completed records in commit order.
func (l *Log) Completed() []Record {
	return l.completed
}

// PendingRecords returns copies of the in-flight records ordered by id.
func (l *Log) PendingRecords() []Record {
	out := make([]Record, 0, len(l.pending))
	for _, r := range l.pending {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset clears the log.
func (l *Log) Reset() {
	l.pending = make(map[predictor.InstID]*Record)
	l.completed = nil
}
