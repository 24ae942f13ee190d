package deps

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/sarchlab/convpred/insts"
	"github.com/sarchlab/convpred/timing/predictor"
)

// DefaultMaxDepth is the saturation value of the load-dependence depth.
const DefaultMaxDepth = 5

// Annotator maintains the dependency graph from decoded and committed loads
// and computes the load-dependence depth of conditional branches.
//
// Only loads that are still in flight contribute edges. When two in-flight
// loads write the same register, the younger one owns the edges and the
// commit of the older one leaves them in place.
type Annotator struct {
	graph    *Graph
	maxDepth int

	loads map[predictor.InstID]insts.RegID
	owner map[insts.RegID]predictor.InstID

	log commonlog.Logger
}

// NewAnnotator creates an annotator whose depths saturate at maxDepth. A
// non-positive maxDepth selects DefaultMaxDepth.
func NewAnnotator(maxDepth int) *Annotator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Annotator{
		graph:    NewGraph(),
		maxDepth: maxDepth,
		loads:    make(map[predictor.InstID]insts.RegID),
		owner:    make(map[insts.RegID]predictor.InstID),
		log:      commonlog.GetLogger("convpred.deps"),
	}
}

// Graph returns the underlying dependency graph.
func (a *Annotator) Graph() *Graph {
	return a.graph
}

// MaxDepth returns the depth saturation value.
func (a *Annotator) MaxDepth() int {
	return a.maxDepth
}

// InFlight returns the number of decoded loads not yet committed or
// flushed.
func (a *Annotator) InFlight() int {
	return len(a.loads)
}

// DecodeLoad records that the load id writes dest from srcs. The new edges
// of dest are every source together with everything the source already
// depends on.
func (a *Annotator) DecodeLoad(id predictor.InstID, dest insts.RegID, srcs []insts.RegID) error {
	if _, ok := a.loads[id]; ok {
		return fmt.Errorf("%w: load %v", predictor.ErrDuplicateInstruction, id)
	}

	set := make(map[insts.RegID]struct{})
	for _, src := range srcs {
		set[src] = struct{}{}
		for _, dep := range a.graph.Dependencies(src) {
			set[dep] = struct{}{}
		}
	}

	a.graph.SetEdges(dest, sortedRegs(set))
	a.loads[id] = dest
	a.owner[dest] = id

	return nil
}

// DecodeBranch returns the load-dependence depth of a conditional branch:
// the summed size of the dependency sets of its sources, saturated at the
// maximum depth. Branches without sources, or reading only the flags, have
// depth zero.
func (a *Annotator) DecodeBranch(id predictor.InstID, srcs []insts.RegID) int {
	if len(srcs) == 0 || (len(srcs) == 1 && srcs[0] == insts.FlagsReg) {
		return 0
	}

	depth := 0
	for _, src := range srcs {
		depth += len(a.graph.Dependencies(src))
	}

	return min(depth, a.maxDepth)
}

// CommitLoad retires the load id. Its edges are removed unless a younger
// in-flight load has redefined dest in the meantime.
func (a *Annotator) CommitLoad(id predictor.InstID, dest insts.RegID) error {
	recorded, ok := a.loads[id]
	if !ok {
		return fmt.Errorf("%w: load %v is not in flight", predictor.ErrUnknownInstruction, id)
	}
	if recorded != dest {
		return fmt.Errorf("%w: load %v wrote r%d, not r%d",
			predictor.ErrUnknownInstruction, id, recorded, dest)
	}

	a.retire(id, dest)
	return nil
}

// Flush retires the load id without a commit. It returns false when id is
// not an in-flight load.
func (a *Annotator) Flush(id predictor.InstID) bool {
	dest, ok := a.loads[id]
	if !ok {
		return false
	}
	a.retire(id, dest)
	return true
}

func (a *Annotator) retire(id predictor.InstID, dest insts.RegID) {
	delete(a.loads, id)
	if o, ok := a.owner[dest]; !ok || o != id {
		a.log.Debugf("load %v retired after r%d was redefined", id, dest)
		return
	}
	delete(a.owner, dest)
	a.graph.DeleteDestination(dest)
}
