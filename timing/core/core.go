// Package core provides the per-core facade the simulator drives.
// It wraps the geometric predictor, the load dependence annotator and an
// optional reference predictor behind the simulator's event hooks, and
// keeps branch statistics grouped by dependence depth.
//
// Every stateful component belongs to exactly one Core. Simulators that
// model several cores create one Core per simulated core.
package core

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/sarchlab/convpred/debuglog"
	"github.com/sarchlab/convpred/insts"
	"github.com/sarchlab/convpred/timing/deps"
	"github.com/sarchlab/convpred/timing/predictor"
	"github.com/sarchlab/convpred/timing/reference"
)

// ReferencePredictor is a conventional predictor run next to the geometric
// one. Its direction is only recorded, never returned to the simulator.
type ReferencePredictor interface {
	PredictTaken(pc uint64) bool
	Update(pc uint64, taken bool, target uint64)
}

// instState is what the core remembers about an in-flight instruction.
type instState struct {
	pc         uint64
	class      insts.Class
	fetchCycle uint64
	fetched    bool

	predicted    bool
	hasPredicted bool
	reference    bool
	depth        int
	resolved     bool
}

// Core is one simulated core's branch prediction unit.
type Core struct {
	config *Config

	predictor *predictor.GeometricPredictor
	annotator *deps.Annotator
	reference ReferencePredictor
	debug     *debuglog.Log

	inflight map[predictor.InstID]*instState
	stats    Stats
	log      commonlog.Logger
}

// NewCore creates a core. A nil config selects the defaults.
func NewCore(config *Config) (*Core, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid core config: %w", err)
	}
	config = config.Clone()

	p, err := predictor.NewGeometricPredictor(&config.Predictor)
	if err != nil {
		return nil, err
	}

	c := &Core{
		config:    config,
		predictor: p,
		annotator: deps.NewAnnotator(config.MaxDependenceDepth),
		inflight:  make(map[predictor.InstID]*instState),
		log:       commonlog.GetLogger("convpred.core"),
	}
	if config.EnableReference {
		c.reference = reference.New(config.Reference)
	}
	if config.RecordDebugLog {
		c.debug = debuglog.NewLog()
	}
	c.stats.ByDepth = make([]DepthStats, config.MaxDependenceDepth+1)

	return c, nil
}

// Config returns a copy of the core configuration.
func (c *Core) Config() *Config {
	return c.config.Clone()
}

// Predictor returns the geometric predictor.
func (c *Core) Predictor() *predictor.GeometricPredictor {
	return c.predictor
}

// Annotator returns the load dependence annotator.
func (c *Core) Annotator() *deps.Annotator {
	return c.annotator
}

// SetReference replaces the reference predictor. Nil disables it. Reset
// also clears r when it has a Reset method.
func (c *Core) SetReference(r ReferencePredictor) {
	c.reference = r
}

// DebugLog returns the debug log, or nil when recording is disabled.
func (c *Core) DebugLog() *debuglog.Log {
	return c.debug
}

// InFlight returns the number of instructions the core is tracking.
func (c *Core) InFlight() int {
	return len(c.inflight)
}

func (c *Core) state(id predictor.InstID, pc uint64) *instState {
	s, ok := c.inflight[id]
	if !ok {
		s = &instState{pc: pc}
		c.inflight[id] = s
	}
	return s
}

// record returns the pending debug record of id, or nil when there is none.
func (c *Core) record(id predictor.InstID) *debuglog.Record {
	if c.debug == nil {
		return nil
	}
	r, _ := c.debug.Lookup(id)
	return r
}

// recordClass is record, but starts a record for loads and conditional
// branches.
func (c *Core) recordClass(id predictor.InstID, class insts.Class) *debuglog.Record {
	if r := c.record(id); r != nil || c.debug == nil {
		return r
	}
	if !class.IsLoad() && !class.IsCondBranch() {
		return nil
	}

	r := c.debug.Record(id)
	if s, ok := c.inflight[id]; ok && s.fetched {
		r.PC = s.pc
		r.FetchCycle = s.fetchCycle
	}
	return r
}

// OnFetch records the fetch of an instruction.
func (c *Core) OnFetch(id predictor.InstID, pc uint64, cycle uint64) {
	s := c.state(id, pc)
	s.fetchCycle = cycle
	s.fetched = true

	if r := c.record(id); r != nil {
		r.PC = pc
		r.FetchCycle = cycle
	}
}

// OnPredict predicts the conditional branch id at pc.
func (c *Core) OnPredict(id predictor.InstID, pc uint64, cycle uint64) (bool, error) {
	taken, err := c.predictor.Predict(id, pc)
	if err != nil {
		c.log.Warningf("predict %v: %s", id, err)
		return false, err
	}

	s := c.state(id, pc)
	s.class = insts.ClassCondBranch
	s.predicted = taken
	s.hasPredicted = true
	if !s.fetched {
		s.fetchCycle = cycle
	}
	if c.reference != nil {
		s.reference = c.reference.PredictTaken(pc)
	}

	if r := c.recordClass(id, insts.ClassCondBranch); r != nil {
		r.PC = pc
		r.Class = insts.ClassCondBranch
		r.PredictCycle = cycle
		r.Predicted = insts.SomeBool(taken)
		if c.reference != nil {
			r.Reference = insts.SomeBool(s.reference)
		}
		if snap, ok := c.predictor.Snapshot(id); ok {
			r.GHist = snap.History.Low64()
		}
	}

	return taken, nil
}

// OnSpecUpdate pushes the outcome of a just-predicted branch onto the
// speculative history. Every branch is counted by type but only conditional
// branches are pushed.
func (c *Core) OnSpecUpdate(id predictor.InstID, class insts.Class, taken bool) error {
	brType, err := class.BranchType()
	if err != nil {
		err = fmt.Errorf("spec update of %v: %w", id, err)
		c.log.Warningf("%s", err)
		return err
	}
	c.stats.SpecUpdates[brType]++

	if brType != insts.BranchTypeConditional {
		return nil
	}
	if _, ok := c.predictor.Snapshot(id); !ok {
		err := fmt.Errorf("%w: spec update of %v", predictor.ErrUnknownInstruction, id)
		c.log.Warningf("%s", err)
		return err
	}
	c.predictor.SpecUpdate(taken)
	return nil
}

// OnDecode records the decoded operands of an instruction. Loads update the
// dependency graph; conditional branches get their dependence depth, which
// is returned.
func (c *Core) OnDecode(id predictor.InstID, pc uint64, dec insts.DecodeInfo) (int, error) {
	s := c.state(id, pc)
	s.class = dec.Class

	if r := c.recordClass(id, dec.Class); r != nil {
		r.PC = pc
		r.Class = dec.Class
		r.SrcRegs = append([]insts.RegID(nil), dec.SrcRegs...)
		r.DstReg = dec.DstReg
	}

	switch {
	case dec.Class.IsLoad():
		dst, ok := dec.DstReg.Get()
		if !ok {
			return 0, nil
		}
		return 0, c.OnDecodeLoad(id, dst, dec.SrcRegs)
	case dec.Class.IsCondBranch():
		return c.OnDecodeBranch(id, dec.SrcRegs), nil
	}
	return 0, nil
}

// OnDecodeLoad makes dest depend on the sources of a decoded load and
// everything they depend on.
func (c *Core) OnDecodeLoad(id predictor.InstID, dest insts.RegID, srcs []insts.RegID) error {
	if err := c.annotator.DecodeLoad(id, dest, srcs); err != nil {
		c.log.Warningf("decode load %v: %s", id, err)
		return err
	}
	return nil
}

// OnDecodeBranch returns the dependence depth of a decoded conditional
// branch and remembers it for the branch's statistics.
func (c *Core) OnDecodeBranch(id predictor.InstID, srcs []insts.RegID) int {
	depth := c.annotator.DecodeBranch(id, srcs)
	if s, ok := c.inflight[id]; ok {
		s.depth = depth
	}
	if r := c.record(id); r != nil {
		r.LoadDependence = depth
	}
	return depth
}

// OnCommitLoad retires a committed load from the dependency graph.
func (c *Core) OnCommitLoad(id predictor.InstID, dest insts.RegID) error {
	if err := c.annotator.CommitLoad(id, dest); err != nil {
		c.log.Warningf("commit load %v: %s", id, err)
		return err
	}
	return nil
}

// OnResolve trains the predictors with an executed conditional branch and
// classifies it under its dependence depth. A misprediction is charged the
// cycles spent on the wrong path plus the pipeline fill latency. Other
// classes are ignored.
func (c *Core) OnResolve(id predictor.InstID, pc uint64, exec insts.ExecuteInfo, cycle uint64) error {
	if !exec.Decode.Class.IsCondBranch() {
		return nil
	}

	s, ok := c.inflight[id]
	if !ok || !s.hasPredicted {
		err := fmt.Errorf("%w: resolve of %v", predictor.ErrUnknownInstruction, id)
		c.log.Warningf("%s", err)
		return err
	}

	taken, known := exec.Taken.Get()
	if !known {
		return fmt.Errorf("resolve of %v without a direction", id)
	}

	if err := c.predictor.Update(id, taken, s.predicted, exec.NextPC); err != nil {
		c.log.Warningf("resolve %v: %s", id, err)
		return err
	}
	s.resolved = true

	if c.reference != nil {
		if s.reference != taken {
			c.stats.ReferenceMispredictions++
		}
		c.reference.Update(s.pc, taken, exec.NextPC)
	}

	bucket := &c.stats.ByDepth[min(s.depth, len(c.stats.ByDepth)-1)]
	bucket.Branches++
	c.stats.Branches++
	if s.predicted != taken {
		penalty := c.config.PipelineFillLatency
		if cycle > s.fetchCycle {
			penalty += cycle - s.fetchCycle
		}
		bucket.Mispredictions++
		bucket.PenaltyCycles += penalty
		c.stats.Mispredictions++
		c.stats.PenaltyCycles += penalty
	}

	if r := c.recordClass(id, insts.ClassCondBranch); r != nil {
		r.ExecuteCycle = cycle
		r.NextPC = exec.NextPC
		r.Resolved = insts.SomeBool(taken)
	}

	return nil
}

// OnCommit retires an instruction. Committed loads leave the dependency
// graph. Only loads and conditional branches are kept in the debug log.
func (c *Core) OnCommit(id predictor.InstID, pc uint64, exec insts.ExecuteInfo, cycle uint64) error {
	s, tracked := c.inflight[id]
	delete(c.inflight, id)
	c.stats.Instructions++

	if tracked && s.class.IsCondBranch() && s.hasPredicted && !s.resolved {
		c.log.Warningf("committing unresolved branch %v", id)
		c.predictor.Flush(id)
	}

	var err error
	if exec.Decode.Class.IsLoad() {
		if dst, ok := exec.Decode.DstReg.Get(); ok {
			err = c.OnCommitLoad(id, dst)
		}
	}

	if r := c.recordClass(id, exec.Decode.Class); r != nil {
		r.PC = pc
		r.Class = exec.Decode.Class
		r.NextPC = exec.NextPC
		r.MemVA = exec.MemVA
		if r.ExecuteCycle == 0 {
			r.ExecuteCycle = cycle
		}
		c.debug.Complete(id)
	}

	return err
}

// OnFlush cancels everything in flight for an instruction that will never
// resolve or commit. It returns false when nothing was tracked.
func (c *Core) OnFlush(id predictor.InstID) bool {
	_, tracked := c.inflight[id]
	delete(c.inflight, id)

	flushed := c.predictor.Flush(id)
	if c.annotator.Flush(id) {
		flushed = true
	}
	if c.debug != nil && c.debug.Drop(id) {
		flushed = true
	}

	if tracked || flushed {
		c.stats.Flushes++
		return true
	}
	return false
}

// Stats returns a copy of the core statistics.
func (c *Core) Stats() Stats {
	return c.stats.clone()
}

// Reset clears all learned and in-flight state and the statistics.
func (c *Core) Reset() {
	c.predictor.Reset()
	c.annotator = deps.NewAnnotator(c.config.MaxDependenceDepth)
	if r, ok := c.reference.(interface{ Reset() }); ok {
		r.Reset()
	}
	if c.debug != nil {
		c.debug.Reset()
	}
	c.inflight = make(map[predictor.InstID]*instState)
	c.stats = Stats{ByDepth: make([]DepthStats, c.config.MaxDependenceDepth+1)}
}
