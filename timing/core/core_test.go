package core_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/convpred/insts"
	"github.com/sarchlab/convpred/timing/core"
	"github.com/sarchlab/convpred/timing/predictor"
)

type fakeReference struct {
	taken   bool
	queried []uint64
	updates []bool
	resets  int
}

func (f *fakeReference) PredictTaken(pc uint64) bool {
	f.queried = append(f.queried, pc)
	return f.taken
}

func (f *fakeReference) Update(pc uint64, taken bool, target uint64) {
	f.updates = append(f.updates, taken)
}

func (f *fakeReference) Reset() {
	f.queried = nil
	f.updates = nil
	f.resets++
}

func loadInfo(dst insts.RegID, srcs ...insts.RegID) insts.DecodeInfo {
	return insts.DecodeInfo{Class: insts.ClassLoad, SrcRegs: srcs, DstReg: insts.SomeReg(dst)}
}

func branchInfo(srcs ...insts.RegID) insts.DecodeInfo {
	return insts.DecodeInfo{Class: insts.ClassCondBranch, SrcRegs: srcs}
}

func resolvedBranch(taken bool, next uint64) insts.ExecuteInfo {
	return insts.ExecuteInfo{
		Decode: branchInfo(insts.FlagsReg),
		Taken:  insts.SomeBool(taken),
		NextPC: next,
	}
}

var _ = Describe("Core", func() {
	var (
		c      *core.Core
		config *core.Config
	)

	BeforeEach(func() {
		config = core.DefaultConfig()
		config.EnableReference = false
	})

	JustBeforeEach(func() {
		var err error
		c, err = core.NewCore(config)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("with a load-dependent branch", func() {
		var (
			load1, load2, branch predictor.InstID
		)

		JustBeforeEach(func() {
			load1 = predictor.MustInstID(1, 0)
			load2 = predictor.MustInstID(2, 0)
			branch = predictor.MustInstID(3, 0)

			c.OnFetch(load1, 0x1000, 1)
			_, err := c.OnDecode(load1, 0x1000, loadInfo(1, 5))
			Expect(err).NotTo(HaveOccurred())

			c.OnFetch(load2, 0x1004, 2)
			_, err = c.OnDecode(load2, 0x1004, loadInfo(2, 1))
			Expect(err).NotTo(HaveOccurred())

			c.OnFetch(branch, 0x1008, 3)
			taken, err := c.OnPredict(branch, 0x1008, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(taken).To(BeFalse())
		})

		It("should report a dependence depth of 2", func() {
			depth, err := c.OnDecode(branch, 0x1008, branchInfo(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(depth).To(Equal(2))
		})

		It("should charge the misprediction to depth 2 with its penalty", func() {
			_, err := c.OnDecode(branch, 0x1008, branchInfo(2))
			Expect(err).NotTo(HaveOccurred())

			exec := resolvedBranch(true, 0x2000)
			exec.Decode = branchInfo(2)
			Expect(c.OnResolve(branch, 0x1008, exec, 10)).To(Succeed())

			stats := c.Stats()
			Expect(stats.Branches).To(Equal(uint64(1)))
			Expect(stats.Mispredictions).To(Equal(uint64(1)))
			Expect(stats.ByDepth).To(HaveLen(config.MaxDependenceDepth + 1))
			Expect(stats.ByDepth[2]).To(Equal(core.DepthStats{
				Branches:       1,
				Mispredictions: 1,
				// (10 - 3) cycles on the wrong path plus the fill latency.
				PenaltyCycles: 12,
			}))
			Expect(stats.ByDepth[0].Branches).To(BeZero())
		})

		It("should leave nothing in flight after commit", func() {
			_, err := c.OnDecode(branch, 0x1008, branchInfo(2))
			Expect(err).NotTo(HaveOccurred())
			exec := resolvedBranch(false, 0x100c)
			Expect(c.OnResolve(branch, 0x1008, exec, 6)).To(Succeed())

			Expect(c.OnCommit(load1, 0x1000, insts.ExecuteInfo{Decode: loadInfo(1, 5)}, 7)).To(Succeed())
			Expect(c.OnCommit(load2, 0x1004, insts.ExecuteInfo{Decode: loadInfo(2, 1)}, 8)).To(Succeed())
			Expect(c.OnCommit(branch, 0x1008, exec, 9)).To(Succeed())

			Expect(c.InFlight()).To(BeZero())
			Expect(c.Predictor().InFlight()).To(BeZero())
			Expect(c.Annotator().InFlight()).To(BeZero())
			Expect(c.Annotator().Graph().Len()).To(BeZero())
			Expect(c.Stats().Instructions).To(Equal(uint64(3)))
			Expect(c.Stats().Mispredictions).To(BeZero())
		})

		It("should cancel everything on flush", func() {
			Expect(c.OnFlush(branch)).To(BeTrue())
			Expect(c.OnFlush(load2)).To(BeTrue())
			Expect(c.OnFlush(load1)).To(BeTrue())
			Expect(c.OnFlush(load1)).To(BeFalse())

			err := c.OnResolve(branch, 0x1008, resolvedBranch(true, 0x2000), 5)
			Expect(errors.Is(err, predictor.ErrUnknownInstruction)).To(BeTrue())

			Expect(c.InFlight()).To(BeZero())
			Expect(c.Predictor().InFlight()).To(BeZero())
			Expect(c.Annotator().InFlight()).To(BeZero())
			Expect(c.Annotator().Graph().Len()).To(BeZero())
			Expect(c.Stats().Flushes).To(Equal(uint64(3)))
		})
	})

	It("should give flags-only branches depth 0", func() {
		id := predictor.MustInstID(1, 0)
		depth, err := c.OnDecode(id, 0x1000, branchInfo(insts.FlagsReg))
		Expect(err).NotTo(HaveOccurred())
		Expect(depth).To(BeZero())
	})

	It("should reject resolving a branch twice", func() {
		id := predictor.MustInstID(1, 0)
		_, err := c.OnPredict(id, 0x1000, 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.OnResolve(id, 0x1000, resolvedBranch(false, 0x1004), 4)).To(Succeed())
		err = c.OnResolve(id, 0x1000, resolvedBranch(false, 0x1004), 5)
		Expect(errors.Is(err, predictor.ErrUnknownInstruction)).To(BeTrue())
	})

	It("should reject resolving a branch that was never predicted", func() {
		err := c.OnResolve(predictor.MustInstID(9, 0), 0x1000, resolvedBranch(true, 0x2000), 5)
		Expect(errors.Is(err, predictor.ErrUnknownInstruction)).To(BeTrue())
	})

	It("should ignore resolution of other classes", func() {
		exec := insts.ExecuteInfo{Decode: insts.DecodeInfo{Class: insts.ClassALU}}
		Expect(c.OnResolve(predictor.MustInstID(1, 0), 0x1000, exec, 2)).To(Succeed())
		Expect(c.Stats().Branches).To(BeZero())
	})

	It("should reject committing a load it never decoded", func() {
		exec := insts.ExecuteInfo{Decode: loadInfo(1, 5)}
		err := c.OnCommit(predictor.MustInstID(1, 0), 0x1000, exec, 2)
		Expect(errors.Is(err, predictor.ErrUnknownInstruction)).To(BeTrue())
	})

	It("should compute MPKI over committed instructions", func() {
		id := predictor.MustInstID(1, 0)
		_, err := c.OnPredict(id, 0x1000, 1)
		Expect(err).NotTo(HaveOccurred())
		exec := resolvedBranch(true, 0x2000)
		Expect(c.OnResolve(id, 0x1000, exec, 2)).To(Succeed())
		Expect(c.OnCommit(id, 0x1000, exec, 3)).To(Succeed())

		for seq := uint64(2); seq <= 4; seq++ {
			alu := insts.ExecuteInfo{Decode: insts.DecodeInfo{Class: insts.ClassALU}}
			Expect(c.OnCommit(predictor.MustInstID(seq, 0), 0x2000, alu, seq+2)).To(Succeed())
		}

		Expect(c.Stats().MPKI()).To(BeNumerically("~", 250.0, 0.001))
	})

	Context("with speculative history", func() {
		BeforeEach(func() {
			config.Predictor.SpeculativeHistory = true
		})

		It("should push the outcome at spec update", func() {
			id := predictor.MustInstID(1, 0)
			_, err := c.OnPredict(id, 0x1000, 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.OnSpecUpdate(id, insts.ClassCondBranch, true)).To(Succeed())
			Expect(c.Predictor().History().Bit(0)).To(BeTrue())

			Expect(c.OnResolve(id, 0x1000, resolvedBranch(false, 0x1004), 3)).To(Succeed())
			Expect(c.Predictor().History().Bit(0)).To(BeTrue())
		})

		It("should count but not push unconditional branches", func() {
			Expect(c.OnSpecUpdate(predictor.MustInstID(1, 0), insts.ClassUncondDirectBranch, true)).
				To(Succeed())
			Expect(c.OnSpecUpdate(predictor.MustInstID(2, 0), insts.ClassReturn, true)).
				To(Succeed())
			Expect(c.Predictor().History().Bit(0)).To(BeFalse())

			stats := c.Stats()
			Expect(stats.SpecUpdates[insts.BranchTypeDirect]).To(Equal(uint64(1)))
			Expect(stats.SpecUpdates[insts.BranchTypeIndirect]).To(Equal(uint64(1)))
			Expect(stats.SpecUpdates[insts.BranchTypeConditional]).To(BeZero())
		})

		It("should reject spec updates of non-branches", func() {
			err := c.OnSpecUpdate(predictor.MustInstID(1, 0), insts.ClassLoad, false)
			Expect(err).To(MatchError(ContainSubstring("not a branch")))
			Expect(c.Stats().SpecUpdates).To(Equal([insts.NumBranchTypes]uint64{}))
		})

		It("should reject spec updates of unpredicted branches", func() {
			err := c.OnSpecUpdate(predictor.MustInstID(1, 0), insts.ClassCondBranch, true)
			Expect(errors.Is(err, predictor.ErrUnknownInstruction)).To(BeTrue())
		})
	})

	Context("with a reference predictor", func() {
		var ref *fakeReference

		JustBeforeEach(func() {
			ref = &fakeReference{taken: true}
			c.SetReference(ref)
		})

		It("should consult and train it without changing the prediction", func() {
			id := predictor.MustInstID(1, 0)
			taken, err := c.OnPredict(id, 0x1000, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(taken).To(BeFalse())
			Expect(ref.queried).To(Equal([]uint64{0x1000}))

			Expect(c.OnResolve(id, 0x1000, resolvedBranch(false, 0x1004), 2)).To(Succeed())
			Expect(ref.updates).To(Equal([]bool{false}))

			stats := c.Stats()
			Expect(stats.ReferenceMispredictions).To(Equal(uint64(1)))
			Expect(stats.Mispredictions).To(BeZero())
			Expect(stats.ReferenceAccuracy()).To(BeZero())
		})
	})

	Context("with the debug log enabled", func() {
		BeforeEach(func() {
			config.RecordDebugLog = true
			config.EnableReference = true
		})

		It("should record a committed branch", func() {
			id := predictor.MustInstID(4, 2)
			c.OnFetch(id, 0x1000, 3)
			_, err := c.OnPredict(id, 0x1000, 4)
			Expect(err).NotTo(HaveOccurred())
			_, err = c.OnDecode(id, 0x1000, branchInfo(insts.FlagsReg))
			Expect(err).NotTo(HaveOccurred())
			exec := resolvedBranch(true, 0x2000)
			Expect(c.OnResolve(id, 0x1000, exec, 9)).To(Succeed())
			Expect(c.OnCommit(id, 0x1000, exec, 10)).To(Succeed())

			records := c.DebugLog().Completed()
			Expect(records).To(HaveLen(1))
			r := records[0]
			Expect(r.ID).To(Equal(id))
			Expect(r.PC).To(Equal(uint64(0x1000)))
			Expect(r.NextPC).To(Equal(uint64(0x2000)))
			Expect(r.Class).To(Equal(insts.ClassCondBranch))
			Expect(r.FetchCycle).To(Equal(uint64(3)))
			Expect(r.PredictCycle).To(Equal(uint64(4)))
			Expect(r.ExecuteCycle).To(Equal(uint64(9)))
			Expect(r.Predicted).To(Equal(insts.SomeBool(false)))
			Expect(r.Reference).To(Equal(insts.SomeBool(true)))
			Expect(r.Resolved).To(Equal(insts.SomeBool(true)))
			Expect(r.SrcRegs).To(Equal([]insts.RegID{insts.FlagsReg}))
			Expect(r.Mispredicted()).To(BeTrue())
			Expect(c.DebugLog().Pending()).To(BeZero())
		})

		It("should only record loads and conditional branches", func() {
			add := predictor.MustInstID(2, 0)
			c.OnFetch(add, 0x1000, 1)
			addInfo := insts.DecodeInfo{
				Class:   insts.ClassALU,
				SrcRegs: []insts.RegID{1},
				DstReg:  insts.SomeReg(2),
			}
			_, err := c.OnDecode(add, 0x1000, addInfo)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.DebugLog().Pending()).To(BeZero())
			Expect(c.OnCommit(add, 0x1000, insts.ExecuteInfo{Decode: addInfo, NextPC: 0x1004}, 2)).To(Succeed())

			ld := predictor.MustInstID(3, 0)
			c.OnFetch(ld, 0x1004, 2)
			_, err = c.OnDecode(ld, 0x1004, loadInfo(3, 2))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.OnCommit(ld, 0x1004, insts.ExecuteInfo{Decode: loadInfo(3, 2), NextPC: 0x1008, MemVA: 0x40}, 5)).To(Succeed())

			records := c.DebugLog().Completed()
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal(ld))
			Expect(records[0].FetchCycle).To(Equal(uint64(2)))
			Expect(records[0].MemVA).To(Equal(uint64(0x40)))
			Expect(c.Stats().Instructions).To(Equal(uint64(2)))
		})

		It("should drop flushed records", func() {
			id := predictor.MustInstID(1, 1)
			c.OnFetch(id, 0x1000, 1)
			Expect(c.OnFlush(id)).To(BeTrue())
			Expect(c.DebugLog().Pending()).To(BeZero())
			Expect(c.DebugLog().Completed()).To(BeEmpty())
		})
	})

	It("should reset learned state and statistics", func() {
		id := predictor.MustInstID(1, 0)
		_, err := c.OnPredict(id, 0x1000, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.OnResolve(id, 0x1000, resolvedBranch(true, 0x2000), 2)).To(Succeed())

		c.Reset()

		Expect(c.Stats().Branches).To(BeZero())
		Expect(c.Stats().ByDepth).To(HaveLen(config.MaxDependenceDepth + 1))
		Expect(c.InFlight()).To(BeZero())
		Expect(c.Predictor().Bank(0).Len()).To(BeZero())
	})

	It("should reset a resettable reference predictor", func() {
		ref := &fakeReference{}
		c.SetReference(ref)
		id := predictor.MustInstID(1, 0)
		_, err := c.OnPredict(id, 0x1000, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.OnResolve(id, 0x1000, resolvedBranch(true, 0x2000), 2)).To(Succeed())
		Expect(ref.updates).To(HaveLen(1))

		c.Reset()

		Expect(ref.resets).To(Equal(1))
		Expect(ref.updates).To(BeEmpty())
	})
})
