package predictor_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/convpred/timing/predictor"
)

type recordingHook struct {
	positions []*sim.HookPos
	items     []any
}

func (h *recordingHook) Func(ctx sim.HookCtx) {
	h.positions = append(h.positions, ctx.Pos)
	h.items = append(h.items, ctx.Item)
}

var _ = Describe("GeometricPredictor", func() {
	const pc = uint64(0x4000)

	var (
		p   *predictor.GeometricPredictor
		seq uint64
	)

	nextID := func() predictor.InstID {
		seq++
		return predictor.MustInstID(seq, 0)
	}

	// resolve runs one branch at branchPC through predict and update.
	resolve := func(branchPC uint64, taken bool) bool {
		id := nextID()
		pred, err := p.Predict(id, branchPC)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Update(id, taken, pred, branchPC+4)).To(Succeed())
		return pred
	}

	BeforeEach(func() {
		var err error
		p, err = predictor.NewGeometricPredictor(predictor.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		seq = 0
	})

	It("should reject an invalid configuration", func() {
		c := predictor.DefaultConfig()
		c.HistoryLengths = nil
		_, err := predictor.NewGeometricPredictor(c)
		Expect(err).To(HaveOccurred())
	})

	Describe("Cold prediction", func() {
		It("should predict not-taken and allocate one bank-0 entry", func() {
			taken, err := p.Predict(nextID(), pc)
			Expect(err).NotTo(HaveOccurred())
			Expect(taken).To(BeFalse())

			entries := p.Bank(0).Lookup(pc)
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Counter).To(Equal(7))
			Expect(entries[0].Weights).To(HaveLen(256))
			Expect(entries[0].Weights).To(HaveEach(predictor.TritNotTaken))
			for b := 1; b < p.NumBanks(); b++ {
				Expect(p.Bank(b).Lookup(pc)).To(BeEmpty())
			}
			Expect(p.Stats().Allocations).To(Equal(uint64(1)))
		})

		It("should initialize weights from the live history", func() {
			resolve(0x9000, true)
			resolve(0x9000, false)

			id := nextID()
			_, err := p.Predict(id, pc)
			Expect(err).NotTo(HaveOccurred())

			snap, ok := p.Snapshot(id)
			Expect(ok).To(BeTrue())
			Expect(snap.Allocated).To(BeTrue())

			e, ok := p.Entry(pc, snap.Entry)
			Expect(ok).To(BeTrue())
			Expect(e.Weights[0]).To(Equal(predictor.TritNotTaken))
			Expect(e.Weights[1]).To(Equal(predictor.TritTaken))
			Expect(e.Weights[2]).To(Equal(predictor.TritNotTaken))
		})

		It("should reuse the entry once the branch has been seen", func() {
			resolve(pc, false)
			resolve(pc, false)

			Expect(p.Bank(0).Lookup(pc)).To(HaveLen(1))
			Expect(p.Stats().Allocations).To(Equal(uint64(1)))
		})
	})

	Describe("Matching", func() {
		BeforeEach(func() {
			c := predictor.DefaultConfig()
			c.HistoryLengths = []int{8, 4}
			c.MaxHistoryLength = 16
			var err error
			p, err = predictor.NewGeometricPredictor(c)
			Expect(err).NotTo(HaveOccurred())
		})

		insert := func(bank int, id predictor.EntryID, weights []predictor.Trit, counter int) {
			p.Bank(bank).Insert(&predictor.Entry{ID: id, PC: pc, Weights: weights, Counter: counter})
		}

		It("should prefer the lower bank on equal scores", func() {
			nt := predictor.TritNotTaken
			insert(0, 1, []predictor.Trit{nt, nt, nt, nt, 0, 0, 0, 0}, 15)
			insert(1, 2, []predictor.Trit{nt, nt, nt, nt}, 0)

			taken, e := p.Match(pc, p.History())
			Expect(e).NotTo(BeNil())
			Expect(e.ID).To(Equal(predictor.EntryID(1)))
			Expect(taken).To(BeTrue())
		})

		It("should pick the strictly highest score across banks", func() {
			nt := predictor.TritNotTaken
			insert(0, 1, []predictor.Trit{nt, nt, 0, 0, 0, 0, 0, 0}, 15)
			insert(1, 2, []predictor.Trit{nt, nt, nt, nt}, 0)

			taken, e := p.Match(pc, p.History())
			Expect(e.ID).To(Equal(predictor.EntryID(2)))
			Expect(taken).To(BeFalse())
		})

		It("should ignore entries scoring below the threshold", func() {
			t := predictor.TritTaken
			insert(0, 1, []predictor.Trit{t, t, t, 0, 0, 0, 0, 0}, 15)

			_, e := p.Match(pc, p.History())
			Expect(e).To(BeNil())
		})

		It("should accept a score of exactly zero", func() {
			t, nt := predictor.TritTaken, predictor.TritNotTaken
			insert(0, 1, []predictor.Trit{t, nt, 0, 0, 0, 0, 0, 0}, 15)

			taken, e := p.Match(pc, p.History())
			Expect(e).NotTo(BeNil())
			Expect(taken).To(BeTrue())
		})
	})

	Describe("Protocol", func() {
		It("should reject updates of unknown instructions", func() {
			err := p.Update(predictor.MustInstID(99, 0), true, true, 0)
			Expect(err).To(MatchError(predictor.ErrUnknownInstruction))
		})

		It("should reject a second prediction of an in-flight instruction", func() {
			id := nextID()
			_, err := p.Predict(id, pc)
			Expect(err).NotTo(HaveOccurred())

			_, err = p.Predict(id, pc)
			Expect(err).To(MatchError(predictor.ErrDuplicateInstruction))
		})

		It("should consume the snapshot on update", func() {
			id := nextID()
			pred, _ := p.Predict(id, pc)
			Expect(p.InFlight()).To(Equal(1))

			Expect(p.Update(id, false, pred, 0)).To(Succeed())
			Expect(p.InFlight()).To(BeZero())
			Expect(p.Update(id, false, pred, 0)).To(MatchError(predictor.ErrUnknownInstruction))
		})

		It("should forget flushed predictions", func() {
			id := nextID()
			_, err := p.Predict(id, pc)
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Flush(id)).To(BeTrue())
			Expect(p.Flush(id)).To(BeFalse())
			Expect(p.InFlight()).To(BeZero())
			Expect(p.Stats().Flushes).To(Equal(uint64(1)))

			Expect(p.Update(id, true, false, 0)).To(MatchError(predictor.ErrUnknownInstruction))
		})

		It("should not advance history on a flush", func() {
			id := nextID()
			_, _ = p.Predict(id, pc)
			p.Flush(id)
			Expect(p.History().Low64()).To(BeZero())
		})
	})

	Describe("History", func() {
		It("should push the resolved direction once per update", func() {
			resolve(pc, true)
			Expect(p.History().Bit(0)).To(BeTrue())

			resolve(pc, false)
			Expect(p.History().Bit(0)).To(BeFalse())
			Expect(p.History().Bit(1)).To(BeTrue())
			Expect(p.History().Low64()).To(Equal(uint64(0b10)))
		})

		It("should learn against the history seen at prediction time", func() {
			first, second := nextID(), nextID()
			_, _ = p.Predict(first, pc)
			_, _ = p.Predict(second, 0x5000)

			Expect(p.Update(first, true, true, 0)).To(Succeed())
			Expect(p.History().Bit(0)).To(BeTrue())

			snap, ok := p.Snapshot(second)
			Expect(ok).To(BeTrue())
			Expect(snap.History.Bit(0)).To(BeFalse())
		})

		It("should defer the push to SpecUpdate in speculative mode", func() {
			c := predictor.DefaultConfig()
			c.SpeculativeHistory = true
			var err error
			p, err = predictor.NewGeometricPredictor(c)
			Expect(err).NotTo(HaveOccurred())

			id := nextID()
			pred, _ := p.Predict(id, pc)
			p.SpecUpdate(true)
			Expect(p.History().Bit(0)).To(BeTrue())

			Expect(p.Update(id, true, pred, 0)).To(Succeed())
			Expect(p.History().Low64()).To(Equal(uint64(1)))
		})

		It("should ignore SpecUpdate otherwise", func() {
			p.SpecUpdate(true)
			Expect(p.History().Low64()).To(BeZero())
		})
	})

	Describe("Counters", func() {
		It("should saturate at the maximum after repeated taken outcomes", func() {
			for i := 0; i < 10; i++ {
				id := nextID()
				_, err := p.Predict(id, pc)
				Expect(err).NotTo(HaveOccurred())
				// The simulator reports the branch as predicted taken.
				Expect(p.Update(id, true, true, pc+4)).To(Succeed())
			}

			entries := p.Bank(0).Lookup(pc)
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Counter).To(Equal(15))
		})

		It("should saturate at zero after repeated not-taken outcomes", func() {
			for i := 0; i < 10; i++ {
				id := nextID()
				_, err := p.Predict(id, pc)
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Update(id, false, false, pc+4)).To(Succeed())
			}

			entries := p.Bank(0).Lookup(pc)
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Counter).To(BeZero())
		})

		It("should predict taken once the counter reaches half", func() {
			Expect(resolve(pc, true)).To(BeFalse())
			Expect(resolve(pc, true)).To(BeTrue())
		})
	})

	Describe("Decoherence", func() {
		It("should zero weights that disagree on correct predictions", func() {
			resolve(pc, false) // allocate with all not-taken weights
			resolve(0x9000, true)

			// The branch still matches and predicts not-taken correctly.
			Expect(resolve(pc, false)).To(BeFalse())

			// Only the taken outcome at bit 0 disagreed.
			e := p.Bank(0).Lookup(pc)[0]
			Expect(e.Weights[0]).To(Equal(predictor.TritDontCare))
			Expect(e.Weights[1]).To(Equal(predictor.TritNotTaken))
			Expect(e.Weights[2]).To(Equal(predictor.TritNotTaken))
		})

		It("should leave weights alone on mispredictions", func() {
			resolve(pc, false)
			resolve(0x9000, true)

			// Counter is 6, so the branch predicts not-taken and is wrong.
			Expect(resolve(pc, true)).To(BeFalse())

			e := p.Bank(0).Lookup(pc)[0]
			Expect(e.Weights[0]).To(Equal(predictor.TritNotTaken))
			Expect(p.Stats().Mispredictions).To(BeNumerically(">=", 1))
		})
	})

	Describe("Promotion", func() {
		It("should move a decohered entry to the next bank", func() {
			resolve(pc, false)
			entry := p.Bank(0).Lookup(pc)[0].ID

			// Positions 129..255 taken, 0..128 not-taken.
			for i := 0; i < 127; i++ {
				resolve(0x9000, true)
			}
			for i := 0; i < 129; i++ {
				resolve(0x9000, false)
			}

			// Score is 129 - 127 = 2, counter is 6: predicts not-taken.
			Expect(resolve(pc, false)).To(BeFalse())

			Expect(p.Bank(0).Lookup(pc)).To(BeEmpty())
			promoted := p.Bank(1).Lookup(pc)
			Expect(promoted).To(HaveLen(1))
			Expect(promoted[0].ID).To(Equal(entry))
			Expect(promoted[0].Bank).To(Equal(1))
			Expect(promoted[0].Counter).To(Equal(5))
			Expect(promoted[0].Weights).To(HaveLen(128))
			Expect(promoted[0].Weights).To(HaveEach(predictor.TritNotTaken))
			Expect(p.Stats().Promotions).To(BeNumerically(">=", 1))

			e, ok := p.Entry(pc, entry)
			Expect(ok).To(BeTrue())
			Expect(e.Bank).To(Equal(1))
		})

		It("should keep training the entry in its new bank", func() {
			resolve(pc, false)
			for i := 0; i < 127; i++ {
				resolve(0x9000, true)
			}
			for i := 0; i < 129; i++ {
				resolve(0x9000, false)
			}
			resolve(pc, false)

			resolve(pc, false)
			Expect(p.Bank(1).Lookup(pc)[0].Counter).To(Equal(4))
		})

		It("should not promote out of the last bank", func() {
			c := predictor.DefaultConfig()
			c.HistoryLengths = []int{8}
			c.MaxHistoryLength = 8
			var err error
			p, err = predictor.NewGeometricPredictor(c)
			Expect(err).NotTo(HaveOccurred())

			resolve(pc, false)
			for i := 0; i < 3; i++ {
				resolve(0x9000, true)
			}
			for i := 0; i < 5; i++ {
				resolve(0x9000, false)
			}
			resolve(pc, false)

			Expect(p.Bank(0).Lookup(pc)).To(HaveLen(1))
			Expect(p.Stats().Promotions).To(BeZero())
		})
	})

	Describe("Hooks", func() {
		It("should report allocation, prediction and update", func() {
			hook := &recordingHook{}
			p.AcceptHook(hook)

			resolve(pc, false)

			Expect(hook.positions).To(Equal([]*sim.HookPos{
				predictor.HookPosAllocate,
				predictor.HookPosPredict,
				predictor.HookPosUpdate,
			}))
			Expect(hook.items[0]).To(BeAssignableToTypeOf(predictor.Entry{}))
			Expect(hook.items[1]).To(BeAssignableToTypeOf(&predictor.Snapshot{}))
		})
	})

	Describe("Bookkeeping", func() {
		It("should estimate storage from the banks", func() {
			resolve(pc, false)
			resolve(0x5000, false)
			Expect(p.StorageBits()).To(Equal(2 * (256*2 + 3)))
		})

		It("should compute accuracy", func() {
			resolve(pc, false)
			resolve(pc, true)
			stats := p.Stats()
			Expect(stats.Predictions).To(Equal(uint64(2)))
			Expect(stats.Resolved()).To(Equal(uint64(2)))
			Expect(stats.Accuracy()).To(BeNumerically("~", 50.0))
			Expect(stats.MispredictionRate()).To(BeNumerically("~", 50.0))

			p.ResetStats()
			Expect(p.Stats()).To(Equal(predictor.Stats{}))
			Expect(p.Bank(0).Lookup(pc)).To(HaveLen(1))
		})

		It("should clear everything on reset", func() {
			id := nextID()
			_, _ = p.Predict(id, pc)
			p.Reset()

			Expect(p.InFlight()).To(BeZero())
			Expect(p.Bank(0).Len()).To(BeZero())
			Expect(p.Update(id, true, true, 0)).To(MatchError(predictor.ErrUnknownInstruction))
		})
	})
})
