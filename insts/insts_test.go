package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/convpred/insts"
)

var _ = Describe("Insts Package", func() {
	Describe("Class", func() {
		It("should classify loads and stores", func() {
			Expect(insts.ClassLoad.IsLoad()).To(BeTrue())
			Expect(insts.ClassLoad.IsMem()).To(BeTrue())
			Expect(insts.ClassStore.IsMem()).To(BeTrue())
			Expect(insts.ClassALU.IsMem()).To(BeFalse())
		})

		It("should only report conditional branches as conditional", func() {
			Expect(insts.ClassCondBranch.IsCondBranch()).To(BeTrue())
			Expect(insts.ClassCondBranch.IsUncondBranch()).To(BeFalse())
			Expect(insts.ClassReturn.IsUncondBranch()).To(BeTrue())
			Expect(insts.ClassLoad.IsBranch()).To(BeFalse())
		})

		DescribeTable("branch types",
			func(c insts.Class, expected int) {
				t, err := c.BranchType()
				Expect(err).NotTo(HaveOccurred())
				Expect(t).To(Equal(expected))
			},
			Entry("conditional", insts.ClassCondBranch, insts.BranchTypeConditional),
			Entry("direct", insts.ClassUncondDirectBranch, insts.BranchTypeDirect),
			Entry("direct call", insts.ClassCallDirect, insts.BranchTypeDirect),
			Entry("indirect", insts.ClassUncondIndirectBranch, insts.BranchTypeIndirect),
			Entry("indirect call", insts.ClassCallIndirect, insts.BranchTypeIndirect),
			Entry("return", insts.ClassReturn, insts.BranchTypeIndirect),
		)

		It("should reject branch type for non-branches", func() {
			_, err := insts.ClassALU.BranchType()
			Expect(err).To(HaveOccurred())
		})

		It("should print mnemonics", func() {
			Expect(insts.ClassCondBranch.String()).To(Equal("condBrOp"))
			Expect(insts.Class(42).String()).To(Equal("Class(42)"))
		})
	})

	Describe("Optional values", func() {
		It("should distinguish absent registers from register zero", func() {
			r, ok := insts.NoReg().Get()
			Expect(ok).To(BeFalse())
			Expect(r).To(BeZero())

			r, ok = insts.SomeReg(0).Get()
			Expect(ok).To(BeTrue())
			Expect(r).To(Equal(insts.RegID(0)))
		})

		It("should render registers", func() {
			Expect(insts.SomeReg(7).String()).To(Equal("r7"))
			Expect(insts.NoReg().String()).To(Equal("-"))
		})

		It("should carry known directions", func() {
			v, ok := insts.SomeBool(true).Get()
			Expect(ok).To(BeTrue())
			Expect(v).To(BeTrue())

			_, ok = insts.OptionalBool{}.Get()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("DecodeInfo", func() {
		It("should detect flags-only sources", func() {
			d := insts.DecodeInfo{SrcRegs: []insts.RegID{insts.FlagsReg}}
			Expect(d.OnlyFlags()).To(BeTrue())

			d.SrcRegs = []insts.RegID{insts.FlagsReg, 3}
			Expect(d.OnlyFlags()).To(BeFalse())
		})

		It("should format register lists", func() {
			Expect(insts.FormatRegs(nil)).To(Equal("[]"))
			Expect(insts.FormatRegs([]insts.RegID{1, 2, 3})).To(Equal("[1;2;3]"))
		})
	})
})
