// Package insts provides the instruction descriptions exchanged between the
// simulator front end and the branch predictor core.
//
// The simulator decodes and executes the program on its own. It only hands
// over what the predictor needs: the instruction class, the architectural
// source and destination registers, and, once executed, the resolved
// direction and next PC.
//
// Usage:
//
//	info := insts.DecodeInfo{
//		Class:   insts.ClassLoad,
//		SrcRegs: []insts.RegID{5},
//		DstReg:  insts.SomeReg(1),
//	}
//	if info.Class.IsLoad() { ... }
package insts

import "fmt"

// Class is the coarse instruction class reported by the simulator.
type Class uint8

// Instruction classes. The numbering follows the simulator's trace format.
const (
	ClassALU Class = iota
	ClassLoad
	ClassStore
	ClassCondBranch
	ClassUncondDirectBranch
	ClassUncondIndirectBranch
	ClassFP
	ClassSlowALU
	ClassUndef
	ClassCallDirect
	ClassCallIndirect
	ClassReturn
)

var classNames = [...]string{
	"aluOp", "loadOp", "stOp", "condBrOp", "uncondDirBrOp", "uncondIndBrOp",
	"fpOp", "slowAluOp", "undefOp", "callDirBrOp", "callIndBrOp", "retBrOp",
}

// String returns the short mnemonic used in simulator logs.
func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// IsLoad returns true for load instructions.
func (c Class) IsLoad() bool {
	return c == ClassLoad
}

// IsStore returns true for store instructions.
func (c Class) IsStore() bool {
	return c == ClassStore
}

// IsMem returns true for loads and stores.
func (c Class) IsMem() bool {
	return c.IsLoad() || c.IsStore()
}

// IsBranch returns true for every control-transfer class.
func (c Class) IsBranch() bool {
	switch c {
	case ClassCondBranch, ClassUncondDirectBranch, ClassUncondIndirectBranch,
		ClassCallDirect, ClassCallIndirect, ClassReturn:
		return true
	default:
		return false
	}
}

// IsCondBranch returns true for conditional branches.
func (c Class) IsCondBranch() bool {
	return c == ClassCondBranch
}

// IsUncondBranch returns true for branches that are always taken.
func (c Class) IsUncondBranch() bool {
	return c.IsBranch() && c != ClassCondBranch
}

// IsIndirectBranch returns true for branches whose target comes from a
// register.
func (c Class) IsIndirectBranch() bool {
	return c == ClassUncondIndirectBranch || c == ClassCallIndirect ||
		c == ClassReturn
}

// Branch types used by history tracking.
const (
	BranchTypeDirect = iota
	BranchTypeConditional
	BranchTypeIndirect

	NumBranchTypes
)

// BranchType maps a branch class onto one of the branch types.
func (c Class) BranchType() (int, error) {
	switch {
	case c.IsCondBranch():
		return BranchTypeConditional, nil
	case c.IsIndirectBranch():
		return BranchTypeIndirect, nil
	case c.IsBranch():
		return BranchTypeDirect, nil
	default:
		return 0, fmt.Errorf("class %v is not a branch", c)
	}
}
