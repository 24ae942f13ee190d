package insts

import (
	"fmt"
	"strings"
)

// RegID is an architectural register identifier.
type RegID uint64

// FlagsReg is the condition-flags register. Conditional branches that only
// read the flags report it as their single source.
const FlagsReg RegID = 64

// OptionalReg is a register that may be absent, such as the destination of
// a store or a branch.
type OptionalReg struct {
	Reg   RegID `cbor:"reg"`
	Valid bool  `cbor:"valid"`
}

// SomeReg returns a present register.
func SomeReg(r RegID) OptionalReg {
	return OptionalReg{Reg: r, Valid: true}
}

// NoReg returns an absent register.
func NoReg() OptionalReg {
	return OptionalReg{}
}

// Get returns the register and whether it is present.
func (o OptionalReg) Get() (RegID, bool) {
	return o.Reg, o.Valid
}

// String renders the register or "-" when absent.
func (o OptionalReg) String() string {
	if !o.Valid {
		return "-"
	}
	return fmt.Sprintf("r%d", o.Reg)
}

// OptionalBool is a direction that is only known for some instructions.
type OptionalBool struct {
	Value bool `cbor:"value"`
	Valid bool `cbor:"valid"`
}

// SomeBool returns a known value.
func SomeBool(v bool) OptionalBool {
	return OptionalBool{Value: v, Valid: true}
}

// Get returns the value and whether it is known.
func (o OptionalBool) Get() (bool, bool) {
	return o.Value, o.Valid
}

// DecodeInfo is what the simulator knows about an instruction after decode.
type DecodeInfo struct {
	Class   Class       `cbor:"class"`
	SrcRegs []RegID     `cbor:"src"`
	DstReg  OptionalReg `cbor:"dst"`
}

// OnlyFlags returns true when the source list is exactly the flags register.
func (d DecodeInfo) OnlyFlags() bool {
	return len(d.SrcRegs) == 1 && d.SrcRegs[0] == FlagsReg
}

// String renders the decode info in the simulator's debug format.
func (d DecodeInfo) String() string {
	return fmt.Sprintf("{ Class:%v num_src_reg:%d arch_dst_reg:%v }",
		d.Class, len(d.SrcRegs), d.DstReg)
}

// ExecuteInfo is what the simulator knows about an instruction after
// execution.
type ExecuteInfo struct {
	Decode DecodeInfo   `cbor:"dec"`
	Taken  OptionalBool `cbor:"taken"`
	NextPC uint64       `cbor:"next_pc"`
	MemVA  uint64       `cbor:"mem_va,omitempty"`
	MemSz  uint64       `cbor:"mem_sz,omitempty"`
}

// FormatRegs renders a register list as "[a;b;c]".
func FormatRegs(regs []RegID) string {
	parts := make([]string, len(regs))
	for i, r := range regs {
		parts[i] = fmt.Sprintf("%d", r)
	}
	return "[" + strings.Join(parts, ";") + "]"
}
