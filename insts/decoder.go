package insts

// Op represents an ARM64 opcode.
type Op uint16

// ARM64 opcodes the decoder recognizes.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpAND
	OpORR
	OpEOR
	OpB
	OpBL
	OpBCond
	OpCBZ
	OpCBNZ
	OpTBZ
	OpTBNZ
	OpBR
	OpBLR
	OpRET
	OpLDR
	OpSTR
	OpPRFM
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown    Format = iota
	FormatDPImm             // Data Processing (Immediate)
	FormatDPReg             // Data Processing (Register)
	FormatBranch            // Unconditional Branch (Immediate)
	FormatBranchCond        // Conditional Branch
	FormatCompareBranch     // Compare/Test and Branch
	FormatBranchReg         // Branch to Register
	FormatLoadStore         // Load/Store (unsigned immediate)
)

// Cond represents an ARM64 condition code.
type Cond uint8

// ARM64 condition codes used by the classifier.
const (
	CondEQ Cond = 0b0000
	CondNE Cond = 0b0001
	CondGE Cond = 0b1010
	CondLT Cond = 0b1011
	CondAL Cond = 0b1110
	CondNV Cond = 0b1111
)

// ZeroReg is register number 31, which reads as zero (or SP for address
// operands).
const ZeroReg uint8 = 31

// LinkReg is the register written by BL and BLR.
const LinkReg uint8 = 30

// Instruction is a decoded ARM64 instruction, reduced to the fields that
// decide its class and register dataflow.
type Instruction struct {
	Op     Op
	Format Format

	SetFlags bool  // S suffix
	Rd       uint8 // destination, or Rt for loads, stores and compare-branches
	Rn       uint8
	Rm       uint8

	BranchOffset int64 // signed offset in bytes
	Cond         Cond
	Size         uint8 // access size in bytes for loads and stores
}

// Decoder decodes ARM64 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new ARM64 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit ARM64 instruction word. Unrecognized words
// decode to OpUnknown.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown}

	switch {
	case d.isDataProcessingImm(word):
		d.decodeDataProcessingImm(word, inst)
	case d.isDataProcessingReg(word):
		d.decodeDataProcessingReg(word, inst)
	case d.isBranchImm(word):
		d.decodeBranchImm(word, inst)
	case d.isBranchCond(word):
		d.decodeBranchCond(word, inst)
	case d.isCompareBranch(word):
		d.decodeCompareBranch(word, inst)
	case d.isBranchReg(word):
		d.decodeBranchReg(word, inst)
	case d.isLoadStore(word):
		d.decodeLoadStore(word, inst)
	}

	return inst
}

// Add/Sub immediate: bits [28:23] == 0b100010
func (d *Decoder) isDataProcessingImm(word uint32) bool {
	return (word>>23)&0x3F == 0b100010
}

// Format: sf | op | S | 100010 | sh | imm12 | Rn | Rd
func (d *Decoder) decodeDataProcessingImm(word uint32, inst *Instruction) {
	inst.Format = FormatDPImm
	inst.SetFlags = (word>>29)&0x1 == 1
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Rd = uint8(word & 0x1F)

	if (word>>30)&0x1 == 0 {
		inst.Op = OpADD
	} else {
		inst.Op = OpSUB
	}
}

// Add/Sub register: bits [28:24] == 0b01011
// Logical register: bits [28:24] == 0b01010
func (d *Decoder) isDataProcessingReg(word uint32) bool {
	op := (word >> 24) & 0x1F
	return op == 0b01011 || op == 0b01010
}

func (d *Decoder) decodeDataProcessingReg(word uint32, inst *Instruction) {
	inst.Format = FormatDPReg
	inst.Rd = uint8(word & 0x1F)
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Rm = uint8((word >> 16) & 0x1F)

	if (word>>24)&0x1F == 0b01011 {
		inst.SetFlags = (word>>29)&0x1 == 1
		if (word>>30)&0x1 == 0 {
			inst.Op = OpADD
		} else {
			inst.Op = OpSUB
		}
		return
	}

	switch (word >> 29) & 0x3 {
	case 0b00:
		inst.Op = OpAND
	case 0b01:
		inst.Op = OpORR
	case 0b10:
		inst.Op = OpEOR
	case 0b11:
		inst.Op = OpAND
		inst.SetFlags = true // ANDS
	}
}

// B:  bits [31:26] == 0b000101
// BL: bits [31:26] == 0b100101
func (d *Decoder) isBranchImm(word uint32) bool {
	op := (word >> 26) & 0x3F
	return op == 0b000101 || op == 0b100101
}

func (d *Decoder) decodeBranchImm(word uint32, inst *Instruction) {
	inst.Format = FormatBranch
	inst.BranchOffset = signExtend(word&0x3FFFFFF, 26) * 4

	if (word>>31)&0x1 == 0 {
		inst.Op = OpB
	} else {
		inst.Op = OpBL
		inst.Rd = LinkReg
	}
}

// B.cond: bits [31:25] == 0b0101010, bit 4 == 0
func (d *Decoder) isBranchCond(word uint32) bool {
	return (word>>25)&0x7F == 0b0101010 && (word>>4)&0x1 == 0
}

func (d *Decoder) decodeBranchCond(word uint32, inst *Instruction) {
	inst.Format = FormatBranchCond
	inst.Op = OpBCond
	inst.BranchOffset = signExtend((word>>5)&0x7FFFF, 19) * 4
	inst.Cond = Cond(word & 0xF)
}

// CBZ/CBNZ: bits [30:25] == 0b011010
// TBZ/TBNZ: bits [30:25] == 0b011011
func (d *Decoder) isCompareBranch(word uint32) bool {
	op := (word >> 25) & 0x3F
	return op == 0b011010 || op == 0b011011
}

func (d *Decoder) decodeCompareBranch(word uint32, inst *Instruction) {
	inst.Format = FormatCompareBranch
	inst.Rd = uint8(word & 0x1F)
	nonZero := (word>>24)&0x1 == 1

	if (word>>25)&0x1 == 0 {
		inst.BranchOffset = signExtend((word>>5)&0x7FFFF, 19) * 4
		inst.Op = OpCBZ
		if nonZero {
			inst.Op = OpCBNZ
		}
		return
	}

	inst.BranchOffset = signExtend((word>>5)&0x3FFF, 14) * 4
	inst.Op = OpTBZ
	if nonZero {
		inst.Op = OpTBNZ
	}
}

// Format: 1101011 0 0 op[1:0] 11111 0000 0 0 Rn 00000
func (d *Decoder) isBranchReg(word uint32) bool {
	hi := (word >> 25) & 0x7F
	mid := (word >> 10) & 0x3F
	lo := word & 0x1F

	return hi == 0b1101011 && mid == 0b000000 && lo == 0b00000
}

func (d *Decoder) decodeBranchReg(word uint32, inst *Instruction) {
	inst.Format = FormatBranchReg
	inst.Rn = uint8((word >> 5) & 0x1F)

	switch (word >> 21) & 0x3 {
	case 0b00:
		inst.Op = OpBR
	case 0b01:
		inst.Op = OpBLR
		inst.Rd = LinkReg
	case 0b10:
		inst.Op = OpRET
	}
}

// Load/store register (unsigned immediate), integer registers:
// bits [29:24] == 0b111001
func (d *Decoder) isLoadStore(word uint32) bool {
	return (word>>24)&0x3F == 0b111001
}

// Format: size | 111001 | opc | imm12 | Rn | Rt
func (d *Decoder) decodeLoadStore(word uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Rd = uint8(word & 0x1F)
	inst.Rn = uint8((word >> 5) & 0x1F)

	size := (word >> 30) & 0x3
	inst.Size = 1 << size

	switch opc := (word >> 22) & 0x3; {
	case opc == 0b00:
		inst.Op = OpSTR
	case opc == 0b10 && size == 0b11:
		inst.Op = OpPRFM
	default:
		inst.Op = OpLDR
	}
}

func signExtend(v uint32, bits uint) int64 {
	shift := 64 - bits
	return int64(uint64(v)<<shift) >> shift
}

// Target returns the destination of a direct branch at pc.
func (inst *Instruction) Target(pc uint64) uint64 {
	return uint64(int64(pc) + inst.BranchOffset)
}

// Info reduces the instruction to what the predictor core consumes.
// Flag-setting instructions that discard their result write FlagsReg.
// Register 31 is dropped where it reads as zero.
func (inst *Instruction) Info() DecodeInfo {
	info := DecodeInfo{Class: ClassUndef}
	gpr := func(r uint8) RegID { return RegID(r) }

	switch inst.Format {
	case FormatDPImm:
		info.Class = ClassALU
		info.SrcRegs = []RegID{gpr(inst.Rn)}
		info.DstReg = inst.aluDest()
	case FormatDPReg:
		info.Class = ClassALU
		info.SrcRegs = nonZero(inst.Rn, inst.Rm)
		info.DstReg = inst.aluDest()
	case FormatBranch:
		info.Class = ClassUncondDirectBranch
		if inst.Op == OpBL {
			info.Class = ClassCallDirect
			info.DstReg = SomeReg(gpr(LinkReg))
		}
	case FormatBranchCond:
		info.Class = ClassCondBranch
		info.SrcRegs = []RegID{FlagsReg}
		if inst.Cond == CondAL || inst.Cond == CondNV {
			info.Class = ClassUncondDirectBranch
			info.SrcRegs = nil
		}
	case FormatCompareBranch:
		info.Class = ClassCondBranch
		info.SrcRegs = nonZero(inst.Rd)
	case FormatBranchReg:
		info.SrcRegs = []RegID{gpr(inst.Rn)}
		switch inst.Op {
		case OpBR:
			info.Class = ClassUncondIndirectBranch
		case OpBLR:
			info.Class = ClassCallIndirect
			info.DstReg = SomeReg(gpr(LinkReg))
		case OpRET:
			info.Class = ClassReturn
		default:
			info.SrcRegs = nil
		}
	case FormatLoadStore:
		switch inst.Op {
		case OpLDR:
			info.Class = ClassLoad
			info.SrcRegs = []RegID{gpr(inst.Rn)}
			if inst.Rd != ZeroReg {
				info.DstReg = SomeReg(gpr(inst.Rd))
			}
		case OpSTR:
			info.Class = ClassStore
			info.SrcRegs = append(nonZero(inst.Rd), gpr(inst.Rn))
		case OpPRFM:
			info.Class = ClassALU
			info.SrcRegs = []RegID{gpr(inst.Rn)}
		}
	}

	return info
}

func (inst *Instruction) aluDest() OptionalReg {
	switch {
	case inst.Rd != ZeroReg:
		return SomeReg(RegID(inst.Rd))
	case inst.SetFlags:
		return SomeReg(FlagsReg)
	case inst.Format == FormatDPImm:
		// Rd 31 is SP for non-flag-setting immediates.
		return SomeReg(RegID(ZeroReg))
	}
	return NoReg()
}

func nonZero(regs ...uint8) []RegID {
	out := make([]RegID, 0, len(regs))
	for _, r := range regs {
		if r != ZeroReg {
			out = append(out, RegID(r))
		}
	}
	return out
}

// Classify decodes word and returns its DecodeInfo.
func Classify(word uint32) DecodeInfo {
	return NewDecoder().Decode(word).Info()
}
