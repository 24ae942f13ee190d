package insts

// Encoders for the 64-bit forms the decoder recognizes. Offsets are in
// bytes and must be multiples of 4.

// EncodeADDImm encodes ADD Xd, Xn, #imm.
func EncodeADDImm(rd, rn uint8, imm uint16) uint32 {
	return 0x91000000 | uint32(imm&0xFFF)<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeSUBSImm encodes SUBS Xd, Xn, #imm. CMP is SUBS with Rd 31.
func EncodeSUBSImm(rd, rn uint8, imm uint16) uint32 {
	return 0xF1000000 | uint32(imm&0xFFF)<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeCMPImm encodes CMP Xn, #imm.
func EncodeCMPImm(rn uint8, imm uint16) uint32 {
	return EncodeSUBSImm(ZeroReg, rn, imm)
}

// EncodeADDReg encodes ADD Xd, Xn, Xm.
func EncodeADDReg(rd, rn, rm uint8) uint32 {
	return 0x8B000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeLDR encodes LDR Xt, [Xn, #imm]. imm is a byte offset scaled by 8.
func EncodeLDR(rt, rn uint8, imm uint16) uint32 {
	return 0xF9400000 | uint32((imm/8)&0xFFF)<<10 | uint32(rn&0x1F)<<5 | uint32(rt&0x1F)
}

// EncodeSTR encodes STR Xt, [Xn, #imm].
func EncodeSTR(rt, rn uint8, imm uint16) uint32 {
	return 0xF9000000 | uint32((imm/8)&0xFFF)<<10 | uint32(rn&0x1F)<<5 | uint32(rt&0x1F)
}

// EncodeB encodes B with a byte offset.
func EncodeB(offset int64) uint32 {
	return 0x14000000 | uint32(offset/4)&0x3FFFFFF
}

// EncodeBL encodes BL with a byte offset.
func EncodeBL(offset int64) uint32 {
	return 0x94000000 | uint32(offset/4)&0x3FFFFFF
}

// EncodeBCond encodes B.cond with a byte offset.
func EncodeBCond(cond Cond, offset int64) uint32 {
	return 0x54000000 | (uint32(offset/4)&0x7FFFF)<<5 | uint32(cond&0xF)
}

// EncodeCBZ encodes CBZ Xt with a byte offset.
func EncodeCBZ(rt uint8, offset int64) uint32 {
	return 0xB4000000 | (uint32(offset/4)&0x7FFFF)<<5 | uint32(rt&0x1F)
}

// EncodeCBNZ encodes CBNZ Xt with a byte offset.
func EncodeCBNZ(rt uint8, offset int64) uint32 {
	return EncodeCBZ(rt, offset) | 1<<24
}

// EncodeBR encodes BR Xn.
func EncodeBR(rn uint8) uint32 {
	return 0xD61F0000 | uint32(rn&0x1F)<<5
}

// EncodeBLR encodes BLR Xn.
func EncodeBLR(rn uint8) uint32 {
	return 0xD63F0000 | uint32(rn&0x1F)<<5
}

// EncodeRET encodes RET (X30).
func EncodeRET() uint32 {
	return 0xD65F0000 | uint32(LinkReg)<<5
}
