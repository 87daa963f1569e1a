package main

import (
	"golang.org/x/arch/arm64/arm64asm"
)

// arm64Step decodes one fixed 4-byte AArch64 instruction from data at
// offset and returns its masked tokens. AArch64 instructions are always
// exactly 4 bytes, so unlike the x86-64 generator this never fails to
// advance: an instruction arm64asm can't classify is fully wildcarded but
// still consumes 4 bytes and emits 4 tokens, keeping the search window in
// lockstep with file position.
type arm64Step struct{}

func (arm64Step) iterSize() int { return 4 }

func (arm64Step) next(data []byte, offset int) ([]Token, int, error) {
	if offset < 0 || offset+4 > len(data) {
		return nil, 0, errEndOfStream
	}
	enc := data[offset : offset+4]

	mask := uint32(0)
	if inst, err := arm64asm.Decode(enc); err == nil {
		mask = arm64Mask(inst)
	}

	tokens := make([]Token, 4)
	for i := 0; i < 4; i++ {
		mb := byte(mask >> (8 * uint(i)))
		tokens[i] = Token{Value: enc[i] & mb, Mask: mb}
	}
	return tokens, 4, nil
}

// arm64Mask selects the 32-bit keep-mask for one decoded instruction:
// opcode and register fields stay exact, immediate offsets, branch
// targets, and PC-relative page bases are wildcarded, since those are the
// fields compilers churn between releases. The mask is little-endian over
// the instruction's encoded bytes; instructions not named here get mask 0
// (fully wildcarded). arm64asm resolves aliases during decode, so e.g. a
// MOV spelled over ORR arrives here as MOV.
func arm64Mask(inst arm64asm.Inst) uint32 {
	switch inst.Op {
	case arm64asm.SUB, arm64asm.ADD:
		return addSubMask(inst)
	case arm64asm.STP:
		// stp xN, xM, [sp, #imm] is the common prologue shape; keep it
		// whole. Anywhere else the offset field is churn-prone.
		if memBaseIsSP(inst.Args[2]) {
			return 0xffffffff
		}
		return 0xffff8000
	case arm64asm.MOV:
		if isRegArg(inst.Args[0]) && isRegArg(inst.Args[1]) {
			return 0xffffffff
		}
		return 0xffe0fc00
	case arm64asm.B, arm64asm.BL:
		// Branch target may change; keep only the opcode bits.
		return 0xfc000000
	case arm64asm.CBZ, arm64asm.CBNZ:
		return 0xff000000
	case arm64asm.STR, arm64asm.LDR:
		if memBaseIsSP(inst.Args[1]) {
			return 0xffffffff
		}
		if inst.Op == arm64asm.LDR {
			return 0xff000000
		}
		return 0xffc00000
	case arm64asm.STRB:
		return 0xffe0fc00
	case arm64asm.BRK:
		return 0xffffffff
	case arm64asm.ADRP:
		return 0x9f000000
	case arm64asm.FMOV:
		if isRegArg(inst.Args[0]) && isRegArg(inst.Args[1]) {
			return 0xffffffff
		}
		return 0
	case arm64asm.RET, arm64asm.BLR, arm64asm.BR:
		return 0xfffffc1f
	case arm64asm.LDP:
		return 0xffc00000
	case arm64asm.TBZ:
		return 0xfff8001f
	case arm64asm.STUR:
		return 0xffe00c00
	default:
		return 0
	}
}

// addSubMask distinguishes the ADD/SUB encodings. SP-relative forms are
// stack-frame bookkeeping whose immediates stay stable across builds, so
// they keep all 32 bits; the remaining forms wildcard their immediate or
// shift-amount fields.
func addSubMask(inst arm64asm.Inst) uint32 {
	if argIsSP(inst.Args[1]) {
		return 0xffffffff
	}
	r0, ok0 := regOf(inst.Args[0])
	r1, ok1 := regOf(inst.Args[1])
	if ok0 && ok1 && r0 == r1 {
		// dst == src: immediate accumulate form, wildcard the imm12.
		return 0xffc003ff
	}
	switch inst.Args[2].(type) {
	case arm64asm.Reg, arm64asm.RegSP, arm64asm.RegExtshiftAmount:
		// Extended register: wildcard only the extend amount.
		return 0xffffe3ff
	case arm64asm.Imm, arm64asm.Imm64, arm64asm.ImmShift:
		// Shifted immediate: wildcard the imm12 and shift.
		return 0xffff03ff
	default:
		return 0
	}
}

func isRegArg(a arm64asm.Arg) bool {
	switch a.(type) {
	case arm64asm.Reg, arm64asm.RegSP:
		return true
	}
	return false
}

func regOf(a arm64asm.Arg) (arm64asm.Reg, bool) {
	switch r := a.(type) {
	case arm64asm.Reg:
		return r, true
	case arm64asm.RegSP:
		return arm64asm.Reg(r), true
	}
	return 0, false
}

// argIsSP reports whether an operand is the stack pointer. arm64asm gives
// SP and XZR the same Reg encoding and tells them apart by type: a real
// SP operand always arrives as RegSP.
func argIsSP(a arm64asm.Arg) bool {
	r, ok := a.(arm64asm.RegSP)
	return ok && arm64asm.Reg(r) == arm64asm.SP
}

func memBaseIsSP(a arm64asm.Arg) bool {
	m, ok := a.(arm64asm.MemImmediate)
	return ok && arm64asm.Reg(m.Base) == arm64asm.SP
}
