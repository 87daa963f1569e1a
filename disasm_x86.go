package main

import (
	"golang.org/x/arch/x86/x86asm"
)

// x86Step decodes one variable-length x86-64 instruction at a time. The
// churn-prone fields are wildcarded: memory-operand displacements (stack
// slots, RIP-relative references) and pc-relative branch targets.
// Everything else, including immediates, stays exact. The stream ends on
// an int3 (0xCC) opcode; a decode failure is surfaced as its own error so
// the synthesis loop can report InvalidInstruction when a method starts on
// bytes the decoder rejects.
type x86Step struct{}

func (x86Step) iterSize() int { return 1 }

func (x86Step) next(data []byte, offset int) ([]Token, int, error) {
	if offset < 0 || offset >= len(data) {
		return nil, 0, errEndOfStream
	}

	if data[offset] == 0xCC {
		return nil, 0, errEndOfStream
	}

	inst, err := x86asm.Decode(data[offset:], 64)
	if err != nil {
		return nil, 0, err
	}

	raw := data[offset : offset+inst.Len]
	wild := make([]bool, inst.Len)
	if inst.PCRel > 0 {
		for i := inst.PCRelOff; i < inst.PCRelOff+inst.PCRel && i < inst.Len; i++ {
			wild[i] = true
		}
	}
	if hasModRMMem(inst) {
		if start, size := displacementRegion(raw); size > 0 {
			for i := start; i < start+size; i++ {
				wild[i] = true
			}
		}
	}

	tokens := make([]Token, inst.Len)
	for i, b := range raw {
		if wild[i] {
			tokens[i] = wildcardToken()
		} else {
			tokens[i] = byteToken(b)
		}
	}
	return tokens, inst.Len, nil
}

// hasModRMMem reports whether inst has a memory operand encoded through a
// ModRM byte. Direct-address forms (moffs) carry a Mem argument with
// neither base nor index and no ModRM; those keep their address bytes
// exact.
func hasModRMMem(inst x86asm.Inst) bool {
	for _, a := range inst.Args {
		if m, ok := a.(x86asm.Mem); ok && (m.Base != 0 || m.Index != 0) {
			return true
		}
	}
	return false
}

// displacementRegion locates the displacement bytes of an encoded
// instruction known to carry a ModRM memory operand. x86asm does not
// expose the instruction's structural segments, so the region is derived
// from the encoding itself: skip legacy prefixes and the REX/VEX/EVEX
// prefix, skip the (possibly escaped) opcode, then read ModRM and SIB to
// size the displacement. Returns (0, 0) when there is no displacement or
// the bytes don't parse as expected.
func displacementRegion(b []byte) (int, int) {
	i := 0
	for i < len(b) {
		switch b[i] {
		case 0x26, 0x2E, 0x36, 0x3E, 0x64, 0x65, 0x66, 0x67, 0xF0, 0xF2, 0xF3:
			i++
			continue
		}
		break
	}
	if i >= len(b) {
		return 0, 0
	}

	var modrm int
	switch b[i] {
	case 0xC5: // two-byte VEX
		modrm = i + 3
	case 0xC4: // three-byte VEX
		modrm = i + 4
	case 0x62: // EVEX
		modrm = i + 5
	default:
		if b[i]&0xF0 == 0x40 { // REX
			i++
		}
		if i < len(b) && b[i] == 0x0F {
			i++
			if i < len(b) && (b[i] == 0x38 || b[i] == 0x3A) {
				i++
			}
		}
		modrm = i + 1
	}
	if modrm >= len(b) {
		return 0, 0
	}

	mod := b[modrm] >> 6
	rm := b[modrm] & 7
	if mod == 3 {
		return 0, 0
	}

	disp := modrm + 1
	if rm == 4 { // SIB follows
		if disp >= len(b) {
			return 0, 0
		}
		if mod == 0 && b[disp]&7 == 5 {
			// SIB without a base register carries disp32.
			if disp+1+4 > len(b) {
				return 0, 0
			}
			return disp + 1, 4
		}
		disp++
	}

	var size int
	switch mod {
	case 1:
		size = 1
	case 2:
		size = 4
	default: // mod == 0
		if rm == 5 { // RIP-relative
			size = 4
		}
	}
	if size == 0 || disp+size > len(b) {
		return 0, 0
	}
	return disp, size
}
