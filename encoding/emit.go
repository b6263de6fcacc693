package encoding

import (
	"encoding/binary"
)

// Register operand as seen by the legacy encoder: 3-bit code plus the
// rex extension bit.
type encReg struct {
	name string
	code byte
	ext  bool

	// spl/bpl/sil/dil are only addressable with a rex prefix; ah..bh
	// only without one.
	needsRex bool
	noRex    bool
}

func reg(name string, code byte) encReg {
	return encReg{name: name, code: code}
}

func extReg(name string, code byte) encReg {
	return encReg{name: name, code: code, ext: true}
}

var (
	gpr8 = []encReg{
		reg("al", 0), reg("cl", 1), reg("dl", 2), reg("bl", 3),
		{name: "ah", code: 4, noRex: true},
		{name: "ch", code: 5, noRex: true},
		{name: "dh", code: 6, noRex: true},
		{name: "bh", code: 7, noRex: true},
		{name: "spl", code: 4, needsRex: true},
		{name: "bpl", code: 5, needsRex: true},
		{name: "sil", code: 6, needsRex: true},
		{name: "dil", code: 7, needsRex: true},
		extReg("r8b", 0), extReg("r9b", 1), extReg("r10b", 2),
		extReg("r11b", 3), extReg("r12b", 4), extReg("r13b", 5),
		extReg("r14b", 6), extReg("r15b", 7),
	}

	gpr64 = []encReg{
		reg("rax", 0), reg("rcx", 1), reg("rdx", 2), reg("rbx", 3),
		reg("rsp", 4), reg("rbp", 5), reg("rsi", 6), reg("rdi", 7),
		extReg("r8", 0), extReg("r9", 1), extReg("r10", 2),
		extReg("r11", 3), extReg("r12", 4), extReg("r13", 5),
		extReg("r14", 6), extReg("r15", 7),
	}

	gpr16 = renamedGprs(
		"ax cx dx bx sp bp si di "+
			"r8w r9w r10w r11w r12w r13w r14w r15w",
	)
	gpr32 = renamedGprs(
		"eax ecx edx ebx esp ebp esi edi " +
			"r8d r9d r10d r11d r12d r13d r14d r15d")
)

func renamedGprs(names string) []encReg {
	result := make([]encReg, 0, 16)
	start := 0
	idx := 0
	for pos := 0; pos <= len(names); pos++ {
		if pos != len(names) && names[pos] != ' ' {
			continue
		}

		entry := gpr64[idx]
		entry.name = names[start:pos]
		result = append(result, entry)

		idx++
		start = pos + 1
	}
	return result
}

func gprsOfSize(size int) []encReg {
	switch size {
	case 8:
		return gpr8
	case 16:
		return gpr16
	case 32:
		return gpr32
	case 64:
		return gpr64
	}
	panic("invalid register size")
}

type memForm struct {
	base  *encReg // 64-bit
	index *encReg // 64-bit
	scale byte    // 1, 2, 4, 8
	disp  int32
}

// Each emitted encoding accumulates prefixes, rex bits, opcode bytes,
// modrm/sib and immediates in instruction order.
type emitter struct {
	prefixes []byte

	rexUsed bool
	rex     byte

	invalid bool

	body []byte
}

func newEmitter(opsize int) *emitter {
	emit := &emitter{rex: 0x40}
	if opsize == 16 {
		emit.prefixes = append(emit.prefixes, 0x66)
	}
	if opsize == 64 {
		emit.rexUsed = true
		emit.rex |= 0x08 // rex.w
	}
	return emit
}

func (emit *emitter) useReg(operand encReg, rexBit byte) {
	if operand.ext || operand.needsRex {
		emit.rexUsed = true
	}
	if operand.ext {
		emit.rex |= rexBit
	}
	if operand.noRex && emit.rexUsed {
		emit.invalid = true
	}
}

// noRex registers poison any encoding that ends up needing a rex
// prefix, including via the other operand; re-check after all
// operands are declared.
func (emit *emitter) recheck(operands ...encReg) {
	for _, operand := range operands {
		if operand.noRex && emit.rexUsed {
			emit.invalid = true
		}
	}
}

func (emit *emitter) opcode(bytes ...byte) {
	emit.body = append(emit.body, bytes...)
}

func (emit *emitter) modRM(mod byte, regField byte, rm byte) {
	emit.body = append(emit.body, mod<<6|regField<<3|rm)
}

func (emit *emitter) sib(scale byte, index byte, base byte) {
	scaleBits := byte(0)
	switch scale {
	case 1:
		scaleBits = 0
	case 2:
		scaleBits = 1
	case 4:
		scaleBits = 2
	case 8:
		scaleBits = 3
	default:
		emit.invalid = true
	}
	emit.body = append(emit.body, scaleBits<<6|index<<3|base)
}

func (emit *emitter) imm(value uint64, size int) {
	buf := [8]byte{}
	binary.LittleEndian.PutUint64(buf[:], value)
	emit.body = append(emit.body, buf[:size/8]...)
}

func (emit *emitter) finish() []byte {
	if emit.invalid {
		return nil
	}

	result := make([]byte, 0, len(emit.prefixes)+1+len(emit.body))
	result = append(result, emit.prefixes...)
	if emit.rexUsed {
		result = append(result, emit.rex)
	}
	result = append(result, emit.body...)
	return result
}

// ModRM register-direct operand (mod = 11).
func (emit *emitter) regDirect(opcode []byte, regField byte, rm encReg) {
	emit.useReg(rm, 0x01) // rex.b
	emit.opcode(opcode...)
	emit.modRM(3, regField, rm.code)
}

// ModRM memory operand.  Handles the rsp/r12 sib escape and the
// rbp/r13 mandatory displacement.
func (emit *emitter) memOperand(opcode []byte, regField byte, mem memForm) {
	if mem.index != nil {
		emit.useReg(*mem.index, 0x02) // rex.x
		if mem.index.code == 4 && !mem.index.ext {
			// rsp cannot be an index register
			emit.invalid = true
		}
	}
	if mem.base != nil {
		emit.useReg(*mem.base, 0x01) // rex.b
	}

	emit.opcode(opcode...)

	if mem.base == nil {
		if mem.index == nil {
			emit.invalid = true
			return
		}

		// [index*scale + disp32]: mod 00, sib base 101
		emit.modRM(0, regField, 4)
		emit.sib(mem.scale, mem.index.code, 5)
		emit.imm(uint64(uint32(mem.disp)), 32)
		return
	}

	mod := byte(0)
	dispSize := 0
	switch {
	case mem.disp == 0 && mem.base.code != 5:
		// no displacement; rbp/r13 always need one
	case mem.disp >= -128 && mem.disp <= 127:
		mod = 1
		dispSize = 8
	default:
		mod = 2
		dispSize = 32
	}

	if mem.index == nil && mem.base.code != 4 {
		emit.modRM(mod, regField, mem.base.code)
	} else {
		// rsp/r12 bases are encoded through a sib byte even without
		// an index.
		indexCode := byte(4)
		scale := byte(1)
		if mem.index != nil {
			indexCode = mem.index.code
			scale = mem.scale
		}
		emit.modRM(mod, regField, 4)
		emit.sib(scale, indexCode, mem.base.code)
	}

	switch dispSize {
	case 8:
		emit.imm(uint64(uint8(int8(mem.disp))), 8)
	case 32:
		emit.imm(uint64(uint32(mem.disp)), 32)
	}
}
