package encoding

import (
	"golang.org/x/arch/x86/x86asm"
)

type formKind int

const (
	// opcode r/m, r
	formRMReg = formKind(iota + 1)
	// opcode r, r/m
	formRegRM
	// opcode /digit r/m, imm
	formRMImm
	// opcode /digit r/m
	formRM
	// opcode+rd
	formOpReg
	// opcode+rd imm
	formOpRegImm
	// fixed byte sequence
	formRaw
)

type form struct {
	kind   formKind
	opcode []byte
	digit  byte

	// Operand sizes this form is emitted for.
	sizes []int

	// Source register size for widening moves (movzx/movsx);
	// 0 means same as the operand size.
	srcSize int

	// Immediate size; 0 derives imm8/imm16/imm32 from the operand size
	// (imm32 for 64-bit operands, matching the sign-extended forms).
	immSize int

	// formRaw payload.
	raw []byte
}

var wordSizes = []int{16, 32, 64}

// Legacy-map encodings per supported mnemonic.  The 0x00-opcode slots
// of two-operand ALU groups follow the standard layout: base+0/1 for
// r/m,r and base+2/3 for r,r/m.
var mnemonicForms = map[x86asm.Op][]form{}

func aluForms(base byte, immDigit byte) []form {
	return []form{
		{kind: formRMReg, opcode: []byte{base}, sizes: []int{8}},
		{kind: formRMReg, opcode: []byte{base + 1}, sizes: wordSizes},
		{kind: formRegRM, opcode: []byte{base + 2}, sizes: []int{8}},
		{kind: formRegRM, opcode: []byte{base + 3}, sizes: wordSizes},
		{kind: formRMImm, opcode: []byte{0x80}, digit: immDigit,
			sizes: []int{8}},
		{kind: formRMImm, opcode: []byte{0x81}, digit: immDigit,
			sizes: wordSizes},
		{kind: formRMImm, opcode: []byte{0x83}, digit: immDigit,
			sizes: wordSizes, immSize: 8},
	}
}

func shiftForms(digit byte) []form {
	return []form{
		{kind: formRMImm, opcode: []byte{0xC0}, digit: digit,
			sizes: []int{8}, immSize: 8},
		{kind: formRMImm, opcode: []byte{0xC1}, digit: digit,
			sizes: wordSizes, immSize: 8},
		{kind: formRM, opcode: []byte{0xD0}, digit: digit, sizes: []int{8}},
		{kind: formRM, opcode: []byte{0xD1}, digit: digit, sizes: wordSizes},
		{kind: formRM, opcode: []byte{0xD2}, digit: digit, sizes: []int{8}},
		{kind: formRM, opcode: []byte{0xD3}, digit: digit, sizes: wordSizes},
	}
}

func groupF7Forms(digit byte) []form {
	return []form{
		{kind: formRM, opcode: []byte{0xF6}, digit: digit, sizes: []int{8}},
		{kind: formRM, opcode: []byte{0xF7}, digit: digit, sizes: wordSizes},
	}
}

func rawForm(bytes ...byte) []form {
	return []form{{kind: formRaw, raw: bytes}}
}

func init() {
	mnemonicForms[x86asm.ADD] = aluForms(0x00, 0)
	mnemonicForms[x86asm.OR] = aluForms(0x08, 1)
	mnemonicForms[x86asm.ADC] = aluForms(0x10, 2)
	mnemonicForms[x86asm.SBB] = aluForms(0x18, 3)
	mnemonicForms[x86asm.AND] = aluForms(0x20, 4)
	mnemonicForms[x86asm.SUB] = aluForms(0x28, 5)
	mnemonicForms[x86asm.XOR] = aluForms(0x30, 6)
	mnemonicForms[x86asm.CMP] = aluForms(0x38, 7)

	mnemonicForms[x86asm.MOV] = []form{
		{kind: formRMReg, opcode: []byte{0x88}, sizes: []int{8}},
		{kind: formRMReg, opcode: []byte{0x89}, sizes: wordSizes},
		{kind: formRegRM, opcode: []byte{0x8A}, sizes: []int{8}},
		{kind: formRegRM, opcode: []byte{0x8B}, sizes: wordSizes},
		{kind: formOpRegImm, opcode: []byte{0xB0}, sizes: []int{8}},
		{kind: formOpRegImm, opcode: []byte{0xB8},
			sizes: []int{16, 32, 64}},
		{kind: formRMImm, opcode: []byte{0xC6}, digit: 0, sizes: []int{8}},
		{kind: formRMImm, opcode: []byte{0xC7}, digit: 0, sizes: wordSizes},
	}

	mnemonicForms[x86asm.TEST] = []form{
		{kind: formRMReg, opcode: []byte{0x84}, sizes: []int{8}},
		{kind: formRMReg, opcode: []byte{0x85}, sizes: wordSizes},
		{kind: formRMImm, opcode: []byte{0xF6}, digit: 0, sizes: []int{8}},
		{kind: formRMImm, opcode: []byte{0xF7}, digit: 0, sizes: wordSizes},
	}

	mnemonicForms[x86asm.XCHG] = []form{
		{kind: formRMReg, opcode: []byte{0x86}, sizes: []int{8}},
		{kind: formRMReg, opcode: []byte{0x87}, sizes: wordSizes},
	}

	mnemonicForms[x86asm.INC] = []form{
		{kind: formRM, opcode: []byte{0xFE}, digit: 0, sizes: []int{8}},
		{kind: formRM, opcode: []byte{0xFF}, digit: 0, sizes: wordSizes},
	}
	mnemonicForms[x86asm.DEC] = []form{
		{kind: formRM, opcode: []byte{0xFE}, digit: 1, sizes: []int{8}},
		{kind: formRM, opcode: []byte{0xFF}, digit: 1, sizes: wordSizes},
	}

	mnemonicForms[x86asm.NOT] = groupF7Forms(2)
	mnemonicForms[x86asm.NEG] = groupF7Forms(3)
	mnemonicForms[x86asm.MUL] = groupF7Forms(4)
	mnemonicForms[x86asm.DIV] = groupF7Forms(6)
	mnemonicForms[x86asm.IDIV] = groupF7Forms(7)

	mnemonicForms[x86asm.IMUL] = append(
		groupF7Forms(5),
		form{kind: formRegRM, opcode: []byte{0x0F, 0xAF}, sizes: wordSizes},
	)

	mnemonicForms[x86asm.ROL] = shiftForms(0)
	mnemonicForms[x86asm.ROR] = shiftForms(1)
	mnemonicForms[x86asm.RCL] = shiftForms(2)
	mnemonicForms[x86asm.RCR] = shiftForms(3)
	mnemonicForms[x86asm.SHL] = shiftForms(4)
	mnemonicForms[x86asm.SHR] = shiftForms(5)
	mnemonicForms[x86asm.SAR] = shiftForms(7)

	mnemonicForms[x86asm.BT] = btForms(0xA3, 4)
	mnemonicForms[x86asm.BTS] = btForms(0xAB, 5)
	mnemonicForms[x86asm.BTR] = btForms(0xB3, 6)
	mnemonicForms[x86asm.BTC] = btForms(0xBB, 7)

	mnemonicForms[x86asm.BSF] = []form{
		{kind: formRegRM, opcode: []byte{0x0F, 0xBC}, sizes: wordSizes},
	}
	mnemonicForms[x86asm.BSR] = []form{
		{kind: formRegRM, opcode: []byte{0x0F, 0xBD}, sizes: wordSizes},
	}

	mnemonicForms[x86asm.BSWAP] = []form{
		{kind: formOpReg, opcode: []byte{0x0F, 0xC8}, sizes: []int{32, 64}},
	}

	mnemonicForms[x86asm.MOVZX] = []form{
		{kind: formRegRM, opcode: []byte{0x0F, 0xB6}, sizes: wordSizes,
			srcSize: 8},
		{kind: formRegRM, opcode: []byte{0x0F, 0xB7}, sizes: []int{32, 64},
			srcSize: 16},
	}
	mnemonicForms[x86asm.MOVSX] = []form{
		{kind: formRegRM, opcode: []byte{0x0F, 0xBE}, sizes: wordSizes,
			srcSize: 8},
		{kind: formRegRM, opcode: []byte{0x0F, 0xBF}, sizes: []int{32, 64},
			srcSize: 16},
	}

	mnemonicForms[x86asm.LEA] = []form{
		{kind: formRegRM, opcode: []byte{0x8D}, sizes: wordSizes},
	}

	mnemonicForms[x86asm.CBW] = rawForm(0x66, 0x98)
	mnemonicForms[x86asm.CWDE] = rawForm(0x98)
	mnemonicForms[x86asm.CDQE] = rawForm(0x48, 0x98)
	mnemonicForms[x86asm.CWD] = rawForm(0x66, 0x99)
	mnemonicForms[x86asm.CDQ] = rawForm(0x99)
	mnemonicForms[x86asm.CQO] = rawForm(0x48, 0x99)

	mnemonicForms[x86asm.CLC] = rawForm(0xF8)
	mnemonicForms[x86asm.STC] = rawForm(0xF9)
	mnemonicForms[x86asm.CMC] = rawForm(0xF5)
	mnemonicForms[x86asm.CLD] = rawForm(0xFC)
	mnemonicForms[x86asm.STD] = rawForm(0xFD)
	mnemonicForms[x86asm.LAHF] = rawForm(0x9F)
	mnemonicForms[x86asm.SAHF] = rawForm(0x9E)

	setccOps := []x86asm.Op{
		x86asm.SETO, x86asm.SETNO, x86asm.SETB, x86asm.SETAE,
		x86asm.SETE, x86asm.SETNE, x86asm.SETBE, x86asm.SETA,
		x86asm.SETS, x86asm.SETNS, x86asm.SETP, x86asm.SETNP,
		x86asm.SETL, x86asm.SETGE, x86asm.SETLE, x86asm.SETG,
	}
	for idx, op := range setccOps {
		mnemonicForms[op] = []form{
			{
				kind:   formRM,
				opcode: []byte{0x0F, 0x90 + byte(idx)},
				sizes:  []int{8},
			},
		}
	}

	cmovccOps := []x86asm.Op{
		x86asm.CMOVO, x86asm.CMOVNO, x86asm.CMOVB, x86asm.CMOVAE,
		x86asm.CMOVE, x86asm.CMOVNE, x86asm.CMOVBE, x86asm.CMOVA,
		x86asm.CMOVS, x86asm.CMOVNS, x86asm.CMOVP, x86asm.CMOVNP,
		x86asm.CMOVL, x86asm.CMOVGE, x86asm.CMOVLE, x86asm.CMOVG,
	}
	for idx, op := range cmovccOps {
		mnemonicForms[op] = []form{
			{
				kind:   formRegRM,
				opcode: []byte{0x0F, 0x40 + byte(idx)},
				sizes:  wordSizes,
			},
		}
	}
}

func btForms(rmRegOpcode byte, immDigit byte) []form {
	return []form{
		{kind: formRMReg, opcode: []byte{0x0F, rmRegOpcode},
			sizes: wordSizes},
		{kind: formRMImm, opcode: []byte{0x0F, 0xBA}, digit: immDigit,
			sizes: wordSizes, immSize: 8},
	}
}

// Immediate sample values per immediate size, biased toward sign and
// parity boundaries.
func immSamples(size int) []uint64 {
	switch size {
	case 8:
		return []uint64{0x00, 0x01, 0x05, 0x55, 0x7F, 0x80, 0xFF}
	case 16:
		return []uint64{0x0000, 0x0001, 0x7FFF, 0x8000, 0xBEEF, 0xFFFF}
	case 32:
		return []uint64{
			0x00000000,
			0x00000001,
			0x7FFFFFFF,
			0x80000000,
			0xDEADBEEF,
			0xFFFFFFFF,
		}
	case 64:
		return []uint64{
			0x0000000000000000,
			0x0000000000000001,
			0x8000000000000000,
			0xDEADBEEFCAFEBABE,
			0xFFFFFFFFFFFFFFFF,
		}
	}
	panic("invalid immediate size")
}

// Memory operand samples.  The [rax+rax*1] and [rax*scale] shapes give
// the lea analysis its always-zero low bits.
func memFormSamples() []memForm {
	rax := &gpr64[0]
	rcx := &gpr64[1]
	rbx := &gpr64[3]
	rbp := &gpr64[5]
	rsi := &gpr64[6]
	rdi := &gpr64[7]
	r8 := &gpr64[8]
	r9 := &gpr64[9]

	return []memForm{
		{base: rax, index: rax, scale: 1},
		{index: rax, scale: 2},
		{index: rax, scale: 4},
		{index: rax, scale: 8},
		{base: rbx},
		{base: rbp},
		{base: rcx, disp: 0x40},
		{base: rsi, index: rdi, scale: 2},
		{base: r8, index: r9, scale: 4, disp: -0x200},
	}
}
