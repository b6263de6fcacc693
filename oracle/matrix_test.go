package oracle

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/x86probe/isa"
)

type MatrixSuite struct{}

func TestMatrix(t *testing.T) {
	suite.RunTests(t, &MatrixSuite{})
}

func regTargets(
	matrix []TargetBit,
	reg isa.Reg,
	value byte,
) map[int]struct{} {
	result := map[int]struct{}{}
	for _, target := range matrix {
		if target.Exception != ExceptionNone {
			continue
		}
		if target.Reg == reg && target.ExpectedValue == value {
			result[target.BitPos] = struct{}{}
		}
	}
	return result
}

func flagTargets(matrix []TargetBit, value byte) map[int]struct{} {
	return regTargets(matrix, isa.Flags, value)
}

func exceptionTargets(matrix []TargetBit) map[ExceptionKind]struct{} {
	result := map[ExceptionKind]struct{}{}
	for _, target := range matrix {
		if target.Exception != ExceptionNone {
			result[target.Exception] = struct{}{}
		}
	}
	return result
}

func (MatrixSuite) TestAddRegReg(t *testing.T) {
	// add rax, rbx
	matrix := GenerateMatrix(mustDecode(t, 0x48, 0x01, 0xD8))

	rax := isa.MustByName("rax")
	expect.Equal(t, 64, len(regTargets(matrix, rax, 0)))
	expect.Equal(t, 64, len(regTargets(matrix, rax, 1)))

	// All six arithmetic flags in both polarities.
	zeros := flagTargets(matrix, 0)
	ones := flagTargets(matrix, 1)
	for _, flagBit := range []int{0, 2, 4, 6, 7, 11} {
		_, ok := zeros[flagBit]
		expect.True(t, ok)
		_, ok = ones[flagBit]
		expect.True(t, ok)
	}

	expect.Equal(t, 0, len(exceptionTargets(matrix)))
}

func (MatrixSuite) TestAddSameReg(t *testing.T) {
	// add rax, rax: bit 0 of the sum is always zero
	matrix := GenerateMatrix(mustDecode(t, 0x48, 0x01, 0xC0))

	rax := isa.MustByName("rax")
	ones := regTargets(matrix, rax, 1)
	_, ok := ones[0]
	expect.False(t, ok)
	_, ok = ones[1]
	expect.True(t, ok)

	zeros := regTargets(matrix, rax, 0)
	_, ok = zeros[0]
	expect.True(t, ok)

	// of can never be witnessed as 1 when both operands are the same
	// register... it can for add (0x40000000+0x40000000 overflows), but
	// the conservative pruning drops it; cf remains in both polarities.
	_, ok = flagTargets(matrix, 1)[0]
	expect.True(t, ok)
}

func (MatrixSuite) TestXorSameReg(t *testing.T) {
	// xor eax, eax: the result is always zero
	matrix := GenerateMatrix(mustDecode(t, 0x31, 0xC0))

	eax := isa.MustByName("eax")
	expect.Equal(t, 0, len(regTargets(matrix, eax, 1)))
	expect.Equal(t, 32, len(regTargets(matrix, eax, 0)))

	zeros := flagTargets(matrix, 0)
	ones := flagTargets(matrix, 1)

	// zf is forced to 1: no zero target
	_, ok := zeros[6]
	expect.False(t, ok)
	_, ok = ones[6]
	expect.True(t, ok)

	// pf is forced to 1 as well
	_, ok = zeros[2]
	expect.False(t, ok)

	// sf can only be 0
	_, ok = ones[7]
	expect.False(t, ok)
	_, ok = zeros[7]
	expect.True(t, ok)

	// cf and of are unconditionally cleared: only zero targets
	for _, flagBit := range []int{0, 11} {
		_, ok = zeros[flagBit]
		expect.True(t, ok)
		_, ok = ones[flagBit]
		expect.False(t, ok)
	}
}

func (MatrixSuite) TestMovImmediate(t *testing.T) {
	// mov eax, 0xdeadbeef: every output bit is known
	matrix := GenerateMatrix(
		mustDecode(t, 0xB8, 0xEF, 0xBE, 0xAD, 0xDE))

	eax := isa.MustByName("eax")
	zeros := regTargets(matrix, eax, 0)
	ones := regTargets(matrix, eax, 1)

	imm := uint32(0xDEADBEEF)
	for bitPos := 0; bitPos < 32; bitPos++ {
		_, hasZero := zeros[bitPos]
		_, hasOne := ones[bitPos]

		if imm>>bitPos&1 == 0 {
			expect.True(t, hasZero)
			expect.False(t, hasOne)
		} else {
			expect.False(t, hasZero)
			expect.True(t, hasOne)
		}
	}

	// No flag targets for immediate inputs.
	expect.Equal(t, 0, len(flagTargets(matrix, 0)))
	expect.Equal(t, 0, len(flagTargets(matrix, 1)))
}

func (MatrixSuite) TestLeaBaseEqualsIndex(t *testing.T) {
	// lea rbx, [rax+rax*1]: even addresses only
	matrix := GenerateMatrix(mustDecode(t, 0x48, 0x8D, 0x1C, 0x00))

	rbx := isa.MustByName("rbx")
	ones := regTargets(matrix, rbx, 1)
	_, ok := ones[0]
	expect.False(t, ok)
	_, ok = ones[1]
	expect.True(t, ok)
}

func (MatrixSuite) TestLeaScaledIndex(t *testing.T) {
	// lea rbx, [rax*4]: two low bits always zero
	matrix := GenerateMatrix(
		mustDecode(t, 0x48, 0x8D, 0x1C, 0x85, 0x00, 0x00, 0x00, 0x00))

	rbx := isa.MustByName("rbx")
	ones := regTargets(matrix, rbx, 1)
	for bitPos := 0; bitPos < 2; bitPos++ {
		_, ok := ones[bitPos]
		expect.False(t, ok)
	}
	_, ok := ones[2]
	expect.True(t, ok)

	zeros := regTargets(matrix, rbx, 0)
	_, ok = zeros[0]
	expect.True(t, ok)
}

func (MatrixSuite) TestBtrImmediate(t *testing.T) {
	// btr eax, 5: bit 5 can never come out as 1
	matrix := GenerateMatrix(mustDecode(t, 0x0F, 0xBA, 0xF0, 0x05))

	eax := isa.MustByName("eax")
	ones := regTargets(matrix, eax, 1)
	zeros := regTargets(matrix, eax, 0)

	_, ok := ones[5]
	expect.False(t, ok)
	_, ok = zeros[5]
	expect.True(t, ok)

	for _, bitPos := range []int{0, 4, 6, 31} {
		_, ok = ones[bitPos]
		expect.True(t, ok)
	}
}

func (MatrixSuite) TestSetccSingleBit(t *testing.T) {
	// sete al: only bit 0 is a target
	matrix := GenerateMatrix(mustDecode(t, 0x0F, 0x94, 0xC0))

	al := isa.MustByName("al")
	zeros := regTargets(matrix, al, 0)
	ones := regTargets(matrix, al, 1)

	expect.Equal(t, 1, len(zeros))
	expect.Equal(t, 1, len(ones))

	_, ok := zeros[0]
	expect.True(t, ok)
	_, ok = ones[0]
	expect.True(t, ok)
}

func (MatrixSuite) TestBswap16AlwaysZero(t *testing.T) {
	// bswap with a 16-bit destination zeroes the register; only
	// expect-0 targets survive
	matrix := GenerateMatrix(mustDecode(t, 0x66, 0x0F, 0xC8))

	ax := isa.MustByName("ax")
	expect.Equal(t, 0, len(regTargets(matrix, ax, 1)))
	expect.Equal(t, 16, len(regTargets(matrix, ax, 0)))
}

func (MatrixSuite) TestDivExceptions(t *testing.T) {
	// div rcx
	matrix := GenerateMatrix(mustDecode(t, 0x48, 0xF7, 0xF1))

	exceptions := exceptionTargets(matrix)
	expect.Equal(t, 2, len(exceptions))

	_, ok := exceptions[DivideError]
	expect.True(t, ok)
	_, ok = exceptions[IntegerOverflow]
	expect.True(t, ok)

	// Exception targets come last.
	last := matrix[len(matrix)-1]
	expect.True(t, last.Exception != ExceptionNone)
}

func (MatrixSuite) TestAndImmediateZero(t *testing.T) {
	// and ebx, 0: result is always zero
	matrix := GenerateMatrix(
		mustDecode(t, 0x81, 0xE3, 0x00, 0x00, 0x00, 0x00))

	ebx := isa.MustByName("ebx")
	expect.Equal(t, 0, len(regTargets(matrix, ebx, 1)))
	expect.Equal(t, 32, len(regTargets(matrix, ebx, 0)))
}

func (MatrixSuite) TestOrImmediate(t *testing.T) {
	// or bl, 0x55: set input bits can never read back as zero
	matrix := GenerateMatrix(mustDecode(t, 0x80, 0xCB, 0x55))

	bl := isa.MustByName("bl")
	zeros := regTargets(matrix, bl, 0)

	for bitPos := 0; bitPos < 8; bitPos++ {
		_, hasZero := zeros[bitPos]
		expect.Equal(t, 0x55>>bitPos&1 == 0, hasZero)
	}
}
