package oracle

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/x86probe/decoder"
	"github.com/pattyshack/x86probe/isa"
)

type AnalyzeSuite struct{}

func TestAnalyze(t *testing.T) {
	suite.RunTests(t, &AnalyzeSuite{})
}

func mustDecode(t *testing.T, data ...byte) decoder.Instruction {
	instr, err := decoder.Decode(isa.Long64, data, 0)
	expect.Nil(t, err)
	return instr
}

func (AnalyzeSuite) TestRegsWritten(t *testing.T) {
	// add rax, rbx
	instr := mustDecode(t, 0x48, 0x01, 0xD8)
	expect.Equal(t, []isa.Reg{isa.MustByName("rax")}, regsWritten(instr))

	// cmp rax, rbx writes nothing
	instr = mustDecode(t, 0x48, 0x39, 0xD8)
	expect.Equal(t, 0, len(regsWritten(instr)))

	// div rcx writes rax and rdx
	instr = mustDecode(t, 0x48, 0xF7, 0xF1)
	written := regsWritten(instr)
	expect.Equal(t, 2, len(written))
	expect.Equal(t, isa.MustByName("rax"), written[0])
	expect.Equal(t, isa.MustByName("rdx"), written[1])

	// sete al writes the 8-bit register, not its root
	instr = mustDecode(t, 0x0F, 0x94, 0xC0)
	expect.Equal(t, []isa.Reg{isa.MustByName("al")}, regsWritten(instr))
}

func (AnalyzeSuite) TestRegsReadIncludesDestination(t *testing.T) {
	// mov eax, ebx: plain register operands are all considered read
	instr := mustDecode(t, 0x89, 0xD8)
	read := regsRead(instr)
	expect.Equal(t, 2, len(read))
	expect.Equal(t, isa.MustByName("eax"), read[0])
	expect.Equal(t, isa.MustByName("ebx"), read[1])
}

func (AnalyzeSuite) TestRegsReadHighBytePromotion(t *testing.T) {
	// mov ah, dh
	instr := mustDecode(t, 0x88, 0xF4)
	read := regsRead(instr)
	expect.Equal(t, 2, len(read))
	expect.Equal(t, isa.MustByName("ax"), read[0])
	expect.Equal(t, isa.MustByName("dx"), read[1])
}

func (AnalyzeSuite) TestRegsReadOverlapCollapse(t *testing.T) {
	// add al, ah: both alias rax; the wider (promoted) alias wins
	instr := mustDecode(t, 0x00, 0xE0)
	read := regsRead(instr)
	expect.Equal(t, []isa.Reg{isa.MustByName("ax")}, read)

	// xor eax, eax collapses to one register
	instr = mustDecode(t, 0x31, 0xC0)
	read = regsRead(instr)
	expect.Equal(t, []isa.Reg{isa.MustByName("eax")}, read)
}

func (AnalyzeSuite) TestRegsReadMemOperand(t *testing.T) {
	// lea rbx, [rsi+rdi*2]: the destination register operand counts as
	// read too, alongside the base and index
	instr := mustDecode(t, 0x48, 0x8D, 0x1C, 0x7E)
	read := regsRead(instr)
	expect.Equal(t, 3, len(read))
	expect.Equal(t, isa.MustByName("rbx"), read[0])
	expect.Equal(t, isa.MustByName("rsi"), read[1])
	expect.Equal(t, isa.MustByName("rdi"), read[2])
}

func (AnalyzeSuite) TestRegsReadWidthOrdering(t *testing.T) {
	// div cl reads cl plus the implicit ax
	instr := mustDecode(t, 0xF6, 0xF1)
	read := regsRead(instr)
	expect.Equal(t, 2, len(read))
	// width descending
	expect.Equal(t, isa.MustByName("ax"), read[0])
	expect.Equal(t, isa.MustByName("cl"), read[1])
}

func (AnalyzeSuite) TestFlagsMasks(t *testing.T) {
	// xor: set-0 flags count as modified for output capture
	instr := mustDecode(t, 0x31, 0xC0)
	expect.True(t, flagsModified(instr)&isa.FlagCF != 0)
	expect.True(t, flagsModified(instr)&isa.FlagZF != 0)
	expect.Equal(t, 0, flagsRead(instr))

	// mov touches nothing
	instr = mustDecode(t, 0x89, 0xD8)
	expect.Equal(t, 0, flagsModified(instr))

	// adc reads cf
	instr = mustDecode(t, 0x11, 0xD8)
	expect.Equal(t, isa.FlagCF, flagsRead(instr))
}

func (AnalyzeSuite) TestRegFilters(t *testing.T) {
	expect.True(t, isRegFiltered(isa.None))
	expect.True(t, isRegFiltered(isa.Flags))
	expect.True(t, isRegFiltered(isa.Rip))
	expect.False(t, isRegFiltered(isa.MustByName("rax")))
	expect.False(t, isRegFiltered(isa.MustByName("ah")))
}
