package sandbox

import (
	"encoding/binary"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/x86probe/isa"
)

type ContextSuite struct{}

func TestContext(t *testing.T) {
	suite.RunTests(t, &ContextSuite{})
}

func uint64Bytes(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}

func newTestContext(t *testing.T, code ...byte) *Context {
	ctx, err := NewContext(isa.Long64, code)
	expect.Nil(t, err)
	expect.True(t, ctx.CodeAddress() != 0)
	return ctx
}

func (ContextSuite) TestAddExecution(t *testing.T) {
	// add rax, rbx
	ctx := newTestContext(t, 0x48, 0x01, 0xD8)
	defer ctx.Close()

	rax := isa.MustByName("rax")
	rbx := isa.MustByName("rbx")

	err := ctx.SetRegBytes(rax, uint64Bytes(5))
	expect.Nil(t, err)
	err = ctx.SetRegBytes(rbx, uint64Bytes(7))
	expect.Nil(t, err)
	ctx.SetFlags(0)

	err = ctx.Execute()
	expect.Nil(t, err)
	expect.Equal(t, Success, ctx.Status())

	result, err := ctx.RegBytes(rax)
	expect.Nil(t, err)
	expect.Equal(t, uint64Bytes(12), result)

	// Repeated executions reuse the same context.
	err = ctx.SetRegBytes(rax, uint64Bytes(1))
	expect.Nil(t, err)
	err = ctx.SetRegBytes(rbx, uint64Bytes(0xFFFFFFFFFFFFFFFF))
	expect.Nil(t, err)

	err = ctx.Execute()
	expect.Nil(t, err)
	expect.Equal(t, Success, ctx.Status())

	result, err = ctx.RegBytes(rax)
	expect.Nil(t, err)
	expect.Equal(t, uint64Bytes(0), result)

	// The wrap around sets zf and cf.
	expect.True(t, ctx.Flags()&isa.FlagZF != 0)
	expect.True(t, ctx.Flags()&isa.FlagCF != 0)
}

func (ContextSuite) TestDivideError(t *testing.T) {
	// div rcx
	ctx := newTestContext(t, 0x48, 0xF7, 0xF1)
	defer ctx.Close()

	err := ctx.SetRegBytes(isa.MustByName("rax"), uint64Bytes(100))
	expect.Nil(t, err)
	err = ctx.SetRegBytes(isa.MustByName("rdx"), uint64Bytes(0))
	expect.Nil(t, err)
	err = ctx.SetRegBytes(isa.MustByName("rcx"), uint64Bytes(0))
	expect.Nil(t, err)

	err = ctx.Execute()
	expect.Nil(t, err)
	expect.Equal(t, ExceptionIntDivideError, ctx.Status())

	// The context survives the fault.
	err = ctx.SetRegBytes(isa.MustByName("rcx"), uint64Bytes(7))
	expect.Nil(t, err)

	err = ctx.Execute()
	expect.Nil(t, err)
	expect.Equal(t, Success, ctx.Status())

	quotient, err := ctx.RegBytes(isa.MustByName("rax"))
	expect.Nil(t, err)
	expect.Equal(t, uint64Bytes(14), quotient)

	remainder, err := ctx.RegBytes(isa.MustByName("rdx"))
	expect.Nil(t, err)
	expect.Equal(t, uint64Bytes(2), remainder)
}

func (ContextSuite) TestIllegalInstruction(t *testing.T) {
	// ud2
	ctx := newTestContext(t, 0x0F, 0x0B)
	defer ctx.Close()

	err := ctx.Execute()
	expect.Nil(t, err)
	expect.Equal(t, IllegalInstruction, ctx.Status())
}

func (ContextSuite) TestMemoryFault(t *testing.T) {
	// mov rax, [rbx] with a wild pointer
	ctx := newTestContext(t, 0x48, 0x8B, 0x03)
	defer ctx.Close()

	err := ctx.SetRegBytes(isa.MustByName("rbx"), uint64Bytes(0x10))
	expect.Nil(t, err)

	err = ctx.Execute()
	expect.Nil(t, err)
	expect.Equal(t, MemoryFault, ctx.Status())
}

func (ContextSuite) TestFlagsInput(t *testing.T) {
	// adc rax, rbx
	ctx := newTestContext(t, 0x48, 0x11, 0xD8)
	defer ctx.Close()

	err := ctx.SetRegBytes(isa.MustByName("rax"), uint64Bytes(1))
	expect.Nil(t, err)
	err = ctx.SetRegBytes(isa.MustByName("rbx"), uint64Bytes(1))
	expect.Nil(t, err)
	ctx.SetFlags(isa.FlagCF)

	err = ctx.Execute()
	expect.Nil(t, err)
	expect.Equal(t, Success, ctx.Status())

	result, err := ctx.RegBytes(isa.MustByName("rax"))
	expect.Nil(t, err)
	expect.Equal(t, uint64Bytes(3), result)
}

func (ContextSuite) TestRejectsNonLongMode(t *testing.T) {
	_, err := NewContext(isa.Legacy32, []byte{0x90})
	expect.Error(t, err, "")
}

func (ContextSuite) TestUnknownRegisterRejected(t *testing.T) {
	ctx := newTestContext(t, 0x90)
	defer ctx.Close()

	err := ctx.SetRegBytes(isa.MustByName("xmm0"), make([]byte, 16))
	expect.Error(t, err, "")
}
