package isa

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type RegistersSuite struct{}

func TestRegisters(t *testing.T) {
	suite.RunTests(t, &RegistersSuite{})
}

func (RegistersSuite) TestRoots(t *testing.T) {
	for _, name := range []string{"al", "ah", "ax", "eax", "rax"} {
		spec, ok := ByName(name)
		expect.True(t, ok)
		expect.Equal(t, MustByName("rax"), spec.Reg.Root(Long64))
	}

	for _, name := range []string{"al", "ah", "ax", "eax"} {
		spec, ok := ByName(name)
		expect.True(t, ok)
		expect.Equal(t, MustByName("eax"), spec.Reg.Root(Legacy32))
	}

	expect.Equal(t, MustByName("r9"), MustByName("r9b").Root(Long64))
	expect.Equal(t, MustByName("rdi"), MustByName("dil").Root(Long64))

	// Roots are fixed points.
	root := MustByName("rcx").Root(Long64)
	expect.Equal(t, root, root.Root(Long64))

	// Non general registers root to themselves.
	expect.Equal(t, Flags, Flags.Root(Long64))
	expect.Equal(t, MustByName("xmm3"), MustByName("xmm3").Root(Long64))
}

func (RegistersSuite) TestWidths(t *testing.T) {
	expect.Equal(t, 8, MustByName("bh").Width(Long64))
	expect.Equal(t, 16, MustByName("si").Width(Long64))
	expect.Equal(t, 32, MustByName("r10d").Width(Long64))
	expect.Equal(t, 64, MustByName("rsp").Width(Long64))
	expect.Equal(t, 32, Flags.Width(Long64))
	expect.Equal(t, 128, MustByName("xmm15").Width(Long64))
}

func (RegistersSuite) TestHighByteOffsets(t *testing.T) {
	for _, name := range []string{"ah", "bh", "ch", "dh"} {
		spec, ok := ByName(name)
		expect.True(t, ok)
		expect.True(t, spec.IsHighRegister)
		expect.Equal(t, 1, spec.ByteOffset())
	}

	for _, name := range []string{"al", "bl", "spl", "r11b", "dx", "rax"} {
		spec, ok := ByName(name)
		expect.True(t, ok)
		expect.False(t, spec.IsHighRegister)
		expect.Equal(t, 0, spec.ByteOffset())
	}
}

func (RegistersSuite) TestClasses(t *testing.T) {
	expect.Equal(t, GPR8Class, MustByName("dil").Class())
	expect.Equal(t, GPR16Class, MustByName("r15w").Class())
	expect.Equal(t, GPR32Class, MustByName("ebp").Class())
	expect.Equal(t, GPR64Class, MustByName("r8").Class())
	expect.Equal(t, FlagsClass, Flags.Class())
	expect.Equal(t, IPClass, Rip.Class())
	expect.Equal(t, XMMClass, MustByName("xmm0").Class())
	expect.Equal(t, NoneClass, None.Class())
}

func (RegistersSuite) TestNames(t *testing.T) {
	expect.Equal(t, "none", None.Name())
	expect.Equal(t, "r14b", MustByName("r14b").Name())

	_, ok := ByName("r16")
	expect.False(t, ok)
}
