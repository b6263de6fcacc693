package testfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/x86probe/isa"
	"github.com/pattyshack/x86probe/oracle"
)

type TestFileSuite struct{}

func TestTestFile(t *testing.T) {
	suite.RunTests(t, &TestFileSuite{})
}

func uint32Ptr(value uint32) *uint32 {
	return &value
}

func sampleGroups() []oracle.Group {
	rax := isa.MustByName("rax")
	rbx := isa.MustByName("rbx")

	kind := oracle.DivideError

	return []oracle.Group{
		{
			// add rax, rbx
			Address: 0x55E1000,
			Raw:     []byte{0x48, 0x01, 0xD8},
			Entries: []oracle.Entry{
				{
					InputRegs: oracle.RegBytes{
						rax: {1, 0, 0, 0, 0, 0, 0, 0},
						rbx: {2, 0, 0, 0, 0, 0, 0, 0},
					},
					OutputRegs: oracle.RegBytes{
						rax: {3, 0, 0, 0, 0, 0, 0, 0},
					},
					OutputFlags: uint32Ptr(0x202),
				},
				{
					InputRegs: oracle.RegBytes{
						rax: {0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
						rbx: {1, 0, 0, 0, 0, 0, 0, 0},
					},
					OutputRegs: oracle.RegBytes{
						rax: {0, 0, 0, 0, 0, 0, 0, 0},
					},
					OutputFlags: uint32Ptr(0x257),
				},
			},
		},
		{
			// div rcx
			Address: 0x55E1000,
			Raw:     []byte{0x48, 0xF7, 0xF1},
			Entries: []oracle.Entry{
				{
					InputRegs: oracle.RegBytes{
						rax: {5, 0, 0, 0, 0, 0, 0, 0},
						isa.MustByName("rcx"): {
							0, 0, 0, 0, 0, 0, 0, 0,
						},
						isa.MustByName("rdx"): {
							0, 0, 0, 0, 0, 0, 0, 0,
						},
					},
					OutputRegs: oracle.RegBytes{},
					Exception:  &kind,
				},
			},
		},
	}
}

func (TestFileSuite) TestSerializedShape(t *testing.T) {
	buffer := &bytes.Buffer{}
	err := Write(buffer, isa.Long64, sampleGroups())
	expect.Nil(t, err)

	lines := strings.Split(buffer.String(), "\n")

	expect.Equal(
		t,
		"instr:0x55E1000;#4801D8;add rax, rbx;2",
		lines[0])
	expect.Equal(
		t,
		" in:rax:#0100000000000000,rbx:#0200000000000000"+
			"|out:rax:#0300000000000000,flags:#02020000",
		lines[1])

	// The exception entry keeps its (empty) output section.
	expect.True(
		t,
		strings.HasSuffix(lines[4], "|out:|exception:INT_DIVIDE_ERROR"))

	// Trailing newline.
	expect.Equal(t, "", lines[len(lines)-1])
}

func (TestFileSuite) TestRoundTrip(t *testing.T) {
	buffer := &bytes.Buffer{}
	err := Write(buffer, isa.Long64, sampleGroups())
	expect.Nil(t, err)

	first := buffer.String()

	parsed, err := Parse(strings.NewReader(first))
	expect.Nil(t, err)
	expect.Equal(t, 2, len(parsed))
	expect.Equal(t, 2, len(parsed[0].Entries))
	expect.Equal(t, "add rax, rbx", parsed[0].Text)
	expect.Equal(t, []byte{0x48, 0x01, 0xD8}, parsed[0].Raw)

	second := &bytes.Buffer{}
	err = WriteParsed(second, parsed)
	expect.Nil(t, err)

	expect.Equal(t, first, second.String())
}

func (TestFileSuite) TestParsedFields(t *testing.T) {
	buffer := &bytes.Buffer{}
	err := Write(buffer, isa.Long64, sampleGroups())
	expect.Nil(t, err)

	parsed, err := Parse(strings.NewReader(buffer.String()))
	expect.Nil(t, err)

	rax := isa.MustByName("rax")

	entry := parsed[0].Entries[0]
	expect.Equal(
		t,
		[]byte{1, 0, 0, 0, 0, 0, 0, 0},
		entry.InputRegs[rax])
	expect.Nil(t, entry.InputFlags)
	expect.NotNil(t, entry.OutputFlags)
	expect.Equal(t, uint32(0x202), *entry.OutputFlags)
	expect.Nil(t, entry.Exception)

	exceptionEntry := parsed[1].Entries[0]
	expect.NotNil(t, exceptionEntry.Exception)
	expect.Equal(t, oracle.DivideError, *exceptionEntry.Exception)
	expect.Equal(t, 0, len(exceptionEntry.OutputRegs))
}

func (TestFileSuite) TestParseNoInputEntries(t *testing.T) {
	// Entries without inputs have no in/out separator.
	content := "instr:0x1000;#F8;clc;1\n in:out:flags:#00000000\n"

	parsed, err := Parse(strings.NewReader(content))
	expect.Nil(t, err)
	expect.Equal(t, 1, len(parsed))
	expect.Equal(t, 1, len(parsed[0].Entries))

	entry := parsed[0].Entries[0]
	expect.Equal(t, 0, len(entry.InputRegs))
	expect.Nil(t, entry.InputFlags)
	expect.NotNil(t, entry.OutputFlags)
	expect.Equal(t, uint32(0), *entry.OutputFlags)

	second := &bytes.Buffer{}
	err = WriteParsed(second, parsed)
	expect.Nil(t, err)
	expect.Equal(t, content, second.String())
}

func (TestFileSuite) TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(" in:rax:#00|out:\n"))
	expect.Error(t, err, "")

	_, err = Parse(strings.NewReader("instr:0xZZ;#00;bad;0\n"))
	expect.Error(t, err, "")

	_, err = Parse(strings.NewReader(
		"instr:0x1000;#F8;clc;1\n in:out:|exception:BOGUS\n"))
	expect.Error(t, err, "")
}
