// Package testfile reads and writes the per-mnemonic corpus files.
//
// The format is line oriented, one header per instruction group
// followed by one space-prefixed line per entry:
//
//	instr:0x<HEXADDR>;#<HEXBYTES>;<DISASM_TEXT>;<ENTRY_COUNT>
//	 in:<items>|out:<items>[|exception:<KIND>]
//
// Items are comma separated, either regname:#HEX (full root width,
// little endian) or flags:#HEX (4-byte little endian eflags).
package testfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pattyshack/x86probe/decoder"
	"github.com/pattyshack/x86probe/isa"
	"github.com/pattyshack/x86probe/oracle"
)

const hexDigits = "0123456789ABCDEF"

func hexEncode(data []byte) string {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		result = append(result, hexDigits[b>>4], hexDigits[b&0xF])
	}
	return string(result)
}

func flagsHex(flags uint32) string {
	buf := [4]byte{}
	binary.LittleEndian.PutUint32(buf[:], flags)
	return hexEncode(buf[:])
}

func writeItems(
	writer *bufio.Writer,
	regs oracle.RegBytes,
	flags *uint32,
) int {
	numItems := 0
	for _, reg := range regs.SortedRegs() {
		if numItems > 0 {
			writer.WriteString(",")
		}
		fmt.Fprintf(writer, "%s:#%s", reg.Name(), hexEncode(regs[reg]))
		numItems++
	}

	if flags != nil {
		if numItems > 0 {
			writer.WriteString(",")
		}
		fmt.Fprintf(writer, "flags:#%s", flagsHex(*flags))
		numItems++
	}

	return numItems
}

func writeEntry(writer *bufio.Writer, entry oracle.Entry) {
	writer.WriteString(" in:")
	numIn := writeItems(writer, entry.InputRegs, entry.InputFlags)

	if numIn > 0 {
		writer.WriteString("|")
	}
	writer.WriteString("out:")
	writeItems(writer, entry.OutputRegs, entry.OutputFlags)

	if entry.Exception != nil {
		fmt.Fprintf(writer, "|exception:%s", *entry.Exception)
	}

	writer.WriteString("\n")
}

func writeGroup(
	writer *bufio.Writer,
	address uint64,
	raw []byte,
	text string,
	entries []oracle.Entry,
) {
	fmt.Fprintf(
		writer,
		"instr:0x%X;#%s;%s;%d\n",
		address,
		hexEncode(raw),
		text,
		len(entries))

	for _, entry := range entries {
		writeEntry(writer, entry)
	}
}

// Write serializes the groups of one mnemonic.  The disassembly text
// is recomputed from the raw bytes.
func Write(w io.Writer, mode isa.Mode, groups []oracle.Group) error {
	writer := bufio.NewWriter(w)

	for _, group := range groups {
		instr, err := decoder.Decode(mode, group.Raw, group.Address)
		if err != nil {
			return err
		}

		writeGroup(writer, group.Address, group.Raw, instr.Text, group.Entries)
	}

	return writer.Flush()
}

func WriteFile(path string, mode isa.Mode, groups []oracle.Group) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", path, err)
	}
	defer file.Close()

	err = Write(file, mode, groups)
	if err != nil {
		return fmt.Errorf("failed to serialize to %s: %w", path, err)
	}

	return file.Close()
}

// WriteParsed re-serializes previously parsed groups, preserving their
// recorded disassembly text.  Parse followed by WriteParsed reproduces
// the input byte for byte.
func WriteParsed(w io.Writer, groups []ParsedGroup) error {
	writer := bufio.NewWriter(w)

	for _, group := range groups {
		writeGroup(writer, group.Address, group.Raw, group.Text, group.Entries)
	}

	return writer.Flush()
}
