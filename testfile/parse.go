package testfile

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pattyshack/x86probe/isa"
	"github.com/pattyshack/x86probe/oracle"
)

type ParsedGroup struct {
	Address uint64
	Raw     []byte
	Text    string

	Entries []oracle.Entry
}

var exceptionKinds = map[string]oracle.ExceptionKind{
	"NONE":             oracle.ExceptionNone,
	"INT_DIVIDE_ERROR": oracle.DivideError,
	"INT_OVERFLOW":     oracle.IntegerOverflow,
}

func parseItems(
	content string,
) (
	oracle.RegBytes,
	*uint32,
	error,
) {
	regs := oracle.RegBytes{}
	var flags *uint32

	if content == "" {
		return regs, nil, nil
	}

	for _, item := range strings.Split(content, ",") {
		name, value, found := strings.Cut(item, ":#")
		if !found {
			return nil, nil, fmt.Errorf("malformed item (%s)", item)
		}

		data, err := hex.DecodeString(value)
		if err != nil {
			return nil, nil, fmt.Errorf("malformed item hex (%s): %w", item, err)
		}

		if name == "flags" {
			if len(data) != 4 {
				return nil, nil, fmt.Errorf(
					"flags item has %d bytes, expected 4",
					len(data))
			}
			value := binary.LittleEndian.Uint32(data)
			flags = &value
			continue
		}

		spec, ok := isa.ByName(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown register (%s)", name)
		}
		regs[spec.Reg] = data
	}

	return regs, flags, nil
}

func parseEntry(line string) (oracle.Entry, error) {
	entry := oracle.Entry{}

	rest, found := strings.CutPrefix(line, " in:")
	if !found {
		return entry, fmt.Errorf("malformed entry line (%s)", line)
	}

	// Entries without inputs have no separator between the in and out
	// sections.
	inputs := ""
	if outStart := strings.Index(rest, "out:"); outStart >= 0 {
		inputs = strings.TrimSuffix(rest[:outStart], "|")
		rest = rest[outStart+len("out:"):]
	} else {
		return entry, fmt.Errorf("entry line missing outputs (%s)", line)
	}

	outputs := rest
	if excStart := strings.Index(rest, "|exception:"); excStart >= 0 {
		outputs = rest[:excStart]

		kindName := rest[excStart+len("|exception:"):]
		kind, ok := exceptionKinds[kindName]
		if !ok {
			return entry, fmt.Errorf("unknown exception kind (%s)", kindName)
		}
		entry.Exception = &kind
	}

	var err error
	entry.InputRegs, entry.InputFlags, err = parseItems(inputs)
	if err != nil {
		return entry, err
	}

	entry.OutputRegs, entry.OutputFlags, err = parseItems(outputs)
	if err != nil {
		return entry, err
	}

	return entry, nil
}

func parseHeader(line string) (ParsedGroup, int, error) {
	group := ParsedGroup{}

	chunks := strings.SplitN(strings.TrimPrefix(line, "instr:"), ";", 4)
	if len(chunks) != 4 {
		return group, 0, fmt.Errorf("malformed group header (%s)", line)
	}

	address, err := strconv.ParseUint(
		strings.TrimPrefix(chunks[0], "0x"),
		16,
		64)
	if err != nil {
		return group, 0, fmt.Errorf("malformed group address: %w", err)
	}
	group.Address = address

	raw, err := hex.DecodeString(strings.TrimPrefix(chunks[1], "#"))
	if err != nil {
		return group, 0, fmt.Errorf("malformed instruction bytes: %w", err)
	}
	group.Raw = raw

	group.Text = chunks[2]

	count, err := strconv.Atoi(chunks[3])
	if err != nil {
		return group, 0, fmt.Errorf("malformed entry count: %w", err)
	}

	return group, count, nil
}

func Parse(r io.Reader) ([]ParsedGroup, error) {
	groups := []ParsedGroup{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "instr:") {
			group, _, err := parseHeader(line)
			if err != nil {
				return nil, err
			}

			groups = append(groups, group)
			continue
		}

		if len(groups) == 0 {
			return nil, fmt.Errorf("entry line before group header (%s)", line)
		}

		entry, err := parseEntry(line)
		if err != nil {
			return nil, err
		}

		last := &groups[len(groups)-1]
		last.Entries = append(last.Entries, entry)
	}

	err := scanner.Err()
	if err != nil {
		return nil, err
	}

	return groups, nil
}

func ParseFile(path string) ([]ParsedGroup, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	groups, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return groups, nil
}
