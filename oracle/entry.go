package oracle

import (
	"bytes"
	"sort"

	"github.com/pattyshack/x86probe/isa"
)

type ExceptionKind int

const (
	ExceptionNone = ExceptionKind(iota)
	DivideError
	IntegerOverflow
)

func (kind ExceptionKind) String() string {
	switch kind {
	case ExceptionNone:
		return "NONE"
	case DivideError:
		return "INT_DIVIDE_ERROR"
	case IntegerOverflow:
		return "INT_OVERFLOW"
	}
	return "<ERROR>"
}

// Register content keyed by root register.  Byte vectors are little
// endian and sized to the root's width.
type RegBytes map[isa.Reg][]byte

func (regBytes RegBytes) SortedRegs() []isa.Reg {
	regs := make([]isa.Reg, 0, len(regBytes))
	for reg := range regBytes {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i int, j int) bool {
		return regs[i] < regs[j]
	})
	return regs
}

// Lexicographic comparison over the key-ascending (register, bytes)
// pair sequences.
func compareRegBytes(a RegBytes, b RegBytes) int {
	aRegs := a.SortedRegs()
	bRegs := b.SortedRegs()

	for idx := 0; idx < len(aRegs) && idx < len(bRegs); idx++ {
		if aRegs[idx] != bRegs[idx] {
			if aRegs[idx] < bRegs[idx] {
				return -1
			}
			return 1
		}

		result := bytes.Compare(a[aRegs[idx]], b[bRegs[idx]])
		if result != 0 {
			return result
		}
	}

	return len(aRegs) - len(bRegs)
}

func compareOptionalUint32(a *uint32, b *uint32) int {
	if a == nil || b == nil {
		if a != nil {
			return 1
		}
		if b != nil {
			return -1
		}
		return 0
	}

	if *a != *b {
		if *a < *b {
			return -1
		}
		return 1
	}
	return 0
}

func compareOptionalException(a *ExceptionKind, b *ExceptionKind) int {
	if a == nil || b == nil {
		if a != nil {
			return 1
		}
		if b != nil {
			return -1
		}
		return 0
	}

	return int(*a) - int(*b)
}

// One witnessed trial.
type Entry struct {
	InputRegs  RegBytes
	InputFlags *uint32

	OutputRegs  RegBytes
	OutputFlags *uint32

	Exception *ExceptionKind
}

func newEntry() Entry {
	return Entry{
		InputRegs:  RegBytes{},
		OutputRegs: RegBytes{},
	}
}

// Total order used only for deduplication: field-wise across
// (InputRegs, InputFlags, OutputRegs, OutputFlags, Exception).
func (entry Entry) Compare(other Entry) int {
	result := compareRegBytes(entry.InputRegs, other.InputRegs)
	if result != 0 {
		return result
	}

	result = compareOptionalUint32(entry.InputFlags, other.InputFlags)
	if result != 0 {
		return result
	}

	result = compareRegBytes(entry.OutputRegs, other.OutputRegs)
	if result != 0 {
		return result
	}

	result = compareOptionalUint32(entry.OutputFlags, other.OutputFlags)
	if result != 0 {
		return result
	}

	return compareOptionalException(entry.Exception, other.Exception)
}

// All trials produced for one encoding.
type Group struct {
	Address uint64
	Raw     []byte

	Entries []Entry

	// The first execution raised an illegal instruction trap; Entries
	// is meaningless.
	Illegal bool
}

// Dedupe sorts the entries under the total order and removes
// consecutive duplicates.
func (group *Group) Dedupe() {
	sort.SliceStable(group.Entries, func(i int, j int) bool {
		return group.Entries[i].Compare(group.Entries[j]) < 0
	})

	deduped := group.Entries[:0]
	for idx, entry := range group.Entries {
		if idx > 0 && entry.Compare(group.Entries[idx-1]) == 0 {
			continue
		}
		deduped = append(deduped, entry)
	}
	group.Entries = deduped
}
