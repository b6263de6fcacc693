package oracle

import (
	"sort"

	"github.com/pattyshack/x86probe/decoder"
	"github.com/pattyshack/x86probe/isa"
)

// The instruction pointer and the flags register never participate in
// input staging or target enumeration as plain registers.
func isRegFiltered(reg isa.Reg) bool {
	if reg == isa.None {
		return true
	}

	switch reg.Class() {
	case isa.IPClass, isa.FlagsClass:
		return true
	}
	return false
}

// Width-descending order; ties break on register id so the result is
// deterministic for a given decoder.
func sortRegs(mode isa.Mode, regs map[isa.Reg]struct{}) []isa.Reg {
	result := make([]isa.Reg, 0, len(regs))
	for reg := range regs {
		result = append(result, reg)
	}

	sort.Slice(result, func(i int, j int) bool {
		iWidth := result[i].Width(mode)
		jWidth := result[j].Width(mode)
		if iWidth != jWidth {
			return iWidth > jWidth
		}
		return result[i] < result[j]
	})
	return result
}

// Register operands the instruction writes, as encoded (not rooted);
// the search loop roots them at capture time.
func regsWritten(instr decoder.Instruction) []isa.Reg {
	regs := map[isa.Reg]struct{}{}
	for _, operand := range instr.Operands {
		if operand.Type != decoder.RegisterOp {
			continue
		}
		if !operand.Actions.Writes() {
			continue
		}
		if isRegFiltered(operand.Reg) {
			continue
		}
		regs[operand.Reg] = struct{}{}
	}
	return sortRegs(instr.Mode, regs)
}

// The high byte registers overlay byte 1 of their root; staging them
// through the 16-bit alias keeps every input buffer anchored at byte
// offset 0.
func promoteHighByte(reg isa.Reg) isa.Reg {
	switch reg.Name() {
	case "ah":
		return isa.MustByName("ax")
	case "bh":
		return isa.MustByName("bx")
	case "ch":
		return isa.MustByName("cx")
	case "dh":
		return isa.MustByName("dx")
	}
	return reg
}

// Registers whose content feeds the instruction: every register
// operand (destinations included; sub-32-bit destinations preserve
// their upper bits), plus memory operand base/index registers.
// Overlapping aliases collapse to the widest alias per root register.
func regsRead(instr decoder.Instruction) []isa.Reg {
	regs := map[isa.Reg]struct{}{}
	for _, operand := range instr.Operands {
		switch operand.Type {
		case decoder.RegisterOp:
			if operand.Reg != isa.None {
				regs[operand.Reg] = struct{}{}
			}
		case decoder.MemoryOp:
			if !isRegFiltered(operand.Mem.Base) {
				regs[operand.Mem.Base] = struct{}{}
			}
			if !isRegFiltered(operand.Mem.Index) {
				regs[operand.Mem.Index] = struct{}{}
			}
		}
	}

	// Collapse overlapping aliases to a single representative per
	// root, picking the largest width encountered.
	perRoot := map[isa.Reg]isa.Reg{}
	for reg := range regs {
		root := reg.Root(instr.Mode)
		promoted := promoteHighByte(reg)

		existing, ok := perRoot[root]
		if !ok {
			perRoot[root] = promoted
			continue
		}
		if promoted.Width(instr.Mode) > existing.Width(instr.Mode) {
			perRoot[root] = promoted
		}
	}

	collapsed := map[isa.Reg]struct{}{}
	for _, reg := range perRoot {
		collapsed[reg] = struct{}{}
	}

	return sortRegs(instr.Mode, collapsed)
}

// Flags the instruction can leave in either state, including the
// unconditionally set/cleared ones.  Governs output flag capture.
func flagsModified(instr decoder.Instruction) uint32 {
	return instr.Flags.Modified | instr.Flags.Set0 | instr.Flags.Set1
}

func flagsRead(instr decoder.Instruction) uint32 {
	return instr.Flags.Tested
}
