package decoder

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/pattyshack/x86probe/isa"
)

var x86asmRegs = map[x86asm.Reg]isa.Reg{}

func init() {
	// x86asm names a handful of registers differently: spb/bpb/sib/dib
	// for the rex-only byte registers, r8l..r15l for the extended
	// dwords, x0..x15 for xmm.  Everything else matches the isa
	// table's lowercase names.
	renamed := map[x86asm.Reg]string{
		x86asm.SPB: "spl",
		x86asm.BPB: "bpl",
		x86asm.SIB: "sil",
		x86asm.DIB: "dil",
	}
	for idx := 0; idx < 8; idx++ {
		renamed[x86asm.R8L+x86asm.Reg(idx)] = fmt.Sprintf("r%dd", 8+idx)
	}
	for idx := 0; idx < 16; idx++ {
		renamed[x86asm.X0+x86asm.Reg(idx)] = fmt.Sprintf("xmm%d", idx)
	}

	add := func(asmReg x86asm.Reg, name string) {
		spec, ok := isa.ByName(name)
		if !ok {
			panic("unknown register: " + name)
		}
		x86asmRegs[asmReg] = spec.Reg
	}

	for asmReg := x86asm.AL; asmReg <= x86asm.R15; asmReg++ {
		name, ok := renamed[asmReg]
		if !ok {
			name = strings.ToLower(asmReg.String())
		}
		add(asmReg, name)
	}

	for asmReg := x86asm.X0; asmReg <= x86asm.X15; asmReg++ {
		add(asmReg, renamed[asmReg])
	}

	add(x86asm.RIP, "rip")
	add(x86asm.EIP, "rip")
}

func fromX86asmReg(asmReg x86asm.Reg) isa.Reg {
	if asmReg == 0 {
		return isa.None
	}

	reg, ok := x86asmRegs[asmReg]
	if !ok {
		return isa.None
	}
	return reg
}
