package decoder

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/pattyshack/x86probe/isa"
)

// EFLAGS effects of an instruction.  Flags that the manual leaves
// undefined (e.g. AF after logic operations, everything after DIV)
// appear in none of the masks; the oracle must not target them.
type FlagSpec struct {
	// Flags the instruction may set to either value.
	Modified uint32

	// Flags unconditionally cleared / set.
	Set0 uint32
	Set1 uint32

	// Flags read as inputs.
	Tested uint32
}

const (
	arithFlags = isa.FlagCF | isa.FlagPF | isa.FlagAF | isa.FlagZF |
		isa.FlagSF | isa.FlagOF

	lahfFlags = isa.FlagCF | isa.FlagPF | isa.FlagAF | isa.FlagZF |
		isa.FlagSF
)

var conditionTested = map[x86asm.Op]uint32{
	x86asm.SETO:  isa.FlagOF,
	x86asm.SETNO: isa.FlagOF,
	x86asm.SETB:  isa.FlagCF,
	x86asm.SETAE: isa.FlagCF,
	x86asm.SETE:  isa.FlagZF,
	x86asm.SETNE: isa.FlagZF,
	x86asm.SETBE: isa.FlagCF | isa.FlagZF,
	x86asm.SETA:  isa.FlagCF | isa.FlagZF,
	x86asm.SETS:  isa.FlagSF,
	x86asm.SETNS: isa.FlagSF,
	x86asm.SETP:  isa.FlagPF,
	x86asm.SETNP: isa.FlagPF,
	x86asm.SETL:  isa.FlagSF | isa.FlagOF,
	x86asm.SETGE: isa.FlagSF | isa.FlagOF,
	x86asm.SETLE: isa.FlagZF | isa.FlagSF | isa.FlagOF,
	x86asm.SETG:  isa.FlagZF | isa.FlagSF | isa.FlagOF,

	x86asm.CMOVO:  isa.FlagOF,
	x86asm.CMOVNO: isa.FlagOF,
	x86asm.CMOVB:  isa.FlagCF,
	x86asm.CMOVAE: isa.FlagCF,
	x86asm.CMOVE:  isa.FlagZF,
	x86asm.CMOVNE: isa.FlagZF,
	x86asm.CMOVBE: isa.FlagCF | isa.FlagZF,
	x86asm.CMOVA:  isa.FlagCF | isa.FlagZF,
	x86asm.CMOVS:  isa.FlagSF,
	x86asm.CMOVNS: isa.FlagSF,
	x86asm.CMOVP:  isa.FlagPF,
	x86asm.CMOVNP: isa.FlagPF,
	x86asm.CMOVL:  isa.FlagSF | isa.FlagOF,
	x86asm.CMOVGE: isa.FlagSF | isa.FlagOF,
	x86asm.CMOVLE: isa.FlagZF | isa.FlagSF | isa.FlagOF,
	x86asm.CMOVG:  isa.FlagZF | isa.FlagSF | isa.FlagOF,
}

var flagSpecs = map[x86asm.Op]FlagSpec{
	x86asm.ADD: {Modified: arithFlags},
	x86asm.SUB: {Modified: arithFlags},
	x86asm.CMP: {Modified: arithFlags},
	x86asm.NEG: {Modified: arithFlags},
	x86asm.ADC: {Modified: arithFlags, Tested: isa.FlagCF},
	x86asm.SBB: {Modified: arithFlags, Tested: isa.FlagCF},

	// CF is untouched by inc/dec.
	x86asm.INC: {
		Modified: isa.FlagPF | isa.FlagAF | isa.FlagZF | isa.FlagSF |
			isa.FlagOF,
	},
	x86asm.DEC: {
		Modified: isa.FlagPF | isa.FlagAF | isa.FlagZF | isa.FlagSF |
			isa.FlagOF,
	},

	x86asm.AND: {
		Modified: isa.FlagPF | isa.FlagZF | isa.FlagSF,
		Set0:     isa.FlagCF | isa.FlagOF,
	},
	x86asm.OR: {
		Modified: isa.FlagPF | isa.FlagZF | isa.FlagSF,
		Set0:     isa.FlagCF | isa.FlagOF,
	},
	x86asm.XOR: {
		Modified: isa.FlagPF | isa.FlagZF | isa.FlagSF,
		Set0:     isa.FlagCF | isa.FlagOF,
	},
	x86asm.TEST: {
		Modified: isa.FlagPF | isa.FlagZF | isa.FlagSF,
		Set0:     isa.FlagCF | isa.FlagOF,
	},

	x86asm.SHL: {
		Modified: isa.FlagCF | isa.FlagPF | isa.FlagZF | isa.FlagSF |
			isa.FlagOF,
	},
	x86asm.SHR: {
		Modified: isa.FlagCF | isa.FlagPF | isa.FlagZF | isa.FlagSF |
			isa.FlagOF,
	},
	x86asm.SAR: {
		Modified: isa.FlagCF | isa.FlagPF | isa.FlagZF | isa.FlagSF |
			isa.FlagOF,
	},
	x86asm.ROL: {Modified: isa.FlagCF | isa.FlagOF},
	x86asm.ROR: {Modified: isa.FlagCF | isa.FlagOF},
	x86asm.RCL: {Modified: isa.FlagCF | isa.FlagOF, Tested: isa.FlagCF},
	x86asm.RCR: {Modified: isa.FlagCF | isa.FlagOF, Tested: isa.FlagCF},

	x86asm.BT:  {Modified: isa.FlagCF},
	x86asm.BTS: {Modified: isa.FlagCF},
	x86asm.BTR: {Modified: isa.FlagCF},
	x86asm.BTC: {Modified: isa.FlagCF},
	x86asm.BSF: {Modified: isa.FlagZF},
	x86asm.BSR: {Modified: isa.FlagZF},

	x86asm.MUL:  {Modified: isa.FlagCF | isa.FlagOF},
	x86asm.IMUL: {Modified: isa.FlagCF | isa.FlagOF},

	x86asm.CLC: {Set0: isa.FlagCF},
	x86asm.STC: {Set1: isa.FlagCF},
	x86asm.CMC: {Modified: isa.FlagCF, Tested: isa.FlagCF},
	x86asm.CLD: {Set0: isa.FlagDF},
	x86asm.STD: {Set1: isa.FlagDF},

	x86asm.LAHF: {Tested: lahfFlags},
	x86asm.SAHF: {Modified: lahfFlags},
}

func flagSpecFor(mnemonic Mnemonic) FlagSpec {
	spec, ok := flagSpecs[mnemonic]
	if ok {
		return spec
	}

	tested, ok := conditionTested[mnemonic]
	if ok {
		return FlagSpec{Tested: tested}
	}

	return FlagSpec{}
}
