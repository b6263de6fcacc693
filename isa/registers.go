package isa

import (
	"fmt"
)

type Mode int

const (
	// 64-bit long mode.
	Long64 = Mode(64)
	// 32-bit protected mode.
	Legacy32 = Mode(32)
)

func (mode Mode) AddressWidth() int {
	return int(mode)
}

// The register class determines how the sandbox locates the register
// data and how the oracle computes enclosing roots:
// - gpr8/16/32/64 -> slices of a 64-bit general register
// - flags -> eflags
// - ip -> rip (never a test subject)
// - xmm -> sse registers (metadata only; the sandbox stages gprs)
type Class string

const (
	NoneClass  = Class("none")
	GPR8Class  = Class("gpr8")
	GPR16Class = Class("gpr16")
	GPR32Class = Class("gpr32")
	GPR64Class = Class("gpr64")
	FlagsClass = Class("flags")
	IPClass    = Class("ip")
	XMMClass   = Class("xmm")
)

type Reg int

const (
	None = Reg(0)
)

type Spec struct {
	Reg

	Name  string
	Class Class

	// Register size in bits.
	Width int

	// Field name within the 64-bit ptrace register file
	// (syscall.PtraceRegs).  General sub-registers carry their root's
	// field; empty for xmm registers.
	Field string

	// Only applicable to ah/bh/ch/dh.
	IsHighRegister bool

	// Enclosing registers within the same general register family,
	// widest first (e.g. al -> [rax eax ax]).  None outside of the
	// general register classes.
	enclosing []Reg
}

// Byte offset of the register's data within its root register buffer.
func (spec Spec) ByteOffset() int {
	if spec.IsHighRegister {
		return 1
	}
	return 0
}

var (
	OrderedSpecs []Spec
	NameSpecs    = map[string]Spec{}

	Flags Reg
	Rip   Reg
)

func ByName(name string) (Spec, bool) {
	spec, ok := NameSpecs[name]
	return spec, ok
}

func MustByName(name string) Reg {
	spec, ok := NameSpecs[name]
	if !ok {
		panic("unknown register: " + name)
	}
	return spec.Reg
}

func (reg Reg) Spec() Spec {
	if reg <= None || int(reg) > len(OrderedSpecs) {
		return Spec{Reg: None, Name: "none", Class: NoneClass}
	}
	return OrderedSpecs[reg-1]
}

func (reg Reg) Name() string {
	return reg.Spec().Name
}

func (reg Reg) Class() Class {
	return reg.Spec().Class
}

func (reg Reg) String() string {
	return reg.Name()
}

// Register size in bits under the given machine mode.
func (reg Reg) Width(mode Mode) int {
	spec := reg.Spec()
	if spec.Class == FlagsClass {
		return 32
	}
	if spec.Width > int(mode) && spec.Class == GPR64Class {
		// 64-bit registers are not addressable outside of long mode.
		return 0
	}
	return spec.Width
}

// The largest enclosing register under the given machine mode.  For
// example al's root is rax in long mode and eax in 32-bit mode.
// Unknown classes are not remappable and root to themselves.
func (reg Reg) Root(mode Mode) Reg {
	spec := reg.Spec()
	switch spec.Class {
	case GPR8Class, GPR16Class, GPR32Class, GPR64Class:
	default:
		return reg
	}

	root := reg
	for _, enclosing := range spec.enclosing {
		if enclosing.Spec().Width <= int(mode) {
			root = enclosing
			break
		}
	}
	return root
}

func init() {
	addRegister := func(
		name string,
		class Class,
		width int,
		field string,
		isHigh bool,
		enclosing []Reg,
	) Reg {
		reg := Reg(len(OrderedSpecs) + 1)
		spec := Spec{
			Reg:            reg,
			Name:           name,
			Class:          class,
			Width:          width,
			Field:          field,
			IsHighRegister: isHigh,
			enclosing:      enclosing,
		}

		OrderedSpecs = append(OrderedSpecs, spec)

		_, ok := NameSpecs[name]
		if ok {
			panic("duplicate register info: " + name)
		}
		NameSpecs[name] = spec

		return reg
	}

	// The sub registers of a general register family all share the
	// root's ptrace field.
	addFamily := func(
		name64 string,
		name32 string,
		name16 string,
		name8 string,
		name8High string,
		field string,
	) {
		r64 := addRegister(name64, GPR64Class, 64, field, false, nil)
		r32 := addRegister(name32, GPR32Class, 32, field, false, []Reg{r64})
		r16 := addRegister(
			name16,
			GPR16Class,
			16,
			field,
			false,
			[]Reg{r64, r32})
		addRegister(name8, GPR8Class, 8, field, false, []Reg{r64, r32, r16})
		if name8High != "" {
			addRegister(
				name8High,
				GPR8Class,
				8,
				field,
				true,
				[]Reg{r64, r32, r16})
		}
	}

	addFamily("rax", "eax", "ax", "al", "ah", "Rax")
	addFamily("rcx", "ecx", "cx", "cl", "ch", "Rcx")
	addFamily("rdx", "edx", "dx", "dl", "dh", "Rdx")
	addFamily("rbx", "ebx", "bx", "bl", "bh", "Rbx")
	addFamily("rsp", "esp", "sp", "spl", "", "Rsp")
	addFamily("rbp", "ebp", "bp", "bpl", "", "Rbp")
	addFamily("rsi", "esi", "si", "sil", "", "Rsi")
	addFamily("rdi", "edi", "di", "dil", "", "Rdi")

	for idx := 8; idx < 16; idx++ {
		base := fmt.Sprintf("r%d", idx)
		field := fmt.Sprintf("R%d", idx)
		addFamily(base, base+"d", base+"w", base+"b", "", field)
	}

	Rip = addRegister("rip", IPClass, 64, "Rip", false, nil)
	Flags = addRegister("flags", FlagsClass, 32, "Eflags", false, nil)

	for idx := 0; idx < 16; idx++ {
		addRegister(
			fmt.Sprintf("xmm%d", idx),
			XMMClass,
			128,
			"",
			false,
			nil)
	}
}
