package decoder

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/pattyshack/x86probe/isa"
)

type OperandType int

const (
	RegisterOp = OperandType(iota + 1)
	MemoryOp
	ImmediateOp
	PointerOp
)

type Action int

const (
	ReadAction  = Action(1 << 0)
	WriteAction = Action(1 << 1)
)

func (action Action) Reads() bool {
	return action&ReadAction != 0
}

func (action Action) Writes() bool {
	return action&WriteAction != 0
}

type MemOperand struct {
	Base  isa.Reg
	Index isa.Reg
	Scale uint8
	Disp  int64
}

type Operand struct {
	Type    OperandType
	Actions Action

	Reg isa.Reg    // RegisterOp
	Mem MemOperand // MemoryOp
	Imm int64      // ImmediateOp

	// Operand not present in the encoding (e.g. rdx:rax for div).
	Implicit bool
}

type Instruction struct {
	Mnemonic Mnemonic
	Mode     isa.Mode

	Address uint64
	Raw     []byte

	Operands []Operand

	// Effective operand size in bits.
	OperandWidth int
	AddressWidth int

	Flags FlagSpec

	// Intel syntax disassembly.
	Text string
}

// Operand returns the idx'th operand, or a zero operand when absent.
// The matrix builder indexes operands 0 and 1 unconditionally.
func (instr Instruction) Operand(idx int) Operand {
	if idx < 0 || idx >= len(instr.Operands) {
		return Operand{}
	}
	return instr.Operands[idx]
}

func Decode(
	mode isa.Mode,
	data []byte,
	address uint64,
) (
	Instruction,
	error,
) {
	inst, err := x86asm.Decode(data, int(mode))
	if err != nil {
		return Instruction{}, fmt.Errorf(
			"failed to decode instruction bytes (% x): %w",
			data,
			err)
	}

	instr := Instruction{
		Mnemonic:     inst.Op,
		Mode:         mode,
		Address:      address,
		Raw:          data[:inst.Len],
		AddressWidth: inst.AddrSize,
		Flags:        flagSpecFor(inst.Op),
		Text:         x86asm.IntelSyntax(inst, address, nil),
	}

	numArgs := 0
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		numArgs++
	}

	for idx := 0; idx < numArgs; idx++ {
		operand := Operand{
			Actions: operandActions(inst.Op, numArgs, idx),
		}

		switch arg := inst.Args[idx].(type) {
		case x86asm.Reg:
			operand.Type = RegisterOp
			operand.Reg = fromX86asmReg(arg)
		case x86asm.Mem:
			operand.Type = MemoryOp
			operand.Mem = MemOperand{
				Base:  fromX86asmReg(arg.Base),
				Index: fromX86asmReg(arg.Index),
				Scale: arg.Scale,
				Disp:  arg.Disp,
			}
		case x86asm.Imm:
			operand.Type = ImmediateOp
			operand.Imm = int64(arg)
		default:
			return Instruction{}, fmt.Errorf(
				"unsupported operand kind %T in %s",
				arg,
				instr.Text)
		}

		instr.Operands = append(instr.Operands, operand)
	}

	instr.OperandWidth = operandWidth(mode, inst, instr.Operands)

	instr.Operands = append(
		instr.Operands,
		implicitOperands(inst.Op, numArgs, instr.OperandWidth)...)

	return instr, nil
}

// Effective operand size in bits.  x86asm's DataSize reflects only the
// prefix-derived attribute (16/32/64); byte-wide forms are recovered
// from the first register operand or the memory operand size.
func operandWidth(
	mode isa.Mode,
	inst x86asm.Inst,
	operands []Operand,
) int {
	for _, operand := range operands {
		if operand.Type == RegisterOp {
			return operand.Reg.Width(mode)
		}
	}
	if inst.MemBytes > 0 {
		return inst.MemBytes * 8
	}
	return inst.DataSize
}

// Explicit operand action masks per mnemonic.  This mirrors the
// operand metadata an instruction-table-backed decoder would provide.
func operandActions(mnemonic Mnemonic, numArgs int, idx int) Action {
	switch mnemonic {
	case x86asm.ADD, x86asm.ADC, x86asm.SUB, x86asm.SBB, x86asm.AND,
		x86asm.OR, x86asm.XOR, x86asm.SHL, x86asm.SHR, x86asm.SAR,
		x86asm.ROL, x86asm.ROR, x86asm.RCL, x86asm.RCR, x86asm.BTS,
		x86asm.BTR, x86asm.BTC:

		if idx == 0 {
			return ReadAction | WriteAction
		}
		return ReadAction

	case x86asm.CMP, x86asm.TEST, x86asm.BT:
		return ReadAction

	case x86asm.MOV, x86asm.LEA, x86asm.MOVZX, x86asm.MOVSX,
		x86asm.BSF, x86asm.BSR:

		if idx == 0 {
			return WriteAction
		}
		return ReadAction

	case x86asm.XCHG:
		return ReadAction | WriteAction

	case x86asm.INC, x86asm.DEC, x86asm.NEG, x86asm.NOT, x86asm.BSWAP:
		return ReadAction | WriteAction

	case x86asm.MUL, x86asm.DIV, x86asm.IDIV:
		return ReadAction

	case x86asm.IMUL:
		switch numArgs {
		case 1:
			return ReadAction
		case 2:
			if idx == 0 {
				return ReadAction | WriteAction
			}
			return ReadAction
		default:
			if idx == 0 {
				return WriteAction
			}
			return ReadAction
		}
	}

	if _, ok := conditionTested[mnemonic]; ok {
		// setcc / cmovcc
		if idx == 0 {
			return WriteAction
		}
		return ReadAction
	}

	return ReadAction
}

// Operands not encoded in the instruction bytes.  Zero-extended to the
// effective operand width.
func implicitOperands(
	mnemonic Mnemonic,
	numArgs int,
	operandWidth int,
) []Operand {
	implicitReg := func(name string, actions Action) Operand {
		return Operand{
			Type:     RegisterOp,
			Actions:  actions,
			Reg:      isa.MustByName(name),
			Implicit: true,
		}
	}

	aName := map[int]string{8: "al", 16: "ax", 32: "eax", 64: "rax"}
	dName := map[int]string{16: "dx", 32: "edx", 64: "rdx"}

	switch mnemonic {
	case x86asm.MUL, x86asm.IMUL:
		if numArgs != 1 {
			return nil
		}

		if operandWidth == 8 {
			// al * r/m8 -> ax
			return []Operand{implicitReg("ax", ReadAction | WriteAction)}
		}
		return []Operand{
			implicitReg(aName[operandWidth], ReadAction|WriteAction),
			implicitReg(dName[operandWidth], WriteAction),
		}

	case x86asm.DIV, x86asm.IDIV:
		if operandWidth == 8 {
			// ax / r/m8 -> al remainder ah
			return []Operand{implicitReg("ax", ReadAction | WriteAction)}
		}
		return []Operand{
			implicitReg(aName[operandWidth], ReadAction|WriteAction),
			implicitReg(dName[operandWidth], ReadAction|WriteAction),
		}

	case x86asm.CBW:
		return []Operand{implicitReg("ax", ReadAction | WriteAction)}
	case x86asm.CWDE:
		return []Operand{implicitReg("eax", ReadAction | WriteAction)}
	case x86asm.CDQE:
		return []Operand{implicitReg("rax", ReadAction | WriteAction)}

	case x86asm.CWD:
		return []Operand{
			implicitReg("ax", ReadAction),
			implicitReg("dx", WriteAction),
		}
	case x86asm.CDQ:
		return []Operand{
			implicitReg("eax", ReadAction),
			implicitReg("edx", WriteAction),
		}
	case x86asm.CQO:
		return []Operand{
			implicitReg("rax", ReadAction),
			implicitReg("rdx", WriteAction),
		}

	case x86asm.LAHF:
		return []Operand{implicitReg("ah", WriteAction)}
	case x86asm.SAHF:
		return []Operand{implicitReg("ah", ReadAction)}
	}

	return nil
}
