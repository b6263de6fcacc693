package oracle

import (
	"math/bits"

	"golang.org/x/arch/x86/x86asm"

	"github.com/pattyshack/x86probe/decoder"
	"github.com/pattyshack/x86probe/isa"
)

// One unit of coverage: witness bit BitPos of Reg equal to
// ExpectedValue, or witness the exception.  A non-none Exception makes
// the other fields irrelevant.
type TargetBit struct {
	Exception ExceptionKind

	Reg           isa.Reg
	BitPos        int
	ExpectedValue byte
}

func isSetcc(mnemonic decoder.Mnemonic) bool {
	switch mnemonic {
	case x86asm.SETO, x86asm.SETNO, x86asm.SETB, x86asm.SETAE,
		x86asm.SETE, x86asm.SETNE, x86asm.SETBE, x86asm.SETA,
		x86asm.SETS, x86asm.SETNS, x86asm.SETP, x86asm.SETNP,
		x86asm.SETL, x86asm.SETGE, x86asm.SETLE, x86asm.SETG:

		return true
	}
	return false
}

// Exceptions the instruction can raise.
func exceptionsFor(mnemonic decoder.Mnemonic) []ExceptionKind {
	switch mnemonic {
	case x86asm.DIV:
		// #DE
		return []ExceptionKind{DivideError, IntegerOverflow}
	}
	return nil
}

// Semantic pre-analysis: facts about the instruction that prune
// unreachable targets before any execution happens.
type semantics struct {
	sameRegSrcDest   bool
	rightImmZero     bool
	inputIsImmediate bool

	resultAlwaysZero   bool
	firstBitAlwaysZero bool
	numBitsAlwaysZero  int
}

func analyzeSemantics(instr decoder.Instruction) semantics {
	op0 := instr.Operand(0)
	op1 := instr.Operand(1)

	result := semantics{}

	if op0.Type == decoder.RegisterOp && op1.Type == decoder.RegisterOp {
		result.sameRegSrcDest = op0.Reg == op1.Reg
	}

	for _, operand := range instr.Operands {
		if operand.Type == decoder.ImmediateOp {
			result.inputIsImmediate = true
		}
	}
	if op1.Type == decoder.ImmediateOp && op1.Imm == 0 {
		result.rightImmZero = true
	}

	switch instr.Mnemonic {
	case x86asm.SUB, x86asm.CMP, x86asm.XOR:
		result.resultAlwaysZero = result.sameRegSrcDest
	case x86asm.AND, x86asm.TEST:
		result.resultAlwaysZero = result.rightImmZero
	case x86asm.MOV:
		result.resultAlwaysZero = result.rightImmZero
	case x86asm.ADD, x86asm.FADD:
		result.firstBitAlwaysZero = result.sameRegSrcDest
	case x86asm.LEA:
		mem := op1.Mem
		// [base+base*1] with no displacement always produces an even
		// address.
		result.firstBitAlwaysZero = mem.Base != isa.None &&
			mem.Index == mem.Base &&
			mem.Scale == 1 &&
			mem.Disp == 0
		if mem.Base == isa.None && mem.Index != isa.None &&
			mem.Scale > 1 && mem.Disp == 0 {

			// The scale shifts that many low bits to zero.
			result.numBitsAlwaysZero = bits.TrailingZeros8(mem.Scale)
		}
	}

	return result
}

// GenerateMatrix derives the ordered target list for one decoded
// instruction: register bits, flag bits, then exceptions.
func GenerateMatrix(instr decoder.Instruction) []TargetBit {
	sem := analyzeSemantics(instr)
	op1 := instr.Operand(1)

	matrix := []TargetBit{}

	for _, regWritten := range regsWritten(instr) {
		regSize := regWritten.Width(instr.Mode)
		resultAlwaysZero := sem.resultAlwaysZero

		maxBits := regSize
		switch {
		case isSetcc(instr.Mnemonic):
			maxBits = 1
		case instr.Mnemonic == x86asm.LEA:
			maxBits = instr.AddressWidth
		case instr.Mnemonic == x86asm.BSWAP:
			// Swapping a sub-dword register leaves zero bytes; the
			// result is effectively always zero.
			resultAlwaysZero = regSize <= 16
		}

		for bitPos := 0; bitPos < regSize; bitPos++ {
			if isSetcc(instr.Mnemonic) && bitPos >= maxBits {
				// The untouched upper destination bits are witnessed
				// through input/output preservation, not as targets.
				continue
			}

			testZero := true
			testOne := bitPos >= sem.numBitsAlwaysZero &&
				!resultAlwaysZero &&
				bitPos < maxBits

			if sem.inputIsImmediate {
				immBit := (uint64(op1.Imm) >> bitPos) & 1

				switch instr.Mnemonic {
				case x86asm.MOV:
					// The output bits are fully known.
					testZero = immBit == 0
					testOne = immBit != 0
				case x86asm.OR:
					// A set input bit can never produce a zero.
					testZero = immBit == 0
				case x86asm.AND:
					// A clear input bit can never produce a one.
					testOne = immBit != 0
				case x86asm.BTR:
					// btr is just reg[imm mod width] = 0
					cleared := uint64(op1.Imm) %
						uint64(instr.OperandWidth)
					testOne = cleared != uint64(bitPos)
				}
			}

			if testZero {
				matrix = append(matrix, TargetBit{
					Exception:     ExceptionNone,
					Reg:           regWritten,
					BitPos:        bitPos,
					ExpectedValue: 0,
				})
			}

			if bitPos == 0 && sem.firstBitAlwaysZero {
				testOne = false
			}

			if testOne {
				matrix = append(matrix, TargetBit{
					Exception:     ExceptionNone,
					Reg:           regWritten,
					BitPos:        bitPos,
					ExpectedValue: 1,
				})
			}
		}
	}

	matrix = append(matrix, flagMatrix(instr, sem)...)

	for _, exception := range exceptionsFor(instr.Mnemonic) {
		matrix = append(matrix, TargetBit{
			Exception: exception,
			Reg:       isa.None,
		})
	}

	return matrix
}

func flagMatrix(instr decoder.Instruction, sem semantics) []TargetBit {
	matrix := []TargetBit{}

	emit := func(bitPos int, value byte) {
		matrix = append(matrix, TargetBit{
			Exception:     ExceptionNone,
			Reg:           isa.Flags,
			BitPos:        bitPos,
			ExpectedValue: value,
		})
	}

	for bitPos := 0; bitPos < 32; bitPos++ {
		flag := uint32(1) << bitPos

		if instr.Flags.Set0&flag != 0 {
			emit(bitPos, 0)
			continue
		}
		if instr.Flags.Set1&flag != 0 {
			emit(bitPos, 1)
			continue
		}

		if instr.Flags.Modified&flag == 0 || sem.inputIsImmediate {
			continue
		}

		testFlagZero := true
		testFlagOne := true

		// Prune flag states the pre-analysis proves unreachable.
		switch flag {
		case isa.FlagZF, isa.FlagPF:
			// A forced zero result forces these to 1.
			testFlagZero = !sem.resultAlwaysZero
		case isa.FlagCF, isa.FlagAF:
			testFlagOne = !sem.resultAlwaysZero && !sem.rightImmZero
		case isa.FlagOF:
			testFlagOne = !sem.sameRegSrcDest && !sem.rightImmZero
		case isa.FlagSF:
			testFlagOne = !sem.resultAlwaysZero
		}

		if testFlagZero {
			emit(bitPos, 0)
		}
		if testFlagOne {
			emit(bitPos, 1)
		}
	}

	return matrix
}
