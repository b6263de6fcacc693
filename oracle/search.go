// Package oracle drives sandboxed instruction executions until every
// reachable output bit has been witnessed at both values, recording
// the input/output vectors of each witnessing trial.
package oracle

import (
	"fmt"
	"math/rand"

	"github.com/pattyshack/x86probe/decoder"
	"github.com/pattyshack/x86probe/inputgen"
	"github.com/pattyshack/x86probe/isa"
	"github.com/pattyshack/x86probe/logging"
	"github.com/pattyshack/x86probe/sandbox"
)

// Per-target retry budget.  Immediate operands shrink the reachable
// input space, so their budget shrinks with it.
const AbortTestCaseThreshold = 100000

func maxAttemptsFor(instr decoder.Instruction) int {
	for _, operand := range instr.Operands {
		if operand.Type == decoder.ImmediateOp {
			return AbortTestCaseThreshold / 3
		}
	}
	return AbortTestCaseThreshold
}

// Seed the target's destination with the opposite polarity so a hit is
// unambiguous: 0xFF fill when expecting 0, zero fill when expecting 1,
// placed at the sub-register's offset within its root.  Flags are
// seeded the same way.
func clearOutput(
	mode isa.Mode,
	ctx *sandbox.Context,
	target TargetBit,
) error {
	if !isRegFiltered(target.Reg) {
		regSize := target.Reg.Width(mode) / 8
		regOffset := target.Reg.Spec().ByteOffset()

		root := target.Reg.Root(mode)
		rootSize := root.Width(mode) / 8

		buf := make([]byte, rootSize)
		for idx := 0; idx < regSize; idx++ {
			if target.ExpectedValue == 0 {
				buf[idx+regOffset] = 0xFF
			}
		}

		err := ctx.SetRegBytes(root, buf)
		if err != nil {
			return err
		}
	}

	flags := uint32(0)
	if target.ExpectedValue == 0 {
		flags = isa.StatusFlags
	}
	ctx.SetFlags(flags)

	return nil
}

// Stage the next round of inputs: scrub every read root to 0xCC,
// splice each read register's current generator pattern into its root
// buffer, then advance the generators and randomize the tested flags.
func advanceInputs(
	ctx *sandbox.Context,
	prng *rand.Rand,
	inputGens []*inputgen.Generator,
	instr decoder.Instruction,
	entry *Entry,
	iteration int,
) error {
	readRegs := regsRead(instr)

	roots := map[isa.Reg]struct{}{}
	for _, reg := range readRegs {
		if isRegFiltered(reg) {
			continue
		}
		roots[reg.Root(instr.Mode)] = struct{}{}
	}

	// Cleanse the registers.
	for root := range roots {
		rootSize := root.Width(instr.Mode) / 8
		ccBytes := make([]byte, rootSize)
		for idx := range ccBytes {
			ccBytes[idx] = 0xCC
		}

		err := ctx.SetRegBytes(root, ccBytes)
		if err != nil {
			return err
		}
	}

	// Splice the input patterns.
	genIndex := 0
	for _, reg := range readRegs {
		if isRegFiltered(reg) {
			continue
		}

		regSize := reg.Width(instr.Mode) / 8
		regOffset := reg.Spec().ByteOffset()
		root := reg.Root(instr.Mode)

		// In case inputs overlap (ah/al), build on the root's staged
		// content.
		buf, err := ctx.StagedRegBytes(root)
		if err != nil {
			return err
		}

		copy(
			buf[regOffset:regOffset+regSize],
			inputGens[genIndex].Current())

		err = ctx.SetRegBytes(root, buf)
		if err != nil {
			return err
		}

		entry.InputRegs[root] = append([]byte{}, buf...)

		genIndex++
	}

	for genIdx := 0; genIdx < genIndex; genIdx++ {
		if inputGens[genIdx].Advance() {
			if (iteration+1)%3 == 0 {
				break
			}
		}
	}

	// Randomize read flags.
	flags := uint32(0)
	testedFlags := flagsRead(instr)
	if testedFlags != 0 {
		for bitPos := 0; bitPos < 32; bitPos++ {
			if testedFlags&(1<<bitPos) != 0 {
				flags |= uint32(prng.Intn(2)) << bitPos
			}
		}

		inputFlags := flags
		entry.InputFlags = &inputFlags
	}

	// Ensure we never single step the stub.
	flags &^= isa.FlagTF

	ctx.SetFlags(flags)

	return nil
}

// checkOutputs reads the target bit and, on a hit, captures the
// written roots and (when applicable) the output flags into the entry.
func checkOutputs(
	mode isa.Mode,
	ctx *sandbox.Context,
	instr decoder.Instruction,
	target TargetBit,
	entry *Entry,
) (bool, error) {
	root := target.Reg.Root(mode)

	regData, err := ctx.RegBytes(root)
	if err != nil {
		return false, err
	}
	regOffset := target.Reg.Spec().ByteOffset()

	bitValue := regData[regOffset+target.BitPos/8] >> (target.BitPos % 8) & 1
	if bitValue != target.ExpectedValue {
		return false, nil
	}

	// Capture output.
	for _, regWritten := range regsWritten(instr) {
		writtenRoot := regWritten.Root(mode)
		rootSize := writtenRoot.Width(mode) / 8

		data, err := ctx.RegBytes(writtenRoot)
		if err != nil {
			return false, err
		}

		entry.OutputRegs[writtenRoot] = append([]byte{}, data[:rootSize]...)
	}

	if flagsModified(instr) != 0 {
		// The interrupt flag is forced by the kernel; mask it out.
		outputFlags := ctx.Flags() &^ isa.FlagIF
		entry.OutputFlags = &outputFlags
	}

	return true, nil
}

func setupInputGenerators(
	prng *rand.Rand,
	instr decoder.Instruction,
) []*inputgen.Generator {
	generators := []*inputgen.Generator{}
	for _, reg := range regsRead(instr) {
		if isRegFiltered(reg) {
			continue
		}
		generators = append(
			generators,
			inputgen.New(reg.Width(instr.Mode), prng))
	}
	return generators
}

func targetInfo(target TargetBit) string {
	if target.Exception != ExceptionNone {
		return fmt.Sprintf("exception %s", target.Exception)
	}
	return fmt.Sprintf(
		"%s[%d] = 0b%d",
		target.Reg.Name(),
		target.BitPos,
		target.ExpectedValue)
}

// testInstruction runs the per-target search loop for one encoding,
// filling in the group.  The returned error indicates a fatal sandbox
// failure; exhausted targets are logged and skipped.
func testInstruction(mode isa.Mode, group *Group) error {
	instr, err := decoder.Decode(mode, group.Raw, 0)
	if err != nil {
		return err
	}

	maxAttempts := maxAttemptsFor(instr)
	matrix := GenerateMatrix(instr)

	ctx, err := sandbox.NewContext(mode, group.Raw)
	if err != nil {
		return fmt.Errorf("failed to prepare context: %w", err)
	}
	defer func() {
		_ = ctx.Close()
	}()

	group.Address = ctx.CodeAddress()

	prng := rand.New(rand.NewSource(int64(instr.Mnemonic)))

	for _, target := range matrix {
		entry := newEntry()

		inputGenerators := setupInputGenerators(prng, instr)

		hasExpected := false
		illegalInstr := false

		// Repeat until the expected bit (or exception) is observed.
		for iteration := 0; !hasExpected && !illegalInstr; iteration++ {
			// Ensure the output starts at the opposite value.
			err := clearOutput(mode, ctx, target)
			if err != nil {
				return err
			}

			err = advanceInputs(
				ctx,
				prng,
				inputGenerators,
				instr,
				&entry,
				iteration)
			if err != nil {
				return err
			}

			err = ctx.Execute()
			if err != nil {
				return fmt.Errorf("failed to execute instruction: %w", err)
			}

			status := ctx.Status()
			if status != sandbox.Success {
				exceptionType := ExceptionNone
				switch status {
				case sandbox.ExceptionIntDivideError:
					exceptionType = DivideError
				case sandbox.ExceptionIntOverflow:
					exceptionType = IntegerOverflow
				case sandbox.IllegalInstruction:
					illegalInstr = true
				case sandbox.MemoryFault:
					// Retryable; random addresses fault constantly.
				default:
					return fmt.Errorf(
						"instruction execution failed: %s",
						status)
				}

				if exceptionType != ExceptionNone &&
					exceptionType == target.Exception {

					witnessed := exceptionType
					entry.Exception = &witnessed
					hasExpected = true
				}
			} else if target.Exception == ExceptionNone {
				hasExpected, err = checkOutputs(
					mode,
					ctx,
					instr,
					target,
					&entry)
				if err != nil {
					return err
				}
			}

			if iteration > maxAttempts {
				// Probably impossible.
				logging.Println(
					"Test probably impossible: %s ; %s",
					instr.Text,
					targetInfo(target))
				break
			}
		}

		if illegalInstr {
			logging.Println("Illegal instruction: %s", instr.Text)
			group.Illegal = true
			break
		}

		if hasExpected {
			group.Entries = append(group.Entries, entry)
		}
	}

	return nil
}

// GenerateGroup runs the full search for one encoding and returns the
// deduplicated group.  Fatal failures are logged; the returned group's
// emptiness / Illegal flag communicate the outcome.
func GenerateGroup(mode isa.Mode, raw []byte) Group {
	group := Group{
		Raw: raw,
	}

	err := testInstruction(mode, &group)
	if err != nil {
		logging.Println("%s", err)
		return group
	}

	group.Dedupe()
	return group
}
