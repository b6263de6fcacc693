// Package encoding enumerates valid instruction encodings per
// mnemonic.  Emitted byte strings are round-tripped through the
// decoder before entering the corpus; anything the decoder rejects or
// resolves to a different mnemonic is dropped.
package encoding

import (
	"runtime"
	"sort"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/sync/errgroup"

	"github.com/pattyshack/x86probe/decoder"
	"github.com/pattyshack/x86probe/isa"
)

type Filter struct {
	mnemonics map[decoder.Mnemonic]struct{}
}

func (filter Filter) AddMnemonics(mnemonics ...decoder.Mnemonic) Filter {
	if filter.mnemonics == nil {
		filter.mnemonics = map[decoder.Mnemonic]struct{}{}
	}
	for _, mnemonic := range mnemonics {
		filter.mnemonics[mnemonic] = struct{}{}
	}
	return filter
}

func (filter Filter) matches(mnemonic decoder.Mnemonic) bool {
	if len(filter.mnemonics) == 0 {
		return true
	}
	_, ok := filter.mnemonics[mnemonic]
	return ok
}

// All mnemonics with encoding templates, ordered by name.
func SupportedMnemonics() []decoder.Mnemonic {
	result := make([]decoder.Mnemonic, 0, len(mnemonicForms))
	for mnemonic := range mnemonicForms {
		result = append(result, mnemonic)
	}
	sort.Slice(result, func(i int, j int) bool {
		return decoder.MnemonicName(result[i]) <
			decoder.MnemonicName(result[j])
	})
	return result
}

func MnemonicByName(name string) (decoder.Mnemonic, bool) {
	for mnemonic := range mnemonicForms {
		if decoder.MnemonicName(mnemonic) == name {
			return mnemonic, true
		}
	}
	return 0, false
}

// Corpus holds all generated encodings in a single flat buffer.
type Corpus struct {
	data []byte

	// entryOffsets[i] is the start of the i'th encoding;
	// entryOffsets[i+1] its end.  len(entryOffsets) == NumEntries()+1.
	entryOffsets []int
}

func (corpus *Corpus) NumEntries() int {
	if len(corpus.entryOffsets) == 0 {
		return 0
	}
	return len(corpus.entryOffsets) - 1
}

func (corpus *Corpus) Entry(idx int) []byte {
	return corpus.data[corpus.entryOffsets[idx]:corpus.entryOffsets[idx+1]]
}

func (corpus *Corpus) add(encoding []byte) {
	if len(corpus.entryOffsets) == 0 {
		corpus.entryOffsets = append(corpus.entryOffsets, 0)
	}
	corpus.data = append(corpus.data, encoding...)
	corpus.entryOffsets = append(corpus.entryOffsets, len(corpus.data))
}

// ForEachParallel invokes fn once per encoding across numWorkers
// goroutines (GOMAXPROCS when numWorkers <= 0).
func (corpus *Corpus) ForEachParallel(numWorkers int, fn func([]byte)) {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	group := errgroup.Group{}
	group.SetLimit(numWorkers)

	for idx := 0; idx < corpus.NumEntries(); idx++ {
		entry := corpus.Entry(idx)
		group.Go(func() error {
			fn(entry)
			return nil
		})
	}

	// Workers communicate failure through their per-encoding results;
	// nothing propagates through the group.
	_ = group.Wait()
}

// Build enumerates encodings for every mnemonic selected by the
// filter.  progress is optional.
func Build(
	mode isa.Mode,
	filter Filter,
	includeMemoryForms bool,
	progress func(current int, max int),
) *Corpus {
	selected := []decoder.Mnemonic{}
	numForms := 0
	for _, mnemonic := range SupportedMnemonics() {
		if !filter.matches(mnemonic) {
			continue
		}
		selected = append(selected, mnemonic)
		numForms += len(mnemonicForms[mnemonic])
	}

	corpus := &Corpus{}
	seen := map[string]struct{}{}
	formsDone := 0

	add := func(mnemonic decoder.Mnemonic, encoding []byte) {
		if encoding == nil {
			return
		}

		_, dup := seen[string(encoding)]
		if dup {
			return
		}

		// Self-check: the encoding must decode back to the mnemonic.
		instr, err := decoder.Decode(mode, encoding, 0)
		if err != nil || instr.Mnemonic != mnemonic ||
			len(instr.Raw) != len(encoding) {

			return
		}

		seen[string(encoding)] = struct{}{}
		corpus.add(encoding)
	}

	for _, mnemonic := range selected {
		for _, f := range mnemonicForms[mnemonic] {
			expandForm(mnemonic, f, includeMemoryForms, add)

			formsDone++
			if progress != nil {
				progress(formsDone, numForms)
			}
		}
	}

	return corpus
}

func expandForm(
	mnemonic decoder.Mnemonic,
	f form,
	includeMemoryForms bool,
	add func(decoder.Mnemonic, []byte),
) {
	if f.kind == formRaw {
		add(mnemonic, append([]byte{}, f.raw...))
		return
	}

	// lea is only defined for memory operands.
	memOnly := mnemonic == x86asm.LEA
	useMem := memOnly || includeMemoryForms

	for _, opsize := range f.sizes {
		// The modrm rm operand is narrower than the operand size for
		// the widening moves.
		rmSize := opsize
		if f.srcSize != 0 {
			rmSize = f.srcSize
		}

		switch f.kind {
		case formRMReg, formRegRM:
			for _, regOperand := range gprsOfSize(opsize) {
				if !memOnly {
					for _, rmOperand := range gprsOfSize(rmSize) {
						emit := newEmitter(opsize)
						emit.useReg(regOperand, 0x04) // rex.r
						emit.regDirect(f.opcode, regOperand.code, rmOperand)
						emit.recheck(regOperand, rmOperand)
						add(mnemonic, emit.finish())
					}
				}

				if useMem {
					for _, mem := range memFormSamples() {
						emit := newEmitter(opsize)
						emit.useReg(regOperand, 0x04) // rex.r
						emit.memOperand(f.opcode, regOperand.code, mem)
						emit.recheck(regOperand)
						add(mnemonic, emit.finish())
					}
				}
			}

		case formRMImm:
			immSize := f.immSize
			if immSize == 0 {
				immSize = opsize
				if immSize > 32 {
					immSize = 32 // imm32 sign-extended
				}
			}

			for _, rmOperand := range gprsOfSize(opsize) {
				for _, imm := range immSamples(immSize) {
					emit := newEmitter(opsize)
					emit.regDirect(f.opcode, f.digit, rmOperand)
					emit.imm(imm, immSize)
					emit.recheck(rmOperand)
					add(mnemonic, emit.finish())
				}
			}

			if useMem {
				for _, mem := range memFormSamples() {
					for _, imm := range immSamples(immSize) {
						emit := newEmitter(opsize)
						emit.memOperand(f.opcode, f.digit, mem)
						emit.imm(imm, immSize)
						add(mnemonic, emit.finish())
					}
				}
			}

		case formRM:
			for _, rmOperand := range gprsOfSize(opsize) {
				emit := newEmitter(opsize)
				emit.regDirect(f.opcode, f.digit, rmOperand)
				emit.recheck(rmOperand)
				add(mnemonic, emit.finish())
			}

			if useMem {
				for _, mem := range memFormSamples() {
					emit := newEmitter(opsize)
					emit.memOperand(f.opcode, f.digit, mem)
					add(mnemonic, emit.finish())
				}
			}

		case formOpReg, formOpRegImm:
			for _, rdOperand := range gprsOfSize(opsize) {
				emit := newEmitter(opsize)
				emit.useReg(rdOperand, 0x01) // rex.b
				opcode := append([]byte{}, f.opcode...)
				opcode[len(opcode)-1] += rdOperand.code
				emit.opcode(opcode...)

				if f.kind == formOpRegImm {
					// the mov reg, imm form takes a full width
					// immediate, including imm64.
					for _, imm := range immSamples(opsize) {
						immEmit := *emit
						immEmit.body = append(
							[]byte{},
							emit.body...)
						immEmit.imm(imm, opsize)
						immEmit.recheck(rdOperand)
						add(mnemonic, immEmit.finish())
					}
					continue
				}

				emit.recheck(rdOperand)
				add(mnemonic, emit.finish())
			}
		}
	}
}
