// Package collector fans the per-encoding search across worker
// goroutines and serializes the surviving groups per mnemonic.
package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pattyshack/x86probe/decoder"
	"github.com/pattyshack/x86probe/encoding"
	"github.com/pattyshack/x86probe/isa"
	"github.com/pattyshack/x86probe/logging"
	"github.com/pattyshack/x86probe/oracle"
	"github.com/pattyshack/x86probe/testfile"
)

type Collector struct {
	Mode isa.Mode

	OutputDir string

	// Parallel workers; 0 uses GOMAXPROCS.
	Workers int

	IncludeMemoryForms bool
}

func (collector Collector) pathForMnemonic(mnemonic decoder.Mnemonic) string {
	return filepath.Join(
		collector.OutputDir,
		decoder.MnemonicName(mnemonic)+".txt")
}

// Run generates and serializes the corpus for one mnemonic.  Mnemonics
// whose output file already exists are skipped.  Per-encoding failures
// are logged and dropped; they never abort the mnemonic.
func (collector Collector) Run(mnemonic decoder.Mnemonic) error {
	name := decoder.MnemonicName(mnemonic)

	err := os.MkdirAll(collector.OutputDir, 0o755)
	if err != nil {
		return fmt.Errorf(
			"failed to create output directory %s: %w",
			collector.OutputDir,
			err)
	}

	path := collector.pathForMnemonic(mnemonic)
	_, err = os.Stat(path)
	if err == nil {
		logging.Println("Skipping %q as it already exists", name)
		return nil
	}

	logging.StartProgress("Building %q instruction combinations", name)
	corpus := encoding.Build(
		collector.Mode,
		encoding.Filter{}.AddMnemonics(mnemonic),
		collector.IncludeMemoryForms,
		logging.UpdateProgress)
	logging.EndProgress()

	numInstrs := corpus.NumEntries()
	logging.Println("Total instructions: %d", numInstrs)

	logging.StartProgress("Generating tests")

	groups := []oracle.Group{}
	mutex := sync.Mutex{}
	currentInstr := atomic.Int64{}

	corpus.ForEachParallel(collector.Workers, func(raw []byte) {
		group := oracle.GenerateGroup(collector.Mode, raw)
		if len(group.Entries) > 0 && !group.Illegal {
			mutex.Lock()
			groups = append(groups, group)
			mutex.Unlock()
		}

		logging.UpdateProgress(int(currentInstr.Add(1)), numInstrs)
	})

	logging.EndProgress()

	// Sort the groups by instruction operand width.  Ties keep
	// whatever order the parallel sweep produced.
	sort.SliceStable(groups, func(i int, j int) bool {
		return collector.operandWidth(groups[i]) <
			collector.operandWidth(groups[j])
	})

	totalEntries := 0
	for _, group := range groups {
		totalEntries += len(group.Entries)
	}
	logging.Println("Total test cases: %d", totalEntries)

	// A file failure skips this mnemonic but not the run.
	err = testfile.WriteFile(path, collector.Mode, groups)
	if err != nil {
		logging.Println("%s", err)
	}

	return nil
}

func (collector Collector) operandWidth(group oracle.Group) int {
	instr, err := decoder.Decode(collector.Mode, group.Raw, group.Address)
	if err != nil {
		return 0
	}
	return instr.OperandWidth
}

// RunAll runs every requested mnemonic in sequence.
func (collector Collector) RunAll(mnemonics []decoder.Mnemonic) error {
	for _, mnemonic := range mnemonics {
		err := collector.Run(mnemonic)
		if err != nil {
			return err
		}
	}
	return nil
}
