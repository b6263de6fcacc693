package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pattyshack/x86probe/collector"
	"github.com/pattyshack/x86probe/config"
	"github.com/pattyshack/x86probe/decoder"
	"github.com/pattyshack/x86probe/encoding"
)

func newGenerateCommand() *cobra.Command {
	configPath := ""

	cmd := &cobra.Command{
		Use:   "generate [mnemonic ...]",
		Short: "generate test corpora for the given (or all) mnemonics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				cfg, err = config.LoadFile(configPath)
				if err != nil {
					return err
				}
			}

			mode, err := cfg.MachineMode()
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				names = cfg.Mnemonics
			}

			mnemonics := []decoder.Mnemonic{}
			if len(names) == 0 {
				mnemonics = encoding.SupportedMnemonics()
			} else {
				for _, name := range names {
					mnemonic, ok := encoding.MnemonicByName(name)
					if !ok {
						return fmt.Errorf("unsupported mnemonic: %s", name)
					}
					mnemonics = append(mnemonics, mnemonic)
				}
			}

			runner := collector.Collector{
				Mode:               mode,
				OutputDir:          cfg.OutputDir,
				Workers:            cfg.Workers,
				IncludeMemoryForms: cfg.IncludeMemoryForms,
			}
			return runner.RunAll(mnemonics)
		},
	}

	cmd.Flags().StringVarP(
		&configPath,
		"config",
		"c",
		"",
		"yaml run configuration file")

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list supported mnemonics",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, mnemonic := range encoding.SupportedMnemonics() {
				fmt.Println(decoder.MnemonicName(mnemonic))
			}
			return nil
		},
	}
}
