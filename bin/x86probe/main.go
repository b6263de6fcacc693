package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "x86probe",
		Short: "behavioral test corpus generator for x86-64 instructions",
		SilenceUsage: true,
	}

	// The sandbox re-executes this binary as its stub child.  The stub
	// is trapped before its first instruction and never actually runs;
	// sleeping forever keeps an escaped stub harmless.
	stub := &cobra.Command{
		Use:    "stub",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for {
				time.Sleep(time.Hour)
			}
		},
	}

	root.AddCommand(
		newGenerateCommand(),
		newListCommand(),
		newInspectCommand(),
		stub)

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
