package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/pattyshack/x86probe/testfile"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <corpus file>",
		Short: "interactively browse a serialized corpus file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := testfile.ParseFile(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%d groups loaded from %s\n", len(groups), args[0])
			return inspectLoop(groups)
		},
	}
}

type inspectCommand struct {
	name string
	run  func([]testfile.ParsedGroup, []string) error
}

var inspectCommands = []inspectCommand{
	{name: "groups", run: printGroups},
	{name: "show", run: printGroup},
	{name: "entry", run: printEntry},
}

func inspectLoop(groups []testfile.ParsedGroup) error {
	rl, err := readline.New("x86probe > ")
	if err != nil {
		return err
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		if line == "" {
			continue
		}

		args := strings.Split(line, " ")
		if args[0] == "quit" || args[0] == "exit" {
			return nil
		}

		found := false
		for _, cmd := range inspectCommands {
			if strings.HasPrefix(cmd.name, args[0]) {
				found = true
				err := cmd.run(groups, args[1:])
				if err != nil {
					fmt.Println(err)
				}
				break
			}
		}

		if !found {
			fmt.Println("invalid command:", args[0])
		}
	}
}

func printGroups(groups []testfile.ParsedGroup, args []string) error {
	for idx, group := range groups {
		fmt.Printf(
			"%3d: 0x%016x % -24x %s (%d entries)\n",
			idx,
			group.Address,
			group.Raw,
			group.Text,
			len(group.Entries))
	}
	return nil
}

func groupArg(
	groups []testfile.ParsedGroup,
	args []string,
) (
	testfile.ParsedGroup,
	error,
) {
	if len(args) < 1 {
		return testfile.ParsedGroup{}, fmt.Errorf("expected a group index")
	}

	idx, err := strconv.Atoi(args[0])
	if err != nil || idx < 0 || idx >= len(groups) {
		return testfile.ParsedGroup{}, fmt.Errorf(
			"invalid group index (%s)",
			args[0])
	}

	return groups[idx], nil
}

func printGroup(groups []testfile.ParsedGroup, args []string) error {
	group, err := groupArg(groups, args)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", group.Text)
	fmt.Printf("  address: 0x%016x\n", group.Address)
	fmt.Printf("  bytes:   % x\n", group.Raw)
	fmt.Printf("  entries: %d\n", len(group.Entries))
	return nil
}

func printEntry(groups []testfile.ParsedGroup, args []string) error {
	group, err := groupArg(groups, args)
	if err != nil {
		return err
	}

	if len(args) < 2 {
		return fmt.Errorf("expected an entry index")
	}

	idx, err := strconv.Atoi(args[1])
	if err != nil || idx < 0 || idx >= len(group.Entries) {
		return fmt.Errorf("invalid entry index (%s)", args[1])
	}

	entry := group.Entries[idx]

	fmt.Println("inputs:")
	for _, reg := range entry.InputRegs.SortedRegs() {
		fmt.Printf("  %-6s %x\n", reg.Name(), entry.InputRegs[reg])
	}
	if entry.InputFlags != nil {
		fmt.Printf("  %-6s %08x\n", "flags", *entry.InputFlags)
	}

	fmt.Println("outputs:")
	for _, reg := range entry.OutputRegs.SortedRegs() {
		fmt.Printf("  %-6s %x\n", reg.Name(), entry.OutputRegs[reg])
	}
	if entry.OutputFlags != nil {
		fmt.Printf("  %-6s %08x\n", "flags", *entry.OutputFlags)
	}

	if entry.Exception != nil {
		fmt.Printf("exception: %s\n", *entry.Exception)
	}

	return nil
}
