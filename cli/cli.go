// Copyright (c) 2025 Dmitry Vats

// Package cli resolves command-line arguments into nested subcommands built
// on the standard library's flag.FlagSet.
//
// A command can implement `interface{ Synopsis() string }` to contribute a
// one-line description to the generated help output.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

// CmdFunc executes a resolved command with its remaining arguments.
type CmdFunc func(ctx context.Context, args []string) error

// Command is one node of the command tree.
type Command interface {
	// Command returns the command's flag set, named after the command,
	// and its execution function. Groups return a nil function.
	Command() (*flag.FlagSet, CmdFunc)
}

type group struct {
	name    string
	subcmds []Command
}

// CommandGroup nests commands under a parent name.
func CommandGroup(name string, cmds ...Command) Command {
	return &group{name: name, subcmds: cmds}
}

func (g *group) Command() (*flag.FlagSet, CmdFunc) {
	return flag.NewFlagSet(g.name, flag.ContinueOnError), nil
}

// Run resolves args against the command tree and executes the selected
// command. An unresolved or missing command prints help and fails.
func Run(ctx context.Context, cmds []Command, args []string) error {
	return run(ctx, "", cmds, args)
}

func run(ctx context.Context, prefix string, cmds []Command, args []string) error {
	if len(args) == 0 || args[0] == "help" {
		printHelp(os.Stderr, prefix, cmds)
		if len(args) == 0 {
			return fmt.Errorf("no command given")
		}
		return nil
	}

	name := args[0]
	for _, c := range cmds {
		fset, fn := c.Command()
		if fset.Name() != name {
			continue
		}
		if g, ok := c.(*group); ok {
			return run(ctx, prefix+name+" ", g.subcmds, args[1:])
		}
		if err := fset.Parse(args[1:]); err != nil {
			return err
		}
		return fn(ctx, fset.Args())
	}

	printHelp(os.Stderr, prefix, cmds)
	return fmt.Errorf("command not defined: %s%s", prefix, name)
}

func printHelp(w io.Writer, prefix string, cmds []Command) {
	type entry struct {
		name, synopsis string
	}
	entries := make([]entry, 0, len(cmds))
	for _, c := range cmds {
		fset, _ := c.Command()
		e := entry{name: fset.Name()}
		if s, ok := c.(interface{ Synopsis() string }); ok {
			e.synopsis = s.Synopsis()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	fmt.Fprintf(w, "Commands:\n")
	for _, e := range entries {
		fmt.Fprintf(w, "\t%s%-12s  %s\n", prefix, e.name, e.synopsis)
	}
}
