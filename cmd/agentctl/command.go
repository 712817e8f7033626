package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// command is one node of the agentctl command tree.
type command struct {
	Name    string
	Summary string
	// Usage is shown after the full command path, e.g. "<agentId> [flags]".
	Usage string
	// Flags, when set, is called once per invocation to build the flag set.
	Flags       func(fs *pflag.FlagSet)
	Subcommands []*command
	Run         func(env *env, args []string) error

	parent *command
}

func (c *command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func (c *command) execute(e *env, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.printHelp(e.out)
		return nil
	}

	if len(c.Subcommands) > 0 {
		if len(args) == 0 || strings.HasPrefix(args[0], "-") {
			c.printHelp(e.out)
			return fmt.Errorf("%s: subcommand required", c.fullName())
		}
		for _, sub := range c.Subcommands {
			if sub.Name == args[0] {
				sub.parent = c
				return sub.execute(e, args[1:])
			}
		}
		return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage.", args[0], c.fullName())
	}

	fs := pflag.NewFlagSet(c.fullName(), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if c.Flags != nil {
		c.Flags(fs)
	}
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s\n\nRun '%s --help' for usage.", err, c.fullName())
	}
	return c.Run(e, fs.Args())
}

func (c *command) printHelp(w io.Writer) {
	fmt.Fprintf(w, "%s\n\nUsage:\n", c.Summary)
	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "  %s <command>\n\nCommands:\n", c.fullName())
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
		return
	}
	fmt.Fprintf(w, "  %s %s\n", c.fullName(), c.Usage)
	if c.Flags != nil {
		fs := pflag.NewFlagSet(c.fullName(), pflag.ContinueOnError)
		c.Flags(fs)
		fmt.Fprintf(w, "\nFlags:\n%s", fs.FlagUsages())
	}
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

func exactArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("expected %d argument(s): %s", n, usage)
	}
	return nil
}
