// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// PrintHelp writes the command's help: description, usage line,
// subcommand table, flags and examples, in that order.
func (c *Command) PrintHelp(w io.Writer) {
	switch {
	case c.Description != "":
		fmt.Fprintf(w, "%s\n\n", c.Description)
	case c.Summary != "":
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", c.usageLine())

	c.writeSubcommands(w)
	c.writeFlags(w)
	c.writeExamples(w)

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", c.fullName())
	}
}

func (c *Command) usageLine() string {
	switch {
	case c.Usage != "":
		return c.Usage
	case len(c.Subcommands) > 0:
		return c.fullName() + " <command> [flags]"
	default:
		return c.fullName() + " [flags]"
	}
}

func (c *Command) writeSubcommands(w io.Writer) {
	if len(c.Subcommands) == 0 {
		return
	}
	fmt.Fprintf(w, "\nCommands:\n")
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	for _, sub := range c.Subcommands {
		fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
	}
	tw.Flush()
}

func (c *Command) writeFlags(w io.Writer) {
	if c.Flags == nil {
		return
	}
	if usages := c.Flags().FlagUsages(); usages != "" {
		fmt.Fprintf(w, "\nFlags:\n%s", usages)
	}
}

func (c *Command) writeExamples(w io.Writer) {
	if len(c.Examples) == 0 {
		return
	}
	fmt.Fprintf(w, "\nExamples:\n")
	for _, example := range c.Examples {
		if example.Description == "" {
			fmt.Fprintf(w, "  %s\n", example.Command)
			continue
		}
		fmt.Fprintf(w, "  # %s\n  %s\n\n", example.Description, example.Command)
	}
}
