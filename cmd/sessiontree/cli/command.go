// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Command is one node of the sessiontree command tree. A command either
// dispatches to Subcommands by its first positional argument or parses
// Flags and calls Run.
type Command struct {
	// Name is what the user types to select the command ("show").
	Name string

	// Summary is the one-line description listed in the parent's help.
	Summary string

	// Description is the longer text at the top of the command's own
	// help. Summary is used when it is empty.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	// Examples are printed at the end of the help output.
	Examples []Example

	// Flags builds the command's flag set. It is called once per parse
	// and once per help render, and must bind the same variables each
	// time.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	// A command with both Run and Subcommands runs when no subcommand
	// name matches.
	Run func(args []string) error

	// HelpOutput receives help text. Subcommands inherit it from their
	// parent; nil at the root means os.Stderr.
	HelpOutput io.Writer

	parent *Command
}

// Example is a documented invocation shown in help output.
type Example struct {
	Description string
	Command     string
}

// UsageError reports a command line that could not be dispatched or
// parsed. Its message always ends with a pointer to --help.
type UsageError struct {
	// Command is the full path of the command that rejected the input.
	Command string

	// Message describes the problem.
	Message string

	// Suggestion is the closest valid spelling, already formatted for
	// display, or empty.
	Suggestion string
}

func (err *UsageError) Error() string {
	message := err.Message
	if err.Suggestion != "" {
		message += " (did you mean " + err.Suggestion + "?)"
	}
	return fmt.Sprintf("%s\n\nRun '%s --help' for usage.", message, err.Command)
}

// Execute parses args and runs the selected command.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.helpOutput())
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return c.dispatch(args[0], args[1:])
	}

	if len(c.Subcommands) > 0 && c.Run == nil {
		c.PrintHelp(c.helpOutput())
		if len(args) == 0 {
			return fmt.Errorf("subcommand required")
		}
		return fmt.Errorf("subcommand required (got flag %q)", args[0])
	}

	positional, err := c.parseFlags(args)
	if err != nil {
		return err
	}
	if c.Run == nil {
		c.PrintHelp(c.helpOutput())
		return fmt.Errorf("no action defined for %q", c.fullName())
	}
	return c.Run(positional)
}

func (c *Command) dispatch(name string, rest []string) error {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub.Execute(rest)
		}
	}

	names := make([]string, len(c.Subcommands))
	for i, sub := range c.Subcommands {
		names[i] = sub.Name
	}
	usageError := &UsageError{Command: c.fullName(), Message: fmt.Sprintf("unknown command %q", name)}
	if suggestion := closest(name, names); suggestion != "" {
		usageError.Suggestion = fmt.Sprintf("%q", suggestion)
	}
	return usageError
}

// parseFlags returns the positional arguments. Parse errors for unknown
// flags carry a suggestion from a fresh flag set, since a failed parse
// may leave the first one partially consumed.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		usageError := &UsageError{Command: c.fullName(), Message: err.Error()}
		if strings.Contains(usageError.Message, "unknown flag") || strings.Contains(usageError.Message, "unknown shorthand") {
			usageError.Suggestion = suggestFlag(args, c.Flags())
		}
		return nil, usageError
	}
	return flagSet.Args(), nil
}

func (c *Command) helpOutput() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.HelpOutput != nil {
			return command.HelpOutput
		}
	}
	return os.Stderr
}

// fullName is the space-separated path from the root ("sessiontree show").
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}
