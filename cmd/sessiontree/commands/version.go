// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessiontree/cmd/sessiontree/cli"
	"github.com/bureau-foundation/sessiontree/lib/version"
)

type versionResult struct {
	Version      string               `json:"version"`
	Commit       string               `json:"commit"`
	Info         string               `json:"info"`
	Dependencies []version.Dependency `json:"dependencies"`
}

func versionCommand(out io.Writer) *cli.Command {
	var outputJSON bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "sessiontree version [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if outputJSON {
				return cli.WriteJSON(out, versionResult{
					Version:      version.Short(),
					Commit:       version.Commit(),
					Info:         version.Info(),
					Dependencies: version.Dependencies(),
				})
			}
			_, err := fmt.Fprintln(out, "sessiontree "+version.Full())
			return err
		},
	}
}
