// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessiontree/cmd/sessiontree/cli"
	"github.com/bureau-foundation/sessiontree/lib/ingest"
)

type importedProject struct {
	Name string `json:"name"`
	ingest.Result
}

func importCommand(out io.Writer) *cli.Command {
	var params storeParams
	return &cli.Command{
		Name:    "import",
		Summary: "Build and store trees from a JSONC file of session records",
		Description: "Read a JSON or JSONC file of the form {\"projects\": [...]}, where each\n" +
			"project has a name, a path and sessions of messages and operations.\n" +
			"Each project is committed atomically together with its index entries.",
		Usage: "sessiontree import <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			params.bind(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("import takes exactly one file")
			}
			file, err := ingest.ReadFile(args[0])
			if err != nil {
				return err
			}

			env, err := params.open("import")
			if err != nil {
				return err
			}
			defer env.Close()

			ingester := ingest.New(env.store, env.builderConfig(), env.logger)
			ctx := context.Background()

			var imported []importedProject
			for _, project := range file.Projects {
				result, err := ingester.IngestProject(ctx, project)
				if err != nil {
					return err
				}
				imported = append(imported, importedProject{Name: project.Name, Result: result})
			}

			if params.outputJSON {
				return cli.WriteJSON(out, imported)
			}
			for _, project := range imported {
				fmt.Fprintf(out, "project %s: %s (%d sessions, %d nodes)\n",
					project.Name, project.ProjectRoot, len(project.SessionRoots), project.NodeCount)
				for _, skipped := range project.Skipped {
					fmt.Fprintf(out, "  skipped empty session %s\n", skipped)
				}
			}
			return nil
		},
	}
}
