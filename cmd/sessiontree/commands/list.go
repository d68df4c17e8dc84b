// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessiontree/cmd/sessiontree/cli"
	"github.com/bureau-foundation/sessiontree/lib/treestore"
)

func sessionsCommand(out io.Writer) *cli.Command {
	return listCommand(out, "sessions", "List indexed sessions and their root digests",
		func(ctx context.Context, store *treestore.Store) ([]treestore.IndexEntry, error) {
			return store.SessionEntries(ctx)
		})
}

func projectsCommand(out io.Writer) *cli.Command {
	return listCommand(out, "projects", "List indexed projects and their root digests",
		func(ctx context.Context, store *treestore.Store) ([]treestore.IndexEntry, error) {
			return store.ProjectEntries(ctx)
		})
}

func listCommand(out io.Writer, name, summary string,
	list func(context.Context, *treestore.Store) ([]treestore.IndexEntry, error)) *cli.Command {
	var params storeParams
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   "sessiontree " + name + " [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			params.bind(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("%s takes no arguments", name)
			}
			env, err := params.open(name)
			if err != nil {
				return err
			}
			defer env.Close()

			entries, err := list(context.Background(), env.store)
			if err != nil {
				return err
			}
			if params.outputJSON {
				return cli.WriteJSON(out, entries)
			}
			tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\n", entry.Key, entry.Root)
			}
			return tw.Flush()
		},
	}
}
