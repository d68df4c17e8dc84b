// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessiontree/cmd/sessiontree/cli"
	"github.com/bureau-foundation/sessiontree/lib/treestore"
)

type statsResult struct {
	Path  string               `json:"path"`
	Store treestore.Stats      `json:"store"`
	Cache treestore.CacheStats `json:"cache"`
}

func statsCommand(out io.Writer) *cli.Command {
	var params storeParams
	return &cli.Command{
		Name:    "stats",
		Summary: "Show node, session and project counts and file size",
		Usage:   "sessiontree stats [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			params.bind(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("stats takes no arguments")
			}
			env, err := params.open("stats")
			if err != nil {
				return err
			}
			defer env.Close()

			stats, err := env.store.Stats(context.Background())
			if err != nil {
				return err
			}
			result := statsResult{Path: env.store.Path(), Store: stats, Cache: env.store.CacheStats()}
			if params.outputJSON {
				return cli.WriteJSON(out, result)
			}

			tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "path:\t%s\n", result.Path)
			fmt.Fprintf(tw, "schema version:\t%d\n", stats.SchemaVersion)
			fmt.Fprintf(tw, "nodes:\t%d\n", stats.NodeCount)
			fmt.Fprintf(tw, "sessions:\t%d\n", stats.SessionCount)
			fmt.Fprintf(tw, "projects:\t%d\n", stats.ProjectCount)
			fmt.Fprintf(tw, "file size:\t%d bytes\n", stats.FileSize)
			fmt.Fprintf(tw, "created:\t%s\n", formatTime(stats.CreatedAt))
			fmt.Fprintf(tw, "last compaction:\t%s\n", formatTime(stats.LastCompaction))
			return tw.Flush()
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
