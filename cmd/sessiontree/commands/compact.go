// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessiontree/cmd/sessiontree/cli"
)

type compactResult struct {
	Path       string `json:"path"`
	SizeBefore int64  `json:"size_before"`
	SizeAfter  int64  `json:"size_after"`
}

func compactCommand(out io.Writer) *cli.Command {
	var params storeParams
	return &cli.Command{
		Name:    "compact",
		Summary: "Checkpoint the write-ahead log and reclaim free pages",
		Usage:   "sessiontree compact [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("compact", pflag.ContinueOnError)
			params.bind(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("compact takes no arguments")
			}
			env, err := params.open("compact")
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			before, err := env.store.Stats(ctx)
			if err != nil {
				return err
			}
			if err := env.store.Compact(ctx); err != nil {
				return err
			}
			after, err := env.store.Stats(ctx)
			if err != nil {
				return err
			}

			result := compactResult{Path: env.store.Path(), SizeBefore: before.FileSize, SizeAfter: after.FileSize}
			if params.outputJSON {
				return cli.WriteJSON(out, result)
			}
			_, err = fmt.Fprintf(out, "compacted %s: %d -> %d bytes\n", result.Path, result.SizeBefore, result.SizeAfter)
			return err
		},
	}
}
