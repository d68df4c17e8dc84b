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
	"github.com/bureau-foundation/sessiontree/lib/digest"
	"github.com/bureau-foundation/sessiontree/lib/tree"
)

type verifyResult struct {
	Root    digest.Digest `json:"root"`
	Valid   bool          `json:"valid"`
	Error   string        `json:"error,omitempty"`
	Summary *tree.Summary `json:"summary,omitempty"`
}

func verifyCommand(out io.Writer) *cli.Command {
	var params storeParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Re-hash every node reachable from a ref",
		Description: "Load every node reachable from the ref, recompute each hash and check\n" +
			"that every child reference resolves. Exits 1 if anything fails.",
		Usage: "sessiontree verify <ref> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			params.bind(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("verify takes exactly one ref")
			}
			env, err := params.open("verify")
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			root, err := resolveRef(ctx, env.store, args[0])
			if err != nil {
				return err
			}

			result := verifyResult{Root: root, Valid: true}
			if err := tree.Verify(ctx, env.store, root); err != nil {
				result.Valid = false
				result.Error = err.Error()
				env.logger.Error("tree verification failed", "root", root.Short(), "error", err)
			} else {
				summary, err := tree.Measure(ctx, env.store, root)
				if err != nil {
					return err
				}
				result.Summary = &summary
			}

			if params.outputJSON {
				if err := cli.WriteJSON(out, result); err != nil {
					return err
				}
			} else if err := printVerify(out, result); err != nil {
				return err
			}
			if !result.Valid {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func printVerify(out io.Writer, result verifyResult) error {
	if !result.Valid {
		_, err := fmt.Fprintf(out, "FAILED %s: %s\n", result.Root, result.Error)
		return err
	}
	summary := result.Summary
	tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "OK\t%s\n", result.Root)
	fmt.Fprintf(tw, "nodes:\t%d\n", summary.Nodes)
	fmt.Fprintf(tw, "leaves:\t%d\n", summary.Leaves)
	fmt.Fprintf(tw, "depth:\t%d\n", summary.Depth)
	fmt.Fprintf(tw, "messages:\t%d\n", summary.Messages)
	fmt.Fprintf(tw, "operations:\t%d\n", summary.Operations)
	fmt.Fprintf(tw, "content size:\t%d\n", summary.ContentSize)
	return tw.Flush()
}
