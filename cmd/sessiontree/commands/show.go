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
	"github.com/bureau-foundation/sessiontree/lib/codec"
	"github.com/bureau-foundation/sessiontree/lib/digest"
	"github.com/bureau-foundation/sessiontree/lib/tree"
)

// nodeView is the JSON rendering of a node.
type nodeView struct {
	Hash        digest.Digest     `json:"hash"`
	Kind        tree.Kind         `json:"kind"`
	Metadata    tree.Metadata     `json:"metadata"`
	Parent      *digest.Digest    `json:"parent,omitempty"`
	Children    []tree.ChildEntry `json:"children"`
	ContentSize int               `json:"content_size"`
}

func newNodeView(node *tree.Node) nodeView {
	view := nodeView{
		Hash:        node.Hash(),
		Kind:        node.Kind(),
		Metadata:    node.Metadata(),
		Children:    node.Children(),
		ContentSize: len(node.Content()),
	}
	if node.HasParent() {
		parent := node.Parent()
		view.Parent = &parent
	}
	return view
}

func showCommand(out io.Writer) *cli.Command {
	var params storeParams
	var raw bool
	return &cli.Command{
		Name:    "show",
		Summary: "Print one node",
		Description: "Print a node's kind, counters, parent and children. With --raw, print\n" +
			"the CBOR diagnostic notation of its stored encoding instead.",
		Usage: "sessiontree show <ref> [flags]",
		Examples: []cli.Example{
			{Description: "Show the root of session s1", Command: "sessiontree show session:s1"},
			{Description: "Dump the encoding of a node", Command: "sessiontree show --raw <digest>"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			params.bind(flagSet)
			flagSet.BoolVar(&raw, "raw", false, "print the CBOR diagnostic notation of the node encoding")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("show takes exactly one ref")
			}
			env, err := params.open("show")
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			hash, err := resolveRef(ctx, env.store, args[0])
			if err != nil {
				return err
			}
			node, found, err := env.store.GetNode(ctx, hash)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("node %s not found", hash)
			}

			if raw {
				encoded, err := node.MarshalBinary()
				if err != nil {
					return err
				}
				diagnostic, err := codec.Diagnose(encoded)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, diagnostic)
				return err
			}
			if params.outputJSON {
				return cli.WriteJSON(out, newNodeView(node))
			}
			return printNode(out, node)
		},
	}
}

func printNode(out io.Writer, node *tree.Node) error {
	metadata := node.Metadata()
	tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "hash:\t%s\n", node.Hash())
	fmt.Fprintf(tw, "kind:\t%s\n", node.Kind().Label())
	if node.HasParent() {
		fmt.Fprintf(tw, "parent:\t%s\n", node.Parent())
	} else {
		fmt.Fprintf(tw, "parent:\t-\n")
	}
	fmt.Fprintf(tw, "messages:\t%d\n", metadata.MessageCount)
	fmt.Fprintf(tw, "operations:\t%d\n", metadata.OperationCount)
	fmt.Fprintf(tw, "content size:\t%d\n", metadata.ContentSize)
	fmt.Fprintf(tw, "created:\t%s\n", formatTime(metadata.Created()))
	fmt.Fprintf(tw, "updated:\t%s\n", formatTime(metadata.Updated()))
	if session := node.Kind().Session; session != nil {
		fmt.Fprintf(tw, "session start:\t%s\n", formatTime(session.Start()))
		fmt.Fprintf(tw, "session end:\t%s\n", formatTime(session.End()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	children := node.Children()
	if len(children) == 0 {
		return nil
	}
	fmt.Fprintf(out, "children (%d):\n", len(children))
	tw = tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
	for _, child := range children {
		fmt.Fprintf(tw, "  %s\t%s\n", child.Key, child.Hash.Short())
	}
	return tw.Flush()
}

