// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"

	"github.com/bureau-foundation/sessiontree/cmd/sessiontree/cli"
)

// Root returns the sessiontree command tree. Command output goes to
// out; logs and help go to stderr.
func Root(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "sessiontree",
		Description: "Build, store and inspect content-addressed trees of agent session activity.",
		Subcommands: []*cli.Command{
			statsCommand(out),
			sessionsCommand(out),
			projectsCommand(out),
			showCommand(out),
			verifyCommand(out),
			compactCommand(out),
			importCommand(out),
			versionCommand(out),
		},
		Examples: []cli.Example{
			{
				Description: "Import a JSONC file of recorded sessions",
				Command:     "sessiontree import --config sessiontree.yaml sessions.jsonc",
			},
			{
				Description: "Inspect a session root",
				Command:     "sessiontree show session:4f1c2a",
			},
		},
	}
}
