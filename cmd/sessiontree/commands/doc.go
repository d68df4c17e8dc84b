// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the sessiontree command tree.
//
// Every command that touches the database takes the same flags:
// --config (a YAML file, see lib/config), --db (overrides
// storage.path) and --json. Without --config the SESSIONTREE_CONFIG
// variable is consulted, and without either the built-in defaults
// apply.
//
// Nodes are named on the command line by a ref: a 64-character hex
// digest, "session:<id>" or "project:<name>". Session and project refs
// resolve through the store's indices.
package commands
