// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for sessiontree.
//
// Configuration is loaded from a single file specified by either the
// SESSIONTREE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search. Commands run without a config file use [Resolved], the
// defaults with variables expanded.
//
// The file may contain development and production sections that
// override base values when [Config].Environment matches. Production
// defaults to JSON logs.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SESSIONTREE_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// This package depends on no other sessiontree packages; callers map
// the sections onto treestore.Config and tree.BuilderConfig.
package config
