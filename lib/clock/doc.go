// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Library code never calls time.Now directly. Node metadata
// timestamps (lib/tree) and compaction bookkeeping (lib/treestore)
// read the time from a Clock carried in their config structs, so
// tests can pin timestamps exactly.
//
// In production:
//
//	builder := tree.NewBuilder(tree.BuilderConfig{Clock: clock.Real()})
//
// In tests:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	builder := tree.NewBuilder(tree.BuilderConfig{Clock: fake})
//	fake.Advance(time.Minute)
//
// Timestamps never contribute to content hashes, so the clock affects
// only informational metadata.
package clock
