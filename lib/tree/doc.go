// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tree implements the content-addressed node model and the
// builder that assembles activity records into a hash-identified
// hierarchy: root → projects → sessions → messages and operations.
//
// # Nodes
//
// A [Node] is immutable. Its hash is derived from its [Kind], the
// three aggregate counters in its [Metadata], its sorted child map and
// its content, and is computed once at construction. Every change
// ([Node.WithChild], [Node.WithoutChild], [Node.WithMetadata]) returns
// a new node with a recomputed hash; there is no way to mutate a node
// in place, so a node's hash cannot drift from its fields. Timestamps,
// custom metadata fields and the parent reference are informational
// and excluded from the hash.
//
// Children are references by [digest.Digest], not pointers. The tree
// is a DAG of hash references and any node can be evicted and reloaded
// independently; resolving a child means looking it up by hash through
// a [Resolver].
//
// The node hash is computed under [digest.DomainNode]:
//
//	MERKLE_NODE:
//	u64(len(cbor(kind))) cbor(kind)
//	CHILDREN: u64(count) { u64(len(key)) key digest }   in key order
//	CONTENT:  u64(len(content)) content                  if present
//	METADATA: u64(messages) u64(operations) u64(content size)
//
// All integers are little-endian.
//
// # Building
//
// [Builder] turns [MessageRecord] and [OperationRecord] values into
// leaf nodes and aggregates them into session, project and root nodes.
// Child keys come from the records' own identifiers ("msg:<id>",
// "op:<tool call id>", the bare session id, the bare project name), so
// identical input always produces an identical tree regardless of
// input order. The builder keeps every node it creates in a working
// set so the caller can persist the whole tree, not just its root.
//
// # Traversal
//
// [Measure], [FindPath] and [Verify] walk a tree through any
// [Resolver]: the builder's working set or lib/treestore.
package tree
