// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package treestore persists tree nodes in a single SQLite database
// with secondary indices, write batching and a bounded read-through
// cache.
//
// # Tables
//
//   - nodes: hash → compressed canonical CBOR node, with the codec tag
//     and uncompressed size of each row.
//   - parent_child: hash → CBOR child map, duplicated from the node for
//     adjacency lookups without decoding whole nodes.
//   - session_index: session id → session root hash.
//   - project_index: project name → project root hash.
//   - metadata: key → CBOR value (schema_version, created_at,
//     last_compaction).
//
// # Transactions
//
// [Store.StoreNode] writes the nodes row and the parent_child row in
// one IMMEDIATE transaction: after a failure neither table reflects the
// attempted write. A [Batch] extends this to any number of nodes plus
// session and project index entries. Index operations outside a batch
// run in their own transactions, after the tree they point into has
// been stored.
//
// Nodes are write-once. Storing a node whose hash is already present
// is a no-op when the stored node has the same identity; a different
// node, or an undecodable row, under that hash is an
// *[IntegrityError].
//
// # Cache
//
// Reads go through an in-memory map of decoded nodes guarded by a
// read-write lock. When the map grows past its capacity it is shrunk to
// half capacity by evicting arbitrary entries. The database is always
// the source of truth; the cache only saves decoding.
//
// # Errors
//
// Failures are *[Error] values carrying the operation, an [ErrorKind]
// and the hash, session id or path involved. Corruption is reported
// separately as *[IntegrityError]. A missing node or index entry is
// not an error: lookups return found == false.
package treestore
