// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the canonical CBOR encoding used throughout
// sessiontree.
//
// Canonical bytes matter here in two places:
//
//   - Hashing. lib/digest hashes the CBOR encoding of structured
//     records and lib/tree hashes the CBOR encoding of a node's kind.
//     The same logical value must always encode to the same bytes or
//     content addresses drift between runs.
//   - Storage. lib/treestore persists nodes, children maps, index
//     values and metadata as CBOR.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// decoder rejects duplicate map keys, so a stored children map cannot
// smuggle a second entry under an existing key.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types persisted by this module store time as int64 Unix nanoseconds
// rather than time.Time, so encoding never depends on a time zone or
// loses precision.
//
// [Diagnose] renders RFC 8949 diagnostic notation, used by the
// sessiontree CLI to show the raw encoding of a stored node.
//
// Struct types use `cbor` tags when they are only ever encoded as
// CBOR, and `json` tags when they are also emitted as JSON (for
// example record payloads and CLI output). fxamacker/cbor falls back
// to json tags when cbor tags are absent.
package codec
