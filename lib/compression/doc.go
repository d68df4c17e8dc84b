// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compression provides the tagged block codecs lib/treestore
// applies to serialized nodes before they reach disk.
//
// Each stored row records the [Tag] it was written with and its
// uncompressed size, so the configured codec can change at any time
// without rewriting existing rows, and decompression verifies the
// output length exactly.
//
// Codecs:
//
//   - [None]: stored as-is.
//   - [LZ4]: LZ4 block compression, fastest decode.
//   - [Zstd]: zstd at the default level, best ratio for the CBOR and
//     JSON-like payloads that make up message content.
//
// [Auto] is a write-time policy, never stored: it probes the data
// with zstd and picks zstd, LZ4 or none by achieved ratio. Any codec
// that fails to shrink its input falls back to [None].
package compression
