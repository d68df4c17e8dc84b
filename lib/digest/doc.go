// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest implements the content hashing layer of sessiontree:
// a fixed-width 32-byte BLAKE3 [Digest] type with hex encoding, and
// the domain-separated hash functions every other package builds on.
//
// Every hashing purpose writes a literal ASCII tag before its payload
// (see [Domain]). The same bytes hashed for two different purposes
// therefore never produce the same digest, so a byte sequence crafted
// to collide under one purpose cannot be replayed under another:
//
//   - [Combine] hashes an ordered list of digests under
//     [DomainCombine]. The input count is written before the digests,
//     so [a, b] and [a, b, a] never share a prefix-extended encoding.
//   - [HashStructured] encodes an arbitrary value with the canonical
//     CBOR encoder in lib/codec and hashes it under [DomainRecord].
//   - Tree nodes are hashed under [DomainNode] by lib/tree through the
//     incremental [Hasher].
//
// [HashBytes] is the one untagged function: a direct BLAKE3 digest of
// its input, for callers that need a plain content checksum.
//
// Integers written into hash inputs are always unsigned 64-bit
// little-endian. The hex form (64 lowercase characters) is the only
// textual representation of identity and is stable across releases.
//
// This package depends only on lib/codec.
package digest
