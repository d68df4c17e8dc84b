// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/sessiontree/lib/codec"
)

// Domain is the literal tag written before the payload of a hash.
// Tags are protocol constants: changing one invalidates every digest
// computed under it.
type Domain string

const (
	// DomainCombine separates aggregate digests built by [Combine].
	DomainCombine Domain = "MERKLE_COMBINE:"

	// DomainNode separates tree node digests.
	DomainNode Domain = "MERKLE_NODE:"

	// DomainRecord separates digests of structured records hashed by
	// [HashStructured].
	DomainRecord Domain = "STRUCTURED_RECORD:"
)

// Domains lists every hashing domain. Used by tests to check that the
// tags are pairwise distinct and prefix-free.
func Domains() []Domain {
	return []Domain{DomainCombine, DomainNode, DomainRecord}
}

// HashBytes computes the plain BLAKE3-256 digest of data.
func HashBytes(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// HashString computes the plain BLAKE3-256 digest of the bytes of s.
func HashString(s string) Digest {
	return HashBytes([]byte(s))
}

// Combine hashes an ordered list of digests into one. The encoding is
// the combine tag, the u64 count, then each digest's raw bytes, so the
// result depends on both the order and the number of inputs.
func Combine(digests ...Digest) Digest {
	hasher := NewHasher(DomainCombine)
	hasher.WriteUint64(uint64(len(digests)))
	for i := range digests {
		hasher.Write(digests[i][:])
	}
	return hasher.Sum()
}

// HashStructured encodes v with the canonical CBOR encoder and hashes
// the encoding under the record domain. Map key order in v never
// affects the result. The only failure is an encoding error (for
// example a channel or function value inside v).
func HashStructured(v any) (Digest, error) {
	encoded, err := codec.Marshal(v)
	if err != nil {
		return Null, fmt.Errorf("encoding record for hashing: %w", err)
	}
	hasher := NewHasher(DomainRecord)
	hasher.WriteLengthPrefixed(encoded)
	return hasher.Sum(), nil
}

// Hasher is an incremental domain-tagged BLAKE3 hasher. The domain tag
// is written on construction; callers append the payload with the
// Write methods and finish with Sum. A Hasher is not safe for
// concurrent use.
type Hasher struct {
	inner   *blake3.Hasher
	scratch [8]byte
}

// NewHasher returns a Hasher that has already absorbed the tag of
// domain.
func NewHasher(domain Domain) *Hasher {
	hasher := &Hasher{inner: blake3.New()}
	hasher.inner.Write([]byte(domain))
	return hasher
}

// Write appends raw bytes.
func (h *Hasher) Write(data []byte) {
	// blake3.Hasher.Write never returns an error.
	h.inner.Write(data)
}

// WriteString appends the bytes of s.
func (h *Hasher) WriteString(s string) {
	h.inner.Write([]byte(s))
}

// WriteUint64 appends value as 8 little-endian bytes.
func (h *Hasher) WriteUint64(value uint64) {
	binary.LittleEndian.PutUint64(h.scratch[:], value)
	h.inner.Write(h.scratch[:])
}

// WriteLengthPrefixed appends the u64 length of data followed by data.
// Use it for every variable-length field so adjacent fields cannot be
// re-split into a different valid input.
func (h *Hasher) WriteLengthPrefixed(data []byte) {
	h.WriteUint64(uint64(len(data)))
	h.inner.Write(data)
}

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() Digest {
	var digest Digest
	copy(digest[:], h.inner.Sum(nil))
	return digest
}
