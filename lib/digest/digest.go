// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Size is the length of a digest in bytes.
const Size = 32

// HexSize is the length of the hex encoding of a digest.
const HexSize = Size * 2

// Digest is a 32-byte BLAKE3 digest identifying content. The zero
// value is the distinguished [Null] digest.
//
// Digest is comparable and usable as a map key. CBOR encodes it as a
// 32-byte byte string; JSON encodes it as its hex form.
type Digest [Size]byte

// Null is the all-zero digest. No hash function in this package
// produces it for real input; it marks "no digest" (for example a node
// without a parent).
var Null Digest

// ErrMalformedDigest is wrapped by every [ParseError].
var ErrMalformedDigest = errors.New("malformed digest")

// ParseError reports a string that is not a valid hex digest.
type ParseError struct {
	// Input is the rejected string, truncated for display.
	Input string

	// Reason describes what was wrong with it.
	Reason string
}

func (err *ParseError) Error() string {
	return fmt.Sprintf("parsing digest %q: %s", err.Input, err.Reason)
}

// Unwrap returns [ErrMalformedDigest] so callers can use errors.Is.
func (err *ParseError) Unwrap() error {
	return ErrMalformedDigest
}

// FromBytes copies a 32-byte slice into a Digest. Any other length is
// an error.
func FromBytes(data []byte) (Digest, error) {
	var digest Digest
	if len(data) != Size {
		return digest, fmt.Errorf("digest is %d bytes, want %d: %w", len(data), Size, ErrMalformedDigest)
	}
	copy(digest[:], data)
	return digest, nil
}

// Parse decodes a 64-character hex string. Upper- and lowercase hex
// digits are both accepted; anything else, or any other length,
// returns a *ParseError.
func Parse(hexString string) (Digest, error) {
	var digest Digest
	if len(hexString) != HexSize {
		return digest, &ParseError{
			Input:  truncate(hexString),
			Reason: fmt.Sprintf("length %d, want %d hex characters", len(hexString), HexSize),
		}
	}
	if _, err := hex.Decode(digest[:], []byte(hexString)); err != nil {
		return Null, &ParseError{Input: truncate(hexString), Reason: err.Error()}
	}
	return digest, nil
}

// MustParse is like [Parse] but panics on error. Intended for
// constants in tests.
func MustParse(hexString string) Digest {
	digest, err := Parse(hexString)
	if err != nil {
		panic(err)
	}
	return digest
}

// IsValidHex reports whether s is exactly 64 hex characters.
func IsValidHex(s string) bool {
	if len(s) != HexSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		isDigit := c >= '0' && c <= '9'
		isLower := c >= 'a' && c <= 'f'
		isUpper := c >= 'A' && c <= 'F'
		if !isDigit && !isLower && !isUpper {
			return false
		}
	}
	return true
}

// String returns the 64-character lowercase hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, for log lines and tables.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}

// Bytes returns a copy of the digest as a byte slice.
func (d Digest) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, d[:])
	return out
}

// IsNull reports whether d is the all-zero digest.
func (d Digest) IsNull() bool {
	return d == Null
}

// Compare orders digests bytewise. It returns -1, 0 or +1.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

// Less reports whether d sorts before other.
func (d Digest) Less(other Digest) bool {
	return d.Compare(other) < 0
}

// MarshalJSON encodes the digest as its hex string.
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a hex string produced by MarshalJSON.
func (d *Digest) UnmarshalJSON(data []byte) error {
	var hexString string
	if err := json.Unmarshal(data, &hexString); err != nil {
		return fmt.Errorf("digest must be a JSON string: %w", err)
	}
	parsed, err := Parse(hexString)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func truncate(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
