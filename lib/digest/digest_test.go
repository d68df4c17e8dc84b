// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestHexRoundtrip(t *testing.T) {
	random := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		var original Digest
		for j := range original {
			original[j] = byte(random.UintN(256))
		}

		encoded := original.String()
		if len(encoded) != HexSize {
			t.Fatalf("String() length = %d, want %d", len(encoded), HexSize)
		}
		if encoded != strings.ToLower(encoded) {
			t.Fatalf("String() = %q is not lowercase", encoded)
		}

		parsed, err := Parse(encoded)
		if err != nil {
			t.Fatalf("Parse(%q): %v", encoded, err)
		}
		if parsed != original {
			t.Fatalf("roundtrip mismatch: got %s, want %s", parsed, original)
		}
	}
}

func TestParseAcceptsUppercase(t *testing.T) {
	lower := strings.Repeat("ab", Size)
	upper := strings.ToUpper(lower)

	fromLower, err := Parse(lower)
	if err != nil {
		t.Fatalf("Parse(lower): %v", err)
	}
	fromUpper, err := Parse(upper)
	if err != nil {
		t.Fatalf("Parse(upper): %v", err)
	}
	if fromLower != fromUpper {
		t.Error("uppercase and lowercase hex decoded to different digests")
	}
	if fromUpper.String() != lower {
		t.Errorf("String() = %q, want lowercase %q", fromUpper.String(), lower)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short", "invalid"},
		{"63 chars", strings.Repeat("a", 63)},
		{"65 chars", strings.Repeat("a", 65)},
		{"128 chars", strings.Repeat("a", 128)},
		{"non-hex", strings.Repeat("x", 64)},
		{"one bad char at end", strings.Repeat("0", 63) + "g"},
		{"whitespace", " " + strings.Repeat("0", 63)},
		{"multibyte", strings.Repeat("é", 32)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			parsed, err := Parse(test.input)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded with %s", test.input, parsed)
			}
			if !errors.Is(err, ErrMalformedDigest) {
				t.Errorf("error %v does not wrap ErrMalformedDigest", err)
			}
			var parseError *ParseError
			if !errors.As(err, &parseError) {
				t.Errorf("error %T is not *ParseError", err)
			}
			if parsed != Null {
				t.Errorf("failed Parse returned non-null digest %s", parsed)
			}
		})
	}
}

func TestIsValidHex(t *testing.T) {
	if !IsValidHex(strings.Repeat("a", 64)) {
		t.Error("64 'a' characters should be valid")
	}
	if !IsValidHex(strings.Repeat("0123456789abcdef", 4)) {
		t.Error("all hex digits should be valid")
	}
	if IsValidHex(strings.Repeat("x", 64)) {
		t.Error("64 'x' characters should be invalid")
	}
	if IsValidHex(strings.Repeat("a", 63)) {
		t.Error("63 characters should be invalid")
	}
	if IsValidHex(strings.Repeat("a", 65)) {
		t.Error("65 characters should be invalid")
	}
}

func TestFromBytes(t *testing.T) {
	raw := make([]byte, Size)
	for i := range raw {
		raw[i] = byte(i)
	}
	digest, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if string(digest.Bytes()) != string(raw) {
		t.Error("Bytes() does not match the input")
	}

	// The returned slice is a copy.
	out := digest.Bytes()
	out[0] = 0xff
	if digest[0] == 0xff {
		t.Error("mutating Bytes() output changed the digest")
	}

	for _, length := range []int{0, 31, 33} {
		if _, err := FromBytes(make([]byte, length)); !errors.Is(err, ErrMalformedDigest) {
			t.Errorf("FromBytes(len %d) error = %v, want ErrMalformedDigest", length, err)
		}
	}
}

func TestNull(t *testing.T) {
	if !Null.IsNull() {
		t.Error("Null.IsNull() = false")
	}
	if Null.String() != strings.Repeat("0", 64) {
		t.Errorf("Null.String() = %q", Null.String())
	}
	if HashBytes(nil).IsNull() {
		t.Error("hash of empty input is null")
	}
	var one Digest
	one[Size-1] = 1
	if one.IsNull() {
		t.Error("non-zero digest reported as null")
	}
}

func TestCompare(t *testing.T) {
	var low, high Digest
	low[0] = 1
	high[0] = 2

	if low.Compare(high) != -1 || high.Compare(low) != 1 || low.Compare(low) != 0 {
		t.Error("Compare does not order bytewise")
	}
	if !low.Less(high) || high.Less(low) || low.Less(low) {
		t.Error("Less is inconsistent with Compare")
	}
}

func TestJSONRoundtrip(t *testing.T) {
	original := HashString("json")
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"`+original.String()+`"` {
		t.Errorf("JSON = %s, want quoted hex", data)
	}

	var decoded Digest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("JSON roundtrip mismatch: got %s, want %s", decoded, original)
	}

	if err := json.Unmarshal([]byte(`"abc"`), &decoded); !errors.Is(err, ErrMalformedDigest) {
		t.Errorf("Unmarshal of short hex error = %v, want ErrMalformedDigest", err)
	}
}

func TestShort(t *testing.T) {
	digest := HashString("short")
	if digest.Short() != digest.String()[:12] {
		t.Errorf("Short() = %q, want prefix of %q", digest.Short(), digest.String())
	}
}
