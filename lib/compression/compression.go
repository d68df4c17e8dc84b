// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the codec a payload was compressed with. Values
// other than Auto are persisted; changing them breaks existing
// databases.
type Tag uint8

const (
	// None stores data uncompressed.
	None Tag = 0

	// LZ4 is LZ4 block compression.
	LZ4 Tag = 1

	// Zstd is zstd compression at the default level.
	Zstd Tag = 2

	// Auto selects a codec per payload at write time. It is never
	// stored and Decode rejects it.
	Auto Tag = 255
)

// String returns the configuration name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Auto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseTag parses a tag from its configuration name.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "auto":
		return Auto, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, zstd or auto)", name)
	}
}

// ErrIncompressible is returned by Compress when the codec output is
// not smaller than its input. Encode handles it by storing the data
// uncompressed.
var ErrIncompressible = errors.New("data is incompressible")

// MaxDecodedSize is the largest payload Decode will produce. Sizes are
// read back from storage, so a larger one means a corrupt row.
const MaxDecodedSize = 1 << 30

// lz4MaxRatio bounds how much an LZ4 block can expand: one input byte
// never yields more than 255 output bytes.
const lz4MaxRatio = 255

// ErrSizeLimit is wrapped when a recorded uncompressed size cannot be
// produced from the stored bytes.
var ErrSizeLimit = errors.New("uncompressed size out of range")

// Encode compresses data with the preferred codec, resolving Auto by
// probing. It returns the bytes to store and the tag that decodes
// them. Incompressible data is returned unchanged with None.
func Encode(data []byte, preferred Tag) ([]byte, Tag, error) {
	tag := preferred
	if tag == Auto {
		tag = Select(data)
	}

	compressed, err := Compress(data, tag)
	if err != nil {
		if errors.Is(err, ErrIncompressible) {
			return data, None, nil
		}
		return nil, 0, err
	}
	return compressed, tag, nil
}

// Compress compresses data with a concrete codec. For None it returns
// data itself (no copy).
func Compress(data []byte, tag Tag) ([]byte, error) {
	switch tag {
	case None:
		return data, nil
	case LZ4:
		return compressLZ4(data)
	case Zstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression tag %s", tag)
	}
}

// Decode reverses Compress. uncompressedSize must equal the original
// length; a mismatch is an error, which catches truncated or
// corrupted rows before they reach the CBOR decoder.
func Decode(data []byte, tag Tag, uncompressedSize int) ([]byte, error) {
	if uncompressedSize < 0 || uncompressedSize > MaxDecodedSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrSizeLimit, uncompressedSize, MaxDecodedSize)
	}
	switch tag {
	case None:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(data), uncompressedSize)
		}
		return data, nil
	case LZ4:
		return decompressLZ4(data, uncompressedSize)
	case Zstd:
		return decompressZstd(data, uncompressedSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag %s", tag)
	}
}

// Select probes data with zstd. A ratio of at least 1.5 selects Zstd,
// at least 1.1 selects LZ4 (cheaper to decode for a modest gain), and
// anything less selects None.
func Select(data []byte) Tag {
	if len(data) == 0 {
		return None
	}

	compressed := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(compressed))

	switch {
	case ratio >= 1.5:
		return Zstd
	case ratio >= 1.1:
		return LZ4
	default:
		return None
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, ErrIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	if uncompressedSize > len(compressed)*lz4MaxRatio {
		return nil, fmt.Errorf("lz4 decompress: %w: %d bytes from a %d-byte block",
			ErrSizeLimit, uncompressedSize, len(compressed))
	}
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll, so one of each serves every goroutine.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compression: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecodedSize))
	if err != nil {
		panic("compression: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, ErrIncompressible
	}
	return compressed, nil
}

// zstdCapacityHint caps the buffer preallocated from the recorded size;
// DecodeAll grows it when a frame really is larger.
const zstdCapacityHint = 1 << 20

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, min(uncompressedSize, zstdCapacityHint)))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
