// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"fmt"
	"maps"
	"time"

	"github.com/bureau-foundation/sessiontree/lib/codec"
)

// Metadata holds a node's aggregate counters and bookkeeping. Only the
// three counters are part of the node hash. For a parent node the
// counters are the sums of its children's counters when it was built;
// they are not recomputed when children are later added or removed.
type Metadata struct {
	MessageCount   uint64 `cbor:"message_count" json:"message_count"`
	OperationCount uint64 `cbor:"operation_count" json:"operation_count"`
	ContentSize    uint64 `cbor:"content_size" json:"content_size"`

	// CreatedAt and UpdatedAt are Unix nanoseconds.
	CreatedAt int64 `cbor:"created_at" json:"created_at"`
	UpdatedAt int64 `cbor:"updated_at" json:"updated_at"`

	// Custom holds free-form annotations. Values must be CBOR
	// encodable. A node holds the decoded form of what it was given:
	// non-negative integers as uint64, negative ones as int64, slices
	// as []any and nested maps as map[string]any, so a node read back
	// from storage carries exactly the same values. An empty map is
	// held as nil.
	Custom map[string]any `cbor:"custom,omitempty" json:"custom,omitempty"`
}

// Created returns CreatedAt as a UTC time.
func (m Metadata) Created() time.Time {
	return fromUnixNanos(m.CreatedAt)
}

// Updated returns UpdatedAt as a UTC time.
func (m Metadata) Updated() time.Time {
	return fromUnixNanos(m.UpdatedAt)
}

// sameCounters reports whether the hashed fields of m and other match.
func (m Metadata) sameCounters(other Metadata) bool {
	return m.MessageCount == other.MessageCount &&
		m.OperationCount == other.OperationCount &&
		m.ContentSize == other.ContentSize
}

func (m *Metadata) accumulate(child Metadata) {
	m.MessageCount += child.MessageCount
	m.OperationCount += child.OperationCount
	m.ContentSize += child.ContentSize
}

func (m Metadata) clone() Metadata {
	m.Custom = maps.Clone(m.Custom)
	return m
}

// normalized returns a copy of m whose Custom map has been passed
// through the codec.
func (m Metadata) normalized() (Metadata, error) {
	if len(m.Custom) == 0 {
		m.Custom = nil
		return m, nil
	}
	encoded, err := codec.Marshal(m.Custom)
	if err != nil {
		return Metadata{}, fmt.Errorf("encoding custom metadata: %w", err)
	}
	var custom map[string]any
	if err := codec.Unmarshal(encoded, &custom); err != nil {
		return Metadata{}, fmt.Errorf("decoding custom metadata: %w", err)
	}
	m.Custom = custom
	return m, nil
}
