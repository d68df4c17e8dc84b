// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"bytes"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/bureau-foundation/sessiontree/lib/codec"
	"github.com/bureau-foundation/sessiontree/lib/digest"
)

// Tags written between the sections of a node hash input.
const (
	sectionChildren = "CHILDREN:"
	sectionContent  = "CONTENT:"
	sectionMetadata = "METADATA:"
)

// Node is an immutable, hash-identified unit of the tree. All fields
// are unexported; accessors return copies, and every operation that
// changes hashed state returns a new Node with a recomputed hash.
//
// A *Node is safe to share between goroutines.
type Node struct {
	hash     digest.Digest
	kind     Kind
	metadata Metadata
	children map[string]digest.Digest
	parent   digest.Digest
	content  []byte
}

// ChildEntry is one (key, hash) pair of a node's child map.
type ChildEntry struct {
	Key  string        `json:"key"`
	Hash digest.Digest `json:"hash"`
}

// NewNode validates kind, copies the inputs and computes the hash.
// parent may be [digest.Null]. A zero-length content is treated as
// absent. Errors are [ErrInvalidKind] or [ErrEmptyChildKey] for bad
// input, or *[HashError] if the kind cannot be serialized.
func NewNode(kind Kind, metadata Metadata, children map[string]digest.Digest, parent digest.Digest, content []byte) (*Node, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if kind.Tag.IsLeaf() && len(children) > 0 {
		return nil, fmt.Errorf("%w: %s node cannot have children", ErrInvalidKind, kind.Tag)
	}
	if _, exists := children[""]; exists {
		return nil, ErrEmptyChildKey
	}

	normalized, err := metadata.normalized()
	if err != nil {
		return nil, &HashError{Err: err}
	}

	node := &Node{
		kind:     kind.clone(),
		metadata: normalized,
		children: maps.Clone(children),
		parent:   parent,
	}
	if node.children == nil {
		node.children = make(map[string]digest.Digest)
	}
	if len(content) > 0 {
		node.content = bytes.Clone(content)
	}

	hash, err := node.computeHash()
	if err != nil {
		return nil, err
	}
	node.hash = hash
	return node, nil
}

// Hash returns the node's identity.
func (n *Node) Hash() digest.Digest { return n.hash }

// Kind returns a copy of the node's kind.
func (n *Node) Kind() Kind { return n.kind.clone() }

// Tag returns the node's kind tag.
func (n *Node) Tag() KindTag { return n.kind.Tag }

// Metadata returns a copy of the node's metadata.
func (n *Node) Metadata() Metadata { return n.metadata.clone() }

// Parent returns the owning node's hash, or [digest.Null].
func (n *Node) Parent() digest.Digest { return n.parent }

// HasParent reports whether a parent reference is set.
func (n *Node) HasParent() bool { return !n.parent.IsNull() }

// Content returns a copy of the node's payload, or nil.
func (n *Node) Content() []byte { return bytes.Clone(n.content) }

// HasContent reports whether the node carries a payload.
func (n *Node) HasContent() bool { return n.content != nil }

// ChildCount returns the number of children.
func (n *Node) ChildCount() int { return len(n.children) }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// Child returns the hash stored under key.
func (n *Node) Child(key string) (digest.Digest, bool) {
	hash, exists := n.children[key]
	return hash, exists
}

// ChildKeys returns the child keys in lexicographic order.
func (n *Node) ChildKeys() []string {
	return slices.Sorted(maps.Keys(n.children))
}

// Children returns the child entries in key order.
func (n *Node) Children() []ChildEntry {
	entries := make([]ChildEntry, 0, len(n.children))
	for _, key := range n.ChildKeys() {
		entries = append(entries, ChildEntry{Key: key, Hash: n.children[key]})
	}
	return entries
}

// ChildMap returns a copy of the child map.
func (n *Node) ChildMap() map[string]digest.Digest {
	return maps.Clone(n.children)
}

// WithChild returns a node with hash stored under key, replacing any
// existing entry.
func (n *Node) WithChild(key string, hash digest.Digest) (*Node, error) {
	if key == "" {
		return nil, ErrEmptyChildKey
	}
	if n.kind.Tag.IsLeaf() {
		return nil, fmt.Errorf("%w: %s node cannot have children", ErrInvalidKind, n.kind.Tag)
	}
	updated := n.copy()
	updated.children[key] = hash
	return updated.rehash()
}

// WithoutChild returns a node without key. When key is not present it
// returns n itself and false.
func (n *Node) WithoutChild(key string) (*Node, bool, error) {
	if _, exists := n.children[key]; !exists {
		return n, false, nil
	}
	updated := n.copy()
	delete(updated.children, key)
	rehashed, err := updated.rehash()
	if err != nil {
		return nil, false, err
	}
	return rehashed, true, nil
}

// WithMetadata returns a node with metadata replaced.
func (n *Node) WithMetadata(metadata Metadata) (*Node, error) {
	normalized, err := metadata.normalized()
	if err != nil {
		return nil, &HashError{Err: err}
	}
	updated := n.copy()
	updated.metadata = normalized
	return updated.rehash()
}

// WithParent returns a node with the parent reference set. The hash is
// unchanged because the parent is not part of it.
func (n *Node) WithParent(parent digest.Digest) *Node {
	updated := n.copy()
	updated.parent = parent
	return updated
}

// SameIdentity reports whether n and other agree on the hash and on
// every field the hash covers.
func (n *Node) SameIdentity(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.hash == other.hash &&
		reflect.DeepEqual(n.kind, other.kind) &&
		maps.Equal(n.children, other.children) &&
		bytes.Equal(n.content, other.content) &&
		n.metadata.sameCounters(other.metadata)
}

// ComputeHash recomputes the hash of node from its current fields.
func ComputeHash(node *Node) (digest.Digest, error) {
	return node.computeHash()
}

// Validate recomputes the hash of node and returns a
// *[HashMismatchError] if it differs from the stored one.
func Validate(node *Node) error {
	computed, err := node.computeHash()
	if err != nil {
		return err
	}
	if computed != node.hash {
		return &HashMismatchError{Expected: node.hash, Computed: computed}
	}
	return nil
}

func (n *Node) computeHash() (digest.Digest, error) {
	encodedKind, err := codec.Marshal(n.kind)
	if err != nil {
		return digest.Null, &HashError{Err: fmt.Errorf("encoding kind: %w", err)}
	}

	hasher := digest.NewHasher(digest.DomainNode)
	hasher.WriteLengthPrefixed(encodedKind)

	hasher.WriteString(sectionChildren)
	hasher.WriteUint64(uint64(len(n.children)))
	for _, key := range n.ChildKeys() {
		hasher.WriteLengthPrefixed([]byte(key))
		child := n.children[key]
		hasher.Write(child[:])
	}

	if n.content != nil {
		hasher.WriteString(sectionContent)
		hasher.WriteLengthPrefixed(n.content)
	}

	hasher.WriteString(sectionMetadata)
	hasher.WriteUint64(n.metadata.MessageCount)
	hasher.WriteUint64(n.metadata.OperationCount)
	hasher.WriteUint64(n.metadata.ContentSize)

	return hasher.Sum(), nil
}

func (n *Node) copy() *Node {
	return &Node{
		hash:     n.hash,
		kind:     n.kind.clone(),
		metadata: n.metadata.clone(),
		children: maps.Clone(n.children),
		parent:   n.parent,
		content:  n.content,
	}
}

func (n *Node) rehash() (*Node, error) {
	hash, err := n.computeHash()
	if err != nil {
		return nil, err
	}
	n.hash = hash
	return n, nil
}

// stamped returns a copy with UpdatedAt replaced. Timestamps are not
// hashed, so the hash carries over.
func (n *Node) stamped(updatedAt int64) *Node {
	updated := n.copy()
	updated.metadata.UpdatedAt = updatedAt
	return updated
}
