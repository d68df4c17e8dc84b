// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"fmt"

	"github.com/bureau-foundation/sessiontree/lib/codec"
	"github.com/bureau-foundation/sessiontree/lib/digest"
)

// wireNode is the canonical CBOR form of a Node.
type wireNode struct {
	Hash     digest.Digest            `cbor:"hash"`
	Kind     Kind                     `cbor:"kind"`
	Metadata Metadata                 `cbor:"metadata"`
	Children map[string]digest.Digest `cbor:"children,omitempty"`
	Parent   *digest.Digest           `cbor:"parent,omitempty"`
	Content  []byte                   `cbor:"content,omitempty"`
}

// MarshalBinary encodes the node with canonical CBOR. Equal nodes
// always encode to identical bytes.
func (n *Node) MarshalBinary() ([]byte, error) {
	wire := wireNode{
		Hash:     n.hash,
		Kind:     n.kind,
		Metadata: n.metadata,
		Children: n.children,
		Content:  n.content,
	}
	if !n.parent.IsNull() {
		parent := n.parent
		wire.Parent = &parent
	}
	data, err := codec.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding node %s: %w", n.hash.Short(), err)
	}
	return data, nil
}

// DecodeNode decodes the output of [Node.MarshalBinary], revalidates
// the kind and recomputes the hash. If the recomputed hash differs
// from the encoded one the error is a *[HashMismatchError].
func DecodeNode(data []byte) (*Node, error) {
	var wire wireNode
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding node: %w", err)
	}

	parent := digest.Null
	if wire.Parent != nil {
		parent = *wire.Parent
	}
	node, err := NewNode(wire.Kind, wire.Metadata, wire.Children, parent, wire.Content)
	if err != nil {
		return nil, fmt.Errorf("decoding node %s: %w", wire.Hash.Short(), err)
	}
	if node.hash != wire.Hash {
		return nil, &HashMismatchError{Expected: wire.Hash, Computed: node.hash}
	}
	return node, nil
}
