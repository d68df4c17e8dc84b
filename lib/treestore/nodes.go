// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package treestore

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sessiontree/lib/codec"
	"github.com/bureau-foundation/sessiontree/lib/compression"
	"github.com/bureau-foundation/sessiontree/lib/digest"
	"github.com/bureau-foundation/sessiontree/lib/tree"
)

// encodedNode is a node prepared for writing: everything that can fail
// without touching the database has already happened.
type encodedNode struct {
	node     *tree.Node
	codec    compression.Tag
	rawSize  int
	data     []byte
	children []byte
}

// nodeRow is a nodes table row as read back.
type nodeRow struct {
	codec   compression.Tag
	rawSize int
	data    []byte
}

// StoreNode validates node and writes it, with its parent_child row,
// in one transaction. The node is cached after the commit.
//
// Storing a hash that is already present is a no-op when the stored
// node has the same identity (the first write's timestamps and parent
// are kept). A different node or a corrupt row under that hash is an
// *IntegrityError and nothing is written.
func (s *Store) StoreNode(ctx context.Context, node *tree.Node) error {
	if node == nil {
		return &Error{Op: "store node", Kind: KindSerialization, Err: errors.New("nil node")}
	}
	subject := node.Hash().String()

	encoded, err := s.encode(node)
	if err != nil {
		return wrap("store node", subject, err)
	}

	var stored *tree.Node
	err = s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		var err error
		stored, err = s.writeNode(conn, encoded)
		return err
	})
	if err != nil {
		return wrap("store node", subject, err)
	}

	s.cache.put(stored)
	s.cache.evict()
	return nil
}

// GetNode returns the node stored under hash, from the cache when
// possible. A missing hash is (nil, false, nil). Undecodable data is
// an *Error of kind KindSerialization; data that decodes to a
// different hash is an *IntegrityError.
func (s *Store) GetNode(ctx context.Context, hash digest.Digest) (*tree.Node, bool, error) {
	if node, found := s.cache.get(hash); found {
		return node, true, nil
	}

	var row nodeRow
	var found bool
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		row, found, err = readNodeRow(conn, hash)
		return err
	})
	if err != nil {
		return nil, false, wrap("get node", hash.String(), err)
	}
	if !found {
		return nil, false, nil
	}

	node, err := decodeRow(hash, row)
	if err != nil {
		return nil, false, wrap("get node", hash.String(), err)
	}

	s.cache.put(node)
	s.cache.evict()
	return node, true, nil
}

// HasNode reports whether hash is stored.
func (s *Store) HasNode(ctx context.Context, hash digest.Digest) (bool, error) {
	if s.cache.contains(hash) {
		return true, nil
	}
	var found bool
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "SELECT 1 FROM nodes WHERE hash = ?", &sqlitex.ExecOptions{
			Args: []any{hash[:]},
			ResultFunc: func(*sqlite.Stmt) error {
				found = true
				return nil
			},
		})
		if err != nil {
			return ioError(err)
		}
		return nil
	})
	if err != nil {
		return false, wrap("has node", hash.String(), err)
	}
	return found, nil
}

// Children returns the child map recorded for hash in the
// parent_child table, without decoding the node itself.
func (s *Store) Children(ctx context.Context, hash digest.Digest) (map[string]digest.Digest, bool, error) {
	var encoded []byte
	var found bool
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "SELECT children FROM parent_child WHERE hash = ?", &sqlitex.ExecOptions{
			Args: []any{hash[:]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				encoded = columnBytes(stmt, 0)
				return nil
			},
		})
		if err != nil {
			return ioError(err)
		}
		return nil
	})
	if err != nil {
		return nil, false, wrap("children", hash.String(), err)
	}
	if !found {
		return nil, false, nil
	}

	children := make(map[string]digest.Digest)
	if err := codec.Unmarshal(encoded, &children); err != nil {
		return nil, false, &Error{Op: "children", Kind: KindSerialization, Subject: hash.String(), Err: err}
	}
	return children, true, nil
}

// encode validates, serializes and compresses node.
func (s *Store) encode(node *tree.Node) (encodedNode, error) {
	if err := tree.Validate(node); err != nil {
		var mismatch *tree.HashMismatchError
		if errors.As(err, &mismatch) {
			return encodedNode{}, &IntegrityError{
				Hash:     mismatch.Expected,
				Computed: mismatch.Computed,
				Reason:   "node hash does not match its fields",
			}
		}
		return encodedNode{}, serializationError(err)
	}

	raw, err := node.MarshalBinary()
	if err != nil {
		return encodedNode{}, serializationError(err)
	}
	data, tag, err := compression.Encode(raw, s.compression)
	if err != nil {
		return encodedNode{}, serializationError(fmt.Errorf("compressing node: %w", err))
	}
	children, err := codec.Marshal(node.ChildMap())
	if err != nil {
		return encodedNode{}, serializationError(fmt.Errorf("encoding children: %w", err))
	}

	return encodedNode{
		node:     node,
		codec:    tag,
		rawSize:  len(raw),
		data:     data,
		children: children,
	}, nil
}

// writeNode inserts an encoded node and its parent_child row, or
// confirms that an identical node is already stored. It returns the
// node that is authoritative for the hash afterwards. Must run inside
// a write transaction.
func (s *Store) writeNode(conn *sqlite.Conn, encoded encodedNode) (*tree.Node, error) {
	hash := encoded.node.Hash()

	existing, found, err := readNodeRow(conn, hash)
	if err != nil {
		return nil, err
	}
	if found {
		stored, err := decodeRow(hash, existing)
		if err != nil {
			return nil, &IntegrityError{Hash: hash, Reason: fmt.Sprintf("existing row is unreadable: %v", err)}
		}
		if !stored.SameIdentity(encoded.node) {
			return nil, &IntegrityError{Hash: hash, Computed: stored.Hash(), Reason: "a different node is already stored under this hash"}
		}
		return stored, nil
	}

	err = sqlitex.Execute(conn,
		"INSERT INTO nodes (hash, codec, raw_size, data) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{hash[:], int64(encoded.codec), int64(encoded.rawSize), encoded.data}})
	if err != nil {
		return nil, ioError(fmt.Errorf("inserting node: %w", err))
	}

	if err := s.runAfterNodeWrite(); err != nil {
		return nil, err
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO parent_child (hash, children) VALUES (?, ?)
		 ON CONFLICT (hash) DO UPDATE SET children = excluded.children`,
		&sqlitex.ExecOptions{Args: []any{hash[:], encoded.children}})
	if err != nil {
		return nil, ioError(fmt.Errorf("inserting parent_child: %w", err))
	}
	return encoded.node, nil
}

func (s *Store) runAfterNodeWrite() error {
	if s.afterNodeWrite == nil {
		return nil
	}
	return s.afterNodeWrite()
}

func readNodeRow(conn *sqlite.Conn, hash digest.Digest) (nodeRow, bool, error) {
	var row nodeRow
	var found bool
	err := sqlitex.Execute(conn, "SELECT codec, raw_size, data FROM nodes WHERE hash = ?", &sqlitex.ExecOptions{
		Args: []any{hash[:]},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			row.codec = compression.Tag(stmt.ColumnInt64(0))
			row.rawSize = int(stmt.ColumnInt64(1))
			row.data = columnBytes(stmt, 2)
			return nil
		},
	})
	if err != nil {
		return nodeRow{}, false, ioError(fmt.Errorf("reading node: %w", err))
	}
	return row, found, nil
}

// decodeRow decompresses and decodes a row and checks that it holds
// the node its key names.
func decodeRow(hash digest.Digest, row nodeRow) (*tree.Node, error) {
	raw, err := compression.Decode(row.data, row.codec, row.rawSize)
	if err != nil {
		return nil, serializationError(err)
	}

	node, err := tree.DecodeNode(raw)
	if err != nil {
		var mismatch *tree.HashMismatchError
		if errors.As(err, &mismatch) {
			return nil, &IntegrityError{Hash: hash, Computed: mismatch.Computed, Reason: "stored node does not match its recorded hash"}
		}
		return nil, serializationError(err)
	}
	if node.Hash() != hash {
		return nil, &IntegrityError{Hash: hash, Computed: node.Hash(), Reason: "node is stored under the wrong key"}
	}
	return node, nil
}
