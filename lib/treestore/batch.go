// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package treestore

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/sessiontree/lib/digest"
	"github.com/bureau-foundation/sessiontree/lib/tree"
)

// Batch stages nodes and index entries for a single atomic commit.
// Dropping a Batch without committing leaves the store untouched.
// A Batch is not safe for concurrent use.
type Batch struct {
	store     *Store
	nodes     []*tree.Node
	staged    map[digest.Digest]struct{}
	sessions  map[string]digest.Digest
	projects  map[string]digest.Digest
	committed bool
}

// NewBatch returns an empty batch writing to s.
func (s *Store) NewBatch() *Batch {
	return &Batch{
		store:    s,
		staged:   make(map[digest.Digest]struct{}),
		sessions: make(map[string]digest.Digest),
		projects: make(map[string]digest.Digest),
	}
}

// AddNode stages a node. Staging the same hash twice keeps the first.
func (b *Batch) AddNode(node *tree.Node) error {
	if b.committed {
		return ErrBatchCommitted
	}
	if node == nil {
		return fmt.Errorf("treestore: batch: nil node")
	}
	if _, exists := b.staged[node.Hash()]; exists {
		return nil
	}
	b.staged[node.Hash()] = struct{}{}
	b.nodes = append(b.nodes, node)
	return nil
}

// AddNodes stages every node, typically a builder's working set.
func (b *Batch) AddNodes(nodes ...*tree.Node) error {
	for _, node := range nodes {
		if err := b.AddNode(node); err != nil {
			return err
		}
	}
	return nil
}

// AddSessionIndex stages a session index entry. A later entry for the
// same session replaces an earlier one.
func (b *Batch) AddSessionIndex(sessionID string, root digest.Digest) error {
	if b.committed {
		return ErrBatchCommitted
	}
	if sessionID == "" {
		return fmt.Errorf("treestore: batch: %w", ErrEmptyKey)
	}
	b.sessions[sessionID] = root
	return nil
}

// AddProjectIndex stages a project index entry.
func (b *Batch) AddProjectIndex(name string, root digest.Digest) error {
	if b.committed {
		return ErrBatchCommitted
	}
	if name == "" {
		return fmt.Errorf("treestore: batch: %w", ErrEmptyKey)
	}
	b.projects[name] = root
	return nil
}

// Len returns the number of staged nodes.
func (b *Batch) Len() int {
	return len(b.nodes)
}

// Commit encodes every staged node, then writes all nodes, their
// parent_child rows and all index entries in one transaction. On any
// failure the transaction is rolled back, nothing is cached, and the
// batch stays uncommitted so it can be retried or discarded. On
// success every written node is cached and the cache is evicted once.
func (b *Batch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchCommitted
	}
	store := b.store

	encoded := make([]encodedNode, 0, len(b.nodes))
	for _, node := range b.nodes {
		entry, err := store.encode(node)
		if err != nil {
			return wrap("commit batch", node.Hash().String(), err)
		}
		encoded = append(encoded, entry)
	}

	stored := make([]*tree.Node, 0, len(encoded))
	err := store.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, entry := range encoded {
			node, err := store.writeNode(conn, entry)
			if err != nil {
				return wrap("commit batch", entry.node.Hash().String(), err)
			}
			stored = append(stored, node)
		}
		for _, sessionID := range slices.Sorted(maps.Keys(b.sessions)) {
			if err := writeIndex(conn, sessionIndex, sessionID, b.sessions[sessionID]); err != nil {
				return wrap("commit batch", sessionID, err)
			}
		}
		for _, name := range slices.Sorted(maps.Keys(b.projects)) {
			if err := writeIndex(conn, projectIndex, name, b.projects[name]); err != nil {
				return wrap("commit batch", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return wrap("commit batch", "", err)
	}

	for _, node := range stored {
		store.cache.put(node)
	}
	store.cache.evict()

	store.logger.Debug("batch committed",
		"nodes", len(stored),
		"sessions", len(b.sessions),
		"projects", len(b.projects),
	)

	b.committed = true
	b.nodes = nil
	b.staged = nil
	return nil
}

// Discard drops everything staged. The batch can be reused.
func (b *Batch) Discard() {
	if b.committed {
		return
	}
	b.nodes = nil
	clear(b.staged)
	clear(b.sessions)
	clear(b.projects)
}
