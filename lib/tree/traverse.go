// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/sessiontree/lib/digest"
)

// Resolver looks up nodes by hash. A missing node is (nil, false,
// nil); an error means the lookup itself failed. Implemented by
// [Builder] and by lib/treestore.
type Resolver interface {
	GetNode(ctx context.Context, hash digest.Digest) (*Node, bool, error)
}

// Summary describes a node or a whole subtree.
type Summary struct {
	// Nodes counts distinct nodes. A child shared by two parents is
	// counted once.
	Nodes int `json:"nodes"`

	// Leaves counts nodes without children.
	Leaves int `json:"leaves"`

	// Depth is the number of nodes on the longest root-to-leaf path.
	Depth int `json:"depth"`

	Messages    uint64 `json:"messages"`
	Operations  uint64 `json:"operations"`
	ContentSize uint64 `json:"content_size"`
}

// Summarize describes a single node from its own fields: the node and
// its direct children, and its aggregate counters. It does not resolve
// anything.
func Summarize(node *Node) Summary {
	summary := Summary{
		Nodes:       1 + node.ChildCount(),
		Depth:       1,
		Messages:    node.metadata.MessageCount,
		Operations:  node.metadata.OperationCount,
		ContentSize: node.metadata.ContentSize,
	}
	if node.IsLeaf() {
		summary.Leaves = 1
	} else {
		summary.Depth = 2
	}
	return summary
}

// Measure walks the whole subtree under root. Unlike [Summarize], the
// counters come from the leaves actually reached: a message leaf adds
// one message, an operation leaf one operation, and every leaf adds
// its ContentSize. For a freshly built tree they equal the root's
// aggregate counters.
func Measure(ctx context.Context, resolver Resolver, root digest.Digest) (Summary, error) {
	walker := &walker{resolver: resolver, depths: make(map[digest.Digest]int)}
	var summary Summary
	depth, err := walker.measure(ctx, digest.Null, "", root, &summary)
	if err != nil {
		return Summary{}, err
	}
	summary.Depth = depth
	return summary, nil
}

// FindPath returns the child keys leading from root to target. The
// path to root itself is empty. Children are searched in key order, so
// when target is reachable along several paths the lexicographically
// first one is returned.
func FindPath(ctx context.Context, resolver Resolver, root, target digest.Digest) ([]string, bool, error) {
	walker := &walker{resolver: resolver, depths: make(map[digest.Digest]int)}
	path, found, err := walker.find(ctx, digest.Null, "", root, target)
	if err != nil || !found {
		return nil, false, err
	}
	return path, true, nil
}

// Verify checks every node reachable from root: each must resolve,
// hash to the digest it is referenced by, and pass [Validate].
// Dangling references are a *[MissingChildError]; a node that does not
// hash to its reference is a *[HashMismatchError].
func Verify(ctx context.Context, resolver Resolver, root digest.Digest) error {
	walker := &walker{resolver: resolver, depths: make(map[digest.Digest]int)}
	var summary Summary
	_, err := walker.measure(ctx, digest.Null, "", root, &summary)
	return err
}

type walker struct {
	resolver Resolver

	// depths memoizes the subtree depth of every node already
	// measured, and marks nodes already searched by find.
	depths map[digest.Digest]int
}

func (w *walker) resolve(ctx context.Context, parent digest.Digest, key string, hash digest.Digest) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, found, err := w.resolver.GetNode(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", hash.Short(), err)
	}
	if !found {
		if parent.IsNull() {
			return nil, fmt.Errorf("root %s: %w", hash, ErrNodeNotFound)
		}
		return nil, &MissingChildError{Parent: parent, Key: key, Child: hash}
	}
	if err := Validate(node); err != nil {
		return nil, err
	}
	if node.hash != hash {
		return nil, &HashMismatchError{Expected: hash, Computed: node.hash}
	}
	return node, nil
}

func (w *walker) measure(ctx context.Context, parent digest.Digest, key string, hash digest.Digest, summary *Summary) (int, error) {
	if depth, seen := w.depths[hash]; seen {
		return depth, nil
	}
	node, err := w.resolve(ctx, parent, key, hash)
	if err != nil {
		return 0, err
	}

	summary.Nodes++
	if node.IsLeaf() {
		summary.Leaves++
		switch node.kind.Tag {
		case KindMessage:
			summary.Messages++
		case KindOperation:
			summary.Operations++
		}
		summary.ContentSize += node.metadata.ContentSize
		w.depths[hash] = 1
		return 1, nil
	}

	deepest := 0
	for _, child := range node.Children() {
		depth, err := w.measure(ctx, hash, child.Key, child.Hash, summary)
		if err != nil {
			return 0, err
		}
		deepest = max(deepest, depth)
	}
	w.depths[hash] = deepest + 1
	return deepest + 1, nil
}

func (w *walker) find(ctx context.Context, parent digest.Digest, key string, hash, target digest.Digest) ([]string, bool, error) {
	if hash == target {
		return []string{}, true, nil
	}
	if _, searched := w.depths[hash]; searched {
		return nil, false, nil
	}

	node, err := w.resolve(ctx, parent, key, hash)
	if err != nil {
		return nil, false, err
	}
	for _, child := range node.Children() {
		path, found, err := w.find(ctx, hash, child.Key, child.Hash, target)
		if err != nil {
			return nil, false, err
		}
		if found {
			return append([]string{child.Key}, path...), true, nil
		}
	}
	w.depths[hash] = 0
	return nil, false, nil
}
