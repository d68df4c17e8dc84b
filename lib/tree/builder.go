// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/sessiontree/lib/clock"
	"github.com/bureau-foundation/sessiontree/lib/digest"
)

// BuilderConfig controls how a [Builder] constructs nodes. Start from
// [DefaultBuilderConfig]; the zero value disables content and
// validation.
type BuilderConfig struct {
	// IncludeContent stores each record's encoded form as the leaf's
	// content. Without it leaves carry only their kind and counters,
	// and ContentSize is zero throughout the tree.
	IncludeContent bool

	// ValidateHashes re-derives the hash of every node before it is
	// returned or added to the working set.
	ValidateHashes bool

	// Workers bounds the goroutines that build leaves in parallel.
	// Zero or negative means runtime.NumCPU().
	Workers int

	// Clock stamps CreatedAt and UpdatedAt. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives build progress at debug level. Nil discards.
	Logger *slog.Logger
}

// DefaultBuilderConfig returns a configuration with content inclusion
// and hash validation enabled.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		IncludeContent: true,
		ValidateHashes: true,
	}
}

// Builder assembles records into a tree and keeps every node it
// creates in a working set keyed by hash. The working set lives only as
// long as the Builder: persist what it holds, then [Builder.Reset] or
// drop the Builder.
//
// Builder is safe for concurrent use.
type Builder struct {
	config  BuilderConfig
	clock   clock.Clock
	logger  *slog.Logger
	workers int

	mutex sync.RWMutex
	nodes map[digest.Digest]*Node
}

// NewBuilder returns a Builder with an empty working set.
func NewBuilder(config BuilderConfig) *Builder {
	builderClock := config.Clock
	if builderClock == nil {
		builderClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Builder{
		config:  config,
		clock:   builderClock,
		logger:  logger,
		workers: workers,
		nodes:   make(map[digest.Digest]*Node),
	}
}

// BuildLeaf builds a message or operation leaf. Counters are (1, 0,
// content size) for a message and (0, 1, content size) for an
// operation.
func (b *Builder) BuildLeaf(record Record) (*Node, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidKind)
	}
	kind := record.leafKind()

	var content []byte
	if b.config.IncludeContent {
		encoded, err := record.encodeContent()
		if err != nil {
			return nil, &HashError{Err: fmt.Errorf("encoding %s content: %w", kind.Label(), err)}
		}
		content = encoded
	}

	now := b.now()
	metadata := Metadata{
		ContentSize: uint64(len(content)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if kind.Tag == KindMessage {
		metadata.MessageCount = 1
	} else {
		metadata.OperationCount = 1
	}

	leaf, err := NewNode(kind, metadata, nil, digest.Null, content)
	if err != nil {
		return nil, err
	}
	if err := b.admit(leaf); err != nil {
		return nil, err
	}
	return leaf, nil
}

// BuildParent aggregates already-built children under a node of the
// given kind. Each child's key comes from its own kind, its counters
// are summed into the parent, and input order does not matter. Two
// children with the same key are a *[DuplicateChildError]; a child the
// parent kind cannot contain is an *[UnexpectedKindError].
//
// The children are re-added to the working set with their parent
// reference set to the new node.
func (b *Builder) BuildParent(kind Kind, children []*Node) (*Node, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if kind.Tag.IsLeaf() {
		return nil, fmt.Errorf("%w: %s is a leaf kind", ErrInvalidKind, kind.Tag)
	}

	childMap := make(map[string]digest.Digest, len(children))
	var metadata Metadata
	for _, child := range children {
		if child == nil {
			return nil, fmt.Errorf("building %s: nil child", kind.Label())
		}
		if !kind.Tag.accepts(child.kind.Tag) {
			return nil, &UnexpectedKindError{Parent: kind.Tag, Child: child.kind.Tag}
		}
		key, _ := child.kind.ChildKey()
		if _, exists := childMap[key]; exists {
			return nil, &DuplicateChildError{Key: key}
		}
		childMap[key] = child.hash
		metadata.accumulate(child.metadata)
	}

	now := b.now()
	metadata.CreatedAt = now
	metadata.UpdatedAt = now

	parent, err := NewNode(kind, metadata, childMap, digest.Null, nil)
	if err != nil {
		return nil, err
	}
	if err := b.admit(parent); err != nil {
		return nil, err
	}

	b.mutex.Lock()
	for _, child := range children {
		b.nodes[child.hash] = child.WithParent(parent.hash)
	}
	b.mutex.Unlock()

	return parent, nil
}

// BuildSessionTree builds a leaf for every message and operation in
// parallel, then the session node over them. The session's start and
// end times are the earliest and latest message timestamps. Zero
// messages is [ErrEmptySession].
func (b *Builder) BuildSessionTree(sessionID string, messages []MessageRecord, operations []OperationRecord) (*Node, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("building session %q: %w", sessionID, ErrEmptySession)
	}

	records := make([]Record, 0, len(messages)+len(operations))
	for _, message := range messages {
		records = append(records, message)
	}
	for _, operation := range operations {
		records = append(records, operation)
	}

	leaves, err := b.buildLeaves(records)
	if err != nil {
		return nil, fmt.Errorf("building session %q: %w", sessionID, err)
	}

	start, end := messageTimeRange(messages)
	kind := Kind{Tag: KindSession, Session: &SessionInfo{ID: sessionID, StartTime: start, EndTime: &end}}

	session, err := b.BuildParent(kind, leaves)
	if err != nil {
		return nil, fmt.Errorf("building session %q: %w", sessionID, err)
	}

	b.logger.Debug("built session tree",
		"session_id", sessionID,
		"messages", len(messages),
		"operations", len(operations),
		"hash", session.hash.Short(),
	)
	return session, nil
}

// BuildProjectTree builds a project node over session nodes. Zero
// sessions is allowed and yields zero counters. A non-session child is
// an *[UnexpectedKindError].
func (b *Builder) BuildProjectTree(name, path string, sessions []*Node) (*Node, error) {
	project, err := b.BuildParent(ProjectKind(name, path), sessions)
	if err != nil {
		return nil, fmt.Errorf("building project %q: %w", name, err)
	}
	b.logger.Debug("built project tree",
		"project", name,
		"sessions", len(sessions),
		"hash", project.hash.Short(),
	)
	return project, nil
}

// BuildRootTree builds the corpus root over project nodes.
func (b *Builder) BuildRootTree(projects []*Node) (*Node, error) {
	root, err := b.BuildParent(RootKind(), projects)
	if err != nil {
		return nil, fmt.Errorf("building root: %w", err)
	}
	return root, nil
}

// AddChild returns node with hash stored under key, stamped with the
// current time and added to the working set. Counters are left as
// they are.
func (b *Builder) AddChild(node *Node, key string, hash digest.Digest) (*Node, error) {
	updated, err := node.WithChild(key, hash)
	if err != nil {
		return nil, err
	}
	return b.restamp(updated)
}

// RemoveChild returns node without key. When key is absent the node is
// returned unchanged and false.
func (b *Builder) RemoveChild(node *Node, key string) (*Node, bool, error) {
	updated, removed, err := node.WithoutChild(key)
	if err != nil || !removed {
		return updated, removed, err
	}
	restamped, err := b.restamp(updated)
	if err != nil {
		return nil, false, err
	}
	return restamped, true, nil
}

// UpdateMetadata returns node with metadata replaced. UpdatedAt is
// taken from the clock; CreatedAt is kept from metadata.
func (b *Builder) UpdateMetadata(node *Node, metadata Metadata) (*Node, error) {
	updated, err := node.WithMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return b.restamp(updated)
}

// Node returns a node from the working set.
func (b *Builder) Node(hash digest.Digest) (*Node, bool) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	node, exists := b.nodes[hash]
	return node, exists
}

// GetNode implements [Resolver] over the working set. It never fails.
func (b *Builder) GetNode(_ context.Context, hash digest.Digest) (*Node, bool, error) {
	node, exists := b.Node(hash)
	return node, exists, nil
}

// Nodes returns every node in the working set, ordered by hash.
func (b *Builder) Nodes() []*Node {
	b.mutex.RLock()
	nodes := slices.Collect(maps.Values(b.nodes))
	b.mutex.RUnlock()

	slices.SortFunc(nodes, func(left, right *Node) int {
		return left.hash.Compare(right.hash)
	})
	return nodes
}

// Len returns the size of the working set.
func (b *Builder) Len() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.nodes)
}

// Reset empties the working set.
func (b *Builder) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.nodes = make(map[digest.Digest]*Node)
}

func (b *Builder) buildLeaves(records []Record) ([]*Node, error) {
	leaves := make([]*Node, len(records))

	var group errgroup.Group
	group.SetLimit(b.workers)
	for i, record := range records {
		group.Go(func() error {
			leaf, err := b.BuildLeaf(record)
			if err != nil {
				return err
			}
			leaves[i] = leaf
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return leaves, nil
}

func (b *Builder) restamp(node *Node) (*Node, error) {
	stamped := node.stamped(b.now())
	if err := b.admit(stamped); err != nil {
		return nil, err
	}
	return stamped, nil
}

// admit validates node when configured to and adds it to the working
// set.
func (b *Builder) admit(node *Node) error {
	if b.config.ValidateHashes {
		if err := Validate(node); err != nil {
			return err
		}
	}
	b.mutex.Lock()
	b.nodes[node.hash] = node
	b.mutex.Unlock()
	return nil
}

func (b *Builder) now() int64 {
	return b.clock.Now().UnixNano()
}

func messageTimeRange(messages []MessageRecord) (start, end int64) {
	start = unixNanos(messages[0].Timestamp)
	end = start
	for _, message := range messages[1:] {
		timestamp := unixNanos(message.Timestamp)
		start = min(start, timestamp)
		end = max(end, timestamp)
	}
	return start, end
}
