// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package treestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sessiontree/lib/clock"
	"github.com/bureau-foundation/sessiontree/lib/compression"
	"github.com/bureau-foundation/sessiontree/lib/digest"
	"github.com/bureau-foundation/sessiontree/lib/tree"
)

var testEpoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func openInternalStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Path:  filepath.Join(t.TempDir(), "tree.db"),
		Clock: clock.Fake(testEpoch),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// buildTwoSessions returns a builder holding two one-message sessions
// and a project over them.
func buildTwoSessions(t *testing.T) (*tree.Builder, *tree.Node, *tree.Node, *tree.Node) {
	t.Helper()
	config := tree.DefaultBuilderConfig()
	config.Clock = clock.Fake(testEpoch)
	builder := tree.NewBuilder(config)

	first, err := builder.BuildSessionTree("s1", []tree.MessageRecord{
		{ID: "m1", Timestamp: testEpoch, Role: "user", Payload: "first"},
	}, nil)
	if err != nil {
		t.Fatalf("BuildSessionTree: %v", err)
	}
	second, err := builder.BuildSessionTree("s2", []tree.MessageRecord{
		{ID: "m2", Timestamp: testEpoch, Role: "user", Payload: "second"},
	}, nil)
	if err != nil {
		t.Fatalf("BuildSessionTree: %v", err)
	}
	project, err := builder.BuildProjectTree("proj", "/src/proj", []*tree.Node{first, second})
	if err != nil {
		t.Fatalf("BuildProjectTree: %v", err)
	}
	return builder, first, second, project
}

func countRows(t *testing.T, store *Store, table string) int64 {
	t.Helper()
	var count int64
	err := store.pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT count(*) FROM "+table, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return count
}

// overwriteRow replaces the stored bytes under hash and drops the
// cache so the next read goes to disk.
func overwriteRow(t *testing.T, store *Store, hash digest.Digest, codec compression.Tag, rawSize int, data []byte) {
	t.Helper()
	err := store.pool.Write(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"UPDATE nodes SET codec = ?, raw_size = ?, data = ? WHERE hash = ?",
			&sqlitex.ExecOptions{Args: []any{int64(codec), int64(rawSize), data, hash[:]}})
	})
	if err != nil {
		t.Fatalf("overwriting row: %v", err)
	}
	store.cache = newNodeCache(DefaultCacheEntries)
}

func TestStoreNodeAtomic(t *testing.T) {
	store := openInternalStore(t)
	_, first, _, _ := buildTwoSessions(t)

	injected := errors.New("injected failure")
	store.afterNodeWrite = func() error { return injected }

	err := store.StoreNode(context.Background(), first)
	if !errors.Is(err, injected) {
		t.Fatalf("StoreNode error = %v, want the injected failure", err)
	}
	if nodes := countRows(t, store, "nodes"); nodes != 0 {
		t.Errorf("nodes has %d rows after a failed write, want 0", nodes)
	}
	if links := countRows(t, store, "parent_child"); links != 0 {
		t.Errorf("parent_child has %d rows after a failed write, want 0", links)
	}
	if store.cache.contains(first.Hash()) {
		t.Error("a node from a failed write was cached")
	}

	store.afterNodeWrite = nil
	if err := store.StoreNode(context.Background(), first); err != nil {
		t.Fatalf("StoreNode after clearing the failure: %v", err)
	}
	if nodes := countRows(t, store, "nodes"); nodes != 1 {
		t.Errorf("nodes has %d rows, want 1", nodes)
	}
	if links := countRows(t, store, "parent_child"); links != 1 {
		t.Errorf("parent_child has %d rows, want 1", links)
	}
}

func TestBatchRollback(t *testing.T) {
	store := openInternalStore(t)
	builder, first, _, project := buildTwoSessions(t)

	batch := store.NewBatch()
	if err := batch.AddNodes(builder.Nodes()...); err != nil {
		t.Fatalf("AddNodes: %v", err)
	}
	if err := batch.AddSessionIndex("s1", first.Hash()); err != nil {
		t.Fatalf("AddSessionIndex: %v", err)
	}
	if err := batch.AddProjectIndex("proj", project.Hash()); err != nil {
		t.Fatalf("AddProjectIndex: %v", err)
	}

	// Fail partway through the node writes.
	writes := 0
	injected := errors.New("injected failure")
	store.afterNodeWrite = func() error {
		writes++
		if writes == 3 {
			return injected
		}
		return nil
	}

	if err := batch.Commit(context.Background()); !errors.Is(err, injected) {
		t.Fatalf("Commit error = %v, want the injected failure", err)
	}
	for _, table := range []string{"nodes", "parent_child", "session_index", "project_index"} {
		if rows := countRows(t, store, table); rows != 0 {
			t.Errorf("%s has %d rows after a rolled-back batch, want 0", table, rows)
		}
	}
	for _, node := range builder.Nodes() {
		if store.cache.contains(node.Hash()) {
			t.Errorf("node %s from a rolled-back batch was cached", node.Hash().Short())
		}
	}

	// The batch is still usable.
	store.afterNodeWrite = nil
	if err := batch.Commit(context.Background()); err != nil {
		t.Fatalf("retrying Commit: %v", err)
	}
	if rows := countRows(t, store, "nodes"); rows != int64(builder.Len()) {
		t.Errorf("nodes has %d rows after retry, want %d", rows, builder.Len())
	}
	if rows := countRows(t, store, "project_index"); rows != 1 {
		t.Errorf("project_index has %d rows after retry, want 1", rows)
	}
}

func TestBatchIntegrityFailureRollsBack(t *testing.T) {
	store := openInternalStore(t)
	ctx := context.Background()
	builder, first, second, _ := buildTwoSessions(t)

	if err := store.StoreNode(ctx, first); err != nil {
		t.Fatalf("StoreNode: %v", err)
	}
	// Put the second session's bytes under the first session's key.
	raw, err := second.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	overwriteRow(t, store, first.Hash(), compression.None, len(raw), raw)
	before := countRows(t, store, "nodes")

	batch := store.NewBatch()
	if err := batch.AddNodes(builder.Nodes()...); err != nil {
		t.Fatalf("AddNodes: %v", err)
	}
	err = batch.Commit(ctx)
	var integrityError *IntegrityError
	if !errors.As(err, &integrityError) {
		t.Fatalf("Commit error = %v, want *IntegrityError", err)
	}
	if integrityError.Hash != first.Hash() {
		t.Errorf("IntegrityError.Hash = %s, want %s", integrityError.Hash.Short(), first.Hash().Short())
	}
	if after := countRows(t, store, "nodes"); after != before {
		t.Errorf("nodes went from %d to %d rows across a failed batch", before, after)
	}
}

func TestGetNodeWrongKey(t *testing.T) {
	store := openInternalStore(t)
	ctx := context.Background()
	_, first, second, _ := buildTwoSessions(t)

	if err := store.StoreNode(ctx, first); err != nil {
		t.Fatalf("StoreNode: %v", err)
	}
	raw, err := second.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	overwriteRow(t, store, first.Hash(), compression.None, len(raw), raw)

	_, _, err = store.GetNode(ctx, first.Hash())
	var integrityError *IntegrityError
	if !errors.As(err, &integrityError) {
		t.Fatalf("GetNode error = %v, want *IntegrityError", err)
	}
	if integrityError.Computed != second.Hash() {
		t.Errorf("Computed = %s, want %s", integrityError.Computed.Short(), second.Hash().Short())
	}

	// Storing the real node again must not paper over the bad row.
	err = store.StoreNode(ctx, first)
	if !errors.As(err, &integrityError) {
		t.Fatalf("StoreNode over a bad row error = %v, want *IntegrityError", err)
	}
}

func TestGetNodeCorruptRow(t *testing.T) {
	tests := []struct {
		name    string
		codec   compression.Tag
		rawSize int
		data    []byte
	}{
		{"garbage", compression.None, 5, []byte("junk!")},
		{"size mismatch", compression.None, 99, []byte("junk!")},
		{"bad zstd", compression.Zstd, 10, []byte("not zstd")},
		{"unknown codec", compression.Tag(9), 5, []byte("junk!")},
		{"huge lz4 size", compression.LZ4, 1 << 62, []byte("junk!")},
		{"huge zstd size", compression.Zstd, 1 << 62, []byte("junk!")},
		{"lz4 size beyond block ratio", compression.LZ4, 1 << 20, []byte("junk!")},
		{"negative size", compression.Zstd, -1, []byte("junk!")},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := openInternalStore(t)
			ctx := context.Background()
			_, first, _, _ := buildTwoSessions(t)
			if err := store.StoreNode(ctx, first); err != nil {
				t.Fatalf("StoreNode: %v", err)
			}
			overwriteRow(t, store, first.Hash(), test.codec, test.rawSize, test.data)

			_, _, err := store.GetNode(ctx, first.Hash())
			var storeError *Error
			if !errors.As(err, &storeError) {
				t.Fatalf("GetNode error = %v, want *Error", err)
			}
			if storeError.Kind != KindSerialization {
				t.Errorf("Kind = %s, want serialization", storeError.Kind)
			}
			if storeError.Op != "get node" || storeError.Subject != first.Hash().String() {
				t.Errorf("Op/Subject = %q/%q", storeError.Op, storeError.Subject)
			}
		})
	}
}

func TestSchemaTooNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")
	store, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = store.pool.Write(context.Background(), func(conn *sqlite.Conn) error {
		return putMetadata(conn, metadataSchemaVersion, uint64(SchemaVersion+1))
	})
	if err != nil {
		t.Fatalf("bumping schema version: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = Open(Config{Path: path})
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("Open error = %v, want ErrSchemaTooNew", err)
	}
	var storeError *Error
	if !errors.As(err, &storeError) || storeError.Kind != KindTable {
		t.Errorf("Open error = %v, want KindTable", err)
	}
}

func TestNodeCacheEviction(t *testing.T) {
	cache := newNodeCache(4)
	config := tree.DefaultBuilderConfig()
	config.Clock = clock.Fake(testEpoch)
	builder := tree.NewBuilder(config)

	var hashes []digest.Digest
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		leaf, err := builder.BuildLeaf(tree.MessageRecord{ID: id, Timestamp: testEpoch, Role: "user"})
		if err != nil {
			t.Fatalf("BuildLeaf: %v", err)
		}
		cache.put(leaf)
		hashes = append(hashes, leaf.Hash())
	}

	cache.evict()
	stats := cache.stats()
	if stats.Size != 2 {
		t.Errorf("size after eviction = %d, want 2", stats.Size)
	}
	if stats.Evictions != 3 {
		t.Errorf("evictions = %d, want 3", stats.Evictions)
	}

	// Under capacity, evict does nothing.
	cache.evict()
	if cache.stats().Evictions != 3 {
		t.Error("evict removed entries below capacity")
	}

	hits := 0
	for _, hash := range hashes {
		if _, found := cache.get(hash); found {
			hits++
		}
	}
	stats = cache.stats()
	if hits != 2 || stats.Hits != 2 || stats.Misses != 3 {
		t.Errorf("hits/misses = %d/%d (found %d), want 2/3", stats.Hits, stats.Misses, hits)
	}
}

func TestWrapKeepsOuterContext(t *testing.T) {
	cause := errors.New("disk full")
	inner := &Error{Kind: KindIO, Err: cause}
	err := wrap("store node", "abc", fmt.Errorf("writing row: %w", inner))

	if !strings.Contains(err.Error(), "writing row") {
		t.Errorf("wrap dropped outer context: %q", err.Error())
	}
	var storeError *Error
	if !errors.As(err, &storeError) || storeError != inner {
		t.Fatalf("wrap result %v does not contain the inner *Error", err)
	}
	if inner.Op != "store node" || inner.Subject != "abc" || inner.Kind != KindIO {
		t.Errorf("inner error = %+v, want Op and Subject filled in", inner)
	}
	if !errors.Is(err, cause) {
		t.Error("wrap result does not unwrap to the cause")
	}

	// Op and Subject already set are kept, and a bare *Error comes
	// back unchanged.
	classified := &Error{Op: "get node", Kind: KindSerialization, Subject: "def", Err: cause}
	if got := wrap("commit batch", "xyz", classified); got != error(classified) {
		t.Errorf("wrap(*Error) = %v, want the same error", got)
	}
	if classified.Op != "get node" || classified.Subject != "def" {
		t.Errorf("wrap overwrote Op/Subject: %+v", classified)
	}

	integrity := &IntegrityError{Hash: digest.HashString("x"), Reason: "mismatch"}
	outer := fmt.Errorf("committing: %w", integrity)
	if got := wrap("commit batch", "", outer); got != outer {
		t.Errorf("wrap(integrity) = %v, want the outer error", got)
	}

	unclassified := wrap("stats", "/tmp/tree.db", cause)
	if !errors.As(unclassified, &storeError) || storeError.Kind != KindTransaction {
		t.Errorf("wrap(plain) = %v, want a transaction *Error", unclassified)
	}
}
