// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package treestore

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sessiontree/lib/digest"
)

// IndexEntry is one row of the session or project index.
type IndexEntry struct {
	Key  string        `json:"key"`
	Root digest.Digest `json:"root"`
}

// indexTable names a secondary index table. Table and column names
// are constants, never caller input.
type indexTable struct {
	table  string
	column string
	label  string
}

var (
	sessionIndex = indexTable{table: "session_index", column: "session_id", label: "session"}
	projectIndex = indexTable{table: "project_index", column: "project_name", label: "project"}
)

// IndexSession points sessionID at root, replacing any previous root.
// It runs in its own transaction; store the tree first.
func (s *Store) IndexSession(ctx context.Context, sessionID string, root digest.Digest) error {
	return s.putIndex(ctx, sessionIndex, sessionID, root)
}

// SessionRoot returns the root indexed for sessionID.
func (s *Store) SessionRoot(ctx context.Context, sessionID string) (digest.Digest, bool, error) {
	return s.lookupIndex(ctx, sessionIndex, sessionID)
}

// ListSessions returns every indexed session id in ascending order.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	return s.listKeys(ctx, sessionIndex)
}

// SessionEntries returns every session index entry in ascending id
// order.
func (s *Store) SessionEntries(ctx context.Context) ([]IndexEntry, error) {
	return s.listIndex(ctx, sessionIndex)
}

// IndexProject points name at root, replacing any previous root.
func (s *Store) IndexProject(ctx context.Context, name string, root digest.Digest) error {
	return s.putIndex(ctx, projectIndex, name, root)
}

// ProjectRoot returns the root indexed for the project name.
func (s *Store) ProjectRoot(ctx context.Context, name string) (digest.Digest, bool, error) {
	return s.lookupIndex(ctx, projectIndex, name)
}

// ListProjects returns every indexed project name in ascending order.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	return s.listKeys(ctx, projectIndex)
}

// ProjectEntries returns every project index entry in ascending name
// order.
func (s *Store) ProjectEntries(ctx context.Context) ([]IndexEntry, error) {
	return s.listIndex(ctx, projectIndex)
}

func (s *Store) putIndex(ctx context.Context, index indexTable, key string, root digest.Digest) error {
	op := "index " + index.label
	if key == "" {
		return fmt.Errorf("treestore: %s: %w", op, ErrEmptyKey)
	}
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return writeIndex(conn, index, key, root)
	})
	if err != nil {
		return wrap(op, key, err)
	}
	s.logger.Debug("indexed "+index.label, index.label, key, "root", root.Short())
	return nil
}

func writeIndex(conn *sqlite.Conn, index indexTable, key string, root digest.Digest) error {
	query := fmt.Sprintf(
		`INSERT INTO %[1]s (%[2]s, root_hash) VALUES (?, ?)
		 ON CONFLICT (%[2]s) DO UPDATE SET root_hash = excluded.root_hash`,
		index.table, index.column)
	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{key, root[:]}}); err != nil {
		return ioError(fmt.Errorf("writing %s: %w", index.table, err))
	}
	return nil
}

func (s *Store) lookupIndex(ctx context.Context, index indexTable, key string) (digest.Digest, bool, error) {
	var encoded []byte
	var found bool
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		query := fmt.Sprintf("SELECT root_hash FROM %s WHERE %s = ?", index.table, index.column)
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{key},
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
	op := "lookup " + index.label
	if err != nil {
		return digest.Null, false, wrap(op, key, err)
	}
	if !found {
		return digest.Null, false, nil
	}
	root, err := digest.FromBytes(encoded)
	if err != nil {
		return digest.Null, false, &Error{Op: op, Kind: KindSerialization, Subject: key, Err: err}
	}
	return root, true, nil
}

func (s *Store) listIndex(ctx context.Context, index indexTable) ([]IndexEntry, error) {
	op := "list " + index.label + "s"
	var entries []IndexEntry
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		query := fmt.Sprintf("SELECT %[2]s, root_hash FROM %[1]s ORDER BY %[2]s", index.table, index.column)
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				key := stmt.ColumnText(0)
				root, err := digest.FromBytes(columnBytes(stmt, 1))
				if err != nil {
					return serializationError(fmt.Errorf("%s %q: %w", index.label, key, err))
				}
				entries = append(entries, IndexEntry{Key: key, Root: root})
				return nil
			},
		})
		if err != nil {
			var storeError *Error
			if errors.As(err, &storeError) {
				return err
			}
			return ioError(err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, "", err)
	}
	return entries, nil
}

func (s *Store) listKeys(ctx context.Context, index indexTable) ([]string, error) {
	entries, err := s.listIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	return keys, nil
}
