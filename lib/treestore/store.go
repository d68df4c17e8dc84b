// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package treestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sessiontree/lib/clock"
	"github.com/bureau-foundation/sessiontree/lib/codec"
	"github.com/bureau-foundation/sessiontree/lib/compression"
	"github.com/bureau-foundation/sessiontree/lib/sqlitepool"
)

// SchemaVersion is the version recorded in new databases. Open refuses
// databases recorded with a higher version.
const SchemaVersion = 1

// DefaultCacheEntries is the cache capacity used when
// Config.CacheEntries is zero.
const DefaultCacheEntries = 1000

// Metadata table keys.
const (
	metadataSchemaVersion  = "schema_version"
	metadataCreatedAt      = "created_at"
	metadataLastCompaction = "last_compaction"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	hash     BLOB PRIMARY KEY,
	codec    INTEGER NOT NULL,
	raw_size INTEGER NOT NULL,
	data     BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS parent_child (
	hash     BLOB PRIMARY KEY,
	children BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS session_index (
	session_id TEXT PRIMARY KEY,
	root_hash  BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS project_index (
	project_name TEXT PRIMARY KEY,
	root_hash    BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// Config holds the parameters for [Open]. Path is required.
type Config struct {
	// Path is the database file. Its parent directory is created if
	// missing.
	Path string

	// PoolSize is the number of SQLite connections. Zero uses the
	// sqlitepool default.
	PoolSize int

	// BusyTimeout bounds how long a writer waits for the write lock.
	// Zero uses the sqlitepool default.
	BusyTimeout time.Duration

	// CacheEntries is the node cache capacity. Zero means
	// DefaultCacheEntries.
	CacheEntries int

	// Compression is the codec applied to new rows. Existing rows keep
	// the codec they were written with. The zero value stores rows
	// uncompressed.
	Compression compression.Tag

	// CompactOnStartup runs Compact before Open returns.
	CompactOnStartup bool

	// Clock stamps created_at and last_compaction. Nil means
	// clock.Real().
	Clock clock.Clock

	// Logger receives open, close and compaction messages. Nil
	// discards.
	Logger *slog.Logger
}

// Store is the persistent node store. One Store owns the database
// handle and the node cache; share it between goroutines rather than
// opening the same file twice. All methods are safe for concurrent
// use.
type Store struct {
	pool        *sqlitepool.Pool
	path        string
	cache       *nodeCache
	compression compression.Tag
	clock       clock.Clock
	logger      *slog.Logger

	// afterNodeWrite, when set, runs inside the write transaction
	// after the nodes row and before the dependent rows. Tests use it
	// to inject a failure mid-transaction.
	afterNodeWrite func() error
}

// Open opens or creates the database at config.Path, creates any
// missing tables, and records the schema version in a new database.
func Open(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, &Error{Op: "open", Kind: KindOpen, Err: errors.New("path is required")}
	}
	switch config.Compression {
	case compression.None, compression.LZ4, compression.Zstd, compression.Auto:
	default:
		return nil, &Error{Op: "open", Kind: KindOpen, Subject: config.Path,
			Err: fmt.Errorf("unsupported compression %s", config.Compression)}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	storeClock := config.Clock
	if storeClock == nil {
		storeClock = clock.Real()
	}
	cacheEntries := config.CacheEntries
	if cacheEntries <= 0 {
		cacheEntries = DefaultCacheEntries
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, &Error{Op: "open", Kind: KindOpen, Subject: config.Path, Err: err}
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:        config.Path,
		PoolSize:    config.PoolSize,
		BusyTimeout: config.BusyTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, &Error{Op: "open", Kind: KindOpen, Subject: config.Path, Err: err}
	}

	store := &Store{
		pool:        pool,
		path:        config.Path,
		cache:       newNodeCache(cacheEntries),
		compression: config.Compression,
		clock:       storeClock,
		logger:      logger,
	}

	ctx := context.Background()
	version, err := store.initialize(ctx)
	if err != nil {
		pool.Close()
		return nil, wrap("open", config.Path, err)
	}

	logger.Info("tree store opened",
		"path", config.Path,
		"schema_version", version,
		"compression", config.Compression.String(),
		"cache_entries", cacheEntries,
	)

	if config.CompactOnStartup {
		if err := store.Compact(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

// initialize creates the tables and checks or records the schema
// version, in one transaction.
func (s *Store) initialize(ctx context.Context) (uint64, error) {
	var version uint64
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
			return &Error{Kind: KindTable, Err: fmt.Errorf("creating tables: %w", err)}
		}

		found, err := getMetadata(conn, metadataSchemaVersion, &version)
		if err != nil {
			return err
		}
		if found {
			if version > SchemaVersion {
				return &Error{Kind: KindTable, Err: fmt.Errorf("%w: database has version %d, this build supports %d",
					ErrSchemaTooNew, version, SchemaVersion)}
			}
			return nil
		}

		version = SchemaVersion
		if err := putMetadata(conn, metadataSchemaVersion, version); err != nil {
			return err
		}
		return putMetadata(conn, metadataCreatedAt, s.clock.Now().UnixNano())
	})
	return version, err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. Outstanding batches can no longer be
// committed.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return &Error{Op: "close", Kind: KindIO, Subject: s.path, Err: err}
	}
	return nil
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	NodeCount    int64 `json:"node_count"`
	SessionCount int64 `json:"session_count"`
	ProjectCount int64 `json:"project_count"`

	// FileSize is the size of the database file plus its write-ahead
	// log, in bytes.
	FileSize int64 `json:"file_size"`

	SchemaVersion uint64 `json:"schema_version"`

	CreatedAt time.Time `json:"created_at"`

	// LastCompaction is zero if the store was never compacted.
	LastCompaction time.Time `json:"last_compaction"`
}

// Stats reads the table cardinalities and bookkeeping from one
// snapshot and adds the on-disk size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		counts := []struct {
			table string
			into  *int64
		}{
			{"nodes", &stats.NodeCount},
			{"session_index", &stats.SessionCount},
			{"project_index", &stats.ProjectCount},
		}
		for _, count := range counts {
			err := sqlitex.Execute(conn, "SELECT count(*) FROM "+count.table, &sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					*count.into = stmt.ColumnInt64(0)
					return nil
				},
			})
			if err != nil {
				return ioError(fmt.Errorf("counting %s: %w", count.table, err))
			}
		}

		if _, err := getMetadata(conn, metadataSchemaVersion, &stats.SchemaVersion); err != nil {
			return err
		}
		var createdAt, lastCompaction int64
		if _, err := getMetadata(conn, metadataCreatedAt, &createdAt); err != nil {
			return err
		}
		if _, err := getMetadata(conn, metadataLastCompaction, &lastCompaction); err != nil {
			return err
		}
		stats.CreatedAt = unixTime(createdAt)
		stats.LastCompaction = unixTime(lastCompaction)
		return nil
	})
	if err != nil {
		return Stats{}, wrap("stats", s.path, err)
	}

	size, err := s.fileSize()
	if err != nil {
		return Stats{}, &Error{Op: "stats", Kind: KindIO, Subject: s.path, Err: err}
	}
	stats.FileSize = size
	return stats, nil
}

// Compact checkpoints the write-ahead log into the main file and
// rebuilds the file to release free pages, then records the time in
// last_compaction. Callers must not compact while a batch commit is in
// flight.
func (s *Store) Compact(ctx context.Context) error {
	sizeBefore, _ := s.fileSize()
	started := s.clock.Now()

	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteTransient(conn, "PRAGMA wal_checkpoint(TRUNCATE)", nil); err != nil {
			return ioError(fmt.Errorf("checkpoint: %w", err))
		}
		// VACUUM cannot run inside a transaction.
		if err := sqlitex.ExecuteTransient(conn, "VACUUM", nil); err != nil {
			return ioError(fmt.Errorf("vacuum: %w", err))
		}
		return nil
	})
	if err != nil {
		return wrap("compact", s.path, err)
	}

	err = s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return putMetadata(conn, metadataLastCompaction, s.clock.Now().UnixNano())
	})
	if err != nil {
		return wrap("compact", s.path, err)
	}

	sizeAfter, _ := s.fileSize()
	s.logger.Info("tree store compacted",
		"path", s.path,
		"size_before", sizeBefore,
		"size_after", sizeAfter,
		"duration", s.clock.Now().Sub(started),
	)
	return nil
}

func (s *Store) fileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if wal, err := os.Stat(s.path + "-wal"); err == nil {
		size += wal.Size()
	}
	return size, nil
}

// putMetadata stores the CBOR encoding of value under key.
func putMetadata(conn *sqlite.Conn, key string, value any) error {
	encoded, err := codec.Marshal(value)
	if err != nil {
		return serializationError(fmt.Errorf("encoding metadata %q: %w", key, err))
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{key, encoded}})
	if err != nil {
		return ioError(fmt.Errorf("writing metadata %q: %w", key, err))
	}
	return nil
}

// getMetadata decodes the value under key into out. A missing key
// leaves out untouched and returns false.
func getMetadata(conn *sqlite.Conn, key string, out any) (bool, error) {
	var encoded []byte
	var found bool
	err := sqlitex.Execute(conn, "SELECT value FROM metadata WHERE key = ?", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			encoded = columnBytes(stmt, 0)
			return nil
		},
	})
	if err != nil {
		return false, ioError(fmt.Errorf("reading metadata %q: %w", key, err))
	}
	if !found {
		return false, nil
	}
	if err := codec.Unmarshal(encoded, out); err != nil {
		return false, serializationError(fmt.Errorf("decoding metadata %q: %w", key, err))
	}
	return true, nil
}

func columnBytes(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

func unixTime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}
