// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultBusyTimeout is how long a connection waits for a locked
// database before returning SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// DefaultCacheSizeKiB is the per-connection page cache size.
const DefaultCacheSizeKiB = 8192

// Config holds the parameters for opening a SQLite connection pool.
// Path is required; all other fields have defaults.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. The file is created if it does not
	// exist.
	Path string

	// PoolSize is the number of connections in the pool. If zero or
	// negative, defaults to max(runtime.NumCPU(), 4). SQLite
	// serializes writes regardless of pool size; extra connections
	// serve concurrent readers.
	PoolSize int

	// BusyTimeout bounds how long a writer waits for the write lock.
	// Zero means DefaultBusyTimeout.
	BusyTimeout time.Duration

	// CacheSizeKiB is the page cache size per connection. Zero means
	// DefaultCacheSizeKiB.
	CacheSizeKiB int

	// Logger receives pool open/close messages. If nil, a no-op
	// logger is used.
	Logger *slog.Logger

	// OnConnect is called once per connection after the pragmas are
	// applied. If it returns an error, the connection is discarded and
	// the error is returned to the caller of Take.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections. It is safe for
// concurrent use; the connections it hands out are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates a new connection pool. Connections are initialized
// lazily on first Take, so a bad OnConnect surfaces there rather than
// here. The caller must call Close when the pool is no longer needed.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	pragmas := connectionPragmas(cfg)
	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, pragmas, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
	)

	return &Pool{
		inner:  inner,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// Path returns the database file path the pool was opened with.
func (p *Pool) Path() string {
	return p.path
}

// Take borrows a connection from the pool. Blocks until a connection
// is available or ctx is cancelled. The caller must call Put when done.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// WithConn borrows a connection for the duration of fn.
func (p *Pool) WithConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)
	return fn(conn)
}

// Read runs fn inside a deferred transaction. Every statement fn
// executes observes the same snapshot. The transaction is always
// ended; fn's error is returned unchanged.
func (p *Pool) Read(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return p.WithConn(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Transaction(conn)(&err)
		return fn(conn)
	})
}

// Write runs fn inside an IMMEDIATE transaction. It commits when fn
// returns nil and rolls back otherwise, so either every statement fn
// executed is visible afterwards or none is. A failure to begin is
// wrapped in a *BeginError.
func (p *Pool) Write(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return p.WithConn(ctx, func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return &BeginError{Path: p.path, Err: err}
		}
		defer endTransaction(&err)
		return fn(conn)
	})
}

// Close closes all connections in the pool. Blocks until all borrowed
// connections are returned. After Close, Take returns an error.
func (p *Pool) Close() error {
	err := p.inner.Close()
	if err != nil {
		p.logger.Error("sqlite pool close error",
			"path", p.path,
			"error", err,
		)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

// BeginError reports a transaction that could not be started, usually
// because the write lock was not acquired within the busy timeout.
type BeginError struct {
	Path string
	Err  error
}

func (err *BeginError) Error() string {
	return fmt.Sprintf("sqlitepool: begin transaction on %s: %v", err.Path, err.Err)
}

func (err *BeginError) Unwrap() error {
	return err.Err
}

func connectionPragmas(cfg Config) []string {
	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	cacheSize := cfg.CacheSizeKiB
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSizeKiB
	}

	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=OFF",
		// A negative cache_size is in KiB rather than pages.
		fmt.Sprintf("PRAGMA cache_size=-%d", cacheSize),
		"PRAGMA mmap_size=268435456",
		"PRAGMA temp_store=MEMORY",
	}
}

func prepareConnection(conn *sqlite.Conn, pragmas []string, onConnect func(*sqlite.Conn) error) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}

	return nil
}
