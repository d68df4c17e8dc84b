// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool that backs
// lib/treestore.
//
// It wraps zombiezen.com/go/sqlite with the settings an embedded,
// single-process store needs: WAL journal mode so readers see a
// consistent snapshot while one writer commits, NORMAL synchronous,
// memory-mapped reads, and a busy timeout so a second writer waits for
// the lock instead of failing with SQLITE_BUSY.
//
// Callers either [Pool.Take] a connection and [Pool.Put] it back, or
// use the scoped helpers:
//
//   - [Pool.WithConn] runs a function with a borrowed connection.
//   - [Pool.Read] runs it inside a deferred transaction, giving the
//     function one consistent snapshot across several statements.
//   - [Pool.Write] runs it inside an IMMEDIATE transaction. The write
//     lock is taken at BEGIN, and the transaction commits only when the
//     function returns nil; any error (or panic) rolls it back.
//
// Connections are not safe for concurrent use: each goroutine must
// hold its own connection for the duration of its work.
//
// # Pragmas
//
//   - journal_mode=WAL
//   - synchronous=NORMAL: transactions survive process crashes, not
//     power loss.
//   - busy_timeout: [Config.BusyTimeout], default 5s.
//   - foreign_keys=OFF: the store manages its own references.
//   - cache_size: [Config.CacheSizeKiB], default 8 MiB per connection.
//   - mmap_size=268435456
//   - temp_store=MEMORY
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(dir, "tree.db"),
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.Write(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "INSERT ...", &sqlitex.ExecOptions{...})
//	})
//
// There is no query builder: callers write SQL and use sqlitex.Execute
// for cached statements.
package sqlitepool
