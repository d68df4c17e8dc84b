// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package treestore

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/sessiontree/lib/digest"
)

// ErrorKind classifies storage failures.
type ErrorKind int

const (
	// KindOpen: the database file or its directory could not be
	// created or opened.
	KindOpen ErrorKind = iota + 1

	// KindTransaction: a connection could not be acquired, or a
	// transaction could not begin or commit.
	KindTransaction

	// KindTable: the schema could not be created or is incompatible.
	KindTable

	// KindSerialization: a value could not be encoded, compressed,
	// decompressed or decoded.
	KindSerialization

	// KindIO: a statement failed.
	KindIO
)

func (kind ErrorKind) String() string {
	switch kind {
	case KindOpen:
		return "open"
	case KindTransaction:
		return "transaction"
	case KindTable:
		return "table"
	case KindSerialization:
		return "serialization"
	case KindIO:
		return "io"
	default:
		return fmt.Sprintf("unknown(%d)", int(kind))
	}
}

var (
	// ErrBatchCommitted is returned when a committed Batch is reused.
	ErrBatchCommitted = errors.New("batch already committed")

	// ErrEmptyKey is returned when a session id or project name to
	// index is empty.
	ErrEmptyKey = errors.New("index key is empty")

	// ErrSchemaTooNew is wrapped when the database was written by a
	// newer version of this package.
	ErrSchemaTooNew = errors.New("database schema is newer than supported")
)

// Error is a storage failure.
type Error struct {
	// Op is the Store or Batch method that failed, e.g. "store node".
	Op string

	Kind ErrorKind

	// Subject identifies what the operation was acting on: a digest,
	// a session id, a project name or a path. May be empty.
	Subject string

	Err error
}

func (err *Error) Error() string {
	if err.Subject == "" {
		return fmt.Sprintf("treestore: %s: %s error: %v", err.Op, err.Kind, err.Err)
	}
	return fmt.Sprintf("treestore: %s %s: %s error: %v", err.Op, err.Subject, err.Kind, err.Err)
}

func (err *Error) Unwrap() error {
	return err.Err
}

// IntegrityError reports stored data that contradicts its own hash:
// a row that does not decode to the node its key names, or an attempt
// to store a different node under an existing hash.
type IntegrityError struct {
	// Hash is the key the data is stored or requested under.
	Hash digest.Digest

	// Computed is the hash of the conflicting node, or Null when the
	// data could not be decoded at all.
	Computed digest.Digest

	Reason string
}

func (err *IntegrityError) Error() string {
	if err.Computed.IsNull() {
		return fmt.Sprintf("treestore: integrity violation at %s: %s", err.Hash, err.Reason)
	}
	return fmt.Sprintf("treestore: integrity violation at %s: %s (found %s)", err.Hash, err.Reason, err.Computed)
}

// wrap attaches operation context to err. When err already carries a
// classified *Error, its empty Op and Subject are filled in and err is
// returned as is, keeping any context wrapped around it. An
// *IntegrityError passes through. Anything else reached the caller
// from the pool itself (connection, begin or commit) and is a
// transaction failure.
func wrap(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	var storeError *Error
	if errors.As(err, &storeError) {
		if storeError.Op == "" {
			storeError.Op = op
		}
		if storeError.Subject == "" {
			storeError.Subject = subject
		}
		return err
	}
	var integrityError *IntegrityError
	if errors.As(err, &integrityError) {
		return err
	}
	return &Error{Op: op, Kind: KindTransaction, Subject: subject, Err: err}
}

func ioError(err error) error {
	return &Error{Kind: KindIO, Err: err}
}

func serializationError(err error) error {
	return &Error{Kind: KindSerialization, Err: err}
}
