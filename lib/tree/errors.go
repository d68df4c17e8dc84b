// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/sessiontree/lib/digest"
)

var (
	// ErrEmptySession is returned when a session tree is built from
	// zero messages. A session needs at least one message to establish
	// its time range.
	ErrEmptySession = errors.New("session has no messages")

	// ErrInvalidKind is wrapped by every kind validation failure: a
	// payload that does not match its tag, an unknown tag, a missing
	// identifier, or a leaf kind given children.
	ErrInvalidKind = errors.New("invalid node kind")

	// ErrEmptyChildKey is returned when a child is added under "".
	ErrEmptyChildKey = errors.New("child key is empty")

	// ErrNodeNotFound is wrapped when a traversal cannot resolve a
	// hash it was given or reached.
	ErrNodeNotFound = errors.New("node not found")
)

// HashError reports a failure to serialize a node's fields for
// hashing. With well-typed input it does not occur.
type HashError struct {
	Err error
}

func (err *HashError) Error() string {
	return fmt.Sprintf("computing node hash: %v", err.Err)
}

func (err *HashError) Unwrap() error {
	return err.Err
}

// HashMismatchError reports a node whose recomputed hash differs from
// the hash it claims.
type HashMismatchError struct {
	Expected digest.Digest
	Computed digest.Digest
}

func (err *HashMismatchError) Error() string {
	return fmt.Sprintf("node hash mismatch: expected %s, computed %s", err.Expected, err.Computed)
}

// DuplicateChildError reports two children of one parent that map to
// the same key.
type DuplicateChildError struct {
	Key string
}

func (err *DuplicateChildError) Error() string {
	return fmt.Sprintf("duplicate child key %q", err.Key)
}

// UnexpectedKindError reports a child whose kind cannot be aggregated
// under a parent of the given kind (for example a message directly
// under a project).
type UnexpectedKindError struct {
	Parent KindTag
	Child  KindTag
}

func (err *UnexpectedKindError) Error() string {
	return fmt.Sprintf("a %s node cannot contain a %s node", err.Parent, err.Child)
}

// MissingChildError reports a child reference that could not be
// resolved during a traversal.
type MissingChildError struct {
	Parent digest.Digest
	Key    string
	Child  digest.Digest
}

func (err *MissingChildError) Error() string {
	return fmt.Sprintf("node %s: child %q (%s) not found", err.Parent.Short(), err.Key, err.Child)
}

// Unwrap returns [ErrNodeNotFound].
func (err *MissingChildError) Unwrap() error {
	return ErrNodeNotFound
}
