// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest builds session and project trees from structured
// records and commits each build to a tree store as one batch.
//
// An [Ingester] owns no state between calls: every call builds on a
// fresh [tree.Builder], stages the builder's whole working set plus the
// index entries into one [treestore.Batch], and commits it. Either the
// entire tree becomes visible in the store or nothing does.
//
// The input types carry JSON tags so an import file can be decoded
// straight into a [ProjectInput].
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/sessiontree/lib/digest"
	"github.com/bureau-foundation/sessiontree/lib/tree"
	"github.com/bureau-foundation/sessiontree/lib/treestore"
)

// SessionInput is the raw activity of one session.
type SessionInput struct {
	ID         string                 `json:"id"`
	Messages   []tree.MessageRecord   `json:"messages"`
	Operations []tree.OperationRecord `json:"operations,omitempty"`
}

// ProjectInput is a project and all of its sessions.
type ProjectInput struct {
	Name     string         `json:"name"`
	Path     string         `json:"path"`
	Sessions []SessionInput `json:"sessions"`
}

// Result reports what IngestProject committed.
type Result struct {
	ProjectRoot digest.Digest `json:"project_root"`

	// SessionRoots maps each ingested session id to its root.
	SessionRoots map[string]digest.Digest `json:"session_roots"`

	// Skipped lists sessions that had no messages, in input order.
	Skipped []string `json:"skipped,omitempty"`

	// NodeCount is the number of distinct nodes in the committed
	// batch, including nodes the store already held.
	NodeCount int `json:"node_count"`
}

// Ingester builds trees and commits them to a store. Safe for
// concurrent use.
type Ingester struct {
	store         *treestore.Store
	builderConfig tree.BuilderConfig
	logger        *slog.Logger
}

// New returns an Ingester writing to store. A nil logger discards. The
// builder configuration's logger defaults to the same logger.
func New(store *treestore.Store, builderConfig tree.BuilderConfig, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if builderConfig.Logger == nil {
		builderConfig.Logger = logger
	}
	return &Ingester{
		store:         store,
		builderConfig: builderConfig,
		logger:        logger,
	}
}

// IngestSession builds one session tree and commits every node of it
// together with the session index entry.
func (in *Ingester) IngestSession(ctx context.Context, input SessionInput) (*tree.Node, error) {
	builder := tree.NewBuilder(in.builderConfig)
	session, err := builder.BuildSessionTree(input.ID, input.Messages, input.Operations)
	if err != nil {
		return nil, err
	}

	batch := in.store.NewBatch()
	if err := batch.AddNodes(builder.Nodes()...); err != nil {
		return nil, err
	}
	if err := batch.AddSessionIndex(input.ID, session.Hash()); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing session %q: %w", input.ID, err)
	}

	in.logger.Info("session ingested",
		"session_id", input.ID,
		"root", session.Hash().Short(),
		"nodes", builder.Len(),
	)
	return session, nil
}

// IngestProject builds every session, then the project node over the
// sessions that had messages, and commits all of it with the session
// and project index entries in one batch. A project whose sessions are
// all empty is still committed with zero children.
func (in *Ingester) IngestProject(ctx context.Context, input ProjectInput) (Result, error) {
	if input.Name == "" {
		return Result{}, fmt.Errorf("ingesting project: %w", treestore.ErrEmptyKey)
	}

	builder := tree.NewBuilder(in.builderConfig)
	result := Result{SessionRoots: make(map[string]digest.Digest)}

	var sessions []*tree.Node
	for _, sessionInput := range input.Sessions {
		if _, duplicate := result.SessionRoots[sessionInput.ID]; duplicate {
			return Result{}, fmt.Errorf("ingesting project %q: session %q appears twice", input.Name, sessionInput.ID)
		}
		session, err := builder.BuildSessionTree(sessionInput.ID, sessionInput.Messages, sessionInput.Operations)
		if errors.Is(err, tree.ErrEmptySession) {
			in.logger.Warn("skipping empty session",
				"project", input.Name,
				"session_id", sessionInput.ID,
			)
			result.Skipped = append(result.Skipped, sessionInput.ID)
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("ingesting project %q: %w", input.Name, err)
		}
		sessions = append(sessions, session)
		result.SessionRoots[sessionInput.ID] = session.Hash()
	}

	project, err := builder.BuildProjectTree(input.Name, input.Path, sessions)
	if err != nil {
		return Result{}, err
	}
	result.ProjectRoot = project.Hash()

	batch := in.store.NewBatch()
	if err := batch.AddNodes(builder.Nodes()...); err != nil {
		return Result{}, err
	}
	for sessionID, root := range result.SessionRoots {
		if err := batch.AddSessionIndex(sessionID, root); err != nil {
			return Result{}, err
		}
	}
	if err := batch.AddProjectIndex(input.Name, project.Hash()); err != nil {
		return Result{}, err
	}
	result.NodeCount = batch.Len()

	if err := batch.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("committing project %q: %w", input.Name, err)
	}

	in.logger.Info("project ingested",
		"project", input.Name,
		"root", project.Hash().Short(),
		"sessions", len(result.SessionRoots),
		"skipped", len(result.Skipped),
		"nodes", result.NodeCount,
	)
	return result, nil
}
