// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/sessiontree/lib/digest"
	"github.com/bureau-foundation/sessiontree/lib/treestore"
)

const (
	sessionPrefix = "session:"
	projectPrefix = "project:"
)

// resolveRef turns a command-line ref into a digest.
func resolveRef(ctx context.Context, store *treestore.Store, ref string) (digest.Digest, error) {
	switch {
	case strings.HasPrefix(ref, sessionPrefix):
		return lookupRoot(ctx, "session", strings.TrimPrefix(ref, sessionPrefix), store.SessionRoot)
	case strings.HasPrefix(ref, projectPrefix):
		return lookupRoot(ctx, "project", strings.TrimPrefix(ref, projectPrefix), store.ProjectRoot)
	case digest.IsValidHex(ref):
		return digest.Parse(strings.ToLower(ref))
	default:
		return digest.Null, fmt.Errorf("invalid ref %q: want a 64-character hex digest, %s<id> or %s<name>",
			ref, sessionPrefix, projectPrefix)
	}
}

func lookupRoot(ctx context.Context, label, key string,
	lookup func(context.Context, string) (digest.Digest, bool, error)) (digest.Digest, error) {
	if key == "" {
		return digest.Null, fmt.Errorf("empty %s name in ref", label)
	}
	root, found, err := lookup(ctx, key)
	if err != nil {
		return digest.Null, err
	}
	if !found {
		return digest.Null, fmt.Errorf("%s %q is not indexed", label, key)
	}
	return root, nil
}
