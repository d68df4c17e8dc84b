// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including the Go version
// and the versions of the storage and hashing libraries linked in.
func Full() string {
	full := fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	for _, dependency := range Dependencies() {
		full += fmt.Sprintf("\n  %s: %s", dependency.Path, dependency.Version)
	}
	return full
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Commit returns the git commit SHA.
func Commit() string {
	return GitCommit
}

// Dependency is a module linked into the running binary.
type Dependency struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// reportedModules are the dependencies whose versions affect the
// on-disk format or the digests.
var reportedModules = map[string]bool{
	"github.com/zeebo/blake3":       true,
	"github.com/fxamacker/cbor/v2":  true,
	"github.com/klauspost/compress": true,
	"github.com/pierrec/lz4/v4":     true,
	"zombiezen.com/go/sqlite":       true,
	"modernc.org/sqlite":            true,
}

// Dependencies returns the reported modules found in the binary's
// build info, in build-info order. Test binaries and binaries built
// without module support return nil.
func Dependencies() []Dependency {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	var dependencies []Dependency
	for _, module := range info.Deps {
		if !reportedModules[module.Path] {
			continue
		}
		version := module.Version
		if module.Replace != nil {
			version = module.Replace.Version
		}
		dependencies = append(dependencies, Dependency{Path: module.Path, Version: version})
	}
	return dependencies
}
