// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessiontree/cmd/sessiontree/cli"
	"github.com/bureau-foundation/sessiontree/lib/clock"
	"github.com/bureau-foundation/sessiontree/lib/compression"
	"github.com/bureau-foundation/sessiontree/lib/config"
	"github.com/bureau-foundation/sessiontree/lib/tree"
	"github.com/bureau-foundation/sessiontree/lib/treestore"
)

// storeParams are the flags shared by every command that opens the
// database.
type storeParams struct {
	configPath string
	database   string
	outputJSON bool
}

func (p *storeParams) bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&p.configPath, "config", "", "config file (default: $"+config.EnvVar+", then built-in defaults)")
	flagSet.StringVar(&p.database, "db", "", "database path (overrides storage.path)")
	flagSet.BoolVar(&p.outputJSON, "json", false, "output as JSON")
}

// environment is everything a command needs after flag parsing.
type environment struct {
	config *config.Config
	logger *slog.Logger
	store  *treestore.Store
}

func (e *environment) Close() error {
	return e.store.Close()
}

// builderConfig maps the builder section onto tree.BuilderConfig.
func (e *environment) builderConfig() tree.BuilderConfig {
	return tree.BuilderConfig{
		IncludeContent: e.config.Builder.IncludeContent,
		ValidateHashes: e.config.Builder.ValidateHashes,
		Workers:        e.config.Builder.Workers,
		Clock:          clock.Real(),
		Logger:         e.logger,
	}
}

// loadConfig picks the config source: --config, then
// SESSIONTREE_CONFIG, then defaults.
func (p *storeParams) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case p.configPath != "":
		cfg, err = config.LoadFile(p.configPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Resolved()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if p.database != "" {
		cfg.Storage.Path = p.database
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// open loads the config, builds the logger and opens the store.
func (p *storeParams) open(command string) (*environment, error) {
	cfg, err := p.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := cli.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	logger = logger.With("command", command)

	codec, err := compression.ParseTag(cfg.Storage.Compression)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := cfg.Storage.BusyTimeoutDuration()
	if err != nil {
		return nil, err
	}

	store, err := treestore.Open(treestore.Config{
		Path:             cfg.Storage.Path,
		PoolSize:         cfg.Storage.PoolSize,
		BusyTimeout:      busyTimeout,
		CacheEntries:     cfg.Storage.CacheEntries,
		Compression:      codec,
		CompactOnStartup: cfg.Storage.CompactOnStartup,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return &environment{config: cfg, logger: logger, store: store}, nil
}
