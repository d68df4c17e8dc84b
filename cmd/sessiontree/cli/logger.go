// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger creates the process logger from the log section of the
// config. Format "auto" uses slog.TextHandler when stderr is a
// terminal and slog.JSONHandler when it is piped or redirected.
func NewLogger(level, format string) (*slog.Logger, error) {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	return newLogger(os.Stderr, level, format, isTerminal)
}

func newLogger(w io.Writer, level, format string, isTerminal bool) (*slog.Logger, error) {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	options := &slog.HandlerOptions{Level: slogLevel}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "auto", "":
		if isTerminal {
			return slog.New(slog.NewTextHandler(w, options)), nil
		}
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
