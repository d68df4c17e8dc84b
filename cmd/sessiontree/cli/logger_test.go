// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerFormats(t *testing.T) {
	tests := []struct {
		format     string
		isTerminal bool
		wantJSON   bool
	}{
		{"json", true, true},
		{"text", false, false},
		{"auto", true, false},
		{"auto", false, true},
	}
	for _, test := range tests {
		var buffer bytes.Buffer
		logger, err := newLogger(&buffer, "info", test.format, test.isTerminal)
		if err != nil {
			t.Fatalf("newLogger(%s): %v", test.format, err)
		}
		logger.Info("opened", "path", "/tmp/tree.db")

		isJSON := json.Valid(bytes.TrimSpace(buffer.Bytes()))
		if isJSON != test.wantJSON {
			t.Errorf("format %s terminal=%v: JSON output = %v, want %v (%q)",
				test.format, test.isTerminal, isJSON, test.wantJSON, buffer.String())
		}
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := newLogger(&buffer, "warn", "text", false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buffer.String(), "hidden") || !strings.Contains(buffer.String(), "shown") {
		t.Errorf("level filtering wrong: %q", buffer.String())
	}
}

func TestNewLoggerErrors(t *testing.T) {
	if _, err := newLogger(&bytes.Buffer{}, "loud", "text", false); err == nil {
		t.Error("unknown level accepted")
	}
	if _, err := newLogger(&bytes.Buffer{}, "info", "xml", false); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestWriteJSONNilSlice(t *testing.T) {
	var buffer bytes.Buffer
	var entries []string
	if err := WriteJSON(&buffer, entries); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("WriteJSON(nil slice) = %q, want []", buffer.String())
	}
}
