// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// File is the import file format: a list of projects, each with its
// sessions and their records.
type File struct {
	Projects []ProjectInput `json:"projects"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a File. Timestamps are RFC 3339 strings.
func Parse(data []byte) (*File, error) {
	stripped := jsonc.ToJSON(data)

	var file File
	if err := json.Unmarshal(stripped, &file); err != nil {
		return nil, fmt.Errorf("parsing import file: %w", err)
	}
	if len(file.Projects) == 0 {
		return nil, fmt.Errorf("parsing import file: no projects")
	}
	return &file, nil
}

// ReadFile reads and parses a JSONC import file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}
