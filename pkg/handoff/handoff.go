// Package handoff persists the JSON results one audit stage leaves for the
// next: the inventory for the directory audit, the directory audit for the
// reference analysis.
package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Well-known handoff file names.
const (
	InventoryFile      = "agent1_inventory_results.json"
	DirectoryAuditFile = "agent2_directory_audit_results.json"
	ReferenceFile      = "agent3_reference_analysis_results.json"
)

// ErrMissing is returned by Load when the prior stage left no file. Callers
// log a warning and continue without that context.
var ErrMissing = errors.New("handoff: results file missing")

// Load decodes the JSON file at path into v.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrMissing, path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Save writes v as indented JSON to path, creating parent directories.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
