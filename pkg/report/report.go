// Package report renders an analysis result as a colored console summary,
// a markdown document or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/glamour"
	"github.com/swm-sink/promptaudit/pkg/analysis"
	"github.com/swm-sink/promptaudit/pkg/refs"
)

// Section limits.
const (
	maxBrokenFiles  = 10
	maxBrokenDetail = 3
	maxReferenced   = 10
	maxCycles       = 5
	maxOrphans      = 10
	defaultWordWrap = 100
)

// categoryMark is the status mark for a category validity rate.
func categoryMark(validity float64) string {
	switch {
	case validity >= 90:
		return "✅"
	case validity >= 70:
		return "⚠️"
	default:
		return "❌"
	}
}

// brokenFiles returns the files with broken references, most broken first.
func brokenFiles(r *analysis.Result) []analysis.FileResult {
	var out []analysis.FileResult
	for _, f := range r.Files {
		if f.Broken > 0 {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Broken != out[j].Broken {
			return out[i].Broken > out[j].Broken
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > maxBrokenFiles {
		out = out[:maxBrokenFiles]
	}
	return out
}

// kindCounts lists the reference kinds that occurred, in extraction order.
func kindCounts(r *analysis.Result) []analysis.TargetCount {
	var out []analysis.TargetCount
	for _, k := range refs.Kinds {
		if n := r.Summary.ByKind[k]; n > 0 {
			out = append(out, analysis.TargetCount{Path: string(k), Count: n})
		}
	}
	return out
}

func limit[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Render renders markdown for the terminal. width <= 0 uses the default
// word wrap.
func Render(markdown string, width int) (string, error) {
	if width <= 0 {
		width = defaultWordWrap
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}

// WriteJSON writes v as indented JSON to path, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
