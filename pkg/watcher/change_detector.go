package watcher

import (
	"fmt"
	"path/filepath"
)

// ChangeAnalysis describes a debounced batch of changes.
type ChangeAnalysis struct {
	// Structural is set when files appeared or disappeared, so the file
	// index itself changed rather than just file contents.
	Structural   bool
	ChangedFiles []string // slash-separated, relative to the root when possible
	Reason       string
}

// AnalyzeChanges summarizes event for logs and the status stream.
func AnalyzeChanges(event ChangeEvent, root string) *ChangeAnalysis {
	analysis := &ChangeAnalysis{
		Structural: event.Type == ChangeTypeStructure,
	}
	for _, p := range event.Paths {
		if rel, err := filepath.Rel(root, p); err == nil && filepath.IsLocal(rel) {
			p = rel
		}
		analysis.ChangedFiles = append(analysis.ChangedFiles, filepath.ToSlash(p))
	}

	n := len(analysis.ChangedFiles)
	switch {
	case n == 1 && analysis.Structural:
		analysis.Reason = fmt.Sprintf("%s added, removed or renamed", analysis.ChangedFiles[0])
	case n == 1:
		analysis.Reason = fmt.Sprintf("%s changed", analysis.ChangedFiles[0])
	case analysis.Structural:
		analysis.Reason = fmt.Sprintf("%d files added, removed or renamed", n)
	default:
		analysis.Reason = fmt.Sprintf("%d files changed", n)
	}
	return analysis
}
