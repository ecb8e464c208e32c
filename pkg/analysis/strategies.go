package analysis

import (
	"fmt"
	"strings"

	"github.com/swm-sink/promptaudit/pkg/inventory"
	"github.com/swm-sink/promptaudit/pkg/resolve"
)

// Structural causes of a broken reference, from the directory audit.
const (
	CausePatternDuplication = "PATTERN_DUPLICATION_CONFLICT"
	CauseMissingClaimedDir  = "MISSING_CLAIMED_DIRECTORY"
	CauseUnknown            = "STRUCTURAL_UNKNOWN"
	CauseNoContext          = "NO_STRUCTURAL_CONTEXT"
	causeOverlapPrefix      = "FUNCTIONAL_OVERLAP_"
)

// FixStrategy is a suggested plan for a family of broken references.
type FixStrategy struct {
	Priority      string   `json:"priority"`
	Strategy      string   `json:"strategy"`
	Description   string   `json:"description"`
	Affected      int      `json:"affected"`
	Prerequisites []string `json:"prerequisites"`
	Effort        string   `json:"effort"`
}

// StructuralCause explains a broken reference with the directory audit's
// overlaps and inconsistencies. A nil audit yields CauseNoContext.
func StructuralCause(ref string, audit *inventory.DirectoryAudit) string {
	if audit == nil {
		return CauseNoContext
	}

	for _, o := range audit.Overlaps {
		switch o.Type {
		case inventory.PatternDuplication:
			if strings.Contains(ref, "patterns/") {
				return CausePatternDuplication
			}
		case inventory.FunctionalOverlap:
			for _, dir := range o.Directories {
				for _, part := range strings.Split(dir, "/") {
					if part != "" && strings.Contains(ref, part) {
						return causeOverlapPrefix + strings.ToUpper(o.Category)
					}
				}
			}
		}
	}

	for _, inc := range audit.Inconsistencies {
		if inc.Type == inventory.MissingClaimedDirectory && inc.Claimed != "" && strings.Contains(ref, trimClaude(inc.Claimed)) {
			return CauseMissingClaimedDir
		}
	}
	return CauseUnknown
}

// trimClaude drops the leading claude directory so ".claude/legacy" also
// matches references written relative to it ("legacy/x.md").
func trimClaude(claimed string) string {
	if i := strings.Index(claimed, "/"); i >= 0 && strings.HasPrefix(claimed, ".") {
		return claimed[i+1:]
	}
	return claimed
}

// FixStrategies suggests fixes from the break types, structural causes and
// cycles of a result.
func FixStrategies(r *Result) []FixStrategy {
	breaks := make(map[resolve.BreakType]int)
	causes := make(map[string]int)
	for _, f := range r.Files {
		for _, b := range f.BrokenRefs {
			breaks[b.BreakType]++
			causes[b.StructuralCause]++
		}
	}

	var out []FixStrategy
	if n := breaks[resolve.StructuralReorganization]; n > 10 {
		out = append(out, FixStrategy{
			Priority:      "HIGH",
			Strategy:      "STRUCTURAL_CONSOLIDATION",
			Description:   "Consolidate duplicate directory structures before fixing references",
			Affected:      n,
			Prerequisites: []string{"Directory structure consolidated"},
			Effort:        "HIGH",
		})
	}
	if n := breaks[resolve.RelativePathIssue]; n > 5 {
		out = append(out, FixStrategy{
			Priority:      "MEDIUM",
			Strategy:      "STANDARDIZE_PATHS",
			Description:   "Convert relative paths to root-relative paths",
			Affected:      n,
			Prerequisites: []string{"Directory structure finalized"},
			Effort:        "MEDIUM",
		})
	}
	if n := causes[CausePatternDuplication]; n > 0 {
		out = append(out, FixStrategy{
			Priority:      "CRITICAL",
			Strategy:      "RESOLVE_PATTERN_CONFLICTS",
			Description:   "Eliminate pattern duplication before updating references",
			Affected:      n,
			Prerequisites: []string{"Pattern directories consolidated"},
			Effort:        "HIGH",
		})
	}
	if len(r.Cycles) > 0 {
		affected := 0
		for _, c := range r.Cycles {
			affected += c.Length
		}
		out = append(out, FixStrategy{
			Priority:      "HIGH",
			Strategy:      "BREAK_CIRCULAR_DEPENDENCIES",
			Description:   fmt.Sprintf("Resolve %d circular reference cycles", len(r.Cycles)),
			Affected:      affected,
			Prerequisites: []string{"Reference analysis complete"},
			Effort:        "MEDIUM",
		})
	}
	return out
}

// issuesAndRecommendations derives the critical issue lines and the
// recommendations printed at the end of a report.
func issuesAndRecommendations(r *Result) (issues, recs []string) {
	m := r.Metrics
	if m.BrokenRate > 10 {
		issues = append(issues, fmt.Sprintf("High broken reference rate: %.1f%%", m.BrokenRate))
	}
	if m.IssueRate > 20 {
		issues = append(issues, fmt.Sprintf("Many files with issues: %.1f%% of files", m.IssueRate))
	}
	if m.CycleCount > 0 {
		issues = append(issues, fmt.Sprintf("Circular dependencies found: %d", m.CycleCount))
	}
	if float64(m.OrphanCount) > float64(r.Summary.AnalyzedFiles)*0.3 {
		issues = append(issues, fmt.Sprintf("Many orphaned files: %d files", m.OrphanCount))
	}

	if m.BrokenRate > 5 {
		recs = append(recs, "Fix broken references before XML optimization")
	}
	if m.CycleCount > 0 {
		recs = append(recs, "Resolve circular dependencies to prevent infinite loops")
	}
	if m.OrphanCount > 10 {
		recs = append(recs, "Review orphaned files - consider removal or add references")
	}
	if m.AvgRefsPerFile > 20 {
		recs = append(recs, "High reference density may indicate over-coupling")
	}
	return issues, recs
}
