package report

import (
	"fmt"
	"strings"

	"github.com/swm-sink/promptaudit/pkg/analysis"
)

// Markdown renders r as a markdown report with the same sections as
// PrintConsole plus the fix strategies and category flows.
func Markdown(r *analysis.Result) string {
	var b strings.Builder
	s, m := r.Summary, r.Metrics

	b.WriteString("# Cross-Reference Analysis Report\n\n")
	fmt.Fprintf(&b, "**Generated**: %s  \n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Root**: `%s`  \n", r.Root)
	fmt.Fprintf(&b, "**Quality**: %s\n\n", m.Quality)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Files analyzed | %d of %d |\n", s.AnalyzedFiles, s.IndexedFiles)
	fmt.Fprintf(&b, "| XML-tagged files | %d |\n", s.XMLTaggedFiles)
	fmt.Fprintf(&b, "| Total references | %d |\n", s.TotalRefs)
	fmt.Fprintf(&b, "| Valid references | %d |\n", s.ValidRefs)
	fmt.Fprintf(&b, "| Broken references | %d |\n", s.BrokenRefs)
	fmt.Fprintf(&b, "| Validity rate | %.1f%% |\n", m.ValidityRate)
	fmt.Fprintf(&b, "| Files with issues | %d (%.1f%%) |\n", m.FilesWithIssues, m.IssueRate)
	fmt.Fprintf(&b, "| Avg refs per file | %.1f |\n", m.AvgRefsPerFile)
	fmt.Fprintf(&b, "| Cycles | %d |\n", m.CycleCount)
	fmt.Fprintf(&b, "| Orphans | %d |\n\n", m.OrphanCount)

	if kinds := kindCounts(r); len(kinds) > 0 {
		b.WriteString("## Reference Types\n\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "- **%s**: %d\n", k.Path, k.Count)
		}
		b.WriteString("\n")
	}

	if files := brokenFiles(r); len(files) > 0 {
		b.WriteString("## Broken References\n\n")
		for i, f := range files {
			fmt.Fprintf(&b, "### `%s` (%d broken)\n\n", f.Path, f.Broken)
			if i >= maxBrokenDetail {
				continue
			}
			for _, br := range limit(f.BrokenRefs, maxBrokenDetail) {
				fmt.Fprintf(&b, "- line %d: `%s` (%s)\n", br.Line, br.Raw, br.BreakType)
			}
			b.WriteString("\n")
		}
	}

	if len(s.MostReferenced) > 0 {
		b.WriteString("## Most Referenced Files\n\n")
		for _, t := range limit(s.MostReferenced, maxReferenced) {
			fmt.Fprintf(&b, "- `%s`: %d\n", t.Path, t.Count)
		}
		b.WriteString("\n")
	}

	if len(r.Cycles) > 0 {
		fmt.Fprintf(&b, "## Circular References (%d)\n\n", len(r.Cycles))
		for i, c := range limit(r.Cycles, maxCycles) {
			fmt.Fprintf(&b, "%d. %s  \n   Severity: %s, Impact: %s\n", i+1, strings.Join(c.Files, " → "), c.Severity, c.Impact)
		}
		b.WriteString("\n")
	}

	if len(r.Orphans) > 0 {
		fmt.Fprintf(&b, "## Orphaned Files (%d)\n\n", len(r.Orphans))
		for _, o := range limit(r.Orphans, maxOrphans) {
			fmt.Fprintf(&b, "- `%s`\n", o)
		}
		if n := len(r.Orphans) - maxOrphans; n > 0 {
			fmt.Fprintf(&b, "- ... and %d more\n", n)
		}
		b.WriteString("\n")
	}

	if len(r.Categories) > 0 {
		b.WriteString("## Categories\n\n")
		b.WriteString("| Category | Files | Valid | Total | Validity |\n|---|---|---|---|---|\n")
		for _, c := range r.Categories {
			validity := "n/a"
			if c.Total > 0 {
				validity = fmt.Sprintf("%s %.1f%%", categoryMark(c.Validity), c.Validity)
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %s |\n", c.Category, c.Files, c.Valid, c.Total, validity)
		}
		b.WriteString("\n")
	}

	if flows := analysis.SortedFlows(r.CategoryFlows); len(flows) > 0 {
		b.WriteString("## Category Flows\n\n")
		for _, f := range flows {
			fmt.Fprintf(&b, "- %s: %d\n", f.Path, f.Count)
		}
		b.WriteString("\n")
	}

	if len(r.FixStrategies) > 0 {
		b.WriteString("## Fix Strategies\n\n")
		for _, fs := range r.FixStrategies {
			fmt.Fprintf(&b, "- **[%s] %s**: %s (%d affected, effort %s)\n", fs.Priority, fs.Strategy, fs.Description, fs.Affected, fs.Effort)
		}
		b.WriteString("\n")
	}

	if len(r.Issues) > 0 {
		b.WriteString("## Critical Issues\n\n")
		for _, issue := range r.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
		b.WriteString("\n")
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
		b.WriteString("\n")
	}

	return b.String()
}
