package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/swm-sink/promptaudit/pkg/analysis"
)

// PrintConsole prints a colored summary of r to w.
func PrintConsole(w io.Writer, r *analysis.Result) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	s, m := r.Summary, r.Metrics

	// Header
	bold.Fprintln(w, "Cross-Reference Analysis Report")
	bold.Fprintln(w, "===============================")
	fmt.Fprintf(w, "Root: %s\n", r.Root)
	if r.XMLOnly {
		fmt.Fprintf(w, "Scope: XML-tagged files only (%d of %d)\n", s.AnalyzedFiles, s.IndexedFiles)
	} else {
		fmt.Fprintf(w, "Scanned: %d markdown files (%d commands, %d components)\n", s.AnalyzedFiles, s.Commands, s.Components)
	}
	fmt.Fprintf(w, "References: %d total, %d valid, %d broken\n", s.TotalRefs, s.ValidRefs, s.BrokenRefs)
	if len(r.Skipped) > 0 {
		yellow.Fprintf(w, "Skipped: %d file(s)\n", len(r.Skipped))
	}

	qualityColor := green
	switch m.Quality {
	case analysis.QualityPoor:
		qualityColor = yellow
	case analysis.QualityCritical:
		qualityColor = red
	}
	qualityColor.Fprintf(w, "Validity: %.1f%% (%s)\n", m.ValidityRate, m.Quality)
	fmt.Fprintln(w)

	if kinds := kindCounts(r); len(kinds) > 0 {
		bold.Fprintln(w, "REFERENCE TYPES:")
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-14s %d\n", k.Path, k.Count)
		}
		fmt.Fprintln(w)
	}

	if files := brokenFiles(r); len(files) > 0 {
		red.Fprintln(w, "FILES WITH BROKEN REFERENCES:")
		for i, f := range files {
			yellow.Fprintf(w, "  %s", f.Path)
			fmt.Fprintf(w, " (%d broken)\n", f.Broken)
			if i >= maxBrokenDetail {
				continue
			}
			for _, b := range limit(f.BrokenRefs, maxBrokenDetail) {
				cyan.Fprintf(w, "    line %d: %s", b.Line, b.Raw)
				fmt.Fprintf(w, " [%s]\n", b.BreakType)
			}
		}
		fmt.Fprintln(w)
	}

	if len(s.MostReferenced) > 0 {
		bold.Fprintln(w, "MOST REFERENCED:")
		for _, t := range limit(s.MostReferenced, maxReferenced) {
			fmt.Fprintf(w, "  %3d  %s\n", t.Count, t.Path)
		}
		fmt.Fprintln(w)
	}

	if len(r.Cycles) > 0 {
		red.Fprintf(w, "CIRCULAR REFERENCES (%d):\n", len(r.Cycles))
		for _, c := range limit(r.Cycles, maxCycles) {
			fmt.Fprintf(w, "  %s\n", strings.Join(c.Files, " → "))
			cyan.Fprintf(w, "    Severity: %s, Impact: %s\n", c.Severity, c.Impact)
		}
		fmt.Fprintln(w)
	}

	if len(r.Orphans) > 0 {
		yellow.Fprintf(w, "ORPHANED FILES (%d):\n", len(r.Orphans))
		for _, o := range limit(r.Orphans, maxOrphans) {
			fmt.Fprintf(w, "  %s\n", o)
		}
		if n := len(r.Orphans) - maxOrphans; n > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", n)
		}
		fmt.Fprintln(w)
	}

	if len(r.Categories) > 0 {
		bold.Fprintln(w, "CATEGORIES:")
		for _, c := range r.Categories {
			if c.Total == 0 {
				fmt.Fprintf(w, "  -  %-24s %d files, no references\n", c.Category, c.Files)
				continue
			}
			fmt.Fprintf(w, "  %s %-24s %.1f%% (%d/%d)\n", categoryMark(c.Validity), c.Category, c.Validity, c.Valid, c.Total)
		}
		fmt.Fprintln(w)
	}

	if len(r.Issues) > 0 {
		red.Fprintln(w, "CRITICAL ISSUES:")
		for _, issue := range r.Issues {
			red.Fprintf(w, "  ✗ %s\n", issue)
		}
		fmt.Fprintln(w)
	}

	if len(r.Recommendations) > 0 {
		bold.Fprintln(w, "RECOMMENDATIONS:")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(w, "  %d. %s\n", i+1, rec)
		}
		fmt.Fprintln(w)
	}

	// Summary line, colored by quality
	if s.BrokenRefs == 0 && len(r.Cycles) == 0 {
		green.Fprintln(w, "✓ All references resolve and no cycles were found!")
		return
	}
	qualityColor.Fprintf(w, "Summary: %.0f%% valid (%d/%d references), %d cycle(s), %d orphan(s)\n",
		m.ValidityRate, s.ValidRefs, s.TotalRefs, len(r.Cycles), len(r.Orphans))
}
