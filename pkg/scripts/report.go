package scripts

import (
	"fmt"
	"strings"
	"time"
)

// Report renders the analysis as markdown.
func Report(a *Analysis, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Script Validation Report\n\n")
	fmt.Fprintf(&b, "**Date:** %s  \n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Scripts Directory:** %s  \n", a.Dir)
	fmt.Fprintf(&b, "**Total Scripts:** %d  \n", a.Total)
	fmt.Fprintf(&b, "**Successfully Analyzed:** %d  \n", a.Analyzed)
	fmt.Fprintf(&b, "**Analysis Failures:** %d\n\n", len(a.Failed))

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "**Duplications Found:** %d  \n", len(a.Duplications))
	fmt.Fprintf(&b, "**Conflicts Found:** %d\n\n", len(a.Conflicts))

	fmt.Fprintf(&b, "## Validation Status\n\n")
	if a.Passed() {
		fmt.Fprintf(&b, "🟢 PASS - No duplicate scripts or function signatures\n\n")
	} else {
		fmt.Fprintf(&b, "🔴 FAIL - Duplicate scripts or function signatures found\n\n")
	}

	writeFindings(&b, "Duplications", a.Duplications)
	writeFindings(&b, "Conflicts", a.Conflicts)

	if len(a.Failed) > 0 {
		fmt.Fprintf(&b, "## Analysis Failures\n\n")
		for _, f := range a.Failed {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.Path, f.Error)
		}
		b.WriteString("\n")
	}

	if len(a.Scripts) > 0 {
		fmt.Fprintf(&b, "## Scripts\n\n")
		fmt.Fprintf(&b, "| Script | Functions | Classes | Imports | Purpose |\n")
		fmt.Fprintf(&b, "|--------|-----------|---------|---------|---------|\n")
		for _, s := range a.Scripts {
			fmt.Fprintf(&b, "| `%s` | %d | %d | %d | %s |\n",
				s.Path, len(s.Functions), len(s.Classes), len(s.Imports), s.Purpose)
		}
		b.WriteString("\n")
	}

	if len(a.Recommendations) > 0 {
		fmt.Fprintf(&b, "## Recommendations\n\n")
		for i, r := range a.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}
	return b.String()
}

func writeFindings(b *strings.Builder, title string, findings []Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, f := range findings {
		fmt.Fprintf(b, "### %s (%s)\n\n", f.Description, strings.ToUpper(f.Severity))
		for _, s := range f.Scripts {
			fmt.Fprintf(b, "- `%s`\n", s)
		}
		b.WriteString("\n")
	}
}
