package bench

import (
	"fmt"
	"strings"
)

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# Performance Benchmark Results\n\n")
	fmt.Fprintf(&b, "**Executed**: %s  \n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Overall Grade**: %s (%.1f)\n\n", r.OverallGrade, r.OverallScore)

	b.WriteString("## Category Performance\n\n")
	for _, c := range r.Categories {
		fmt.Fprintf(&b, "### %s: %s\n", c.Category, c.Grade)
		fmt.Fprintf(&b, "- **Score**: %.1f/100\n", c.Score)
		fmt.Fprintf(&b, "- **Metrics**: %d\n\n", c.Metrics)
	}

	b.WriteString("## Detailed Metrics\n\n")
	b.WriteString("| Metric | Value | Unit | Category | Status | Target |\n")
	b.WriteString("|--------|-------|------|----------|--------|--------|\n")
	for _, m := range r.Metrics {
		target := "N/A"
		if m.Target != nil {
			target = fmt.Sprintf("%.1f%s", *m.Target, m.Unit)
		}
		fmt.Fprintf(&b, "| %s | %.3f | %s | %s | %s | %s |\n", m.Name, m.Value, m.Unit, m.Category, m.Status, target)
	}

	b.WriteString("\n## Recommendations\n\n")
	for i, rec := range r.Recommendations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
	}
	if len(r.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}
