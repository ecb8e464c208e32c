package quality

import (
	"fmt"
	"strings"
)

// classOrder is the penalty order used when listing issue counts.
var classOrder = []string{ClassCritical, ClassFormat, ClassCompliance, ClassOther}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder

	status := "🟢 PASS"
	if !r.Passed {
		status = "🔴 FAIL"
	}
	b.WriteString("# Quality Report\n\n")
	fmt.Fprintf(&b, "**Executed**: %s  \n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Score**: %.1f/100 %s\n\n", r.Score, status)

	c := r.Complexity
	b.WriteString("## Complexity\n\n")
	fmt.Fprintf(&b, "- **Files**: %d (%d lines, %.1f avg)\n", c.TotalFiles, c.TotalLines, c.AvgFileLines)
	fmt.Fprintf(&b, "- **XML blocks**: %d\n", c.XMLBlocks)
	fmt.Fprintf(&b, "- **Dependencies**: %d\n", c.Dependencies)
	fmt.Fprintf(&b, "- **Patterns**: %d\n", c.Patterns)
	fmt.Fprintf(&b, "- **Quality gates**: %d\n", c.QualityGates)
	fmt.Fprintf(&b, "- **Score**: %.1f (penalty %.1f)\n\n", c.Score(), c.Penalty())

	fmt.Fprintf(&b, "## Issues (%d)\n\n", len(r.Issues))
	b.WriteString("| Class | Count |\n|-------|-------|\n")
	for _, class := range classOrder {
		fmt.Fprintf(&b, "| %s | %d |\n", class, r.IssuesByClass[class])
	}
	b.WriteString("\n")
	for _, is := range r.Issues {
		fmt.Fprintf(&b, "- **%s**: %s\n", is.Class, is.Message)
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(&b, "%d. **%s** (%s, %s effort): %s\n", i+1, rec.Title, rec.Priority, rec.Effort, rec.Description)
			for _, a := range rec.Actions {
				fmt.Fprintf(&b, "   - %s\n", a)
			}
		}
	}
	return b.String()
}
