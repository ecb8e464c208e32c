package quality

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/swm-sink/promptaudit/pkg/analysis"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"Missing front matter in x.md", ClassCritical},
		{"Broken reference 'a' in x.md", ClassCritical},
		{"Invalid front matter format in x.md", ClassFormat},
		{"Invalid version table in x.md", ClassFormat},
		{"Non-compliant timestamp '2020-01-01' in x.md", ClassCompliance},
		{"Circular dependency: a → b → a", ClassOther},
		// first match wins
		{"Missing version table in x.md", ClassCritical},
	}
	for _, tt := range tests {
		if got := Classify(tt.msg); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestComplexityScore(t *testing.T) {
	tests := []struct {
		name        string
		c           Complexity
		wantScore   float64
		wantPenalty float64
	}{
		{"small", Complexity{TotalFiles: 10, XMLBlocks: 2}, 7, 0},
		{"at threshold", Complexity{TotalFiles: 20, Dependencies: 10}, 30, 0},
		{"over threshold", Complexity{TotalFiles: 20, Dependencies: 10, Patterns: 4}, 36, 3},
		{"capped", Complexity{TotalFiles: 200}, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Score(); got != tt.wantScore {
				t.Errorf("Score() = %v, want %v", got, tt.wantScore)
			}
			if got := tt.c.Penalty(); got != tt.wantPenalty {
				t.Errorf("Penalty() = %v, want %v", got, tt.wantPenalty)
			}
		})
	}
}

func TestComputeScore(t *testing.T) {
	issues := []Issue{
		{Class: ClassCritical},
		{Class: ClassFormat},
		{Class: ClassCompliance},
		{Class: ClassOther},
	}
	if got := ComputeScore(issues, Complexity{}); got != 75 {
		t.Errorf("ComputeScore() = %v, want 75", got)
	}

	many := make([]Issue, 10)
	for i := range many {
		many[i].Class = ClassCritical
	}
	if got := ComputeScore(many, Complexity{}); got != 0 {
		t.Errorf("ComputeScore() = %v, want floor at 0", got)
	}
}

func TestAnalyzeExample(t *testing.T) {
	root := filepath.Join("..", "..", "example")
	res, err := analysis.Run(context.Background(), analysis.Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}

	r, err := Analyze(context.Background(), Options{Root: root, Analysis: res})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if r.Complexity.TotalFiles != 5 {
		t.Errorf("TotalFiles = %d, want 5", r.Complexity.TotalFiles)
	}
	wantClasses := map[string]int{ClassCritical: 5, ClassOther: 1}
	if diff := cmp.Diff(wantClasses, r.IssuesByClass); diff != "" {
		t.Errorf("IssuesByClass mismatch (-want +got):\n%s", diff)
	}
	if r.Score != 23 || r.Passed {
		t.Errorf("Score = %v, Passed = %v; want 23, false", r.Score, r.Passed)
	}
	if len(r.Recommendations) != 1 || r.Recommendations[0].Priority != "CRITICAL" {
		t.Errorf("Recommendations = %+v", r.Recommendations)
	}
}

func TestAnalyzeModulesAndTimestamps(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".claude/modules/patterns/retry.md", "```xml\n<depends_on>a</depends_on>\n<uses_pattern name=\"x\"/>\n```\n")
	writeFile(t, root, ".claude/modules/gates/check.md", "<gate name=\"lint\"/>\n")
	writeFile(t, root, ".claude/commands/go.md", "---\nname: go\ndescription: Go\n---\nbody\n")
	writeFile(t, root, ".claude/components/bad.md", "---\nname: [unclosed\n---\n")
	writeFile(t, root, ".claude/components/anon.md", "---\ndescription: no name\n---\n")
	writeFile(t, root, "docs/notes.md", "Updated 2023-05-01, again 2023-05-01, reviewed 2026-01-02.\n")
	writeFile(t, root, ".hidden/old.md", "2001-01-01\n")

	r, err := Analyze(context.Background(), Options{
		Root:        root,
		StaleBefore: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	c := r.Complexity
	if c.TotalFiles != 4 || c.XMLBlocks != 1 || c.Dependencies != 1 || c.Patterns != 1 || c.QualityGates != 1 {
		t.Errorf("Complexity = %+v", c)
	}
	if diff := cmp.Diff(map[string]int{"patterns": 1, "gates": 1}, c.ModulesByCategory); diff != "" {
		t.Errorf("ModulesByCategory mismatch (-want +got):\n%s", diff)
	}

	var msgs []string
	for _, is := range r.Issues {
		msgs = append(msgs, is.Message)
	}
	want := []string{
		"Missing required field 'name' in .claude/components/anon.md",
		"Invalid front matter format in .claude/components/bad.md",
		"Non-compliant timestamp '2023-05-01' in docs/notes.md",
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("Issues mismatch (-want +got):\n%s", diff)
	}
	// 15 + 5 + 3
	if r.Score != 77 {
		t.Errorf("Score = %v, want 77", r.Score)
	}
	if r.History().Issues != 3 {
		t.Errorf("History().Issues = %d", r.History().Issues)
	}
}

func TestMarkdown(t *testing.T) {
	r := &Report{
		GeneratedAt:   time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
		Score:         62,
		Issues:        []Issue{{Message: "Broken reference x.md in a.md", Class: ClassCritical}},
		IssuesByClass: map[string]int{ClassCritical: 1},
		Recommendations: []Recommendation{{
			Priority: "CRITICAL", Title: "Fix it", Description: "Quality score 62.0/100", Effort: "1 hour",
			Actions: []string{"Repair links"},
		}},
	}
	md := r.Markdown()
	for _, want := range []string{
		"**Score**: 62.0/100 🔴 FAIL",
		"| critical | 1 |",
		"| other | 0 |",
		"- **critical**: Broken reference x.md in a.md",
		"1. **Fix it** (CRITICAL, 1 hour effort): Quality score 62.0/100",
		"   - Repair links",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown() missing %q\n%s", want, md)
		}
	}
}
