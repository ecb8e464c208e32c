package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/swm-sink/promptaudit/pkg/finder"
)

var exampleRoot = filepath.Join("..", "..", "example")

func TestTake(t *testing.T) {
	inv, err := Take(exampleRoot, ".claude")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}

	if inv.Commands != 4 {
		t.Errorf("Commands = %d, want 4", inv.Commands)
	}
	if inv.Components != 4 {
		t.Errorf("Components = %d, want 4", inv.Components)
	}
	if inv.Contexts != 1 {
		t.Errorf("Contexts = %d, want 1", inv.Contexts)
	}
	if got := inv.ByCategory[finder.CategoryCoreCommand]; got != 2 {
		t.Errorf("ByCategory[Core Command] = %d, want 2", got)
	}

	wantCommands := []string{
		".claude/commands/core/auto.md",
		".claude/commands/core/task.md",
		".claude/commands/meta/help.md",
		".claude/commands/quality/review.md",
	}
	if diff := cmp.Diff(wantCommands, inv.CommandPaths); diff != "" {
		t.Errorf("CommandPaths mismatch (-want +got):\n%s", diff)
	}
}

func TestTakeSkipsReadme(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".claude", "components", "atomic")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"README.md", "a.md", "b.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("# x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	inv, err := Take(root, ".claude")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if inv.Components != 2 {
		t.Errorf("Components = %d, want 2", inv.Components)
	}
	if inv.Commands != 0 {
		t.Errorf("Commands = %d, want 0 for a missing directory", inv.Commands)
	}
}

func TestCheckReadmeClaims(t *testing.T) {
	inv, err := Take(exampleRoot, ".claude")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := CheckReadmeClaims(filepath.Join(exampleRoot, "README.md"), inv)
	if err != nil {
		t.Fatalf("CheckReadmeClaims() error = %v", err)
	}

	want := []Claim{
		{Noun: "commands", Claimed: 4, Actual: 4, Line: 3},
		{Noun: "components", Claimed: 5, Actual: 4, Line: 4},
	}
	if diff := cmp.Diff(want, claims); diff != "" {
		t.Errorf("claims mismatch (-want +got):\n%s", diff)
	}

	bad := Mismatched(claims)
	if len(bad) != 1 || bad[0].Noun != "components" {
		t.Errorf("Mismatched() = %+v, want only the components claim", bad)
	}
}

func TestMentionsCount(t *testing.T) {
	content := []byte("This library has 12 Commands and 1 component.")

	tests := []struct {
		noun  string
		count int
		want  bool
	}{
		{"commands", 12, true},
		{"command", 12, true},
		{"commands", 11, false},
		{"components", 1, true},
	}
	for _, tt := range tests {
		if got := MentionsCount(content, tt.noun, tt.count); got != tt.want {
			t.Errorf("MentionsCount(%q, %d) = %v, want %v", tt.noun, tt.count, got, tt.want)
		}
	}
}

func TestCheckExpectedCounts(t *testing.T) {
	inv := &Inventory{Commands: 4, Components: 90}

	got := CheckExpectedCounts(inv, map[string]int{"components": 91, "commands": 4, "contexts": 0})
	want := []Mismatch{{Noun: "components", Expected: 91, Actual: 90}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CheckExpectedCounts mismatch (-want +got):\n%s", diff)
	}
}

func TestAuditDirectories(t *testing.T) {
	audit, err := AuditDirectories(exampleRoot, ".claude", "README.md", "CLAUDE.md", "MISSING.md")
	if err != nil {
		t.Fatalf("AuditDirectories() error = %v", err)
	}

	if got := len(audit.Directories); got != 11 {
		t.Errorf("Directories = %d, want 11", got)
	}

	wantClaims := []DirectoryClaim{
		{Path: ".claude/commands", Source: "CLAUDE.md", Line: 3},
		{Path: ".claude/components", Source: "CLAUDE.md", Line: 3},
		{Path: ".claude/legacy", Source: "CLAUDE.md", Line: 4},
	}
	if diff := cmp.Diff(wantClaims, audit.Claims); diff != "" {
		t.Errorf("Claims mismatch (-want +got):\n%s", diff)
	}

	types := make(map[string][]string)
	for _, inc := range audit.Inconsistencies {
		types[inc.Type] = append(types[inc.Type], inc.Claimed+firstOf(inc.Actual))
	}
	wantTypes := map[string][]string{
		MissingClaimedDirectory: {".claude/legacy"},
		UndocumentedDirectory:   {".claude/context"},
	}
	if diff := cmp.Diff(wantTypes, types); diff != "" {
		t.Errorf("Inconsistencies mismatch (-want +got):\n%s", diff)
	}

	if len(audit.Overlaps) != 0 {
		t.Errorf("Nested command directories should not overlap, got %+v", audit.Overlaps)
	}
	if len(audit.Recommendations) != 1 || audit.Recommendations[0].Action != "RECONCILE_DOCUMENTATION" {
		t.Errorf("Recommendations = %+v", audit.Recommendations)
	}
}

func TestFindOverlaps(t *testing.T) {
	dirs := []Directory{
		{Path: ".claude/modules/patterns", Files: 12, Purpose: InferPurpose(".claude/modules/patterns", nil)},
		{Path: ".claude/prompt_eng/patterns", Files: 10, Purpose: InferPurpose(".claude/prompt_eng/patterns", nil)},
		{Path: ".claude/modules/quality", Files: 2, Purpose: InferPurpose(".claude/modules/quality", nil)},
	}

	overlaps := findOverlaps(dirs)
	if len(overlaps) != 2 {
		t.Fatalf("Expected 2 overlaps, got %+v", overlaps)
	}
	if overlaps[0].Category != "patterns" || overlaps[0].Severity != "HIGH" || overlaps[0].TotalFiles != 22 {
		t.Errorf("patterns overlap = %+v", overlaps[0])
	}
	if overlaps[1].Type != PatternDuplication || overlaps[1].Severity != "CRITICAL" {
		t.Errorf("duplication overlap = %+v", overlaps[1])
	}
}

func TestInferPurpose(t *testing.T) {
	tests := []struct {
		dir   string
		files []string
		want  string
	}{
		{".claude/commands/core", nil, "Command definitions for Claude Code"},
		{".claude/system/git", nil, "Git operations and worktree management"},
		{".claude/misc", []string{"test-plan.md"}, "Testing-related functionality"},
		{".claude/misc", []string{"notes.md"}, unknownPurpose},
	}
	for _, tt := range tests {
		if got := InferPurpose(tt.dir, tt.files); got != tt.want {
			t.Errorf("InferPurpose(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func firstOf(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
