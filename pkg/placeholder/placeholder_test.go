package placeholder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDetectNodeProject(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"package.json": `{
  "name": "shop",
  "description": "A storefront",
  "version": "1.2.0",
  "author": {"name": "Ann"},
  "dependencies": {"react": "^18.0.0", "pg": "^8.0.0"},
  "devDependencies": {"jest": "^29.0.0"}
}`,
		"src/a.ts":                 "",
		"src/b.ts":                 "",
		"src/c.ts":                 "",
		"src/d.py":                 "",
		".github/workflows/ci.yml": "",
		"vercel.json":              "{}",
	})

	exec := &MockExecutor{Values: map[string]string{
		"user.name":  "Ann Dev",
		"user.email": "ann@acme.io",
	}}
	pc, err := NewDetector(root, exec).Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	wantMeta := Metadata{
		ProjectName:  "shop",
		Description:  "A storefront",
		Author:       "Ann",
		Version:      "1.2.0",
		GitUser:      "Ann Dev",
		GitEmail:     "ann@acme.io",
		Organization: "Acme",
	}
	if diff := cmp.Diff(wantMeta, pc.Metadata); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}

	wantStack := TechStack{
		Languages:         []string{"TypeScript"},
		Frameworks:        []string{"React"},
		Databases:         []string{"PostgreSQL"},
		TestingFrameworks: []string{"Jest"},
		CIPlatform:        "GitHub Actions",
		DeploymentTarget:  "Vercel",
	}
	if diff := cmp.Diff(wantStack, pc.TechStack); diff != "" {
		t.Errorf("TechStack mismatch (-want +got):\n%s", diff)
	}
	if pc.Domain.Domain != "software-development" {
		t.Errorf("Domain = %q, want software-development", pc.Domain.Domain)
	}

	repl := BuildReplacements(pc)
	for key, want := range map[string]string{
		"[INSERT_PROJECT_NAME]":      "shop",
		"[INSERT_COMPANY_NAME]":      "Acme",
		"[INSERT_PRIMARY_LANGUAGE]":  "TypeScript",
		"[INSERT_FRAMEWORK]":         "React",
		"[INSERT_TESTING_FRAMEWORK]": "Jest",
		"[INSERT_DATABASE_TYPE]":     "PostgreSQL",
		"[INSERT_DEPLOYMENT_TARGET]": "Vercel",
		"[INSERT_WORKFLOW_TYPE]":     "agile-development",
		"[INSERT_PACKAGE_MANAGER]":   "npm",
		"[INSERT_TEAM_SIZE]":         "1-5 developers",
	} {
		if got := repl[key]; got != want {
			t.Errorf("replacement %s = %q, want %q", key, got, want)
		}
	}
}

func TestDetectManifestPrecedence(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"package.json":   `{"name": "from-npm", "author": "Bob"}`,
		"pyproject.toml": "[tool.poetry]\nname = \"from-poetry\"\n",
		"Cargo.toml":     "[package]\nname = \"crab\"\nversion = \"0.1.0\"\n",
	})

	pc, err := NewDetector(root, &MockExecutor{}).Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if pc.Metadata.ProjectName != "crab" {
		t.Errorf("ProjectName = %q, want crab", pc.Metadata.ProjectName)
	}
	if pc.Metadata.Author != "Bob" {
		t.Errorf("Author = %q, want Bob", pc.Metadata.Author)
	}
	if pc.Metadata.GitUser != "" || pc.Metadata.Organization != "" {
		t.Errorf("expected no git metadata, got %+v", pc.Metadata)
	}
}

func TestDetectFallsBackToDirName(t *testing.T) {
	root := filepath.Join(t.TempDir(), "my-prompts")
	writeFiles(t, root, map[string]string{"README.md": "# hi"})

	pc, err := NewDetector(root, &MockExecutor{}).Detect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pc.Metadata.ProjectName != "my-prompts" {
		t.Errorf("ProjectName = %q, want my-prompts", pc.Metadata.ProjectName)
	}
	if len(pc.TechStack.Languages) != 0 {
		t.Errorf("Languages = %v, want none", pc.TechStack.Languages)
	}

	repl := BuildReplacements(pc)
	if got := repl["[INSERT_DATABASE_TYPE]"]; got != "SQLite" {
		t.Errorf("DATABASE_TYPE = %q, want SQLite", got)
	}
	if got := repl["[INSERT_TESTING_FRAMEWORK]"]; got != "Unit Testing" {
		t.Errorf("TESTING_FRAMEWORK = %q, want Unit Testing", got)
	}
	if _, ok := repl["[INSERT_COMPANY_NAME]"]; ok {
		t.Error("COMPANY_NAME should be unset without git metadata")
	}
}

func TestDetectMissingRoot(t *testing.T) {
	_, err := NewDetector(filepath.Join(t.TempDir(), "nope"), &MockExecutor{}).Detect(context.Background())
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestOrganizationFromEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"ann@acme.io", "Acme"},
		{"ann@ACME.co.uk", "Acme"},
		{"bob@gmail.com", ""},
		{"not-an-email", ""},
		{"x@", ""},
	}
	for _, tt := range tests {
		if got := organizationFromEmail(tt.email); got != tt.want {
			t.Errorf("organizationFromEmail(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

func TestLanguagesFromCounts(t *testing.T) {
	got := languagesFromCounts(map[string]int{
		".py": 5, ".go": 7, ".rs": 5, ".js": 2, ".md": 40,
	})
	want := []string{"Go", "Python", "Rust"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("languagesFromCounts() mismatch (-want +got):\n%s", diff)
	}
}

func TestReplace(t *testing.T) {
	repl := map[string]string{
		"[INSERT_PROJECT_NAME]": "demo",
		"[INSERT_PORT]":         "3000",
	}
	content := "[INSERT_PROJECT_NAME] on [INSERT_PORT]; [INSERT_PROJECT_NAME] owned by [INSERT_OWNER] and [INSERT_OWNER]"

	if got := Count(content); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}

	out, n := Replace(content, repl)
	if n != 3 {
		t.Errorf("Replace() replaced %d, want 3", n)
	}
	if want := "demo on 3000; demo owned by [INSERT_OWNER] and [INSERT_OWNER]"; out != want {
		t.Errorf("Replace() = %q, want %q", out, want)
	}
	if diff := cmp.Diff([]string{"[INSERT_OWNER]"}, Unresolved(out)); diff != "" {
		t.Errorf("Unresolved() mismatch (-want +got):\n%s", diff)
	}

	r := ProcessContent("x.md", content, repl)
	if r.Percent != 60 || r.FullyAutomated {
		t.Errorf("ProcessContent() = %+v, want 60%% partial", r)
	}
}

func TestPercentNeverExceedsHundred(t *testing.T) {
	repl := map[string]string{"[INSERT_A]": "a"}
	r := ProcessContent("x.md", strings.Repeat("[INSERT_A] ", 10), repl)
	if r.Percent != 100 || !r.FullyAutomated {
		t.Errorf("ProcessContent() = %+v, want 100%% fully automated", r)
	}
}

func TestApplyExample(t *testing.T) {
	pc := &ProjectContext{Metadata: Metadata{ProjectName: "demo"}}
	repl := BuildReplacements(pc)
	out := t.TempDir()

	s, err := Apply(filepath.Join("..", "..", "example", ".claude"), []string{"*.md"}, out, repl)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if s.TotalPlaceholders != 4 || s.TotalReplacements != 3 {
		t.Errorf("totals = %d/%d, want 3/4", s.TotalReplacements, s.TotalPlaceholders)
	}
	if s.Percent != 75 || !s.TargetAchieved {
		t.Errorf("Percent = %.1f (target %v), want 75 achieved", s.Percent, s.TargetAchieved)
	}
	if s.FullyAutomated != 1 || s.PartiallyAutomated != 1 || s.NotAutomated != 0 {
		t.Errorf("classification = %d/%d/%d, want 1/1/0", s.FullyAutomated, s.PartiallyAutomated, s.NotAutomated)
	}
	if diff := cmp.Diff([]string{"[INSERT_BUDGET_OWNER]"}, s.Unresolved); diff != "" {
		t.Errorf("Unresolved mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(out, "commands", "core", "task.md"))
	if err != nil {
		t.Fatalf("filled copy not written: %v", err)
	}
	if !strings.Contains(string(data), "Team: 1-5 developers. Budget owner: [INSERT_BUDGET_OWNER].") {
		t.Errorf("unexpected filled content:\n%s", data)
	}
	if !strings.Contains(string(data), "development task for demo") {
		t.Errorf("project name not filled:\n%s", data)
	}
}

func TestApplyWithoutOutput(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.md":  "[INSERT_PORT]",
		"b.txt": "[INSERT_PORT]",
	})

	s, err := Apply(dir, nil, "", map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Files) != 1 || s.NotAutomated != 1 || s.TargetAchieved {
		t.Errorf("Apply() = %+v, want one unautomated file", s)
	}

	// Source files are untouched.
	data, _ := os.ReadFile(filepath.Join(dir, "a.md"))
	if string(data) != "[INSERT_PORT]" {
		t.Errorf("source modified: %q", data)
	}
}
