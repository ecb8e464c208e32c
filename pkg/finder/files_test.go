package finder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFindMarkdownFiles(t *testing.T) {
	// Test against the real example prompt library
	examplePath := filepath.Join("..", "..", "example")

	files, err := FindMarkdownFiles(examplePath)
	if err != nil {
		t.Fatalf("FindMarkdownFiles() error = %v", err)
	}

	want := []string{
		".claude/commands/core/auto.md",
		".claude/commands/core/task.md",
		".claude/commands/meta/help.md",
		".claude/commands/quality/review.md",
		".claude/components/atomic/input-validation.md",
		".claude/components/intelligence/router.md",
		".claude/components/orchestration/dag.md",
		".claude/components/security/audit.md",
		".claude/context/standards.md",
		"CLAUDE.md",
		"README.md",
		"docs/guide.md",
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("FindMarkdownFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestFindMarkdownFilesSkipsBackupsAndVCS(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"keep.md",
		".git/HEAD.md",
		".backup_20250803/old.md",
		"node_modules/pkg/readme.md",
		"sub/notes.MD",
		"sub/code.py",
	} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := FindMarkdownFiles(root)
	if err != nil {
		t.Fatalf("FindMarkdownFiles() error = %v", err)
	}
	want := []string{"keep.md", "sub/notes.MD"}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{".claude/commands/core/task.md", CategoryCoreCommand},
		{".claude/commands/meta/help.md", CategoryMetaCommand},
		{".claude/commands/quality/review.md", CategoryQualityCommand},
		{".claude/commands/devops/deploy.md", CategoryOtherCommand},
		{".claude/components/atomic/x.md", CategoryAtomicComponent},
		{".claude/components/security/x.md", CategorySecurityComponent},
		{".claude/components/orchestration/x.md", CategoryOrchestrationComp},
		{".claude/components/intelligence/x.md", CategoryIntelligenceComp},
		{".claude/components/misc/x.md", CategoryOtherComponent},
		{".claude/context/standards.md", CategoryContext},
		{"docs/xml-schema/tags.md", CategoryXMLSchemaDoc},
		{"README.md", CategoryRootDocumentation},
	}
	for _, tt := range tests {
		if got := Categorize(tt.path, ".claude"); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	if got := Categorize("prompts/commands/core/a.md", "prompts"); got != CategoryCoreCommand {
		t.Errorf("custom claude dir: got %q", got)
	}
}

func TestNewIndex(t *testing.T) {
	idx, err := NewIndex(filepath.Join("..", "..", "example"), ".claude")
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}

	if idx.Len() != 12 {
		t.Errorf("Len() = %d, want 12", idx.Len())
	}

	task, ok := idx.Lookup(".claude/commands/core/task.md")
	if !ok {
		t.Fatal("task.md not indexed")
	}
	if !task.XMLTagged {
		t.Error("task.md should be XML tagged")
	}
	if task.FrontMatter == nil || task.FrontMatter.Name != "task" {
		t.Errorf("task.md front matter = %+v", task.FrontMatter)
	}
	if diff := cmp.Diff([]string{"development", "tdd"}, task.FrontMatter.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	help, _ := idx.Lookup(".claude/commands/meta/help.md")
	if help.XMLTagged || help.FrontMatter != nil {
		t.Errorf("help.md should have neither metadata nor front matter: %+v", help)
	}

	if got := idx.ByName("task.md"); len(got) != 1 || got[0] != ".claude/commands/core/task.md" {
		t.Errorf("ByName(task.md) = %v", got)
	}
}

func TestParseFrontMatter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *FrontMatter
		wantErr bool
	}{
		{
			name:    "none",
			content: "# Title\n",
		},
		{
			name:    "simple",
			content: "---\nname: x\ndescription: does x\n---\nbody\n",
			want:    &FrontMatter{Name: "x", Description: "does x"},
		},
		{
			name:    "unterminated",
			content: "---\nname: x\n",
		},
		{
			name:    "malformed",
			content: "---\nname: [unclosed\n---\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrontMatter([]byte(tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
