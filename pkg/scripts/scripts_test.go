package scripts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sample = `r"""Sync prompt templates with the registry.

More detail here.
"""
import os.path as osp, sys
from typing import Dict as D, List
from .helpers import *


def plain(a, b: int, c=1, d: str = "x", *args, e, **kw):
    """Do a thing."""
    return a


@cache
def decorated(self):
    pass


class Registry(Base):
    """Holds templates."""

    def __init__(self, root):
        self.root = root

    @property
    def size(self):
        def inner(x):
            return x
        return 0


if __name__ == "__main__":
    def main():
        plain(1, 2)
`

func TestParse(t *testing.T) {
	s, err := newParser().Parse(context.Background(), "sync.py", []byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !strings.HasPrefix(s.Docstring, "Sync prompt templates") {
		t.Errorf("Docstring = %q", s.Docstring)
	}
	if s.Purpose != "Sync prompt templates with the registry." {
		t.Errorf("Purpose = %q", s.Purpose)
	}
	if !s.HasMain || s.CLI {
		t.Errorf("HasMain = %v, CLI = %v", s.HasMain, s.CLI)
	}

	var sigs []string
	for _, f := range s.Functions {
		sigs = append(sigs, f.Class+":"+f.Signature())
	}
	wantSigs := []string{
		":plain(a, b, c, d)",
		":decorated(self)",
		"Registry:__init__(self, root)",
		"Registry:size(self)",
		":inner(x)",
		":main()",
	}
	if diff := cmp.Diff(wantSigs, sigs); diff != "" {
		t.Errorf("functions mismatch (-want +got):\n%s", diff)
	}
	if !s.Functions[0].HasDocstring || s.Functions[1].HasDocstring {
		t.Errorf("docstring flags = %v, %v", s.Functions[0].HasDocstring, s.Functions[1].HasDocstring)
	}

	wantClasses := []Class{{Name: "Registry", Line: 20, Methods: []string{"__init__", "size"}, HasDocstring: true}}
	if diff := cmp.Diff(wantClasses, s.Classes); diff != "" {
		t.Errorf("classes mismatch (-want +got):\n%s", diff)
	}

	wantImports := []Import{
		{Module: "os.path", Alias: "osp"},
		{Module: "sys"},
		{Module: "typing", Name: "Dict", Alias: "D"},
		{Module: "typing", Name: "List"},
		{Module: ".helpers", Name: "*"},
	}
	if diff := cmp.Diff(wantImports, s.Imports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := newParser().Parse(context.Background(), "bad.py", []byte("def broken(:\n    pass\n"))
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("Parse() error = %v, want ErrSyntax", err)
	}
}

func TestParseArgparse(t *testing.T) {
	s, err := newParser().Parse(context.Background(), "cli.py", []byte("import argparse\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !s.CLI || s.Docstring != "" {
		t.Errorf("CLI = %v, Docstring = %q", s.CLI, s.Docstring)
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"""doc"""`, "doc"},
		{`'''doc'''`, "doc"},
		{`"doc"`, "doc"},
		{`r'doc'`, "doc"},
		{`""`, ""},
	}
	for _, tt := range tests {
		if got := unquote(tt.in); got != tt.want {
			t.Errorf("unquote(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateExample(t *testing.T) {
	a, err := Validate(context.Background(), "../../example/scripts")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if a.Total != 2 || a.Analyzed != 2 || len(a.Failed) != 0 {
		t.Errorf("Total = %d, Analyzed = %d, Failed = %v", a.Total, a.Analyzed, a.Failed)
	}

	both := []string{"build_index.py", "check_links.py"}
	want := []Finding{
		{
			Type:        DuplicateFunction,
			Severity:    SeverityMedium,
			Subject:     "load_config(path)",
			Scripts:     both,
			Description: "Function load_config(path) defined in multiple scripts",
		},
		{
			Type:        DuplicateFunction,
			Severity:    SeverityMedium,
			Subject:     "validate(self)",
			Scripts:     both,
			Description: "Function validate(self) defined in multiple scripts",
		},
		{
			Type:        DuplicateClass,
			Severity:    SeverityMedium,
			Subject:     "Validator",
			Scripts:     both,
			Description: "Class Validator defined in multiple scripts",
		},
	}
	if diff := cmp.Diff(want, a.Duplications); diff != "" {
		t.Errorf("Duplications mismatch (-want +got):\n%s", diff)
	}
	if len(a.Conflicts) != 0 {
		t.Errorf("Conflicts = %v, want none", a.Conflicts)
	}
	if a.Passed() {
		t.Error("Passed() = true with duplicate function signatures")
	}
	if diff := cmp.Diff([]string{"Consolidate duplicate functions and classes into shared modules"}, a.Recommendations); diff != "" {
		t.Errorf("Recommendations mismatch (-want +got):\n%s", diff)
	}
}

func writeScripts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestValidateFindings(t *testing.T) {
	dup := "\"\"\"Copy of a helper.\"\"\"\n\ndef helper(x):\n    return x\n"
	dir := writeScripts(t, map[string]string{
		"a.py":                 dup,
		"sub/b.py":             dup,
		"x/util.py":            "\"\"\"Utilities one.\"\"\"\nimport requests\n",
		"y/util.py":            "\"\"\"Utilities two.\"\"\"\nimport requests\nimport json\n",
		"z/c.py":               "import requests\n",
		"z/d.py":               "import requests\nimport json\n",
		"broken.py":            "def broken(:\n",
		"__pycache__/e.py":     dup,
		".hidden/f.py":         dup,
		"notes.txt":            "def helper(x): pass\n",
		"main_only.py":         "def main():\n    pass\n",
		"other_main.py":        "def main():\n    pass\n\nclass A:\n    def __init__(self):\n        pass\n",
		"another_main.py":      "class A:\n    def __init__(self):\n        pass\n",
		"same_dir/__init__.py": "",
	})

	a, err := Validate(context.Background(), dir)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if a.Total != 11 || a.Analyzed != 10 {
		t.Errorf("Total = %d, Analyzed = %d", a.Total, a.Analyzed)
	}
	if len(a.Failed) != 1 || a.Failed[0].Path != "broken.py" {
		t.Errorf("Failed = %v", a.Failed)
	}

	var got []string
	for _, d := range a.Duplications {
		got = append(got, d.Type+" "+d.Subject+" "+strings.Join(d.Scripts, ","))
	}
	want := []string{
		"identical_code  a.py,sub/b.py",
		"duplicate_function helper(x) a.py,sub/b.py",
		"duplicate_class A another_main.py,other_main.py",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Duplications mismatch (-want +got):\n%s", diff)
	}

	got = nil
	for _, c := range a.Conflicts {
		got = append(got, c.Type+" "+c.Subject+" "+strings.Join(c.Scripts, ","))
	}
	want = []string{
		"naming_conflict util x/util.py,y/util.py",
		"import_pattern requests x/util.py,y/util.py,z/c.py,z/d.py",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Conflicts mismatch (-want +got):\n%s", diff)
	}

	if a.Passed() {
		t.Error("Passed() = true with identical scripts")
	}
	if a.Recommendations[0] != "CRITICAL: Remove identical duplicate scripts" {
		t.Errorf("first recommendation = %q", a.Recommendations[0])
	}
}

func TestValidateClean(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"one.py": "\"\"\"First tool.\"\"\"\ndef main():\n    pass\n",
		"two.py": "\"\"\"Second tool.\"\"\"\ndef main():\n    pass\n\ndef run(x):\n    pass\n",
	})
	a, err := Validate(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Passed() || len(a.Duplications) != 0 || len(a.Recommendations) != 0 {
		t.Errorf("clean dir: Passed = %v, Duplications = %v, Recommendations = %v", a.Passed(), a.Duplications, a.Recommendations)
	}
}

func TestValidateMissingDir(t *testing.T) {
	if _, err := Validate(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestReport(t *testing.T) {
	a, err := Validate(context.Background(), "../../example/scripts")
	if err != nil {
		t.Fatal(err)
	}
	out := Report(a, time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC))

	for _, want := range []string{
		"# Script Validation Report",
		"**Date:** 2025-07-11",
		"**Total Scripts:** 2",
		"🔴 FAIL",
		"### Function load_config(path) defined in multiple scripts (MEDIUM)",
		"| `build_index.py` | 4 | 1 | 2 | Build an index of prompt files for the dashboard. |",
		"1. Consolidate duplicate functions and classes into shared modules",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
