package scripts

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("scripts")

// Finding types.
const (
	IdenticalCode     = "identical_code"
	DuplicateFunction = "duplicate_function"
	DuplicateClass    = "duplicate_class"
	NamingConflict    = "naming_conflict"
	ImportPattern     = "import_pattern"
)

// Severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// sharedImportThreshold is how many scripts may import the same
// non-common module before a shared module is suggested.
const sharedImportThreshold = 3

var commonImports = map[string]bool{
	"logging":  true,
	"argparse": true,
	"pathlib":  true,
	"json":     true,
}

// ignoredFunctions may repeat freely across scripts.
var ignoredFunctions = map[string]bool{
	"main":     true,
	"__init__": true,
}

var skipDirs = map[string]bool{
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"node_modules": true,
	".git":         true,
}

// Finding is a duplication or conflict between scripts.
type Finding struct {
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	Subject     string   `json:"subject,omitempty"`
	Scripts     []string `json:"scripts"`
	Description string   `json:"description"`
}

// Failure is a script that could not be analyzed.
type Failure struct {
	Path  string `json:"script"`
	Error string `json:"error"`
}

// Analysis is the result of validating a scripts directory.
type Analysis struct {
	Dir             string    `json:"dir"`
	Total           int       `json:"totalScripts"`
	Analyzed        int       `json:"analyzedScripts"`
	Failed          []Failure `json:"failedAnalysis"`
	Scripts         []*Script `json:"scripts"`
	Duplications    []Finding `json:"duplications"`
	Conflicts       []Finding `json:"conflicts"`
	Recommendations []string  `json:"recommendations"`
}

// Passed reports whether no two scripts are identical and no function
// signature is defined in more than one script.
func (a *Analysis) Passed() bool {
	for _, d := range a.Duplications {
		if d.Type == IdenticalCode || d.Type == DuplicateFunction {
			return false
		}
	}
	return true
}

// Validate parses every *.py file under dir and looks for duplication.
// Scripts that fail to read or parse are recorded and skipped.
func Validate(ctx context.Context, dir string) (*Analysis, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scripts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scripts directory %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".py" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)

	a := &Analysis{Dir: dir, Total: len(paths), Failed: []Failure{}}
	results := make([]*Script, len(paths))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			rel, _ := filepath.Rel(dir, path)
			rel = filepath.ToSlash(rel)

			content, err := os.ReadFile(path)
			if err == nil {
				var s *Script
				if s, err = newParser().Parse(gctx, rel, content); err == nil {
					s.Name = strings.TrimSuffix(filepath.Base(rel), ".py")
					results[i] = s
					return nil
				}
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			log.Warn("failed to analyze script", "path", rel, "error", err)
			mu.Lock()
			a.Failed = append(a.Failed, Failure{Path: rel, Error: err.Error()})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(a.Failed, func(i, j int) bool { return a.Failed[i].Path < a.Failed[j].Path })

	for _, s := range results {
		if s != nil {
			a.Scripts = append(a.Scripts, s)
		}
	}
	a.Analyzed = len(a.Scripts)
	a.Duplications = findDuplications(a.Scripts)
	a.Conflicts = findConflicts(a.Scripts)
	a.Recommendations = recommend(a)

	log.Info("validated scripts", "dir", dir, "scripts", a.Total, "duplications", len(a.Duplications))
	return a, nil
}

// index maps a key to the distinct scripts it occurs in, in script order.
type index map[string][]string

func (ix index) add(key, script string) {
	for _, s := range ix[key] {
		if s == script {
			return
		}
	}
	ix[key] = append(ix[key], script)
}

// repeated returns the keys seen in more than one script, sorted.
func (ix index) repeated(min int) []string {
	var keys []string
	for k, scripts := range ix {
		if len(scripts) > min {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func findDuplications(scripts []*Script) []Finding {
	hashes, funcs, classes := index{}, index{}, index{}
	for _, s := range scripts {
		hashes.add(s.Hash, s.Path)
		for _, f := range s.Functions {
			if !ignoredFunctions[f.Name] {
				funcs.add(f.Signature(), s.Path)
			}
		}
		for _, c := range s.Classes {
			classes.add(c.Name, s.Path)
		}
	}

	out := []Finding{}
	var identical []Finding
	for _, h := range hashes.repeated(1) {
		identical = append(identical, Finding{
			Type:        IdenticalCode,
			Severity:    SeverityHigh,
			Scripts:     hashes[h],
			Description: "Scripts with identical code content",
		})
	}
	sort.Slice(identical, func(i, j int) bool { return identical[i].Scripts[0] < identical[j].Scripts[0] })
	out = append(out, identical...)

	for _, sig := range funcs.repeated(1) {
		out = append(out, Finding{
			Type:        DuplicateFunction,
			Severity:    SeverityMedium,
			Subject:     sig,
			Scripts:     funcs[sig],
			Description: fmt.Sprintf("Function %s defined in multiple scripts", sig),
		})
	}
	for _, name := range classes.repeated(1) {
		out = append(out, Finding{
			Type:        DuplicateClass,
			Severity:    SeverityMedium,
			Subject:     name,
			Scripts:     classes[name],
			Description: fmt.Sprintf("Class %s defined in multiple scripts", name),
		})
	}
	return out
}

func findConflicts(scripts []*Script) []Finding {
	names, imports := index{}, index{}
	for _, s := range scripts {
		names.add(s.Name, s.Path)
		for _, imp := range s.Imports {
			if !commonImports[imp.Module] {
				imports.add(imp.Key(), s.Path)
			}
		}
	}

	out := []Finding{}
	for _, name := range names.repeated(1) {
		out = append(out, Finding{
			Type:        NamingConflict,
			Severity:    SeverityLow,
			Subject:     name,
			Scripts:     names[name],
			Description: fmt.Sprintf("Multiple scripts named %s", name),
		})
	}
	for _, key := range imports.repeated(sharedImportThreshold) {
		out = append(out, Finding{
			Type:        ImportPattern,
			Severity:    SeverityLow,
			Subject:     key,
			Scripts:     imports[key],
			Description: fmt.Sprintf("Import %s used in many scripts, consider a shared module", key),
		})
	}
	return out
}

func recommend(a *Analysis) []string {
	var high, medium bool
	for _, d := range a.Duplications {
		switch d.Severity {
		case SeverityHigh:
			high = true
		case SeverityMedium:
			medium = true
		}
	}

	out := []string{}
	if high {
		out = append(out, "CRITICAL: Remove identical duplicate scripts")
	}
	if medium {
		out = append(out, "Consolidate duplicate functions and classes into shared modules")
	}
	if len(a.Failed) > 0 {
		out = append(out, fmt.Sprintf("Fix %d scripts that could not be analyzed", len(a.Failed)))
	}
	if a.Total > 20 {
		out = append(out, "Consider organizing scripts into subdirectories by functionality")
	}
	for _, s := range a.Scripts {
		if s.Docstring == "" {
			out = append(out, fmt.Sprintf("Add a module docstring to %s", s.Path))
		}
	}
	return out
}
