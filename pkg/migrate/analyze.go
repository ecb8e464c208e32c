// Package migrate moves a project from hard-coded framework settings to a
// generated PROJECT_CONFIG.xml.
package migrate

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("migrate")

// ConfigFile is the name of the generated project configuration.
const ConfigFile = "PROJECT_CONFIG.xml"

// indicatorScore is what a root-level indicator file adds to a language.
const indicatorScore = 10

type languageRule struct {
	name       string
	indicators []string
	exts       []string
}

// languageRules are in tie-break order.
var languageRules = []languageRule{
	{"javascript", []string{"package.json", "node_modules"}, []string{".js", ".jsx"}},
	{"typescript", []string{"tsconfig.json", "package.json"}, []string{".ts", ".tsx"}},
	{"python", []string{"requirements.txt", "setup.py", "pyproject.toml"}, []string{".py"}},
	{"java", []string{"pom.xml", "build.gradle"}, []string{".java"}},
	{"go", []string{"go.mod", "go.sum"}, []string{".go"}},
	{"rust", []string{"Cargo.toml", "Cargo.lock"}, []string{".rs"}},
	{"php", []string{"composer.json"}, []string{".php"}},
	{"ruby", []string{"Gemfile"}, []string{".rb"}},
	{"csharp", nil, []string{".csproj", ".sln", ".cs"}},
	{"swift", []string{"Package.swift"}, []string{".swift"}},
}

type frameworkRule struct {
	name       string
	packages   []string // package.json dependency substrings
	requires   []string // python requirement substrings
	indicators []string // root-level files
}

var frameworkRules = []frameworkRule{
	{name: "react", packages: []string{"react"}},
	{name: "angular", packages: []string{"@angular"}, indicators: []string{"angular.json"}},
	{name: "vue", packages: []string{"vue"}},
	{name: "express", packages: []string{"express"}},
	{name: "django", requires: []string{"django"}, indicators: []string{"manage.py"}},
	{name: "flask", requires: []string{"flask"}},
	{name: "spring", packages: []string{"spring-boot"}},
	{name: "rails", indicators: []string{"Gemfile"}},
	{name: "laravel", packages: []string{"laravel"}, indicators: []string{"artisan"}},
}

// Directory roles, in report order.
const (
	DirSource  = "source"
	DirTest    = "test"
	DirDocs    = "docs"
	DirScripts = "scripts"
	DirConfig  = "config"
)

var dirRoles = []struct {
	role       string
	candidates []string
}{
	{DirSource, []string{"src", "app", "lib", "source"}},
	{DirTest, []string{"test", "tests", "__tests__", "spec"}},
	{DirDocs, []string{"docs", "doc", "documentation"}},
	{DirScripts, []string{"scripts", "bin", "tools"}},
	{DirConfig, []string{"config", "configs", "configuration"}},
}

// DirRoles lists the directory roles in report order.
func DirRoles() []string {
	out := make([]string, len(dirRoles))
	for i, r := range dirRoles {
		out[i] = r.role
	}
	return out
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"vendor":       true,
}

// Analysis describes a project before migration.
type Analysis struct {
	Root            string            `json:"projectRoot"`
	Language        string            `json:"detectedLanguage,omitempty"`
	Frameworks      []string          `json:"detectedFrameworks"`
	Directories     map[string]string `json:"directoryStructure"`
	ExistingConfig  bool              `json:"existingConfig"`
	MigrationNeeded bool              `json:"migrationNeeded"`
	Recommendations []string          `json:"recommendations"`
}

// Analyze inspects root and suggests a configuration.
func Analyze(root string) (*Analysis, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}

	a := &Analysis{Root: abs, MigrationNeeded: true}
	if fileExists(filepath.Join(abs, ConfigFile)) {
		a.ExistingConfig = true
		a.MigrationNeeded = false
		a.Recommendations = append(a.Recommendations, ConfigFile+" already exists")
	}

	if a.Language, err = detectLanguage(abs); err != nil {
		return nil, err
	}
	a.Frameworks = detectFrameworks(abs)
	a.Directories = detectDirectories(abs)
	a.Recommendations = append(a.Recommendations, recommend(a)...)

	log.Debug("analyzed project", "root", abs, "language", a.Language, "frameworks", strings.Join(a.Frameworks, ","))
	return a, nil
}

// detectLanguage scores each language by file extension counts plus
// indicatorScore per root-level indicator file. Ties go to the earlier rule.
func detectLanguage(root string) (string, error) {
	extCounts := make(map[string]int)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		extCounts[strings.ToLower(filepath.Ext(d.Name()))]++
		return nil
	})
	if err != nil {
		return "", err
	}

	best, bestScore := "", 0
	for _, rule := range languageRules {
		score := 0
		for _, ext := range rule.exts {
			score += extCounts[ext]
		}
		for _, name := range rule.indicators {
			if fileExists(filepath.Join(root, name)) {
				score += indicatorScore
			}
		}
		if score > bestScore {
			best, bestScore = rule.name, score
		}
	}
	return best, nil
}

func detectFrameworks(root string) []string {
	var deps []string
	if data, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		var pkg struct {
			Dependencies    map[string]string `json:"dependencies"`
			DevDependencies map[string]string `json:"devDependencies"`
		}
		if err := json.Unmarshal(data, &pkg); err != nil {
			log.Warn("error reading package.json", "error", err)
		}
		for name := range pkg.Dependencies {
			deps = append(deps, name)
		}
		for name := range pkg.DevDependencies {
			deps = append(deps, name)
		}
	}

	var requirements strings.Builder
	for _, name := range []string{"requirements.txt", "requirements.in", "pyproject.toml"} {
		if data, err := os.ReadFile(filepath.Join(root, name)); err == nil {
			requirements.WriteString(strings.ToLower(string(data)))
		}
	}
	reqs := requirements.String()

	var found []string
	for _, rule := range frameworkRules {
		if matchesFramework(rule, root, deps, reqs) {
			found = append(found, rule.name)
		}
	}
	return found
}

func matchesFramework(rule frameworkRule, root string, deps []string, reqs string) bool {
	for _, p := range rule.packages {
		for _, d := range deps {
			if strings.Contains(d, p) {
				return true
			}
		}
	}
	for _, r := range rule.requires {
		if strings.Contains(reqs, r) {
			return true
		}
	}
	for _, name := range rule.indicators {
		if !fileExists(filepath.Join(root, name)) {
			continue
		}
		// A Gemfile alone is any Ruby project; it has to mention rails.
		if name == "Gemfile" {
			data, _ := os.ReadFile(filepath.Join(root, name))
			if !strings.Contains(string(data), "rails") {
				continue
			}
		}
		return true
	}
	return false
}

func detectDirectories(root string) map[string]string {
	out := make(map[string]string, len(dirRoles))
	for _, r := range dirRoles {
		for _, c := range r.candidates {
			if info, err := os.Stat(filepath.Join(root, c)); err == nil && info.IsDir() {
				out[r.role] = c
				break
			}
		}
	}
	return out
}

func recommend(a *Analysis) []string {
	var recs []string
	if a.Language != "" {
		recs = append(recs, "Detected "+a.Language+" project")
	}
	if len(a.Frameworks) > 0 {
		recs = append(recs, "Detected frameworks: "+strings.Join(a.Frameworks, ", "))
	}
	if a.Directories[DirSource] == "" {
		recs = append(recs, "Consider organizing source code in a dedicated directory")
	}
	if a.Directories[DirTest] == "" {
		recs = append(recs, "Consider creating a dedicated test directory")
	}
	return recs
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
