// Package placeholder detects a project's context and fills the
// [INSERT_...] placeholders of the prompt templates from it.
package placeholder

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("placeholder")

// Metadata identifies the project.
type Metadata struct {
	ProjectName  string `json:"projectName"`
	Description  string `json:"description,omitempty"`
	Author       string `json:"author,omitempty"`
	Version      string `json:"version,omitempty"`
	GitUser      string `json:"gitUser,omitempty"`
	GitEmail     string `json:"gitEmail,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// TechStack is what the project is built with. Lists are in detection
// order; the first entry is the primary one.
type TechStack struct {
	Languages         []string `json:"languages"`
	Frameworks        []string `json:"frameworks"`
	Databases         []string `json:"databases"`
	TestingFrameworks []string `json:"testingFrameworks"`
	CIPlatform        string   `json:"ciPlatform,omitempty"`
	DeploymentTarget  string   `json:"deploymentTarget,omitempty"`
}

// HasLanguage reports whether a detected language name contains lang,
// case-insensitively.
func (t TechStack) HasLanguage(lang string) bool {
	lang = strings.ToLower(lang)
	for _, l := range t.Languages {
		if strings.Contains(strings.ToLower(l), lang) {
			return true
		}
	}
	return false
}

// Domain is the inferred kind of project and workflow.
type Domain struct {
	Domain       string `json:"domain,omitempty"`
	WorkflowType string `json:"workflowType,omitempty"`
}

// ProjectContext is everything the detector found.
type ProjectContext struct {
	Root      string    `json:"root"`
	Metadata  Metadata  `json:"metadata"`
	TechStack TechStack `json:"techStack"`
	Domain    Domain    `json:"domain"`
}

// languageMap maps file extensions to languages.
var languageMap = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".jsx":   "React/JavaScript",
	".tsx":   "React/TypeScript",
	".rs":    "Rust",
	".go":    "Go",
	".java":  "Java",
	".cpp":   "C++",
	".c":     "C",
	".php":   "PHP",
	".rb":    "Ruby",
	".swift": "Swift",
	".kt":    "Kotlin",
	".dart":  "Dart",
	".cs":    "C#",
}

// minLanguageFiles is the number of files an extension needs before its
// language counts.
const minLanguageFiles = 3

type depRule struct {
	deps []string
	name string
}

var (
	npmFrameworks = []depRule{
		{[]string{"react"}, "React"},
		{[]string{"vue"}, "Vue.js"},
		{[]string{"angular", "@angular/core"}, "Angular"},
		{[]string{"express"}, "Express.js"},
		{[]string{"next"}, "Next.js"},
		{[]string{"svelte"}, "Svelte"},
	}
	npmTesting = []depRule{
		{[]string{"jest"}, "Jest"},
		{[]string{"mocha"}, "Mocha"},
		{[]string{"vitest"}, "Vitest"},
		{[]string{"cypress"}, "Cypress"},
	}
	npmDatabases = []depRule{
		{[]string{"mongoose"}, "MongoDB"},
		{[]string{"pg", "postgres"}, "PostgreSQL"},
		{[]string{"mysql"}, "MySQL"},
		{[]string{"redis"}, "Redis"},
	}
)

var webmailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"vendor":       true,
}

var setupNamePattern = regexp.MustCompile(`name\s*=\s*["']([^"']+)["']`)

// Detector inspects a project directory.
type Detector struct {
	root     string
	executor Executor
}

// NewDetector creates a detector for root. A nil executor uses git.
func NewDetector(root string, executor Executor) *Detector {
	if executor == nil {
		executor = NewExecutor()
	}
	return &Detector{root: root, executor: executor}
}

// Detect gathers metadata, tech stack and domain. Unreadable or malformed
// manifests are logged and skipped.
func (d *Detector) Detect(ctx context.Context) (*ProjectContext, error) {
	abs, err := filepath.Abs(d.root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}

	pc := &ProjectContext{Root: abs}
	pc.Metadata = d.detectMetadata(ctx, abs)
	pc.TechStack, err = d.detectTechStack(abs)
	if err != nil {
		return nil, err
	}
	pc.Domain = detectDomain(abs)

	log.Debug("detected project context",
		"project", pc.Metadata.ProjectName,
		"languages", strings.Join(pc.TechStack.Languages, ","),
		"domain", pc.Domain.Domain)
	return pc, nil
}

type packageJSON struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Version         string            `json:"version"`
	Author          json.RawMessage   `json:"author"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p *packageJSON) author() string {
	if len(p.Author) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(p.Author, &s) == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(p.Author, &obj) == nil {
		return obj.Name
	}
	return ""
}

func readPackageJSON(root string) (*packageJSON, error) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, err
	}
	var p packageJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

type pyprojectManifest struct {
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name string `toml:"name"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func readTOML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return toml.Unmarshal(data, v)
}

func (d *Detector) detectMetadata(ctx context.Context, root string) Metadata {
	var md Metadata

	if p, err := readPackageJSON(root); err == nil {
		md.ProjectName = p.Name
		md.Description = p.Description
		md.Author = p.author()
		md.Version = p.Version
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Warn("error reading package.json", "error", err)
	}

	if data, err := os.ReadFile(filepath.Join(root, "setup.py")); err == nil {
		if m := setupNamePattern.FindSubmatch(data); m != nil {
			md.ProjectName = string(m[1])
		}
	}

	var py pyprojectManifest
	if err := readTOML(filepath.Join(root, "pyproject.toml"), &py); err == nil {
		if name := firstNonEmpty(py.Project.Name, py.Tool.Poetry.Name); name != "" {
			md.ProjectName = name
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Warn("error reading pyproject.toml", "error", err)
	}

	var cargo cargoManifest
	if err := readTOML(filepath.Join(root, "Cargo.toml"), &cargo); err == nil {
		if cargo.Package.Name != "" {
			md.ProjectName = cargo.Package.Name
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Warn("error reading Cargo.toml", "error", err)
	}

	if user, err := d.executor.GitConfig(ctx, root, "user.name"); err == nil {
		md.GitUser = user
	}
	if email, err := d.executor.GitConfig(ctx, root, "user.email"); err == nil {
		md.GitEmail = email
		md.Organization = organizationFromEmail(email)
	}

	if md.ProjectName == "" {
		md.ProjectName = filepath.Base(root)
	}
	return md
}

// organizationFromEmail returns the title-cased first label of a non-webmail
// email domain.
func organizationFromEmail(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || webmailDomains[strings.ToLower(domain)] {
		return ""
	}
	label, _, _ := strings.Cut(domain, ".")
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + strings.ToLower(label[1:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (d *Detector) detectTechStack(root string) (TechStack, error) {
	var ts TechStack

	counts := make(map[string]int)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if path != root && skipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
			counts[ext]++
		}
		return nil
	})
	if err != nil {
		return ts, err
	}
	ts.Languages = languagesFromCounts(counts)

	if p, err := readPackageJSON(root); err == nil {
		deps := make(map[string]bool)
		for name := range p.Dependencies {
			deps[name] = true
		}
		for name := range p.DevDependencies {
			deps[name] = true
		}
		ts.Frameworks = append(ts.Frameworks, matchDeps(deps, npmFrameworks)...)
		ts.TestingFrameworks = append(ts.TestingFrameworks, matchDeps(deps, npmTesting)...)
		ts.Databases = append(ts.Databases, matchDeps(deps, npmDatabases)...)
	}

	for _, name := range []string{"requirements.txt", "requirements.in", "pyproject.toml"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		content := strings.ToLower(string(data))
		for _, rule := range []struct {
			needle string
			list   *[]string
			name   string
		}{
			{"django", &ts.Frameworks, "Django"},
			{"flask", &ts.Frameworks, "Flask"},
			{"fastapi", &ts.Frameworks, "FastAPI"},
			{"pytest", &ts.TestingFrameworks, "pytest"},
			{"sqlalchemy", &ts.Databases, "SQLAlchemy"},
		} {
			if strings.Contains(content, rule.needle) {
				*rule.list = appendUnique(*rule.list, rule.name)
			}
		}
	}

	switch {
	case exists(root, ".github", "workflows"):
		ts.CIPlatform = "GitHub Actions"
	case exists(root, ".gitlab-ci.yml"):
		ts.CIPlatform = "GitLab CI"
	case exists(root, "Jenkinsfile"):
		ts.CIPlatform = "Jenkins"
	case exists(root, ".circleci"):
		ts.CIPlatform = "CircleCI"
	}

	// Later markers win.
	for _, m := range []struct{ file, target string }{
		{"Dockerfile", "Docker"},
		{"vercel.json", "Vercel"},
		{"netlify.toml", "Netlify"},
	} {
		if exists(root, m.file) {
			ts.DeploymentTarget = m.target
		}
	}
	return ts, nil
}

// languagesFromCounts returns the languages with enough files, most files
// first.
func languagesFromCounts(counts map[string]int) []string {
	type langCount struct {
		lang  string
		count int
	}
	var found []langCount
	for ext, n := range counts {
		if lang, ok := languageMap[ext]; ok && n >= minLanguageFiles {
			found = append(found, langCount{lang, n})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].count != found[j].count {
			return found[i].count > found[j].count
		}
		return found[i].lang < found[j].lang
	})

	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.lang
	}
	return out
}

func matchDeps(deps map[string]bool, rules []depRule) []string {
	var out []string
	for _, r := range rules {
		for _, d := range r.deps {
			if deps[d] {
				out = append(out, r.name)
				break
			}
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func exists(root string, parts ...string) bool {
	_, err := os.Stat(filepath.Join(append([]string{root}, parts...)...))
	return err == nil
}

// detectDomain infers the domain and workflow from top-level directory names.
func detectDomain(root string) Domain {
	entries, err := os.ReadDir(root)
	if err != nil {
		return Domain{}
	}
	dirs := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			dirs[strings.ToLower(e.Name())] = true
		}
	}
	hasAny := func(names ...string) bool {
		for _, n := range names {
			if dirs[n] {
				return true
			}
		}
		return false
	}

	var d Domain
	switch {
	case hasAny("components", "pages", "public", "static"):
		d.Domain = "web-development"
	case hasAny("notebooks", "data", "models", "analysis"):
		d.Domain = "data-science"
	case hasAny("src", "lib", "bin", "include"):
		d.Domain = "software-development"
	case hasAny("api", "routes", "controllers", "middleware"):
		d.Domain = "backend-development"
	}

	if hasAny("tests", "test") {
		d.WorkflowType = "test-driven"
	}
	if hasAny("ci", "deploy", "scripts") {
		d.WorkflowType = "devops-focused"
	}
	return d
}
