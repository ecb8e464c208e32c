package placeholder

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// TargetPercent is the automation rate a run aims for.
const TargetPercent = 70

// Pattern matches one placeholder, e.g. [INSERT_PROJECT_NAME].
var Pattern = regexp.MustCompile(`\[INSERT_[A-Z_]+\]`)

// fixedDefaults do not depend on the project.
var fixedDefaults = map[string]string{
	"[INSERT_ENVIRONMENT]":              "development",
	"[INSERT_PORT]":                     "3000",
	"[INSERT_API_VERSION]":              "v1",
	"[INSERT_SECURITY_LEVEL]":           "standard",
	"[INSERT_USER_BASE]":                "developers",
	"[INSERT_PERFORMANCE_LEVEL]":        "standard",
	"[INSERT_SCALABILITY_LEVEL]":        "medium",
	"[INSERT_MONITORING_LEVEL]":         "basic",
	"[INSERT_BACKUP_FREQUENCY]":         "daily",
	"[INSERT_RETENTION_PERIOD]":         "30 days",
	"[INSERT_COMPLIANCE_LEVEL]":         "standard",
	"[INSERT_ACCESS_LEVEL]":             "team-based",
	"[INSERT_INTEGRATION_TYPE]":         "REST API",
	"[INSERT_NOTIFICATION_CHANNEL]":     "email",
	"[INSERT_LOG_LEVEL]":                "info",
	"[INSERT_CACHE_STRATEGY]":           "memory",
	"[INSERT_SESSION_TIMEOUT]":          "30 minutes",
	"[INSERT_REQUEST_TIMEOUT]":          "30 seconds",
	"[INSERT_MAX_CONNECTIONS]":          "100",
	"[INSERT_RATE_LIMIT]":               "1000/hour",
	"[INSERT_API_STYLE]":                "RESTful",
	"[INSERT_PERFORMANCE_PRIORITY]":     "balanced",
	"[INSERT_CLOUD_PROVIDER]":           "AWS",
	"[INSERT_COMPLIANCE_REQUIREMENTS]":  "basic",
	"[INSERT_DATA_RETENTION]":           "1 year",
	"[INSERT_ENCRYPTION_LEVEL]":         "AES-256",
	"[INSERT_AUTHENTICATION_METHOD]":    "OAuth2",
	"[INSERT_AUTHORIZATION_STRATEGY]":   "role-based",
	"[INSERT_ERROR_HANDLING_STRATEGY]":  "graceful-degradation",
	"[INSERT_VALIDATION_STRATEGY]":      "strict",
	"[INSERT_CONCURRENCY_MODEL]":        "async",
	"[INSERT_SCALING_STRATEGY]":         "horizontal",
	"[INSERT_LOAD_BALANCING]":           "round-robin",
	"[INSERT_HEALTH_CHECK_INTERVAL]":    "30 seconds",
	"[INSERT_METRICS_COLLECTION]":       "enabled",
	"[INSERT_ALERTING_THRESHOLD]":       "95%",
	"[INSERT_DOCUMENTATION_FORMAT]":     "Markdown",
	"[INSERT_VERSION_CONTROL_STRATEGY]": "Git Flow",
	"[INSERT_BRANCHING_STRATEGY]":       "feature-branch",
	"[INSERT_MERGE_STRATEGY]":           "squash-merge",
	"[INSERT_RELEASE_STRATEGY]":         "semantic-versioning",
	"[INSERT_ROLLBACK_STRATEGY]":        "blue-green",
	"[INSERT_CONFIGURATION_FORMAT]":     "YAML",
	"[INSERT_SECRET_MANAGEMENT]":        "environment-variables",
	"[INSERT_CONTAINER_RUNTIME]":        "Docker",
	"[INSERT_ORCHESTRATION_PLATFORM]":   "Kubernetes",
	"[INSERT_SERVICE_MESH]":             "Istio",
	"[INSERT_MESSAGE_QUEUE]":            "Redis",
	"[INSERT_SEARCH_ENGINE]":            "Elasticsearch",
	"[INSERT_CDN_PROVIDER]":             "CloudFlare",
	"[INSERT_DNS_PROVIDER]":             "CloudFlare",
	"[INSERT_SSL_PROVIDER]":             "Let's Encrypt",
	"[INSERT_MONITORING_TOOL]":          "Prometheus",
	"[INSERT_LOGGING_TOOL]":             "Winston",
	"[INSERT_APM_TOOL]":                 "New Relic",
	"[INSERT_MONITORING_PLATFORM]":      "Prometheus",
	"[INSERT_PROJECT_TYPE]":             "web-application",
	"[INSERT_XXX]":                      "placeholder",
	"[INSERT_RUNTIME_VERSION]":          "latest",
	"[INSERT_TEAM_SIZE]":                "1-5 developers",
}

// BuildReplacements derives the replacement map from a detected context.
func BuildReplacements(pc *ProjectContext) map[string]string {
	m := make(map[string]string, len(fixedDefaults)+20)
	for k, v := range fixedDefaults {
		m[k] = v
	}

	md, ts := pc.Metadata, pc.TechStack
	js := ts.HasLanguage("javascript") || ts.HasLanguage("typescript")
	py := ts.HasLanguage("python")

	if md.ProjectName != "" {
		m["[INSERT_PROJECT_NAME]"] = md.ProjectName
	}
	if company := firstNonEmpty(md.Organization, md.GitUser); company != "" {
		m["[INSERT_COMPANY_NAME]"] = company
	}

	if len(ts.Languages) > 0 {
		m["[INSERT_TECH_STACK]"] = strings.Join(ts.Languages, ", ")
		m["[INSERT_PRIMARY_LANGUAGE]"] = ts.Languages[0]
	}
	if len(ts.Frameworks) > 0 {
		m["[INSERT_FRAMEWORK]"] = ts.Frameworks[0]
	}

	switch {
	case len(ts.TestingFrameworks) > 0:
		m["[INSERT_TESTING_FRAMEWORK]"] = ts.TestingFrameworks[0]
	case py:
		m["[INSERT_TESTING_FRAMEWORK]"] = "pytest"
	case js:
		m["[INSERT_TESTING_FRAMEWORK]"] = "Jest"
	default:
		m["[INSERT_TESTING_FRAMEWORK]"] = "Unit Testing"
	}
	m["[INSERT_TEST_FRAMEWORK]"] = m["[INSERT_TESTING_FRAMEWORK]"]

	m["[INSERT_CI_CD_PLATFORM]"] = firstNonEmpty(ts.CIPlatform, "GitHub Actions")

	switch {
	case len(ts.Databases) > 0:
		m["[INSERT_DATABASE_TYPE]"] = ts.Databases[0]
	case js:
		m["[INSERT_DATABASE_TYPE]"] = "MongoDB"
	case py:
		m["[INSERT_DATABASE_TYPE]"] = "PostgreSQL"
	default:
		m["[INSERT_DATABASE_TYPE]"] = "SQLite"
	}

	switch {
	case ts.DeploymentTarget != "":
		m["[INSERT_DEPLOYMENT_TARGET]"] = ts.DeploymentTarget
	case hasPrefixFold(ts.Frameworks, "react"):
		m["[INSERT_DEPLOYMENT_TARGET]"] = "Vercel"
	default:
		m["[INSERT_DEPLOYMENT_TARGET]"] = "Cloud Server"
	}

	m["[INSERT_DOMAIN]"] = firstNonEmpty(pc.Domain.Domain, "software-development")
	m["[INSERT_WORKFLOW_TYPE]"] = firstNonEmpty(pc.Domain.WorkflowType, "agile-development")

	m["[INSERT_CODE_STYLE]"] = pick(py, "PEP8", "Standard")
	m["[INSERT_BUILD_TOOL]"] = pick(js, "npm", "make")
	m["[INSERT_PACKAGE_MANAGER]"] = pick(js, "npm", "pip")
	m["[INSERT_DEPENDENCY_MANAGER]"] = pick(js, "package.json", "requirements.txt")
	m["[INSERT_NODE_VERSION]"] = pick(js, "18", "N/A")
	m["[INSERT_PYTHON_VERSION]"] = pick(py, "3.9", "N/A")

	return m
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

func hasPrefixFold(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			return true
		}
	}
	return false
}

// Count returns the number of placeholder occurrences in content.
func Count(content string) int {
	return len(Pattern.FindAllStringIndex(content, -1))
}

// Replace substitutes every placeholder that has a replacement and returns
// the new content and the number of occurrences replaced.
func Replace(content string, replacements map[string]string) (string, int) {
	replaced := 0
	out := Pattern.ReplaceAllStringFunc(content, func(p string) string {
		if v, ok := replacements[p]; ok {
			replaced++
			return v
		}
		return p
	})
	return out, replaced
}

// Unresolved lists the distinct placeholders left in content, sorted.
func Unresolved(content string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range Pattern.FindAllString(content, -1) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// FileResult is the outcome of filling one file.
type FileResult struct {
	Path           string   `json:"path"`
	Total          int      `json:"total"`
	Replaced       int      `json:"replaced"`
	Percent        float64  `json:"percent"`
	FullyAutomated bool     `json:"fullyAutomated"`
	Unresolved     []string `json:"unresolved,omitempty"`
	content        string
}

// ProcessContent fills content and reports the counts.
func ProcessContent(path, content string, replacements map[string]string) FileResult {
	out, replaced := Replace(content, replacements)
	total := Count(content)
	r := FileResult{
		Path:           path,
		Total:          total,
		Replaced:       replaced,
		FullyAutomated: replaced == total,
		Unresolved:     Unresolved(out),
		content:        out,
	}
	if total > 0 {
		r.Percent = float64(replaced) / float64(total) * 100
	}
	return r
}

// ProcessFile reads path and fills it.
func ProcessFile(path string, replacements map[string]string) (FileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileResult{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return ProcessContent(path, string(data), replacements), nil
}

// Content returns the filled content.
func (r FileResult) Content() string {
	return r.content
}

// Summary aggregates an Apply run.
type Summary struct {
	Files              []FileResult `json:"files"`
	TotalPlaceholders  int          `json:"totalPlaceholders"`
	TotalReplacements  int          `json:"totalReplacements"`
	Percent            float64      `json:"percent"`
	FullyAutomated     int          `json:"fullyAutomated"`
	PartiallyAutomated int          `json:"partiallyAutomated"`
	NotAutomated       int          `json:"notAutomated"`
	TargetAchieved     bool         `json:"targetAchieved"`
	Unresolved         []string     `json:"unresolved,omitempty"`
}

// Summarize aggregates file results. Files without placeholders are listed
// but not classified.
func Summarize(results []FileResult) Summary {
	s := Summary{Files: results}
	unresolved := make(map[string]bool)
	for _, r := range results {
		if r.Total == 0 {
			continue
		}
		s.TotalPlaceholders += r.Total
		s.TotalReplacements += r.Replaced
		switch {
		case r.Replaced == 0:
			s.NotAutomated++
		case r.FullyAutomated:
			s.FullyAutomated++
		default:
			s.PartiallyAutomated++
		}
		for _, u := range r.Unresolved {
			unresolved[u] = true
		}
	}
	if s.TotalPlaceholders > 0 {
		s.Percent = float64(s.TotalReplacements) / float64(s.TotalPlaceholders) * 100
	}
	s.TargetAchieved = s.Percent >= TargetPercent
	for u := range unresolved {
		s.Unresolved = append(s.Unresolved, u)
	}
	sort.Strings(s.Unresolved)
	return s
}

// Apply fills every file under dir whose base name matches one of patterns
// (filepath.Match syntax). When outDir is set, filled copies are written
// there under the same relative paths; files without placeholders are
// copied unchanged.
func Apply(dir string, patterns []string, outDir string, replacements map[string]string) (Summary, error) {
	if len(patterns) == 0 {
		patterns = []string{"*.md"}
	}

	var results []FileResult
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchAny(patterns, d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		r, err := ProcessFile(path, replacements)
		if err != nil {
			log.Warn("skipping unreadable file", "path", rel, "error", err)
			return nil
		}
		r.Path = filepath.ToSlash(rel)

		if outDir != "" {
			dst := filepath.Join(outDir, rel)
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
			}
			if err := os.WriteFile(dst, []byte(r.content), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", dst, err)
			}
		}
		if r.Total > 0 {
			log.Debug("filled placeholders", "path", r.Path, "replaced", r.Replaced, "total", r.Total)
		}
		results = append(results, r)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	s := Summarize(results)
	log.Info("placeholder automation", "files", len(results), "percent", fmt.Sprintf("%.1f%%", s.Percent), "target", s.TargetAchieved)
	return s, nil
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
