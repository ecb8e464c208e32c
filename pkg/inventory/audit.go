package inventory

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Inconsistency types.
const (
	MissingClaimedDirectory = "MISSING_CLAIMED_DIRECTORY"
	MultipleMatches         = "MULTIPLE_MATCHES"
	UndocumentedDirectory   = "UNDOCUMENTED_DIRECTORY"
)

// Overlap types.
const (
	FunctionalOverlap  = "FUNCTIONAL_OVERLAP"
	PatternDuplication = "PATTERN_DUPLICATION"
)

// Directory is one directory under the claude dir that holds markdown files
// or subdirectories.
type Directory struct {
	Path           string   `json:"path"`
	Subdirectories []string `json:"subdirectories,omitempty"`
	Files          int      `json:"files"`
	Size           int64    `json:"size"`
	Depth          int      `json:"depth"`
	Purpose        string   `json:"purpose"`
}

// DirectoryClaim is a directory that documentation says exists.
type DirectoryClaim struct {
	Path   string `json:"path"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// Inconsistency is a mismatch between claimed and actual structure.
type Inconsistency struct {
	Type     string   `json:"type"`
	Severity string   `json:"severity"`
	Claimed  string   `json:"claimed,omitempty"`
	Actual   []string `json:"actual,omitempty"`
	Message  string   `json:"message"`
}

// Overlap is a purpose handled by more than one directory tree.
type Overlap struct {
	Type        string   `json:"type"`
	Category    string   `json:"category,omitempty"`
	Directories []string `json:"directories"`
	TotalFiles  int      `json:"totalFiles"`
	Severity    string   `json:"severity"`
	Message     string   `json:"message"`
}

// Recommendation is a suggested structural change.
type Recommendation struct {
	Priority    string   `json:"priority"`
	Action      string   `json:"action"`
	Description string   `json:"description"`
	Directories []string `json:"directories,omitempty"`
	Target      string   `json:"target,omitempty"`
}

// DirectoryAudit compares the claude directory tree with what the
// documentation says about it.
type DirectoryAudit struct {
	Directories     []Directory      `json:"directories"`
	Claims          []DirectoryClaim `json:"claims"`
	Inconsistencies []Inconsistency  `json:"inconsistencies"`
	Overlaps        []Overlap        `json:"overlaps"`
	Recommendations []Recommendation `json:"recommendations"`
}

// purposes are matched in order against the lowercased directory path.
var purposes = []struct {
	pattern string
	purpose string
}{
	{"commands", "Command definitions for Claude Code"},
	{"components", "Reusable prompt components"},
	{"system/quality", "Quality gates and TDD enforcement"},
	{"system/git", "Git operations and worktree management"},
	{"system/session", "Session management and persistence"},
	{"system/context", "Context management and artifacts"},
	{"system/security", "Security validation and threat modeling"},
	{"modules/patterns", "Reusable pattern modules"},
	{"modules/development", "Development workflow modules"},
	{"modules/meta", "Meta-framework capabilities"},
	{"modules/quality", "Quality validation modules"},
	{"prompt_eng/patterns", "Prompt engineering patterns"},
	{"prompt_eng/frameworks", "Advanced prompt frameworks"},
	{"prompt_eng/personas", "Specialized AI personas"},
	{"prompt_eng/modules", "Prompt engineering modules"},
	{"context", "Project context and standards"},
	{"domain", "Domain-specific templates and adaptation"},
	{"meta", "Meta-framework evolution and learning"},
	{"development", "Development support modules"},
	{"planning", "Planning and strategy modules"},
	{"testing", "Testing and validation frameworks"},
	{"archive", "Archived or deprecated components"},
}

const unknownPurpose = "Unknown purpose - needs classification"

// InferPurpose guesses what a directory is for from its path, then from the
// names of its files.
func InferPurpose(dir string, files []string) string {
	lower := strings.ToLower(dir)
	for _, p := range purposes {
		if strings.Contains(lower, p.pattern) {
			return p.purpose
		}
	}

	for _, hint := range []struct{ word, purpose string }{
		{"command", "Command-related functionality"},
		{"test", "Testing-related functionality"},
		{"pattern", "Pattern definitions"},
		{"quality", "Quality assurance"},
	} {
		for _, f := range files {
			if strings.Contains(strings.ToLower(f), hint.word) {
				return hint.purpose
			}
		}
	}
	return unknownPurpose
}

// purposeGroups map purpose keywords to overlap categories, first match wins.
var purposeGroups = []struct{ keyword, category string }{
	{"pattern", "patterns"},
	{"quality", "quality"},
	{"module", "modules"},
	{"development", "development"},
	{"command", "commands"},
	{"prompt", "prompt_engineering"},
}

var (
	backtickClaim = regexp.MustCompile("`([^`\\s]+)`")
	locationClaim = regexp.MustCompile(`location\s*=\s*["']([^"']+)["']`)
)

// AuditDirectories walks root/claudeDir and checks it against the directory
// claims in docs (root-relative paths such as README.md and CLAUDE.md).
// Missing documentation files are skipped.
func AuditDirectories(root, claudeDir string, docs ...string) (*DirectoryAudit, error) {
	dirs, err := scanDirectories(root, claudeDir)
	if err != nil {
		return nil, err
	}

	audit := &DirectoryAudit{Directories: dirs}
	for _, doc := range docs {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(doc)))
		if err != nil {
			log.Debug("documentation file not readable", "path", doc, "error", err)
			continue
		}
		audit.Claims = append(audit.Claims, ExtractDirectoryClaims(doc, string(content), claudeDir)...)
	}

	audit.Inconsistencies = findInconsistencies(audit.Directories, audit.Claims, claudeDir)
	audit.Overlaps = findOverlaps(audit.Directories)
	audit.Recommendations = recommend(audit)

	log.Info("directory audit complete",
		"directories", len(audit.Directories),
		"claims", len(audit.Claims),
		"inconsistencies", len(audit.Inconsistencies),
		"overlaps", len(audit.Overlaps))
	return audit, nil
}

func scanDirectories(root, claudeDir string) ([]Directory, error) {
	base := filepath.Join(root, filepath.FromSlash(claudeDir))
	baseDepth := strings.Count(strings.Trim(claudeDir, "/"), "/")

	var dirs []Directory
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != base && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			log.Warn("skipping unreadable directory", "path", p, "error", err)
			return filepath.SkipDir
		}

		var subdirs, files []string
		var size int64
		for _, e := range entries {
			switch {
			case e.IsDir() && !strings.HasPrefix(e.Name(), "."):
				subdirs = append(subdirs, e.Name())
			case !e.IsDir() && strings.HasSuffix(e.Name(), ".md"):
				files = append(files, e.Name())
				if info, err := e.Info(); err == nil {
					size += info.Size()
				}
			}
		}
		if len(files) == 0 && len(subdirs) == 0 {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		dirs = append(dirs, Directory{
			Path:           rel,
			Subdirectories: subdirs,
			Files:          len(files),
			Size:           size,
			Depth:          strings.Count(rel, "/") - baseDepth,
			Purpose:        InferPurpose(rel, files),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", claudeDir, err)
	}
	return dirs, nil
}

// ExtractDirectoryClaims returns the claude directory paths that content
// names, either as backticked paths or as location="..." attributes.
func ExtractDirectoryClaims(source, content, claudeDir string) []DirectoryClaim {
	prefix := strings.Trim(claudeDir, "/") + "/"
	seen := make(map[string]bool)
	var claims []DirectoryClaim

	for i, line := range strings.Split(content, "\n") {
		var candidates []string
		for _, m := range backtickClaim.FindAllStringSubmatch(line, -1) {
			candidates = append(candidates, m[1])
		}
		for _, m := range locationClaim.FindAllStringSubmatch(line, -1) {
			candidates = append(candidates, m[1])
		}

		for _, c := range candidates {
			c = strings.TrimPrefix(strings.TrimSpace(c), "./")
			if !strings.HasPrefix(c, prefix) || path.Ext(c) != "" {
				continue
			}
			c = strings.TrimSuffix(c, "/")
			if seen[c] {
				continue
			}
			seen[c] = true
			claims = append(claims, DirectoryClaim{Path: c, Source: source, Line: i + 1})
		}
	}
	return claims
}

func findInconsistencies(dirs []Directory, claims []DirectoryClaim, claudeDir string) []Inconsistency {
	var out []Inconsistency

	for _, claim := range claims {
		var matches []string
		exact := false
		for _, d := range dirs {
			if d.Path == claim.Path {
				exact = true
				break
			}
			if strings.HasSuffix(d.Path, "/"+claim.Path) {
				matches = append(matches, d.Path)
			}
		}
		switch {
		case exact:
		case len(matches) == 0:
			out = append(out, Inconsistency{
				Type:     MissingClaimedDirectory,
				Severity: "HIGH",
				Claimed:  claim.Path,
				Message:  fmt.Sprintf("%s claims directory '%s' exists but it was not found", claim.Source, claim.Path),
			})
		case len(matches) > 1:
			out = append(out, Inconsistency{
				Type:     MultipleMatches,
				Severity: "MEDIUM",
				Claimed:  claim.Path,
				Actual:   matches,
				Message:  fmt.Sprintf("Multiple directories match claim '%s': %v", claim.Path, matches),
			})
		}
	}

	root := strings.Trim(claudeDir, "/")
	for _, d := range dirs {
		if d.Path == root || strings.Contains(d.Path, "archive") || documented(d.Path, claims) {
			continue
		}
		out = append(out, Inconsistency{
			Type:     UndocumentedDirectory,
			Severity: "MEDIUM",
			Actual:   []string{d.Path},
			Message:  fmt.Sprintf("Directory '%s' exists but is not documented", d.Path),
		})
	}
	return out
}

func documented(dir string, claims []DirectoryClaim) bool {
	for _, c := range claims {
		if dir == c.Path || strings.HasPrefix(dir, c.Path+"/") {
			return true
		}
	}
	return false
}

// findOverlaps groups directories by purpose keyword. Directories nested in
// another member of the same group belong to that member's tree and do not
// count as a separate location.
func findOverlaps(dirs []Directory) []Overlap {
	groups := make(map[string][]Directory)
	for _, d := range dirs {
		purpose := strings.ToLower(d.Purpose)
		for _, g := range purposeGroups {
			if strings.Contains(purpose, g.keyword) {
				groups[g.category] = append(groups[g.category], d)
				break
			}
		}
	}

	categories := make([]string, 0, len(groups))
	for c := range groups {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var out []Overlap
	for _, category := range categories {
		roots := topLevel(groups[category])
		if len(roots) < 2 {
			continue
		}
		total := 0
		var paths []string
		for _, d := range groups[category] {
			total += d.Files
		}
		for _, d := range roots {
			paths = append(paths, d.Path)
		}
		severity := "MEDIUM"
		if total > 20 {
			severity = "HIGH"
		}
		out = append(out, Overlap{
			Type:        FunctionalOverlap,
			Category:    category,
			Directories: paths,
			TotalFiles:  total,
			Severity:    severity,
			Message:     fmt.Sprintf("Multiple directories handle %s: %v", category, paths),
		})
	}

	var modulePatterns, promptPatterns []string
	for _, d := range dirs {
		if strings.Contains(d.Path, "modules/patterns") {
			modulePatterns = append(modulePatterns, d.Path)
		}
		if strings.Contains(d.Path, "prompt_eng/patterns") {
			promptPatterns = append(promptPatterns, d.Path)
		}
	}
	if len(modulePatterns) > 0 && len(promptPatterns) > 0 {
		out = append(out, Overlap{
			Type:        PatternDuplication,
			Directories: append(modulePatterns, promptPatterns...),
			Severity:    "CRITICAL",
			Message:     "Pattern functionality duplicated across modules/ and prompt_eng/",
		})
	}
	return out
}

func topLevel(dirs []Directory) []Directory {
	var out []Directory
	for _, d := range dirs {
		nested := false
		for _, other := range dirs {
			if other.Path != d.Path && strings.HasPrefix(d.Path, other.Path+"/") {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, d)
		}
	}
	return out
}

func recommend(audit *DirectoryAudit) []Recommendation {
	var out []Recommendation

	for _, o := range audit.Overlaps {
		if o.Type != FunctionalOverlap {
			continue
		}
		switch o.Category {
		case "patterns":
			out = append(out, Recommendation{Priority: "HIGH", Action: "CONSOLIDATE_PATTERNS",
				Description: "Merge all pattern directories into a single location",
				Directories: o.Directories, Target: ".claude/patterns/"})
		case "quality":
			out = append(out, Recommendation{Priority: "MEDIUM", Action: "CONSOLIDATE_QUALITY",
				Description: "Merge quality modules into system/quality/",
				Directories: o.Directories, Target: ".claude/system/quality/"})
		case "modules":
			out = append(out, Recommendation{Priority: "HIGH", Action: "STANDARDIZE_MODULES",
				Description: "Establish a single module hierarchy",
				Directories: o.Directories, Target: ".claude/modules/"})
		}
	}

	for _, inc := range audit.Inconsistencies {
		if inc.Type == MissingClaimedDirectory {
			out = append(out, Recommendation{Priority: "CRITICAL", Action: "RECONCILE_DOCUMENTATION",
				Description: fmt.Sprintf("Either create %s or update the documentation", inc.Claimed),
				Directories: []string{inc.Claimed}})
		}
	}

	if n := len(audit.Directories); n > 30 {
		out = append(out, Recommendation{Priority: "MEDIUM", Action: "SIMPLIFY_HIERARCHY",
			Description: fmt.Sprintf("Reduce directory count from %d to fewer than 25", n)})
	}
	return out
}
