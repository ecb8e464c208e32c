// Package quality scores a prompt library from its complexity and from the
// issues found by the reference analysis and front matter checks.
package quality

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/swm-sink/promptaudit/pkg/analysis"
	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("quality")

// Issue classes, by penalty.
const (
	ClassCritical   = "critical"
	ClassFormat     = "format"
	ClassCompliance = "compliance"
	ClassOther      = "other"
)

var penalties = map[string]float64{
	ClassCritical:   15,
	ClassFormat:     5,
	ClassCompliance: 3,
	ClassOther:      2,
}

// PassScore is the score a library needs to pass.
const PassScore = 70

// Complexity counts structural indicators over the modules, commands and
// docs trees.
type Complexity struct {
	TotalFiles        int            `json:"totalFiles"`
	TotalLines        int            `json:"totalLines"`
	XMLBlocks         int            `json:"xmlBlocks"`
	Dependencies      int            `json:"dependencies"`
	Patterns          int            `json:"patterns"`
	QualityGates      int            `json:"qualityGates"`
	ModulesByCategory map[string]int `json:"modulesByCategory"`
	AvgFileLines      float64        `json:"avgFileLines"`
}

// Score is the complexity score, capped at 50.
func (c Complexity) Score() float64 {
	s := 0.5*float64(c.TotalFiles) + float64(c.XMLBlocks) + 2*float64(c.Dependencies) + 1.5*float64(c.Patterns)
	return math.Min(s, 50)
}

// Penalty is the part of the complexity score above 30, halved.
func (c Complexity) Penalty() float64 {
	return math.Max(0, (c.Score()-30)*0.5)
}

// Issue is one quality finding.
type Issue struct {
	Message string `json:"message"`
	Class   string `json:"class"`
	Path    string `json:"path,omitempty"`
}

// Recommendation is an improvement suggested by the score and issues.
type Recommendation struct {
	Priority    string   `json:"priority"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Effort      string   `json:"effort"`
	Impact      string   `json:"impact"`
}

// Report is the outcome of a quality run.
type Report struct {
	Root            string           `json:"root"`
	GeneratedAt     time.Time        `json:"generatedAt"`
	Score           float64          `json:"score"`
	Passed          bool             `json:"passed"`
	Complexity      Complexity       `json:"complexity"`
	Issues          []Issue          `json:"issues"`
	IssuesByClass   map[string]int   `json:"issuesByClass"`
	Recommendations []Recommendation `json:"recommendations"`
}

// HistoryEntry is the compact record appended to the quality history.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Issues    int       `json:"issues"`
}

// History returns the history record of r.
func (r *Report) History() HistoryEntry {
	return HistoryEntry{Timestamp: r.GeneratedAt, Score: r.Score, Issues: len(r.Issues)}
}

// Options configures a quality run.
type Options struct {
	Root      string
	ClaudeDir string

	// Analysis supplies broken references and cycles. It may be nil.
	Analysis *analysis.Result

	// StaleBefore flags dated timestamps older than this day. The zero
	// value disables the timestamp check.
	StaleBefore time.Time
}

// Classify assigns an issue message to its penalty class. Classes are
// checked in penalty order and the first match wins.
func Classify(message string) string {
	m := strings.ToLower(message)
	switch {
	case containsAny(m, "missing", "broken", "failed"):
		return ClassCritical
	case containsAny(m, "format", "table"):
		return ClassFormat
	case containsAny(m, "timestamp", "compliance"):
		return ClassCompliance
	default:
		return ClassOther
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// ComputeScore is 100 minus the issue penalties and the complexity penalty,
// floored at 0 and rounded to one decimal.
func ComputeScore(issues []Issue, c Complexity) float64 {
	penalty := c.Penalty()
	for _, is := range issues {
		penalty += penalties[is.Class]
	}
	score := math.Max(0, 100-penalty)
	return math.Round(score*10) / 10
}

// Analyze measures complexity, collects issues and scores the library.
func Analyze(ctx context.Context, opts Options) (*Report, error) {
	if opts.ClaudeDir == "" {
		opts.ClaudeDir = ".claude"
	}

	complexity, err := MeasureComplexity(ctx, opts.Root, opts.ClaudeDir)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	issues = append(issues, analysisIssues(opts.Analysis)...)

	fmIssues, err := frontMatterIssues(opts.Root, opts.ClaudeDir)
	if err != nil {
		return nil, err
	}
	issues = append(issues, fmIssues...)

	if !opts.StaleBefore.IsZero() {
		stale, err := timestampIssues(ctx, opts.Root, opts.StaleBefore)
		if err != nil {
			return nil, err
		}
		issues = append(issues, stale...)
	}

	r := &Report{
		Root:          opts.Root,
		GeneratedAt:   time.Now(),
		Complexity:    complexity,
		Issues:        issues,
		IssuesByClass: make(map[string]int),
	}
	for _, is := range issues {
		r.IssuesByClass[is.Class]++
	}
	r.Score = ComputeScore(issues, complexity)
	r.Passed = r.Score >= PassScore
	r.Recommendations = recommend(r)

	log.Info("quality analysis complete", "score", r.Score, "issues", len(issues), "files", complexity.TotalFiles)
	return r, nil
}

// MeasureComplexity counts indicators over <claude>/modules,
// <claude>/commands and docs. Missing trees are skipped.
func MeasureComplexity(ctx context.Context, root, claudeDir string) (Complexity, error) {
	c := Complexity{ModulesByCategory: make(map[string]int)}
	modules := filepath.ToSlash(filepath.Join(claudeDir, "modules"))

	for _, dir := range []string{modules, filepath.ToSlash(filepath.Join(claudeDir, "commands")), "docs"} {
		abs := filepath.Join(root, filepath.FromSlash(dir))
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		files, err := finder.FindMarkdownFiles(abs)
		if err != nil {
			return c, fmt.Errorf("walking %s: %w", dir, err)
		}

		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return c, err
			}
			content, err := os.ReadFile(filepath.Join(abs, filepath.FromSlash(rel)))
			if err != nil {
				log.Warn("skipping unreadable file", "path", rel, "error", err)
				continue
			}
			text := string(content)

			c.TotalFiles++
			c.TotalLines += strings.Count(text, "\n") + 1
			c.XMLBlocks += strings.Count(text, "```xml")
			c.Dependencies += strings.Count(text, "<depends_on>")
			c.Patterns += strings.Count(text, "<uses_pattern")
			c.QualityGates += strings.Count(text, "<gate name=")

			if dir == modules {
				category := filepath.Base(filepath.Dir(filepath.FromSlash(rel)))
				if category == "." {
					category = filepath.Base(abs)
				}
				c.ModulesByCategory[category]++
			}
		}
	}

	if c.TotalFiles > 0 {
		c.AvgFileLines = float64(c.TotalLines) / float64(c.TotalFiles)
	}
	return c, nil
}

func analysisIssues(res *analysis.Result) []Issue {
	if res == nil {
		return nil
	}
	var issues []Issue
	for _, f := range res.Files {
		for _, b := range f.BrokenRefs {
			msg := fmt.Sprintf("Broken reference '%s' in %s (%s)", b.Raw, f.Path, b.BreakType)
			issues = append(issues, Issue{Message: msg, Class: Classify(msg), Path: f.Path})
		}
	}
	for _, c := range res.Cycles {
		msg := "Circular dependency: " + strings.Join(c.Files, " → ")
		issues = append(issues, Issue{Message: msg, Class: Classify(msg)})
	}
	return issues
}

// frontMatterIssues checks commands and components for a front matter
// header with a name and description.
func frontMatterIssues(root, claudeDir string) ([]Issue, error) {
	var issues []Issue
	add := func(path, msg string) {
		issues = append(issues, Issue{Message: msg, Class: Classify(msg), Path: path})
	}

	for _, sub := range []string{"commands", "components"} {
		dir := filepath.Join(root, claudeDir, sub)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		files, err := finder.FindMarkdownFiles(dir)
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
		for _, rel := range files {
			if strings.EqualFold(filepath.Base(rel), "README.md") {
				continue
			}
			path := filepath.ToSlash(filepath.Join(claudeDir, sub, rel))
			content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
			if err != nil {
				continue
			}

			fm, err := finder.ParseFrontMatter(content)
			switch {
			case err != nil:
				add(path, "Invalid front matter format in "+path)
			case fm == nil:
				add(path, "Missing front matter in "+path)
			default:
				if fm.Name == "" {
					add(path, "Missing required field 'name' in "+path)
				}
				if fm.Description == "" {
					add(path, "Missing required field 'description' in "+path)
				}
			}
		}
	}
	return issues, nil
}

var datePattern = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)

// timestampIssues flags ISO dates older than cutoff in markdown outside
// hidden directories.
func timestampIssues(ctx context.Context, root string, cutoff time.Time) ([]Issue, error) {
	files, err := finder.FindMarkdownFiles(root)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	var issues []Issue
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hiddenDir(rel) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		seen := make(map[string]bool)
		for _, m := range datePattern.FindAllString(string(content), -1) {
			d, err := time.Parse(time.DateOnly, m)
			if err != nil || !d.Before(cutoff) || seen[m] {
				continue
			}
			seen[m] = true
			msg := fmt.Sprintf("Non-compliant timestamp '%s' in %s", m, rel)
			issues = append(issues, Issue{Message: msg, Class: Classify(msg), Path: rel})
		}
	}
	return issues, nil
}

func hiddenDir(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, p := range parts[:len(parts)-1] {
		if strings.HasPrefix(p, ".") {
			return true
		}
	}
	return false
}

func recommend(r *Report) []Recommendation {
	var recs []Recommendation
	if r.Score < PassScore {
		recs = append(recs, Recommendation{
			Priority:    "CRITICAL",
			Category:    "Quality Remediation",
			Title:       "Immediate Quality Improvement Required",
			Description: fmt.Sprintf("Quality score %.1f/100 requires immediate attention", r.Score),
			Actions: []string{
				"Address all critical structural issues first",
				"Focus on missing front matter and broken references",
				"Re-run the reference audit before proceeding",
			},
			Effort: "4-8 hours",
			Impact: "HIGH",
		})
	}
	if n := r.IssuesByClass[ClassCompliance]; n > 0 {
		recs = append(recs, Recommendation{
			Priority:    "HIGH",
			Category:    "Compliance",
			Title:       "Timestamp Compliance",
			Description: fmt.Sprintf("Found %d timestamp compliance issues", n),
			Actions:     []string{"Update stale dates", "Validate timestamps in CI"},
			Effort:      "30 minutes",
			Impact:      "MEDIUM",
		})
	}
	if n := r.IssuesByClass[ClassFormat]; n > 0 {
		recs = append(recs, Recommendation{
			Priority:    "MEDIUM",
			Category:    "Format Standardization",
			Title:       "Front Matter Format Correction",
			Description: fmt.Sprintf("Found %d format inconsistencies", n),
			Actions:     []string{"Fix malformed YAML headers", "Use one front matter layout for every command"},
			Effort:      "1 hour",
			Impact:      "MEDIUM",
		})
	}
	if r.Complexity.TotalFiles > 50 {
		recs = append(recs, Recommendation{
			Priority:    "MEDIUM",
			Category:    "Architecture",
			Title:       "Library Complexity Optimization",
			Description: fmt.Sprintf("Library has %d files with high complexity", r.Complexity.TotalFiles),
			Actions: []string{
				"Review module architecture for consolidation opportunities",
				"Archive unused or deprecated modules",
			},
			Effort: "2-4 hours",
			Impact: "HIGH",
		})
	}
	if r.Complexity.Dependencies > 20 {
		recs = append(recs, Recommendation{
			Priority:    "LOW",
			Category:    "Dependencies",
			Title:       "Dependency Graph Optimization",
			Description: fmt.Sprintf("Library declares %d dependencies", r.Complexity.Dependencies),
			Actions:     []string{"Check the reference graph for cycles", "Consolidate similar dependencies"},
			Effort:      "2-3 hours",
			Impact:      "MEDIUM",
		})
	}
	if r.Score > 90 {
		recs = append(recs, Recommendation{
			Priority:    "LOW",
			Category:    "Performance",
			Title:       "Advanced Performance Optimization",
			Description: "Library quality is excellent; consider benchmarking load times",
			Actions:     []string{"Run the benchmark suite", "Track scores in the history file"},
			Effort:      "3-5 hours",
			Impact:      "MEDIUM",
		})
	}
	sort.SliceStable(recs, func(i, j int) bool { return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority] })
	return recs
}

var priorityRank = map[string]int{"CRITICAL": 0, "HIGH": 1, "MEDIUM": 2, "LOW": 3}
