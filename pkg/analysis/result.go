package analysis

import (
	"time"

	"github.com/swm-sink/promptaudit/pkg/cycles"
	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/graph"
	"github.com/swm-sink/promptaudit/pkg/refs"
	"github.com/swm-sink/promptaudit/pkg/resolve"
)

// Quality labels for the overall validity rate.
const (
	QualityExcellent = "EXCELLENT"
	QualityGood      = "GOOD"
	QualityPoor      = "POOR"
	QualityCritical  = "CRITICAL"
)

// Coupling buckets by references per file.
const (
	CouplingIsolated = "isolated"
	CouplingLow      = "low_coupling"
	CouplingMedium   = "medium_coupling"
	CouplingHigh     = "high_coupling"
)

// Result is everything one analysis run found.
type Result struct {
	Root        string    `json:"root"`
	ClaudeDir   string    `json:"claudeDir"`
	XMLOnly     bool      `json:"xmlOnly"`
	GeneratedAt time.Time `json:"generatedAt"`

	Files   []FileResult         `json:"files"`
	Skipped []finder.SkippedFile `json:"skipped,omitempty"`
	Summary Summary              `json:"summary"`
	Metrics Metrics              `json:"metrics"`

	Orphans  []string           `json:"orphans"`
	Cycles   []cycles.FileCycle `json:"cycles"`
	Clusters []cycles.FileCycle `json:"clusters"`
	Edges    []graph.Edge       `json:"edges"`

	Categories    []CategoryStat     `json:"categories"`
	CategoryFlows map[string]int     `json:"categoryFlows"`
	CrossCategory []CrossCategoryRef `json:"crossCategory"`
	Coupling      map[string]int     `json:"coupling"`

	Structure       string        `json:"structure"`
	FixStrategies   []FixStrategy `json:"fixStrategies"`
	Issues          []string      `json:"issues"`
	Recommendations []string      `json:"recommendations"`

	Graph *graph.FileGraph `json:"-"`
}

// FileResult is the reference breakdown of one analyzed file.
type FileResult struct {
	Path         string            `json:"path"`
	Category     string            `json:"category"`
	XMLTagged    bool              `json:"xmlTagged"`
	Total        int               `json:"total"`
	Valid        int               `json:"valid"`
	Broken       int               `json:"broken"`
	CountsByKind map[refs.Kind]int `json:"countsByKind"`
	Refs         []ResolvedRef     `json:"refs,omitempty"`
	BrokenRefs   []BrokenRef       `json:"brokenRefs,omitempty"`
}

// ResolvedRef is a reference that was mapped to an indexed file.
type ResolvedRef struct {
	Raw      string           `json:"raw"`
	Kind     refs.Kind        `json:"kind"`
	Line     int              `json:"line"`
	Target   string           `json:"target"`
	Strategy resolve.Strategy `json:"strategy"`
}

// BrokenRef is a reference no strategy could resolve.
type BrokenRef struct {
	Raw             string            `json:"raw"`
	Kind            refs.Kind         `json:"kind"`
	Line            int               `json:"line"`
	BreakType       resolve.BreakType `json:"breakType"`
	StructuralCause string            `json:"structuralCause"`
}

// TargetCount is a file and how many resolved references point at it.
type TargetCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Summary holds run-wide totals.
type Summary struct {
	IndexedFiles    int                       `json:"indexedFiles"`
	AnalyzedFiles   int                       `json:"analyzedFiles"`
	XMLTaggedFiles  int                       `json:"xmlTaggedFiles"`
	Commands        int                       `json:"commands"`
	Components      int                       `json:"components"`
	FilesWithRefs   int                       `json:"filesWithRefs"`
	TotalRefs       int                       `json:"totalRefs"`
	ValidRefs       int                       `json:"validRefs"`
	BrokenRefs      int                       `json:"brokenRefs"`
	SelfReferences  int                       `json:"selfReferences"`
	ByKind          map[refs.Kind]int         `json:"byKind"`
	ByShape         map[string]int            `json:"byShape"`
	ByStrategy      map[resolve.Strategy]int  `json:"byStrategy"`
	ByBreakType     map[resolve.BreakType]int `json:"byBreakType"`
	MostReferenced  []TargetCount             `json:"mostReferenced"`
	FilesWithBroken []string                  `json:"filesWithBroken"`
}

// Metrics are the derived quality figures. Rates are percentages.
type Metrics struct {
	ValidityRate    float64 `json:"validityRate"`
	BrokenRate      float64 `json:"brokenRate"`
	FilesWithIssues int     `json:"filesWithIssues"`
	IssueRate       float64 `json:"issueRate"`
	AvgRefsPerFile  float64 `json:"avgRefsPerFile"`
	CycleCount      int     `json:"cycleCount"`
	OrphanCount     int     `json:"orphanCount"`
	Quality         string  `json:"quality"`
}

// CategoryStat aggregates the files of one category.
type CategoryStat struct {
	Category string  `json:"category"`
	Files    int     `json:"files"`
	Total    int     `json:"total"`
	Valid    int     `json:"valid"`
	Broken   int     `json:"broken"`
	Validity float64 `json:"validity"`
}

// QualityLabel maps a validity rate to its label.
func QualityLabel(validity float64) string {
	switch {
	case validity >= 95:
		return QualityExcellent
	case validity >= 85:
		return QualityGood
	case validity >= 70:
		return QualityPoor
	default:
		return QualityCritical
	}
}

// CouplingBucket maps a file's reference count to its bucket.
func CouplingBucket(n int) string {
	switch {
	case n == 0:
		return CouplingIsolated
	case n <= 3:
		return CouplingLow
	case n <= 7:
		return CouplingMedium
	default:
		return CouplingHigh
	}
}

// File returns the result for path.
func (r *Result) File(path string) (*FileResult, bool) {
	for i := range r.Files {
		if r.Files[i].Path == path {
			return &r.Files[i], true
		}
	}
	return nil, false
}

// Passed reports whether the validity rate reaches threshold.
func (r *Result) Passed(threshold float64) bool {
	return r.Metrics.ValidityRate >= threshold
}
