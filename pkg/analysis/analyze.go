// Package analysis runs the reference audit: index the markdown files,
// extract and resolve their references, build the reference graph, find
// cycles and orphans, and aggregate the result.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/swm-sink/promptaudit/pkg/cycles"
	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/graph"
	"github.com/swm-sink/promptaudit/pkg/inventory"
	"github.com/swm-sink/promptaudit/pkg/logging"
	"github.com/swm-sink/promptaudit/pkg/refs"
	"github.com/swm-sink/promptaudit/pkg/resolve"
)

var log = logging.New("analysis")

// Analysis stages reported through Options.Progress.
const (
	StageIndexing   = "indexing"
	StageExtracting = "extracting"
	StageGraphing   = "graphing"
	StageReady      = "ready"
	stageCount      = 4
)

const mostReferencedLimit = 10

// Options configures an analysis run.
type Options struct {
	Root      string
	ClaudeDir string

	// XMLOnly restricts reference sources to files carrying an
	// <ai_document_metadata> block. Every file is still a valid target.
	XMLOnly bool

	// CycleLimit caps the number of elementary cycles reported; 0 means no cap.
	CycleLimit int

	// Audit is the directory audit used to explain broken references. It may
	// be nil.
	Audit *inventory.DirectoryAudit

	// Progress, when set, is called as each stage starts.
	Progress func(stage string, step, total int)
}

func (o Options) progress(stage string, step int) {
	if o.Progress != nil {
		o.Progress(stage, step, stageCount)
	}
}

// Run indexes opts.Root and analyzes it.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.ClaudeDir == "" {
		opts.ClaudeDir = ".claude"
	}

	opts.progress(StageIndexing, 1)
	idx, err := finder.NewIndex(opts.Root, opts.ClaudeDir)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", opts.Root, err)
	}
	return Analyze(ctx, idx, opts)
}

// Analyze runs the audit over an existing index. File contents are read from
// idx.Root. The context is checked between files.
func Analyze(ctx context.Context, idx *finder.Index, opts Options) (*Result, error) {
	start := time.Now()
	resolver := resolve.New(idx)

	res := &Result{
		Root:        idx.Root,
		ClaudeDir:   idx.ClaudeDir,
		XMLOnly:     opts.XMLOnly,
		GeneratedAt: start,
		Skipped:     append([]finder.SkippedFile(nil), idx.Skipped...),
		Coupling: map[string]int{
			CouplingIsolated: 0,
			CouplingLow:      0,
			CouplingMedium:   0,
			CouplingHigh:     0,
		},
		Structure: CauseNoContext,
	}
	if opts.Audit != nil {
		res.Structure = "DIRECTORY_AUDIT"
	}

	sum := &res.Summary
	sum.IndexedFiles = idx.Len()
	sum.ByKind = make(map[refs.Kind]int)
	sum.ByShape = make(map[string]int)
	sum.ByStrategy = make(map[resolve.Strategy]int)
	sum.ByBreakType = make(map[resolve.BreakType]int)

	for _, n := range idx.Files {
		switch {
		case finder.IsCommand(n.Category):
			sum.Commands++
		case finder.IsComponent(n.Category):
			sum.Components++
		}
		if n.XMLTagged {
			sum.XMLTaggedFiles++
		}
	}

	opts.progress(StageExtracting, 2)
	var edges []graph.Edge
	referenced := make(map[string]int)

	for _, node := range idx.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.XMLOnly && !node.XMLTagged {
			continue
		}

		content, err := os.ReadFile(filepath.Join(idx.Root, filepath.FromSlash(node.Path)))
		if err != nil {
			log.Warn("skipping unreadable file", "path", node.Path, "error", err)
			res.Skipped = append(res.Skipped, finder.SkippedFile{Path: node.Path, Reason: err.Error()})
			continue
		}

		fr := FileResult{
			Path:         node.Path,
			Category:     node.Category,
			XMLTagged:    node.XMLTagged,
			CountsByKind: make(map[refs.Kind]int),
		}
		for _, ref := range refs.Extract(string(content)) {
			fr.Total++
			fr.CountsByKind[ref.Kind]++
			sum.ByKind[ref.Kind]++
			sum.ByShape[refs.Shape(ref.Raw)]++

			r := resolver.Resolve(node.Path, ref.Raw)
			if !r.OK {
				fr.Broken++
				sum.ByBreakType[r.Break]++
				fr.BrokenRefs = append(fr.BrokenRefs, BrokenRef{
					Raw:             ref.Raw,
					Kind:            ref.Kind,
					Line:            ref.Line,
					BreakType:       r.Break,
					StructuralCause: StructuralCause(ref.Raw, opts.Audit),
				})
				continue
			}

			fr.Valid++
			sum.ByStrategy[r.Strategy]++
			fr.Refs = append(fr.Refs, ResolvedRef{
				Raw:      ref.Raw,
				Kind:     ref.Kind,
				Line:     ref.Line,
				Target:   r.Target,
				Strategy: r.Strategy,
			})
			if r.Target == node.Path {
				sum.SelfReferences++
				continue
			}
			referenced[r.Target]++
			edges = append(edges, graph.Edge{Source: node.Path, Target: r.Target})
		}

		sum.TotalRefs += fr.Total
		sum.ValidRefs += fr.Valid
		sum.BrokenRefs += fr.Broken
		if fr.Total > 0 {
			sum.FilesWithRefs++
		}
		if fr.Broken > 0 {
			sum.FilesWithBroken = append(sum.FilesWithBroken, fr.Path)
		}
		res.Coupling[CouplingBucket(fr.Total)]++
		res.Files = append(res.Files, fr)
	}
	sum.AnalyzedFiles = len(res.Files)

	opts.progress(StageGraphing, 3)
	fg := graph.BuildFileGraph(idx.Files, edges)
	res.Graph = fg
	res.Edges = fg.Edges()
	simple, err := cycles.FindSimpleCycles(ctx, fg, opts.CycleLimit)
	if err != nil {
		return nil, err
	}
	res.Cycles = simple
	res.Clusters = cycles.FindFileCycles(fg)
	res.CrossCategory = FindCrossCategoryRefs(fg)
	res.CategoryFlows = CategoryFlows(fg)

	for _, f := range res.Files {
		if fg.InDegree(f.Path) == 0 {
			res.Orphans = append(res.Orphans, f.Path)
		}
	}
	sort.Strings(res.Orphans)

	for target, n := range referenced {
		sum.MostReferenced = append(sum.MostReferenced, TargetCount{Path: target, Count: n})
	}
	sortCounts(sum.MostReferenced)
	if len(sum.MostReferenced) > mostReferencedLimit {
		sum.MostReferenced = sum.MostReferenced[:mostReferencedLimit]
	}

	res.Categories = categoryStats(res.Files)
	res.Metrics = computeMetrics(res)
	res.FixStrategies = FixStrategies(res)
	res.Issues, res.Recommendations = issuesAndRecommendations(res)

	opts.progress(StageReady, 4)
	log.Info("analysis complete",
		"files", sum.AnalyzedFiles,
		"refs", sum.TotalRefs,
		"broken", sum.BrokenRefs,
		"cycles", len(res.Cycles),
		"orphans", len(res.Orphans),
		"duration", time.Since(start))
	return res, nil
}

func computeMetrics(r *Result) Metrics {
	s := r.Summary
	m := Metrics{
		FilesWithIssues: len(s.FilesWithBroken),
		CycleCount:      len(r.Cycles),
		OrphanCount:     len(r.Orphans),
	}
	if s.TotalRefs > 0 {
		m.ValidityRate = percent(s.ValidRefs, s.TotalRefs)
		m.BrokenRate = percent(s.BrokenRefs, s.TotalRefs)
	}
	if s.AnalyzedFiles > 0 {
		m.IssueRate = percent(m.FilesWithIssues, s.AnalyzedFiles)
		m.AvgRefsPerFile = float64(s.TotalRefs) / float64(s.AnalyzedFiles)
	}
	m.Quality = QualityLabel(m.ValidityRate)
	return m
}

func categoryStats(files []FileResult) []CategoryStat {
	byCategory := make(map[string]*CategoryStat)
	for _, f := range files {
		st, ok := byCategory[f.Category]
		if !ok {
			st = &CategoryStat{Category: f.Category}
			byCategory[f.Category] = st
		}
		st.Files++
		st.Total += f.Total
		st.Valid += f.Valid
		st.Broken += f.Broken
	}

	out := make([]CategoryStat, 0, len(byCategory))
	for _, st := range byCategory {
		if st.Total > 0 {
			st.Validity = percent(st.Valid, st.Total)
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func percent(n, total int) float64 {
	return float64(n) / float64(total) * 100
}
