package analysis

import (
	"sort"

	"github.com/swm-sink/promptaudit/pkg/graph"
)

// CrossCategoryRef is a reference edge whose source and target sit in
// different categories.
type CrossCategoryRef struct {
	SourceFile     string `json:"sourceFile"`     // e.g. ".claude/commands/core/task.md"
	TargetFile     string `json:"targetFile"`     // e.g. ".claude/components/atomic/input-validation.md"
	SourceCategory string `json:"sourceCategory"` // e.g. "Core Command"
	TargetCategory string `json:"targetCategory"` // e.g. "Atomic Component"
}

// FindCrossCategoryRefs returns the edges of fg that cross categories, in
// edge order.
func FindCrossCategoryRefs(fg *graph.FileGraph) []CrossCategoryRef {
	var crossRefs []CrossCategoryRef

	for _, edge := range fg.Edges() {
		sourceCategory := categoryOf(fg, edge.Source)
		targetCategory := categoryOf(fg, edge.Target)

		if sourceCategory != targetCategory {
			crossRefs = append(crossRefs, CrossCategoryRef{
				SourceFile:     edge.Source,
				TargetFile:     edge.Target,
				SourceCategory: sourceCategory,
				TargetCategory: targetCategory,
			})
		}
	}

	return crossRefs
}

// CategoryFlows counts edges per "Source→Target" category pair, including
// edges within one category.
func CategoryFlows(fg *graph.FileGraph) map[string]int {
	flows := make(map[string]int)
	for _, edge := range fg.Edges() {
		flows[categoryOf(fg, edge.Source)+"→"+categoryOf(fg, edge.Target)]++
	}
	return flows
}

// SortedFlows returns flows ordered by count, then key.
func SortedFlows(flows map[string]int) []TargetCount {
	out := make([]TargetCount, 0, len(flows))
	for k, v := range flows {
		out = append(out, TargetCount{Path: k, Count: v})
	}
	sortCounts(out)
	return out
}

func categoryOf(fg *graph.FileGraph, path string) string {
	if node, ok := fg.GetNode(path); ok && node.Category != "" {
		return node.Category
	}
	return "Unknown"
}

func sortCounts(c []TargetCount) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Count != c[j].Count {
			return c[i].Count > c[j].Count
		}
		return c[i].Path < c[j].Path
	})
}
