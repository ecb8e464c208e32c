// Package cycles detects circular references between prompt files.
package cycles

import (
	"sort"

	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// Severity of a cycle, by length.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
)

// Impact descriptions, by the categories of the files involved.
const (
	ImpactCommands  = "HIGH - Commands involved in cycle"
	ImpactMultiple  = "MEDIUM - Multiple categories involved"
	ImpactSingleCat = "LOW - Single category cycle"
)

// FileCycle is a circular reference between files. For elementary cycles
// Files is closed: the first path is repeated at the end. For clusters
// (strongly connected components) Files is the sorted member set.
type FileCycle struct {
	Files    []string `json:"files"`
	Length   int      `json:"length"`
	Severity string   `json:"severity"`
	Impact   string   `json:"impact"`
}

// FindFileCycles returns the cycle clusters of the graph: every strongly
// connected component with more than one file, sorted by first path.
func FindFileCycles(fg *graph.FileGraph) []FileCycle {
	cycles := make([]FileCycle, 0)
	for _, scc := range topo.TarjanSCC(fg.Graph()) {
		// No self references exist, so singletons are never cycles.
		if len(scc) < 2 {
			continue
		}
		files := make([]string, 0, len(scc))
		for _, n := range scc {
			if node := fg.GetNodeByID(n.ID()); node != nil {
				files = append(files, node.Path)
			}
		}
		if len(files) < 2 {
			continue
		}
		sort.Strings(files)
		cycles = append(cycles, newCycle(fg, files, files))
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Files[0] < cycles[j].Files[0] })
	return cycles
}

func newCycle(fg *graph.FileGraph, members, files []string) FileCycle {
	severity := SeverityMedium
	if len(members) > 3 {
		severity = SeverityHigh
	}
	return FileCycle{
		Files:    files,
		Length:   len(members),
		Severity: severity,
		Impact:   impact(fg, members),
	}
}

func impact(fg *graph.FileGraph, members []string) string {
	categories := make(map[string]bool)
	for _, p := range members {
		category := ""
		if node, ok := fg.GetNode(p); ok {
			category = node.Category
		}
		if finder.IsCommand(category) {
			return ImpactCommands
		}
		categories[category] = true
	}
	if len(categories) > 2 {
		return ImpactMultiple
	}
	return ImpactSingleCat
}

func closeCycle(members []string) []string {
	return append(members, members[0])
}
