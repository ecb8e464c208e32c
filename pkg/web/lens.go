package web

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// maxSnapshots bounds the graph snapshots kept for diffing.
const maxSnapshots = 16

// GraphDiff is the change between a graph the client already has and the
// current one.
type GraphDiff struct {
	Hash          string      `json:"hash"`
	AddedNodes    []GraphNode `json:"addedNodes"`
	RemovedNodes  []string    `json:"removedNodes"`  // node IDs
	ModifiedNodes []GraphNode `json:"modifiedNodes"` // same ID, changed flags
	AddedEdges    []GraphEdge `json:"addedEdges"`
	RemovedEdges  []string    `json:"removedEdges"` // edge keys, "source|target"
	FullGraph     bool        `json:"fullGraph"`    // the base was unknown, everything is "added"
}

// GraphSnapshot is an indexed graph state kept for diffing.
type GraphSnapshot struct {
	Hash  string
	Nodes map[string]GraphNode // nodeID -> node
	Edges map[string]GraphEdge // edgeKey -> edge
}

// HashGraph identifies a graph state. Equal graphs hash equally because
// nodes and edges are emitted in graph order.
func HashGraph(data *GraphData) string {
	raw, err := json.Marshal(struct {
		Nodes []GraphNode
		Edges []GraphEdge
	}{data.Nodes, data.Edges})
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(raw))
}

// NewSnapshot indexes data.
func NewSnapshot(data *GraphData) *GraphSnapshot {
	s := &GraphSnapshot{
		Hash:  HashGraph(data),
		Nodes: make(map[string]GraphNode, len(data.Nodes)),
		Edges: make(map[string]GraphEdge, len(data.Edges)),
	}
	for _, n := range data.Nodes {
		s.Nodes[n.ID] = n
	}
	for _, e := range data.Edges {
		s.Edges[edgeKey(e)] = e
	}
	return s
}

// ComputeDiff returns what changed from old to data. A nil old yields the
// full graph.
func ComputeDiff(old *GraphSnapshot, data *GraphData) *GraphDiff {
	diff := &GraphDiff{
		Hash:          HashGraph(data),
		AddedNodes:    []GraphNode{},
		RemovedNodes:  []string{},
		ModifiedNodes: []GraphNode{},
		AddedEdges:    []GraphEdge{},
		RemovedEdges:  []string{},
	}
	if old == nil {
		diff.AddedNodes = append(diff.AddedNodes, data.Nodes...)
		diff.AddedEdges = append(diff.AddedEdges, data.Edges...)
		diff.FullGraph = true
		return diff
	}

	nodes := make(map[string]bool, len(data.Nodes))
	for _, n := range data.Nodes {
		nodes[n.ID] = true
		prev, ok := old.Nodes[n.ID]
		switch {
		case !ok:
			diff.AddedNodes = append(diff.AddedNodes, n)
		case prev != n:
			diff.ModifiedNodes = append(diff.ModifiedNodes, n)
		}
	}
	for id := range old.Nodes {
		if !nodes[id] {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	edges := make(map[string]bool, len(data.Edges))
	for _, e := range data.Edges {
		key := edgeKey(e)
		edges[key] = true
		// An edge whose Cyclic flag flipped is replaced.
		if prev, ok := old.Edges[key]; !ok || prev != e {
			diff.AddedEdges = append(diff.AddedEdges, e)
			if ok {
				diff.RemovedEdges = append(diff.RemovedEdges, key)
			}
		}
	}
	for key := range old.Edges {
		if !edges[key] {
			diff.RemovedEdges = append(diff.RemovedEdges, key)
		}
	}

	sort.Strings(diff.RemovedNodes)
	sort.Strings(diff.RemovedEdges)
	return diff
}

func edgeKey(e GraphEdge) string {
	return e.Source + "|" + e.Target
}

// Distances returns the undirected hop distance from the nearest focus node
// to every reachable node. A focus that is not a node ID selects every node
// under that directory, the way a directory groups its files in the graph.
func Distances(data *GraphData, focus []string) map[string]int {
	dist := make(map[string]int)
	var queue []string
	for _, id := range expandFocus(data, focus) {
		if _, seen := dist[id]; !seen {
			dist[id] = 0
			queue = append(queue, id)
		}
	}

	adjacency := make(map[string][]string)
	for _, e := range data.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		adjacency[e.Target] = append(adjacency[e.Target], e.Source)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if _, seen := dist[next]; !seen {
				dist[next] = dist[cur] + 1
				queue = append(queue, next)
			}
		}
	}
	return dist
}

func expandFocus(data *GraphData, focus []string) []string {
	ids := make(map[string]bool, len(data.Nodes))
	for _, n := range data.Nodes {
		ids[n.ID] = true
	}

	var out []string
	for _, f := range focus {
		f = strings.TrimSuffix(f, "/")
		if ids[f] {
			out = append(out, f)
			continue
		}
		for _, n := range data.Nodes {
			if n.Parent == f || strings.HasPrefix(n.ID, f+"/") {
				out = append(out, n.ID)
			}
		}
	}
	return out
}

// FocusGraph keeps the nodes within depth hops of focus and the edges
// between them.
func FocusGraph(data *GraphData, focus []string, depth int) *GraphData {
	dist := Distances(data, focus)
	out := &GraphData{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	keep := make(map[string]bool)
	for _, n := range data.Nodes {
		if d, ok := dist[n.ID]; ok && d <= depth {
			keep[n.ID] = true
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range data.Edges {
		if keep[e.Source] && keep[e.Target] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

// snapshotCache remembers recently served graphs by hash.
type snapshotCache struct {
	mu    sync.Mutex
	byKey map[string]*GraphSnapshot
	order []string
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{byKey: make(map[string]*GraphSnapshot)}
}

func (c *snapshotCache) get(hash string) *GraphSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byKey[hash]
}

func (c *snapshotCache) put(s *GraphSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byKey[s.Hash]; ok {
		return
	}
	c.byKey[s.Hash] = s
	c.order = append(c.order, s.Hash)
	if len(c.order) > maxSnapshots {
		delete(c.byKey, c.order[0])
		c.order = c.order[1:]
	}
}
