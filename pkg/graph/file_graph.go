package graph

import (
	"errors"
	"sort"

	"github.com/swm-sink/promptaudit/pkg/finder"
	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// ErrSelfReference is returned when a file references itself. gonum's simple
// graphs reject self edges, and a self reference is not a cycle between files.
var ErrSelfReference = errors.New("graph: self reference")

// FileNode represents a markdown file in the reference graph
type FileNode struct {
	Path     string `json:"path"`     // e.g. ".claude/commands/core/task.md"
	Category string `json:"category"` // e.g. "Core Command"
}

// Edge is a resolved reference from Source to Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FileGraph is the file-level reference graph
type FileGraph struct {
	graph  *simple.DirectedGraph
	nodes  map[string]*FileNode // file path -> node
	ids    map[string]int64     // file path -> graph ID
	paths  map[int64]string     // graph ID -> file path
	nextID int64
}

// NewFileGraph creates an empty reference graph
func NewFileGraph() *FileGraph {
	return &FileGraph{
		graph: simple.NewDirectedGraph(),
		nodes: make(map[string]*FileNode),
		ids:   make(map[string]int64),
		paths: make(map[int64]string),
	}
}

// AddFile adds a file to the graph. Adding a known path only fills in a
// missing category.
func (fg *FileGraph) AddFile(path, category string) {
	if node, exists := fg.nodes[path]; exists {
		if node.Category == "" {
			node.Category = category
		}
		return
	}

	fg.nodes[path] = &FileNode{Path: path, Category: category}
	fg.ids[path] = fg.nextID
	fg.paths[fg.nextID] = path
	fg.graph.AddNode(simple.Node(fg.nextID))
	fg.nextID++
}

// AddDependency adds an edge from source to target, creating either node if
// needed. Duplicate edges are ignored; self references return ErrSelfReference.
func (fg *FileGraph) AddDependency(source, target string) error {
	if source == target {
		return ErrSelfReference
	}
	fg.AddFile(source, "")
	fg.AddFile(target, "")

	sourceID := fg.ids[source]
	targetID := fg.ids[target]

	if !fg.graph.HasEdgeFromTo(sourceID, targetID) {
		fg.graph.SetEdge(fg.graph.NewEdge(fg.graph.Node(sourceID), fg.graph.Node(targetID)))
	}
	return nil
}

// GetNode returns a file node by path
func (fg *FileGraph) GetNode(path string) (*FileNode, bool) {
	node, exists := fg.nodes[path]
	return node, exists
}

// GetNodeByID returns a file node by its graph ID
func (fg *FileGraph) GetNodeByID(id int64) *FileNode {
	path, ok := fg.paths[id]
	if !ok {
		return nil
	}
	return fg.nodes[path]
}

// Graph returns the underlying directed graph
func (fg *FileGraph) Graph() *simple.DirectedGraph {
	return fg.graph
}

// Nodes returns all file nodes sorted by path
func (fg *FileGraph) Nodes() []*FileNode {
	nodes := make([]*FileNode, 0, len(fg.nodes))
	for _, node := range fg.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes
}

// Edges returns all edges sorted by source then target
func (fg *FileGraph) Edges() []Edge {
	var edges []Edge

	iter := fg.graph.Edges()
	for iter.Next() {
		e := iter.Edge()
		edges = append(edges, Edge{
			Source: fg.paths[e.From().ID()],
			Target: fg.paths[e.To().ID()],
		})
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

// GetDependencies returns the files path references, sorted
func (fg *FileGraph) GetDependencies(path string) []string {
	id, exists := fg.ids[path]
	if !exists {
		return nil
	}
	return fg.collect(fg.graph.From(id))
}

// GetDependents returns the files that reference path, sorted
func (fg *FileGraph) GetDependents(path string) []string {
	id, exists := fg.ids[path]
	if !exists {
		return nil
	}
	return fg.collect(fg.graph.To(id))
}

// InDegree is the number of distinct files referencing path.
func (fg *FileGraph) InDegree(path string) int {
	id, exists := fg.ids[path]
	if !exists {
		return 0
	}
	return fg.graph.To(id).Len()
}

// OutDegree is the number of distinct files path references.
func (fg *FileGraph) OutDegree(path string) int {
	id, exists := fg.ids[path]
	if !exists {
		return 0
	}
	return fg.graph.From(id).Len()
}

func (fg *FileGraph) collect(it gonumgraph.Nodes) []string {
	var out []string
	for it.Next() {
		out = append(out, fg.paths[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// BuildFileGraph builds the reference graph: every file becomes a node, even
// when it has no edges, and each edge is added once.
func BuildFileGraph(files []*finder.FileNode, edges []Edge) *FileGraph {
	fg := NewFileGraph()

	for _, f := range files {
		fg.AddFile(f.Path, f.Category)
	}
	for _, e := range edges {
		// Self references are counted by the caller, not stored
		_ = fg.AddDependency(e.Source, e.Target)
	}

	return fg
}
