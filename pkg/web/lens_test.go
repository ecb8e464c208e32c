package web

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// a -> b -> c, d isolated, all but d under dir x.
func sampleGraph() *GraphData {
	return &GraphData{
		Nodes: []GraphNode{
			{ID: "x/a.md", Parent: "x"},
			{ID: "x/b.md", Parent: "x"},
			{ID: "x/y/c.md", Parent: "x/y"},
			{ID: "d.md", Parent: "."},
		},
		Edges: []GraphEdge{
			{Source: "x/a.md", Target: "x/b.md"},
			{Source: "x/b.md", Target: "x/y/c.md"},
		},
	}
}

func TestDistances(t *testing.T) {
	tests := []struct {
		name  string
		focus []string
		want  map[string]int
	}{
		{"single node", []string{"x/a.md"}, map[string]int{"x/a.md": 0, "x/b.md": 1, "x/y/c.md": 2}},
		{"follows edges backwards", []string{"x/y/c.md"}, map[string]int{"x/y/c.md": 0, "x/b.md": 1, "x/a.md": 2}},
		{"directory", []string{"x/y/"}, map[string]int{"x/y/c.md": 0, "x/b.md": 1, "x/a.md": 2}},
		{"isolated", []string{"d.md"}, map[string]int{"d.md": 0}},
		{"unknown", []string{"nope.md"}, map[string]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Distances(sampleGraph(), tt.focus)); diff != "" {
				t.Errorf("Distances() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFocusGraph(t *testing.T) {
	got := FocusGraph(sampleGraph(), []string{"x/a.md"}, 1)
	want := &GraphData{
		Nodes: []GraphNode{{ID: "x/a.md", Parent: "x"}, {ID: "x/b.md", Parent: "x"}},
		Edges: []GraphEdge{{Source: "x/a.md", Target: "x/b.md"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FocusGraph() mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeDiff(t *testing.T) {
	old := NewSnapshot(sampleGraph())

	// b modified, d replaced by e, a->b flips to cyclic, b->c replaced by e->a.
	next := sampleGraph()
	next.Nodes[1].Broken = 2
	next.Nodes = append(next.Nodes[:3], GraphNode{ID: "e.md", Parent: "."})
	next.Edges[0].Cyclic = true
	next.Edges = append(next.Edges[:1], GraphEdge{Source: "e.md", Target: "x/a.md"})

	got := ComputeDiff(old, next)
	want := &GraphDiff{
		Hash:          HashGraph(next),
		AddedNodes:    []GraphNode{{ID: "e.md", Parent: "."}},
		RemovedNodes:  []string{"d.md"},
		ModifiedNodes: []GraphNode{{ID: "x/b.md", Parent: "x", Broken: 2}},
		AddedEdges: []GraphEdge{
			{Source: "x/a.md", Target: "x/b.md", Cyclic: true},
			{Source: "e.md", Target: "x/a.md"},
		},
		RemovedEdges: []string{"x/a.md|x/b.md", "x/b.md|x/y/c.md"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ComputeDiff() mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeDiffWithoutBase(t *testing.T) {
	g := sampleGraph()
	got := ComputeDiff(nil, g)
	if !got.FullGraph || len(got.AddedNodes) != 4 || len(got.AddedEdges) != 2 {
		t.Errorf("ComputeDiff(nil) = %+v, want the full graph", got)
	}
}

func TestSnapshotCacheEvicts(t *testing.T) {
	c := newSnapshotCache()
	for i := 0; i <= maxSnapshots; i++ {
		c.put(&GraphSnapshot{Hash: string(rune('a' + i))})
	}
	if c.get("a") != nil {
		t.Error("oldest snapshot not evicted")
	}
	if c.get(string(rune('a'+maxSnapshots))) == nil {
		t.Error("newest snapshot missing")
	}
}

func TestGraphFocusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, exampleResult(t))

	data := decode[GraphData](t, do(t, s, "GET", "/api/graph?focus="+inputMD+"&depth=0", ""))
	if len(data.Nodes) != 1 || data.Nodes[0].ID != inputMD || len(data.Edges) != 0 {
		t.Errorf("depth 0 graph = %+v", data)
	}

	data = decode[GraphData](t, do(t, s, "GET", "/api/graph?focus="+inputMD, ""))
	ids := make(map[string]bool)
	for _, n := range data.Nodes {
		ids[n.ID] = true
	}
	if !ids[inputMD] || !ids[dagMD] {
		t.Errorf("depth 1 graph lost the cycle partner: %v", ids)
	}

	if rec := do(t, s, "GET", "/api/graph?focus="+inputMD+"&depth=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative depth status = %d, want 400", rec.Code)
	}
}

func TestGraphSince(t *testing.T) {
	s, _ := newTestServer(t, exampleResult(t))

	full := decode[GraphData](t, do(t, s, "GET", "/api/graph", ""))
	if full.Hash == "" {
		t.Fatal("graph response has no hash")
	}

	diff := decode[GraphDiff](t, do(t, s, "GET", "/api/graph?since="+full.Hash, ""))
	if diff.FullGraph || diff.Hash != full.Hash {
		t.Errorf("diff against current graph = %+v", diff)
	}
	if n := len(diff.AddedNodes) + len(diff.RemovedNodes) + len(diff.ModifiedNodes) + len(diff.AddedEdges) + len(diff.RemovedEdges); n != 0 {
		t.Errorf("unchanged graph produced %d changes", n)
	}

	unknown := decode[GraphDiff](t, do(t, s, "GET", "/api/graph?since=stale", ""))
	if !unknown.FullGraph || len(unknown.AddedNodes) != len(full.Nodes) {
		t.Errorf("diff against unknown base = %d nodes, full %v", len(unknown.AddedNodes), unknown.FullGraph)
	}
}
