package cycles

import (
	"context"
	"sort"

	"github.com/swm-sink/promptaudit/pkg/graph"
)

// ctxCheckInterval is how many search steps run between context checks.
const ctxCheckInterval = 1024

// FindSimpleCycles enumerates the elementary cycles of the graph. Each cycle
// starts at its lexically smallest path and is closed. The result is sorted
// and holds at most limit cycles; limit <= 0 means no cap.
//
// The search stops as soon as limit cycles are found, so a densely linked
// library costs time proportional to the cap, not to its cycle count. It
// returns ctx.Err() when ctx is done mid-search.
func FindSimpleCycles(ctx context.Context, fg *graph.FileGraph, limit int) ([]FileCycle, error) {
	s := newCircuitSearch(ctx, fg, limit)
	for start := range s.paths {
		if s.stop {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.component(start) {
			continue
		}
		s.circuit(start, start)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.cycles, nil
}

// circuitSearch finds elementary cycles in path order. Nodes are indexed by
// sorted path and successors are visited in index order, so cycles are found
// already sorted: a search rooted at start only walks nodes greater than
// start, and each cycle is found once, from its smallest node.
type circuitSearch struct {
	ctx   context.Context
	fg    *graph.FileGraph
	limit int

	paths []string
	succ  [][]int
	pred  [][]int

	// per-start state
	inComp  []bool
	blocked []bool
	blockBy []map[int]struct{}
	stack   []int

	steps  int
	stop   bool
	err    error
	cycles []FileCycle
}

func newCircuitSearch(ctx context.Context, fg *graph.FileGraph, limit int) *circuitSearch {
	nodes := fg.Nodes()
	index := make(map[string]int, len(nodes))
	paths := make([]string, len(nodes))
	for i, n := range nodes {
		paths[i] = n.Path
		index[n.Path] = i
	}

	s := &circuitSearch{
		ctx:     ctx,
		fg:      fg,
		limit:   limit,
		paths:   paths,
		succ:    make([][]int, len(paths)),
		pred:    make([][]int, len(paths)),
		inComp:  make([]bool, len(paths)),
		blocked: make([]bool, len(paths)),
		blockBy: make([]map[int]struct{}, len(paths)),
	}
	// Edges are sorted by source then target, so succ lists come out sorted.
	for _, e := range fg.Edges() {
		from, to := index[e.Source], index[e.Target]
		if from == to {
			continue
		}
		s.succ[from] = append(s.succ[from], to)
		s.pred[to] = append(s.pred[to], from)
	}
	for i := range s.pred {
		sort.Ints(s.pred[i])
	}
	return s
}

// component marks the strongly connected component of start within the
// nodes >= start and resets the blocking state. It reports whether start
// can be part of a cycle at all.
func (s *circuitSearch) component(start int) bool {
	forward := s.reach(start, s.succ)
	backward := s.reach(start, s.pred)
	members := 0
	for i := range s.inComp {
		s.inComp[i] = forward[i] && backward[i]
		if s.inComp[i] {
			members++
		}
		s.blocked[i] = false
		s.blockBy[i] = nil
	}
	return members > 1
}

// reach returns the nodes >= start reachable from start along adj.
func (s *circuitSearch) reach(start int, adj [][]int) []bool {
	seen := make([]bool, len(s.paths))
	seen[start] = true
	queue := []int{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range adj[v] {
			if w >= start && !seen[w] {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return seen
}

// circuit extends the path on the stack through v. It reports whether a
// cycle back to start was found below v.
func (s *circuitSearch) circuit(start, v int) bool {
	if s.tick() {
		return false
	}
	found := false
	s.stack = append(s.stack, v)
	s.blocked[v] = true

	for _, w := range s.succ[v] {
		if s.stop {
			break
		}
		if !s.inComp[w] {
			continue
		}
		if w == start {
			s.emit()
			found = true
		} else if !s.blocked[w] && s.circuit(start, w) {
			found = true
		}
	}

	if found {
		s.unblock(v)
	} else {
		for _, w := range s.succ[v] {
			if !s.inComp[w] {
				continue
			}
			if s.blockBy[w] == nil {
				s.blockBy[w] = make(map[int]struct{})
			}
			s.blockBy[w][v] = struct{}{}
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	return found
}

func (s *circuitSearch) unblock(v int) {
	s.blocked[v] = false
	waiting := s.blockBy[v]
	s.blockBy[v] = nil
	for w := range waiting {
		if s.blocked[w] {
			s.unblock(w)
		}
	}
}

// tick counts a search step and checks the context every so often.
func (s *circuitSearch) tick() bool {
	if s.stop {
		return true
	}
	s.steps++
	if s.steps%ctxCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			s.stop = true
		}
	}
	return s.stop
}

// emit records the cycle on the stack and stops the search at the limit.
func (s *circuitSearch) emit() {
	members := make([]string, len(s.stack))
	for i, v := range s.stack {
		members[i] = s.paths[v]
	}
	s.cycles = append(s.cycles, newCycle(s.fg, members, closeCycle(append([]string(nil), members...))))
	if s.limit > 0 && len(s.cycles) >= s.limit {
		s.stop = true
	}
}
