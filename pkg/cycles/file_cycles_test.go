package cycles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/graph"
)

func simpleCycles(t *testing.T, fg *graph.FileGraph, limit int) []FileCycle {
	t.Helper()
	cycles, err := FindSimpleCycles(context.Background(), fg, limit)
	if err != nil {
		t.Fatalf("FindSimpleCycles() error = %v", err)
	}
	return cycles
}

// completeGraph links every file to every other file.
func completeGraph(n int) *graph.FileGraph {
	fg := graph.NewFileGraph()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				_ = fg.AddDependency(fmt.Sprintf("f%02d.md", i), fmt.Sprintf("f%02d.md", j))
			}
		}
	}
	return fg
}

func TestFindFileCycles_NoCycles(t *testing.T) {
	fg := graph.NewFileGraph()

	// A -> B -> C
	_ = fg.AddDependency("a.md", "b.md")
	_ = fg.AddDependency("b.md", "c.md")

	if cycles := FindFileCycles(fg); len(cycles) != 0 {
		t.Errorf("Expected no cycles, but found %d", len(cycles))
	}
	if cycles := simpleCycles(t, fg, 0); len(cycles) != 0 {
		t.Errorf("Expected no simple cycles, but found %d", len(cycles))
	}
}

func TestFindFileCycles_SimpleCycle(t *testing.T) {
	fg := graph.NewFileGraph()

	fg.AddFile("b.md", finder.CategoryAtomicComponent)
	fg.AddFile("a.md", finder.CategoryAtomicComponent)
	_ = fg.AddDependency("a.md", "b.md")
	_ = fg.AddDependency("b.md", "a.md")

	want := []FileCycle{{
		Files:    []string{"a.md", "b.md"},
		Length:   2,
		Severity: SeverityMedium,
		Impact:   ImpactSingleCat,
	}}
	if diff := cmp.Diff(want, FindFileCycles(fg)); diff != "" {
		t.Errorf("FindFileCycles mismatch (-want +got):\n%s", diff)
	}

	wantSimple := []FileCycle{{
		Files:    []string{"a.md", "b.md", "a.md"},
		Length:   2,
		Severity: SeverityMedium,
		Impact:   ImpactSingleCat,
	}}
	if diff := cmp.Diff(wantSimple, simpleCycles(t, fg, 10)); diff != "" {
		t.Errorf("FindSimpleCycles mismatch (-want +got):\n%s", diff)
	}
}

func TestFindSimpleCycles_RotatesToSmallest(t *testing.T) {
	fg := graph.NewFileGraph()

	// c -> a -> b -> c, inserted starting from c
	_ = fg.AddDependency("c.md", "a.md")
	_ = fg.AddDependency("a.md", "b.md")
	_ = fg.AddDependency("b.md", "c.md")

	cycles := simpleCycles(t, fg, 0)
	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, got %d", len(cycles))
	}
	if diff := cmp.Diff([]string{"a.md", "b.md", "c.md", "a.md"}, cycles[0].Files); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}
}

func TestSeverityAndImpact(t *testing.T) {
	fg := graph.NewFileGraph()

	fg.AddFile("cmd.md", finder.CategoryCoreCommand)
	fg.AddFile("x.md", finder.CategoryAtomicComponent)
	fg.AddFile("y.md", finder.CategoryContext)
	fg.AddFile("z.md", finder.CategoryRootDocumentation)

	// Four-file ring through a command
	_ = fg.AddDependency("cmd.md", "x.md")
	_ = fg.AddDependency("x.md", "y.md")
	_ = fg.AddDependency("y.md", "z.md")
	_ = fg.AddDependency("z.md", "cmd.md")

	cycles := FindFileCycles(fg)
	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cluster, got %d", len(cycles))
	}
	if cycles[0].Severity != SeverityHigh {
		t.Errorf("Severity = %s, want HIGH", cycles[0].Severity)
	}
	if cycles[0].Impact != ImpactCommands {
		t.Errorf("Impact = %s, want %s", cycles[0].Impact, ImpactCommands)
	}

	// Three categories without a command
	fg2 := graph.NewFileGraph()
	fg2.AddFile("x.md", finder.CategoryAtomicComponent)
	fg2.AddFile("y.md", finder.CategoryContext)
	fg2.AddFile("z.md", finder.CategoryRootDocumentation)
	_ = fg2.AddDependency("x.md", "y.md")
	_ = fg2.AddDependency("y.md", "z.md")
	_ = fg2.AddDependency("z.md", "x.md")

	got := FindFileCycles(fg2)
	if len(got) != 1 || got[0].Impact != ImpactMultiple || got[0].Severity != SeverityMedium {
		t.Errorf("FindFileCycles = %+v, want one MEDIUM cycle with multiple categories", got)
	}
}

func TestFindSimpleCycles_Limit(t *testing.T) {
	fg := graph.NewFileGraph()

	// Two overlapping cycles sharing hub.md
	_ = fg.AddDependency("hub.md", "a.md")
	_ = fg.AddDependency("a.md", "hub.md")
	_ = fg.AddDependency("hub.md", "b.md")
	_ = fg.AddDependency("b.md", "hub.md")

	if got := len(simpleCycles(t, fg, 0)); got != 2 {
		t.Errorf("Expected 2 simple cycles, got %d", got)
	}
	if got := len(simpleCycles(t, fg, 1)); got != 1 {
		t.Errorf("Expected limit to cap at 1, got %d", got)
	}
	// One cluster covers both
	clusters := FindFileCycles(fg)
	if len(clusters) != 1 || clusters[0].Length != 3 {
		t.Errorf("Expected one 3-file cluster, got %+v", clusters)
	}
}

func TestFindSimpleCycles_CompleteGraph(t *testing.T) {
	// 2-cycles: 6, 3-cycles: 4*2, 4-cycles: 3!
	all := simpleCycles(t, completeGraph(4), 0)
	if len(all) != 20 {
		t.Fatalf("Expected 20 simple cycles, got %d", len(all))
	}
	sorted := sort.SliceIsSorted(all, func(i, j int) bool {
		return strings.Join(all[i].Files, "\x00") < strings.Join(all[j].Files, "\x00")
	})
	if !sorted {
		t.Error("cycles are not sorted")
	}
	for _, c := range all {
		if c.Files[0] != c.Files[len(c.Files)-1] {
			t.Errorf("cycle %v is not closed", c.Files)
		}
		for _, p := range c.Files[1 : len(c.Files)-1] {
			if p <= c.Files[0] {
				t.Errorf("cycle %v does not start at its smallest file", c.Files)
			}
		}
	}

	// A capped search returns the head of the full result.
	if diff := cmp.Diff(all[:7], simpleCycles(t, completeGraph(4), 7)); diff != "" {
		t.Errorf("limited cycles mismatch (-want +got):\n%s", diff)
	}
}

func TestFindSimpleCycles_DenseGraphStopsAtLimit(t *testing.T) {
	fg := completeGraph(12)

	done := make(chan []FileCycle, 1)
	go func() {
		cycles, _ := FindSimpleCycles(context.Background(), fg, 100)
		done <- cycles
	}()

	select {
	case cycles := <-done:
		if len(cycles) != 100 {
			t.Errorf("Expected 100 cycles, got %d", len(cycles))
		}
		want := []string{"f00.md", "f01.md", "f00.md"}
		if diff := cmp.Diff(want, cycles[0].Files); diff != "" {
			t.Errorf("first cycle mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("FindSimpleCycles did not stop at the limit")
	}
}

func TestFindSimpleCycles_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cycles, err := FindSimpleCycles(ctx, completeGraph(12), 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FindSimpleCycles() error = %v, want context.Canceled", err)
	}
	if cycles != nil {
		t.Errorf("FindSimpleCycles() returned %d cycles after cancel", len(cycles))
	}
}

func TestFindSimpleCycles_DeadlineMidSearch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Unbounded enumeration of 12 files runs far past the deadline.
	_, err := FindSimpleCycles(ctx, completeGraph(12), 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FindSimpleCycles() error = %v, want context.DeadlineExceeded", err)
	}
}
