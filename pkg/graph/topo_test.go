package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pkgmill/pkgmill/pkg/types"
)

func deps(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func TestOrder_DependencyBeforeDependent(t *testing.T) {
	buildDeps := map[string]map[string]struct{}{
		"A": deps("B"),
		"B": deps(),
	}

	got, err := Order(buildDeps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"B", "A"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order mismatch: got %v want %v", got, want)
	}
}

func TestOrder_NeverEmitsBeforeDeps(t *testing.T) {
	buildDeps := map[string]map[string]struct{}{
		"app":  deps("lib1", "lib2"),
		"lib1": deps("base"),
		"lib2": deps("base"),
		"base": deps(),
		"tool": deps("lib1"),
	}

	got, err := Order(buildDeps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(buildDeps) {
		t.Fatalf("expected all %d packages, got %v", len(buildDeps), got)
	}

	pos := make(map[string]int, len(got))
	for i, name := range got {
		pos[name] = i
	}
	for name, dd := range buildDeps {
		for d := range dd {
			if pos[d] > pos[name] {
				t.Errorf("%s emitted before its dependency %s: %v", name, d, got)
			}
		}
	}
}

func TestOrder_DeterministicTieBreak(t *testing.T) {
	buildDeps := map[string]map[string]struct{}{
		"c": deps(),
		"a": deps(),
		"b": deps(),
	}

	first, err := Order(buildDeps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("order mismatch: got %v want %v", first, want)
	}

	// Map iteration is randomized, so repeat to catch
	// nondeterminism.
	for i := 0; i < 20; i++ {
		again, err := Order(buildDeps)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("order not stable: %v vs %v", first, again)
		}
	}
}

func TestOrder_CycleReported(t *testing.T) {
	buildDeps := map[string]map[string]struct{}{
		"x":    deps("y"),
		"y":    deps("x"),
		"free": deps(),
	}

	got, err := Order(buildDeps)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	var cyc types.ErrCycle
	if !errors.As(err, &cyc) {
		t.Fatalf("expected ErrCycle, got %T", err)
	}
	if !reflect.DeepEqual(cyc.Members, []string{"x", "y"}) {
		t.Fatalf("cycle members mismatch: %v", cyc.Members)
	}
	// The acyclic part is still emitted; the cyclic subset never
	// is.
	if !reflect.DeepEqual(got, []string{"free"}) {
		t.Fatalf("expected acyclic prefix [free], got %v", got)
	}
}

func TestOrder_CycleDependentsStayScheduled(t *testing.T) {
	// "down" and "further" need the cycle but are not on it; they
	// must be scheduled, not condemned as members, so the execution
	// loop can record them as skipped instead of failed.
	buildDeps := map[string]map[string]struct{}{
		"x":       deps("y"),
		"y":       deps("x"),
		"down":    deps("x"),
		"further": deps("down"),
		"free":    deps(),
	}

	got, err := Order(buildDeps)
	var cyc types.ErrCycle
	if !errors.As(err, &cyc) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if !reflect.DeepEqual(cyc.Members, []string{"x", "y"}) {
		t.Fatalf("cycle members mismatch: %v", cyc.Members)
	}
	if !reflect.DeepEqual(got, []string{"free", "down", "further"}) {
		t.Fatalf("expected cycle dependents after the acyclic part, got %v", got)
	}
}

func TestOrder_IgnoresEdgesOutsideRun(t *testing.T) {
	// "ext" is not being built this run; the edge to it must not
	// block emission.
	buildDeps := map[string]map[string]struct{}{
		"A": deps("ext"),
	}

	got, err := Order(buildDeps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("expected [A], got %v", got)
	}
}
