package plugin

import (
	"errors"
	"testing"
)

func TestResolveLoadOrderLexicalTieBreak(t *testing.T) {
	order, err := ResolveLoadOrder(map[string]*Descriptor{
		"beta":  {Name: "beta"},
		"alpha": {Name: "alpha"},
		"gamma": {Name: "gamma"},
	}, []string{"gamma", "beta", "alpha"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestResolveLoadOrderAfterConstraint(t *testing.T) {
	order, err := ResolveLoadOrder(map[string]*Descriptor{
		"analytics": {Name: "analytics", After: []string{"seo"}},
		"seo":       {Name: "seo"},
	}, []string{"analytics", "seo"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if order[0] != "seo" || order[1] != "analytics" {
		t.Errorf("order = %v", order)
	}
}

func TestResolveLoadOrderIgnoresDisabledAfter(t *testing.T) {
	order, err := ResolveLoadOrder(map[string]*Descriptor{
		"a": {Name: "a", After: []string{"not-enabled"}},
	}, []string{"a"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(order) != 1 || order[0] != "a" {
		t.Errorf("order = %v", order)
	}
}

func TestResolveLoadOrderConflictFails(t *testing.T) {
	_, err := ResolveLoadOrder(map[string]*Descriptor{
		"a": {Name: "a", Conflicts: []string{"b"}},
		"b": {Name: "b"},
	}, []string{"a", "b"})

	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if cerr.Plugin != "a" || cerr.Conflict != "b" {
		t.Errorf("conflict = %+v", cerr)
	}
}

func TestResolveLoadOrderConflictWithDisabledIsFine(t *testing.T) {
	order, err := ResolveLoadOrder(map[string]*Descriptor{
		"a": {Name: "a", Conflicts: []string{"b"}},
	}, []string{"a"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(order) != 1 {
		t.Errorf("order = %v", order)
	}
}

func TestResolveLoadOrderCycleFails(t *testing.T) {
	_, err := ResolveLoadOrder(map[string]*Descriptor{
		"a": {Name: "a", After: []string{"b"}},
		"b": {Name: "b", After: []string{"a"}},
		"c": {Name: "c"},
	}, []string{"a", "b", "c"})

	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if len(cerr.Remaining) != 2 {
		t.Errorf("remaining = %v", cerr.Remaining)
	}
}

func TestResolveLoadOrderDeterministic(t *testing.T) {
	m := map[string]*Descriptor{
		"w": {Name: "w", After: []string{"x"}},
		"x": {Name: "x"},
		"y": {Name: "y", After: []string{"x"}},
		"z": {Name: "z"},
	}
	enabled := []string{"z", "y", "x", "w"}

	first, err := ResolveLoadOrder(m, enabled)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := ResolveLoadOrder(m, enabled)
		if err != nil {
			t.Fatal(err)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d diverged: %v vs %v", i, first, again)
			}
		}
	}
	// x has no constraints and sorts before z; w and y wait for x.
	want := []string{"x", "w", "y", "z"}
	for i := range want {
		if first[i] != want[i] {
			t.Fatalf("order = %v, want %v", first, want)
		}
	}
}

func TestResolveLoadOrderEmpty(t *testing.T) {
	order, err := ResolveLoadOrder(nil, nil)
	if err != nil || order != nil {
		t.Errorf("empty = %v, %v", order, err)
	}
}
