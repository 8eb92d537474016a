package plugin

import (
	"fmt"
	"sort"
	"strings"
)

// ConflictError reports two enabled extensions that declare each other (or
// one declares the other) incompatible. Raised before any extension code runs.
type ConflictError struct {
	Plugin   string
	Conflict string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("plugin %s conflicts with %s; they cannot both be enabled", e.Plugin, e.Conflict)
}

// CycleError reports a dependency cycle among enabled extensions. Raised
// before any extension code runs.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return "plugin dependency cycle involving: " + strings.Join(e.Remaining, ", ")
}

// ResolveLoadOrder produces the deterministic total order in which the
// enabled extensions initialize.
//
// After-sets are first filtered to names that are themselves enabled. Any
// conflict pair with both members enabled fails the whole load. Ordering is
// a Kahn-style topological sort over the after-constraints, breaking ties at
// each step by ascending lexical name, so the result is identical across
// runs with the same input set.
func ResolveLoadOrder(descriptors map[string]*Descriptor, enabled []string) ([]string, error) {
	if len(enabled) == 0 {
		return nil, nil
	}

	enabledSet := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		enabledSet[name] = true
	}

	// Conflict detection comes first: structural inconsistencies are fatal
	// before any ordering work.
	for _, name := range enabled {
		d, ok := descriptors[name]
		if !ok {
			return nil, fmt.Errorf("no descriptor for enabled plugin %s", name)
		}
		for _, other := range d.Conflicts {
			if enabledSet[other] {
				return nil, &ConflictError{Plugin: name, Conflict: other}
			}
		}
	}

	inDegree := make(map[string]int, len(enabled))
	successors := make(map[string][]string, len(enabled))
	for _, name := range enabled {
		inDegree[name] = 0
	}
	for _, name := range enabled {
		for _, dep := range descriptors[name].After {
			if !enabledSet[dep] {
				continue // constraints on disabled plugins are ignored
			}
			successors[dep] = append(successors[dep], name)
			inDegree[name]++
		}
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(enabled))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, succ := range successors[next] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(order) != len(enabled) {
		placed := make(map[string]bool, len(order))
		for _, name := range order {
			placed[name] = true
		}
		var remaining []string
		for _, name := range enabled {
			if !placed[name] {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}

	return order, nil
}
