// Package deps provides a generic dependency-ordering utility.
package deps

import (
	"fmt"
	"sort"

	"github.com/duplexio/duplex/pkg/types"
)

// Sort returns a topologically ordered list of the items in graph, where each
// map entry lists the items it depends on. Dependencies sort before their
// dependents; items of equal rank are ordered alphabetically so the result is
// deterministic. Self-references are ignored and items that only appear as
// dependencies are treated as dependency-free. A cyclic dependency yields a
// CYCLIC_DEPENDENCY error.
func Sort(graph map[string][]string) ([]string, error) {
	// Working copy with self-references dropped
	pending := make(map[string]map[string]bool, len(graph))
	for item, requires := range graph {
		deps := make(map[string]bool, len(requires))
		for _, dep := range requires {
			if dep != item {
				deps[dep] = true
			}
		}
		pending[item] = deps
	}

	// Add foreign items as dependency-free
	for _, deps := range graph {
		for _, dep := range deps {
			if _, known := pending[dep]; !known {
				pending[dep] = map[string]bool{}
			}
		}
	}

	known := make(map[string]bool, len(graph))
	for item := range graph {
		known[item] = true
	}

	var ordered []string
	for len(pending) > 0 {
		var ready []string
		for item, deps := range pending {
			if len(deps) == 0 {
				ready = append(ready, item)
			}
		}
		if len(ready) == 0 {
			var remaining []string
			for item := range pending {
				remaining = append(remaining, item)
			}
			sort.Strings(remaining)
			return nil, types.NewError(types.ErrCodeCyclicDependency,
				fmt.Sprintf("a cyclic dependency exists amongst %v", remaining))
		}

		sort.Strings(ready)
		for _, item := range ready {
			// Foreign items are needed to resolve the order but are not
			// part of the caller's graph
			if known[item] {
				ordered = append(ordered, item)
			}
			delete(pending, item)
		}
		for _, deps := range pending {
			for _, item := range ready {
				delete(deps, item)
			}
		}
	}

	return ordered, nil
}

// Reverse returns the order in which items should be torn down, i.e. the
// sorted order with dependents before their dependencies.
func Reverse(ordered []string) []string {
	reversed := make([]string, len(ordered))
	for i, item := range ordered {
		reversed[len(ordered)-1-i] = item
	}
	return reversed
}
