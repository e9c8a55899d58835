package stategraph

import (
	"errors"
	"fmt"
)

// Compile validates the graph structure and freezes it into an executable
// CompiledGraph. All validation failures are reported together via
// errors.Join.
//
// Checks:
//  1. an entry point is set and names an existing node
//  2. every edge endpoint names an existing node (or END as target)
//  3. every router is attached to an existing node
//  4. the entry point can reach END
//
// Routers are assumed able to return END, so a node with a router always
// counts as END-reachable. Nodes unreachable from the entry are tolerated;
// Run never visits them.
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	var errs []error

	if g.entry == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entry))
	}

	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge source %q", ErrNodeNotFound, from))
		}
		if to != END {
			if _, ok := g.nodes[to]; !ok {
				errs = append(errs, fmt.Errorf("%w: edge target %q", ErrNodeNotFound, to))
			}
		}
	}

	for from := range g.routers {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: router source %q", ErrNodeNotFound, from))
		}
	}

	if _, ok := g.nodes[g.entry]; ok && !g.reachesEnd() {
		errs = append(errs, ErrNoPathToEnd)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &CompiledGraph[S]{
		nodes:   cloneMap(g.nodes),
		edges:   cloneMap(g.edges),
		routers: cloneMap(g.routers),
		entry:   g.entry,
	}, nil
}

// reachesEnd reports whether the entry point has a path to END, propagating
// reachability backwards from END until a fixed point.
func (g *Graph[S]) reachesEnd() bool {
	done := map[string]bool{END: true}
	for changed := true; changed; {
		changed = false
		for from, to := range g.edges {
			if !done[from] && done[to] {
				done[from] = true
				changed = true
			}
		}
		for from := range g.routers {
			if !done[from] {
				done[from] = true
				changed = true
			}
		}
	}
	return done[g.entry]
}

func cloneMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
