package stategraph

import (
	"fmt"
	"strings"
)

// Graph is the mutable builder for a state graph. Assemble it from a single
// goroutine, then Compile into an immutable CompiledGraph that is safe to
// share and run concurrently.
//
// Builder misuse (empty or duplicate IDs, nil functions) panics immediately:
// these are programming errors, not runtime conditions, and surfacing them
// at build time keeps Compile focused on structural validation.
type Graph[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]RouterFunc[S]
	entry   string
}

// NewGraph creates an empty builder for state type S.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:   make(map[string]NodeFunc[S]),
		edges:   make(map[string]string),
		routers: make(map[string]RouterFunc[S]),
	}
}

// AddNode registers a named stage. Panics if id is empty, reserved,
// contains whitespace, already registered, or fn is nil.
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	if id == "" {
		panic("stategraph: node ID cannot be empty")
	}
	if lower := strings.ToLower(id); lower == "end" || lower == END {
		panic("stategraph: node ID collides with reserved END")
	}
	if strings.ContainsAny(id, " \t\n\r") {
		panic("stategraph: node ID cannot contain whitespace")
	}
	if fn == nil {
		panic("stategraph: node function cannot be nil")
	}
	if _, dup := g.nodes[id]; dup {
		panic(fmt.Sprintf("stategraph: duplicate node ID %q", id))
	}
	g.nodes[id] = fn
	return g
}

// AddEdge declares that node from is always followed by to (a node ID or
// END). Each node has at most one static edge; a second call for the same
// source panics. Endpoint existence is checked at Compile time so edges may
// be declared before their nodes.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	if _, dup := g.edges[from]; dup {
		panic(fmt.Sprintf("stategraph: node %q already has an outgoing edge", from))
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdge attaches a router that picks the successor of from at
// runtime. A router takes precedence over a static edge on the same node.
// Panics if router is nil.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S]) *Graph[S] {
	if router == nil {
		panic("stategraph: router function cannot be nil")
	}
	g.routers[from] = router
	return g
}

// SetEntry designates the node the run starts from. Validated at Compile.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.entry = id
	return g
}
