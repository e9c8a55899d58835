package stategraph

// CompiledGraph is an immutable, validated graph produced by Compile.
// It is safe for concurrent Run calls; runs share nothing but the graph
// structure itself.
type CompiledGraph[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]RouterFunc[S]
	entry   string
}

// EntryPoint returns the node the run starts from.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.entry
}

// NodeIDs returns all node identifiers, in no particular order.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	ids := make([]string, 0, len(cg.nodes))
	for id := range cg.nodes {
		ids = append(ids, id)
	}
	return ids
}

// HasNode reports whether id is a node in the graph.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, ok := cg.nodes[id]
	return ok
}

// Successor returns the static edge target of id, or "" if id has none
// (a router-driven node, END, or unknown).
func (cg *CompiledGraph[S]) Successor(id string) string {
	return cg.edges[id]
}

// IsConditional reports whether id routes via a RouterFunc.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	_, ok := cg.routers[id]
	return ok
}
