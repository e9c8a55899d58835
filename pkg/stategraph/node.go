package stategraph

// END is the reserved terminal identifier. Routing to END stops the run.
const END = "__end__"

// NodeFunc is a single processing stage. It receives the execution context
// and the current state and returns the next state.
//
// State is passed and returned by value; a node must not assume callers see
// mutations made through pointers it stashed away.
type NodeFunc[S any] func(ctx Context, state S) (S, error)

// RouterFunc picks the next node after a conditional edge, based on state.
// It must return an existing node ID or END; anything else fails the run
// with a RouterError.
type RouterFunc[S any] func(ctx Context, state S) string
