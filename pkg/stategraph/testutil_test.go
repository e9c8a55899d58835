package stategraph

// Shared state types and node helpers for the package tests.

// Counter is the minimal state for loop and chaining tests.
type Counter struct {
	Value int
}

// TraceState records which stages ran, in order.
type TraceState struct {
	Visited []string
	Done    bool
}

// increment bumps the counter by one.
func increment(ctx Context, s Counter) (Counter, error) {
	s.Value++
	return s, nil
}

// visit returns a node that appends name to the state's trail.
func visit(name string) NodeFunc[TraceState] {
	return func(ctx Context, s TraceState) (TraceState, error) {
		s.Visited = append(s.Visited, name)
		return s, nil
	}
}

// failWith returns a node that fails with err.
func failWith(err error) NodeFunc[TraceState] {
	return func(ctx Context, s TraceState) (TraceState, error) {
		return s, err
	}
}

// panicWith returns a node that panics with value.
func panicWith(value any) NodeFunc[TraceState] {
	return func(ctx Context, s TraceState) (TraceState, error) {
		panic(value)
	}
}
