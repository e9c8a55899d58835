// Package stategraph executes typed state machines built as directed graphs.
//
// A graph is assembled with the Graph builder, validated and frozen with
// Compile, and executed with Run. State of type S flows through the graph:
// each node receives the current state and returns the next one, and edges
// (static or router-driven) pick the following node until END is reached.
//
//	g := stategraph.NewGraph[Order]().
//	    AddNode("validate", validate).
//	    AddNode("charge", charge).
//	    AddEdge("validate", "charge").
//	    AddEdge("charge", stategraph.END).
//	    SetEntry("validate")
//
//	compiled, err := g.Compile()
//	if err != nil {
//	    return err
//	}
//	final, err := compiled.Run(stategraph.NewContext(ctx), order)
//
// Execution is strictly sequential: one node at a time, in graph order.
// Runs are instrumented with structured logging and OpenTelemetry metrics,
// and can optionally snapshot state after every node via a checkpoint store.
package stategraph
