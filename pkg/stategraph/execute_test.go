package stategraph

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinigraph/clinigraph/pkg/stategraph/checkpoint"
)

func mustCompile[S any](t *testing.T, g *Graph[S]) *CompiledGraph[S] {
	t.Helper()
	compiled, err := g.Compile()
	require.NoError(t, err)
	return compiled
}

// TestRun_Linear executes stages in declared order.
func TestRun_Linear(t *testing.T) {
	compiled := mustCompile(t, NewGraph[TraceState]().
		AddNode("first", visit("first")).
		AddNode("second", visit("second")).
		AddNode("third", visit("third")).
		AddEdge("first", "second").
		AddEdge("second", "third").
		AddEdge("third", END).
		SetEntry("first"))

	final, err := compiled.Run(NewContext(context.Background()), TraceState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, final.Visited)
}

// TestRun_NilContext rejects a nil context up front.
func TestRun_NilContext(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", increment).
		AddEdge("a", END).
		SetEntry("a"))

	_, err := compiled.Run(nil, Counter{})
	require.ErrorIs(t, err, ErrNilContext)
}

// TestRun_ConditionalRouting follows the router's choice.
func TestRun_ConditionalRouting(t *testing.T) {
	compiled := mustCompile(t, NewGraph[TraceState]().
		AddNode("start", visit("start")).
		AddNode("left", visit("left")).
		AddNode("right", visit("right")).
		AddConditionalEdge("start", func(ctx Context, s TraceState) string {
			if s.Done {
				return "left"
			}
			return "right"
		}).
		AddEdge("left", END).
		AddEdge("right", END).
		SetEntry("start"))

	final, err := compiled.Run(NewContext(context.Background()), TraceState{Done: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "left"}, final.Visited)

	final, err = compiled.Run(NewContext(context.Background()), TraceState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "right"}, final.Visited)
}

// TestRun_StageError wraps a node failure and returns the state so far.
func TestRun_StageError(t *testing.T) {
	boom := errors.New("boom")
	compiled := mustCompile(t, NewGraph[TraceState]().
		AddNode("ok", visit("ok")).
		AddNode("bad", failWith(boom)).
		AddEdge("ok", "bad").
		AddEdge("bad", END).
		SetEntry("ok"))

	final, err := compiled.Run(NewContext(context.Background()), TraceState{})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "bad", stageErr.NodeID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"ok"}, final.Visited)
}

// TestRun_PanicRecovered converts a node panic into a PanicError.
func TestRun_PanicRecovered(t *testing.T) {
	compiled := mustCompile(t, NewGraph[TraceState]().
		AddNode("kaboom", panicWith("unexpected")).
		AddEdge("kaboom", END).
		SetEntry("kaboom"))

	_, err := compiled.Run(NewContext(context.Background()), TraceState{})
	require.Error(t, err)

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.NodeID)
	assert.Equal(t, "unexpected", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

// TestRun_RouterErrors rejects empty and unknown routing targets.
func TestRun_RouterErrors(t *testing.T) {
	build := func(target string) *CompiledGraph[Counter] {
		return mustCompile(t, NewGraph[Counter]().
			AddNode("a", increment).
			AddConditionalEdge("a", func(ctx Context, s Counter) string { return target }).
			SetEntry("a"))
	}

	_, err := build("").Run(NewContext(context.Background()), Counter{})
	require.ErrorIs(t, err, ErrEmptyRoute)

	_, err = build("nowhere").Run(NewContext(context.Background()), Counter{})
	require.ErrorIs(t, err, ErrUnknownRoute)

	var routerErr *RouterError
	require.ErrorAs(t, err, &routerErr)
	assert.Equal(t, "a", routerErr.FromNode)
	assert.Equal(t, "nowhere", routerErr.Returned)
}

// TestRun_MaxSteps aborts a cycle once the step limit is hit.
func TestRun_MaxSteps(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("loop", increment).
		AddConditionalEdge("loop", func(ctx Context, s Counter) string {
			return "loop" // never terminates on its own
		}).
		SetEntry("loop"))

	final, err := compiled.Run(NewContext(context.Background()), Counter{}, WithMaxSteps(5))
	require.ErrorIs(t, err, ErrMaxSteps)

	var maxErr *MaxStepsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 5, maxErr.Max)
	assert.Equal(t, "loop", maxErr.LastNodeID)
	assert.Equal(t, 5, final.Value)
}

// TestRun_Cancellation stops before the next stage when the context ends.
func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	compiled := mustCompile(t, NewGraph[TraceState]().
		AddNode("first", func(c Context, s TraceState) (TraceState, error) {
			cancel() // takes effect before the next stage
			s.Visited = append(s.Visited, "first")
			return s, nil
		}).
		AddNode("second", visit("second")).
		AddEdge("first", "second").
		AddEdge("second", END).
		SetEntry("first"))

	final, err := compiled.Run(NewContext(ctx), TraceState{})
	require.Error(t, err)

	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, "second", cancelled.NodeID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, final.Visited)
}

// TestRun_NodeContextCarriesIdentity exposes run and node IDs to stages.
func TestRun_NodeContextCarriesIdentity(t *testing.T) {
	var gotRunID, gotNodeID string
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("probe", func(ctx Context, s Counter) (Counter, error) {
			gotRunID = ctx.RunID()
			gotNodeID = ctx.NodeID()
			require.NotNil(t, ctx.Logger())
			return s, nil
		}).
		AddEdge("probe", END).
		SetEntry("probe"))

	ctx := NewContext(context.Background(), WithContextRunID("run-42"))
	_, err := compiled.Run(ctx, Counter{})
	require.NoError(t, err)
	assert.Equal(t, "run-42", gotRunID)
	assert.Equal(t, "probe", gotNodeID)
}

// TestRun_ConcurrentRunsShareNothing runs the same compiled graph from
// multiple goroutines with independent states.
func TestRun_ConcurrentRunsShareNothing(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", increment).
		AddNode("b", increment).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a"))

	results := make(chan int, 20)
	for i := 0; i < 20; i++ {
		go func(start int) {
			final, err := compiled.Run(NewContext(context.Background()), Counter{Value: start})
			if err != nil {
				results <- -1
				return
			}
			results <- final.Value
		}(i)
	}

	for i := 0; i < 20; i++ {
		v := <-results
		assert.GreaterOrEqual(t, v, 2)
	}
}

// TestRun_Checkpointing snapshots state after every stage.
func TestRun_Checkpointing(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", increment).
		AddNode("b", increment).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a"))

	final, err := compiled.Run(NewContext(context.Background()), Counter{},
		WithCheckpointStore(store), WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, final.Value)

	infos, err := store.List("run-1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].NodeID)
	assert.Equal(t, "b", infos[1].NodeID)

	data, err := store.Load("run-1", "b")
	require.NoError(t, err)
	cp, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "run-1", cp.RunID)
	assert.Equal(t, END, cp.NextNode)
	assert.Equal(t, "a", cp.PrevNodeID)
	assert.JSONEq(t, `{"Value":2}`, string(cp.State))
}

// TestRun_CheckpointFailureNonFatal logs and continues by default.
func TestRun_CheckpointFailureNonFatal(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Close()) // every Save now fails

	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", increment).
		AddEdge("a", END).
		SetEntry("a"))

	final, err := compiled.Run(NewContext(context.Background()), Counter{},
		WithCheckpointStore(store), WithRunID("run-1"),
		WithRunLogger(slog.Default()))
	require.NoError(t, err)
	assert.Equal(t, 1, final.Value)
}

// TestRun_CheckpointFailureFatal aborts when configured to.
func TestRun_CheckpointFailureFatal(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Close())

	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", increment).
		AddEdge("a", END).
		SetEntry("a"))

	_, err := compiled.Run(NewContext(context.Background()), Counter{},
		WithCheckpointStore(store), WithRunID("run-1"), WithCheckpointFatal())
	require.Error(t, err)

	var cpErr *CheckpointError
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, "save", cpErr.Op)
	assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
}
