package stategraph

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/clinigraph/clinigraph/pkg/stategraph/checkpoint"
	"github.com/clinigraph/clinigraph/pkg/stategraph/observability"
)

// Run executes the graph from its entry point with the given initial state.
//
// On success the returned state is the output of the last stage before END.
// On failure the state at the point of failure is returned alongside the
// error, so callers can inspect how far the run got.
//
// The loop per stage: check cancellation, execute the node with panic
// recovery, record logs/metrics/spans, optionally checkpoint, then follow
// the node's router or static edge to the next stage.
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (final S, runErr error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = ctx.Logger()
	}

	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}
	if cfg.checkpointStore != nil {
		if runID == "" {
			return state, ErrRunIDRequired
		}
		cfg.runID = runID
	}

	start := time.Now()
	observability.LogRunStart(cfg.logger, runID)

	var spanCtx context.Context = ctx
	if cfg.tracing {
		var span trace.Span
		spanCtx, span = cfg.spans.StartRunSpan(ctx, "stategraph", runID)
		defer func() {
			cfg.spans.EndSpanWithError(span, runErr)
		}()
	}

	var steps int
	final, steps, runErr = cg.runLoop(spanCtx, ctx, state, &cfg)

	elapsed := time.Since(start)
	cfg.metrics.RecordGraphRun(ctx, runErr == nil, elapsed)

	if runErr != nil {
		observability.LogRunError(cfg.logger, runID, runErr, elapsed, failedNode(runErr))
	} else {
		observability.LogRunComplete(cfg.logger, runID, elapsed, steps)
	}
	return final, runErr
}

// failedNode extracts the stage a run error is attributable to, for logging.
func failedNode(err error) string {
	switch e := err.(type) {
	case *StageError:
		return e.NodeID
	case *PanicError:
		return e.NodeID
	case *CancelledError:
		return e.NodeID
	case *RouterError:
		return e.FromNode
	case *MaxStepsError:
		return e.LastNodeID
	case *CheckpointError:
		return e.NodeID
	}
	return ""
}

// runLoop is the sequential execution core. spanCtx carries trace context;
// ctx is the graph Context stages see. Returns final state, completed stage
// count, and any error.
func (cg *CompiledGraph[S]) runLoop(spanCtx context.Context, ctx Context, state S, cfg *runConfig) (S, int, error) {
	current := cg.entry
	prev := ""
	steps := 0

	for current != END {
		if steps >= cfg.maxSteps {
			return state, steps, &MaxStepsError{Max: cfg.maxSteps, LastNodeID: current, State: state}
		}

		select {
		case <-ctx.Done():
			return state, steps, &CancelledError{NodeID: current, State: state, Cause: context.Cause(ctx)}
		default:
		}

		observability.LogNodeStart(cfg.logger, current)

		nodeSpanCtx := spanCtx
		var nodeSpan trace.Span
		if cfg.tracing {
			nodeSpanCtx, nodeSpan = cfg.spans.StartNodeSpan(spanCtx, current)
		}

		nodeStart := time.Now()
		var stepErr error
		state, stepErr = cg.step(ctx, current, state)
		nodeElapsed := time.Since(nodeStart)

		cfg.metrics.RecordNodeExecution(nodeSpanCtx, current, nodeElapsed, stepErr)
		if cfg.tracing {
			cfg.spans.EndSpanWithError(nodeSpan, stepErr)
		}

		if stepErr != nil {
			observability.LogNodeError(cfg.logger, current, stepErr)
			return state, steps, stepErr
		}
		observability.LogNodeComplete(cfg.logger, current, nodeElapsed)
		steps++

		next, err := cg.route(ctx, state, current)
		if err != nil {
			return state, steps, err
		}

		if cfg.checkpointStore != nil {
			if err := cg.snapshot(ctx, cfg, current, prev, state, next); err != nil {
				return state, steps, err
			}
		}

		prev = current
		current = next
	}

	return state, steps, nil
}

// step runs one node with panic recovery.
func (cg *CompiledGraph[S]) step(ctx Context, nodeID string, state S) (result S, err error) {
	fn, ok := cg.nodes[nodeID]
	if !ok {
		// Unreachable after a successful Compile.
		return state, &StageError{NodeID: nodeID, Err: fmt.Errorf("node not registered: %s", nodeID)}
	}

	nodeCtx := ctx
	if rc, ok := ctx.(*runContext); ok {
		nodeCtx = rc.atNode(nodeID)
	}

	defer func() {
		if r := recover(); r != nil {
			result = state
			err = &PanicError{NodeID: nodeID, Value: r, Stack: string(debug.Stack())}
		}
	}()

	result, err = fn(nodeCtx, state)
	if err != nil {
		return result, &StageError{NodeID: nodeID, Err: err}
	}
	return result, nil
}

// route resolves the successor of current: router first, static edge second.
func (cg *CompiledGraph[S]) route(ctx Context, state S, current string) (string, error) {
	if router, ok := cg.routers[current]; ok {
		routerCtx := ctx
		if rc, ok := ctx.(*runContext); ok {
			routerCtx = rc.atNode(current)
		}

		next := router(routerCtx, state)
		if next == "" {
			return "", &RouterError{FromNode: current, Returned: next, Err: ErrEmptyRoute}
		}
		if next != END {
			if _, ok := cg.nodes[next]; !ok {
				return "", &RouterError{FromNode: current, Returned: next, Err: ErrUnknownRoute}
			}
		}
		return next, nil
	}

	next, ok := cg.edges[current]
	if !ok {
		// Unreachable after a successful Compile.
		return "", &StageError{NodeID: current, Err: fmt.Errorf("no outgoing edge from %s", current)}
	}
	return next, nil
}

// snapshot persists state after a completed stage. Failures are logged and
// skipped unless the run was configured with WithCheckpointFatal.
func (cg *CompiledGraph[S]) snapshot(ctx Context, cfg *runConfig, nodeID, prevNode string, state S, nextNode string) error {
	fail := func(op string, err error) error {
		if cfg.checkpointFatal {
			return &CheckpointError{NodeID: nodeID, Op: op, Err: err}
		}
		observability.LogCheckpointError(cfg.logger, nodeID, op, err)
		return nil
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fail("serialize", err)
	}

	cfg.sequence++
	cp := checkpoint.New(cfg.runID, nodeID, cfg.sequence, stateBytes, nextNode).WithPrevNode(prevNode)

	data, err := cp.Marshal()
	if err != nil {
		return fail("marshal", err)
	}

	if err := cfg.checkpointStore.Save(cfg.runID, nodeID, data); err != nil {
		return fail("save", err)
	}

	observability.LogCheckpoint(cfg.logger, nodeID, len(data))
	cfg.metrics.RecordCheckpoint(ctx, nodeID, int64(len(data)))
	return nil
}
