package stategraph

import (
	"errors"
	"fmt"
)

// Compile-time sentinel errors.
var (
	// ErrNoEntryPoint indicates SetEntry was never called.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point names a missing node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge or router references a missing node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPathToEnd indicates the entry point cannot reach END.
	ErrNoPathToEnd = errors.New("no path to END from entry")
)

// Run-time sentinel errors.
var (
	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrMaxSteps indicates the run exceeded its step limit.
	ErrMaxSteps = errors.New("exceeded maximum steps")

	// ErrEmptyRoute indicates a router returned an empty string.
	ErrEmptyRoute = errors.New("router returned empty string")

	// ErrUnknownRoute indicates a router returned a node ID not in the graph.
	ErrUnknownRoute = errors.New("router returned unknown node")

	// ErrRunIDRequired indicates checkpointing was enabled without a run ID.
	ErrRunIDRequired = errors.New("run ID required for checkpointing")
)

// StageError wraps a failure from a node function with its location.
type StageError struct {
	// NodeID is the stage that failed.
	NodeID string
	// Err is the error the stage returned.
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.NodeID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PanicError converts a panic inside a node function into an error,
// preserving the stack for diagnosis. The run aborts but the process
// survives.
type PanicError struct {
	NodeID string
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %s panicked: %v", e.NodeID, e.Value)
}

// RouterError reports an invalid routing decision.
type RouterError struct {
	// FromNode is the node whose router misbehaved.
	FromNode string
	// Returned is what the router produced.
	Returned string
	// Err is ErrEmptyRoute or ErrUnknownRoute.
	Err error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

func (e *RouterError) Unwrap() error { return e.Err }

// CancelledError records where a run stopped because its context ended.
// State holds the last state value; callers may type-assert it back.
type CancelledError struct {
	NodeID string
	State  any
	Cause  error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled before stage %s: %v", e.NodeID, e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// MaxStepsError reports a run that hit its step limit, which usually means
// a routing cycle. State holds the state at termination.
type MaxStepsError struct {
	Max        int
	LastNodeID string
	State      any
}

func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("exceeded maximum steps (%d) at stage %s", e.Max, e.LastNodeID)
}

func (e *MaxStepsError) Unwrap() error { return ErrMaxSteps }

// CheckpointError wraps a fatal checkpoint failure during a run. Checkpoint
// failures are only fatal when WithCheckpointFatal is set; otherwise they
// are logged and the run continues.
type CheckpointError struct {
	NodeID string
	// Op is "serialize", "marshal" or "save".
	Op  string
	Err error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at stage %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }
