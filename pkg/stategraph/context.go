package stategraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context is the execution context handed to node and router functions.
// It extends context.Context with the run's logger and identity. The
// executor derives a per-node variant with NodeID set and the logger
// enriched, so log lines from inside a stage carry run_id and node_id
// without the stage doing anything.
type Context interface {
	context.Context

	// Logger returns the run logger, enriched with run and node fields.
	// Never nil; defaults to slog.Default.
	Logger() *slog.Logger

	// RunID returns the unique identifier of this run.
	// Auto-generated when not supplied.
	RunID() string

	// NodeID returns the stage currently executing, or "" outside a stage.
	NodeID() string
}

type runContext struct {
	context.Context

	logger *slog.Logger
	runID  string
	nodeID string
}

func (c *runContext) Logger() *slog.Logger { return c.logger }
func (c *runContext) RunID() string        { return c.runID }
func (c *runContext) NodeID() string       { return c.nodeID }

// ContextOption configures a Context built by NewContext.
type ContextOption func(*runContext)

// WithContextLogger sets the run logger.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *runContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier instead of auto-generating one.
func WithContextRunID(id string) ContextOption {
	return func(c *runContext) {
		if id != "" {
			c.runID = id
		}
	}
}

// NewContext wraps a standard context for use with Run.
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	rc := &runContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// atNode derives the per-stage context the executor passes into a node.
func (c *runContext) atNode(nodeID string) *runContext {
	return &runContext{
		Context: c.Context,
		logger:  c.logger.With("run_id", c.runID, "node_id", nodeID),
		runID:   c.runID,
		nodeID:  nodeID,
	}
}
