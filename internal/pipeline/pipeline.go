// Package pipeline assembles the intake stages into a compiled run graph
// and exposes the one-call entry point the CLI and embedding callers use.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinigraph/clinigraph/internal/agents"
	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
	"github.com/clinigraph/clinigraph/pkg/stategraph/checkpoint"
)

// Pipeline is a compiled intake graph. Safe for concurrent Process calls;
// each run gets its own state and context.
type Pipeline struct {
	graph  *stategraph.CompiledGraph[schema.State]
	logger *slog.Logger

	checkpoints checkpoint.Store
	tracing     bool
	metrics     bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger runs inherit. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCheckpoints persists per-stage state snapshots to store.
func WithCheckpoints(store checkpoint.Store) Option {
	return func(p *Pipeline) { p.checkpoints = store }
}

// WithTracing toggles per-run OpenTelemetry spans.
func WithTracing(enabled bool) Option {
	return func(p *Pipeline) { p.tracing = enabled }
}

// WithMetrics toggles per-run OpenTelemetry metrics.
func WithMetrics(enabled bool) Option {
	return func(p *Pipeline) { p.metrics = enabled }
}

// New compiles the intake graph over the given stage implementations.
func New(stages *agents.Stages, opts ...Option) (*Pipeline, error) {
	graph, err := stategraph.NewGraph[schema.State]().
		AddNode(agents.StageIntake, stages.Intake).
		AddNode(agents.StageMemory, stages.Memory).
		AddNode(agents.StageSummary, stages.Summary).
		AddNode(agents.StageKnowledge, stages.Knowledge).
		AddNode(agents.StageReport, stages.Report).
		AddNode(agents.StageStorage, stages.Storage).
		SetEntry(agents.StageIntake).
		AddEdge(agents.StageIntake, agents.StageMemory).
		AddEdge(agents.StageMemory, agents.StageSummary).
		AddEdge(agents.StageSummary, agents.StageKnowledge).
		AddConditionalEdge(agents.StageKnowledge, agents.RouteAfterKnowledge).
		AddEdge(agents.StageReport, agents.StageStorage).
		AddEdge(agents.StageStorage, stategraph.END).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("compiling intake graph: %w", err)
	}

	p := &Pipeline{graph: graph, logger: slog.Default(), metrics: true}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Result is the outcome of one intake run. On failure, Report may be nil
// and FailedStage names the stage that raised Err; degradable faults from
// successful runs are listed in Faults.
type Result struct {
	RunID    string              `json:"run_id"`
	Success  bool                `json:"success"`
	Priority schema.Priority     `json:"priority,omitempty"`
	Report   *schema.SOAPReport  `json:"report,omitempty"`
	Path     []string            `json:"path"`
	Faults   []schema.StageFault `json:"faults,omitempty"`

	NeedsEnhancedAnalysis bool  `json:"needs_enhanced_analysis"`
	ProcessingTimeMS      int64 `json:"processing_time_ms"`

	// FailedStage and Error carry the failure for serialized consumers;
	// Err keeps the Go error value for errors.Is/As.
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
	Err         error  `json:"-"`
}

// Process runs the full intake pipeline for one patient submission.
// The returned Result is never nil; check Result.Err for failures.
func (p *Pipeline) Process(ctx context.Context, patientID, rawText string) *Result {
	runID := uuid.NewString()
	runCtx := stategraph.NewContext(ctx,
		stategraph.WithContextLogger(p.logger.With("patient_id", patientID)),
		stategraph.WithContextRunID(runID),
	)

	start := time.Now()
	state := schema.State{
		Intake:    schema.Intake{PatientID: patientID, RawText: rawText},
		StartedAt: start,
	}

	opts := []stategraph.RunOption{
		stategraph.WithMetrics(p.metrics),
		stategraph.WithTracing(p.tracing),
	}
	if p.checkpoints != nil {
		opts = append(opts, stategraph.WithCheckpointStore(p.checkpoints))
	}

	final, err := p.graph.Run(runCtx, state, opts...)
	elapsed := time.Since(start)
	final.ElapsedMS = elapsed.Milliseconds()

	res := &Result{
		RunID:                 runID,
		Success:               err == nil,
		Priority:              final.Priority,
		Report:                final.Report,
		Path:                  final.Path,
		Faults:                final.Faults,
		NeedsEnhancedAnalysis: final.NeedsEnhancedAnalysis,
		ProcessingTimeMS:      final.ElapsedMS,
	}
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		res.FailedStage = failedStage(err)
	}
	return res
}

// Stages returns the stage IDs in graph order for display purposes.
func (p *Pipeline) Stages() []string {
	return p.graph.NodeIDs()
}

// failedStage extracts the stage name carried by an executor error.
func failedStage(err error) string {
	var stageErr *stategraph.StageError
	if errors.As(err, &stageErr) {
		return stageErr.NodeID
	}
	var panicErr *stategraph.PanicError
	if errors.As(err, &panicErr) {
		return panicErr.NodeID
	}
	var routerErr *stategraph.RouterError
	if errors.As(err, &routerErr) {
		return routerErr.FromNode
	}
	var cancelErr *stategraph.CancelledError
	if errors.As(err, &cancelErr) {
		return cancelErr.NodeID
	}
	var ckptErr *stategraph.CheckpointError
	if errors.As(err, &ckptErr) {
		return ckptErr.NodeID
	}
	return ""
}
