package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinigraph/clinigraph/internal/agents"
	"github.com/clinigraph/clinigraph/internal/gateway"
	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
	"github.com/clinigraph/clinigraph/pkg/stategraph/checkpoint"
)

// The fakes below script a full run: the generator replays one JSON reply
// per LLM stage in pipeline order (intake, summary, report).

type scriptedGenerator struct {
	replies []string
	failAt  int // 1-based call index to fail at; 0 disables
	err     error
	calls   int
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (g *scriptedGenerator) GenerateJSON(ctx context.Context, system, user string, out any) error {
	g.calls++
	if g.failAt != 0 && g.calls == g.failAt {
		return g.err
	}
	return json.Unmarshal([]byte(g.replies[g.calls-1]), out)
}

type staticEmbedder struct {
	err error
}

func (e *staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2}, nil
}

func (e *staticEmbedder) Dimension() int { return 2 }

type scriptedCaseStore struct {
	visits     []schema.Visit
	historyErr error
	cases      []schema.SimilarCase
	searchErr  error
	stored     []gateway.CaseRecord
	storeErr   error
}

func (s *scriptedCaseStore) FetchHistory(ctx context.Context, patientID string, limit int) ([]schema.Visit, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.visits, nil
}

func (s *scriptedCaseStore) SearchSimilar(ctx context.Context, vector []float32, limit int, threshold float64) ([]schema.SimilarCase, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.cases, nil
}

func (s *scriptedCaseStore) StoreCase(ctx context.Context, rec gateway.CaseRecord) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	s.stored = append(s.stored, rec)
	return nil
}

const (
	emergencyIntakeReply = `{
		"chief_complaint": "chest pain",
		"symptoms": ["chest pain", "shortness of breath"],
		"severity": "severe",
		"vitals": {"systolic_bp": 150, "heart_rate": 110}
	}`
	routineIntakeReply = `{
		"chief_complaint": "persistent dry cough",
		"symptoms": ["dry cough"],
		"severity": "mild",
		"medical_history": ["asthma"]
	}`
	summaryReply = `{
		"narrative": "Concise clinical picture.",
		"key_findings": ["finding"],
		"risk_factors": ["asthma"]
	}`
	reportReply = `{
		"subjective": "Reported symptoms.",
		"objective": "Recorded vitals.",
		"assessment": "Working assessment.",
		"plan": "Next steps.",
		"confidence_label": "high"
	}`
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, gen *scriptedGenerator, emb *staticEmbedder, store *scriptedCaseStore, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithMetrics(false)}, opts...)
	p, err := New(agents.NewStages(gen, emb, store), opts...)
	require.NoError(t, err)
	return p
}

var fullPath = []string{"intake", "memory", "summary", "knowledge", "report", "storage"}

func TestProcess_EmergencyCaseFullRun(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{emergencyIntakeReply, summaryReply, reportReply}}
	store := &scriptedCaseStore{cases: []schema.SimilarCase{{ID: "c1", Score: 0.9}}}
	p := newTestPipeline(t, gen, &staticEmbedder{}, store)

	res := p.Process(context.Background(), "patient-1", "Crushing chest pain and shortness of breath.")

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, schema.PriorityEmergency, res.Priority)
	assert.Equal(t, fullPath, res.Path)
	assert.Empty(t, res.Faults)
	assert.False(t, res.NeedsEnhancedAnalysis)
	require.NotNil(t, res.Report)
	assert.Equal(t, "high", res.Report.ConfidenceLabel)
	assert.NotEmpty(t, res.RunID)
	assert.GreaterOrEqual(t, res.ProcessingTimeMS, int64(0))

	require.Len(t, store.stored, 1)
	assert.Equal(t, res.RunID, store.stored[0].RunID)
}

func TestProcess_DegradedMemoryStillCompletes(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{routineIntakeReply, summaryReply, reportReply}}
	store := &scriptedCaseStore{
		historyErr: errors.New("store unreachable"),
		cases:      []schema.SimilarCase{{ID: "c1", Score: 0.8}},
	}
	p := newTestPipeline(t, gen, &staticEmbedder{}, store)

	res := p.Process(context.Background(), "patient-2", "Dry cough for two weeks.")

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, fullPath, res.Path)
	require.Len(t, res.Faults, 1)
	assert.Equal(t, agents.StageMemory, res.Faults[0].Stage)
	require.NotNil(t, res.Report)
}

func TestProcess_SummaryFailureFailsRun(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{routineIntakeReply, "", ""},
		failAt:  2,
		err:     errors.New("model offline"),
	}
	p := newTestPipeline(t, gen, &staticEmbedder{}, &scriptedCaseStore{})

	res := p.Process(context.Background(), "patient-3", "Dry cough for two weeks.")

	require.Error(t, res.Err)
	assert.False(t, res.Success)
	assert.Equal(t, agents.StageSummary, res.FailedStage)
	assert.Nil(t, res.Report)
	assert.Equal(t, []string{"intake", "memory", "summary"}, res.Path)

	var stageErr *stategraph.StageError
	require.ErrorAs(t, res.Err, &stageErr)
	assert.Equal(t, agents.StageSummary, stageErr.NodeID)
}

func TestResult_FailureSerializesStageAndReason(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{routineIntakeReply, "", ""},
		failAt:  2,
		err:     errors.New("model offline"),
	}
	p := newTestPipeline(t, gen, &staticEmbedder{}, &scriptedCaseStore{})

	res := p.Process(context.Background(), "patient-3", "Dry cough for two weeks.")
	require.Error(t, res.Err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, agents.StageSummary, decoded["failed_stage"])
	assert.Contains(t, decoded["error"], "model offline")
	assert.Equal(t, false, decoded["success"])
}

func TestProcess_ZeroHitsRoutesEnhancedAndCompletes(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{routineIntakeReply, summaryReply, reportReply}}
	store := &scriptedCaseStore{} // no similar cases
	p := newTestPipeline(t, gen, &staticEmbedder{}, store)

	res := p.Process(context.Background(), "patient-4", "Dry cough for two weeks.")

	require.NoError(t, res.Err)
	assert.True(t, res.NeedsEnhancedAnalysis)
	assert.Equal(t, fullPath, res.Path)
	assert.Empty(t, res.Faults)
	require.NotNil(t, res.Report)
}

func TestProcess_StorageFailureStillDeliversReport(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{routineIntakeReply, summaryReply, reportReply}}
	store := &scriptedCaseStore{
		cases:    []schema.SimilarCase{{ID: "c1", Score: 0.8}},
		storeErr: errors.New("upsert rejected"),
	}
	p := newTestPipeline(t, gen, &staticEmbedder{}, store)

	res := p.Process(context.Background(), "patient-5", "Dry cough for two weeks.")

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Report)
	require.Len(t, res.Faults, 1)
	assert.Equal(t, agents.StageStorage, res.Faults[0].Stage)
}

func TestProcess_EmptyIntakeFailsAtIntake(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{routineIntakeReply}}
	p := newTestPipeline(t, gen, &staticEmbedder{}, &scriptedCaseStore{})

	res := p.Process(context.Background(), "patient-6", "")

	require.Error(t, res.Err)
	assert.Equal(t, agents.StageIntake, res.FailedStage)
	require.ErrorIs(t, res.Err, agents.ErrNoIntakeText)
	assert.Equal(t, []string{"intake"}, res.Path)
}

func TestProcess_WithCheckpoints(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{routineIntakeReply, summaryReply, reportReply}}
	store := &scriptedCaseStore{cases: []schema.SimilarCase{{ID: "c1", Score: 0.8}}}
	ckpts := checkpoint.NewMemoryStore()
	p := newTestPipeline(t, gen, &staticEmbedder{}, store, WithCheckpoints(ckpts))

	res := p.Process(context.Background(), "patient-7", "Dry cough for two weeks.")
	require.NoError(t, res.Err)

	infos, err := ckpts.List(res.RunID)
	require.NoError(t, err)
	require.Len(t, infos, len(fullPath))
	assert.Equal(t, "intake", infos[0].NodeID)
	assert.Equal(t, "storage", infos[len(infos)-1].NodeID)
}

func TestProcess_ConcurrentRuns(t *testing.T) {
	// Each run gets its own generator: the reply script encodes call
	// ordering within a run, and runs must not share it.
	pipelines := make([]*Pipeline, 8)
	for i := range pipelines {
		g := &scriptedGenerator{replies: []string{routineIntakeReply, summaryReply, reportReply}}
		s := &scriptedCaseStore{cases: []schema.SimilarCase{{ID: "c1", Score: 0.8}}}
		pipelines[i] = newTestPipeline(t, g, &staticEmbedder{}, s)
	}

	results := make(chan *Result, len(pipelines))
	for _, p := range pipelines {
		go func(p *Pipeline) {
			results <- p.Process(context.Background(), "patient-8", "Dry cough for two weeks.")
		}(p)
	}
	seen := map[string]bool{}
	for i := 0; i < 8; i++ {
		select {
		case res := <-results:
			require.NoError(t, res.Err)
			assert.False(t, seen[res.RunID], "run IDs must be unique")
			seen[res.RunID] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for concurrent runs")
		}
	}
}

func TestPipeline_StagesListsGraphNodes(t *testing.T) {
	gen := &scriptedGenerator{}
	p := newTestPipeline(t, gen, &staticEmbedder{}, &scriptedCaseStore{})
	assert.ElementsMatch(t, fullPath, p.Stages())
}
