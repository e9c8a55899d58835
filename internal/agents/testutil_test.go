package agents

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/clinigraph/clinigraph/internal/gateway"
	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
)

// testContext builds a quiet stage context with a fixed run ID.
func testContext(t *testing.T) stategraph.Context {
	t.Helper()
	return stategraph.NewContext(context.Background(),
		stategraph.WithContextRunID("run-test"),
		stategraph.WithContextLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// fakeGenerator replays scripted JSON replies and records prompts.
type fakeGenerator struct {
	replies []string
	err     error
	calls   int
	systems []string
	users   []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.replies[0], nil
}

func (g *fakeGenerator) GenerateJSON(ctx context.Context, system, user string, out any) error {
	g.systems = append(g.systems, system)
	g.users = append(g.users, user)
	idx := g.calls
	g.calls++
	if g.err != nil {
		return g.err
	}
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	return json.Unmarshal([]byte(g.replies[idx]), out)
}

// fakeEmbedder returns a fixed vector and records inputs.
type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *fakeEmbedder) Dimension() int { return len(e.vector) }

// fakeCaseStore scripts the three case store operations independently.
type fakeCaseStore struct {
	visits     []schema.Visit
	historyErr error
	historyReq struct {
		patientID string
		limit     int
	}

	cases     []schema.SimilarCase
	searchErr error
	searchReq struct {
		vector    []float32
		limit     int
		threshold float64
	}

	stored   []gateway.CaseRecord
	storeErr error
}

func (s *fakeCaseStore) FetchHistory(ctx context.Context, patientID string, limit int) ([]schema.Visit, error) {
	s.historyReq.patientID = patientID
	s.historyReq.limit = limit
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.visits, nil
}

func (s *fakeCaseStore) SearchSimilar(ctx context.Context, vector []float32, limit int, threshold float64) ([]schema.SimilarCase, error) {
	s.searchReq.vector = vector
	s.searchReq.limit = limit
	s.searchReq.threshold = threshold
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.cases, nil
}

func (s *fakeCaseStore) StoreCase(ctx context.Context, rec gateway.CaseRecord) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	s.stored = append(s.stored, rec)
	return nil
}

// baseState returns a state mid-run, populated up to the given point.
func baseState() schema.State {
	return schema.State{
		Intake: schema.Intake{
			PatientID: "patient-7",
			RawText:   "Persistent dry cough for two weeks, worse at night.",
		},
	}
}

func structuredState() schema.State {
	s := baseState()
	s.Structured = &schema.StructuredData{
		ChiefComplaint: "persistent dry cough",
		Symptoms:       []string{"dry cough", "nocturnal worsening"},
		Duration:       "two weeks",
		Severity:       "moderate",
		MedicalHistory: []string{"asthma"},
	}
	s.Priority = schema.PriorityRoutine
	return s
}

func summarisedState() schema.State {
	s := structuredState()
	s.Summary = &schema.ClinicalSummary{
		Narrative:   "Two weeks of dry cough in an asthmatic patient.",
		KeyFindings: []string{"nocturnal cough"},
		RiskFactors: []string{"asthma"},
	}
	return s
}

func knowledgeState() schema.State {
	s := summarisedState()
	s.Knowledge = &schema.KnowledgeContext{
		Confidence: 0.82,
		SimilarCases: []schema.SimilarCase{
			{ID: "case-1", Score: 0.82, ChiefComplaint: "chronic cough", Assessment: "cough-variant asthma"},
		},
		RiskFactorCount: 1,
	}
	return s
}
