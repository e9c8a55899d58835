package agents

import (
	"fmt"
	"strings"

	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/internal/triage"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
)

// Knowledge retrieves similar prior cases for the current presentation.
// Retrieval failures degrade: the run continues with zero hits and a
// confidence of 0, which tends to route it to enhanced analysis.
//
// This stage also fixes the enhanced-analysis flag, since it produces
// the last inputs the routing rule reads.
func (a *Stages) Knowledge(ctx stategraph.Context, state schema.State) (schema.State, error) {
	state = state.Enter(StageKnowledge)

	knowledge := &schema.KnowledgeContext{}
	if state.Summary != nil {
		knowledge.RiskFactorCount = len(state.Summary.RiskFactors)
	}

	cases, err := a.searchSimilar(ctx, state.Structured)
	if err != nil {
		ctx.Logger().Warn("similar case retrieval failed, continuing without it", "error", err)
		state.Knowledge = knowledge
		state = state.Recover(StageKnowledge, fmt.Sprintf("similar case retrieval failed: %v", err))
		state.NeedsEnhancedAnalysis = triage.NeedsEnhancedAnalysis(state)
		return state, nil
	}

	knowledge.SimilarCases = cases
	if len(cases) > 0 {
		// Hits come back ordered by similarity, best first.
		knowledge.Confidence = cases[0].Score
	}
	state.Knowledge = knowledge
	state.NeedsEnhancedAnalysis = triage.NeedsEnhancedAnalysis(state)

	ctx.Logger().Info("similar cases retrieved",
		"hits", len(cases),
		"confidence", knowledge.Confidence,
		"enhanced_analysis", state.NeedsEnhancedAnalysis)
	return state, nil
}

func (a *Stages) searchSimilar(ctx stategraph.Context, d *schema.StructuredData) ([]schema.SimilarCase, error) {
	query := searchQuery(d)
	vector, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}
	return a.Cases.SearchSimilar(ctx, vector, similarCaseLimit, similarCaseThreshold)
}

func searchQuery(d *schema.StructuredData) string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("%s. Symptoms: %s", d.ChiefComplaint, strings.Join(d.Symptoms, ", "))
}
