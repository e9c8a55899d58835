package agents

import (
	"fmt"
	"time"

	"github.com/clinigraph/clinigraph/internal/gateway"
	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
)

// Storage persists the completed case to the case store so future runs
// can retrieve it as history and as a similarity hit. Failures degrade:
// the report already exists and is still delivered, the case is just
// not recorded.
func (a *Stages) Storage(ctx stategraph.Context, state schema.State) (schema.State, error) {
	state = state.Enter(StageStorage)

	if state.Structured == nil || state.Report == nil {
		ctx.Logger().Warn("skipping case storage, run is incomplete")
		return state.Recover(StageStorage, "incomplete run, case not stored"), nil
	}

	rec := gateway.CaseRecord{
		PatientID:      state.Intake.PatientID,
		RunID:          ctx.RunID(),
		ChiefComplaint: state.Structured.ChiefComplaint,
		Symptoms:       state.Structured.Symptoms,
		MedicalHistory: state.Structured.MedicalHistory,
		Assessment:     state.Report.Assessment,
		Timestamp:      time.Now().UTC(),
		SearchableText: schema.SearchableText(state.Structured, state.Report.Assessment),
	}

	vector, err := a.Embedder.Embed(ctx, rec.SearchableText)
	if err != nil {
		ctx.Logger().Warn("case embedding failed, case not stored", "error", err)
		return state.Recover(StageStorage, fmt.Sprintf("case embedding failed: %v", err)), nil
	}
	rec.Vector = vector

	if err := a.Cases.StoreCase(ctx, rec); err != nil {
		ctx.Logger().Warn("case storage failed", "error", err)
		return state.Recover(StageStorage, fmt.Sprintf("case storage failed: %v", err)), nil
	}

	ctx.Logger().Info("case stored",
		"patient_id", rec.PatientID, "point_id", rec.PointID())
	return state, nil
}
