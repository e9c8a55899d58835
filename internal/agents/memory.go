package agents

import (
	"fmt"

	"github.com/clinigraph/clinigraph/internal/gateway"
	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
)

// Memory loads the patient's prior visits from the case store. A lookup
// failure degrades to an empty history: summarisation still works, it
// just loses longitudinal context.
func (a *Stages) Memory(ctx stategraph.Context, state schema.State) (schema.State, error) {
	state = state.Enter(StageMemory)

	visits, err := a.Cases.FetchHistory(ctx, state.Intake.PatientID, gateway.DefaultHistoryLimit)
	if err != nil {
		ctx.Logger().Warn("history lookup failed, continuing without prior visits",
			"patient_id", state.Intake.PatientID, "error", err)
		state.History = nil
		return state.Recover(StageMemory, fmt.Sprintf("history lookup failed: %v", err)), nil
	}

	state.History = visits
	ctx.Logger().Info("history loaded",
		"patient_id", state.Intake.PatientID, "visits", len(visits))
	return state, nil
}
