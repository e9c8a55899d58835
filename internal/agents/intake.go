package agents

import (
	"fmt"
	"strings"

	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/internal/triage"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
)

const intakeSystemPrompt = `You are a clinical intake assistant. Extract structured data from the
patient's free-text intake. Be precise and clinical. Respond with a
single JSON object, no commentary, with these fields:

  chief_complaint  string: the primary reason for the visit
  symptoms         array of strings, one symptom each
  duration         string: how long symptoms have been present, or ""
  severity         string: "mild", "moderate" or "severe", or ""
  medical_history  array of strings: known conditions
  medications      array of strings: current medications
  allergies        array of strings: known allergies
  vitals           object with integer systolic_bp, diastolic_bp,
                   heart_rate and numeric temperature_f, omitting any
                   measurement the text does not report
  symptoms_vague   boolean: true when the text is too underspecified to
                   name concrete symptoms

Never invent measurements or conditions the text does not state.`

// Intake extracts structured clinical data from the raw intake text and
// classifies the case priority. Extraction failures fail the run: every
// later stage depends on the structured data.
func (a *Stages) Intake(ctx stategraph.Context, state schema.State) (schema.State, error) {
	state = state.Enter(StageIntake)

	raw := strings.TrimSpace(state.Intake.RawText)
	if raw == "" {
		return state, ErrNoIntakeText
	}

	var extracted schema.StructuredData
	user := fmt.Sprintf("Patient intake text:\n\n%s", raw)
	if err := a.Generator.GenerateJSON(ctx, intakeSystemPrompt, user, &extracted); err != nil {
		return state, fmt.Errorf("extracting structured data: %w", err)
	}

	state.Structured = &extracted
	state.Priority = triage.ClassifyPriority(&extracted)

	ctx.Logger().Info("intake extracted",
		"chief_complaint", extracted.ChiefComplaint,
		"symptoms", len(extracted.Symptoms),
		"priority", string(state.Priority))
	return state, nil
}
