package agents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
)

const summarySystemPrompt = `You are a clinical summarisation assistant. Given structured intake data
and the patient's visit history, produce a concise clinical summary.
Respond with a single JSON object, no commentary, with these fields:

  narrative     string: 2-4 sentence clinical summary of the presentation
  key_findings  array of strings: the clinically significant findings
  risk_factors  array of strings: risk factors from history and presentation
  focus_areas   array of strings: areas the clinician should focus on

Ground every statement in the provided data.`

// ErrMissingStructuredData rejects summarisation without an extraction.
var ErrMissingStructuredData = errors.New("summary stage requires structured intake data")

// Summary synthesises the structured intake and visit history into a
// clinical summary. Generation failures fail the run.
func (a *Stages) Summary(ctx stategraph.Context, state schema.State) (schema.State, error) {
	state = state.Enter(StageSummary)

	if state.Structured == nil {
		return state, ErrMissingStructuredData
	}

	var summary schema.ClinicalSummary
	if err := a.Generator.GenerateJSON(ctx, summarySystemPrompt, summaryInput(state), &summary); err != nil {
		return state, fmt.Errorf("generating clinical summary: %w", err)
	}

	state.Summary = &summary
	ctx.Logger().Info("summary generated",
		"key_findings", len(summary.KeyFindings),
		"risk_factors", len(summary.RiskFactors))
	return state, nil
}

// summaryInput renders the prompt body. Absent fields get explicit
// placeholders so the model never guesses what a blank means.
func summaryInput(state schema.State) string {
	d := state.Structured
	var b strings.Builder

	fmt.Fprintf(&b, "Chief complaint: %s\n", orElse(d.ChiefComplaint, "Not specified"))
	fmt.Fprintf(&b, "Symptoms: %s\n", joinOrElse(d.Symptoms, "None reported"))
	fmt.Fprintf(&b, "Duration: %s\n", orElse(d.Duration, "Not specified"))
	fmt.Fprintf(&b, "Severity: %s\n", orElse(d.Severity, "Not specified"))
	fmt.Fprintf(&b, "Medical history: %s\n", joinOrElse(d.MedicalHistory, "None reported"))
	fmt.Fprintf(&b, "Medications: %s\n", joinOrElse(d.Medications, "None"))
	fmt.Fprintf(&b, "Allergies: %s\n", joinOrElse(d.Allergies, "None known"))
	fmt.Fprintf(&b, "Priority: %s\n", string(state.Priority))

	if digest := schema.HistoryDigest(state.History); digest != "" {
		fmt.Fprintf(&b, "\nPrior visits (most recent first):\n%s\n", digest)
	} else {
		b.WriteString("\nPrior visits: Not recorded\n")
	}
	return b.String()
}

func orElse(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func joinOrElse(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
