package agents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
)

const reportSystemPrompt = `You are a clinical documentation assistant. Produce a SOAP report from
the structured intake, the clinical summary and the retrieved similar
cases. Respond with a single JSON object, no commentary, with these
fields:

  subjective        string: the patient's reported complaint and history
  objective         string: measurable findings, including any vitals
  assessment        string: clinical assessment of the presentation
  plan              string: recommended next steps
  flags             array of strings: items needing clinician attention
  confidence_label  string: "high", "medium" or "low"

State only what the provided data supports. Flag anything uncertain.`

// Report prerequisites. Missing any of them means an earlier fatal stage
// was skipped, so the run cannot produce a report.
var (
	ErrReportNeedsStructured = errors.New("report stage requires structured intake data")
	ErrReportNeedsSummary    = errors.New("report stage requires a clinical summary")
	ErrReportNeedsKnowledge  = errors.New("report stage requires a knowledge context")
)

// Report generates the final SOAP report. Generation failures fail the
// run: a pipeline that cannot report has nothing to deliver.
func (a *Stages) Report(ctx stategraph.Context, state schema.State) (schema.State, error) {
	state = state.Enter(StageReport)

	switch {
	case state.Structured == nil:
		return state, ErrReportNeedsStructured
	case state.Summary == nil:
		return state, ErrReportNeedsSummary
	case state.Knowledge == nil:
		return state, ErrReportNeedsKnowledge
	}

	var report schema.SOAPReport
	if err := a.Generator.GenerateJSON(ctx, reportSystemPrompt, reportInput(state), &report); err != nil {
		return state, fmt.Errorf("generating SOAP report: %w", err)
	}

	state.Report = &report
	ctx.Logger().Info("report generated",
		"confidence_label", report.ConfidenceLabel,
		"flags", len(report.Flags))
	return state, nil
}

func reportInput(state schema.State) string {
	d := state.Structured
	var b strings.Builder

	fmt.Fprintf(&b, "Chief complaint: %s\n", orElse(d.ChiefComplaint, "Not specified"))
	fmt.Fprintf(&b, "Symptoms: %s\n", joinOrElse(d.Symptoms, "None reported"))
	fmt.Fprintf(&b, "Severity: %s\n", orElse(d.Severity, "Not specified"))
	fmt.Fprintf(&b, "Allergies: %s\n", joinOrElse(d.Allergies, "NKDA"))
	fmt.Fprintf(&b, "Priority: %s\n", string(state.Priority))
	if d.Vitals != nil {
		fmt.Fprintf(&b, "Vitals: %s\n", formatVitals(d.Vitals))
	}

	fmt.Fprintf(&b, "\nClinical summary: %s\n", state.Summary.Narrative)
	fmt.Fprintf(&b, "Key findings: %s\n", joinOrElse(state.Summary.KeyFindings, "None"))
	fmt.Fprintf(&b, "Risk factors: %s\n", joinOrElse(state.Summary.RiskFactors, "None"))

	fmt.Fprintf(&b, "\nSimilar case confidence: %.2f\n", state.Knowledge.Confidence)
	if len(state.Knowledge.SimilarCases) > 0 {
		b.WriteString("Similar cases:\n")
		for _, c := range state.Knowledge.SimilarCases {
			fmt.Fprintf(&b, "- %s (score %.2f); assessed: %s\n",
				c.ChiefComplaint, c.Score, orElse(c.Assessment, "not recorded"))
		}
	} else {
		b.WriteString("Similar cases: none retrieved\n")
	}
	if state.NeedsEnhancedAnalysis {
		b.WriteString("\nThis case was routed for enhanced analysis. Be explicit about uncertainty.\n")
	}
	return b.String()
}

func formatVitals(v *schema.VitalSigns) string {
	var parts []string
	if v.SystolicBP != 0 && v.DiastolicBP != 0 {
		parts = append(parts, fmt.Sprintf("BP %d/%d", v.SystolicBP, v.DiastolicBP))
	}
	if v.HeartRate != 0 {
		parts = append(parts, fmt.Sprintf("HR %d", v.HeartRate))
	}
	if v.TemperatureF != 0 {
		parts = append(parts, fmt.Sprintf("Temp %.1fF", v.TemperatureF))
	}
	if len(parts) == 0 {
		return "not reported"
	}
	return strings.Join(parts, ", ")
}
