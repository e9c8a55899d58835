// Package schema defines the shared record that flows through a pipeline
// run, plus the structures each stage writes into it.
//
// Ownership is strict: every field below is written by exactly one stage
// and read only by later ones. A State value belongs to a single run and
// is never shared between concurrent runs.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the case classification assigned during intake.
type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// Intake is the immutable raw input of a run.
type Intake struct {
	PatientID string `json:"patient_id"`
	RawText   string `json:"raw_text"`
	SessionID string `json:"session_id,omitempty"`
}

// VitalSigns holds the measurements parsed from intake text. Zero values
// mean "not reported", so the triage rules skip absent vitals.
type VitalSigns struct {
	SystolicBP   int     `json:"systolic_bp,omitempty"`
	DiastolicBP  int     `json:"diastolic_bp,omitempty"`
	HeartRate    int     `json:"heart_rate,omitempty"`
	TemperatureF float64 `json:"temperature_f,omitempty"`
}

// StructuredData is the intake stage's extraction of the free-text intake.
type StructuredData struct {
	ChiefComplaint string      `json:"chief_complaint"`
	Symptoms       []string    `json:"symptoms"`
	Duration       string      `json:"duration,omitempty"`
	Severity       string      `json:"severity,omitempty"`
	MedicalHistory []string    `json:"medical_history,omitempty"`
	Medications    []string    `json:"medications,omitempty"`
	Allergies      []string    `json:"allergies,omitempty"`
	Vitals         *VitalSigns `json:"vitals,omitempty"`

	// SymptomsVague marks an extraction the model judged underspecified.
	SymptomsVague bool `json:"symptoms_vague,omitempty"`
}

// Visit is one prior encounter from the patient's history, most recent
// first in State.History.
type Visit struct {
	ChiefComplaint string    `json:"chief_complaint"`
	Symptoms       []string  `json:"symptoms,omitempty"`
	MedicalHistory []string  `json:"medical_history,omitempty"`
	Assessment     string    `json:"assessment,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ClinicalSummary is the summary stage's synthesis of the current intake
// and the patient's history.
type ClinicalSummary struct {
	Narrative   string   `json:"narrative"`
	KeyFindings []string `json:"key_findings,omitempty"`
	RiskFactors []string `json:"risk_factors,omitempty"`
	FocusAreas  []string `json:"focus_areas,omitempty"`
}

// SimilarCase is one similarity hit from the case store.
type SimilarCase struct {
	ID             string   `json:"id"`
	Score          float64  `json:"score"`
	ChiefComplaint string   `json:"chief_complaint,omitempty"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Assessment     string   `json:"assessment,omitempty"`
}

// KnowledgeContext is the knowledge stage's retrieval result.
type KnowledgeContext struct {
	// Confidence is 0..1; the top similarity score, or 0 with no hits.
	Confidence   float64       `json:"confidence"`
	SimilarCases []SimilarCase `json:"similar_cases,omitempty"`
	// RiskFactorCount mirrors len(Summary.RiskFactors) for routing.
	RiskFactorCount int `json:"risk_factor_count"`
}

// SOAPReport is the final structured output.
type SOAPReport struct {
	Subjective string   `json:"subjective"`
	Objective  string   `json:"objective"`
	Assessment string   `json:"assessment"`
	Plan       string   `json:"plan"`
	Flags      []string `json:"flags,omitempty"`
	// ConfidenceLabel is "high", "medium" or "low".
	ConfidenceLabel string `json:"confidence_label"`
}

// StageFault records a degradable failure a stage recovered from.
type StageFault struct {
	Stage  string `json:"stage"`
	Detail string `json:"detail"`
}

// State is the run record. Stages receive it by value and return an
// updated copy; the executor threads it from stage to stage.
type State struct {
	Intake     Intake            `json:"intake"`
	Structured *StructuredData   `json:"structured,omitempty"`
	History    []Visit           `json:"history,omitempty"`
	Summary    *ClinicalSummary  `json:"summary,omitempty"`
	Knowledge  *KnowledgeContext `json:"knowledge,omitempty"`
	Report     *SOAPReport       `json:"report,omitempty"`

	Priority              Priority     `json:"priority,omitempty"`
	Path                  []string     `json:"path"`
	NeedsEnhancedAnalysis bool         `json:"needs_enhanced_analysis"`
	Faults                []StageFault `json:"faults,omitempty"`

	StartedAt time.Time `json:"started_at"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// Enter appends stage to the run path. Stages call it first, before any
// external work, so the path records every stage that started.
func (s State) Enter(stage string) State {
	s.Path = append(s.Path, stage)
	return s
}

// Recover appends a degradable fault observed in stage.
func (s State) Recover(stage, detail string) State {
	s.Faults = append(s.Faults, StageFault{Stage: stage, Detail: detail})
	return s
}

// HistoryDigest renders prior visits as compact prompt text, most recent
// first. Returns "" for an empty history.
func HistoryDigest(visits []Visit) string {
	if len(visits) == 0 {
		return ""
	}
	var b strings.Builder
	for i, v := range visits {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", v.Timestamp.Format("2006-01-02"), v.ChiefComplaint)
		if len(v.Symptoms) > 0 {
			fmt.Fprintf(&b, " (symptoms: %s)", strings.Join(v.Symptoms, ", "))
		}
		if v.Assessment != "" {
			fmt.Fprintf(&b, "; assessed: %s", v.Assessment)
		}
	}
	return b.String()
}

// SearchableText flattens structured data and an assessment into the
// embedding text stored alongside each case.
func SearchableText(d *StructuredData, assessment string) string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("Chief complaint: %s | Symptoms: %s | Medical history: %s | Assessment: %s",
		d.ChiefComplaint,
		strings.Join(d.Symptoms, ", "),
		strings.Join(d.MedicalHistory, ", "),
		assessment,
	)
}
