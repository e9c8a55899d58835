// Package triage assigns a case priority from structured intake data.
//
// The rules are deliberately plain keyword and threshold tables, not a
// model: a classification must be explainable after the fact, and the
// tables are the audit trail.
package triage

import (
	"strings"

	"github.com/clinigraph/clinigraph/internal/schema"
)

// emergencyKeywords force an emergency classification when present and
// not negated. Textual evidence at this level is never downgraded by
// normal vitals.
var emergencyKeywords = []string{
	"chest pain",
	"difficulty breathing",
	"severe bleeding",
	"stroke",
	"heart attack",
	"anaphylaxis",
	"loss of consciousness",
	"unresponsive",
	"seizure",
	"choking",
	"suicidal",
}

// urgentKeywords escalate routine to urgent.
var urgentKeywords = []string{
	"high fever",
	"persistent vomiting",
	"confusion",
	"severe headache",
	"shortness of breath",
	"rapid heartbeat",
	"dehydration",
	"fainting",
	"severe pain",
}

// negations immediately preceding a keyword suppress the match
// ("no chest pain", "denies chest pain").
var negations = map[string]bool{
	"no":      true,
	"not":     true,
	"denies":  true,
	"denied":  true,
	"without": true,
}

// Vitals bands outside which a case is at least urgent.
const (
	systolicHigh  = 180
	systolicLow   = 90
	diastolicHigh = 120
	diastolicLow  = 60
	heartRateHigh = 120
	heartRateLow  = 50
	tempHighF     = 103.0
	tempLowF      = 95.0
)

// ClassifyPriority maps structured intake data to a priority. Emergency
// keywords dominate; otherwise severity, urgent keywords, or out-of-band
// vitals yield urgent; everything else is routine. Nil data is routine.
func ClassifyPriority(d *schema.StructuredData) schema.Priority {
	if d == nil {
		return schema.PriorityRoutine
	}

	text := clinicalText(d)
	for _, kw := range emergencyKeywords {
		if affirmed(text, kw) {
			return schema.PriorityEmergency
		}
	}

	if strings.EqualFold(strings.TrimSpace(d.Severity), "severe") {
		return schema.PriorityUrgent
	}
	for _, kw := range urgentKeywords {
		if affirmed(text, kw) {
			return schema.PriorityUrgent
		}
	}
	if vitalsOutOfBand(d.Vitals) {
		return schema.PriorityUrgent
	}

	return schema.PriorityRoutine
}

// NeedsEnhancedAnalysis decides, after knowledge retrieval, whether the
// case warrants a deeper pass. Independent of priority.
func NeedsEnhancedAnalysis(s schema.State) bool {
	if s.Structured != nil && s.Structured.SymptomsVague {
		return true
	}
	if s.Knowledge == nil {
		return true
	}
	k := s.Knowledge
	return k.Confidence < 0.5 || k.RiskFactorCount > 3 || len(k.SimilarCases) == 0
}

// clinicalText joins the chief complaint and symptom list into one
// lowercased haystack for keyword matching.
func clinicalText(d *schema.StructuredData) string {
	parts := make([]string, 0, len(d.Symptoms)+1)
	if d.ChiefComplaint != "" {
		parts = append(parts, d.ChiefComplaint)
	}
	parts = append(parts, d.Symptoms...)
	return strings.ToLower(strings.Join(parts, ". "))
}

// affirmed reports whether keyword occurs in text without a negation in
// the few words directly before it. Matching stays within the sentence:
// a period resets the negation window.
func affirmed(text, keyword string) bool {
	from := 0
	for {
		i := strings.Index(text[from:], keyword)
		if i < 0 {
			return false
		}
		i += from
		if !negatedBefore(text[:i]) {
			return true
		}
		from = i + len(keyword)
	}
}

// negatedBefore checks the up-to-three words preceding a match for a
// negation marker.
func negatedBefore(prefix string) bool {
	if dot := strings.LastIndexByte(prefix, '.'); dot >= 0 {
		prefix = prefix[dot+1:]
	}
	words := strings.Fields(prefix)
	start := len(words) - 3
	if start < 0 {
		start = 0
	}
	for _, w := range words[start:] {
		if negations[strings.Trim(w, ",;:")] {
			return true
		}
	}
	return false
}

// vitalsOutOfBand reports whether any reported measurement falls outside
// its band. Absent measurements (zero values) are skipped.
func vitalsOutOfBand(v *schema.VitalSigns) bool {
	if v == nil {
		return false
	}
	if v.SystolicBP != 0 && (v.SystolicBP > systolicHigh || v.SystolicBP < systolicLow) {
		return true
	}
	if v.DiastolicBP != 0 && (v.DiastolicBP > diastolicHigh || v.DiastolicBP < diastolicLow) {
		return true
	}
	if v.HeartRate != 0 && (v.HeartRate > heartRateHigh || v.HeartRate < heartRateLow) {
		return true
	}
	if v.TemperatureF != 0 && (v.TemperatureF > tempHighF || v.TemperatureF < tempLowF) {
		return true
	}
	return false
}
