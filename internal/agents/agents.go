// Package agents implements the pipeline stages. Each stage is a
// stategraph node over schema.State: it records itself on the run path
// first, does its work through the gateways, and writes exactly the state
// fields it owns.
//
// Failure handling follows the stage contracts: intake, summary and
// report fail the run (nothing downstream can proceed without them);
// memory, knowledge and storage degrade to a safe default and record a
// fault instead.
package agents

import (
	"errors"

	"github.com/clinigraph/clinigraph/internal/gateway"
)

// Stage names, as they appear on the run path.
const (
	StageIntake    = "intake"
	StageMemory    = "memory"
	StageSummary   = "summary"
	StageKnowledge = "knowledge"
	StageReport    = "report"
	StageStorage   = "storage"
)

// Knowledge retrieval tuning. The lower threshold catches semantic
// matches that exact-wording similarity would miss.
const (
	similarCaseLimit     = 3
	similarCaseThreshold = 0.6
)

// ErrNoIntakeText rejects a run with nothing to process.
var ErrNoIntakeText = errors.New("no intake text provided")

// Stages bundles the gateway dependencies the stage functions close over.
type Stages struct {
	Generator gateway.Generator
	Embedder  gateway.Embedder
	Cases     gateway.CaseStore
}

// NewStages wires the stage functions to their gateways.
func NewStages(generator gateway.Generator, embedder gateway.Embedder, cases gateway.CaseStore) *Stages {
	return &Stages{Generator: generator, Embedder: embedder, Cases: cases}
}
