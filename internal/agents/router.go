package agents

import (
	"github.com/clinigraph/clinigraph/internal/schema"
	"github.com/clinigraph/clinigraph/pkg/stategraph"
)

// routingTable maps the enhanced-analysis flag to the next stage. Both
// variants currently lead to report generation; the table exists so a
// dedicated enhanced-analysis stage can be slotted in without touching
// the router.
var routingTable = map[bool]string{
	true:  StageReport,
	false: StageReport,
}

// RouteAfterKnowledge picks the stage that follows knowledge retrieval
// based on the enhanced-analysis flag.
func RouteAfterKnowledge(ctx stategraph.Context, state schema.State) string {
	next := routingTable[state.NeedsEnhancedAnalysis]
	ctx.Logger().Debug("routing after knowledge",
		"enhanced_analysis", state.NeedsEnhancedAnalysis, "next", next)
	return next
}
