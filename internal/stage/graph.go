package stage

import (
	"fmt"
	"sort"

	"github.com/mtb-technology/reportflow/internal/types"
)

// BlockReason explains why later stages cannot run for a report.
type BlockReason struct {
	// Stage is the stage whose outcome blocks the pipeline.
	Stage StageID `json:"stage"`

	// Reason is a human-readable explanation suitable for surfacing to the
	// caller (e.g. "awaiting missing client information").
	Reason string `json:"reason"`
}

// Graph holds the stage definition set and answers eligibility questions.
// The definitions are fixed at construction; Graph itself carries no
// per-report state.
type Graph struct {
	defs map[StageID]Stage

	// transitive[s] contains every stage reachable from s by following
	// dependency edges, precomputed at construction.
	transitive map[StageID]map[StageID]bool
}

// NewGraph builds a Graph from the given definitions, validating that all
// dependencies reference defined stages and that the dependency relation is
// acyclic.
func NewGraph(defs map[StageID]Stage) (*Graph, error) {
	if len(defs) == 0 {
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "stage definitions cannot be empty")
	}

	for id, def := range defs {
		if def.ID != id {
			return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("stage %q declares mismatched id %q", id, def.ID))
		}
		if !def.Type.IsValid() {
			return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("stage %q has invalid type %q", id, def.Type))
		}
		for _, dep := range def.Dependencies {
			if _, ok := defs[dep]; !ok {
				return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
					fmt.Sprintf("stage %q depends on undefined stage %q", id, dep))
			}
		}
	}

	g := &Graph{
		defs:       defs,
		transitive: make(map[StageID]map[StageID]bool, len(defs)),
	}

	for id := range defs {
		reach, err := g.computeTransitive(id, make(map[StageID]bool))
		if err != nil {
			return nil, err
		}
		g.transitive[id] = reach
	}

	return g, nil
}

// NewDefaultGraph builds a Graph from the fixed process-wide definitions.
func NewDefaultGraph() *Graph {
	g, err := NewGraph(Definitions())
	if err != nil {
		// The built-in table is validated by tests; failing here means the
		// binary itself is broken.
		panic(err)
	}
	return g
}

func (g *Graph) computeTransitive(id StageID, visiting map[StageID]bool) (map[StageID]bool, error) {
	if visiting[id] {
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("dependency cycle through stage %q", id))
	}
	visiting[id] = true
	defer delete(visiting, id)

	reach := make(map[StageID]bool)
	for _, dep := range g.defs[id].Dependencies {
		reach[dep] = true
		sub, err := g.computeTransitive(dep, visiting)
		if err != nil {
			return nil, err
		}
		for s := range sub {
			reach[s] = true
		}
	}
	return reach, nil
}

// Stage returns the definition for a stage ID.
func (g *Graph) Stage(id StageID) (Stage, error) {
	def, ok := g.defs[id]
	if !ok {
		return Stage{}, types.NewError(types.STAGE_NOT_FOUND, fmt.Sprintf("stage %q is not defined", id))
	}
	return def, nil
}

// StageIDs returns all defined stage IDs in sorted order.
func (g *Graph) StageIDs() []StageID {
	ids := make([]StageID, 0, len(g.defs))
	for id := range g.defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BlockedReason reports why later stages cannot run, or nil when the report
// is not blocked. The report is blocked when the completeness check last
// returned an "incomplete" verdict; the gate lifts only when the check is
// re-run and returns "complete".
func (g *Graph) BlockedReason(states RunStates) *BlockReason {
	if states.CompletenessVerdict() == VerdictIncomplete {
		return &BlockReason{
			Stage:  StageCompletenessCheck,
			Reason: "awaiting missing client information: completeness check returned an incomplete verdict",
		}
	}
	return nil
}

// IsEligible reports whether a stage may run for a report given the current
// run states. A stage is eligible when every declared dependency has
// completed and the report is not blocked for it.
//
// The incomplete-input gate is a hard precondition: while the report is
// blocked, no stage that transitively depends on the completeness check may
// become eligible, regardless of other stages' completion status. Stages
// flagged RunsWhenBlocked (escalation) are exempt and additionally require
// the blocked condition to be present.
func (g *Graph) IsEligible(states RunStates, stageID StageID) (bool, error) {
	def, ok := g.defs[stageID]
	if !ok {
		return false, types.NewError(types.STAGE_NOT_FOUND, fmt.Sprintf("stage %q is not defined", stageID))
	}

	for _, dep := range def.Dependencies {
		if !states.Get(dep).Completed() {
			return false, nil
		}
	}

	blocked := g.BlockedReason(states)

	if def.RunsWhenBlocked {
		// Escalation only makes sense while the gate is down.
		return blocked != nil, nil
	}

	if blocked != nil && g.dependsOn(stageID, blocked.Stage) {
		return false, nil
	}

	return true, nil
}

// dependsOn reports whether stage transitively depends on target.
func (g *Graph) dependsOn(stageID, target StageID) bool {
	return g.transitive[stageID][target]
}

// CanEdit validates an on-demand editor invocation against a completed
// reviewer stage. The editor is outside the fixed order and runs against
// any reviewer output once that reviewer has completed.
func (g *Graph) CanEdit(states RunStates, reviewerID StageID, strategy MergeStrategy) error {
	def, ok := g.defs[reviewerID]
	if !ok {
		return types.NewError(types.STAGE_NOT_FOUND, fmt.Sprintf("stage %q is not defined", reviewerID))
	}
	if def.Type != StageTypeReviewer {
		return types.NewError(types.STAGE_NOT_ELIGIBLE,
			fmt.Sprintf("editor requires a reviewer stage, got %q of type %q", reviewerID, def.Type))
	}
	if !states.Get(reviewerID).Completed() {
		return types.NewError(types.STAGE_NOT_ELIGIBLE,
			fmt.Sprintf("reviewer stage %q has not completed", reviewerID))
	}
	if !strategy.IsValid() {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("invalid merge strategy %q", strategy))
	}
	return nil
}

// Ready returns all stages currently eligible to run, in sorted order.
// On-demand stages are excluded; they never enter the fixed pipeline flow.
func (g *Graph) Ready(states RunStates) []StageID {
	var ready []StageID
	for id, def := range g.defs {
		if def.OnDemand {
			continue
		}
		state := states.Get(id)
		if state.Status != StageStatusPending && state.Status != StageStatusError {
			continue
		}
		ok, err := g.IsEligible(states, id)
		if err != nil || !ok {
			continue
		}
		ready = append(ready, id)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	return ready
}

// ExpressStages returns the ordered stage set executed by an express job.
// Escalation is excluded (it runs only while blocked) as are on-demand
// stages; reviewers appear as one parallel layer after generation.
func ExpressStages() [][]StageID {
	return [][]StageID{
		{StageCompletenessCheck},
		{StageComplexityAssessment},
		{StageGeneration},
		{
			StageReviewSources,
			StageReviewTechnical,
			StageReviewScenarioGaps,
			StageReviewLegal,
			StageReviewCommunication,
		},
		{StageChangeSummary},
		{StageExecutiveBriefing},
	}
}
