package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed() RunState {
	now := time.Now()
	return RunState{Status: StageStatusCompleted, StartedAt: &now, FinishedAt: &now}
}

func completedWithVerdict(v Verdict) RunState {
	state := completed()
	state.Verdict = v
	return state
}

func TestNewGraph_ValidatesDefinitions(t *testing.T) {
	t.Run("default table is valid", func(t *testing.T) {
		g, err := NewGraph(Definitions())
		require.NoError(t, err)
		assert.Len(t, g.StageIDs(), 12)
	})

	t.Run("empty definitions rejected", func(t *testing.T) {
		_, err := NewGraph(nil)
		assert.Error(t, err)
	})

	t.Run("undefined dependency rejected", func(t *testing.T) {
		defs := map[StageID]Stage{
			"a": {ID: "a", Type: StageTypeGenerator, Dependencies: []StageID{"ghost"}},
		}
		_, err := NewGraph(defs)
		assert.Error(t, err)
	})

	t.Run("cycle rejected", func(t *testing.T) {
		defs := map[StageID]Stage{
			"a": {ID: "a", Type: StageTypeGenerator, Dependencies: []StageID{"b"}},
			"b": {ID: "b", Type: StageTypeGenerator, Dependencies: []StageID{"a"}},
		}
		_, err := NewGraph(defs)
		assert.Error(t, err)
	})

	t.Run("mismatched id rejected", func(t *testing.T) {
		defs := map[StageID]Stage{
			"a": {ID: "b", Type: StageTypeGenerator},
		}
		_, err := NewGraph(defs)
		assert.Error(t, err)
	})
}

func TestGraph_IsEligible_DependencyGating(t *testing.T) {
	g := NewDefaultGraph()

	t.Run("entry stage eligible on fresh report", func(t *testing.T) {
		ok, err := g.IsEligible(RunStates{}, StageCompletenessCheck)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("generation ineligible until complexity assessment completes", func(t *testing.T) {
		states := RunStates{
			StageCompletenessCheck: completedWithVerdict(VerdictComplete),
		}
		ok, err := g.IsEligible(states, StageGeneration)
		require.NoError(t, err)
		assert.False(t, ok)

		states[StageComplexityAssessment] = completed()
		ok, err = g.IsEligible(states, StageGeneration)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown stage is an error", func(t *testing.T) {
		_, err := g.IsEligible(RunStates{}, "nope")
		assert.Error(t, err)
	})
}

func TestGraph_IncompleteVerdictBlocksDownstream(t *testing.T) {
	g := NewDefaultGraph()

	// Everything up to generation completed, but the check verdict is
	// incomplete: every transitive dependent must be ineligible no matter
	// what else has completed.
	states := RunStates{
		StageCompletenessCheck:    completedWithVerdict(VerdictIncomplete),
		StageComplexityAssessment: completed(),
		StageGeneration:           completed(),
	}

	require.NotNil(t, g.BlockedReason(states))

	for _, id := range []StageID{
		StageComplexityAssessment,
		StageGeneration,
		StageReviewSources,
		StageReviewTechnical,
		StageReviewScenarioGaps,
		StageReviewLegal,
		StageReviewCommunication,
		StageChangeSummary,
		StageExecutiveBriefing,
	} {
		ok, err := g.IsEligible(states, id)
		require.NoError(t, err)
		assert.False(t, ok, "stage %s must be blocked", id)
	}

	// The completeness check itself may be re-run.
	ok, err := g.IsEligible(states, StageCompletenessCheck)
	require.NoError(t, err)
	assert.True(t, ok)

	// Escalation is only eligible while blocked.
	ok, err = g.IsEligible(states, StageEscalation)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGraph_GateLiftsAfterReRun(t *testing.T) {
	g := NewDefaultGraph()

	states := RunStates{
		StageCompletenessCheck: completedWithVerdict(VerdictIncomplete),
	}
	ok, err := g.IsEligible(states, StageComplexityAssessment)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-run returns complete: the gate lifts, escalation drops out.
	states[StageCompletenessCheck] = completedWithVerdict(VerdictComplete)
	assert.Nil(t, g.BlockedReason(states))

	ok, err = g.IsEligible(states, StageComplexityAssessment)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.IsEligible(states, StageEscalation)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGraph_SiblingReviewersEligibleSimultaneously(t *testing.T) {
	g := NewDefaultGraph()

	states := RunStates{
		StageCompletenessCheck:    completedWithVerdict(VerdictComplete),
		StageComplexityAssessment: completed(),
		StageGeneration:           completed(),
	}

	for _, id := range []StageID{
		StageReviewSources,
		StageReviewTechnical,
		StageReviewScenarioGaps,
		StageReviewLegal,
		StageReviewCommunication,
	} {
		ok, err := g.IsEligible(states, id)
		require.NoError(t, err)
		assert.True(t, ok, "reviewer %s should be eligible", id)
	}
}

func TestGraph_ThirdStageWithExtraDependencyNotYetEligible(t *testing.T) {
	// A reviewer with an additional dependency on a sibling stays pending
	// until that sibling completes, even when its shared dependency is done.
	defs := Definitions()
	review := defs[StageReviewCommunication]
	review.Dependencies = []StageID{StageGeneration, StageReviewLegal}
	defs[StageReviewCommunication] = review

	g, err := NewGraph(defs)
	require.NoError(t, err)

	states := RunStates{
		StageCompletenessCheck:    completedWithVerdict(VerdictComplete),
		StageComplexityAssessment: completed(),
		StageGeneration:           completed(),
	}

	ok, err := g.IsEligible(states, StageReviewLegal)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.IsEligible(states, StageReviewCommunication)
	require.NoError(t, err)
	assert.False(t, ok)

	states[StageReviewLegal] = completed()
	ok, err = g.IsEligible(states, StageReviewCommunication)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGraph_CanEdit(t *testing.T) {
	g := NewDefaultGraph()

	states := RunStates{
		StageReviewLegal: completed(),
	}

	t.Run("completed reviewer accepted", func(t *testing.T) {
		assert.NoError(t, g.CanEdit(states, StageReviewLegal, MergeStrategySectional))
	})

	t.Run("non-reviewer rejected", func(t *testing.T) {
		assert.Error(t, g.CanEdit(states, StageGeneration, MergeStrategyMerge))
	})

	t.Run("incomplete reviewer rejected", func(t *testing.T) {
		assert.Error(t, g.CanEdit(states, StageReviewSources, MergeStrategyMerge))
	})

	t.Run("invalid strategy rejected", func(t *testing.T) {
		assert.Error(t, g.CanEdit(states, StageReviewLegal, MergeStrategy("squash")))
	})
}

func TestGraph_Ready(t *testing.T) {
	g := NewDefaultGraph()

	t.Run("fresh report", func(t *testing.T) {
		ready := g.Ready(RunStates{})
		assert.Equal(t, []StageID{StageCompletenessCheck}, ready)
	})

	t.Run("after generation", func(t *testing.T) {
		states := RunStates{
			StageCompletenessCheck:    completedWithVerdict(VerdictComplete),
			StageComplexityAssessment: completed(),
			StageGeneration:           completed(),
		}
		ready := g.Ready(states)
		assert.Contains(t, ready, StageReviewSources)
		assert.Contains(t, ready, StageReviewLegal)
		assert.Contains(t, ready, StageChangeSummary)
		assert.NotContains(t, ready, StageEditor, "on-demand stages never enter the flow")
		assert.NotContains(t, ready, StageGeneration, "completed stages are not re-run")
	})
}

func TestExpressStages_CoversPipeline(t *testing.T) {
	layers := ExpressStages()
	require.Len(t, layers, 6)
	assert.Equal(t, []StageID{StageCompletenessCheck}, layers[0])
	assert.Len(t, layers[3], 5, "all five reviewers run as one parallel layer")

	for _, layer := range layers {
		for _, id := range layer {
			def, ok := Definitions()[id]
			require.True(t, ok)
			assert.False(t, def.OnDemand)
			assert.False(t, def.RunsWhenBlocked)
		}
	}
}
