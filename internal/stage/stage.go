package stage

import (
	"time"
)

// StageType defines the role of a pipeline stage.
type StageType string

const (
	// StageTypeGenerator produces fresh document content.
	StageTypeGenerator StageType = "generator"

	// StageTypeReviewer critiques an existing document and proposes
	// structured change proposals rather than producing fresh content.
	StageTypeReviewer StageType = "reviewer"

	// StageTypeProcessor transforms existing content on demand, e.g. the
	// editor stage that merges accepted change proposals.
	StageTypeProcessor StageType = "processor"
)

// IsValid checks if the stage type is a known value.
func (t StageType) IsValid() bool {
	switch t {
	case StageTypeGenerator, StageTypeReviewer, StageTypeProcessor:
		return true
	default:
		return false
	}
}

// ComplexityClass groups stages by the model capacity they need.
// The config resolver uses this to pick a model when neither the stage
// override nor the global default names one.
type ComplexityClass string

const (
	// ComplexityFast marks cheap check/analysis stages.
	ComplexityFast ComplexityClass = "fast"

	// ComplexityBalanced marks routine review stages.
	ComplexityBalanced ComplexityClass = "balanced"

	// ComplexityDeep marks high-capacity generation stages.
	ComplexityDeep ComplexityClass = "deep"
)

// StageID identifies a stage in the fixed pipeline definition set.
type StageID string

// The fixed stage set. The dependency table is process-wide configuration,
// not runtime state, and is not user-configurable.
const (
	StageCompletenessCheck    StageID = "completeness_check"
	StageEscalation           StageID = "escalation"
	StageComplexityAssessment StageID = "complexity_assessment"
	StageGeneration           StageID = "generation"
	StageReviewSources        StageID = "review_sources"
	StageReviewTechnical      StageID = "review_technical"
	StageReviewScenarioGaps   StageID = "review_scenario_gaps"
	StageReviewLegal          StageID = "review_legal"
	StageReviewCommunication  StageID = "review_communication"
	StageEditor               StageID = "editor"
	StageChangeSummary        StageID = "change_summary"
	StageExecutiveBriefing    StageID = "executive_briefing"
)

// String returns the string representation of the stage ID.
func (id StageID) String() string {
	return string(id)
}

// MergeStrategy describes how a processor stage's output is combined with
// the current latest snapshot.
type MergeStrategy string

const (
	MergeStrategyMerge     MergeStrategy = "merge"
	MergeStrategyAppend    MergeStrategy = "append"
	MergeStrategySectional MergeStrategy = "sectional"
	MergeStrategyReplace   MergeStrategy = "replace"
)

// IsValid checks if the merge strategy is a known value.
func (m MergeStrategy) IsValid() bool {
	switch m {
	case MergeStrategyMerge, MergeStrategyAppend, MergeStrategySectional, MergeStrategyReplace:
		return true
	default:
		return false
	}
}

// Stage is a single named step in the pipeline with a declared type and
// dependencies. Stages are definitions (configuration), never runtime state.
type Stage struct {
	ID   StageID   `json:"id" yaml:"id"`
	Type StageType `json:"type" yaml:"type"`

	// Dependencies lists stages that must have completed before this stage
	// becomes eligible.
	Dependencies []StageID `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Timeout is the per-stage execution deadline. Exceeding it surfaces as
	// a Timeout AI error at the invoker layer.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Parallel marks stages that may run concurrently with siblings that
	// share the same satisfied dependency set.
	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty"`

	// Complexity selects the default model tier for this stage.
	Complexity ComplexityClass `json:"complexity" yaml:"complexity"`

	// OnDemand marks stages outside the fixed pipeline order, invoked
	// explicitly by a caller (the editor stage).
	OnDemand bool `json:"on_demand,omitempty" yaml:"on_demand,omitempty"`

	// RunsWhenBlocked marks stages that remain eligible while the report is
	// blocked on an incomplete-input verdict (the escalation stage).
	RunsWhenBlocked bool `json:"runs_when_blocked,omitempty" yaml:"runs_when_blocked,omitempty"`
}

// Definitions returns the fixed, process-wide stage definition table.
//
// Pipeline order: completeness check gates everything downstream; the
// escalation stage runs only while the report is blocked on an "incomplete"
// verdict; the five reviewer stages all hang off generation and carry no
// ordering among themselves; the editor is on-demand; summary and briefing
// stages close out a reviewed concept.
func Definitions() map[StageID]Stage {
	return map[StageID]Stage{
		StageCompletenessCheck: {
			ID:         StageCompletenessCheck,
			Type:       StageTypeGenerator,
			Timeout:    2 * time.Minute,
			Complexity: ComplexityFast,
		},
		StageEscalation: {
			ID:              StageEscalation,
			Type:            StageTypeGenerator,
			Dependencies:    []StageID{StageCompletenessCheck},
			Timeout:         2 * time.Minute,
			Complexity:      ComplexityFast,
			RunsWhenBlocked: true,
		},
		StageComplexityAssessment: {
			ID:           StageComplexityAssessment,
			Type:         StageTypeGenerator,
			Dependencies: []StageID{StageCompletenessCheck},
			Timeout:      3 * time.Minute,
			Complexity:   ComplexityFast,
		},
		StageGeneration: {
			ID:           StageGeneration,
			Type:         StageTypeGenerator,
			Dependencies: []StageID{StageComplexityAssessment},
			Timeout:      10 * time.Minute,
			Complexity:   ComplexityDeep,
		},
		StageReviewSources: {
			ID:           StageReviewSources,
			Type:         StageTypeReviewer,
			Dependencies: []StageID{StageGeneration},
			Timeout:      5 * time.Minute,
			Parallel:     true,
			Complexity:   ComplexityBalanced,
		},
		StageReviewTechnical: {
			ID:           StageReviewTechnical,
			Type:         StageTypeReviewer,
			Dependencies: []StageID{StageGeneration},
			Timeout:      5 * time.Minute,
			Parallel:     true,
			Complexity:   ComplexityBalanced,
		},
		StageReviewScenarioGaps: {
			ID:           StageReviewScenarioGaps,
			Type:         StageTypeReviewer,
			Dependencies: []StageID{StageGeneration},
			Timeout:      5 * time.Minute,
			Parallel:     true,
			Complexity:   ComplexityBalanced,
		},
		StageReviewLegal: {
			ID:           StageReviewLegal,
			Type:         StageTypeReviewer,
			Dependencies: []StageID{StageGeneration},
			Timeout:      5 * time.Minute,
			Parallel:     true,
			Complexity:   ComplexityBalanced,
		},
		StageReviewCommunication: {
			ID:           StageReviewCommunication,
			Type:         StageTypeReviewer,
			Dependencies: []StageID{StageGeneration},
			Timeout:      5 * time.Minute,
			Parallel:     true,
			Complexity:   ComplexityBalanced,
		},
		StageEditor: {
			ID:         StageEditor,
			Type:       StageTypeProcessor,
			Timeout:    5 * time.Minute,
			Complexity: ComplexityDeep,
			OnDemand:   true,
		},
		StageChangeSummary: {
			ID:           StageChangeSummary,
			Type:         StageTypeGenerator,
			Dependencies: []StageID{StageGeneration},
			Timeout:      3 * time.Minute,
			Complexity:   ComplexityFast,
		},
		StageExecutiveBriefing: {
			ID:           StageExecutiveBriefing,
			Type:         StageTypeGenerator,
			Dependencies: []StageID{StageGeneration},
			Timeout:      3 * time.Minute,
			Complexity:   ComplexityBalanced,
		},
	}
}
