package report

import (
	"time"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// Report is the central pipeline record: the dossier being worked on, the
// per-stage execution state, and pointers into the concept version chain.
type Report struct {
	ID     types.ID           `json:"id"`
	Title  string             `json:"title"`
	Status types.ReportStatus `json:"status"`

	// DossierData is the structured input the pipeline works from. Its
	// internal shape is owned by the callers; the pipeline treats it as an
	// opaque document handed to the prompt builder.
	DossierData map[string]any `json:"dossier_data,omitempty"`

	// CurrentStage is the last stage a job ran for this report.
	CurrentStage stage.StageID `json:"current_stage,omitempty"`

	// StageStates holds the per-stage run state for eligibility decisions.
	StageStates stage.RunStates `json:"stage_states,omitempty"`

	// StageResults records each completed stage's output by stage ID.
	StageResults map[stage.StageID]StageResult `json:"stage_results,omitempty"`

	// LatestConceptVersion mirrors the version store's latest pointer for
	// quick display; the store remains authoritative.
	LatestConceptVersion int `json:"latest_concept_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageResult is one stage's recorded outcome, including the resolved
// configuration used for the invocation. The config copy is an audit
// trail only; resolution always recomputes from current layers.
type StageResult struct {
	StageID        stage.StageID      `json:"stage_id"`
	Output         string             `json:"output"`
	ConceptVersion int                `json:"concept_version,omitempty"`
	ResolvedConfig llm.ResolvedConfig `json:"resolved_config"`
	TokenUsage     llm.TokenUsage     `json:"token_usage"`
	Duration       time.Duration      `json:"duration"`
	CompletedAt    time.Time          `json:"completed_at"`
}

// New creates a draft report with a fresh ID.
func New(title string, dossier map[string]any) *Report {
	now := time.Now()
	return &Report{
		ID:           types.NewID(),
		Title:        title,
		Status:       types.ReportStatusDraft,
		DossierData:  dossier,
		StageStates:  make(stage.RunStates),
		StageResults: make(map[stage.StageID]StageResult),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Blocked reports whether the report is gated on an incomplete verdict.
func (r *Report) Blocked() bool {
	return r.StageStates.CompletenessVerdict() == stage.VerdictIncomplete
}
