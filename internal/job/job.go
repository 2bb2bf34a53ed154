package job

import (
	"time"

	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// Type identifies what a job executes.
type Type string

const (
	// TypeSingleStage runs one pipeline stage for a report.
	TypeSingleStage Type = "single_stage"

	// TypeExpress runs the full pipeline end to end in ordered layers.
	TypeExpress Type = "express"

	// TypeEdit runs the on-demand editor against a completed reviewer.
	TypeEdit Type = "edit"
)

// Progress is the externally visible execution state of a job. The
// percentage is the mean of per-stage fractions and never decreases.
type Progress struct {
	CurrentStage stage.StageID                   `json:"current_stage,omitempty"`
	Percentage   float64                         `json:"percentage"`
	SubStages    map[stage.StageID]stage.StageStatus `json:"sub_stages,omitempty"`
}

// Result is the aggregated outcome of a finished job.
type Result struct {
	CompletedStages []stage.StageID `json:"completed_stages,omitempty"`
	FailedStages    []stage.StageID `json:"failed_stages,omitempty"`
	AbortedStages   []stage.StageID `json:"aborted_stages,omitempty"`
	ConceptVersion  int             `json:"concept_version,omitempty"`
	Summary         string          `json:"summary,omitempty"`
}

// Job is one asynchronous unit of pipeline work. Once a job reaches a
// terminal status it is immutable and cannot be restarted; callers create
// a new job instead.
type Job struct {
	ID       types.ID        `json:"id"`
	Type     Type            `json:"type"`
	ReportID types.ID        `json:"report_id"`
	Status   types.JobStatus `json:"status"`

	// StageID is the target stage for single-stage and edit jobs.
	StageID stage.StageID `json:"stage_id,omitempty"`

	// ReviewerID and Strategy apply to edit jobs only.
	ReviewerID stage.StageID       `json:"reviewer_id,omitempty"`
	Strategy   stage.MergeStrategy `json:"strategy,omitempty"`

	Progress Progress `json:"progress"`
	Result   *Result  `json:"result,omitempty"`
	Error    string   `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// clone returns a deep copy safe to hand to callers.
func (j *Job) clone() *Job {
	dup := *j
	if j.Progress.SubStages != nil {
		dup.Progress.SubStages = make(map[stage.StageID]stage.StageStatus, len(j.Progress.SubStages))
		for k, v := range j.Progress.SubStages {
			dup.Progress.SubStages[k] = v
		}
	}
	if j.Result != nil {
		result := *j.Result
		dup.Result = &result
	}
	return &dup
}
