package stage

import "time"

// StageStatus represents the execution status of a stage for one report.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusError     StageStatus = "error"
	StageStatusBlocked   StageStatus = "blocked"
	StageStatusCancelled StageStatus = "cancelled"
)

// String returns the string representation of the stage status.
func (s StageStatus) String() string {
	return string(s)
}

// IsTerminal returns true for statuses that end a stage run. A stage in
// error can be re-run, producing a fresh RunState.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageStatusCompleted, StageStatusError, StageStatusCancelled:
		return true
	default:
		return false
	}
}

// Verdict is the outcome of the completeness check. An incomplete verdict
// blocks every downstream stage until the check is re-run and passes.
type Verdict string

const (
	VerdictNone       Verdict = ""
	VerdictComplete   Verdict = "complete"
	VerdictIncomplete Verdict = "incomplete"
)

// RunState is the per-report, per-stage execution record. It is owned by
// the job scheduler and mutated only by the running job for that
// (report, stage) pair.
type RunState struct {
	Status     StageStatus `json:"status"`
	LastError  string      `json:"last_error,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`

	// Verdict is recorded only by the completeness check stage.
	Verdict Verdict `json:"verdict,omitempty"`
}

// Completed reports whether the stage finished successfully.
func (r RunState) Completed() bool {
	return r.Status == StageStatusCompleted
}

// RunStates maps stage IDs to their run state for a single report.
type RunStates map[StageID]RunState

// Get returns the run state for a stage, defaulting to pending when the
// stage has never run for this report.
func (rs RunStates) Get(id StageID) RunState {
	if rs == nil {
		return RunState{Status: StageStatusPending}
	}
	state, ok := rs[id]
	if !ok {
		return RunState{Status: StageStatusPending}
	}
	return state
}

// Verdict returns the last recorded completeness verdict, or VerdictNone
// when the check has not completed yet.
func (rs RunStates) CompletenessVerdict() Verdict {
	return rs.Get(StageCompletenessCheck).Verdict
}
