package events

import (
	"time"

	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// EventType identifies the category of a job event.
type EventType string

// Job lifecycle events, emitted in occurrence order per job.
const (
	EventProgress      EventType = "job.progress"
	EventToken         EventType = "job.token"
	EventStageComplete EventType = "job.stage_complete"
	EventStageError    EventType = "job.stage_error"
	EventCancelled     EventType = "job.cancelled"
	EventJobComplete   EventType = "job.complete"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsTerminal reports whether the event type ends a job's event stream.
func (t EventType) IsTerminal() bool {
	return t == EventCancelled || t == EventJobComplete
}

// Event is one observability event for a job. Sequence numbers are assigned
// per job, monotonically increasing in occurrence order; consumers may see
// gaps (slow-subscriber drops) but never reordering from a single publisher.
type Event struct {
	Type      EventType `json:"type"`
	JobID     types.ID  `json:"job_id"`
	ReportID  types.ID  `json:"report_id,omitempty"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// TraceID and SpanID correlate the event with OpenTelemetry traces.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	// Payload contains event-specific typed data.
	Payload any `json:"payload,omitempty"`
}

// Filter defines subscription criteria. All fields use AND logic; empty
// fields act as wildcards.
type Filter struct {
	Types []EventType `json:"types,omitempty"`
	JobID types.ID    `json:"job_id,omitempty"`
}

// Matches determines whether the event satisfies every non-empty criterion.
func (f *Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.JobID != "" && event.JobID != f.JobID {
		return false
	}

	return true
}

// ProgressPayload contains data for job.progress events. Percentage is
// non-decreasing over a job's lifetime.
type ProgressPayload struct {
	CurrentStage stage.StageID `json:"current_stage,omitempty"`
	Percentage   float64       `json:"percentage"`
	Message      string        `json:"message,omitempty"`
}

// TokenPayload contains one streamed output increment.
type TokenPayload struct {
	StageID stage.StageID `json:"stage_id"`
	Text    string        `json:"text"`
	Index   int           `json:"index"`
}

// StageCompletePayload contains data for job.stage_complete events.
type StageCompletePayload struct {
	StageID        stage.StageID `json:"stage_id"`
	ConceptVersion int           `json:"concept_version,omitempty"`
	Duration       time.Duration `json:"duration"`
	OutputLength   int           `json:"output_length"`
}

// StageErrorPayload contains data for job.stage_error events.
type StageErrorPayload struct {
	StageID   stage.StageID `json:"stage_id"`
	Error     string        `json:"error"`
	Kind      string        `json:"kind,omitempty"`
	Retryable bool          `json:"retryable"`
	Duration  time.Duration `json:"duration"`
}

// CancelledPayload contains data for job.cancelled events.
type CancelledPayload struct {
	CompletedStages []stage.StageID `json:"completed_stages,omitempty"`
	AbortedStages   []stage.StageID `json:"aborted_stages,omitempty"`
}

// JobCompletePayload contains data for job.complete events.
type JobCompletePayload struct {
	Success         bool            `json:"success"`
	Duration        time.Duration   `json:"duration"`
	CompletedStages []stage.StageID `json:"completed_stages,omitempty"`
	FailedStages    []stage.StageID `json:"failed_stages,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	Error           string          `json:"error,omitempty"`
}
