package types

// JobStatus represents the lifecycle status of an asynchronous job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid checks if the job status is a known value.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status represents a terminal state.
// A job in a terminal state is immutable and not reusable.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ReportStatus represents the overall processing status of a report.
type ReportStatus string

const (
	ReportStatusDraft      ReportStatus = "draft"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusBlocked    ReportStatus = "blocked"
	ReportStatusCompleted  ReportStatus = "completed"
)

// String returns the string representation of the report status.
func (s ReportStatus) String() string {
	return string(s)
}

// IsValid checks if the report status is a known value.
func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusDraft, ReportStatusProcessing, ReportStatusBlocked,
		ReportStatusCompleted:
		return true
	default:
		return false
	}
}
