package version

import (
	"time"

	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// ConceptSnapshot is one immutable version of a report's concept document.
// Snapshots are created exclusively by the store; version numbers are
// store-assigned and never reused.
type ConceptSnapshot struct {
	Version     int           `json:"version"`
	ReportID    types.ID      `json:"report_id"`
	StageID     stage.StageID `json:"stage_id"`
	Content     string        `json:"content"`
	DerivedFrom int           `json:"derived_from,omitempty"`
	Description string        `json:"description,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// HistoryAction labels one mutation of a version chain.
type HistoryAction string

const (
	ActionRecorded HistoryAction = "recorded"
	ActionStepBack HistoryAction = "step_back"
	ActionPromoted HistoryAction = "promoted"
)

// HistoryEntry is one append-only audit record of a chain mutation.
// History is never truncated; stepping back or promoting adds entries
// rather than rewriting them.
type HistoryEntry struct {
	Action      HistoryAction `json:"action"`
	Version     int           `json:"version"`
	StageID     stage.StageID `json:"stage_id"`
	Description string        `json:"description,omitempty"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

// Chain is a read-only view of one report's concept version chain: the
// full snapshot set, the latest pointer, and the mutation history.
type Chain struct {
	ReportID  types.ID          `json:"report_id"`
	Latest    int               `json:"latest"`
	Snapshots []ConceptSnapshot `json:"snapshots"`
	History   []HistoryEntry    `json:"history"`
}
