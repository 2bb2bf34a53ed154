package events

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// Emitter publishes events for a single job, assigning the per-job
// monotonically increasing sequence number at publish time. It also
// enforces the non-decreasing percentage guarantee: a progress value lower
// than one already published is raised to the published maximum.
//
// All methods are safe for concurrent use by the sibling stages of an
// express job; the sequence mutex is the ordering point.
type Emitter struct {
	bus      EventBus
	jobID    types.ID
	reportID types.ID

	mu         sync.Mutex
	seq        int64
	maxPercent float64
	terminal   bool
}

// NewEmitter creates an emitter for one job's event stream.
func NewEmitter(bus EventBus, jobID, reportID types.ID) *Emitter {
	return &Emitter{
		bus:      bus,
		jobID:    jobID,
		reportID: reportID,
	}
}

// emit assigns the next sequence number and publishes. The mutex is held
// through Publish (which never blocks) so subscribers observe sequence
// numbers in delivery order. Events after a terminal event are suppressed
// so a stream never carries late duplicates.
func (e *Emitter) emit(ctx context.Context, eventType EventType, payload any) {
	if e == nil || e.bus == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(ctx, eventType, payload)
}

// emitLocked publishes with the next sequence number. Must be called with
// e.mu held.
func (e *Emitter) emitLocked(ctx context.Context, eventType EventType, payload any) {
	if e.terminal {
		return
	}
	if eventType.IsTerminal() {
		e.terminal = true
	}
	e.seq++
	_ = e.bus.Publish(ctx, Event{
		Type:      eventType,
		JobID:     e.jobID,
		ReportID:  e.reportID,
		Sequence:  e.seq,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// Progress publishes a job.progress event. The percentage never decreases
// across the job's stream; a lower value is clamped up to the running max.
// Clamp and publish share one critical section so a later-sequence event
// can never carry a lower percentage.
func (e *Emitter) Progress(ctx context.Context, current stage.StageID, percentage float64, message string) {
	if e == nil || e.bus == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	clamped := math.Max(percentage, e.maxPercent)
	e.maxPercent = clamped
	e.emitLocked(ctx, EventProgress, ProgressPayload{
		CurrentStage: current,
		Percentage:   clamped,
		Message:      message,
	})
}

// Token publishes one streamed output increment.
func (e *Emitter) Token(ctx context.Context, stageID stage.StageID, text string, index int) {
	e.emit(ctx, EventToken, TokenPayload{StageID: stageID, Text: text, Index: index})
}

// StageComplete publishes a job.stage_complete event.
func (e *Emitter) StageComplete(ctx context.Context, payload StageCompletePayload) {
	e.emit(ctx, EventStageComplete, payload)
}

// StageError publishes a job.stage_error event.
func (e *Emitter) StageError(ctx context.Context, payload StageErrorPayload) {
	e.emit(ctx, EventStageError, payload)
}

// Cancelled publishes the terminal job.cancelled event.
func (e *Emitter) Cancelled(ctx context.Context, payload CancelledPayload) {
	e.emit(ctx, EventCancelled, payload)
}

// JobComplete publishes the terminal job.complete event.
func (e *Emitter) JobComplete(ctx context.Context, payload JobCompletePayload) {
	e.emit(ctx, EventJobComplete, payload)
}
