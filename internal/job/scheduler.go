package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mtb-technology/reportflow/internal/events"
	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
	"github.com/mtb-technology/reportflow/internal/version"
)

// VerdictFunc derives the completeness verdict from the check stage's
// output text.
type VerdictFunc func(output string) stage.Verdict

// defaultVerdict treats any output leading with an INCOMPLETE marker as an
// incomplete verdict; everything else passes.
func defaultVerdict(output string) stage.Verdict {
	trimmed := strings.ToUpper(strings.TrimSpace(output))
	if strings.HasPrefix(trimmed, "INCOMPLETE") {
		return stage.VerdictIncomplete
	}
	return stage.VerdictComplete
}

// Scheduler runs pipeline stages as asynchronous jobs. All collaborators
// are injected at construction; the scheduler holds no global state and
// owns the lifecycle of every job it creates.
type Scheduler struct {
	graph    *stage.Graph
	repo     report.Repository
	invoker  *llm.Invoker
	versions *version.Store
	bus      events.EventBus
	prompts  PromptBuilder

	global    *llm.ConfigLayer
	overrides map[stage.StageID]*llm.ConfigLayer

	logger      *slog.Logger
	tracer      trace.Tracer
	maxParallel int
	verdictOf   VerdictFunc

	mu   sync.Mutex
	jobs map[types.ID]*jobHandle

	// commitMu serializes report read-modify-write cycles so concurrent
	// sibling stages never lose each other's results.
	commitMu sync.Mutex
}

type jobHandle struct {
	job    *Job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption is a functional option for configuring a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger configures the scheduler's structured logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer configures the OpenTelemetry tracer for stage spans.
func WithTracer(tracer trace.Tracer) SchedulerOption {
	return func(s *Scheduler) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMaxParallel bounds how many sibling stages an express job runs
// concurrently. Default: 3.
func WithMaxParallel(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithGlobalConfig sets the global default AI configuration layer.
func WithGlobalConfig(layer *llm.ConfigLayer) SchedulerOption {
	return func(s *Scheduler) {
		s.global = layer
	}
}

// WithStageOverrides sets per-stage AI configuration overrides.
func WithStageOverrides(overrides map[stage.StageID]*llm.ConfigLayer) SchedulerOption {
	return func(s *Scheduler) {
		s.overrides = overrides
	}
}

// WithVerdictFunc replaces the completeness-verdict derivation.
func WithVerdictFunc(fn VerdictFunc) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.verdictOf = fn
		}
	}
}

// NewScheduler creates a scheduler with the given collaborators.
func NewScheduler(graph *stage.Graph, repo report.Repository, invoker *llm.Invoker, versions *version.Store, bus events.EventBus, prompts PromptBuilder, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		graph:       graph,
		repo:        repo,
		invoker:     invoker,
		versions:    versions,
		bus:         bus,
		prompts:     prompts,
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer("job"),
		maxParallel: 3,
		verdictOf:   defaultVerdict,
		jobs:        make(map[types.ID]*jobHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunStage starts an asynchronous job executing one stage for a report.
// Eligibility is checked synchronously; the invocation itself runs in the
// background and reports through the event bus.
func (s *Scheduler) RunStage(ctx context.Context, reportID types.ID, stageID stage.StageID) (*Job, error) {
	r, err := s.repo.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}

	def, err := s.graph.Stage(stageID)
	if err != nil {
		return nil, err
	}
	if def.OnDemand {
		return nil, types.NewError(types.STAGE_NOT_ELIGIBLE,
			fmt.Sprintf("stage %s is on-demand; use RunEditor", stageID))
	}

	eligible, err := s.graph.IsEligible(r.StageStates, stageID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		if blocked := s.graph.BlockedReason(r.StageStates); blocked != nil && !def.RunsWhenBlocked {
			return nil, types.NewError(types.REPORT_BLOCKED, blocked.Reason)
		}
		return nil, types.NewError(types.STAGE_NOT_ELIGIBLE,
			fmt.Sprintf("stage %s is not eligible: unmet dependencies", stageID))
	}

	handle := s.newJob(TypeSingleStage, reportID, func(j *Job) {
		j.StageID = stageID
		j.Progress.SubStages = map[stage.StageID]stage.StageStatus{stageID: stage.StageStatusPending}
	})

	go s.runSingleStage(handle, def)
	return handle.job.clone(), nil
}

// RunExpress starts an asynchronous job executing the full pipeline in
// ordered layers, sibling reviewers concurrently.
func (s *Scheduler) RunExpress(ctx context.Context, reportID types.ID) (*Job, error) {
	if _, err := s.repo.Get(ctx, reportID); err != nil {
		return nil, err
	}

	layers := stage.ExpressStages()
	handle := s.newJob(TypeExpress, reportID, func(j *Job) {
		j.Progress.SubStages = make(map[stage.StageID]stage.StageStatus)
		for _, layer := range layers {
			for _, id := range layer {
				j.Progress.SubStages[id] = stage.StageStatusPending
			}
		}
	})

	go s.runExpress(handle, layers)
	return handle.job.clone(), nil
}

// RunEditor starts an asynchronous on-demand editor job against a
// completed reviewer's output with the given merge strategy.
func (s *Scheduler) RunEditor(ctx context.Context, reportID types.ID, reviewerID stage.StageID, strategy stage.MergeStrategy) (*Job, error) {
	r, err := s.repo.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := s.graph.CanEdit(r.StageStates, reviewerID, strategy); err != nil {
		return nil, err
	}

	def, err := s.graph.Stage(stage.StageEditor)
	if err != nil {
		return nil, err
	}

	handle := s.newJob(TypeEdit, reportID, func(j *Job) {
		j.StageID = stage.StageEditor
		j.ReviewerID = reviewerID
		j.Strategy = strategy
		j.Progress.SubStages = map[stage.StageID]stage.StageStatus{stage.StageEditor: stage.StageStatusPending}
	})

	go s.runSingleStage(handle, def)
	return handle.job.clone(), nil
}

// Cancel requests cooperative cancellation of a running job. Terminal jobs
// cannot be cancelled.
func (s *Scheduler) Cancel(jobID types.ID) error {
	s.mu.Lock()
	handle, exists := s.jobs[jobID]
	if !exists {
		s.mu.Unlock()
		return types.NewError(types.JOB_NOT_FOUND, fmt.Sprintf("job %s not found", jobID))
	}
	if handle.job.Status.IsTerminal() {
		s.mu.Unlock()
		return types.NewError(types.JOB_TERMINAL,
			fmt.Sprintf("job %s is already %s", jobID, handle.job.Status))
	}
	s.mu.Unlock()

	handle.cancel()
	return nil
}

// Get returns a copy of the job's current state.
func (s *Scheduler) Get(jobID types.ID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, exists := s.jobs[jobID]
	if !exists {
		return nil, types.NewError(types.JOB_NOT_FOUND, fmt.Sprintf("job %s not found", jobID))
	}
	return handle.job.clone(), nil
}

// List returns copies of all tracked jobs.
func (s *Scheduler) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, handle := range s.jobs {
		out = append(out, handle.job.clone())
	}
	return out
}

// Wait blocks until the job finishes. Primarily for tests and the CLI.
func (s *Scheduler) Wait(jobID types.ID) error {
	s.mu.Lock()
	handle, exists := s.jobs[jobID]
	s.mu.Unlock()
	if !exists {
		return types.NewError(types.JOB_NOT_FOUND, fmt.Sprintf("job %s not found", jobID))
	}
	<-handle.done
	return nil
}

func (s *Scheduler) newJob(jobType Type, reportID types.ID, init func(*Job)) *jobHandle {
	ctx, cancel := context.WithCancel(context.Background())

	j := &Job{
		ID:        types.NewID(),
		Type:      jobType,
		ReportID:  reportID,
		Status:    types.JobStatusQueued,
		CreatedAt: time.Now(),
	}
	if init != nil {
		init(j)
	}

	handle := &jobHandle{
		job:    j,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[j.ID] = handle
	s.mu.Unlock()
	return handle
}

// mutate applies fn to the job under the scheduler lock. Terminal jobs are
// never mutated again.
func (s *Scheduler) mutate(handle *jobHandle, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle.job.Status.IsTerminal() {
		return
	}
	fn(handle.job)
}

func (s *Scheduler) markProcessing(handle *jobHandle) {
	now := time.Now()
	s.mutate(handle, func(j *Job) {
		j.Status = types.JobStatusProcessing
		j.StartedAt = &now
	})
}

func (s *Scheduler) finish(handle *jobHandle, status types.JobStatus, result *Result, errMsg string) {
	now := time.Now()
	s.mutate(handle, func(j *Job) {
		j.Status = status
		j.Result = result
		j.Error = errMsg
		j.FinishedAt = &now
		if status == types.JobStatusCompleted {
			j.Progress.Percentage = 100
		}
	})
	close(handle.done)
}

// setSubStage updates one stage's sub-status and recomputes the job
// percentage as the mean of per-stage fractions (pending 0, running 0.5,
// completed 1).
func (s *Scheduler) setSubStage(handle *jobHandle, id stage.StageID, status stage.StageStatus) {
	s.mutate(handle, func(j *Job) {
		if j.Progress.SubStages == nil {
			j.Progress.SubStages = make(map[stage.StageID]stage.StageStatus)
		}
		j.Progress.SubStages[id] = status
		if status == stage.StageStatusRunning {
			j.Progress.CurrentStage = id
		}

		total := len(j.Progress.SubStages)
		if total == 0 {
			return
		}
		sum := 0.0
		for _, st := range j.Progress.SubStages {
			switch st {
			case stage.StageStatusRunning:
				sum += 0.5
			case stage.StageStatusCompleted:
				sum += 1.0
			}
		}
		pct := sum / float64(total) * 100
		if pct > j.Progress.Percentage {
			j.Progress.Percentage = pct
		}
	})
}

func (s *Scheduler) percentage(handle *jobHandle) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return handle.job.Progress.Percentage
}

// runSingleStage executes one stage (or the on-demand editor) for a job.
func (s *Scheduler) runSingleStage(handle *jobHandle, def stage.Stage) {
	ctx := handle.ctx
	s.markProcessing(handle)

	emitter := events.NewEmitter(s.bus, handle.job.ID, handle.job.ReportID)
	emitter.Progress(ctx, def.ID, 0, "stage starting")
	s.setSubStage(handle, def.ID, stage.StageStatusRunning)
	emitter.Progress(ctx, def.ID, s.percentage(handle), "stage running")

	outcome, err := s.executeStage(ctx, emitter, handle.job.ReportID, def)
	if err != nil {
		if ctx.Err() != nil {
			s.setSubStage(handle, def.ID, stage.StageStatusCancelled)
			emitter.Cancelled(ctx, events.CancelledPayload{AbortedStages: []stage.StageID{def.ID}})
			s.finish(handle, types.JobStatusCancelled, nil, "job cancelled")
			return
		}
		s.setSubStage(handle, def.ID, stage.StageStatusError)
		emitter.JobComplete(ctx, events.JobCompletePayload{
			Success:      false,
			FailedStages: []stage.StageID{def.ID},
			Error:        err.Error(),
		})
		s.finish(handle, types.JobStatusFailed, &Result{FailedStages: []stage.StageID{def.ID}}, err.Error())
		return
	}

	s.setSubStage(handle, def.ID, stage.StageStatusCompleted)
	emitter.Progress(ctx, def.ID, 100, "stage completed")

	result := &Result{
		CompletedStages: []stage.StageID{def.ID},
		ConceptVersion:  outcome.conceptVersion,
		Summary:         fmt.Sprintf("stage %s completed in %s", def.ID, outcome.duration.Round(time.Millisecond)),
	}
	emitter.JobComplete(ctx, events.JobCompletePayload{
		Success:         true,
		Duration:        outcome.duration,
		CompletedStages: []stage.StageID{def.ID},
		Summary:         result.Summary,
	})
	s.finish(handle, types.JobStatusCompleted, result, "")
}

// runExpress executes the full pipeline in ordered layers. Sibling stages
// in a layer run concurrently, bounded by maxParallel. Cancellation aborts
// every not-yet-started sub-stage; a stage whose provider call already
// returned success is committed normally.
func (s *Scheduler) runExpress(handle *jobHandle, layers [][]stage.StageID) {
	ctx := handle.ctx
	s.markProcessing(handle)

	emitter := events.NewEmitter(s.bus, handle.job.ID, handle.job.ReportID)
	emitter.Progress(ctx, "", 0, "express pipeline starting")

	started := time.Now()
	var completed, failed []stage.StageID
	var resultMu sync.Mutex

	blocked := false
	failedOut := false

layerLoop:
	for _, layer := range layers {
		if ctx.Err() != nil || blocked || failedOut {
			break layerLoop
		}

		sem := make(chan struct{}, s.maxParallel)
		var wg sync.WaitGroup

		for _, id := range layer {
			if ctx.Err() != nil {
				break
			}

			def, err := s.graph.Stage(id)
			if err != nil {
				resultMu.Lock()
				failed = append(failed, id)
				failedOut = true
				resultMu.Unlock()
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(def stage.Stage) {
				defer wg.Done()
				defer func() { <-sem }()

				s.setSubStage(handle, def.ID, stage.StageStatusRunning)
				emitter.Progress(ctx, def.ID, s.percentage(handle), fmt.Sprintf("stage %s running", def.ID))

				outcome, err := s.executeStage(ctx, emitter, handle.job.ReportID, def)

				resultMu.Lock()
				defer resultMu.Unlock()
				if err != nil {
					if ctx.Err() != nil {
						s.setSubStage(handle, def.ID, stage.StageStatusCancelled)
						return
					}
					s.setSubStage(handle, def.ID, stage.StageStatusError)
					failed = append(failed, def.ID)
					failedOut = true
					return
				}

				s.setSubStage(handle, def.ID, stage.StageStatusCompleted)
				completed = append(completed, def.ID)
				if outcome.verdict == stage.VerdictIncomplete {
					blocked = true
				}
				emitter.Progress(ctx, def.ID, s.percentage(handle), fmt.Sprintf("stage %s completed", def.ID))
			}(def)
		}
		wg.Wait()
	}

	// An incomplete verdict gates every remaining layer. Escalation runs
	// while the gate is down and drafts the client message listing the
	// missing information before the job ends.
	if blocked && !failedOut && ctx.Err() == nil {
		if def, err := s.graph.Stage(stage.StageEscalation); err == nil {
			s.setSubStage(handle, def.ID, stage.StageStatusRunning)
			emitter.Progress(ctx, def.ID, s.percentage(handle), "escalation running")

			if _, err := s.executeStage(ctx, emitter, handle.job.ReportID, def); err != nil {
				if ctx.Err() != nil {
					s.setSubStage(handle, def.ID, stage.StageStatusCancelled)
				} else {
					s.setSubStage(handle, def.ID, stage.StageStatusError)
					failed = append(failed, def.ID)
					failedOut = true
				}
			} else {
				s.setSubStage(handle, def.ID, stage.StageStatusCompleted)
				completed = append(completed, def.ID)
			}
		}
	}

	duration := time.Since(started)
	aborted := s.abortPending(handle)

	switch {
	case ctx.Err() != nil:
		emitter.Cancelled(ctx, events.CancelledPayload{
			CompletedStages: completed,
			AbortedStages:   aborted,
		})
		s.finish(handle, types.JobStatusCancelled, &Result{
			CompletedStages: completed,
			AbortedStages:   aborted,
			Summary:         fmt.Sprintf("cancelled after %d of %d stages", len(completed), len(handle.job.Progress.SubStages)),
		}, "job cancelled")

	case failedOut:
		summary := fmt.Sprintf("%d stages completed, %d failed", len(completed), len(failed))
		emitter.JobComplete(ctx, events.JobCompletePayload{
			Success:         false,
			Duration:        duration,
			CompletedStages: completed,
			FailedStages:    failed,
			Summary:         summary,
		})
		s.finish(handle, types.JobStatusFailed, &Result{
			CompletedStages: completed,
			FailedStages:    failed,
			AbortedStages:   aborted,
			Summary:         summary,
		}, fmt.Sprintf("stage %s failed", failed[0]))

	case blocked:
		summary := "report blocked awaiting missing client information"
		emitter.JobComplete(ctx, events.JobCompletePayload{
			Success:         true,
			Duration:        duration,
			CompletedStages: completed,
			Summary:         summary,
		})
		s.finish(handle, types.JobStatusCompleted, &Result{
			CompletedStages: completed,
			AbortedStages:   aborted,
			Summary:         summary,
		}, "")

	default:
		summary := fmt.Sprintf("%d stages completed in %s", len(completed), duration.Round(time.Second))
		emitter.JobComplete(ctx, events.JobCompletePayload{
			Success:         true,
			Duration:        duration,
			CompletedStages: completed,
			Summary:         summary,
		})
		s.finish(handle, types.JobStatusCompleted, &Result{
			CompletedStages: completed,
			Summary:         summary,
		}, "")
	}
}

// abortPending marks every still-pending sub-stage cancelled and returns
// their IDs.
func (s *Scheduler) abortPending(handle *jobHandle) []stage.StageID {
	var aborted []stage.StageID
	s.mutate(handle, func(j *Job) {
		for id, st := range j.Progress.SubStages {
			if st == stage.StageStatusPending {
				j.Progress.SubStages[id] = stage.StageStatusCancelled
				aborted = append(aborted, id)
			}
		}
	})
	return aborted
}
