package job

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mtb-technology/reportflow/internal/events"
	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// stageOutcome is the internal result of one successful stage execution.
type stageOutcome struct {
	output         string
	usage          llm.TokenUsage
	conceptVersion int
	verdict        stage.Verdict
	duration       time.Duration
}

// executeStage runs one stage end to end: resolve, prompt, invoke, record,
// commit. Report mutations go through commit helpers that refetch under the
// commit lock, so concurrent sibling stages never clobber each other.
func (s *Scheduler) executeStage(ctx context.Context, emitter *events.Emitter, reportID types.ID, def stage.Stage) (stageOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "job.stage",
		trace.WithAttributes(
			attribute.String("stage.id", def.ID.String()),
			attribute.String("stage.type", string(def.Type)),
			attribute.String("report.id", reportID.String()),
		))
	defer span.End()

	started := time.Now()
	if err := s.commitRunning(ctx, reportID, def.ID, started); err != nil {
		return stageOutcome{}, err
	}

	fail := func(err error) (stageOutcome, error) {
		span.SetStatus(codes.Error, err.Error())
		duration := time.Since(started)
		status := stage.StageStatusError
		if ctx.Err() != nil {
			status = stage.StageStatusCancelled
		}
		s.commitFailure(reportID, def.ID, err, status)
		emitter.StageError(ctx, events.StageErrorPayload{
			StageID:   def.ID,
			Error:     err.Error(),
			Kind:      llm.KindOf(err).String(),
			Retryable: llm.IsRetryable(err),
			Duration:  duration,
		})
		s.logger.Error("stage execution failed",
			"report", reportID, "stage", def.ID, "error", err)
		return stageOutcome{}, err
	}

	r, err := s.repo.Get(ctx, reportID)
	if err != nil {
		return fail(err)
	}

	resolved, err := llm.Resolve(def, s.overrides[def.ID], s.global)
	if err != nil {
		return fail(err)
	}

	latestContent := ""
	derivedFrom := 0
	if snapshot, err := s.versions.Latest(reportID); err == nil {
		latestContent = snapshot.Content
		derivedFrom = snapshot.Version
	}

	prompt, err := s.prompts.Build(ctx, r, def, latestContent)
	if err != nil {
		return fail(err)
	}

	stageCtx := ctx
	if def.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	tokenIndex := 0
	content, err := s.invoker.Invoke(stageCtx, resolved, prompt,
		llm.WithTokenCallback(func(text string) {
			emitter.Token(ctx, def.ID, text, tokenIndex)
			tokenIndex++
		}))
	if err != nil {
		return fail(err)
	}

	duration := time.Since(started)
	outcome := stageOutcome{
		output:   content.Text,
		usage:    content.Usage,
		duration: duration,
	}

	if def.ID == stage.StageCompletenessCheck {
		outcome.verdict = s.verdictOf(content.Text)
	}

	// Generation and processor stages produce new concept versions;
	// reviewers and summaries record results without touching the chain.
	if def.ID == stage.StageGeneration || def.Type == stage.StageTypeProcessor {
		snapshot, err := s.versions.RecordSnapshot(reportID, def.ID, content.Text, derivedFrom,
			"output of stage "+def.ID.String())
		if err != nil {
			return fail(err)
		}
		outcome.conceptVersion = snapshot.Version
	}

	if err := s.commitSuccess(reportID, def, resolved, outcome); err != nil {
		return fail(err)
	}

	emitter.StageComplete(ctx, events.StageCompletePayload{
		StageID:        def.ID,
		ConceptVersion: outcome.conceptVersion,
		Duration:       duration,
		OutputLength:   len(content.Text),
	})
	span.SetAttributes(
		attribute.Int("stage.output_length", len(content.Text)),
		attribute.Int("stage.concept_version", outcome.conceptVersion),
	)
	s.logger.Info("stage completed",
		"report", reportID,
		"stage", def.ID,
		"duration", duration,
		"tokens", outcome.usage.TotalTokens)

	return outcome, nil
}

// commitRunning marks the stage running on the stored report.
func (s *Scheduler) commitRunning(ctx context.Context, reportID types.ID, stageID stage.StageID, startedAt time.Time) error {
	return s.commit(reportID, func(r *report.Report) {
		r.StageStates[stageID] = stage.RunState{
			Status:    stage.StageStatusRunning,
			StartedAt: &startedAt,
		}
		r.CurrentStage = stageID
		if r.Status == types.ReportStatusDraft {
			r.Status = types.ReportStatusProcessing
		}
	})
}

// commitFailure records the failed (or cancelled) stage on the stored report.
func (s *Scheduler) commitFailure(reportID types.ID, stageID stage.StageID, cause error, status stage.StageStatus) {
	now := time.Now()
	_ = s.commit(reportID, func(r *report.Report) {
		prev := r.StageStates.Get(stageID)
		r.StageStates[stageID] = stage.RunState{
			Status:     status,
			LastError:  cause.Error(),
			StartedAt:  prev.StartedAt,
			FinishedAt: &now,
		}
	})
}

// commitSuccess records the completed stage, its result with the resolved
// config audit copy, and the report-level status transition.
func (s *Scheduler) commitSuccess(reportID types.ID, def stage.Stage, resolved llm.ResolvedConfig, outcome stageOutcome) error {
	now := time.Now()
	return s.commit(reportID, func(r *report.Report) {
		prev := r.StageStates.Get(def.ID)
		r.StageStates[def.ID] = stage.RunState{
			Status:     stage.StageStatusCompleted,
			StartedAt:  prev.StartedAt,
			FinishedAt: &now,
			Verdict:    outcome.verdict,
		}
		r.StageResults[def.ID] = report.StageResult{
			StageID:        def.ID,
			Output:         outcome.output,
			ConceptVersion: outcome.conceptVersion,
			ResolvedConfig: resolved,
			TokenUsage:     outcome.usage,
			Duration:       outcome.duration,
			CompletedAt:    now,
		}
		if outcome.conceptVersion > 0 {
			r.LatestConceptVersion = outcome.conceptVersion
		}

		switch {
		case outcome.verdict == stage.VerdictIncomplete:
			r.Status = types.ReportStatusBlocked
		case def.ID == stage.StageExecutiveBriefing:
			r.Status = types.ReportStatusCompleted
		case r.Status == types.ReportStatusBlocked && outcome.verdict == stage.VerdictComplete:
			// A re-run completeness check lifts the gate.
			r.Status = types.ReportStatusProcessing
		}
	})
}

// commit runs a read-modify-write cycle on the stored report under the
// commit lock.
func (s *Scheduler) commit(reportID types.ID, mutate func(*report.Report)) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	ctx := context.Background()
	r, err := s.repo.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if r.StageStates == nil {
		r.StageStates = make(stage.RunStates)
	}
	if r.StageResults == nil {
		r.StageResults = make(map[stage.StageID]report.StageResult)
	}
	mutate(r)
	return s.repo.Update(ctx, r)
}
