package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtb-technology/reportflow/internal/events"
	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/llm/providers"
	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
	"github.com/mtb-technology/reportflow/internal/version"
)

// testEnv wires a scheduler with in-memory collaborators around the given
// provider, registered under the google provider name so default model
// resolution routes to it.
type testEnv struct {
	scheduler *Scheduler
	repo      *report.MemoryRepository
	versions  *version.Store
	bus       *events.DefaultEventBus
}

func newTestEnv(t *testing.T, provider llm.Provider, opts ...SchedulerOption) *testEnv {
	t.Helper()

	registry := llm.NewRegistry()
	require.NoError(t, registry.Register(provider))

	invoker := llm.NewInvoker(registry, llm.NewCircuitBreaker(llm.DefaultBreakerConfig()),
		llm.WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1}))

	repo := report.NewMemoryRepository()
	versions := version.NewStore()
	bus := events.NewEventBus()
	t.Cleanup(func() { bus.Close() })

	prompts := PromptBuilderFunc(func(ctx context.Context, r *report.Report, def stage.Stage, latest string) (string, error) {
		return "prompt for " + def.ID.String(), nil
	})

	scheduler := NewScheduler(stage.NewDefaultGraph(), repo, invoker, versions, bus, prompts, opts...)
	return &testEnv{scheduler: scheduler, repo: repo, versions: versions, bus: bus}
}

func (e *testEnv) createReport(t *testing.T) *report.Report {
	t.Helper()
	r := report.New("advisory report", map[string]any{"client": "acme"})
	require.NoError(t, e.repo.Create(context.Background(), r))
	return r
}

func (e *testEnv) subscribe(t *testing.T, jobID types.ID) <-chan events.Event {
	t.Helper()
	ch, cleanup := e.bus.Subscribe(context.Background(), events.Filter{JobID: jobID}, 200)
	t.Cleanup(cleanup)
	return ch
}

func drainEvents(ch <-chan events.Event) []events.Event {
	var got []events.Event
	for {
		select {
		case event := <-ch:
			got = append(got, event)
		case <-time.After(100 * time.Millisecond):
			return got
		}
	}
}

func googleMock(responses ...string) *providers.MockProvider {
	return providers.NewMockProvider(responses...).WithName("google")
}

func TestRunStageCompletes(t *testing.T) {
	env := newTestEnv(t, googleMock("COMPLETE: all required dossier fields present"))
	r := env.createReport(t)

	j, err := env.scheduler.RunStage(context.Background(), r.ID, stage.StageCompletenessCheck)
	require.NoError(t, err)
	ch := env.subscribe(t, j.ID)
	require.NoError(t, env.scheduler.Wait(j.ID))

	finished, err := env.scheduler.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, finished.Status)
	assert.Equal(t, 100.0, finished.Progress.Percentage)
	require.NotNil(t, finished.Result)
	assert.Equal(t, []stage.StageID{stage.StageCompletenessCheck}, finished.Result.CompletedStages)

	stored, err := env.repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	state := stored.StageStates.Get(stage.StageCompletenessCheck)
	assert.Equal(t, stage.StageStatusCompleted, state.Status)
	assert.Equal(t, stage.VerdictComplete, state.Verdict)

	result := stored.StageResults[stage.StageCompletenessCheck]
	assert.Contains(t, result.Output, "COMPLETE")
	assert.Equal(t, "gemini-2.5-flash", result.ResolvedConfig.Model, "audit copy of resolved config")

	got := drainEvents(ch)
	require.NotEmpty(t, got)
	assert.Equal(t, events.EventJobComplete, got[len(got)-1].Type)
}

func TestRunStageIneligibleDependencies(t *testing.T) {
	env := newTestEnv(t, googleMock("output"))
	r := env.createReport(t)

	_, err := env.scheduler.RunStage(context.Background(), r.ID, stage.StageGeneration)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.STAGE_NOT_ELIGIBLE, "")))
}

func TestRunStageUnknownReport(t *testing.T) {
	env := newTestEnv(t, googleMock("output"))

	_, err := env.scheduler.RunStage(context.Background(), types.NewID(), stage.StageCompletenessCheck)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.REPORT_NOT_FOUND, "")))
}

func TestIncompleteVerdictBlocksDownstreamButNotEscalation(t *testing.T) {
	env := newTestEnv(t, googleMock("INCOMPLETE: salary data missing from dossier"))
	r := env.createReport(t)

	j, err := env.scheduler.RunStage(context.Background(), r.ID, stage.StageCompletenessCheck)
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Wait(j.ID))

	stored, err := env.repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusBlocked, stored.Status)

	// Downstream stages are gated.
	_, err = env.scheduler.RunStage(context.Background(), r.ID, stage.StageComplexityAssessment)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.REPORT_BLOCKED, "")))

	// The escalation stage runs exactly while the gate is down.
	escJob, err := env.scheduler.RunStage(context.Background(), r.ID, stage.StageEscalation)
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Wait(escJob.ID))

	finished, err := env.scheduler.Get(escJob.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, finished.Status)
}

func TestGateLiftsAfterCompletenessRerun(t *testing.T) {
	mock := googleMock("INCOMPLETE: missing data").RespondWith("COMPLETE: resubmitted dossier is sufficient")
	env := newTestEnv(t, mock)
	r := env.createReport(t)

	first, err := env.scheduler.RunStage(context.Background(), r.ID, stage.StageCompletenessCheck)
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Wait(first.ID))

	second, err := env.scheduler.RunStage(context.Background(), r.ID, stage.StageCompletenessCheck)
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Wait(second.ID))

	stored, err := env.repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusProcessing, stored.Status)

	// Downstream is eligible again.
	_, err = env.scheduler.RunStage(context.Background(), r.ID, stage.StageComplexityAssessment)
	assert.NoError(t, err)
}

func TestExpressRunsAllStages(t *testing.T) {
	env := newTestEnv(t, googleMock("COMPLETE: generated content"), WithMaxParallel(2))
	r := env.createReport(t)

	j, err := env.scheduler.RunExpress(context.Background(), r.ID)
	require.NoError(t, err)
	ch := env.subscribe(t, j.ID)
	require.NoError(t, env.scheduler.Wait(j.ID))

	finished, err := env.scheduler.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, finished.Status)
	require.NotNil(t, finished.Result)
	assert.Len(t, finished.Result.CompletedStages, 10)
	assert.Empty(t, finished.Result.FailedStages)

	stored, err := env.repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusCompleted, stored.Status)

	// Generation recorded exactly one concept version.
	latest, err := env.versions.Latest(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version)
	assert.Equal(t, stage.StageGeneration, latest.StageID)

	got := drainEvents(ch)
	require.NotEmpty(t, got)

	// Sequences strictly increase and percentage never decreases.
	var lastSeq int64
	lastPct := -1.0
	terminals := 0
	for _, event := range got {
		assert.Greater(t, event.Sequence, lastSeq)
		lastSeq = event.Sequence
		if p, ok := event.Payload.(events.ProgressPayload); ok {
			assert.GreaterOrEqual(t, p.Percentage, lastPct)
			lastPct = p.Percentage
		}
		if event.Type.IsTerminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, events.EventJobComplete, got[len(got)-1].Type)
}

func TestExpressStageFailureFailsJob(t *testing.T) {
	mock := googleMock("COMPLETE: ok").
		RespondWith("assessment: routine").
		FailWith(llm.FromHTTPStatus("google", 401, "key revoked"))
	env := newTestEnv(t, mock)
	r := env.createReport(t)

	j, err := env.scheduler.RunExpress(context.Background(), r.ID)
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Wait(j.ID))

	finished, err := env.scheduler.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, finished.Status)
	require.NotNil(t, finished.Result)
	assert.Contains(t, finished.Result.FailedStages, stage.StageGeneration)
	assert.Len(t, finished.Result.CompletedStages, 2)
	assert.NotEmpty(t, finished.Result.AbortedStages, "reviewers never start")

	stored, err := env.repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	state := stored.StageStates.Get(stage.StageGeneration)
	assert.Equal(t, stage.StageStatusError, state.Status)
	assert.NotEmpty(t, state.LastError)
}

func TestExpressStopsWhenBlocked(t *testing.T) {
	mock := googleMock("INCOMPLETE: dossier lacks contract terms").
		RespondWith("please provide the missing contract terms")
	env := newTestEnv(t, mock)
	r := env.createReport(t)

	j, err := env.scheduler.RunExpress(context.Background(), r.ID)
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Wait(j.ID))

	finished, err := env.scheduler.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, finished.Status)
	require.NotNil(t, finished.Result)
	assert.Contains(t, finished.Result.Summary, "blocked")

	// Escalation runs while the gate is down; nothing downstream does.
	assert.Equal(t, []stage.StageID{stage.StageCompletenessCheck, stage.StageEscalation},
		finished.Result.CompletedStages)

	stored, err := env.repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusBlocked, stored.Status)
	escState := stored.StageStates.Get(stage.StageEscalation)
	assert.Equal(t, stage.StageStatusCompleted, escState.Status)
	assert.Contains(t, stored.StageResults[stage.StageEscalation].Output, "missing contract terms")
	assert.Equal(t, stage.StageStatusPending,
		stored.StageStates.Get(stage.StageGeneration).Status, "downstream never ran")
	assert.Contains(t, finished.Result.AbortedStages, stage.StageGeneration)
}

// gateProvider blocks Generate until released, letting tests cancel a job
// with a call in flight.
type gateProvider struct {
	name    string
	started chan struct{}
	release chan struct{}
	respect bool
}

func (g *gateProvider) Name() string { return g.name }

func (g *gateProvider) Generate(ctx context.Context, cfg llm.ResolvedConfig, prompt string) (*llm.Content, error) {
	close(g.started)
	if g.respect {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.release:
		}
	} else {
		<-g.release
	}
	return &llm.Content{Text: "COMPLETE: generated despite cancel", Model: cfg.Model, FinishReason: llm.FinishReasonStop}, nil
}

func (g *gateProvider) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("gate")
}

func TestCancelAbortsInFlightStage(t *testing.T) {
	provider := &gateProvider{
		name:    "google",
		started: make(chan struct{}),
		release: make(chan struct{}),
		respect: true,
	}
	env := newTestEnv(t, provider)
	r := env.createReport(t)

	j, err := env.scheduler.RunExpress(context.Background(), r.ID)
	require.NoError(t, err)

	<-provider.started
	require.NoError(t, env.scheduler.Cancel(j.ID))
	require.NoError(t, env.scheduler.Wait(j.ID))

	finished, err := env.scheduler.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, finished.Status)
	require.NotNil(t, finished.Result)
	assert.Empty(t, finished.Result.CompletedStages)
	assert.NotEmpty(t, finished.Result.AbortedStages, "not-yet-started stages aborted")
}

func TestCancelAfterSuccessfulReturnKeepsResult(t *testing.T) {
	provider := &gateProvider{
		name:    "google",
		started: make(chan struct{}),
		release: make(chan struct{}),
		respect: false,
	}
	env := newTestEnv(t, provider)
	r := env.createReport(t)

	j, err := env.scheduler.RunStage(context.Background(), r.ID, stage.StageCompletenessCheck)
	require.NoError(t, err)

	<-provider.started
	require.NoError(t, env.scheduler.Cancel(j.ID))

	// The provider call returns success after the cancel request; the
	// completed result is kept, not discarded.
	close(provider.release)
	require.NoError(t, env.scheduler.Wait(j.ID))

	finished, err := env.scheduler.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, finished.Status)

	stored, err := env.repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, stage.StageStatusCompleted, stored.StageStates.Get(stage.StageCompletenessCheck).Status)
}

func TestCancelTerminalJobRejected(t *testing.T) {
	env := newTestEnv(t, googleMock("COMPLETE: ok"))
	r := env.createReport(t)

	j, err := env.scheduler.RunStage(context.Background(), r.ID, stage.StageCompletenessCheck)
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Wait(j.ID))

	err = env.scheduler.Cancel(j.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.JOB_TERMINAL, "")))
}

func TestRunEditorMergesReviewerOutput(t *testing.T) {
	env := newTestEnv(t, googleMock("edited concept with accepted proposals"))
	r := env.createReport(t)

	// Seed a generated concept and a completed reviewer.
	_, err := env.versions.RecordSnapshot(r.ID, stage.StageGeneration, "original concept", 0, "")
	require.NoError(t, err)
	r.StageStates[stage.StageGeneration] = stage.RunState{Status: stage.StageStatusCompleted}
	r.StageStates[stage.StageReviewTechnical] = stage.RunState{Status: stage.StageStatusCompleted}
	require.NoError(t, env.repo.Update(context.Background(), r))

	j, err := env.scheduler.RunEditor(context.Background(), r.ID, stage.StageReviewTechnical, stage.MergeStrategyMerge)
	require.NoError(t, err)
	require.NoError(t, env.scheduler.Wait(j.ID))

	finished, err := env.scheduler.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, finished.Status)
	assert.Equal(t, TypeEdit, finished.Type)
	assert.Equal(t, 2, finished.Result.ConceptVersion)

	latest, err := env.versions.Latest(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, 1, latest.DerivedFrom)
	assert.Equal(t, stage.StageEditor, latest.StageID)
}

func TestRunEditorRequiresCompletedReviewer(t *testing.T) {
	env := newTestEnv(t, googleMock("edited"))
	r := env.createReport(t)

	_, err := env.scheduler.RunEditor(context.Background(), r.ID, stage.StageReviewTechnical, stage.MergeStrategyMerge)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.STAGE_NOT_ELIGIBLE, "")))

	r.StageStates[stage.StageReviewTechnical] = stage.RunState{Status: stage.StageStatusCompleted}
	require.NoError(t, env.repo.Update(context.Background(), r))

	_, err = env.scheduler.RunEditor(context.Background(), r.ID, stage.StageReviewTechnical, stage.MergeStrategy("squash"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.CONFIG_VALIDATION_FAILED, "")))
}

func TestGetUnknownJob(t *testing.T) {
	env := newTestEnv(t, googleMock("x"))
	_, err := env.scheduler.Get(types.NewID())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.JOB_NOT_FOUND, "")))
}
