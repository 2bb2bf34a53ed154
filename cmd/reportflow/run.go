package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtb-technology/reportflow/cmd/reportflow/internal"
	"github.com/mtb-technology/reportflow/internal/events"
	"github.com/mtb-technology/reportflow/internal/job"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run <report-id> <stage-id>",
	Short: "Run a single pipeline stage",
	Long: `Run one pipeline stage for a report as an asynchronous job and
follow its progress until completion. The stage must be eligible:
all its dependencies completed and the report not blocked.`,
	Args: cobra.ExactArgs(2),
	RunE: runRunStage,
}

var expressCmd = &cobra.Command{
	Use:   "express <report-id>",
	Short: "Run the full pipeline end to end",
	Long: `Run the complete pipeline for a report: completeness check,
complexity assessment, generation, the five reviewers in parallel,
change summary, and executive briefing. Stops early when the
completeness check finds the dossier incomplete.`,
	Args: cobra.ExactArgs(1),
	RunE: runExpress,
}

var editCmd = &cobra.Command{
	Use:   "edit <report-id> <reviewer-stage>",
	Short: "Apply a reviewer's findings with the on-demand editor",
	Args:  cobra.ExactArgs(2),
	RunE:  runEdit,
}

func init() {
	runCmd.Flags().Bool("stream", false, "Stream model output tokens to stdout")
	expressCmd.Flags().Bool("stream", false, "Stream model output tokens to stdout")
	editCmd.Flags().Bool("stream", false, "Stream model output tokens to stdout")
	editCmd.Flags().String("strategy", string(stage.MergeStrategyMerge),
		"Merge strategy: merge, append, sectional, or replace")
}

func runRunStage(cmd *cobra.Command, args []string) error {
	reportID, err := types.ParseID(args[0])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid report id", err)
	}
	stageID := stage.StageID(args[1])

	return withApp(cmd.Context(), func(a *app) error {
		start := func(ctx context.Context) (*job.Job, error) {
			return a.scheduler.RunStage(ctx, reportID, stageID)
		}
		return followJob(cmd, a, start)
	})
}

func runExpress(cmd *cobra.Command, args []string) error {
	reportID, err := types.ParseID(args[0])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid report id", err)
	}

	return withApp(cmd.Context(), func(a *app) error {
		start := func(ctx context.Context) (*job.Job, error) {
			return a.scheduler.RunExpress(ctx, reportID)
		}
		return followJob(cmd, a, start)
	})
}

func runEdit(cmd *cobra.Command, args []string) error {
	reportID, err := types.ParseID(args[0])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid report id", err)
	}
	reviewerID := stage.StageID(args[1])

	strategyFlag, _ := cmd.Flags().GetString("strategy")
	strategy := stage.MergeStrategy(strategyFlag)
	if !strategy.IsValid() {
		return internal.NewCLIError(internal.ExitError,
			fmt.Sprintf("invalid merge strategy %q", strategyFlag))
	}

	return withApp(cmd.Context(), func(a *app) error {
		start := func(ctx context.Context) (*job.Job, error) {
			return a.scheduler.RunEditor(ctx, reportID, reviewerID, strategy)
		}
		return followJob(cmd, a, start)
	})
}

// followJob starts a job, relays its event stream to the terminal, and
// requests cooperative cancellation when the command context is cancelled
// (Ctrl-C). It returns a non-nil error for failed jobs.
func followJob(cmd *cobra.Command, a *app, start func(context.Context) (*job.Job, error)) error {
	ctx := cmd.Context()
	streamTokens, _ := cmd.Flags().GetBool("stream")
	formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())

	// Subscribe before starting so no early event is missed. The job ID is
	// unknown until start returns, so filtering happens client-side.
	ch, cleanup := a.bus.Subscribe(context.Background(), events.Filter{}, 0)
	defer cleanup()

	j, err := start(ctx)
	if err != nil {
		return err
	}
	cmd.PrintErrf("job %s started\n", j.ID)

	// Ctrl-C requests cooperative cancellation; the terminal event still
	// arrives through the stream.
	go func() {
		<-ctx.Done()
		_ = a.scheduler.Cancel(j.ID)
	}()

	for event := range ch {
		if event.JobID != j.ID {
			continue
		}

		printEvent(cmd, event, streamTokens)
		if event.Type.IsTerminal() {
			break
		}
	}

	if err := a.scheduler.Wait(j.ID); err != nil {
		return err
	}
	final, err := a.scheduler.Get(j.ID)
	if err != nil {
		return err
	}

	if outputFormat() == internal.FormatJSON {
		return formatter.PrintJSON(final)
	}

	switch final.Status {
	case types.JobStatusCompleted:
		summary := ""
		if final.Result != nil {
			summary = final.Result.Summary
		}
		return formatter.PrintSuccess(summary)
	case types.JobStatusCancelled:
		return internal.NewCLIError(internal.ExitCancelled, "job cancelled")
	default:
		return internal.NewCLIError(internal.ExitError, final.Error)
	}
}

// printEvent renders one job event as a terminal progress line.
func printEvent(cmd *cobra.Command, event events.Event, streamTokens bool) {
	switch payload := event.Payload.(type) {
	case events.ProgressPayload:
		if payload.Message != "" {
			cmd.PrintErrf("[%3.0f%%] %s\n", payload.Percentage, payload.Message)
		}
	case events.TokenPayload:
		if streamTokens {
			cmd.Print(payload.Text)
		}
	case events.StageCompletePayload:
		if payload.ConceptVersion > 0 {
			cmd.PrintErrf("stage %s completed (concept v%d)\n", payload.StageID, payload.ConceptVersion)
		} else {
			cmd.PrintErrf("stage %s completed\n", payload.StageID)
		}
	case events.StageErrorPayload:
		cmd.PrintErrf("stage %s failed: %s\n", payload.StageID, payload.Error)
	case events.CancelledPayload:
		cmd.PrintErrf("cancelled; aborted stages: %v\n", payload.AbortedStages)
	case events.JobCompletePayload:
		if streamTokens {
			cmd.Println()
		}
	}
}
