package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtb-technology/reportflow/cmd/reportflow/internal"
	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage reports",
}

var reportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new report from a dossier",
	RunE:  runReportCreate,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all reports",
	RunE:  runReportList,
}

var reportShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show one report with its stage states",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete <report-id>",
	Short: "Delete a report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportDelete,
}

func init() {
	reportCreateCmd.Flags().String("title", "", "Report title (required)")
	reportCreateCmd.Flags().String("dossier", "", "Path to a JSON dossier file")
	_ = reportCreateCmd.MarkFlagRequired("title")

	reportCmd.AddCommand(reportCreateCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportDeleteCmd)
}

func runReportCreate(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	dossierPath, _ := cmd.Flags().GetString("dossier")

	var dossier map[string]any
	if dossierPath != "" {
		raw, err := os.ReadFile(dossierPath)
		if err != nil {
			return internal.WrapError(internal.ExitError, "failed to read dossier file", err)
		}
		if err := json.Unmarshal(raw, &dossier); err != nil {
			return internal.WrapError(internal.ExitError, "dossier file is not valid JSON", err)
		}
	}

	return withApp(cmd.Context(), func(a *app) error {
		r := report.New(title, dossier)
		if err := a.repo.Create(cmd.Context(), r); err != nil {
			return err
		}

		formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())
		if outputFormat() == internal.FormatJSON {
			return formatter.PrintJSON(r)
		}
		return formatter.PrintSuccess(fmt.Sprintf("created report %s", r.ID))
	})
}

func runReportList(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		reports, err := a.repo.List(cmd.Context())
		if err != nil {
			return err
		}

		formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())
		if outputFormat() == internal.FormatJSON {
			return formatter.PrintJSON(reports)
		}

		rows := make([][]string, 0, len(reports))
		for _, r := range reports {
			rows = append(rows, []string{
				r.ID.String(),
				r.Title,
				string(r.Status),
				r.CurrentStage.String(),
				r.CreatedAt.Format(time.RFC3339),
			})
		}
		return formatter.PrintTable([]string{"id", "title", "status", "current stage", "created"}, rows)
	})
}

func runReportShow(cmd *cobra.Command, args []string) error {
	id, err := types.ParseID(args[0])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid report id", err)
	}

	return withApp(cmd.Context(), func(a *app) error {
		r, err := a.repo.Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())
		if outputFormat() == internal.FormatJSON {
			return formatter.PrintJSON(r)
		}

		cmd.Printf("Report:  %s\n", r.ID)
		cmd.Printf("Title:   %s\n", r.Title)
		cmd.Printf("Status:  %s\n", r.Status)
		cmd.Printf("Concept: v%d\n\n", r.LatestConceptVersion)

		stageIDs := make([]string, 0, len(r.StageStates))
		for stageID := range r.StageStates {
			stageIDs = append(stageIDs, stageID.String())
		}
		sort.Strings(stageIDs)

		rows := make([][]string, 0, len(stageIDs))
		for _, stageID := range stageIDs {
			state := r.StageStates[stage.StageID(stageID)]
			rows = append(rows, []string{
				stageID,
				string(state.Status),
				string(state.Verdict),
				state.LastError,
			})
		}
		return formatter.PrintTable([]string{"stage", "status", "verdict", "error"}, rows)
	})
}

func runReportDelete(cmd *cobra.Command, args []string) error {
	id, err := types.ParseID(args[0])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid report id", err)
	}

	return withApp(cmd.Context(), func(a *app) error {
		if err := a.repo.Delete(cmd.Context(), id); err != nil {
			return err
		}
		formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())
		return formatter.PrintSuccess(fmt.Sprintf("deleted report %s", id))
	})
}
