package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtb-technology/reportflow/cmd/reportflow/internal"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Inspect and repoint concept version chains",
}

var versionsListCmd = &cobra.Command{
	Use:   "list <report-id>",
	Short: "Show the full concept version chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionsList,
}

var versionsShowCmd = &cobra.Command{
	Use:   "show <report-id> <version>",
	Short: "Print one concept version's content",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsShow,
}

var versionsStepBackCmd = &cobra.Command{
	Use:   "stepback <report-id> <stage-id>",
	Short: "Repoint latest to the previous snapshot of a stage",
	Long: `Repoint the latest pointer to the most recent snapshot produced by
the given stage that is older than the current latest. Nothing is
deleted; a later run still gets a fresh version number.`,
	Args: cobra.ExactArgs(2),
	RunE: runVersionsStepBack,
}

var versionsPromoteCmd = &cobra.Command{
	Use:   "promote <report-id> <stage-id>",
	Short: "Repoint latest to the newest snapshot of a stage",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsPromote,
}

func init() {
	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsShowCmd)
	versionsCmd.AddCommand(versionsStepBackCmd)
	versionsCmd.AddCommand(versionsPromoteCmd)
}

func runVersionsList(cmd *cobra.Command, args []string) error {
	reportID, err := types.ParseID(args[0])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid report id", err)
	}

	return withApp(cmd.Context(), func(a *app) error {
		chain := a.versions.Chain(reportID)

		formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())
		if outputFormat() == internal.FormatJSON {
			return formatter.PrintJSON(chain)
		}

		rows := make([][]string, 0, len(chain.Snapshots))
		for _, snapshot := range chain.Snapshots {
			marker := ""
			if snapshot.Version == chain.Latest {
				marker = "latest"
			}
			rows = append(rows, []string{
				strconv.Itoa(snapshot.Version),
				snapshot.StageID.String(),
				strconv.Itoa(snapshot.DerivedFrom),
				snapshot.CreatedAt.Format(time.RFC3339),
				marker,
			})
		}
		return formatter.PrintTable([]string{"version", "stage", "derived from", "created", ""}, rows)
	})
}

func runVersionsShow(cmd *cobra.Command, args []string) error {
	reportID, err := types.ParseID(args[0])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid report id", err)
	}
	versionNum, err := strconv.Atoi(args[1])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid version number", err)
	}

	return withApp(cmd.Context(), func(a *app) error {
		snapshot, err := a.versions.Snapshot(reportID, versionNum)
		if err != nil {
			return err
		}

		if outputFormat() == internal.FormatJSON {
			return internal.NewFormatter(internal.FormatJSON, cmd.OutOrStdout()).PrintJSON(snapshot)
		}
		cmd.Println(snapshot.Content)
		return nil
	})
}

func runVersionsStepBack(cmd *cobra.Command, args []string) error {
	return repointLatest(cmd, args, "stepped back")
}

func runVersionsPromote(cmd *cobra.Command, args []string) error {
	return repointLatest(cmd, args, "promoted")
}

func repointLatest(cmd *cobra.Command, args []string, action string) error {
	reportID, err := types.ParseID(args[0])
	if err != nil {
		return internal.WrapError(internal.ExitError, "invalid report id", err)
	}
	stageID := stage.StageID(args[1])

	return withApp(cmd.Context(), func(a *app) error {
		var version int
		switch action {
		case "stepped back":
			s, err := a.versions.StepBack(reportID, stageID)
			if err != nil {
				return err
			}
			version = s.Version
		default:
			s, err := a.versions.Promote(reportID, stageID)
			if err != nil {
				return err
			}
			version = s.Version
		}

		// Keep the report's mirror of the latest pointer in sync.
		r, err := a.repo.Get(cmd.Context(), reportID)
		if err != nil {
			return err
		}
		r.LatestConceptVersion = version
		if err := a.repo.Update(cmd.Context(), r); err != nil {
			return err
		}

		formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())
		return formatter.PrintSuccess(fmt.Sprintf("%s: latest now v%d", action, version))
	})
}
