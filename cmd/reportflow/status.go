package main

import (
	"github.com/spf13/cobra"

	"github.com/mtb-technology/reportflow/cmd/reportflow/internal"
	"github.com/mtb-technology/reportflow/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and provider health",
	RunE:  runStatus,
}

type statusReport struct {
	Database  types.HealthStatus            `json:"database"`
	Providers map[string]types.HealthStatus `json:"providers"`
	Overall   types.HealthStatus            `json:"overall"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		ctx := cmd.Context()

		report := statusReport{
			Database:  a.db.Health(ctx),
			Providers: make(map[string]types.HealthStatus),
			Overall:   a.registry.Health(ctx),
		}
		for _, name := range a.registry.List() {
			provider, err := a.registry.Get(name)
			if err != nil {
				continue
			}
			report.Providers[name] = provider.Health(ctx)
		}

		formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())
		if outputFormat() == internal.FormatJSON {
			return formatter.PrintJSON(report)
		}

		rows := [][]string{
			{"database", string(report.Database.State), report.Database.Message},
		}
		for _, name := range a.registry.List() {
			health := report.Providers[name]
			rows = append(rows, []string{"provider/" + name, string(health.State), health.Message})
		}
		rows = append(rows, []string{"providers", string(report.Overall.State), report.Overall.Message})

		if err := formatter.PrintTable([]string{"component", "state", "message"}, rows); err != nil {
			return err
		}

		if !report.Database.IsHealthy() || report.Overall.State == types.HealthStateUnhealthy {
			return internal.NewCLIError(internal.ExitError, "one or more components unhealthy")
		}
		return nil
	})
}
