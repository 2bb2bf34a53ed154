package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mtb-technology/reportflow/cmd/reportflow/internal"
	"github.com/mtb-technology/reportflow/internal/config"
)

// Global flag values, bound in init.
var (
	configFile string
	jsonOutput bool
	verbose    bool
)

// appConfig is loaded once before any command runs.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "reportflow",
	Short: "Reportflow - AI document generation pipeline",
	Long: `Reportflow orchestrates an AI-driven document generation pipeline:
completeness checking, concept generation, parallel expert review,
on-demand editing, and concept version management.

Reports and concept versions are stored in a local SQLite database;
model providers are configured in reportflow.yaml.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig runs before every command and loads configuration, falling
// back to defaults when no config file exists.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	path := configFile
	if path == "" {
		path = os.Getenv("REPORTFLOW_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.NewLoader(config.NewValidator()).LoadWithDefaults(path)
	if err != nil {
		return internal.WrapError(internal.ExitConfigError, "failed to load configuration", err)
	}
	appConfig = cfg
	return nil
}

// defaultConfigPath returns ~/.reportflow/reportflow.yaml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "reportflow.yaml"
	}
	return filepath.Join(home, ".reportflow", "reportflow.yaml")
}

// outputFormat returns the selected output format for the current command.
func outputFormat() internal.OutputFormat {
	if jsonOutput {
		return internal.FormatJSON
	}
	return internal.FormatText
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default ~/.reportflow/reportflow.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose error output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(expressCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("reportflow v0.1.0")
	},
}
