package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mtb-technology/reportflow/cmd/reportflow/internal"
	"github.com/mtb-technology/reportflow/internal/config"
	"github.com/mtb-technology/reportflow/internal/llm/providers"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the current invocation would run with:
defaults overlaid with the config file and environment interpolation.
Provider API keys are redacted.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if appConfig == nil {
		return internal.NewCLIError(internal.ExitConfigError, "configuration not loaded")
	}

	shown := *appConfig
	shown.Providers = redactProviderSecrets(appConfig)

	if outputFormat() == internal.FormatJSON {
		return internal.NewFormatter(internal.FormatJSON, cmd.OutOrStdout()).PrintJSON(shown)
	}

	out, err := yaml.Marshal(shown)
	if err != nil {
		return internal.WrapError(internal.ExitError, "failed to render configuration", err)
	}
	cmd.Print(string(out))
	return nil
}

// redactProviderSecrets copies the provider map with API keys masked.
func redactProviderSecrets(cfg *config.Config) map[string]providers.Settings {
	if len(cfg.Providers) == 0 {
		return nil
	}
	out := make(map[string]providers.Settings, len(cfg.Providers))
	for name, settings := range cfg.Providers {
		if settings.APIKey != "" {
			settings.APIKey = "[REDACTED]"
		}
		out[name] = settings
	}
	return out
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = defaultConfigPath()
	}

	_, err := config.NewLoader(config.NewValidator()).Load(path)
	formatter := internal.NewFormatter(outputFormat(), cmd.OutOrStdout())
	if err != nil {
		_ = formatter.PrintError(fmt.Sprintf("configuration invalid: %v", err))
		return internal.WrapError(internal.ExitConfigError, "configuration invalid", err)
	}
	return formatter.PrintSuccess(fmt.Sprintf("%s is valid", path))
}
