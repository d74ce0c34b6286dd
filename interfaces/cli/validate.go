package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	api "github.com/felixgeelhaar/ideaflow/interfaces/api"
)

type validateOptions struct {
	configPath string
	strict     bool
}

func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate an ideaflow configuration file.

This command checks:
  - File format (YAML or JSON)
  - Required fields (name, version)
  - The storage backend and its section
  - The audit backend and whether it can share the storage connection
  - Logging and tracing settings
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  ideaflow validate -c ideaflow.yaml

  # Fail on unset environment variables
  ideaflow validate -c ideaflow.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (required)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on unset environment variables")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func (a *App) validateConfig(opts *validateOptions) error {
	loader := api.NewConfigLoader(
		api.ConfigWithValidation(true),
		api.ConfigWithStrictEnv(opts.strict),
	)
	cfg, err := loader.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, _ = fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	_, _ = fmt.Fprintf(a.stdout, "  Name: %s\n", cfg.Name)
	_, _ = fmt.Fprintf(a.stdout, "  Version: %s\n", cfg.Version)
	_, _ = fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(a.stdout, "  Storage: %s\n", cfg.Storage.Backend)
	_, _ = fmt.Fprintf(a.stdout, "  Audit: %s", cfg.Audit.Backend)
	if cfg.Audit.Path != "" {
		_, _ = fmt.Fprintf(a.stdout, " (%s)", cfg.Audit.Path)
	}
	_, _ = fmt.Fprintln(a.stdout)
	if cfg.Audit.Resilience.Enabled {
		_, _ = fmt.Fprintf(a.stdout, "  Audit resilience: enabled\n")
	}
	_, _ = fmt.Fprintf(a.stdout, "  Logging: %s (%s)\n", cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Telemetry.Tracing.Enabled {
		_, _ = fmt.Fprintf(a.stdout, "  Tracing: %s\n", cfg.Telemetry.Tracing.Exporter)
	}

	return nil
}
