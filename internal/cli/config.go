package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/metad/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand(rootOpts))

	return cmd
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration",
		Long: `Resolve the configuration from defaults, --config and the environment,
and check it against the configuration schema. Every violation is
reported.

Example:
  metad config validate --config /etc/metad.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)

			cfg, err := config.Load(rootOpts.Config, os.Getenv)
			if err != nil {
				_ = out.Error("CONFIG_LOAD", err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}

			if err := cfg.Validate(); err != nil {
				var ve *config.ValidationError
				if errors.As(err, &ve) {
					_ = out.Error("CONFIG_INVALID", "configuration is invalid", ve.Problems)
					if rootOpts.Format != "json" && !rootOpts.Verbose {
						for _, p := range ve.Problems {
							cmd.PrintErrln("  " + p)
						}
					}
					return WrapExitError(ExitFailure, "invalid config", err)
				}
				return WrapExitError(ExitCommandError, "failed to validate config", err)
			}

			return out.Success(map[string]any{"valid": true}, "configuration is valid")
		},
	}
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the resolved configuration as YAML (secrets redacted)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.Config, os.Getenv)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if cfg.Oracle.APIKey != "" {
				cfg.Oracle.APIKey = "REDACTED"
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return WrapExitError(ExitFailure, "failed to encode config", err)
			}
			return enc.Close()
		},
	}
}
