package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Print row counts of the database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)

			cfg, err := loadConfig(rootOpts, dbOverride(database))
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore(st, newLogger(cfg.Log, rootOpts.Verbose, cmd.ErrOrStderr()))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			stats, err := st.Stats(ctx)
			if err != nil {
				return out.Fail(ExitFailure, "failed to read stats", err)
			}
			return out.Success(stats, fmt.Sprintf("files: %d\ntags: %d\nembeddings: %d\nevents: %d",
				stats.Files, stats.Tags, stats.Embeddings, stats.Events))
		},
	}

	cmd.Flags().StringVar(&database, "db", "", "path to SQLite database")

	return cmd
}
