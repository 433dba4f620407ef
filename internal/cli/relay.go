package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/metad/internal/config"
	"github.com/roach88/metad/internal/relay"
	"github.com/roach88/metad/internal/wal"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Database  string
	WALURL    string
	CommitURL string
	BatchSize int
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run one WAL relay cycle",
		Long: `Fetch pending entries from the remote write-ahead log, apply them to
the database, and acknowledge them, once.

Entries already applied are acknowledged again without being re-applied.

Example:
  metad relay --db ./meta.db --wal-url http://authority:9000/wal`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.WALURL, "wal-url", "", "remote WAL fetch URL")
	cmd.Flags().StringVar(&opts.CommitURL, "commit-url", "", "remote WAL commit URL (defaults to <wal-url>/commit)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "maximum entries per cycle")

	return cmd
}

func (o *RelayOptions) apply(cfg *config.Config) {
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.WALURL != "" {
		cfg.WAL.FetchURL = o.WALURL
	}
	if o.CommitURL != "" {
		cfg.WAL.CommitURL = o.CommitURL
	}
	if o.BatchSize != 0 {
		cfg.WAL.BatchSize = o.BatchSize
	}
}

func runRelay(opts *RelayOptions, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions, opts.apply)
	if err != nil {
		return err
	}
	if cfg.WAL.FetchURL == "" {
		return NewExitError(ExitCommandError, "no WAL URL configured (use --wal-url or METAD_WAL_URL)")
	}
	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	authority := wal.NewHTTPAuthority(cfg.WAL.FetchURL, cfg.WAL.CommitURL, cfg.WAL.Timeout.Std())
	r := relay.New(st, authority, relay.WithBatchSize(cfg.WAL.BatchSize), relay.WithLogger(logger))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stats, err := r.RunOnce(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "relay cycle failed", err)
	}

	text := fmt.Sprintf("fetched %d, applied %d, duplicates %d, committed %d, ack failed %d, failed %d, skipped %d, deferred %d",
		stats.Fetched, stats.Applied, stats.Duplicates, stats.Committed,
		stats.AckFailed, stats.Failed, stats.Skipped, stats.Deferred)
	if err := out.Success(stats, text); err != nil {
		return err
	}
	if stats.Failed > 0 || stats.AckFailed > 0 {
		return NewExitError(ExitFailure, "some entries were not relayed")
	}
	return nil
}
