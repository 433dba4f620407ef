package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/metad/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database string
	Path     string
	Limit    int
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the lifecycle event audit trail",
		Long: `Show the lifecycle event audit trail, oldest first.

Example:
  metad events --db ./meta.db --limit 50
  metad events --db ./meta.db --path /data/report.pdf --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Path, "path", "", "only events for this path")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "most recent events to show (ignored with --path)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, "--limit must be positive")
	}

	cfg, err := loadConfig(opts.RootOptions, dbOverride(opts.Database))
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr()))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var events []store.Event
	if opts.Path != "" {
		events, err = st.EventsForPath(ctx, opts.Path)
	} else {
		events, err = st.Events(ctx, opts.Limit)
	}
	if err != nil {
		return out.Fail(ExitFailure, "failed to read events", err)
	}
	if events == nil {
		events = []store.Event{}
	}

	var text strings.Builder
	for i, ev := range events {
		if i > 0 {
			text.WriteByte('\n')
		}
		fmt.Fprintf(&text, "%d %s %-7s %s", ev.ID,
			time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339), ev.Type, ev.Path)
		if ev.Extra != "" {
			fmt.Fprintf(&text, " %s", ev.Extra)
		}
	}
	if len(events) == 0 {
		text.WriteString("no events")
	}
	return out.Success(events, text.String())
}
