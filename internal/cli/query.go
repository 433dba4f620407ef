package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/metad/internal/nlq"
	"github.com/roach88/metad/internal/query"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Action string   `json:"action"`
	Count  int      `json:"count"`
	Paths  []string `json:"paths"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <command>",
		Short: "Run a structured or keyword query against the database",
		Long: `Run a query directly against the database, without a daemon.

The argument is either a structured command in JSON or a keyword
phrase such as "list project:Alpha last quarter". Destructive actions
(tag, remove_tag, delete) are applied.

Example:
  metad query --db ./meta.db '{"action":"list","filters":{"project":"Alpha"}}'
  metad query --db ./meta.db tag project:Alpha with reviewed:true`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, strings.Join(args, " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")

	return cmd
}

func runQuery(opts *QueryOptions, text string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions, dbOverride(opts.Database))
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())

	var qc query.Command
	if strings.HasPrefix(strings.TrimSpace(text), "{") {
		qc, err = query.ParseCommand([]byte(text))
	} else {
		qc, err = nlq.ParseKeywords(text)
	}
	if err != nil {
		return out.Fail(ExitCommandError, "failed to parse query", err)
	}
	out.VerboseLog("action=%s logic=%s filters=%+v", qc.Action, qc.Logic, qc.Filters)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := query.New(st, query.WithLogger(logger)).Execute(ctx, qc)
	if err != nil {
		return out.Fail(ExitFailure, "query failed", err)
	}

	paths := res.Paths
	if paths == nil {
		paths = []string{}
	}
	return out.Success(QueryResult{Action: string(res.Action), Count: res.Count, Paths: paths}, res.Line())
}
