package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/metad/internal/config"
	"github.com/roach88/metad/internal/metrics"
	"github.com/roach88/metad/internal/nlq"
	"github.com/roach88/metad/internal/oracle"
	"github.com/roach88/metad/internal/query"
	"github.com/roach88/metad/internal/relay"
	"github.com/roach88/metad/internal/server"
	"github.com/roach88/metad/internal/wal"
	"github.com/roach88/metad/internal/watch"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database    string
	Listen      string
	WALURL      string
	MetricsAddr string
	Watch       []string

	// OnReady is called with the bound client address (for testing).
	OnReady func(net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the metadata daemon",
		Long: `Run the metadata daemon.

The daemon opens (or creates) the SQLite database, serves the line
protocol on a unix or TCP socket, relays entries from the remote
write-ahead log when a WAL URL is configured, ingests changes under any
watched directories, and exposes Prometheus metrics when a metrics
address is set.

Example:
  metad serve --db ./meta.db --listen /tmp/metad.sock
  metad serve --config /etc/metad.yaml --wal-url http://authority:9000/wal`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "client socket (unix path, unix:/path, tcp:host:port or host:port)")
	cmd.Flags().StringVar(&opts.WALURL, "wal-url", "", "remote WAL fetch URL")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Prometheus metrics listen address")
	cmd.Flags().StringSliceVar(&opts.Watch, "watch", nil, "directories to watch (repeatable)")

	return cmd
}

func (o *ServeOptions) apply(cfg *config.Config) {
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Listen != "" {
		cfg.Listen.Network, cfg.Listen.Address = config.ParseListen(o.Listen)
	}
	if o.WALURL != "" {
		cfg.WAL.FetchURL = o.WALURL
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Address = o.MetricsAddr
	}
	if len(o.Watch) > 0 {
		cfg.Watch.Paths = o.Watch
	}
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.apply)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	logger.Info("opening database", "path", cfg.Database)
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	m := metrics.New()
	engine := query.New(st, query.WithLogger(logger))

	nlqOpts := []nlq.Option{nlq.WithLogger(logger), nlq.WithMetrics(m)}
	oc, err := cfg.OracleClientConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid oracle config", err)
	}
	client, err := oracle.New(ctx, oc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create oracle client", err)
	}
	if client != nil {
		nlqOpts = append(nlqOpts, nlq.WithOracle(client))
		if cfg.Oracle.RatePerMinute > 0 {
			nlqOpts = append(nlqOpts, nlq.WithRateLimit(cfg.Oracle.RatePerMinute))
		}
		logger.Info("oracle enabled", "provider", oc.Provider, "model", oc.Model)
	} else {
		logger.Info("oracle disabled; NLQ uses the keyword grammar")
	}

	dispatcher := server.NewDispatcher(st, engine, nlq.New(engine, nlqOpts...),
		server.WithDispatchLogger(logger),
		server.WithDispatchMetrics(m))
	srv := server.New(dispatcher, server.WithLogger(logger), server.WithMetrics(m))

	ln, err := server.Listen(cfg.Listen.Network, cfg.Listen.Address)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	logger.Info("listening", "network", cfg.Listen.Network, "address", ln.Addr().String())
	fmt.Fprintf(cmd.OutOrStdout(), "metad listening on %s %s\n", cfg.Listen.Network, ln.Addr())
	if opts.OnReady != nil {
		opts.OnReady(ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})

	if cfg.WAL.FetchURL != "" {
		authority := wal.NewHTTPAuthority(cfg.WAL.FetchURL, cfg.WAL.CommitURL, cfg.WAL.Timeout.Std())
		r := relay.New(st, authority,
			relay.WithInterval(cfg.WAL.PollInterval.Std()),
			relay.WithBatchSize(cfg.WAL.BatchSize),
			relay.WithLogger(logger),
			relay.WithMetrics(m))
		g.Go(func() error {
			return ignoreCanceled(r.Run(gctx))
		})
	}

	if len(cfg.Watch.Paths) > 0 {
		w := watch.New(st, cfg.Watch.Paths, watch.WithLogger(logger))
		g.Go(func() error {
			return ignoreCanceled(w.Run(gctx))
		})
	}

	if cfg.Metrics.Address != "" {
		hs := m.Server(cfg.Metrics.Address)
		g.Go(func() error {
			logger.Info("metrics listening", "address", cfg.Metrics.Address)
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "daemon error", err)
	}

	logger.Info("daemon stopped gracefully")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
