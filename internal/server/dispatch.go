package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/metad/internal/fault"
	"github.com/roach88/metad/internal/metrics"
	"github.com/roach88/metad/internal/protocol"
	"github.com/roach88/metad/internal/query"
	"github.com/roach88/metad/internal/store"
)

// Store is the subset of the metadata store the protocol commands use.
type Store interface {
	ApplyLifecycle(ctx context.Context, lc store.Lifecycle) error
	AddTag(ctx context.Context, path, key, value string) error
	AddEmbedding(ctx context.Context, path, embeddingType string, blob []byte) error
	RemoveTag(ctx context.Context, path, key string) (int64, error)
	DeleteFile(ctx context.Context, path string) (bool, error)
	RecordEvent(ctx context.Context, eventType, path, extra string) error
	Query(ctx context.Context, key, value string) ([]string, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Executor runs structured commands.
type Executor interface {
	Execute(ctx context.Context, cmd query.Command) (query.Result, error)
}

// NLQ answers natural-language requests. It never fails.
type NLQ interface {
	Handle(ctx context.Context, text string) string
}

// Dispatcher turns one protocol line into one response line.
type Dispatcher struct {
	store   Store
	engine  Executor
	nlq     NLQ
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the dispatcher's logger.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatchMetrics counts commands on m.
func WithDispatchMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(st Store, engine Executor, nlq NLQ, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:  st,
		engine: engine,
		nlq:    nlq,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle answers one line. Every failure becomes an "ERR: " line; a panic
// while handling the command is answered with "ERR: internal error".
func (d *Dispatcher) Handle(ctx context.Context, line string) (resp string) {
	name := "UNKNOWN"
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked", "command", name, "panic", r)
			d.metrics.Command(name, false)
			resp = "ERR: internal error"
		}
	}()

	cmd, err := protocol.Decode(line)
	if err != nil {
		d.metrics.Command(name, false)
		return protocol.ErrorLine(err)
	}
	name = cmd.Name()

	resp, err = d.dispatch(ctx, cmd)
	if err != nil {
		d.logger.Info("command failed", "command", name, "error", err)
		d.metrics.Command(name, false)
		return protocol.ErrorLine(err)
	}
	d.metrics.Command(name, true)
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd protocol.Command) (string, error) {
	switch c := cmd.(type) {
	case protocol.EventCmd:
		if err := d.store.ApplyLifecycle(ctx, c.Lifecycle); err != nil {
			return "", err
		}
		return "OK", nil

	case protocol.TagCmd:
		if err := d.store.AddTag(ctx, c.Path, c.Key, c.Value); err != nil {
			return "", err
		}
		return "OK: Tag added", nil

	case protocol.EmbedCmd:
		if err := d.store.AddEmbedding(ctx, c.Path, c.Type, c.Blob); err != nil {
			return "", err
		}
		return "OK: Embedding added", nil

	case protocol.QueryCmd:
		paths, err := d.store.Query(ctx, c.Key, c.Value)
		if err != nil {
			return "", err
		}
		return "RESULT: " + query.MarshalJSON(paths), nil

	case protocol.StructuredQueryCmd:
		res, err := d.engine.Execute(ctx, c.Command)
		if err != nil {
			return "", err
		}
		return res.Line(), nil

	case protocol.NLQCmd:
		return d.nlq.Handle(ctx, c.Text), nil

	case protocol.RemoveTagCmd:
		n, err := d.store.RemoveTag(ctx, c.Path, c.Key)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("OK: Tags removed (%d)", n), nil

	case protocol.DeleteCmd:
		deleted, err := d.store.DeleteFile(ctx, c.Path)
		if err != nil {
			return "", err
		}
		if !deleted {
			return "OK: File not found", nil
		}
		if err := d.store.RecordEvent(ctx, string(store.OpDelete), c.Path, ""); err != nil {
			d.logger.Warn("delete event not recorded", "path", c.Path, "error", err)
		}
		return "OK: File deleted", nil

	case protocol.StatsCmd:
		stats, err := d.store.Stats(ctx)
		if err != nil {
			return "", err
		}
		return "RESULT: " + query.MarshalJSON(stats), nil

	case protocol.PingCmd:
		return "OK: PONG", nil

	case protocol.HelpCmd:
		return protocol.HelpText, nil
	}
	return "", fault.New(fault.UnsupportedCommand, "Unknown command")
}
