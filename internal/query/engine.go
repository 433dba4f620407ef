package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/metad/internal/fault"
	"github.com/roach88/metad/internal/queryir"
	"github.com/roach88/metad/internal/querysql"
	"github.com/roach88/metad/internal/store"
)

// Tag keys that the named filters map onto.
const (
	TagProject      = "project"
	TagCollaborator = "collaborator"
)

// Store is the subset of the metadata store the engine needs.
type Store interface {
	SelectPaths(ctx context.Context, query string, args ...any) ([]string, error)
	AddTag(ctx context.Context, path, key, value string) error
	RemoveTag(ctx context.Context, path, key string) (int64, error)
	ApplyLifecycle(ctx context.Context, lc store.Lifecycle) error
}

// Engine evaluates filter sets against the store and applies actions to
// the matched files.
type Engine struct {
	store    Store
	compiler *querysql.SQLCompiler
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine over st.
func New(st Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		compiler: querysql.NewSQLCompiler(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match returns the paths of files satisfying filters under logic, ordered
// by path. The whole filter set is evaluated as one statement.
//
// An empty filter set matches every file.
func (e *Engine) Match(ctx context.Context, filters Filters, logic Logic) ([]string, error) {
	pred, err := BuildPredicate(filters, logic, e.now())
	if err != nil {
		return nil, err
	}

	sel := queryir.Select{From: "files", Field: "path", Filter: pred}
	result := queryir.Validate(sel)
	if !result.Valid {
		return nil, fault.New(fault.InvalidArgument, strings.Join(result.Errors, "; "))
	}
	for _, w := range result.Warnings {
		e.logger.Debug("query warning", "warning", w)
	}

	sqlText, params, err := e.compiler.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	paths, err := e.store.SelectPaths(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	return paths, nil
}

// Execute matches cmd's filters and applies its action to every match.
//
// Unknown actions fail with UNSUPPORTED_ACTION before touching the store.
// The tag action requires a payload with a non-empty key.
func (e *Engine) Execute(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Action {
	case ActionList, ActionDelete, ActionRemoveTag, ActionSummarize:
	case ActionTag:
		if cmd.Tag == nil || cmd.Tag.Key == "" {
			return Result{}, fault.New(fault.InvalidArgument, "tag action requires a {key, value} payload")
		}
	default:
		return Result{}, fault.Newf(fault.UnsupportedAction, "Unsupported action: %s", cmd.Action)
	}

	if cmd.Filters.IsEmpty() && cmd.Action.Destructive() {
		e.logger.Warn("destructive action with empty filter set matches every file",
			"action", cmd.Action)
	}

	paths, err := e.Match(ctx, cmd.Filters, cmd.Logic)
	if err != nil {
		return Result{}, err
	}

	res := Result{Action: cmd.Action, Paths: paths}
	switch cmd.Action {
	case ActionList, ActionSummarize:
		res.Count = len(paths)

	case ActionDelete:
		for _, p := range paths {
			if err := e.store.ApplyLifecycle(ctx, store.Lifecycle{Op: store.OpDelete, Path: p}); err != nil {
				return res, fmt.Errorf("delete %s: %w", p, err)
			}
			res.Count++
		}

	case ActionTag:
		for _, p := range paths {
			if err := e.store.AddTag(ctx, p, cmd.Tag.Key, cmd.Tag.Value); err != nil {
				return res, fmt.Errorf("tag %s: %w", p, err)
			}
			res.Count++
		}

	case ActionRemoveTag:
		key := ""
		if cmd.Tag != nil {
			key = cmd.Tag.Key
		}
		for _, p := range paths {
			if _, err := e.store.RemoveTag(ctx, p, key); err != nil {
				// Deleted concurrently between match and removal.
				if fault.Is(err, fault.NotFound) {
					continue
				}
				return res, fmt.Errorf("remove tags %s: %w", p, err)
			}
			res.Count++
		}
	}

	e.logger.Debug("query executed",
		"action", cmd.Action,
		"logic", cmd.Logic,
		"matched", len(paths),
		"affected", res.Count)
	return res, nil
}

// BuildPredicate translates a filter set into a predicate tree: one
// predicate per present filter, combined under logic. Returns nil for an
// empty filter set.
func BuildPredicate(filters Filters, logic Logic, now time.Time) (queryir.Predicate, error) {
	var preds []queryir.Predicate

	if filters.Project != "" {
		preds = append(preds, queryir.TagEquals{Key: TagProject, Value: filters.Project})
	}
	for _, c := range filters.Collaborators {
		preds = append(preds, queryir.TagEquals{Key: TagCollaborator, Value: c})
	}
	for _, t := range filters.Tags {
		if t.Key == "" {
			return nil, fault.New(fault.InvalidArgument, "tag filter with empty key")
		}
		preds = append(preds, queryir.TagEquals{Key: t.Key, Value: t.Value})
	}
	if filters.DateRange != nil && !filters.DateRange.IsZero() {
		from, to, err := ResolveDateRange(*filters.DateRange, now)
		if err != nil {
			return nil, err
		}
		preds = append(preds, queryir.Between{Field: "modified_time", From: from.Unix(), To: to.Unix()})
	}
	if filters.Subvol != "" {
		preds = append(preds, queryir.Contains{Field: "path", Substring: filters.Subvol})
	}
	if filters.Type != "" {
		preds = append(preds, queryir.Contains{Field: "path", Substring: filters.Type})
	}
	if filters.VolumeID != "" {
		preds = append(preds, queryir.Equals{Field: "volume_id", Value: filters.VolumeID})
	}
	if filters.Checksum != "" {
		preds = append(preds, queryir.Equals{Field: "checksum", Value: filters.Checksum})
	}

	switch {
	case len(preds) == 0:
		return nil, nil
	case logic == LogicOr:
		return queryir.Or{Predicates: preds}, nil
	case logic == LogicAnd || logic == "":
		return queryir.And{Predicates: preds}, nil
	}
	return nil, fault.Newf(fault.InvalidArgument, "Unsupported logic: %s", logic)
}
