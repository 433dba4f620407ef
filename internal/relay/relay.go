// Package relay applies upstream WAL entries to the local store and
// acknowledges them back to the authority.
//
// Each entry moves Pending -> Applied -> Committed. Apply and ledger claim
// happen in one store transaction keyed by the entry's identity, so an
// entry re-fetched after a lost acknowledgement is recognised and only
// re-acknowledged. Every failure is logged and retried on a later cycle;
// nothing the authority does can stop the loop.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/metad/internal/metrics"
	"github.com/roach88/metad/internal/store"
	"github.com/roach88/metad/internal/wal"
)

// Defaults.
const (
	DefaultInterval  = 5 * time.Second
	DefaultBatchSize = 500
)

// Store is the mutation the relay needs.
type Store interface {
	ApplyWALEntry(ctx context.Context, entryID string, lc store.Lifecycle) (applied bool, err error)
}

// Relay polls an authority and applies its pending entries. It owns all
// of its loop state; run a single Relay per store.
type Relay struct {
	store     Store
	authority wal.Authority
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Relay.
type Option func(*Relay)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize caps the pending entries applied per cycle.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLogger sets the relay's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithMetrics records entry outcomes and cycle durations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// New creates a Relay.
func New(st Store, authority wal.Authority, opts ...Option) *Relay {
	r := &Relay{
		store:     st,
		authority: authority,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CycleStats summarizes one relay cycle.
type CycleStats struct {
	Fetched    int // entries returned by the authority
	Pending    int // entries not yet committed upstream
	Applied    int // newly applied to the store
	Duplicates int // already applied earlier, re-acknowledged
	Committed  int // acknowledgements accepted
	AckFailed  int // acknowledgements rejected or unreachable
	Failed     int // entries whose apply failed; retried next cycle
	Skipped    int // unknown ops, left pending
	Deferred   int // pending beyond the batch cap
}

// Run polls until ctx is cancelled. The first cycle starts immediately.
// It returns ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay starting", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("relay cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs one fetch-apply-acknowledge cycle. It returns an error
// only when the log could not be fetched; per-entry failures are logged
// and counted in the stats.
func (r *Relay) RunOnce(ctx context.Context) (CycleStats, error) {
	start := time.Now()
	defer func() { r.metrics.RelayCycle(time.Since(start)) }()

	var stats CycleStats
	entries, err := r.authority.Fetch(ctx)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(entries)

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.Committed {
			continue
		}
		stats.Pending++
		if stats.Pending > r.batchSize {
			stats.Deferred++
			continue
		}
		r.process(ctx, e, &stats)
	}

	r.logger.Debug("relay cycle finished",
		"fetched", stats.Fetched,
		"pending", stats.Pending,
		"applied", stats.Applied,
		"duplicates", stats.Duplicates,
		"committed", stats.Committed,
		"ack_failed", stats.AckFailed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"deferred", stats.Deferred,
		"duration", time.Since(start))
	return stats, nil
}

func (r *Relay) process(ctx context.Context, e wal.Entry, stats *CycleStats) {
	log := r.logger.With("op", e.Op, "path", e.Path)

	key, err := e.Key()
	if err != nil {
		stats.Failed++
		r.metrics.RelayEntry(metrics.RelayFailed)
		log.Warn("wal entry has no usable identity", "error", err)
		return
	}
	log = log.With("entry", key)

	lc := e.Lifecycle()
	if !lc.Op.Known() {
		stats.Skipped++
		r.metrics.RelayEntry(metrics.RelaySkipped)
		log.Warn("unsupported wal op, leaving entry pending")
		return
	}

	applied, err := r.store.ApplyWALEntry(ctx, key, lc)
	if err != nil {
		stats.Failed++
		r.metrics.RelayEntry(metrics.RelayFailed)
		log.Warn("wal entry apply failed", "error", err)
		return
	}
	if applied {
		stats.Applied++
		r.metrics.RelayEntry(metrics.RelayApplied)
	} else {
		stats.Duplicates++
		r.metrics.RelayEntry(metrics.RelayDuplicate)
		log.Debug("wal entry already applied, re-acknowledging")
	}

	if err := r.authority.Commit(ctx, e); err != nil {
		stats.AckFailed++
		r.metrics.RelayEntry(metrics.RelayAckFailed)
		log.Warn("wal commit acknowledgement failed", "error", err)
		return
	}
	stats.Committed++
}
