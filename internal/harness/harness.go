package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/roach88/metad/internal/nlq"
	"github.com/roach88/metad/internal/query"
	"github.com/roach88/metad/internal/relay"
	"github.com/roach88/metad/internal/server"
	"github.com/roach88/metad/internal/store"
	"github.com/roach88/metad/internal/testutil"
	"github.com/roach88/metad/internal/wal"
)

// Harness wires the daemon's components around a fresh store.
type Harness struct {
	store      *store.Store
	authority  *testutil.FakeAuthority
	dispatcher *server.Dispatcher
	relay      *relay.Relay
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a stopped clock.
// The fake authority is closed when t ends.
//
// Execution flow:
// 1. Create the store, authority, oracle and dispatcher
// 2. Execute steps, checking each expectation
// 3. Evaluate assertions against the final state
func Run(t testing.TB, scenario *Scenario) (*Result, error) {
	t.Helper()

	clock := testutil.NewFixedClock(testutil.DefaultNow)
	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	entries := make([]wal.Entry, 0, len(scenario.WAL))
	for _, e := range scenario.WAL {
		entry, err := e.Entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := query.New(st, query.WithClock(clock.Now), query.WithLogger(logger))

	nlqOpts := []nlq.Option{nlq.WithLogger(logger)}
	if len(scenario.Oracle) > 0 {
		nlqOpts = append(nlqOpts, nlq.WithOracle(testutil.NewFakeOracle(scenario.Oracle)))
	}

	authority := testutil.NewFakeAuthority(t, entries...)
	h := &Harness{
		store:      st,
		authority:  authority,
		dispatcher: server.NewDispatcher(st, engine, nlq.New(engine, nlqOpts...), server.WithDispatchLogger(logger)),
		relay:      relay.New(st, authority.Client(), relay.WithLogger(logger)),
	}

	ctx := context.Background()
	result := NewResult()
	h.executeSteps(ctx, scenario.Steps, result)

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     st,
		Authority: authority,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		var request, response string

		switch {
		case step.FailCommits > 0:
			h.authority.FailCommits(step.FailCommits)
			continue

		case step.Relay:
			request = "RELAY"
			stats, err := h.relay.RunOnce(ctx)
			if err != nil {
				response = "ERR: " + err.Error()
			} else {
				response = FormatCycle(stats)
			}

		default:
			request = step.Send
			response = h.dispatcher.Handle(ctx, step.Send)
		}

		result.AddExchange(i, request, response)

		switch {
		case step.Expect != "" && response != step.Expect:
			result.AddError(fmt.Sprintf("steps[%d] %q: expected %q, got %q", i, request, step.Expect, response))
		case step.ExpectPrefix != "" && !strings.HasPrefix(response, step.ExpectPrefix):
			result.AddError(fmt.Sprintf("steps[%d] %q: expected prefix %q, got %q", i, request, step.ExpectPrefix, response))
		}
	}
}

// FormatCycle renders relay cycle stats for the transcript.
func FormatCycle(s relay.CycleStats) string {
	return fmt.Sprintf("fetched=%d pending=%d applied=%d duplicates=%d committed=%d ack_failed=%d failed=%d skipped=%d",
		s.Fetched, s.Pending, s.Applied, s.Duplicates, s.Committed, s.AckFailed, s.Failed, s.Skipped)
}
