package testutil

import (
	"context"
	"sync"

	"github.com/roach88/metad/internal/fault"
)

// FakeOracle answers NLQ requests from a canned table.
//
// Requests with no canned answer fail with ORACLE_UNAVAILABLE, which sends
// the front-end to its keyword parser. Unavailable makes every request
// fail that way.
type FakeOracle struct {
	mu          sync.Mutex
	answers     map[string]string
	unavailable bool
	asked       []string
}

// NewFakeOracle creates an oracle with canned answers keyed by request text.
func NewFakeOracle(answers map[string]string) *FakeOracle {
	o := &FakeOracle{answers: make(map[string]string, len(answers))}
	for k, v := range answers {
		o.answers[k] = v
	}
	return o
}

// SetUnavailable toggles simulated unreachability.
func (o *FakeOracle) SetUnavailable(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unavailable = on
}

// Asked returns every request text received, in order.
func (o *FakeOracle) Asked() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.asked...)
}

// Ask implements oracle.Client.
func (o *FakeOracle) Ask(_ context.Context, text string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.asked = append(o.asked, text)
	if o.unavailable {
		return "", fault.New(fault.OracleUnavailable, "fake oracle unreachable")
	}
	answer, ok := o.answers[text]
	if !ok {
		return "", fault.New(fault.OracleUnavailable, "fake oracle has no answer")
	}
	return answer, nil
}
