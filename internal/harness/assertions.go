package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/metad/internal/fault"
	"github.com/roach88/metad/internal/store"
	"github.com/roach88/metad/internal/testutil"
)

// AssertionContext provides what assertions read from.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Authority *testutil.FakeAuthority
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type       string     // Assertion type for categorization
	Expected   string     // Human-readable expected outcome
	Actual     string     // Human-readable actual outcome
	Transcript []Exchange // Full transcript for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nTranscript:\n")
	for _, ex := range e.Transcript {
		fmt.Fprintf(&buf, "  [%d] %s -> %s\n", ex.Step, ex.Request, ex.Response)
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Transcript = result.Transcript
			}
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertFileExists, AssertFileAbsent:
		return assertFile(a, actx)
	case AssertTagPresent:
		return assertTag(a, actx)
	case AssertEventCount:
		return assertEventCount(a, actx)
	case AssertWALCommitted:
		return assertCommitted(a, actx)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertFile(a Assertion, actx *AssertionContext) error {
	_, err := actx.Store.File(actx.Ctx, a.Path)
	exists := err == nil
	if err != nil && !fault.Is(err, fault.NotFound) {
		return fmt.Errorf("%s %s: %w", a.Type, a.Path, err)
	}

	want := a.Type == AssertFileExists
	if exists == want {
		return nil
	}
	actual := "absent"
	if exists {
		actual = "present"
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("file %s %s", a.Path, map[bool]string{true: "present", false: "absent"}[want]),
		Actual:   actual,
	}
}

func assertTag(a Assertion, actx *AssertionContext) error {
	tags, err := actx.Store.Tags(actx.Ctx, a.Path)
	if err != nil {
		return fmt.Errorf("tag_present %s: %w", a.Path, err)
	}

	have := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Key == a.Key && t.Value == a.Value {
			return nil
		}
		have = append(have, t.Key+"="+t.Value)
	}
	return &AssertionError{
		Type:     AssertTagPresent,
		Expected: fmt.Sprintf("%s tagged %s=%s", a.Path, a.Key, a.Value),
		Actual:   fmt.Sprintf("tags %v", have),
	}
}

func assertEventCount(a Assertion, actx *AssertionContext) error {
	events, err := actx.Store.EventsForPath(actx.Ctx, a.Path)
	if err != nil {
		return fmt.Errorf("event_count %s: %w", a.Path, err)
	}

	count := 0
	for _, ev := range events {
		if a.Op == "" || strings.EqualFold(ev.Type, a.Op) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}

	what := "events"
	if a.Op != "" {
		what = a.Op + " events"
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s for %s", a.Count, what, a.Path),
		Actual:   fmt.Sprintf("%d", count),
	}
}

func assertCommitted(a Assertion, actx *AssertionContext) error {
	for _, e := range actx.Authority.Entries() {
		if e.ID == a.ID {
			if e.Committed {
				return nil
			}
			return &AssertionError{
				Type:     AssertWALCommitted,
				Expected: fmt.Sprintf("entry %s committed", a.ID),
				Actual:   "pending",
			}
		}
	}
	return &AssertionError{
		Type:     AssertWALCommitted,
		Expected: fmt.Sprintf("entry %s committed", a.ID),
		Actual:   "no such entry",
	}
}
