package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			RunWithGolden(t, s)
		})
	}
}

func TestRun_ReportsMismatchedExpectations(t *testing.T) {
	s := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations are reported, not fatal",
		Steps: []Step{
			{Send: "PING", Expect: "OK: PING"},
			{Send: "STATS", ExpectPrefix: "OK"},
			{Send: "HELP", ExpectPrefix: "OK: Commands"},
		},
	}

	result, err := Run(t, s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected "OK: PING", got "OK: PONG"`)
	assert.Contains(t, result.Errors[1], "expected prefix")
	assert.Len(t, result.Transcript, 3)
}

func TestRun_FailedAssertionIncludesTranscript(t *testing.T) {
	s := &Scenario{
		Name:        "failed_assertion",
		Description: "assertion errors carry the transcript",
		Steps:       []Step{{Send: "TAG /a k v", Expect: "OK: Tag added"}},
		Assertions: []Assertion{
			{Type: AssertFileAbsent, Path: "/a"},
			{Type: AssertTagPresent, Path: "/a", Key: "k", Value: "other"},
			{Type: AssertEventCount, Path: "/a", Count: 1},
			{Type: AssertWALCommitted, ID: "nope"},
		},
	}

	result, err := Run(t, s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)

	assert.Contains(t, result.Errors[0], "Assertion failed: file_absent")
	assert.Contains(t, result.Errors[0], "[0] TAG /a k v -> OK: Tag added")
	assert.Contains(t, result.Errors[1], "tags [k=v]")
	assert.Contains(t, result.Errors[2], "Actual: 0")
	assert.Contains(t, result.Errors[3], "no such entry")
}

func TestRun_InvalidWALExtra(t *testing.T) {
	s := &Scenario{
		Name:        "bad_extra",
		Description: "extra that cannot be encoded",
		WAL:         []WALEntry{{Op: "CREATE", Path: "/a", Extra: map[string]any{"c": make(chan int)}}},
		Steps:       []Step{{Send: "PING"}},
	}

	_, err := Run(t, s)
	assert.Error(t, err)
}
