package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/metad/internal/canon"
)

// TranscriptSnapshot is the golden form of a scenario run.
type TranscriptSnapshot struct {
	ScenarioName string
	Transcript   []Exchange
}

// toCanonicalMap converts the snapshot for canonical JSON serialization.
func (s *TranscriptSnapshot) toCanonicalMap() map[string]any {
	list := make([]any, len(s.Transcript))
	for i, ex := range s.Transcript {
		list[i] = map[string]any{
			"step":     ex.Step,
			"request":  ex.Request,
			"response": ex.Response,
		}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"transcript":    list,
	}
}

// Marshal returns the snapshot's canonical JSON followed by a newline.
func (s *TranscriptSnapshot) Marshal() ([]byte, error) {
	data, err := canon.Marshal(s.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario, fails t on any expectation or
// assertion failure, and compares the transcript against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(t, scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's transcript against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	snapshot := TranscriptSnapshot{ScenarioName: scenarioName, Transcript: result.Transcript}
	data, err := snapshot.Marshal()
	if err != nil {
		t.Fatalf("marshal transcript: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
}
