package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/metad/internal/wal"
)

// Scenario defines an end-to-end test: WAL contents, oracle answers, a
// sequence of steps, and assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// WAL is the authority's log at the start of the scenario.
	WAL []WALEntry `yaml:"wal,omitempty"`

	// Oracle maps NLQ text to the oracle's raw answer. Text with no answer
	// makes the oracle unavailable, so the keyword grammar is used.
	Oracle map[string]string `yaml:"oracle,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store and authority.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// WALEntry is one authority log entry.
type WALEntry struct {
	ID        string `yaml:"id,omitempty"`
	Op        string `yaml:"op"`
	Path      string `yaml:"path"`
	Extra     any    `yaml:"extra,omitempty"`
	Committed bool   `yaml:"committed,omitempty"`
}

// Entry converts e to its wire form.
func (e WALEntry) Entry() (wal.Entry, error) {
	out := wal.Entry{ID: e.ID, Op: e.Op, Path: e.Path, Committed: e.Committed}
	if e.Extra != nil {
		raw, err := json.Marshal(e.Extra)
		if err != nil {
			return wal.Entry{}, fmt.Errorf("wal entry %s %s: extra: %w", e.Op, e.Path, err)
		}
		out.Extra = raw
	}
	return out, nil
}

// Step is exactly one of: a protocol line to send, a relay cycle, or a
// number of commit acknowledgements the authority should reject.
type Step struct {
	Send        string `yaml:"send,omitempty"`
	Relay       bool   `yaml:"relay,omitempty"`
	FailCommits int    `yaml:"fail_commits,omitempty"`

	// Expect is the exact response; ExpectPrefix matches its start.
	// Neither means the response is only recorded.
	Expect       string `yaml:"expect,omitempty"`
	ExpectPrefix string `yaml:"expect_prefix,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Path  string `yaml:"path,omitempty"`
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`
	Op    string `yaml:"op,omitempty"`
	ID    string `yaml:"id,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFileExists   = "file_exists"
	AssertFileAbsent   = "file_absent"
	AssertTagPresent   = "tag_present"
	AssertEventCount   = "event_count"
	AssertWALCommitted = "wal_committed"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	seen := map[string]string{}
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(p)
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, e := range s.WAL {
		if e.Op == "" || e.Path == "" {
			return fmt.Errorf("wal[%d]: op and path are required", i)
		}
	}

	for i, step := range s.Steps {
		kinds := 0
		if step.Send != "" {
			kinds++
		}
		if step.Relay {
			kinds++
		}
		if step.FailCommits != 0 {
			kinds++
			if step.FailCommits < 0 {
				return fmt.Errorf("steps[%d]: fail_commits must be positive", i)
			}
		}
		if kinds != 1 {
			return fmt.Errorf("steps[%d]: exactly one of send, relay or fail_commits is required", i)
		}
		if step.FailCommits != 0 && (step.Expect != "" || step.ExpectPrefix != "") {
			return fmt.Errorf("steps[%d]: fail_commits has no response to expect", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFileExists, AssertFileAbsent:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
		}
	case AssertTagPresent:
		if a.Path == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: path and key are required for tag_present", index)
		}
	case AssertEventCount:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertWALCommitted:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for wal_committed", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
