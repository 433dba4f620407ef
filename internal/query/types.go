package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/metad/internal/fault"
)

// Action is what to do with the files a filter set matches.
type Action string

const (
	ActionList      Action = "list"
	ActionDelete    Action = "delete"
	ActionTag       Action = "tag"
	ActionRemoveTag Action = "remove_tag"
	ActionSummarize Action = "summarize"
)

// Destructive reports whether the action mutates or removes matched files
// in a way that cannot be undone by a later command.
func (a Action) Destructive() bool {
	return a == ActionDelete || a == ActionRemoveTag
}

// Logic combines the predicates of a filter set.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ParseLogic normalizes a logic mode. The empty string means AND.
func ParseLogic(s string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AND":
		return LogicAnd, nil
	case "OR":
		return LogicOr, nil
	}
	return "", fault.Newf(fault.InvalidArgument, "Unsupported logic: %s", s)
}

// TagFilter is a tag key/value pair, used both as a filter and as the
// payload of the tag action.
type TagFilter struct {
	Key   string
	Value string
}

// DateRange selects files by modified time. Either Expr holds a relative
// expression ("last quarter", "last 30 days", ...) or From/To hold
// explicit dates (YYYY-MM-DD or RFC 3339); To is inclusive.
type DateRange struct {
	Expr string
	From string
	To   string
}

// IsZero reports whether no bound or expression is set.
func (d DateRange) IsZero() bool {
	return d == DateRange{}
}

// Filters is the filter set of a query. Absent fields do not constrain.
type Filters struct {
	Project       string
	Collaborators []string
	Tags          []TagFilter
	DateRange     *DateRange
	Subvol        string
	Type          string
	// VolumeID and Checksum match ingestion attributes of the file record
	// exactly.
	VolumeID string
	Checksum string
}

// IsEmpty reports whether the filter set has no predicates.
func (f Filters) IsEmpty() bool {
	return f.Project == "" &&
		len(f.Collaborators) == 0 &&
		len(f.Tags) == 0 &&
		(f.DateRange == nil || f.DateRange.IsZero()) &&
		f.Subvol == "" &&
		f.Type == "" &&
		f.VolumeID == "" &&
		f.Checksum == ""
}

// Command is a structured query: filters, logic mode, and an action.
type Command struct {
	Action  Action
	Filters Filters
	Logic   Logic
	// Tag is the payload of ActionTag. For ActionRemoveTag a non-empty
	// Tag.Key narrows removal to that key.
	Tag *TagFilter
}

// Result is the outcome of executing a Command.
type Result struct {
	Action Action
	Paths  []string
	Count  int
}

// Line renders the result as a protocol response line.
func (r Result) Line() string {
	switch r.Action {
	case ActionDelete:
		return fmt.Sprintf("OK: Deleted %d files", r.Count)
	case ActionTag:
		return fmt.Sprintf("OK: Tagged %d files", r.Count)
	case ActionRemoveTag:
		return fmt.Sprintf("OK: Removed tags from %d files", r.Count)
	case ActionSummarize:
		return "RESULT: " + MarshalJSON(struct {
			Count int      `json:"count"`
			Paths []string `json:"paths"`
		}{r.Count, nonNil(r.Paths)})
	default:
		return "RESULT: " + MarshalJSON(nonNil(r.Paths))
	}
}

// MarshalJSON encodes v on one line without HTML escaping, so paths such
// as "a&b" are returned as written.
func MarshalJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimRight(buf.String(), "\n")
}

func nonNil(paths []string) []string {
	if paths == nil {
		return []string{}
	}
	return paths
}
