package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/metad/internal/fault"
)

// commandValidate is the validator instance for decoded commands.
var commandValidate *validator.Validate

func init() {
	commandValidate = validator.New()
}

// wireCommand is the JSON shape of a structured command, as sent in
// QUERY {json} lines and as produced by the oracle:
//
//	{"action": "tag",
//	 "filters": {"project": "Alpha", "date_range": "last quarter"},
//	 "tag": {"key": "reviewed", "value": "true"},
//	 "logic": "AND"}
//
// "tags", "date_range" and "collaborators" are also accepted at top level.
type wireCommand struct {
	Action        string         `json:"action" validate:"required"`
	Filters       wireFilters    `json:"filters"`
	Tag           *wireTag       `json:"tag"`
	Tags          tagList        `json:"tags"`
	DateRange     *wireDateRange `json:"date_range"`
	Collaborators stringList     `json:"collaborators"`
	Logic         string         `json:"logic" validate:"omitempty,oneof=AND OR"`
}

type wireFilters struct {
	Project       string         `json:"project"`
	Collaborator  stringList     `json:"collaborator"`
	Collaborators stringList     `json:"collaborators"`
	Tag           tagList        `json:"tag"`
	Tags          tagList        `json:"tags"`
	DateRange     *wireDateRange `json:"date_range"`
	Subvol        string         `json:"subvol"`
	Type          string         `json:"type"`
	VolumeID      string         `json:"volume_id"`
	Checksum      string         `json:"checksum"`
}

type wireTag struct {
	Key   string `validate:"required"`
	Value string
}

// UnmarshalJSON accepts {"key": k, "value": v} with any scalar value, or
// a "key:value" string.
func (t *wireTag) UnmarshalJSON(data []byte) error {
	tags, err := decodeTags(data)
	if err != nil {
		return err
	}
	if len(tags) != 1 {
		return fmt.Errorf("tag payload must hold exactly one key/value pair")
	}
	*t = wireTag{Key: tags[0].Key, Value: tags[0].Value}
	return nil
}

// tagList accepts a map {"k": "v"}, a "k:v" string, a single
// {"key","value"} object, or an array of strings/objects.
type tagList []TagFilter

func (l *tagList) UnmarshalJSON(data []byte) error {
	tags, err := decodeTags(data)
	if err != nil {
		return err
	}
	*l = tags
	return nil
}

// stringList accepts a string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*l = stringList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings")
	}
	*l = many
	return nil
}

// wireDateRange accepts an expression string or {"from": .., "to": ..}.
type wireDateRange DateRange

func (d *wireDateRange) UnmarshalJSON(data []byte) error {
	var expr string
	if err := json.Unmarshal(data, &expr); err == nil {
		*d = wireDateRange{Expr: expr}
		return nil
	}
	var bounds struct {
		From string `json:"from"`
		To   string `json:"to"`
		Expr string `json:"expr"`
	}
	if err := json.Unmarshal(data, &bounds); err != nil {
		return fmt.Errorf("date_range must be a string or {from, to}")
	}
	*d = wireDateRange{Expr: bounds.Expr, From: bounds.From, To: bounds.To}
	return nil
}

// ParseCommand decodes a structured command from JSON.
//
// Malformed JSON or a missing action fails with PARSE_FAILURE. An unknown
// action decodes successfully and is rejected by Engine.Execute.
func ParseCommand(data []byte) (Command, error) {
	var w wireCommand
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Command{}, fault.Wrap(fault.ParseFailure, "Invalid command JSON", err)
	}

	w.Action = strings.ToLower(strings.TrimSpace(w.Action))
	w.Logic = strings.ToUpper(strings.TrimSpace(w.Logic))
	if err := commandValidate.Struct(w); err != nil {
		return Command{}, fault.Wrap(fault.ParseFailure, "Invalid command", err)
	}

	logic, err := ParseLogic(w.Logic)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{
		Action: Action(w.Action),
		Logic:  logic,
		Filters: Filters{
			Project:  w.Filters.Project,
			Subvol:   w.Filters.Subvol,
			Type:     w.Filters.Type,
			VolumeID: w.Filters.VolumeID,
			Checksum: w.Filters.Checksum,
		},
	}

	f := &cmd.Filters
	f.Collaborators = append(f.Collaborators, w.Filters.Collaborator...)
	f.Collaborators = append(f.Collaborators, w.Filters.Collaborators...)
	f.Collaborators = append(f.Collaborators, w.Collaborators...)
	f.Tags = append(f.Tags, w.Filters.Tag...)
	f.Tags = append(f.Tags, w.Filters.Tags...)

	switch {
	case w.Filters.DateRange != nil:
		dr := DateRange(*w.Filters.DateRange)
		f.DateRange = &dr
	case w.DateRange != nil:
		dr := DateRange(*w.DateRange)
		f.DateRange = &dr
	}

	if w.Tag != nil {
		t := TagFilter{Key: w.Tag.Key, Value: w.Tag.Value}
		switch cmd.Action {
		case ActionTag, ActionRemoveTag:
			cmd.Tag = &t
		default:
			// Other actions have no payload; treat "tag" as a filter.
			f.Tags = append(f.Tags, t)
		}
	}

	// Top-level "tags" is the payload of a tag action when no explicit
	// "tag" is given; otherwise it filters.
	if cmd.Action == ActionTag && cmd.Tag == nil && len(w.Tags) == 1 {
		cmd.Tag = &w.Tags[0]
	} else {
		f.Tags = append(f.Tags, w.Tags...)
	}

	return cmd, nil
}

func decodeTags(data []byte) ([]TagFilter, error) {
	if isNull(data) {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if t, ok := SplitTag(s); ok {
			return []TagFilter{t}, nil
		}
		// A bare word is a value of the generic "tag" key.
		return []TagFilter{{Key: "tag", Value: s}}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		return tagsFromObject(obj)
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("tags must be a string, object, or array")
	}
	var out []TagFilter
	for _, raw := range arr {
		tags, err := decodeTags(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, tags...)
	}
	return out, nil
}

func tagsFromObject(obj map[string]any) ([]TagFilter, error) {
	if k, ok := obj["key"]; ok {
		key, err := scalarString(k)
		if err != nil {
			return nil, fmt.Errorf("tag key: %w", err)
		}
		value, err := scalarString(obj["value"])
		if err != nil {
			return nil, fmt.Errorf("tag value: %w", err)
		}
		return []TagFilter{{Key: key, Value: value}}, nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TagFilter, 0, len(keys))
	for _, k := range keys {
		v, err := scalarString(obj[k])
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", k, err)
		}
		out = append(out, TagFilter{Key: k, Value: v})
	}
	return out, nil
}

// SplitTag splits "key:value" or "key=value".
func SplitTag(s string) (TagFilter, bool) {
	i := strings.IndexAny(s, ":=")
	if i <= 0 {
		return TagFilter{}, false
	}
	return TagFilter{Key: strings.TrimSpace(s[:i]), Value: strings.TrimSpace(s[i+1:])}, true
}

func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case json.Number:
		return val.String(), nil
	default:
		return "", fmt.Errorf("expected a scalar, got %T", v)
	}
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
