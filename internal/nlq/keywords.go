package nlq

import (
	"strings"

	"github.com/roach88/metad/internal/fault"
	"github.com/roach88/metad/internal/query"
)

var verbs = map[string]query.Action{
	"list":      query.ActionList,
	"show":      query.ActionList,
	"find":      query.ActionList,
	"get":       query.ActionList,
	"tag":       query.ActionTag,
	"label":     query.ActionTag,
	"mark":      query.ActionTag,
	"untag":     query.ActionRemoveTag,
	"delete":    query.ActionDelete,
	"remove":    query.ActionDelete,
	"rm":        query.ActionDelete,
	"summarize": query.ActionSummarize,
	"summarise": query.ActionSummarize,
	"summary":   query.ActionSummarize,
	"count":     query.ActionSummarize,
}

// Named filter keys understood by the keyword parser.
var filterKeys = map[string]string{
	"project":       "project",
	"collaborator":  "collaborator",
	"collaborators": "collaborator",
	"collab":        "collaborator",
	"subvol":        "subvol",
	"volume":        "subvol",
	"type":          "type",
	"ext":           "type",
	"volume_id":     "volume_id",
	"vol":           "volume_id",
	"checksum":      "checksum",
	"sha":           "checksum",
}

// maxDateWords is the longest relative date phrase ("last 30 days").
const maxDateWords = 3

// ParseKeywords is the local fallback grammar used when the oracle cannot
// answer. It recognizes:
//
//	verbs         list|show|find|get, tag|label|mark, untag,
//	              delete|remove|rm, summarize|count
//	filters       key:value or key=value (project, collaborator, subvol,
//	              type, volume_id, checksum; any other key is a tag
//	              filter), /path prefixes
//	tag payload   "with key:value" or "as key:value"
//	logic         "or" anywhere switches to OR
//	dates         relative phrases such as "last quarter", "last 7 days"
//
// "remove tags" means untag. A destructive verb with no filter is rejected
// rather than applied to every file.
func ParseKeywords(text string) (query.Command, error) {
	words := tokenize(text)

	cmd := query.Command{Logic: query.LogicAnd}
	payloadNext := false

	for i := 0; i < len(words); i++ {
		w := words[i]
		lw := strings.ToLower(w)

		if n, expr := dateAt(words, i); n > 0 {
			cmd.Filters.DateRange = &query.DateRange{Expr: expr}
			i += n - 1
			continue
		}

		switch {
		case lw == "or":
			cmd.Logic = query.LogicOr
			continue
		case lw == "with" || lw == "as":
			payloadNext = true
			continue
		case cmd.Action == "" && verbs[lw] != "":
			cmd.Action = verbs[lw]
			if cmd.Action == query.ActionDelete && i+1 < len(words) && isTagWord(words[i+1]) {
				cmd.Action = query.ActionRemoveTag
				i++
			}
			continue
		case strings.HasPrefix(w, "/"):
			cmd.Filters.Subvol = w
			continue
		}

		tag, ok := query.SplitTag(w)
		if !ok || tag.Value == "" {
			payloadNext = false
			continue
		}
		if payloadNext && cmd.Action == query.ActionTag && cmd.Tag == nil {
			cmd.Tag = &tag
			payloadNext = false
			continue
		}
		payloadNext = false
		addFilter(&cmd.Filters, tag)
	}

	if cmd.Action == "" {
		return query.Command{}, fault.New(fault.ParseFailure, "no verb recognized")
	}
	if cmd.Action == query.ActionTag && cmd.Tag == nil {
		// Without "with/as", the last tag filter is the payload when there is
		// still something left to filter on.
		if n := len(cmd.Filters.Tags); n > 0 && !withoutLastTag(cmd.Filters).IsEmpty() {
			last := cmd.Filters.Tags[n-1]
			cmd.Filters.Tags = cmd.Filters.Tags[:n-1]
			cmd.Tag = &last
		} else {
			return query.Command{}, fault.New(fault.ParseFailure, "tag needs a key:value to apply")
		}
	}
	if cmd.Action.Destructive() && cmd.Filters.IsEmpty() {
		return query.Command{}, fault.New(fault.ParseFailure, "refusing unfiltered destructive command")
	}
	return cmd, nil
}

func addFilter(f *query.Filters, tag query.TagFilter) {
	switch filterKeys[strings.ToLower(tag.Key)] {
	case "project":
		f.Project = tag.Value
	case "collaborator":
		f.Collaborators = append(f.Collaborators, tag.Value)
	case "subvol":
		f.Subvol = tag.Value
	case "type":
		f.Type = tag.Value
	case "volume_id":
		f.VolumeID = tag.Value
	case "checksum":
		f.Checksum = tag.Value
	default:
		f.Tags = append(f.Tags, tag)
	}
}

func withoutLastTag(f query.Filters) query.Filters {
	f.Tags = f.Tags[:len(f.Tags)-1]
	return f
}

// dateAt reports the longest relative date phrase starting at words[i].
func dateAt(words []string, i int) (int, string) {
	for n := maxDateWords; n >= 1; n-- {
		if i+n > len(words) {
			continue
		}
		phrase := strings.Join(words[i:i+n], " ")
		if query.IsDateExpr(phrase) {
			return n, strings.ToLower(phrase)
		}
	}
	return 0, ""
}

func isTagWord(w string) bool {
	switch strings.ToLower(w) {
	case "tag", "tags":
		return true
	}
	return false
}

// tokenize splits on whitespace and strips trailing sentence punctuation
// and surrounding quotes.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'`)
		f = strings.TrimRight(f, ",.;!?")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
