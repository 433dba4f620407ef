package protocol

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/metad/internal/fault"
	"github.com/roach88/metad/internal/query"
	"github.com/roach88/metad/internal/store"
)

// Protocol verbs.
const (
	VerbEvent     = "EVENT"
	VerbTag       = "TAG"
	VerbEmbed     = "EMBED"
	VerbQuery     = "QUERY"
	VerbNLQ       = "NLQ"
	VerbRemoveTag = "REMOVE_TAG"
	VerbDelete    = "DELETE"
	VerbStats     = "STATS"
	VerbPing      = "PING"
	VerbHelp      = "HELP"
)

// MaxLineBytes bounds one protocol line. Embedding blobs dominate.
const MaxLineBytes = 16 << 20

// HelpText is the HELP response.
const HelpText = "OK: Commands: EVENT <type> <path> [extra...] | TAG <path> <key> <value> | " +
	"EMBED <path> <type> <base64> | QUERY TAG <key>=<value> | QUERY {json} | NLQ <text> | " +
	"REMOVE_TAG <path> [key] | DELETE <path> | STATS | PING | HELP"

var usage = map[string]string{
	VerbEvent:     "Usage: EVENT <type> <path> [extra...]",
	VerbTag:       "Usage: TAG <path> <key> <value>",
	VerbEmbed:     "Usage: EMBED <path> <type> <base64-blob>",
	VerbQuery:     "Usage: QUERY TAG <key>=<value> | QUERY {json}",
	VerbNLQ:       "Usage: NLQ <free text>",
	VerbRemoveTag: "Usage: REMOVE_TAG <path> [key]",
	VerbDelete:    "Usage: DELETE <path>",
}

// Decode parses one protocol line. Verbs are case-insensitive; arguments
// are whitespace-separated, except that a TAG value, an NLQ text and a
// JSON query take the rest of the line.
func Decode(line string) (Command, error) {
	line = strings.TrimSpace(line)
	verb, rest := cut(line)

	switch strings.ToUpper(verb) {
	case VerbEvent:
		return decodeEvent(rest)
	case VerbTag:
		return decodeTag(rest)
	case VerbEmbed:
		return decodeEmbed(rest)
	case VerbQuery:
		return decodeQuery(rest)
	case VerbNLQ:
		if rest == "" {
			return nil, usageError(VerbNLQ)
		}
		return NLQCmd{Text: rest}, nil
	case VerbRemoveTag:
		args := strings.Fields(rest)
		switch len(args) {
		case 1:
			return RemoveTagCmd{Path: args[0]}, nil
		case 2:
			return RemoveTagCmd{Path: args[0], Key: args[1]}, nil
		}
		return nil, usageError(VerbRemoveTag)
	case VerbDelete:
		args := strings.Fields(rest)
		if len(args) != 1 {
			return nil, usageError(VerbDelete)
		}
		return DeleteCmd{Path: args[0]}, nil
	case VerbStats:
		return StatsCmd{}, nil
	case VerbPing:
		return PingCmd{}, nil
	case VerbHelp:
		return HelpCmd{}, nil
	}
	return nil, fault.New(fault.UnsupportedCommand, "Unknown command")
}

func decodeEvent(rest string) (Command, error) {
	args := strings.Fields(rest)
	if len(args) < 2 {
		return nil, usageError(VerbEvent)
	}

	extra := args[2:]
	lc := store.Lifecycle{
		Op:    store.ParseOp(args[0]),
		Path:  args[1],
		Extra: strings.Join(extra, " "),
	}

	for _, tok := range extra {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			if lc.Op == store.OpRename && lc.Target == "" {
				lc.Target = tok
			}
			continue
		}
		if err := setAttr(&lc.Attrs, strings.ToLower(key), value); err != nil {
			return nil, err
		}
	}

	if lc.Op == store.OpRename && lc.Target == "" {
		return nil, fault.New(fault.InvalidArgument, "Usage: EVENT RENAME <path> <new-path>")
	}
	return EventCmd{Lifecycle: lc}, nil
}

// setAttr applies a key=value token from an EVENT's extra payload. Unknown
// keys are kept only in the event's extra text.
func setAttr(a *store.Attributes, key, value string) error {
	switch key {
	case "volume", "volume_id":
		a.VolumeID = value
	case "inode":
		a.Inode = value
	case "checksum":
		a.Checksum = value
	case "mtime", "modified", "modified_time":
		ts, err := parseMTime(value)
		if err != nil {
			return fault.Newf(fault.InvalidArgument, "Invalid mtime: %s", value)
		}
		a.ModifiedTime = ts
	}
	return nil
}

// parseMTime accepts unix seconds or RFC 3339.
func parseMTime(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

func decodeTag(rest string) (Command, error) {
	path, rest := cut(rest)
	key, value := cut(rest)
	if path == "" || key == "" || value == "" {
		return nil, usageError(VerbTag)
	}
	return TagCmd{Path: path, Key: key, Value: value}, nil
}

func decodeEmbed(rest string) (Command, error) {
	args := strings.Fields(rest)
	if len(args) != 3 {
		return nil, usageError(VerbEmbed)
	}
	blob, err := base64.StdEncoding.DecodeString(args[2])
	if err != nil {
		return nil, fault.Wrap(fault.InvalidArgument, "Invalid embedding encoding", err)
	}
	return EmbedCmd{Path: args[0], Type: args[1], Blob: blob}, nil
}

func decodeQuery(rest string) (Command, error) {
	if rest == "" {
		return nil, usageError(VerbQuery)
	}

	if strings.HasPrefix(rest, "{") {
		cmd, err := query.ParseCommand([]byte(rest))
		if err != nil {
			return nil, fault.Wrap(fault.UnsupportedQuery, "Unsupported query", err)
		}
		return StructuredQueryCmd{Command: cmd}, nil
	}

	kind, criteria := cut(rest)
	if strings.ToUpper(kind) != "TAG" {
		return nil, fault.New(fault.UnsupportedQuery, "Unsupported query")
	}

	key, value := splitCriteria(criteria)
	if key == "" || strings.ContainsAny(key, " \t") {
		return nil, fault.New(fault.UnsupportedQuery, "Unsupported query")
	}
	return QueryCmd{Key: key, Value: value}, nil
}

// splitCriteria parses QUERY TAG key=value, key value, or key:value, in
// that order of preference. Keys may contain ':' (TAG stores "ns:team"
// as-is), so ':' only separates when neither '=' nor whitespace does.
func splitCriteria(s string) (key, value string) {
	s = strings.TrimSpace(s)
	if k, v, ok := strings.Cut(s, "="); ok {
		return strings.TrimSpace(k), strings.TrimSpace(v)
	}
	if strings.ContainsAny(s, " \t") {
		return cut(s)
	}
	if k, v, ok := strings.Cut(s, ":"); ok {
		return k, v
	}
	return s, ""
}

// cut splits s at its first run of whitespace.
func cut(s string) (head, tail string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

func usageError(verb string) error {
	return fault.New(fault.InvalidArgument, usage[verb])
}

// InternalErrorLine answers a command that failed for a reason the client
// cannot act on.
const InternalErrorLine = "ERR: internal error"

// ErrorLine renders err as a response line. Errors without a fault code
// are internal and their detail stays in the daemon's log.
func ErrorLine(err error) string {
	if fault.CodeOf(err) == "" {
		return InternalErrorLine
	}
	return "ERR: " + fault.MessageOf(err)
}
