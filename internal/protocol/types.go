package protocol

import (
	"github.com/roach88/metad/internal/query"
	"github.com/roach88/metad/internal/store"
)

// Command is a decoded protocol line.
//
// This is a sealed interface - only types in this package can implement it.
type Command interface {
	commandNode()

	// Name is the protocol verb, used for metrics and logs.
	Name() string
}

// EventCmd records a lifecycle or custom event.
type EventCmd struct {
	Lifecycle store.Lifecycle
}

// TagCmd adds one tag.
type TagCmd struct {
	Path  string
	Key   string
	Value string
}

// EmbedCmd stores an embedding blob.
type EmbedCmd struct {
	Path string
	Type string
	Blob []byte
}

// QueryCmd is the single-criterion query "QUERY TAG key=value".
type QueryCmd struct {
	Key   string
	Value string
}

// StructuredQueryCmd carries a JSON command executed by the query engine.
type StructuredQueryCmd struct {
	Command query.Command
}

// NLQCmd is a natural-language request.
type NLQCmd struct {
	Text string
}

// RemoveTagCmd removes tags by key, or all tags when Key is empty.
type RemoveTagCmd struct {
	Path string
	Key  string
}

// DeleteCmd deletes a file record.
type DeleteCmd struct {
	Path string
}

// StatsCmd reports row counts.
type StatsCmd struct{}

// PingCmd is a liveness probe.
type PingCmd struct{}

// HelpCmd lists the commands.
type HelpCmd struct{}

// Sealed interface markers.
func (EventCmd) commandNode()           {}
func (TagCmd) commandNode()             {}
func (EmbedCmd) commandNode()           {}
func (QueryCmd) commandNode()           {}
func (StructuredQueryCmd) commandNode() {}
func (NLQCmd) commandNode()             {}
func (RemoveTagCmd) commandNode()       {}
func (DeleteCmd) commandNode()          {}
func (StatsCmd) commandNode()           {}
func (PingCmd) commandNode()            {}
func (HelpCmd) commandNode()            {}

func (EventCmd) Name() string           { return VerbEvent }
func (TagCmd) Name() string             { return VerbTag }
func (EmbedCmd) Name() string           { return VerbEmbed }
func (QueryCmd) Name() string           { return VerbQuery }
func (StructuredQueryCmd) Name() string { return VerbQuery }
func (NLQCmd) Name() string             { return VerbNLQ }
func (RemoveTagCmd) Name() string       { return VerbRemoveTag }
func (DeleteCmd) Name() string          { return VerbDelete }
func (StatsCmd) Name() string           { return VerbStats }
func (PingCmd) Name() string            { return VerbPing }
func (HelpCmd) Name() string            { return VerbHelp }
