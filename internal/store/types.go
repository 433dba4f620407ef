package store

import (
	"errors"
	"strings"

	"github.com/roach88/metad/internal/fault"
)

// ErrNotFound is the cause carried by every NOT_FOUND fault the store
// returns. Match with errors.Is or fault.Is(err, fault.NotFound).
var ErrNotFound = errors.New("not found")

func notFound(path string) error {
	return &fault.Error{
		Code:    fault.NotFound,
		Message: "File not found: " + path,
		Err:     ErrNotFound,
	}
}

// Op is a file lifecycle operation.
type Op string

const (
	OpCreate Op = "CREATE"
	OpWrite  Op = "WRITE"
	OpModify Op = "MODIFY"
	OpDelete Op = "DELETE"
	OpRename Op = "RENAME"
)

// ParseOp normalizes an operation name. Unknown names are returned as-is
// (upper-cased); check Known before treating them as lifecycle operations.
func ParseOp(s string) Op {
	return Op(strings.ToUpper(strings.TrimSpace(s)))
}

// Known reports whether o is one of the lifecycle operations the store can
// apply idempotently.
func (o Op) Known() bool {
	switch o {
	case OpCreate, OpWrite, OpModify, OpDelete, OpRename:
		return true
	}
	return false
}

// File is a persisted file record.
type File struct {
	ID           int64  `json:"id"`
	Path         string `json:"path"`
	VolumeID     string `json:"volume_id,omitempty"`
	Inode        string `json:"inode,omitempty"`
	Checksum     string `json:"checksum,omitempty"`
	ModifiedTime int64  `json:"modified_time,omitempty"`
}

// Attributes are optional ingestion attributes of a file.
// Zero fields leave the stored value unchanged.
type Attributes struct {
	VolumeID     string
	Inode        string
	Checksum     string
	ModifiedTime int64 // unix seconds
}

// IsZero reports whether no attribute is set.
func (a Attributes) IsZero() bool {
	return a == Attributes{}
}

// Tag is a (file, key, value) triple.
type Tag struct {
	ID     int64  `json:"id"`
	FileID int64  `json:"file_id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// Embedding is an opaque vector blob attached to a file.
type Embedding struct {
	FileID int64  `json:"file_id"`
	Type   string `json:"type"`
	Blob   []byte `json:"blob"`
}

// Event is an audit-trail row.
type Event struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Path      string `json:"path"`
	Extra     string `json:"extra,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Stats are row counts per table.
type Stats struct {
	Files      int64 `json:"files"`
	Tags       int64 `json:"tags"`
	Embeddings int64 `json:"embeddings"`
	Events     int64 `json:"events"`
}

// Lifecycle describes one file lifecycle mutation plus the event that
// records it.
type Lifecycle struct {
	Op     Op
	Path   string
	Target string // RENAME destination
	Extra  string // recorded verbatim in the event row
	Attrs  Attributes
}
