package wal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/metad/internal/canon"
	"github.com/roach88/metad/internal/store"
)

// Entry is one operation in the upstream log.
type Entry struct {
	ID        string          `json:"id,omitempty"`
	Op        string          `json:"op"`
	Path      string          `json:"path"`
	Extra     json.RawMessage `json:"extra,omitempty"`
	Committed bool            `json:"committed"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Key returns the entry's identity: the upstream id when present, else the
// content hash of its canonical {op, path, extra, timestamp}.
func (e Entry) Key() (string, error) {
	if e.ID != "" {
		return e.ID, nil
	}

	extra, err := decodeRaw(e.Extra)
	if err != nil {
		return "", fmt.Errorf("entry key: extra: %w", err)
	}
	ts, err := decodeRaw(e.Timestamp)
	if err != nil {
		return "", fmt.Errorf("entry key: timestamp: %w", err)
	}

	return canon.Hash(canon.DomainWALEntry, map[string]any{
		"op":        e.Op,
		"path":      e.Path,
		"extra":     extra,
		"timestamp": ts,
	})
}

// ExtraString renders Extra for the event log: a JSON string is unquoted,
// any other value is kept as compact JSON, and an absent value is "".
func (e Entry) ExtraString() string {
	raw := bytes.TrimSpace(e.Extra)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// RenameTarget returns the destination path of a RENAME entry. Extra may
// be the path itself or an object with a "to", "dest", "target" or
// "new_path" field.
func (e Entry) RenameTarget() string {
	raw := bytes.TrimSpace(e.Extra)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, k := range []string{"to", "dest", "target", "new_path"} {
		if v, ok := obj[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Lifecycle maps the entry onto a store mutation.
func (e Entry) Lifecycle() store.Lifecycle {
	lc := store.Lifecycle{
		Op:    store.ParseOp(e.Op),
		Path:  e.Path,
		Extra: e.ExtraString(),
	}
	if lc.Op == store.OpRename {
		lc.Target = e.RenameTarget()
	}
	return lc
}

func decodeRaw(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
