package server

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metad/internal/nlq"
	"github.com/roach88/metad/internal/query"
	"github.com/roach88/metad/internal/store"
)

var bg = context.Background()

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store) {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC) }
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"), store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := discardLogger()
	engine := query.New(st, query.WithClock(clock), query.WithLogger(logger))
	front := nlq.New(engine, nlq.WithLogger(logger))
	return NewDispatcher(st, engine, front, WithDispatchLogger(logger)), st
}

func TestDispatch_TagThenQuery(t *testing.T) {
	d, _ := newTestDispatcher(t)

	assert.Equal(t, "OK: Tag added", d.Handle(bg, "TAG /a/b.txt project Alpha"))
	assert.Equal(t, `RESULT: ["/a/b.txt"]`, d.Handle(bg, "QUERY TAG project=Alpha"))
	assert.Equal(t, `RESULT: []`, d.Handle(bg, "QUERY TAG project=Beta"))
}

func TestDispatch_TagThenQuery_KeyWithColon(t *testing.T) {
	d, _ := newTestDispatcher(t)

	assert.Equal(t, "OK: Tag added", d.Handle(bg, "TAG /x.txt ns:team core"))
	assert.Equal(t, `RESULT: ["/x.txt"]`, d.Handle(bg, "QUERY TAG ns:team=core"))
	assert.Equal(t, `RESULT: ["/x.txt"]`, d.Handle(bg, "QUERY TAG ns:team core"))
}

func TestDispatch_Responses(t *testing.T) {
	d, st := newTestDispatcher(t)

	steps := []struct{ line, want string }{
		{"EVENT CREATE /a inode=7", "OK"},
		{"EMBED /a clip AAEC", "OK: Embedding added"},
		{"TAG /a project Alpha", "OK: Tag added"},
		{"TAG /a owner kim", "OK: Tag added"},
		{"REMOVE_TAG /a owner", "OK: Tags removed (1)"},
		{"REMOVE_TAG /zzz", "ERR: File not found: /zzz"},
		{"STATS", `RESULT: {"files":1,"tags":1,"embeddings":1,"events":1}`},
		{"DELETE /a", "OK: File deleted"},
		{"DELETE /a", "OK: File not found"},
		{"PING", "OK: PONG"},
		{"QUERY PATH /a", "ERR: Unsupported query"},
		{"BOGUS", "ERR: Unknown command"},
		{"TAG /a", "ERR: Usage: TAG <path> <key> <value>"},
		{`QUERY {"action":"archive"}`, "ERR: Unsupported action: archive"},
	}
	for _, s := range steps {
		assert.Equal(t, s.want, d.Handle(bg, s.line), s.line)
	}

	events, err := st.EventsForPath(bg, "/a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "CREATE", events[0].Type)
	assert.Equal(t, "DELETE", events[1].Type)
}

func TestDispatch_StructuredTagScenario(t *testing.T) {
	d, st := newTestDispatcher(t)
	d.Handle(bg, "TAG /a project Alpha")
	d.Handle(bg, "TAG /b project Alpha")
	d.Handle(bg, "TAG /c project Beta")

	line := `NLQ {"action":"tag","filters":{"project":"Alpha"},"tag":{"key":"reviewed","value":"true"}}`
	assert.Equal(t, "OK: Tagged 2 files", d.Handle(bg, line))

	paths, err := st.Query(bg, "reviewed", "true")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, paths)

	assert.Equal(t, `RESULT: ["/a","/b"]`, d.Handle(bg, `QUERY {"action":"list","tags":{"reviewed":"true"}}`))
}

func TestDispatch_NLQFallback(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Handle(bg, "TAG /a/b.txt project Alpha")

	assert.Equal(t, `RESULT: ["/a/b.txt"]`, d.Handle(bg, "NLQ list files tagged project:Alpha"))
	assert.Equal(t, "ERR: Could not parse NLQ", d.Handle(bg, "NLQ hello there"))
}

type panicNLQ struct{}

func (panicNLQ) Handle(context.Context, string) string { panic("boom") }

func TestDispatch_PanicBecomesErrorLine(t *testing.T) {
	d, st := newTestDispatcher(t)
	d = NewDispatcher(st, query.New(st), panicNLQ{}, WithDispatchLogger(discardLogger()))

	assert.Equal(t, "ERR: internal error", d.Handle(bg, "NLQ anything"))
	assert.Equal(t, "OK: PONG", d.Handle(bg, "PING"))
}
