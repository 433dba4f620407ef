package nlq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metad/internal/query"
	"github.com/roach88/metad/internal/store"
)

var bg = context.Background()

// oracleFunc adapts a function to oracle.Client.
type oracleFunc func(ctx context.Context, text string) (string, error)

func (f oracleFunc) Ask(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

func newTestHandler(t *testing.T, opts ...Option) (*Handler, *store.Store) {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC) }
	st, err := store.Open(filepath.Join(t.TempDir(), "nlq.db"), store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := query.New(st, query.WithClock(clock), query.WithLogger(logger))
	opts = append([]Option{WithLogger(logger)}, opts...)
	return New(engine, opts...), st
}

func seedAlpha(t *testing.T, st *store.Store) {
	t.Helper()
	require.NoError(t, st.AddTag(bg, "/a", "project", "Alpha"))
	require.NoError(t, st.AddTag(bg, "/b", "project", "Alpha"))
	require.NoError(t, st.AddTag(bg, "/c", "project", "Beta"))
}

func TestHandle_OracleCommand(t *testing.T) {
	var asked string
	h, st := newTestHandler(t, WithOracle(oracleFunc(func(_ context.Context, text string) (string, error) {
		asked = text
		return "Here you go:\n```json\n{\"action\":\"tag\",\"filters\":{\"project\":\"Alpha\"},\"tag\":{\"key\":\"reviewed\",\"value\":\"true\"}}\n```", nil
	})))
	seedAlpha(t, st)

	line := h.Handle(bg, "mark all alpha files as reviewed")
	assert.Equal(t, "OK: Tagged 2 files", line)
	assert.Equal(t, "mark all alpha files as reviewed", asked)

	paths, err := st.Query(bg, "reviewed", "true")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, paths)
}

func TestHandle_LiteralJSONSkipsOracle(t *testing.T) {
	h, st := newTestHandler(t, WithOracle(oracleFunc(func(context.Context, string) (string, error) {
		t.Fatal("oracle must not be consulted")
		return "", nil
	})))
	seedAlpha(t, st)

	line := h.Handle(bg, `{"action":"tag","filters":{"project":"Alpha"},"tag":{"key":"reviewed","value":"true"}}`)
	assert.Equal(t, "OK: Tagged 2 files", line)
}

func TestHandle_OracleProseIsEchoed(t *testing.T) {
	h, _ := newTestHandler(t, WithOracle(oracleFunc(func(context.Context, string) (string, error) {
		return "I'm not sure what\nyou mean.", nil
	})))

	assert.Equal(t, "ECHO: I'm not sure what you mean.", h.Handle(bg, "do the thing"))
}

func TestHandle_FallbackWhenOracleFails(t *testing.T) {
	h, st := newTestHandler(t, WithOracle(oracleFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})))
	seedAlpha(t, st)

	assert.Equal(t, `RESULT: ["/a","/b"]`, h.Handle(bg, "list files tagged project:Alpha"))
}

func TestHandle_FallbackWithoutOracle(t *testing.T) {
	h, st := newTestHandler(t)
	seedAlpha(t, st)

	assert.Equal(t, `RESULT: ["/a","/b"]`, h.Handle(bg, "list files tagged project:Alpha"))
	assert.Equal(t, CouldNotParse, h.Handle(bg, "please be nice"))
	assert.Equal(t, CouldNotParse, h.Handle(bg, "   "))
}

func TestHandle_RateLimitFallsBack(t *testing.T) {
	calls := 0
	h, st := newTestHandler(t,
		WithRateLimit(1),
		WithOracle(oracleFunc(func(context.Context, string) (string, error) {
			calls++
			return `{"action":"summarize","filters":{"project":"Beta"}}`, nil
		})))
	seedAlpha(t, st)

	assert.Equal(t, `RESULT: {"count":1,"paths":["/c"]}`, h.Handle(bg, "how many beta files"))
	assert.Equal(t, `RESULT: ["/a","/b"]`, h.Handle(bg, "list project:Alpha"))
	assert.Equal(t, 1, calls)
}

func TestHandle_UnsupportedActionIsAnErrorLine(t *testing.T) {
	h, _ := newTestHandler(t, WithOracle(oracleFunc(func(context.Context, string) (string, error) {
		return `{"action":"archive"}`, nil
	})))

	assert.Equal(t, "ERR: Unsupported action: archive", h.Handle(bg, "archive old stuff"))
}

func TestHandle_OraclePanicIsContained(t *testing.T) {
	h, _ := newTestHandler(t, WithOracle(oracleFunc(func(context.Context, string) (string, error) {
		panic("boom")
	})))

	assert.Equal(t, CouldNotParse, h.Handle(bg, "anything"))
}

func TestExtractCommand(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"action":"list"}`, `{"action":"list"}`},
		{"```json\n{\"action\":\"list\"}\n```", `{"action":"list"}`},
		{"```\n{\"action\":\"list\"}\n``` hope it helps", `{"action":"list"}`},
		{`Sure. {"action":"list"} Anything else?`, `{"action":"list"}`},
		{"no braces here", "no braces here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractCommand(tt.in), tt.in)
	}
}

func TestHandle_StoreFailureIsInternalError(t *testing.T) {
	h, st := newTestHandler(t)
	seedAlpha(t, st)
	require.NoError(t, st.Close())

	line := h.Handle(bg, `{"action":"list","filters":{"project":"Alpha"}}`)
	assert.Equal(t, "ERR: internal error", line)
	assert.NotContains(t, line, "sql")
}
