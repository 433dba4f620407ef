package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metad/internal/testutil"
	"github.com/roach88/metad/internal/wal"
)

// isolateEnv clears every variable the config layer reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"METAD_DB", "METAD_LISTEN", "METAD_WAL_URL", "METAD_WAL_COMMIT_URL",
		"METAD_ORACLE_PROVIDER", "METAD_ORACLE_ENDPOINT", "METAD_ORACLE_MODEL",
		"METAD_METRICS_ADDR", "OPENAI_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

// runCLI executes the root command and returns stdout and stderr.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// startDaemon runs serve on an ephemeral TCP port until the test ends.
func startDaemon(t *testing.T, db string) string {
	t.Helper()

	ready := make(chan net.Addr, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		OnReady:     func(a net.Addr) { ready <- a },
	}
	cmd := newServeCommand(opts)
	cmd.SetOut(&lockedBuffer{})
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--db", db, "--listen", "tcp:127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	select {
	case addr := <-ready:
		return "tcp:" + addr.String()
	case err := <-done:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not start")
	}
	return ""
}

func TestServeAndSend(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "meta.db")
	addr := startDaemon(t, db)

	out, _, err := runCLI(t, "", "send", "--addr", addr, "TAG", "/data/a.txt", "project", "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "OK: Tag added\n", out)

	out, _, err = runCLI(t, "PING\n\nEVENT CREATE /data/b.txt\nQUERY TAG project=Alpha\n", "send", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "OK: PONG\nOK\nRESULT: [\"/data/a.txt\"]\n", out)

	out, _, err = runCLI(t, "", "send", "--addr", addr, "--format", "json", "STATS")
	require.NoError(t, err)
	var resp struct {
		Status string     `json:"status"`
		Data   []Exchange `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, `RESULT: {"files":2,"tags":1,"embeddings":0,"events":1}`, resp.Data[0].Response)

	out, _, err = runCLI(t, "", "send", "--addr", addr, "FROBNICATE")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "ERR: Unknown command\n", out)
}

func TestSend_Unreachable(t *testing.T) {
	isolateEnv(t)
	sock := filepath.Join(t.TempDir(), "absent.sock")

	out, _, err := runCLI(t, "", "send", "--addr", "unix:"+sock, "PING")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [ERROR]")
}

func TestSend_NoCommands(t *testing.T) {
	isolateEnv(t)

	_, _, err := runCLI(t, "\n\n", "send", "--addr", "tcp:127.0.0.1:1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryStatsEvents_Offline(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "meta.db")
	addr := startDaemon(t, db)

	_, _, err := runCLI(t, "EVENT CREATE /p/a.pdf\nTAG /p/a.pdf project Alpha\nTAG /p/b.txt project Beta\n",
		"send", "--addr", addr)
	require.NoError(t, err)

	out, _, err := runCLI(t, "", "query", "--db", db, `{"action":"list","filters":{"project":"Alpha"}}`)
	require.NoError(t, err)
	assert.Equal(t, "RESULT: [\"/p/a.pdf\"]\n", out)

	out, _, err = runCLI(t, "", "query", "--db", db, "tag", "project:Beta", "with", "reviewed:true")
	require.NoError(t, err)
	assert.Equal(t, "OK: Tagged 1 files\n", out)

	out, _, err = runCLI(t, "", "query", "--db", db, "--format", "json", "list", "reviewed:true")
	require.NoError(t, err)
	var resp struct {
		Data QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, QueryResult{Action: "list", Count: 1, Paths: []string{"/p/b.txt"}}, resp.Data)

	_, _, err = runCLI(t, "", "query", "--db", db, `{"action":`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, _, err = runCLI(t, "", "stats", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "files: 2\ntags: 3\nembeddings: 0\nevents: 1\n", out)

	out, _, err = runCLI(t, "", "events", "--db", db, "--path", "/p/a.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE  /p/a.pdf")

	out, _, err = runCLI(t, "", "events", "--db", db, "--path", "/p/none")
	require.NoError(t, err)
	assert.Equal(t, "no events\n", out)
}

func TestRelayCommand(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "meta.db")

	authority := testutil.NewFakeAuthority(t,
		wal.Entry{ID: "e1", Op: "CREATE", Path: "/w/one.txt"},
		wal.Entry{ID: "e2", Op: "RENAME", Path: "/w/one.txt", Extra: json.RawMessage(`"/w/two.txt"`)},
	)

	out, _, err := runCLI(t, "", "relay", "--db", db, "--wal-url", authority.FetchURL(), "--commit-url", authority.CommitURL())
	require.NoError(t, err)
	assert.Equal(t, "fetched 2, applied 2, duplicates 0, committed 2, ack failed 0, failed 0, skipped 0, deferred 0\n", out)
	assert.Len(t, authority.Commits(), 2)

	out, _, err = runCLI(t, "", "query", "--db", db, `{"action":"list"}`)
	require.NoError(t, err)
	assert.Equal(t, "RESULT: [\"/w/two.txt\"]\n", out)

	_, _, err = runCLI(t, "", "relay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigCommands(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("database: /tmp/x.db\noracle:\n  provider: openai\n  api_key: sk-secret\n"), 0o600))

	out, _, err := runCLI(t, "", "config", "validate", "--config", good)
	require.NoError(t, err)
	assert.Equal(t, "configuration is valid\n", out)

	out, _, err = runCLI(t, "", "config", "show", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "database: /tmp/x.db")
	assert.Contains(t, out, "api_key: REDACTED")
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "poll_interval: 5s")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("wal:\n  batch_size: 0\nlog:\n  level: loud\n"), 0o600))

	out, stderr, err := runCLI(t, "", "config", "validate", "--config", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [CONFIG_INVALID]")
	assert.Contains(t, stderr, "wal.batch_size")
	assert.Contains(t, stderr, "log.level")

	_, _, err = runCLI(t, "", "stats", "--config", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
