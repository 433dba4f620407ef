package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metad/internal/oracle"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "unix", cfg.Listen.Network)
	assert.Equal(t, 5*time.Second, cfg.WAL.PollInterval.Std())
	assert.Equal(t, 500, cfg.WAL.BatchSize)
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeFile(t, `
database: /var/lib/metad/meta.db
listen:
  network: tcp
  address: 127.0.0.1:7070
wal:
  fetch_url: http://authority:9000/wal
  poll_interval: 2s
  batch_size: 100
oracle:
  provider: ollama
  timeout: 30
watch:
  paths: [/srv/data]
`)

	cfg, err := Load(path, envMap(nil))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/metad/meta.db", cfg.Database)
	assert.Equal(t, ListenConfig{Network: "tcp", Address: "127.0.0.1:7070"}, cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.WAL.PollInterval.Std())
	assert.Equal(t, 10*time.Second, cfg.WAL.Timeout.Std(), "unset fields keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Oracle.Timeout.Std())
	assert.Equal(t, []string{"/srv/data"}, cfg.Watch.Paths)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "database: from-file.db\n")

	cfg, err := Load(path, envMap(map[string]string{
		"METAD_DB":              "from-env.db",
		"METAD_LISTEN":          "tcp:0.0.0.0:7070",
		"METAD_WAL_URL":         "http://wal/entries",
		"METAD_ORACLE_PROVIDER": "openai",
		"OPENAI_API_KEY":        "sk-test",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, ListenConfig{Network: "tcp", Address: "0.0.0.0:7070"}, cfg.Listen)
	assert.Equal(t, "http://wal/entries", cfg.WAL.FetchURL)
	assert.Equal(t, "sk-test", cfg.Oracle.APIKey)

	oc, err := cfg.OracleClientConfig()
	require.NoError(t, err)
	assert.Equal(t, oracle.ProviderOpenAI, oc.Provider)
	assert.Equal(t, "sk-test", oc.APIKey)
}

func TestLoad_DetectsProviderFromAPIKey(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{"GEMINI_API_KEY": "g-key"}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, "g-key", cfg.Oracle.APIKey)

	cfg, err = Load("", envMap(map[string]string{"OPENAI_API_KEY": "sk-test"}))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Oracle.Provider)
	assert.Equal(t, "sk-test", cfg.Oracle.APIKey)

	cfg, err = Load("", envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Oracle.Provider)
}

func TestLoad_ExplicitNoneIsNotOverridden(t *testing.T) {
	path := writeFile(t, "oracle:\n  provider: none\n")

	cfg, err := Load(path, envMap(map[string]string{"OPENAI_API_KEY": "sk-test"}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "none", cfg.Oracle.Provider)
	assert.Empty(t, cfg.Oracle.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "wal: [not, a, map]\n"), nil)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "wal:\n  poll_interval: soon\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")

	_, err = Load("", envMap(map[string]string{"METAD_ORACLE_PROVIDER": "clippy"}))
	assert.Error(t, err)
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Database = ""
	cfg.Listen.Network = "udp"
	cfg.WAL.BatchSize = 0
	cfg.WAL.FetchURL = "ftp://nope"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	msg := err.Error()
	for _, field := range []string{"database", "listen.network", "wal.batch_size", "wal.fetch_url", "log.level"} {
		assert.Contains(t, msg, field)
	}
}

func TestValidate_ProviderRequirements(t *testing.T) {
	cfg := Default()
	cfg.Oracle.Provider = "http"
	assert.Error(t, cfg.Validate(), "http provider needs an endpoint")

	cfg.Oracle.Endpoint = "http://localhost:8080/generate"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Oracle.Provider = "gemini"
	assert.Error(t, cfg.Validate(), "gemini needs an API key")

	cfg.Oracle.APIKey = "key"
	assert.NoError(t, cfg.Validate())
}

func TestParseListen(t *testing.T) {
	tests := []struct {
		in, network, address string
	}{
		{"unix:/tmp/m.sock", "unix", "/tmp/m.sock"},
		{"/run/metad.sock", "unix", "/run/metad.sock"},
		{"tcp:localhost:1", "tcp", "localhost:1"},
		{"127.0.0.1:7070", "tcp", "127.0.0.1:7070"},
	}
	for _, tt := range tests {
		n, a := ParseListen(tt.in)
		assert.Equal(t, tt.network, n, tt.in)
		assert.Equal(t, tt.address, a, tt.in)
	}
}
