// Package config loads the daemon configuration.
//
// Values are resolved in order: built-in defaults, the YAML file, the
// environment, then command-line flags (applied by the caller). The
// resolved configuration is checked against an embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/metad/internal/oracle"
)

// Config is the resolved daemon configuration.
type Config struct {
	Database string        `yaml:"database"`
	Listen   ListenConfig  `yaml:"listen"`
	WAL      WALConfig     `yaml:"wal"`
	Oracle   OracleConfig  `yaml:"oracle"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Watch    WatchConfig   `yaml:"watch"`
	Log      LogConfig     `yaml:"log"`
}

// ListenConfig selects the client socket.
type ListenConfig struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`
}

// WALConfig configures the relay. An empty FetchURL disables it.
type WALConfig struct {
	FetchURL     string   `yaml:"fetch_url"`
	CommitURL    string   `yaml:"commit_url"`
	PollInterval Duration `yaml:"poll_interval"`
	BatchSize    int      `yaml:"batch_size"`
	Timeout      Duration `yaml:"timeout"`
}

// OracleConfig configures the NLQ oracle.
type OracleConfig struct {
	Provider      string   `yaml:"provider"`
	Endpoint      string   `yaml:"endpoint"`
	Model         string   `yaml:"model"`
	APIKey        string   `yaml:"api_key"`
	Extractor     string   `yaml:"extractor"`
	Timeout       Duration `yaml:"timeout"`
	RatePerMinute int      `yaml:"rate_per_minute"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Address
// disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// WatchConfig lists directories whose changes are ingested.
type WatchConfig struct {
	Paths []string `yaml:"paths"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration written as "5s" or a number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultSocket is the default unix socket path.
func DefaultSocket() string {
	return filepath.Join(os.TempDir(), "metad.sock")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: "metad.db",
		Listen:   ListenConfig{Network: "unix", Address: DefaultSocket()},
		WAL: WALConfig{
			PollInterval: Duration(5 * time.Second),
			BatchSize:    500,
			Timeout:      Duration(10 * time.Second),
		},
		Oracle: OracleConfig{
			Provider:      string(oracle.ProviderNone),
			Timeout:       Duration(oracle.DefaultTimeout),
			RatePerMinute: 30,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides from getenv. An empty path skips the file. The
// result is not validated; call Validate after applying flags.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	// Left empty so ApplyEnv can tell an unset provider from an explicit
	// "none" in the file.
	cfg.Oracle.Provider = ""

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if getenv != nil {
		if err := cfg.ApplyEnv(getenv); err != nil {
			return cfg, err
		}
	}
	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = string(oracle.ProviderNone)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. An empty oracle
// provider is detected from the environment, so OPENAI_API_KEY or
// GEMINI_API_KEY alone enables that provider.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Database, "METAD_DB")
	if v := getenv("METAD_LISTEN"); v != "" {
		c.Listen.Network, c.Listen.Address = ParseListen(v)
	}
	set(&c.WAL.FetchURL, "METAD_WAL_URL")
	set(&c.WAL.CommitURL, "METAD_WAL_COMMIT_URL")
	set(&c.Oracle.Provider, "METAD_ORACLE_PROVIDER")
	set(&c.Oracle.Endpoint, "METAD_ORACLE_ENDPOINT")
	set(&c.Oracle.Model, "METAD_ORACLE_MODEL")
	set(&c.Metrics.Address, "METAD_METRICS_ADDR")

	if c.Oracle.Provider == "" {
		c.Oracle.Provider = string(oracle.DetectProvider(getenv))
	}

	if c.Oracle.APIKey == "" {
		p, err := oracle.ParseProvider(c.Oracle.Provider)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if env := p.EnvVarName(); env != "" {
			c.Oracle.APIKey = getenv(env)
		}
	}
	return nil
}

// ParseListen splits "unix:/path", "tcp:host:port", a bare host:port, or a
// bare path into network and address.
func ParseListen(s string) (network, address string) {
	switch {
	case strings.HasPrefix(s, "unix:"):
		return "unix", strings.TrimPrefix(s, "unix:")
	case strings.HasPrefix(s, "tcp:"):
		return "tcp", strings.TrimPrefix(s, "tcp:")
	case strings.HasPrefix(s, "/") || strings.HasPrefix(s, "."):
		return "unix", s
	default:
		return "tcp", s
	}
}

// OracleClientConfig converts the oracle section for oracle.New.
func (c Config) OracleClientConfig() (oracle.Config, error) {
	p, err := oracle.ParseProvider(c.Oracle.Provider)
	if err != nil {
		return oracle.Config{}, err
	}
	return oracle.Config{
		Provider:  p,
		Endpoint:  c.Oracle.Endpoint,
		Model:     c.Oracle.Model,
		APIKey:    c.Oracle.APIKey,
		Timeout:   c.Oracle.Timeout.Std(),
		Extractor: c.Oracle.Extractor,
	}, nil
}

// ValidationError lists every constraint the configuration violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  " + strings.Join(e.Problems, "\n  ")
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
