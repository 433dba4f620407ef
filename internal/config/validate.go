package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("config schema has no #Config definition")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks c against the configuration schema. It returns a
// *ValidationError listing every violation, each prefixed by the field
// path (e.g. "wal.poll_interval").
func (c Config) Validate() error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	v := ctx.Encode(c.schemaInput())
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Problems: problems(err)}
	}
	return nil
}

// schemaInput renders the fields the schema constrains. Durations become
// seconds; the API key is reduced to its presence.
func (c Config) schemaInput() map[string]any {
	paths := c.Watch.Paths
	if paths == nil {
		paths = []string{}
	}
	return map[string]any{
		"database": c.Database,
		"listen": map[string]any{
			"network": c.Listen.Network,
			"address": c.Listen.Address,
		},
		"wal": map[string]any{
			"fetch_url":     c.WAL.FetchURL,
			"commit_url":    c.WAL.CommitURL,
			"poll_interval": c.WAL.PollInterval.Std().Seconds(),
			"batch_size":    c.WAL.BatchSize,
			"timeout":       c.WAL.Timeout.Std().Seconds(),
		},
		"oracle": map[string]any{
			"provider":        c.Oracle.Provider,
			"endpoint":        c.Oracle.Endpoint,
			"model":           c.Oracle.Model,
			"extractor":       c.Oracle.Extractor,
			"timeout":         c.Oracle.Timeout.Std().Seconds(),
			"rate_per_minute": c.Oracle.RatePerMinute,
			"has_api_key":     c.Oracle.APIKey != "",
		},
		"metrics": map[string]any{"address": c.Metrics.Address},
		"watch":   map[string]any{"paths": paths},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
}

func problems(err error) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := strings.Join(e.Path(), "."); path != "" {
			msg = path + ": " + msg
		}
		if !seen[msg] {
			seen[msg] = true
			out = append(out, msg)
		}
	}
	sort.Strings(out)
	return out
}
