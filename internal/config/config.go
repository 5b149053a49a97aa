// Package config loads datahog configuration from YAML or CUE files.
//
// Both formats are checked against the embedded CUE schema, so a bad enum
// or a missing path fails at load time with a file position.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// EnvDB overrides Log.Path when set.
const EnvDB = "DATAHOG_DB"

// Source types.
const (
	SourceDisk = "disk"
	SourceLog  = "log"
)

// Config is the top-level configuration.
type Config struct {
	Log          LogConfig      `yaml:"log" json:"log"`
	Sources      []SourceConfig `yaml:"sources" json:"sources"`
	PollInterval string         `yaml:"poll_interval" json:"poll_interval"`
	LogLevel     string         `yaml:"log_level" json:"log_level"`
}

// LogConfig selects the durable transaction log.
type LogConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// SourceConfig describes one source to register at startup.
type SourceConfig struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Path        string `yaml:"path" json:"path"`
	InlineLimit int    `yaml:"inline_limit,omitempty" json:"inline_limit,omitempty"`
	Watch       bool   `yaml:"watch,omitempty" json:"watch,omitempty"`
}

// Default returns a config with a SQLite log at ./datahog.db and no
// sources.
func Default() *Config {
	return &Config{
		Log:          LogConfig{Backend: "sqlite", Path: "datahog.db"},
		Sources:      []SourceConfig{},
		PollInterval: "5s",
		LogLevel:     "info",
	}
}

// Interval returns PollInterval as a duration.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Error is a configuration error, with the CUE position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a .yaml, .yml or .cue file and applies environment
// overrides. An empty path returns Default() with overrides.
func Load(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		cfg, err = Parse(filepath.Base(path), data)
		if err != nil {
			return nil, err
		}
	}
	if db := os.Getenv(EnvDB); db != "" {
		cfg.Log.Path = db
	}
	return cfg, nil
}

// Parse decodes config data. The format is picked by the file name's
// extension.
func Parse(name string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return parseYAML(name, data)
	case ".cue":
		return parseCUE(name, data)
	}
	return nil, &Error{Field: "file", Message: fmt.Sprintf("unsupported config format %q", filepath.Ext(name))}
}

func parseYAML(name string, data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, &Error{Field: "yaml", Message: fmt.Sprintf("%s: %v", name, err)}
	}
	if cfg.Sources == nil {
		cfg.Sources = []SourceConfig{}
	}

	ctx := cuecontext.New()
	v := schema(ctx).Unify(ctx.Encode(cfg))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return cfg, cfg.validate()
}

func parseCUE(name string, data []byte) (*Config, error) {
	ctx := cuecontext.New()
	file := ctx.CompileBytes(data, cue.Filename(name))
	if err := file.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema(ctx).Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	cfg := &Config{}
	if err := v.Decode(cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if cfg.Sources == nil {
		cfg.Sources = []SourceConfig{}
	}
	return cfg, cfg.validate()
}

func schema(ctx *cue.Context) cue.Value {
	return ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
}

// validate checks what the schema cannot express.
func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if seen[s.Name] {
			return &Error{Field: fmt.Sprintf("sources[%d].name", i), Message: fmt.Sprintf("duplicate source name %q", s.Name)}
		}
		seen[s.Name] = true
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	out := &Error{Field: "cue", Message: first.Error()}
	if path := first.Path(); len(path) > 0 {
		out.Field = strings.Join(path, ".")
	}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
