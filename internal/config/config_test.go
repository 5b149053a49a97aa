package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite", cfg.Log.Backend)
	assert.Equal(t, "datahog.db", cfg.Log.Path)
	assert.Empty(t, cfg.Sources)
	assert.Equal(t, 5*time.Second, cfg.Interval())
}

func TestLoadYAML(t *testing.T) {
	t.Setenv(EnvDB, "")
	cfg, err := Load("testdata/datahog.yaml")
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Log.Backend)
	assert.Equal(t, "/var/lib/datahog/log", cfg.Log.Path)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, SourceConfig{Name: "notes", Type: SourceDisk, Path: "./notes", Watch: true}, cfg.Sources[0])
	assert.Equal(t, SourceLog, cfg.Sources[1].Type)
	assert.Equal(t, 2*time.Second, cfg.Interval())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadCUEAppliesSchemaDefaults(t *testing.T) {
	t.Setenv(EnvDB, "")
	cfg, err := Load("testdata/datahog.cue")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Log.Backend)
	assert.Equal(t, "hog.db", cfg.Log.Path)
	assert.Equal(t, "5s", cfg.PollInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, 1024, cfg.Sources[0].InlineLimit)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvDB, "/tmp/override.db")
	cfg, err := Load("testdata/datahog.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Log.Path)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Log.Path)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{
			name:    "unknown yaml field",
			file:    "c.yaml",
			content: "log:\n  path: x.db\npoll: 1s\n",
			want:    "poll",
		},
		{
			name:    "bad backend",
			file:    "c.yaml",
			content: "log:\n  backend: postgres\n  path: x.db\n",
			want:    "backend",
		},
		{
			name:    "bad source type",
			file:    "c.yml",
			content: "sources:\n  - name: a\n    type: http\n    path: x\n",
			want:    "type",
		},
		{
			name:    "bad interval",
			file:    "c.yaml",
			content: "poll_interval: soon\n",
			want:    "poll_interval",
		},
		{
			name:    "duplicate source",
			file:    "c.yaml",
			content: "sources:\n  - {name: a, type: disk, path: x}\n  - {name: a, type: log, path: y}\n",
			want:    "duplicate source name",
		},
		{
			name:    "unknown cue field",
			file:    "c.cue",
			content: "log: path: \"x.db\"\nextra: 1\n",
			want:    "extra",
		},
		{
			name:    "cue syntax error",
			file:    "c.cue",
			content: "log: {\n",
			want:    "cue",
		},
		{
			name:    "unsupported extension",
			file:    "c.toml",
			content: "",
			want:    "unsupported config format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			var cfgErr *Error
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
