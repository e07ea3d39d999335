package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "A", cfg.Chains.Binder)
	assert.Equal(t, "B", cfg.Chains.Target)
	assert.Equal(t, 4.0, cfg.Chains.Cutoff)
	assert.Equal(t, 64, cfg.Run.BatchSize)
	assert.Equal(t, "parquet", cfg.Run.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
run:
  submissions: subs.csv
  structures: [a, b]
  format: csv
chains:
  binder: H
  target: T
workers:
  count: 3
  submission_timeout: 90s
storage:
  backend: local
  local_dir: /tmp/out
catalog:
  backend: sqlite
  sqlite_path: lineage.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	t.Setenv("TARGET_CHAIN", "C")
	t.Setenv("WORKERS", "5")
	t.Setenv("AUDIT_ENABLED", "true")
	t.Setenv("AUDIT_DIR", "/var/audit")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "subs.csv", cfg.Run.Submissions)
	assert.Equal(t, []string{"a", "b"}, cfg.Run.Structures)
	assert.Equal(t, "csv", cfg.Run.Format)
	assert.Equal(t, "H", cfg.Chains.Binder)
	assert.Equal(t, "C", cfg.Chains.Target)
	assert.Equal(t, 5, cfg.Workers.Count)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "/var/audit", cfg.Audit.Dir)
	assert.Equal(t, 90*time.Second, cfg.Workers.SubmissionTimeout)
	assert.Equal(t, "sqlite", cfg.Catalog.Backend)
	// Unset keys keep their defaults.
	assert.Equal(t, 64, cfg.Run.BatchSize)
	assert.Equal(t, 4.0, cfg.Chains.Cutoff)
	assert.Equal(t, "/tmp/out", cfg.StorageConfig().LocalDir)
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("WORKERS", "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same chains", func(c *Config) { c.Chains.Target = c.Chains.Binder }},
		{"zero cutoff", func(c *Config) { c.Chains.Cutoff = 0 }},
		{"zero batch size", func(c *Config) { c.Run.BatchSize = 0 }},
		{"bad format", func(c *Config) { c.Run.Format = "xlsx" }},
		{"command relax without binary", func(c *Config) { c.Relax.Engine = "command" }},
		{"unknown energetics", func(c *Config) { c.Energetics.Engine = "quantum" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStorageConfigDefaultsToOutputDir(t *testing.T) {
	cfg := Default()
	cfg.Run.OutputDir = "out"
	assert.Equal(t, "out", cfg.StorageConfig().LocalDir)
}
