package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "app:\n  log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, StorageNeo4J, cfg.Storage.Driver)
	assert.Equal(t, 6, cfg.Ingestion.Concurrency)
	assert.Equal(t, "5s", cfg.Ingestion.FlushInterval.String())
	assert.Equal(t, 2, cfg.Evidence.DefaultDepth)
	assert.InDelta(t, 1.0, cfg.Evidence.Weights.Sum(), 1e-9)
	assert.Equal(t, 4, cfg.Patterns.CycleMaxDepth)
	assert.Equal(t, 50, cfg.Risk.HighDegreeThreshold)
	assert.Equal(t, "1h0m0s", cfg.Evidence.TemporalBucket.String())
}

func TestLoadFile_RejectsBadWeights(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
evidence:
  weights:
    connectivity: 0.5
    shared_funders: 0.5
    shared_counterparties: 0.5
    behavioral: 0
    temporal: 0
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "must sum to 1.0")
}

func TestLoadFile_ReportsEveryProblem(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
storage:
  driver: sqlite
ingestion:
  concurrency: 0
evidence:
  default_depth: -1
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "storage.driver")
	assert.ErrorContains(t, err, "ingestion.concurrency")
	assert.ErrorContains(t, err, "evidence.default_depth")
}

func TestLoadFile_EnvOverride(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("EVIDENCE_DEFAULT_LIMIT", "25")

	cfg, err := LoadFile(writeConfig(t, "app:\n  env: test\n"))
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 25, cfg.Evidence.DefaultLimit)
}
