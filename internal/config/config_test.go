package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no tidemark.yml here

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, ".tidemark/state.db", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 5*time.Minute, cfg.CallTimeout)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, 8, cfg.DriftWorkers)
	assert.Contains(t, cfg.Kinds, "network")
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tidemark.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
store:
  type: memory
retry:
  maxRetries: 7
  baseDelay: 250ms
kinds: [network, dns]
drift:
  defaultSeverity: Minor
  classification:
    network:
      tags: Minor
      cidr: Major
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	// Unset values keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, []string{"network", "dns"}, cfg.Kinds)

	table, def, err := cfg.Drift.SeverityTable()
	require.NoError(t, err)
	assert.Equal(t, model.SeverityMinor, def)
	assert.Equal(t, model.SeverityMinor, table["network"]["tags"])
	assert.Equal(t, model.SeverityMajor, table["network"]["cidr"])
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TIDEMARK_LOGLEVEL", "warn")
	t.Setenv("TIDEMARK_STORE_TYPE", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func TestSeverityTable_RejectsUnknownSeverity(t *testing.T) {
	d := DriftConfig{
		Classification: map[string]map[string]string{
			"network": {"cidr": "catastrophic"},
		},
	}
	_, _, err := d.SeverityTable()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catastrophic")

	// Empty default falls back to Major.
	_, def, err := DriftConfig{}.SeverityTable()
	require.NoError(t, err)
	assert.Equal(t, model.SeverityMajor, def)
}

// chdir changes the working directory for the duration of the test.
// Equivalent of t.Chdir, which requires Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
