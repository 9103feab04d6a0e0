package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/model"
)

func TestLoadDesiredState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prod.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: prod
resources:
  - id: net1
    kind: network
    provider: fake
    attributes:
      cidr: 10.0.0.0/16
      mtu: 1500
  - id: sub1
    kind: subnet
    provider: fake
    dependsOn: [net1]
    attributes:
      cidr: 10.0.1.0/24
`), 0644))

	desired, err := loadDesiredState(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", desired.Environment)
	require.Len(t, desired.Resources, 2)
	net := desired.ByID("net1")
	require.NotNil(t, net)
	assert.Equal(t, "network", net.Kind)
	// YAML integers normalize so plan diffs never flag numeric type changes.
	assert.Equal(t, float64(1500), net.Attributes["mtu"])
	assert.Equal(t, []string{"net1"}, desired.ByID("sub1").DependsOn)
}

func TestLoadDesiredState_EnvironmentDefaultsToFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
resources:
  - id: net1
    kind: network
    provider: fake
`), 0644))

	desired, err := loadDesiredState(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", desired.Environment)
}

func TestLoadDesiredState_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(path, []byte("resources: [whoops"), 0644))

	_, err := loadDesiredState(path)
	require.Error(t, err)

	_, err = loadDesiredState(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	keys := sortedKeys(map[string]any{"mtu": 1, "cidr": 2, "tags": 3})
	assert.Equal(t, []string{"cidr", "mtu", "tags"}, keys)
	assert.Empty(t, sortedKeys(nil))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, `"10.0.0.0/16"`, formatValue("10.0.0.0/16"))
	assert.Equal(t, "1500", formatValue(1500))
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, "true", formatValue(true))
}

func TestMaxExitCode(t *testing.T) {
	ok := &model.ReconciliationResult{}
	differ := &model.ReconciliationResult{DryRun: true, Plan: &model.ChangePlan{
		Actions: []*model.ChangeAction{{ResourceID: "a"}},
	}}
	invalid := &model.ReconciliationResult{InvalidInput: "bad"}

	assert.Equal(t, model.ExitOK, maxExitCode([]*model.ReconciliationResult{ok}))
	assert.Equal(t, model.ExitPlanDiffer, maxExitCode([]*model.ReconciliationResult{ok, differ}))
	assert.Equal(t, model.ExitInvalid, maxExitCode([]*model.ReconciliationResult{differ, invalid, ok}))
	assert.Equal(t, model.ExitOK, maxExitCode(nil))
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeJSON(path, map[string]any{"plan": "empty"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"plan": "empty"`)
}
