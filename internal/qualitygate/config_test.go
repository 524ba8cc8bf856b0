package qualitygate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Load_MissingFileYieldsEmptyConfig(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing.json"))
	cfg, err := c.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Gates)
}

func TestCache_Load_CachesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quality-gates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0","defaultGates":["lint"],"gates":{"lint":{"command":"echo ok"}}}`), 0o644))

	c := NewCache(path)
	first, err := c.Load()
	require.NoError(t, err)
	assert.Len(t, first.Gates, 1)

	// Mutating the file after first load must not affect the cached value.
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0","gates":{}}`), 0o644))
	second, err := c.Load()
	require.NoError(t, err)
	assert.Len(t, second.Gates, 1)
}

func TestCache_Clear_ForcesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quality-gates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0","gates":{"a":{"command":"echo a"}}}`), 0o644))

	c := NewCache(path)
	_, err := c.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0","gates":{"a":{"command":"echo a"},"b":{"command":"echo b"}}}`), 0o644))
	c.Clear()

	reloaded, err := c.Load()
	require.NoError(t, err)
	assert.Len(t, reloaded.Gates, 2)
}

func TestCache_Load_InvalidJSONErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quality-gates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not valid json`), 0o644))

	c := NewCache(path)
	_, err := c.Load()
	assert.Error(t, err)
}

func TestEffectiveGates_TaskOverrideWins(t *testing.T) {
	cfg := &FileConfig{
		DefaultGates: []string{"lint", "test"},
		Gates: map[string]Gate{
			"lint": {Command: "eslint ."},
			"test": {Command: "go test ./..."},
		},
	}

	gates, err := EffectiveGates(cfg, []string{"lint"}, true)
	require.NoError(t, err)
	require.Len(t, gates, 1)
	assert.Equal(t, "lint", gates[0].Name)
}

func TestEffectiveGates_EmptyOverrideDisablesGates(t *testing.T) {
	cfg := &FileConfig{DefaultGates: []string{"lint"}, Gates: map[string]Gate{"lint": {Command: "x"}}}

	gates, err := EffectiveGates(cfg, []string{}, true)
	require.NoError(t, err)
	assert.Empty(t, gates)
}

func TestEffectiveGates_FallsBackToDefaults(t *testing.T) {
	cfg := &FileConfig{DefaultGates: []string{"lint"}, Gates: map[string]Gate{"lint": {Command: "x"}}}

	gates, err := EffectiveGates(cfg, nil, false)
	require.NoError(t, err)
	require.Len(t, gates, 1)
	assert.Equal(t, "lint", gates[0].Name)
}

func TestEffectiveGates_UndefinedGateNameErrors(t *testing.T) {
	cfg := &FileConfig{Gates: map[string]Gate{}}
	_, err := EffectiveGates(cfg, []string{"missing"}, true)
	assert.Error(t, err)
}
