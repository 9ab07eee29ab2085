package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sidekick-agent/sidekick/internal/config"
	"github.com/sidekick-agent/sidekick/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSeedsConfigAndWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "agentspace")

	var out bytes.Buffer
	initCmd.SetOut(&out)
	t.Cleanup(func() { initCmd.SetOut(nil) })

	require.NoError(t, runInit(initCmd, []string{target}))

	cfg, err := config.LoadFromFile(filepath.Join(target, "sidekick.json"))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	initialized, err := workspace.IsInitialized(target)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestInitPreservesExistingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.GenerateDefault()
	cfg.Provider.Model = "custom-model"
	require.NoError(t, cfg.SaveToFile(filepath.Join(tmpDir, "sidekick.json")))

	var out bytes.Buffer
	initCmd.SetOut(&out)
	t.Cleanup(func() { initCmd.SetOut(nil) })

	require.NoError(t, runInit(initCmd, []string{tmpDir}))

	loaded, err := config.LoadFromFile(filepath.Join(tmpDir, "sidekick.json"))
	require.NoError(t, err)
	assert.Equal(t, "custom-model", loaded.Provider.Model, "existing config must not be overwritten")
	assert.Contains(t, out.String(), "already exists")

	// Workspace is still seeded alongside the preserved config.
	_, err = os.Stat(filepath.Join(tmpDir, workspace.MemoryFile))
	assert.NoError(t, err)
}
