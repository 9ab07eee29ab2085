package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sidekick-agent/sidekick/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadOrCreateConfig_ExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "sidekick.json")
	require.NoError(t, config.GenerateDefault().SaveToFile(path))

	cfg, cfgPath, err := loadOrCreateConfig(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, path, cfgPath)
	assert.Equal(t, "1.0", cfg.Version)
}

func TestLoadOrCreateConfig_ExplicitPathMissing(t *testing.T) {
	_, _, err := loadOrCreateConfig("/nonexistent/sidekick.json", discardLogger())
	assert.Error(t, err)
}

func TestLoadOrCreateConfig_CreatesDefaultInCwd(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	cfg, cfgPath, err := loadOrCreateConfig("", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustResolve(t, tmpDir), "sidekick.json"), cfgPath)
	assert.NoError(t, cfg.Validate())

	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "default config should be written to disk")
}

func TestFindConfigInTree_WalksUp(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0700))
	require.NoError(t, config.GenerateDefault().SaveToFile(filepath.Join(tmpDir, "sidekick.json")))

	chdir(t, nested)

	found, err := findConfigInTree()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustResolve(t, tmpDir), "sidekick.json"), found)
}

func TestDetermineWorkspaceRoot(t *testing.T) {
	cfg := config.GenerateDefault()

	cfg.WorkspaceRoot = "."
	assert.Equal(t, "/proj", determineWorkspaceRoot(cfg, "/proj/sidekick.json"))

	cfg.WorkspaceRoot = "agentspace"
	assert.Equal(t, filepath.Join("/proj", "agentspace"), determineWorkspaceRoot(cfg, "/proj/sidekick.json"))

	cfg.WorkspaceRoot = "/abs/space"
	assert.Equal(t, "/abs/space", determineWorkspaceRoot(cfg, "/proj/sidekick.json"))
}

func TestDetermineBootstrapDir(t *testing.T) {
	cfg := config.GenerateDefault()

	cfg.Reflection.BootstrapDir = "."
	assert.Equal(t, "/ws", determineBootstrapDir(cfg, "/ws"))

	cfg.Reflection.BootstrapDir = "prompts"
	assert.Equal(t, filepath.Join("/ws", "prompts"), determineBootstrapDir(cfg, "/ws"))

	cfg.Reflection.BootstrapDir = "/etc/sidekick"
	assert.Equal(t, "/etc/sidekick", determineBootstrapDir(cfg, "/ws"))
}

func TestResolveAPIKey_PrefersEnvironment(t *testing.T) {
	cfg := config.GenerateDefault()
	cfg.Provider.APIKey = "from-file"

	t.Setenv("SIDEKICK_API_KEY", "from-env")
	assert.Equal(t, "from-env", resolveAPIKey(cfg))

	t.Setenv("SIDEKICK_API_KEY", "")
	assert.Equal(t, "from-file", resolveAPIKey(cfg))
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// mustResolve follows symlinks the way os.Getwd does on platforms where
// TempDir lives behind one.
func mustResolve(t *testing.T, dir string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}
