package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_SeedsAllFiles(t *testing.T) {
	tmpDir := t.TempDir()

	err := Initialize(tmpDir)
	require.NoError(t, err)

	expected := []string{
		"IDENTITY.md",
		"SOUL.md",
		"AGENTS.md",
		"TOOLS.md",
		MemoryFile,
	}

	for _, name := range expected {
		path := filepath.Join(tmpDir, name)
		info, err := os.Stat(path)
		require.NoError(t, err, "File %s should exist", name)
		assert.False(t, info.IsDir())
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm(),
			"File %s should have 0600 permissions", name)
	}
}

func TestInitialize_NeverOverwrites(t *testing.T) {
	tmpDir := t.TempDir()
	custom := "# SOUL\n\nHand-edited soul.\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "SOUL.md"), []byte(custom), 0600))

	require.NoError(t, Initialize(tmpDir))

	data, err := os.ReadFile(filepath.Join(tmpDir, "SOUL.md"))
	require.NoError(t, err)
	assert.Equal(t, custom, string(data), "Existing files must be preserved")
}

func TestInitialize_IdempotentCalls(t *testing.T) {
	tmpDir := t.TempDir()

	// Initialize once
	err := Initialize(tmpDir)
	require.NoError(t, err)

	// Initialize again - should not error
	err = Initialize(tmpDir)
	assert.NoError(t, err, "Second initialize should be idempotent")
}

func TestInitialize_CreatesRoot(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "deeply", "nested", "workspace")

	require.NoError(t, Initialize(nested))

	initialized, err := IsInitialized(nested)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestIsInitialized_True(t *testing.T) {
	tmpDir := t.TempDir()
	err := Initialize(tmpDir)
	require.NoError(t, err)

	initialized, err := IsInitialized(tmpDir)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestIsInitialized_False(t *testing.T) {
	tmpDir := t.TempDir()

	initialized, err := IsInitialized(tmpDir)
	require.NoError(t, err)
	assert.False(t, initialized)
}

func TestIsInitialized_PartiallyInitialized(t *testing.T) {
	tmpDir := t.TempDir()

	// Seed only the memory file
	err := os.WriteFile(filepath.Join(tmpDir, MemoryFile), []byte("# MEMORY\n"), 0600)
	require.NoError(t, err)

	initialized, err := IsInitialized(tmpDir)
	require.NoError(t, err)
	assert.False(t, initialized, "Should not be considered initialized if bootstrap files are missing")
}

func TestGetBootstrapFiles(t *testing.T) {
	seeds := GetBootstrapFiles()

	expected := []string{"IDENTITY.md", "SOUL.md", "AGENTS.md", "TOOLS.md"}
	names := make([]string, 0, len(seeds))
	for name, content := range seeds {
		names = append(names, name)
		assert.True(t, strings.HasPrefix(content, "# "), "Seed %s should start with a heading", name)
	}
	assert.ElementsMatch(t, expected, names)
}
