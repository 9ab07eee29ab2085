// Package workspace seeds and checks the shared directory the agents
// operate in.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// MemoryFile is the shared notes file both agents read and write.
const MemoryFile = "MEMORY.md"

// GetBootstrapFiles returns the markdown files that shape the observer's
// system prompt, with the default content seeded on first init.
func GetBootstrapFiles() map[string]string {
	return map[string]string{
		"IDENTITY.md": "# IDENTITY\n\nYou are a background observer agent. You watch the main agent work and keep shared notes useful.\n",
		"SOUL.md":     "# SOUL\n\nBe concise. Prefer small, concrete observations over sweeping advice.\n",
		"AGENTS.md":   "# AGENTS\n\nmain: the interactive agent serving the user.\nselfagent: you. You never talk to the user directly.\n",
		"TOOLS.md":    "# TOOLS\n\nread_file, write_file, edit_file, list_dir, web_search, web_fetch.\nAll file access goes through the shared workspace.\n",
	}
}

// Initialize creates the workspace root, seeds any missing bootstrap files,
// and creates an empty MEMORY.md. Existing files are never overwritten, so
// the function is idempotent.
func Initialize(workspaceRoot string) error {
	if err := os.MkdirAll(workspaceRoot, 0700); err != nil {
		return fmt.Errorf("failed to create workspace root %s: %w", workspaceRoot, err)
	}

	seeds := GetBootstrapFiles()
	seeds[MemoryFile] = "# MEMORY\n"

	for name, content := range seeds {
		path := filepath.Join(workspaceRoot, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to check file %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			return fmt.Errorf("failed to seed file %s: %w", path, err)
		}
	}

	return nil
}

// IsInitialized checks whether a workspace has the shared memory file and
// all bootstrap files.
func IsInitialized(workspaceRoot string) (bool, error) {
	names := []string{MemoryFile}
	for name := range GetBootstrapFiles() {
		names = append(names, name)
	}

	for _, name := range names {
		path := filepath.Join(workspaceRoot, name)

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check file %s: %w", path, err)
		}

		if info.IsDir() {
			return false, nil
		}
	}

	return true, nil
}
