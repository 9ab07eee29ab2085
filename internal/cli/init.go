package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sidekick-agent/sidekick/internal/config"
	"github.com/sidekick-agent/sidekick/internal/workspace"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default sidekick.json and seed the workspace",
	Long: `Create a default sidekick.json in the given directory (or the
current directory) and seed the workspace with the bootstrap files and
an empty MEMORY.md. Existing files are left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "sidekick.json")
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "sidekick.json already exists at %s\n", configPath)
	} else {
		cfg := config.GenerateDefault()
		if err := cfg.SaveToFile(configPath); err != nil {
			return fmt.Errorf("failed to write default config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", configPath)
	}

	if err := workspace.Initialize(dir); err != nil {
		return fmt.Errorf("failed to seed workspace: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Workspace seeded in %s\n", dir)

	return nil
}
