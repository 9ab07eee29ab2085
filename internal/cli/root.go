package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: "Background observer agent with locked shared-file coordination",
	Long: `sidekick runs a background observer agent alongside a main agent.
It collects the main agent's message traffic and state changes, and
periodically reviews the batch with an LLM that can write insights back
to shared workspace files under a cooperative file lock.

Running 'sidekick' without a subcommand is equivalent to 'sidekick run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: run the 'run' command
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to sidekick.json config file (default: search up directory tree)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
