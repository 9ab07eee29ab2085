package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sidekick-agent/sidekick/internal/config"
	"github.com/sidekick-agent/sidekick/internal/flock"
	"github.com/sidekick-agent/sidekick/internal/llm"
	"github.com/sidekick-agent/sidekick/internal/observe"
	"github.com/sidekick-agent/sidekick/internal/printer"
	"github.com/sidekick-agent/sidekick/internal/reflector"
	"github.com/sidekick-agent/sidekick/internal/tool"
	"github.com/sidekick-agent/sidekick/internal/workspace"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the observer agent",
	Long: `Start the observer agent. Lines read from standard input are
published as inbound message observations, so the main agent's traffic
can be piped in. The periodic review cycle runs until interrupted.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	// Find or create config
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, cfgPath, err := loadOrCreateConfig(configPath, bootLogger)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("loaded configuration", "path", cfgPath)

	// Workspace root is resolved relative to the config file location
	workspaceRoot := determineWorkspaceRoot(cfg, cfgPath)
	logger.Info("workspace root", "path", workspaceRoot)

	if err := workspace.Initialize(workspaceRoot); err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}

	provider := llm.NewOpenAIProvider(resolveAPIKey(cfg), cfg.Provider.APIBase, cfg.Provider.ExtraHeaders)

	registry := tool.NewRegistry()
	fileTools := tool.NewFileTools(tool.FileToolConfig{
		Workspace:    workspaceRoot,
		Role:         flock.RoleSelfAgent,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	})
	for _, t := range fileTools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("failed to register tool: %w", err)
		}
	}
	if err := registry.Register(tool.NewWebSearchTool(cfg.Tools.SearxngURL, cfg.Tools.MaxSearchResults)); err != nil {
		return fmt.Errorf("failed to register tool: %w", err)
	}
	if err := registry.Register(tool.NewWebFetchTool(cfg.Tools.FetchMaxChars)); err != nil {
		return fmt.Errorf("failed to register tool: %w", err)
	}

	bus := observe.NewBus(logger)

	refl := reflector.New(reflector.Config{
		Enabled:       cfg.Reflection.Enabled,
		Interval:      cfg.ReflectionInterval(),
		Model:         cfg.Provider.Model,
		MaxIterations: cfg.Reflection.MaxIterations,
		BootstrapDir:  determineBootstrapDir(cfg, workspaceRoot),
	}, bus, provider, registry, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := refl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reflector: %w", err)
	}
	defer refl.Stop()

	printer.Info("observing; feed message lines on stdin, Ctrl-C to stop")

	// Feed stdin lines into the bus as inbound message observations.
	stdinDone := make(chan struct{})
	go func() {
		defer close(stdinDone)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			bus.PublishMessage(observe.DirectionInbound, "stdin", line)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-stdinDone:
		logger.Info("stdin closed, shutting down")
	case <-ctx.Done():
	}

	return nil
}

// resolveAPIKey prefers the environment over the config file so the key
// never has to live on disk.
func resolveAPIKey(cfg *config.Config) string {
	if key := os.Getenv("SIDEKICK_API_KEY"); key != "" {
		return key
	}
	return cfg.Provider.APIKey
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

// loadOrCreateConfig finds an existing config or creates a new one
// Following the decision: walk up directory tree, create in CWD if not found
func loadOrCreateConfig(configPath string, logger *slog.Logger) (*config.Config, string, error) {
	// If explicit path provided, use it
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, configPath, nil
	}

	// Search up directory tree for sidekick.json
	foundPath, err := findConfigInTree()
	if err != nil {
		return nil, "", err
	}

	if foundPath != "" {
		logger.Info("found existing config", "path", foundPath)
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, nil
	}

	// No config found, create default in current directory
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	defaultPath := filepath.Join(cwd, "sidekick.json")
	logger.Info("no config found, creating default", "path", defaultPath)

	cfg := config.GenerateDefault()
	if err := cfg.SaveToFile(defaultPath); err != nil {
		return nil, "", fmt.Errorf("failed to save default config: %w", err)
	}

	return cfg, defaultPath, nil
}

// findConfigInTree searches up the directory tree for sidekick.json
func findConfigInTree() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, "sidekick.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Move up one directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return "", nil
}

// determineWorkspaceRoot resolves the workspace root relative to the config file
func determineWorkspaceRoot(cfg *config.Config, configPath string) string {
	configDir := filepath.Dir(configPath)
	if cfg.WorkspaceRoot == "." || cfg.WorkspaceRoot == "" {
		return configDir
	}
	if filepath.IsAbs(cfg.WorkspaceRoot) {
		return cfg.WorkspaceRoot
	}
	return filepath.Join(configDir, cfg.WorkspaceRoot)
}

// determineBootstrapDir resolves the bootstrap directory relative to the workspace
func determineBootstrapDir(cfg *config.Config, workspaceRoot string) string {
	dir := cfg.Reflection.BootstrapDir
	if dir == "" || dir == "." {
		return workspaceRoot
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workspaceRoot, dir)
}
