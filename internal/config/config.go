package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config represents the sidekick.json configuration file
type Config struct {
	Version       string     `json:"version"`
	WorkspaceRoot string     `json:"workspace_root"`
	LogLevel      string     `json:"log_level,omitempty"`
	Provider      Provider   `json:"provider"`
	Reflection    Reflection `json:"reflection"`
	Locks         Locks      `json:"locks"`
	Tools         Tools      `json:"tools"`
}

// Provider contains the model endpoint configuration
type Provider struct {
	APIKey       string            `json:"api_key,omitempty"`
	APIBase      string            `json:"api_base,omitempty"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`
	Model        string            `json:"model"`
}

// Reflection contains the periodic review cycle configuration
type Reflection struct {
	Enabled       bool   `json:"enabled"`
	IntervalS     int    `json:"interval_s"`
	MaxIterations int    `json:"max_iterations"`
	BootstrapDir  string `json:"bootstrap_dir,omitempty"`
}

// Locks contains file lock acquisition timeouts
type Locks struct {
	ReadTimeoutS  int `json:"read_timeout_s"`
	WriteTimeoutS int `json:"write_timeout_s"`
}

// Tools contains web tool settings
type Tools struct {
	SearxngURL       string `json:"searxng_url,omitempty"`
	MaxSearchResults int    `json:"max_search_results,omitempty"`
	FetchMaxChars    int    `json:"fetch_max_chars,omitempty"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version:       "1.0",
		WorkspaceRoot: ".",
		LogLevel:      "info",
		Provider: Provider{
			APIBase: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Reflection: Reflection{
			Enabled:       true,
			IntervalS:     300,
			MaxIterations: 10,
			BootstrapDir:  ".",
		},
		Locks: Locks{
			ReadTimeoutS:  5,
			WriteTimeoutS: 10,
		},
		Tools: Tools{
			MaxSearchResults: 5,
			FetchMaxChars:    50000,
		},
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if c.Provider.Model == "" {
		return fmt.Errorf("configuration error: missing required field 'provider.model'\n\nHint: Name the model to use:\n  \"provider\": {\n    \"model\": \"gpt-4o-mini\"\n  }")
	}

	if c.Reflection.Enabled {
		if c.Reflection.IntervalS <= 0 {
			return fmt.Errorf("configuration error: invalid 'reflection.interval_s' value: %d\n\nHint: The review interval must be a positive number of seconds:\n  \"reflection\": {\n    \"interval_s\": 300\n  }", c.Reflection.IntervalS)
		}
		if c.Reflection.MaxIterations <= 0 {
			return fmt.Errorf("configuration error: invalid 'reflection.max_iterations' value: %d\n\nHint: The reasoning loop needs a positive iteration bound:\n  \"reflection\": {\n    \"max_iterations\": 10\n  }", c.Reflection.MaxIterations)
		}
	}

	if c.Locks.ReadTimeoutS <= 0 {
		return fmt.Errorf("configuration error: invalid 'locks.read_timeout_s' value: %d\n\nHint: Lock timeouts must be positive:\n  \"locks\": {\n    \"read_timeout_s\": 5\n  }", c.Locks.ReadTimeoutS)
	}

	if c.Locks.WriteTimeoutS <= 0 {
		return fmt.Errorf("configuration error: invalid 'locks.write_timeout_s' value: %d\n\nHint: Lock timeouts must be positive:\n  \"locks\": {\n    \"write_timeout_s\": 10\n  }", c.Locks.WriteTimeoutS)
	}

	return nil
}

// ReflectionInterval returns the review interval as a duration
func (c *Config) ReflectionInterval() time.Duration {
	return time.Duration(c.Reflection.IntervalS) * time.Second
}

// ReadTimeout returns the read lock timeout as a duration
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Locks.ReadTimeoutS) * time.Second
}

// WriteTimeout returns the write lock timeout as a duration
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Locks.WriteTimeoutS) * time.Second
}

// LoadFromFile loads a configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	// Write with 0600 permissions (owner read/write only)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}
