package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full agent configuration.
//
// Values are resolved in three layers: built-in defaults, then an optional
// YAML file, then TUNEUP_* environment variables. Validate runs last.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	EventStore EventStoreConfig `yaml:"event_store"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Queue      QueueConfig      `yaml:"queue"`
	AI         AIConfig         `yaml:"ai"`
	Control    ControlConfig    `yaml:"control"`
	Log        LogConfig        `yaml:"log"`
}

// StorageConfig selects where events and jobs are persisted
type StorageConfig struct {
	// Path is the SQLite database file (":memory:" for an ephemeral store)
	Path string `yaml:"path"`
}

// AnalyzerConfig controls the pattern analysis window
type AnalyzerConfig struct {
	// Window is how many recent events an analysis run reads
	// Default: 500, Range: 1-1000
	Window int `yaml:"window"`
}

// ScannerConfig controls the codebase scan
type ScannerConfig struct {
	// Root is the directory to scan (default: current directory)
	Root string `yaml:"root"`
	// MaxFiles caps how many source files are read per scan
	// Default: 50
	MaxFiles int `yaml:"max_files"`
	// MaxIssues caps how many scan issues become improvements
	// Default: 20
	MaxIssues int `yaml:"max_issues"`
	// ExtraSkipDirs are directory names skipped in addition to the built-in list
	ExtraSkipDirs []string `yaml:"extra_skip_dirs"`
}

// AIConfig controls the optional text-generation backend
type AIConfig struct {
	// Enabled turns the backend on; an API key is also required
	Enabled bool `yaml:"enabled"`
	// Model is the Anthropic model name
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env"`
	// MaxTokens bounds the response length
	MaxTokens int `yaml:"max_tokens"`
	// MaxRetries is the retry budget for transient failures
	MaxRetries int `yaml:"max_retries"`
	// RequestsPerMinute rate-limits outbound calls
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// MaxConcurrentCalls bounds in-flight calls
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
	// TimeoutSeconds bounds a single call
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ControlConfig configures the local control socket
type ControlConfig struct {
	SocketPath string `yaml:"socket_path"`
}

// LogConfig configures structured logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// DefaultModel is used when no model is configured
const DefaultModel = "claude-sonnet-4-5-20250929"

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Storage:    StorageConfig{Path: filepath.Join(".tuneup", "tuneup.db")},
		EventStore: DefaultEventStoreConfig(),
		Analyzer:   AnalyzerConfig{Window: 500},
		Scanner:    ScannerConfig{Root: ".", MaxFiles: 50, MaxIssues: 20},
		Queue:      DefaultQueueConfig(),
		AI: AIConfig{
			Enabled:            true,
			Model:              DefaultModel,
			APIKeyEnv:          "ANTHROPIC_API_KEY",
			MaxTokens:          1024,
			MaxRetries:         3,
			RequestsPerMinute:  30,
			MaxConcurrentCalls: 2,
			TimeoutSeconds:     60,
		},
		Control: ControlConfig{SocketPath: filepath.Join(".tuneup", "control.sock")},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from path (if non-empty and present), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Missing file means defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides configuration from TUNEUP_* environment variables
func (c *Config) ApplyEnv() error {
	if err := parseEnvString("TUNEUP_DB_PATH", &c.Storage.Path); err != nil {
		return err
	}
	if err := c.EventStore.applyEnv(); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_ANALYZER_WINDOW", &c.Analyzer.Window); err != nil {
		return err
	}
	if err := parseEnvString("TUNEUP_SCAN_ROOT", &c.Scanner.Root); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_SCAN_MAX_FILES", &c.Scanner.MaxFiles); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_SCAN_MAX_ISSUES", &c.Scanner.MaxIssues); err != nil {
		return err
	}
	if err := c.Queue.applyEnv(); err != nil {
		return err
	}
	if err := parseEnvBool("TUNEUP_AI_ENABLED", &c.AI.Enabled); err != nil {
		return err
	}
	if err := parseEnvString("TUNEUP_AI_MODEL", &c.AI.Model); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_AI_MAX_RETRIES", &c.AI.MaxRetries); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_AI_REQUESTS_PER_MINUTE", &c.AI.RequestsPerMinute); err != nil {
		return err
	}
	if err := parseEnvInt("TUNEUP_AI_MAX_CONCURRENT", &c.AI.MaxConcurrentCalls); err != nil {
		return err
	}
	if err := parseEnvString("TUNEUP_SOCKET", &c.Control.SocketPath); err != nil {
		return err
	}
	if err := parseEnvString("TUNEUP_LOG_LEVEL", &c.Log.Level); err != nil {
		return err
	}
	return parseEnvString("TUNEUP_LOG_FORMAT", &c.Log.Format)
}

// Validate checks every section
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}
	if err := c.EventStore.Validate(); err != nil {
		return fmt.Errorf("event_store: %w", err)
	}
	if c.Analyzer.Window < 1 || c.Analyzer.Window > c.EventStore.RecentLimit {
		return fmt.Errorf("analyzer.window must be between 1 and recent_limit %d (got %d)",
			c.EventStore.RecentLimit, c.Analyzer.Window)
	}
	if c.Scanner.MaxFiles < 1 {
		return fmt.Errorf("scanner.max_files must be at least 1 (got %d)", c.Scanner.MaxFiles)
	}
	if c.Scanner.MaxIssues < 0 {
		return fmt.Errorf("scanner.max_issues cannot be negative (got %d)", c.Scanner.MaxIssues)
	}
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if c.AI.Enabled {
		if c.AI.Model == "" {
			return fmt.Errorf("ai.model cannot be empty when ai is enabled")
		}
		if c.AI.MaxRetries < 0 || c.AI.MaxRetries > 10 {
			return fmt.Errorf("ai.max_retries must be between 0 and 10 (got %d)", c.AI.MaxRetries)
		}
		if c.AI.RequestsPerMinute < 1 {
			return fmt.Errorf("ai.requests_per_minute must be at least 1 (got %d)", c.AI.RequestsPerMinute)
		}
		if c.AI.MaxConcurrentCalls < 1 {
			return fmt.Errorf("ai.max_concurrent_calls must be at least 1 (got %d)", c.AI.MaxConcurrentCalls)
		}
		if c.AI.MaxTokens < 1 {
			return fmt.Errorf("ai.max_tokens must be at least 1 (got %d)", c.AI.MaxTokens)
		}
	}
	if c.Control.SocketPath == "" {
		return fmt.Errorf("control.socket_path cannot be empty")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

// AITimeout returns the per-call timeout as a time.Duration
func (c AIConfig) AITimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// parseEnvInt parses an integer from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
