// Package config provides configuration types and defaults for strand.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/strand/internal/log"
)

// Config holds all configuration options for strand.
type Config struct {
	// StatePath is the shared state snapshot location.
	// Default: ~/.strand/state.json
	StatePath string `mapstructure:"state_path"`

	// AutoRefresh reloads the snapshot when another process rewrites it.
	AutoRefresh bool `mapstructure:"auto_refresh"`

	Worker  WorkerConfig  `mapstructure:"worker"`
	UI      UIConfig      `mapstructure:"ui"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// WorkerConfig holds worker process configuration.
type WorkerConfig struct {
	// Command is the worker binary to spawn. Empty means the current
	// executable re-invoked with the "worker" subcommand.
	Command string `mapstructure:"command"`

	// Args are extra arguments passed to the worker command.
	Args []string `mapstructure:"args"`

	// AllowedDirectories is the filesystem allowlist handed to workers.
	// Paths must be absolute.
	AllowedDirectories []string `mapstructure:"allowed_directories"`

	// GracePeriod bounds how long a terminated worker gets between
	// SIGTERM and SIGKILL. Default: 5s
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// HeartbeatInterval is passed to spawned workers. Default: 5s
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// StaleThreshold is how long a silent worker runs before a staleness
	// warning is logged. Workers are never killed for staleness.
	// Default: 30s
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
}

// UIConfig holds user interface configuration options.
type UIConfig struct {
	ShowStatusBar bool   `mapstructure:"show_status_bar"`
	MarkdownStyle string `mapstructure:"markdown_style"` // "dark" (default) or "light"
	VimMode       bool   `mapstructure:"vim_mode"`       // Enable vim keybindings in text input areas
}

// ArchiveConfig holds request archive configuration.
type ArchiveConfig struct {
	// Enabled controls whether finished requests are recorded.
	// Default: true
	Enabled bool `mapstructure:"enabled"`

	// Path is the archive database location.
	// Default: ~/.strand/requests.db
	Path string `mapstructure:"path"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/strand/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultStatePath returns the default snapshot location.
// Returns ~/.strand/state.json or empty string if home dir unavailable.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".strand", "state.json")
}

// DefaultArchivePath returns the default archive database location.
// Returns ~/.strand/requests.db or empty string if home dir unavailable.
func DefaultArchivePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".strand", "requests.db")
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/strand/traces/traces.jsonl or empty string if home dir
// unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "strand", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		StatePath:   "", // Derived from home dir at runtime
		AutoRefresh: true,
		Worker: WorkerConfig{
			Command:           "", // Re-invoke current executable
			GracePeriod:       5 * time.Second,
			HeartbeatInterval: 5 * time.Second,
			StaleThreshold:    30 * time.Second,
		},
		UI: UIConfig{
			ShowStatusBar: true,
			MarkdownStyle: "dark",
			VimMode:       false,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "", // Derived from home dir at runtime
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from home dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the full configuration for errors.
func Validate(cfg Config) error {
	if err := ValidateWorker(cfg.Worker); err != nil {
		return err
	}
	if err := ValidateUI(cfg.UI); err != nil {
		return err
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		return err
	}
	return nil
}

// ValidateWorker checks worker configuration for errors.
// Returns nil if the configuration is valid (zero values use defaults).
func ValidateWorker(w WorkerConfig) error {
	if w.GracePeriod < 0 {
		return fmt.Errorf("worker.grace_period must not be negative, got %v", w.GracePeriod)
	}
	if w.HeartbeatInterval < 0 {
		return fmt.Errorf("worker.heartbeat_interval must not be negative, got %v", w.HeartbeatInterval)
	}
	if w.StaleThreshold < 0 {
		return fmt.Errorf("worker.stale_threshold must not be negative, got %v", w.StaleThreshold)
	}
	for i, dir := range w.AllowedDirectories {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("worker.allowed_directories[%d] must be an absolute path, got %q", i, dir)
		}
	}
	return nil
}

// ValidateUI checks user interface configuration for errors.
func ValidateUI(ui UIConfig) error {
	switch ui.MarkdownStyle {
	case "", "dark", "light":
		return nil
	default:
		return fmt.Errorf("ui.markdown_style must be \"dark\" or \"light\", got %q", ui.MarkdownStyle)
	}
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// ResolvedStatePath returns the configured snapshot path or the default.
func (c Config) ResolvedStatePath() string {
	if c.StatePath != "" {
		return c.StatePath
	}
	return DefaultStatePath()
}

// ResolvedArchivePath returns the configured archive path or the default.
func (c Config) ResolvedArchivePath() string {
	if c.Archive.Path != "" {
		return c.Archive.Path
	}
	return DefaultArchivePath()
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Strand Configuration

# Shared state snapshot location (default: ~/.strand/state.json)
# state_path: /path/to/state.json

# Reload the snapshot when another strand process rewrites it
auto_refresh: true

# Worker process settings
worker:
  # Worker binary to spawn. Empty re-invokes the strand executable
  # with the "worker" subcommand.
  # command: /usr/local/bin/strand
  # args: []

  # Directories workers may read and write. Paths must be absolute.
  # allowed_directories:
  #   - /home/user/notes

  # How long a terminated worker gets between SIGTERM and SIGKILL
  grace_period: 5s

  # Heartbeat cadence passed to spawned workers
  heartbeat_interval: 5s

  # A worker silent for this long gets a staleness warning in the log.
  # Workers are never killed for staleness.
  stale_threshold: 30s

# UI settings
ui:
  show_status_bar: true   # Show status bar at bottom
  # markdown_style: dark  # Markdown rendering style: "dark" (default) or "light"
  vim_mode: false         # Enable vim keybindings in the prompt input

# Request archive - finished requests are recorded in a SQLite database
# and listed by 'strand history'
archive:
  enabled: true
  # path: ~/.strand/requests.db

# Distributed tracing configuration
# Enables end-to-end visibility into request flows
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/strand/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: Enable tracing with file export
# tracing:
#   enabled: true
#   exporter: file
#   file_path: ~/.config/strand/traces/traces.jsonl
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
