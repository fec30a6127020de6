package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.True(t, cfg.AutoRefresh)
	require.Empty(t, cfg.StatePath, "state path is derived at runtime")
	require.Equal(t, 5*time.Second, cfg.Worker.GracePeriod)
	require.Equal(t, 5*time.Second, cfg.Worker.HeartbeatInterval)
	require.Equal(t, 30*time.Second, cfg.Worker.StaleThreshold)
	require.Empty(t, cfg.Worker.Command, "empty command re-invokes the current executable")
	require.True(t, cfg.UI.ShowStatusBar)
	require.Equal(t, "dark", cfg.UI.MarkdownStyle)
	require.False(t, cfg.UI.VimMode)
	require.True(t, cfg.Archive.Enabled)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.Equal(t, "localhost:4317", cfg.Tracing.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.Tracing.SampleRate)
}

func TestDefaults_PassValidation(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestResolvedStatePath_PrefersConfigured(t *testing.T) {
	cfg := Config{StatePath: "/tmp/custom-state.json"}
	require.Equal(t, "/tmp/custom-state.json", cfg.ResolvedStatePath())
}

func TestResolvedStatePath_FallsBackToDefault(t *testing.T) {
	cfg := Config{}
	resolved := cfg.ResolvedStatePath()
	require.Contains(t, resolved, ".strand")
	require.Equal(t, "state.json", filepath.Base(resolved))
}

func TestResolvedArchivePath_PrefersConfigured(t *testing.T) {
	cfg := Config{Archive: ArchiveConfig{Path: "/tmp/custom.db"}}
	require.Equal(t, "/tmp/custom.db", cfg.ResolvedArchivePath())
}

func TestValidateWorker(t *testing.T) {
	tests := []struct {
		name    string
		worker  WorkerConfig
		wantErr string
	}{
		{
			name:   "zero values are valid",
			worker: WorkerConfig{},
		},
		{
			name: "absolute allowlist is valid",
			worker: WorkerConfig{
				AllowedDirectories: []string{"/home/user/notes", "/tmp"},
			},
		},
		{
			name: "relative allowlist entry rejected",
			worker: WorkerConfig{
				AllowedDirectories: []string{"/home/user/notes", "relative/path"},
			},
			wantErr: "allowed_directories[1]",
		},
		{
			name:    "negative grace period rejected",
			worker:  WorkerConfig{GracePeriod: -time.Second},
			wantErr: "grace_period",
		},
		{
			name:    "negative heartbeat interval rejected",
			worker:  WorkerConfig{HeartbeatInterval: -time.Second},
			wantErr: "heartbeat_interval",
		},
		{
			name:    "negative stale threshold rejected",
			worker:  WorkerConfig{StaleThreshold: -time.Second},
			wantErr: "stale_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorker(tt.worker)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateUI(t *testing.T) {
	require.NoError(t, ValidateUI(UIConfig{}))
	require.NoError(t, ValidateUI(UIConfig{MarkdownStyle: "dark"}))
	require.NoError(t, ValidateUI(UIConfig{MarkdownStyle: "light"}))
	require.Error(t, ValidateUI(UIConfig{MarkdownStyle: "solarized"}))
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		tracing TracingConfig
		wantErr string
	}{
		{
			name:    "zero values are valid",
			tracing: TracingConfig{},
		},
		{
			name:    "valid exporters",
			tracing: TracingConfig{Exporter: "stdout", SampleRate: 0.5},
		},
		{
			name:    "unknown exporter rejected",
			tracing: TracingConfig{Exporter: "jaeger"},
			wantErr: "tracing.exporter",
		},
		{
			name:    "sample rate above one rejected",
			tracing: TracingConfig{SampleRate: 1.5},
			wantErr: "sample_rate",
		},
		{
			name:    "negative sample rate rejected",
			tracing: TracingConfig{SampleRate: -0.1},
			wantErr: "sample_rate",
		},
		{
			name:    "file exporter requires path when enabled",
			tracing: TracingConfig{Enabled: true, Exporter: "file"},
			wantErr: "file_path",
		},
		{
			name:    "file exporter without enabled skips path check",
			tracing: TracingConfig{Enabled: false, Exporter: "file"},
		},
		{
			name:    "otlp exporter requires endpoint when enabled",
			tracing: TracingConfig{Enabled: true, Exporter: "otlp"},
			wantErr: "otlp_endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.tracing)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "nested", "config.yaml")

	err := WriteDefaultConfig(configPath)
	require.NoError(t, err)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)

	content := string(data)
	require.True(t, strings.HasPrefix(content, "# Strand Configuration"))
	require.Contains(t, content, "auto_refresh: true")
	require.Contains(t, content, "grace_period: 5s")
	require.Contains(t, content, "stale_threshold: 30s")
	require.Contains(t, content, "show_status_bar: true")
}

func TestWriteDefaultConfig_Permissions(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	err := WriteDefaultConfig(configPath)
	require.NoError(t, err)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
