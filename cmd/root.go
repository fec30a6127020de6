package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/strand/internal/app"
	"github.com/zjrosen/strand/internal/config"
	"github.com/zjrosen/strand/internal/infrastructure/sqlite"
	"github.com/zjrosen/strand/internal/log"
	"github.com/zjrosen/strand/internal/orchestrator"
	"github.com/zjrosen/strand/internal/process"
	"github.com/zjrosen/strand/internal/state"
	"github.com/zjrosen/strand/internal/tracing"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version   = "dev"
	cfgFile   string
	debugMode bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "A terminal assistant backed by worker processes",
	Long: `A terminal assistant that delegates each request to a worker process
and streams the worker's progress, tasks, and responses into a chat view.`,
	Version: version,
	RunE:    runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/strand/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"enable debug logging and the log overlay (ctrl+x)")
	rootCmd.Flags().String("state", "",
		"path to the shared state snapshot")
	rootCmd.Flags().Bool("no-auto-refresh", false,
		"disable automatic reload when the snapshot changes externally")

	_ = viper.BindPFlag("state_path", rootCmd.Flags().Lookup("state"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("state_path", defaults.StatePath)
	viper.SetDefault("auto_refresh", defaults.AutoRefresh)
	viper.SetDefault("worker.grace_period", defaults.Worker.GracePeriod)
	viper.SetDefault("worker.heartbeat_interval", defaults.Worker.HeartbeatInterval)
	viper.SetDefault("worker.stale_threshold", defaults.Worker.StaleThreshold)
	viper.SetDefault("ui.show_status_bar", defaults.UI.ShowStatusBar)
	viper.SetDefault("ui.markdown_style", defaults.UI.MarkdownStyle)
	viper.SetDefault("archive.enabled", defaults.Archive.Enabled)
	viper.SetDefault("archive.path", defaults.Archive.Path)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .strand/config.yaml (current directory)
		// 2. ~/.config/strand/config.yaml (user config)
		if _, err := os.Stat(".strand/config.yaml"); err == nil {
			viper.SetConfigFile(".strand/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "strand"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .strand/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".strand/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

func runApp(cmd *cobra.Command, args []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if noAutoRefresh, _ := cmd.Flags().GetBool("no-auto-refresh"); noAutoRefresh {
		cfg.AutoRefresh = false
	}

	if debugMode || os.Getenv("STRAND_DEBUG") != "" {
		home, _ := os.UserHomeDir()
		logPath := filepath.Join(home, ".strand", "debug.log")
		closeLog, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing debug log: %w", err)
		}
		defer closeLog()
		debugMode = true
	}

	traceProvider, err := tracing.NewProvider(tracingConfig(cfg))
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = traceProvider.Shutdown(ctx)
	}()

	statePath := cfg.ResolvedStatePath()
	store := state.NewStore(statePath)

	manager := process.NewManager(process.Config{
		Command:             workerCommand(cfg),
		Args:                workerArgs(cfg, statePath),
		GracePeriod:         cfg.Worker.GracePeriod,
		HeartbeatStaleAfter: cfg.Worker.StaleThreshold,
	})

	var archive orchestrator.Recorder
	if cfg.Archive.Enabled {
		db, dbErr := sqlite.NewDB(cfg.ResolvedArchivePath())
		if dbErr != nil {
			// The archive is an audit trail; the assistant works without it.
			log.ErrorErr(log.CatDB, "request archive unavailable", dbErr)
		} else {
			defer func() { _ = db.Close() }()
			archive = db.RequestRepository()
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Manager: manager,
		Store:   store,
		Archive: archive,
		Tracer:  traceProvider.Tracer(),
	})
	if err != nil {
		return fmt.Errorf("initializing orchestrator: %w", err)
	}

	model := app.New(orch, cfg, debugMode)
	p := tea.NewProgram(model, tea.WithAltScreen())

	_, runErr := p.Run()
	model.Close()

	if runErr != nil {
		return fmt.Errorf("running program: %w", runErr)
	}
	return nil
}

// workerCommand resolves the worker binary. Defaults to re-invoking this
// binary with the worker subcommand.
func workerCommand(cfg config.Config) string {
	if cfg.Worker.Command != "" {
		return cfg.Worker.Command
	}
	exe, err := os.Executable()
	if err != nil {
		return "strand"
	}
	return exe
}

// workerArgs builds worker argument lists; the request input is appended by
// the process manager as the final argument.
func workerArgs(cfg config.Config, statePath string) []string {
	if cfg.Worker.Command != "" {
		return cfg.Worker.Args
	}
	args := []string{"worker", "--state", statePath}
	for _, dir := range cfg.Worker.AllowedDirectories {
		args = append(args, "--allow", dir)
	}
	return args
}

func tracingConfig(cfg config.Config) tracing.Config {
	tc := tracing.DefaultConfig()
	tc.Enabled = cfg.Tracing.Enabled
	if cfg.Tracing.Exporter != "" {
		tc.Exporter = cfg.Tracing.Exporter
	}
	if cfg.Tracing.FilePath != "" {
		tc.FilePath = cfg.Tracing.FilePath
	}
	if cfg.Tracing.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	}
	if cfg.Tracing.SampleRate > 0 {
		tc.SampleRate = cfg.Tracing.SampleRate
	}
	return tc
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
