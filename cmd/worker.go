package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/strand/internal/worker"
)

var (
	workerStatePath string
	workerAllow     []string
	workerHeartbeat time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker [input]",
	Short: "Process one request and stream updates to stdout",
	Long: `Process a single request as a worker: read the shared state snapshot,
execute the request, and emit newline-delimited JSON updates to stdout
until a terminal status is reached.

The input is taken from the arguments, or from stdin when no arguments
are given. This subcommand is normally spawned by the assistant itself.`,
	Args: cobra.ArbitraryArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerStatePath, "state", "",
		"path to the shared state snapshot to seed from")
	workerCmd.Flags().StringArrayVar(&workerAllow, "allow", nil,
		"directory the worker's file tools may touch (repeatable)")
	workerCmd.Flags().DurationVar(&workerHeartbeat, "heartbeat-interval", 0,
		"override the heartbeat cadence")

	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	input := strings.TrimSpace(strings.Join(args, " "))
	if input == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		input = strings.TrimSpace(string(data))
	}
	if input == "" {
		return fmt.Errorf("no input provided")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := worker.NewRunner(cmd.OutOrStdout(), worker.Options{
		StatePath:          workerStatePath,
		AllowedDirectories: workerAllow,
		HeartbeatInterval:  workerHeartbeat,
	})
	return runner.Run(ctx, input)
}
