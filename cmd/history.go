package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/strand/internal/infrastructure/sqlite"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived requests",
	Long: `List finished requests from the archive, most recent first.

Each line shows when the request started, how long it took, whether it
completed, and a snippet of the input and response.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"maximum number of requests to show")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := sqlite.NewDB(cfg.ResolvedArchivePath())
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = db.Close() }()

	records, err := db.RequestRepository().List(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("listing requests: %w", err)
	}
	if len(records) == 0 {
		cmd.Println("no archived requests")
		return nil
	}

	for _, rec := range records {
		outcome := "ok"
		detail := rec.Response
		if !rec.Completed {
			outcome = "failed"
			detail = rec.Err
		}
		cmd.Printf("%s  %8s  %-6s  %s → %s\n",
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Duration.Round(10*time.Millisecond),
			outcome,
			snippet(rec.Input, 40),
			snippet(detail, 60),
		)
	}
	return nil
}

// snippet flattens s to one line and truncates it to max display columns.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, max, "…")
}
