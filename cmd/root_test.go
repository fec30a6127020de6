package cmd

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/strand/internal/config"
	"github.com/zjrosen/strand/internal/protocol"
)

func TestWorkerCommand_DefaultsToSelf(t *testing.T) {
	cmd := workerCommand(config.Config{})
	require.NotEmpty(t, cmd)
	require.NotEqual(t, "strand", filepath.Base(cmd), "tests run under the test binary, not strand")

	custom := config.Config{}
	custom.Worker.Command = "/usr/local/bin/my-worker"
	require.Equal(t, "/usr/local/bin/my-worker", workerCommand(custom))
}

func TestWorkerArgs_SelfInvocationCarriesStateAndAllowlist(t *testing.T) {
	cfg := config.Defaults()
	cfg.Worker.AllowedDirectories = []string{"/srv/notes", "/srv/docs"}

	args := workerArgs(cfg, "/tmp/state.json")
	require.Equal(t, []string{
		"worker", "--state", "/tmp/state.json",
		"--allow", "/srv/notes",
		"--allow", "/srv/docs",
	}, args)
}

func TestWorkerArgs_CustomCommandUsesItsOwnArgs(t *testing.T) {
	cfg := config.Config{}
	cfg.Worker.Command = "python3"
	cfg.Worker.Args = []string{"worker.py"}

	require.Equal(t, []string{"worker.py"}, workerArgs(cfg, "/tmp/state.json"))
}

func TestTracingConfig_MapsConfigOntoDefaults(t *testing.T) {
	c := config.Defaults()
	c.Tracing.Enabled = true
	c.Tracing.Exporter = "otlp"
	c.Tracing.OTLPEndpoint = "collector:4317"
	c.Tracing.SampleRate = 0.5

	tc := tracingConfig(c)
	require.True(t, tc.Enabled)
	require.Equal(t, "otlp", tc.Exporter)
	require.Equal(t, "collector:4317", tc.OTLPEndpoint)
	require.InDelta(t, 0.5, tc.SampleRate, 1e-9)
	require.Equal(t, "strand", tc.ServiceName)
}

func TestSnippet_FlattensAndTruncates(t *testing.T) {
	require.Equal(t, "a b c", snippet("a\n  b\tc", 40))
	long := strings.Repeat("x", 50)
	got := snippet(long, 10)
	require.True(t, strings.HasSuffix(got, "…"))
	require.LessOrEqual(t, len([]rune(got)), 10)
}

func TestSnippet_NeverSplitsRunes(t *testing.T) {
	accented := strings.Repeat("café ", 10)
	got := snippet(accented, 10)
	require.True(t, utf8.ValidString(got))
	require.True(t, strings.HasSuffix(got, "…"))
	require.LessOrEqual(t, runewidth.StringWidth(got), 10)

	wide := strings.Repeat("状態", 10)
	got = snippet(wide, 12)
	require.True(t, utf8.ValidString(got))
	require.LessOrEqual(t, runewidth.StringWidth(got), 12)
}

// The worker subcommand is exercised end to end: it must emit a valid
// protocol stream ending in a terminal status.
func TestWorkerSubcommand_EmitsTerminalStatus(t *testing.T) {
	allowed := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.json")

	var out bytes.Buffer
	workerCmd.SetContext(context.Background())
	workerCmd.SetOut(&out)
	workerCmd.SetErr(&out)
	t.Cleanup(func() {
		workerCmd.SetOut(nil)
		workerCmd.SetErr(nil)
		workerStatePath = ""
		workerAllow = nil
		workerHeartbeat = 0
	})

	workerStatePath = statePath
	workerAllow = []string{allowed}
	workerHeartbeat = time.Minute

	err := runWorker(workerCmd, []string{"add", "task", "water the plants"})
	require.NoError(t, err)

	var kinds []protocol.UpdateKind
	var last protocol.Update
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		u, parseErr := protocol.ParseUpdate(scanner.Bytes())
		require.NoError(t, parseErr)
		kinds = append(kinds, u.Kind)
		last = u
	}
	require.NoError(t, scanner.Err())

	require.Contains(t, kinds, protocol.KindStatus)
	require.Contains(t, kinds, protocol.KindStateSync)
	require.True(t, last.IsTerminal(), "stream must end with a terminal status")
	require.Equal(t, protocol.StatusCompleted, last.Status.Status)
}

func TestWorkerSubcommand_RequiresInput(t *testing.T) {
	workerCmd.SetContext(context.Background())
	workerCmd.SetIn(strings.NewReader(""))
	t.Cleanup(func() { workerCmd.SetIn(nil) })

	err := runWorker(workerCmd, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no input")
}
