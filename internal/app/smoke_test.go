package app

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/strand/internal/config"
	"github.com/zjrosen/strand/internal/orchestrator"
	"github.com/zjrosen/strand/internal/process"
	"github.com/zjrosen/strand/internal/state"
)

// Drives the full program loop: startup, a submitted request reaching a
// response, and shutdown.
func TestProgram_SubmitToResponse(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	mgr := newFakeManager()
	orch, err := orchestrator.New(orchestrator.Config{Manager: mgr, Store: store})
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.UI.ShowStatusBar = true
	m := New(orch, cfg, false)
	t.Cleanup(m.Close)

	// Scripted before the program starts so the fake is never touched
	// concurrently: the first poll after submission finds the result.
	mgr.results["proc-1"] = &process.Result{
		ProcessID: "proc-1",
		Completed: true,
		Response:  "You have no tasks.",
	}

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 30))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("No messages yet"))
	}, teatest.WithDuration(3*time.Second))

	tm.Type("list my tasks")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("enter to send"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
}
