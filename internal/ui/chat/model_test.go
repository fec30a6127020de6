package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/strand/internal/orchestrator"
	"github.com/zjrosen/strand/internal/process"
	"github.com/zjrosen/strand/internal/protocol"
	"github.com/zjrosen/strand/internal/pubsub"
	"github.com/zjrosen/strand/internal/state"
)

// fakeManager scripts the process manager the same way the orchestrator's
// own tests do: each PollUpdates call pops one batch.
type fakeManager struct {
	started []string
	polls   [][]process.TaggedUpdate
	results map[string]*process.Result
}

func newFakeManager() *fakeManager {
	return &fakeManager{results: map[string]*process.Result{}}
}

func (f *fakeManager) StartProcess(_ context.Context, _ string) (string, error) {
	id := fmt.Sprintf("proc-%d", len(f.started)+1)
	f.started = append(f.started, id)
	return id, nil
}

func (f *fakeManager) PollUpdates() []process.TaggedUpdate {
	if len(f.polls) == 0 {
		return nil
	}
	batch := f.polls[0]
	f.polls = f.polls[1:]
	return batch
}

func (f *fakeManager) GetProcessResult(id string) *process.Result {
	return f.results[id]
}

func (f *fakeManager) CleanupCompletedProcesses() {}

func (f *fakeManager) Terminate(id string) error {
	if _, ok := f.results[id]; !ok {
		f.results[id] = &process.Result{ProcessID: id, Err: "cancelled"}
	}
	return nil
}

func (f *fakeManager) TerminateAll() {
	for _, id := range f.started {
		_ = f.Terminate(id)
	}
}

func newTestModel(t *testing.T, mgr orchestrator.ProcessManager) Model {
	t.Helper()
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	orch, err := orchestrator.New(orchestrator.Config{Manager: mgr, Store: store})
	require.NoError(t, err)

	m := New(Config{Orchestrator: orch, MarkdownStyle: "dark"})
	t.Cleanup(m.CancelSubscriptions)
	return m.SetSize(100, 30)
}

func typeAndSubmit(m Model, text string) (Model, tea.Cmd) {
	m.input.SetValue(text)
	return m.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestSubmit_EntersProcessing(t *testing.T) {
	m := newTestModel(t, newFakeManager())

	m, cmd := typeAndSubmit(m, "summarize this repo")
	require.NotNil(t, cmd)
	require.True(t, m.Processing())
	require.Empty(t, m.input.Value())

	// The input is recorded optimistically.
	history := m.Snapshot().ConversationHistory
	require.Len(t, history, 1)
	require.Equal(t, "user", history[0].Role)
	require.Equal(t, "summarize this repo", history[0].Content)
}

func TestSubmit_EmptyInputIsIgnored(t *testing.T) {
	m := newTestModel(t, newFakeManager())

	m, cmd := typeAndSubmit(m, "   ")
	require.Nil(t, cmd)
	require.False(t, m.Processing())
	require.Empty(t, m.Snapshot().ConversationHistory)
}

func TestSubmit_RejectedWhileProcessing(t *testing.T) {
	m := newTestModel(t, newFakeManager())

	m, _ = typeAndSubmit(m, "first request")
	require.True(t, m.Processing())

	m, _ = typeAndSubmit(m, "second request")
	require.Equal(t, "a request is already being processed", m.lastErr)
	require.Len(t, m.Snapshot().ConversationHistory, 1)
}

func TestTick_DrivesOrchestratorUntilTerminal(t *testing.T) {
	mgr := newFakeManager()
	m := newTestModel(t, mgr)

	m, _ = typeAndSubmit(m, "do the thing")
	id := mgr.started[0]

	mgr.polls = [][]process.TaggedUpdate{{{
		ProcessID: id,
		Update: protocol.Update{
			Kind:     protocol.KindProgress,
			Progress: &protocol.ProgressUpdate{Operation: "reading files", Message: "working"},
		},
	}}}

	m, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd, "should re-arm while processing")
	require.True(t, m.Processing())

	mgr.results[id] = &process.Result{ProcessID: id, Completed: true, Response: "done"}
	m, cmd = m.Update(tickMsg(time.Now()))
	require.Nil(t, cmd, "terminal phase stops the poll loop")
	require.False(t, m.Processing())
}

func TestOrchestratorEvent_UpdatesSnapshotAndRearms(t *testing.T) {
	m := newTestModel(t, newFakeManager())

	s := state.Default()
	s.Operation = "indexing"
	s.ConversationHistory = append(s.ConversationHistory, protocol.ConversationEntry{
		Role: "assistant", Content: "On it.", Timestamp: time.Now(),
	})

	m, cmd := m.Update(pubsub.Event[orchestrator.Event]{
		Type: pubsub.UpdatedEvent,
		Payload: orchestrator.Event{
			Kind:  orchestrator.EventStateChanged,
			Phase: orchestrator.PhaseProcessing,
			State: s,
		},
	})
	require.NotNil(t, cmd, "listener must be re-armed")
	require.Equal(t, "indexing", m.Snapshot().Operation)
	require.True(t, m.Processing())
}

func TestOrchestratorEvent_FailureSurfacesError(t *testing.T) {
	m := newTestModel(t, newFakeManager())

	m, _ = m.Update(pubsub.Event[orchestrator.Event]{
		Type: pubsub.UpdatedEvent,
		Payload: orchestrator.Event{
			Kind:  orchestrator.EventFailed,
			Phase: orchestrator.PhaseFailed,
			State: state.Default(),
			Err:   "worker exited before completing",
		},
	})
	require.Equal(t, "worker exited before completing", m.lastErr)
	require.Contains(t, ansi.Strip(m.View()), "worker exited before completing")

	// A later success clears it.
	m, _ = m.Update(pubsub.Event[orchestrator.Event]{
		Type: pubsub.UpdatedEvent,
		Payload: orchestrator.Event{
			Kind:  orchestrator.EventCompleted,
			Phase: orchestrator.PhaseCompleted,
			State: state.Default(),
		},
	})
	require.Empty(t, m.lastErr)
}

func TestEsc_CancelsInFlightRequest(t *testing.T) {
	mgr := newFakeManager()
	m := newTestModel(t, mgr)

	m, _ = typeAndSubmit(m, "long running request")
	require.True(t, m.Processing())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.False(t, m.Processing())
}

func TestVimMode_EscEntersNavAndIReturns(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	orch, err := orchestrator.New(orchestrator.Config{Manager: newFakeManager(), Store: store})
	require.NoError(t, err)

	m := New(Config{Orchestrator: orch, MarkdownStyle: "dark", VimMode: true})
	t.Cleanup(m.CancelSubscriptions)
	m = m.SetSize(100, 30)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.True(t, m.navMode)
	require.Contains(t, ansi.Strip(m.View()), "NAV")

	// Keys scroll instead of typing.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	require.Empty(t, m.input.Value())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'i'}})
	require.False(t, m.navMode)
}

func TestKeymap_ArrowKeysScrollInNavMode(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	orch, err := orchestrator.New(orchestrator.Config{Manager: newFakeManager(), Store: store})
	require.NoError(t, err)

	m := New(Config{Orchestrator: orch, MarkdownStyle: "dark", VimMode: true})
	t.Cleanup(m.CancelSubscriptions)
	m = m.SetSize(100, 30)

	// The bindings come from the shared keymap, so arrows work alongside j/k.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.True(t, m.navMode)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	require.Empty(t, m.input.Value())
	require.True(t, m.navMode)
}

func TestView_ShowsConversationAndPanes(t *testing.T) {
	m := newTestModel(t, newFakeManager())

	s := state.Default()
	s.ConversationHistory = []protocol.ConversationEntry{
		{Role: "user", Content: "list my tasks", Timestamp: time.Now()},
		{Role: "assistant", Content: "You have **two** tasks.", Timestamp: time.Now()},
	}
	s.Tasks = []protocol.Task{
		{ID: "t1", Description: "water the plants", Status: "pending"},
		{ID: "t2", Description: "file expenses", Status: "done"},
	}
	s.CurrentTask = &s.Tasks[0]
	s.ToolLog = []protocol.ToolLogEntry{
		{Tool: "add_task", Detail: "water the plants", Timestamp: time.Now()},
	}

	m, _ = m.Update(pubsub.Event[orchestrator.Event]{
		Type: pubsub.UpdatedEvent,
		Payload: orchestrator.Event{
			Kind:  orchestrator.EventStateChanged,
			Phase: orchestrator.PhaseIdle,
			State: s,
		},
	})

	view := ansi.Strip(m.View())
	require.Contains(t, view, "list my tasks")
	require.Contains(t, view, "two")
	require.Contains(t, view, "water the plants")
	require.Contains(t, view, "file expenses")
	require.Contains(t, view, "add_task")
	require.Contains(t, view, "Tasks (2)")
}

func TestView_EmptyStateShowsPlaceholder(t *testing.T) {
	m := newTestModel(t, newFakeManager())
	require.Contains(t, ansi.Strip(m.View()), "No messages yet")
}

func TestView_ProcessingShowsOperation(t *testing.T) {
	mgr := newFakeManager()
	m := newTestModel(t, mgr)

	m, _ = typeAndSubmit(m, "organize my week")
	id := mgr.started[0]

	mgr.polls = [][]process.TaggedUpdate{{{
		ProcessID: id,
		Update: protocol.Update{
			Kind:     protocol.KindProgress,
			Progress: &protocol.ProgressUpdate{Operation: "planning", Message: "working"},
		},
	}}}
	m, _ = m.Update(tickMsg(time.Now()))
	m = m.RefreshState()

	view := ansi.Strip(m.View())
	require.Contains(t, view, "planning")
	require.Contains(t, view, "esc to cancel")
}

func TestView_NotReadyBeforeFirstResize(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	orch, err := orchestrator.New(orchestrator.Config{Manager: newFakeManager(), Store: store})
	require.NoError(t, err)

	m := New(Config{Orchestrator: orch, MarkdownStyle: "dark"})
	t.Cleanup(m.CancelSubscriptions)
	require.Equal(t, "loading...", m.View())
}

func TestRenderKey_VariesByContentAndStyle(t *testing.T) {
	m := newTestModel(t, newFakeManager())

	a := m.renderKey("hello")
	b := m.renderKey("world")
	require.NotEqual(t, a, b)
	require.Equal(t, a, m.renderKey("hello"))

	m.mdStyle = "light"
	require.NotEqual(t, a, m.renderKey("hello"))
}

func TestChatPaneWidth_NarrowTerminalDropsSidebar(t *testing.T) {
	m := newTestModel(t, newFakeManager())

	m = m.SetSize(60, 20)
	require.Equal(t, 60, m.chatPaneWidth(), "sidebar below minimum width collapses")

	m = m.SetSize(120, 30)
	require.Less(t, m.chatPaneWidth(), 120)
}
