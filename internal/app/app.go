// Package app contains the root application model.
package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/strand/internal/config"
	"github.com/zjrosen/strand/internal/keys"
	"github.com/zjrosen/strand/internal/log"
	"github.com/zjrosen/strand/internal/orchestrator"
	"github.com/zjrosen/strand/internal/ui/chat"
	"github.com/zjrosen/strand/internal/ui/logoverlay"
	"github.com/zjrosen/strand/internal/watcher"
)

// snapshotChangedMsg reports an external write to the state snapshot.
type snapshotChangedMsg struct{}

// Model is the root application state.
type Model struct {
	chat       chat.Model
	orch       *orchestrator.Orchestrator
	logOverlay logoverlay.Model
	keymap     keys.KeyMap

	debugMode    bool
	logListenCmd tea.Cmd

	// File watcher for auto-refresh. Nil when disabled.
	watcherHandle *watcher.Watcher
	changes       <-chan struct{}

	width  int
	height int
}

// New creates the root application model. The watcher is optional: when
// auto-refresh is disabled or the watcher cannot start, the app works
// without external snapshot reloads.
func New(orch *orchestrator.Orchestrator, cfg config.Config, debugMode bool) Model {
	var (
		watcherHandle *watcher.Watcher
		changes       <-chan struct{}
	)

	if cfg.AutoRefresh {
		w, err := watcher.New(watcher.DefaultConfig(cfg.ResolvedStatePath()))
		if err == nil {
			ch, startErr := w.Start()
			if startErr == nil {
				watcherHandle = w
				changes = ch
			} else {
				_ = w.Stop()
				log.ErrorErr(log.CatWatcher, "snapshot watcher failed to start", startErr)
			}
		} else {
			log.ErrorErr(log.CatWatcher, "snapshot watcher init failed", err)
		}
	}

	overlay := logoverlay.New()
	var logListenCmd tea.Cmd
	if debugMode {
		logListenCmd = overlay.StartListening()
	}

	return Model{
		chat: chat.New(chat.Config{
			Orchestrator:  orch,
			MarkdownStyle: cfg.UI.MarkdownStyle,
			VimMode:       cfg.UI.VimMode,
			HideStatusBar: !cfg.UI.ShowStatusBar,
		}),
		orch:          orch,
		logOverlay:    overlay,
		keymap:        keys.DefaultKeyMap(),
		debugMode:     debugMode,
		logListenCmd:  logListenCmd,
		watcherHandle: watcherHandle,
		changes:       changes,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.chat.Init()}
	if m.logListenCmd != nil {
		cmds = append(cmds, m.logListenCmd)
	}
	if m.changes != nil {
		cmds = append(cmds, waitForChange(m.changes))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logOverlay.SetSize(msg.Width, msg.Height)
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd

	case snapshotChangedMsg:
		return m.handleSnapshotChange()

	case logoverlay.CloseMsg:
		m.logOverlay.Hide()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.Quit) {
			return m, tea.Quit
		}
		if m.debugMode && key.Matches(msg, m.keymap.ToggleLogs) {
			m.logOverlay.Toggle()
			return m, nil
		}
		if m.logOverlay.Visible() {
			var cmd tea.Cmd
			m.logOverlay, cmd = m.logOverlay.Update(msg)
			return m, cmd
		}
	}

	// Log events and everything else flow to both components: the overlay
	// collects entries even while hidden, the chat handles the rest.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.logOverlay, cmd = m.logOverlay.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	m.chat, cmd = m.chat.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleSnapshotChange reloads externally written snapshots. Changes that
// arrive while a request is in flight are dropped: the active request's
// folds own the state until it finishes.
func (m Model) handleSnapshotChange() (tea.Model, tea.Cmd) {
	if !m.chat.Processing() {
		if err := m.orch.Reload(); err != nil {
			log.ErrorErr(log.CatWatcher, "snapshot reload failed", err)
		} else {
			log.Info(log.CatWatcher, "snapshot reloaded after external change")
			m.chat = m.chat.RefreshState()
		}
	} else {
		log.Debug(log.CatWatcher, "external snapshot change ignored while processing")
	}

	return m, waitForChange(m.changes)
}

// View implements tea.Model.
func (m Model) View() string {
	view := m.chat.View()
	if m.logOverlay.Visible() {
		return m.logOverlay.Overlay(view)
	}
	return view
}

// Close releases everything the model owns: the watcher, the log listener,
// the orchestrator subscription, and the orchestrator itself.
func (m *Model) Close() {
	if m.watcherHandle != nil {
		if err := m.watcherHandle.Stop(); err != nil {
			log.ErrorErr(log.CatWatcher, "watcher stop failed", err)
		}
	}
	m.logOverlay.StopListening()
	m.chat.CancelSubscriptions()
	m.orch.Shutdown()
}

// waitForChange blocks until the watcher reports a change. The channel
// closing (watcher stopped) ends the loop.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return snapshotChangedMsg{}
	}
}
