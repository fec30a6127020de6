// Package chat contains the conversation mode: prompt input, chat viewport,
// task sidebar, and tool log. It renders state clones handed out by the
// orchestrator and never mutates them.
package chat

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/strand/internal/cachemanager"
	"github.com/zjrosen/strand/internal/keys"
	"github.com/zjrosen/strand/internal/log"
	"github.com/zjrosen/strand/internal/orchestrator"
	"github.com/zjrosen/strand/internal/pubsub"
	"github.com/zjrosen/strand/internal/state"
	"github.com/zjrosen/strand/internal/ui/markdown"
	"github.com/zjrosen/strand/internal/ui/styles"
)

// pollInterval is how often the orchestrator is ticked while a request is
// in flight.
const pollInterval = 80 * time.Millisecond

// renderTTL bounds how long rendered markdown stays cached.
const renderTTL = 30 * time.Minute

// tickMsg drives the orchestrator poll loop.
type tickMsg time.Time

// renderRequest carries everything the render function needs on a cache miss.
type renderRequest struct {
	renderer *markdown.Renderer
	content  string
}

// Config holds the chat mode's collaborators and options.
type Config struct {
	Orchestrator *orchestrator.Orchestrator

	// MarkdownStyle is "dark" or "light".
	MarkdownStyle string

	// VimMode enables a normal/insert split: esc leaves the prompt and
	// j/k scroll the conversation until i refocuses it.
	VimMode bool

	// HideStatusBar drops the bottom status line.
	HideStatusBar bool
}

// Model is the chat mode state.
type Model struct {
	orch *orchestrator.Orchestrator

	input    textinput.Model
	spin     spinner.Model
	viewport viewport.Model

	renderer    *markdown.Renderer
	renderCache *cachemanager.ReadThroughCache[string, string, renderRequest]
	mdStyle     string

	snapshot state.SharedState
	phase    orchestrator.Phase
	lastErr  string

	keymap keys.KeyMap

	vimMode       bool
	navMode       bool
	hideStatusBar bool

	width  int
	height int
	ready  bool

	events      <-chan pubsub.Event[orchestrator.Event]
	listenerCtx context.Context
	cancel      context.CancelFunc
}

// New creates the chat mode model and subscribes to orchestrator events.
func New(cfg Config) Model {
	input := textinput.New()
	input.Placeholder = "Ask something..."
	input.Prompt = "> "
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(styles.SpinnerColor)

	manager := cachemanager.NewInMemoryCacheManager[string, string](
		"render-cache", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	renderCache := cachemanager.NewReadThroughCache[string, string, renderRequest](
		manager,
		func(_ context.Context, req renderRequest) (string, error) {
			return req.renderer.Render(req.content)
		},
		false,
	)

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		orch:          cfg.Orchestrator,
		input:         input,
		spin:          spin,
		renderCache:   renderCache,
		mdStyle:       cfg.MarkdownStyle,
		snapshot:      cfg.Orchestrator.State(),
		phase:         cfg.Orchestrator.Phase(),
		keymap:        keys.DefaultKeyMap(),
		vimMode:       cfg.VimMode,
		hideStatusBar: cfg.HideStatusBar,
		events:        cfg.Orchestrator.Subscribe(ctx),
		listenerCtx:   ctx,
		cancel:        cancel,
	}
}

// listen waits for the next orchestrator event.
func (m Model) listen() tea.Cmd {
	return pubsub.ListenCmd(m.listenerCtx, m.events)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

// CancelSubscriptions drops the orchestrator event subscription.
func (m *Model) CancelSubscriptions() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Processing reports whether a request is in flight.
func (m Model) Processing() bool {
	return m.phase == orchestrator.PhaseProcessing
}

// Snapshot returns the state the chat is currently rendering.
func (m Model) Snapshot() state.SharedState {
	return m.snapshot
}

// RefreshState re-reads the orchestrator's state. Used after an external
// snapshot reload.
func (m Model) RefreshState() Model {
	m.snapshot = m.orch.State()
	m.phase = m.orch.Phase()
	m.refreshViewport()
	return m
}

// Update implements the chat mode's message handling.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.SetSize(msg.Width, msg.Height), nil

	case tickMsg:
		if !m.Processing() {
			return m, nil
		}
		// Ticking folds updates and publishes events; the listener
		// delivers them back as messages.
		m.orch.Tick()
		m.phase = m.orch.Phase()
		if m.Processing() {
			return m, tickCmd()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.Processing() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case pubsub.Event[orchestrator.Event]:
		return m.handleOrchestratorEvent(msg.Payload)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleOrchestratorEvent folds an orchestrator event into the view state.
func (m Model) handleOrchestratorEvent(ev orchestrator.Event) (Model, tea.Cmd) {
	m.snapshot = ev.State
	m.phase = ev.Phase

	switch ev.Kind {
	case orchestrator.EventCompleted:
		m.lastErr = ""
	case orchestrator.EventFailed:
		m.lastErr = ev.Err
	}

	m.refreshViewport()
	m.viewport.GotoBottom()

	return m, m.listen()
}

// handleKey routes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Submit):
		if m.navMode {
			return m, nil
		}
		return m.submit()

	case key.Matches(msg, m.keymap.Cancel):
		if m.Processing() {
			// Cancel the in-flight request
			if err := m.orch.Cancel(); err != nil {
				log.ErrorErr(log.CatUI, "cancel failed", err)
			}
			m.phase = m.orch.Phase()
			return m, nil
		}
		if m.vimMode && !m.navMode {
			m.navMode = true
			m.input.Blur()
			return m, nil
		}
		return m, nil

	case key.Matches(msg, m.keymap.Insert):
		if m.navMode {
			m.navMode = false
			return m, m.input.Focus()
		}

	case key.Matches(msg, m.keymap.Down):
		if m.navMode {
			m.viewport.ScrollDown(1)
			return m, nil
		}

	case key.Matches(msg, m.keymap.Up):
		if m.navMode {
			m.viewport.ScrollUp(1)
			return m, nil
		}

	case key.Matches(msg, m.keymap.PageUp):
		m.viewport.HalfPageUp()
		return m, nil

	case key.Matches(msg, m.keymap.PageDown):
		m.viewport.HalfPageDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit hands the prompt to the orchestrator. Submission happens inline:
// the orchestrator is single-threaded and driven only from this update loop.
func (m Model) submit() (Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.Processing() {
		m.lastErr = "a request is already being processed"
		return m, nil
	}

	if _, err := m.orch.Submit(m.listenerCtx, text); err != nil {
		m.lastErr = err.Error()
		m.snapshot = m.orch.State()
		m.refreshViewport()
		return m, nil
	}

	m.input.Reset()
	m.lastErr = ""
	m.phase = m.orch.Phase()
	m.snapshot = m.orch.State()
	m.refreshViewport()
	m.viewport.GotoBottom()

	return m, tea.Batch(tickCmd(), m.spin.Tick)
}

// SetSize recalculates the layout for the given terminal dimensions.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height

	chatWidth := m.chatPaneWidth()
	contentWidth := chatWidth - 2 // pane border

	renderer, err := markdown.New(contentWidth-2, m.mdStyle)
	if err != nil {
		log.ErrorErr(log.CatUI, "markdown renderer init failed", err)
	} else {
		m.renderer = renderer
	}

	// Input line + status bar + pane borders
	viewportHeight := max(height-6, 3)
	if !m.ready {
		m.viewport = viewport.New(contentWidth, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = viewportHeight
	}

	m.input.Width = width - 6
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m
}

// tickCmd schedules the next orchestrator poll.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// renderKey builds a cache key for rendered markdown. Width and style are
// part of the key: a resize changes the wrap, not the source text.
func (m Model) renderKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	width := 0
	if m.renderer != nil {
		width = m.renderer.Width()
	}
	return fmt.Sprintf("%s|%d|%x", m.mdStyle, width, sum)
}
