package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/strand/internal/log"
	"github.com/zjrosen/strand/internal/orchestrator"
	"github.com/zjrosen/strand/internal/protocol"
	"github.com/zjrosen/strand/internal/ui/styles"
)

// sidebarMinWidth is the narrowest useful task/tool pane.
const sidebarMinWidth = 24

// toolLogLines is how many recent tool invocations the log pane shows.
const toolLogLines = 8

// chatPaneWidth gives the conversation roughly two thirds of the screen,
// leaving the rest for the sidebar.
func (m Model) chatPaneWidth() int {
	sidebar := m.width / 3
	if sidebar < sidebarMinWidth {
		return m.width
	}
	return m.width - sidebar
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	chatPane := styles.PaneStyle.Width(m.chatPaneWidth() - 2).Render(
		styles.PaneTitleStyle.Render("Conversation") + "\n" + m.viewport.View())

	var body string
	if m.chatPaneWidth() < m.width {
		sidebar := lipgloss.JoinVertical(lipgloss.Left,
			m.renderTaskPane(),
			m.renderToolPane(),
		)
		body = lipgloss.JoinHorizontal(lipgloss.Top, chatPane, sidebar)
	} else {
		body = chatPane
	}

	sections := []string{body, m.renderInputLine()}
	if !m.hideStatusBar {
		sections = append(sections, m.renderStatusBar())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// refreshViewport rebuilds the conversation content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
}

// renderConversation renders the full conversation history.
func (m Model) renderConversation() string {
	entries := m.snapshot.ConversationHistory
	if len(entries) == 0 {
		return lipgloss.NewStyle().
			Foreground(styles.TextMutedColor).
			Italic(true).
			Render("No messages yet. Type a request and press enter.")
	}

	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		blocks = append(blocks, m.renderEntry(entry))
	}
	return strings.Join(blocks, "\n")
}

// renderEntry renders one conversation message with a role header.
func (m Model) renderEntry(entry protocol.ConversationEntry) string {
	timestamp := lipgloss.NewStyle().
		Foreground(styles.TextSecondaryColor).
		Render(entry.Timestamp.Local().Format("15:04"))

	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}

	switch entry.Role {
	case "assistant":
		header := styles.RoleAssistantStyle.Render("strand") + " " + timestamp
		return header + "\n" + m.renderMarkdown(entry.Content)
	default:
		header := styles.RoleUserStyle.Render("you") + " " + timestamp
		return header + "\n" + wordwrap.String(entry.Content, width) + "\n"
	}
}

// renderMarkdown renders assistant markdown through the read-through cache.
func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content + "\n"
	}

	rendered, err := m.renderCache.Get(
		context.Background(),
		m.renderKey(content),
		renderRequest{renderer: m.renderer, content: content},
		renderTTL,
	)
	if err != nil {
		log.ErrorErr(log.CatUI, "markdown render failed", err)
		return content + "\n"
	}
	return rendered
}

// renderTaskPane renders current and pending tasks.
func (m Model) renderTaskPane() string {
	width := m.width - m.chatPaneWidth() - 2

	var lines []string
	if cur := m.snapshot.CurrentTask; cur != nil {
		lines = append(lines, styles.TaskActiveStyle.Render("▸ "+truncate(cur.Description, width-2)))
	}
	for _, task := range m.snapshot.Tasks {
		if cur := m.snapshot.CurrentTask; cur != nil && cur.ID == task.ID {
			continue
		}
		glyph := "· "
		if task.Status == "done" {
			glyph = "✓ "
		}
		lines = append(lines, styles.TaskStyle(task.Status).Render(glyph+truncate(task.Description, width-2)))
	}
	if len(lines) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(styles.TextMutedColor).Render("no tasks"))
	}

	return styles.PaneStyle.Width(width).Render(
		styles.PaneTitleStyle.Render(fmt.Sprintf("Tasks (%d)", len(m.snapshot.Tasks))) +
			"\n" + strings.Join(lines, "\n"))
}

// renderToolPane renders the tail of the tool log.
func (m Model) renderToolPane() string {
	width := m.width - m.chatPaneWidth() - 2

	entries := m.snapshot.ToolLog
	start := 0
	if len(entries) > toolLogLines {
		start = len(entries) - toolLogLines
	}

	var lines []string
	for _, entry := range entries[start:] {
		line := fmt.Sprintf("%s %s: %s",
			entry.Timestamp.Local().Format("15:04:05"), entry.Tool, entry.Detail)
		lines = append(lines, lipgloss.NewStyle().
			Foreground(styles.TextSecondaryColor).
			Render(truncate(line, width-2)))
	}
	if len(lines) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(styles.TextMutedColor).Render("no tool calls"))
	}

	return styles.PaneStyle.Width(width).Render(
		styles.PaneTitleStyle.Render("Tool Log") + "\n" + strings.Join(lines, "\n"))
}

// renderInputLine renders the prompt.
func (m Model) renderInputLine() string {
	if m.navMode {
		return lipgloss.NewStyle().
			Foreground(styles.TextMutedColor).
			Render("  -- NAV --  press i to type")
	}
	return m.input.View()
}

// renderStatusBar renders phase, operation, spinner, and errors.
func (m Model) renderStatusBar() string {
	var parts []string

	switch m.phase {
	case orchestrator.PhaseProcessing:
		op := m.snapshot.Operation
		if op == "" {
			op = "working"
		}
		parts = append(parts, m.spin.View()+op, "esc to cancel")
	default:
		parts = append(parts, "ready", "enter to send", "ctrl+c to quit")
	}

	bar := styles.StatusBarStyle.Render(strings.Join(parts, "  ·  "))
	if m.lastErr != "" {
		bar += "  " + styles.ErrorStyle.Render(truncate(m.lastErr, m.width/2))
	}
	return bar
}

// truncate shortens s to the given display width.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
