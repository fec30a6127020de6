package logoverlay

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/strand/internal/log"
	"github.com/zjrosen/strand/internal/pubsub"
)

func logEvent(entry string) log.LogEvent {
	return pubsub.Event[string]{Type: pubsub.CreatedEvent, Payload: entry}
}

func sizedModel(t *testing.T) Model {
	t.Helper()
	m := New()
	m.SetSize(100, 40)
	return m
}

func TestNew_NotVisible(t *testing.T) {
	m := New()
	require.False(t, m.Visible())
	require.Empty(t, m.View(), "hidden overlay renders nothing")
}

func TestToggle(t *testing.T) {
	m := sizedModel(t)

	m.Toggle()
	require.True(t, m.Visible())

	m.Toggle()
	require.False(t, m.Visible())
}

func TestUpdate_AccumulatesLogEvents(t *testing.T) {
	m := sizedModel(t)

	m, _ = m.Update(logEvent("2026-01-01T10:00:00 [INFO] [orch] request started\n"))
	m, _ = m.Update(logEvent("2026-01-01T10:00:01 [DEBUG] [proc] line parsed\n"))

	require.Equal(t, 2, m.EntryCount())
}

func TestUpdate_BoundsTailBuffer(t *testing.T) {
	m := sizedModel(t)

	for i := 0; i < maxEntries+50; i++ {
		m, _ = m.Update(logEvent("[DEBUG] entry\n"))
	}

	require.Equal(t, maxEntries, m.EntryCount())
}

func TestView_ShowsEntries(t *testing.T) {
	m := sizedModel(t)
	m, _ = m.Update(logEvent("[INFO] [orch] request started\n"))
	m.Toggle()

	view := ansi.Strip(m.View())
	require.Contains(t, view, "Logs")
	require.Contains(t, view, "request started")
}

func TestView_EmptyBuffer(t *testing.T) {
	m := sizedModel(t)
	m.Toggle()

	view := ansi.Strip(m.View())
	require.Contains(t, view, "No logs to display")
}

func TestKeyC_ClearsBuffer(t *testing.T) {
	m := sizedModel(t)
	m, _ = m.Update(logEvent("[INFO] something\n"))
	m.Toggle()

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})

	require.Zero(t, m.EntryCount())
	require.Contains(t, ansi.Strip(m.View()), "No logs to display")
}

func TestLevelFilter(t *testing.T) {
	m := sizedModel(t)
	m, _ = m.Update(logEvent("[DEBUG] noisy detail\n"))
	m, _ = m.Update(logEvent("[ERROR] something broke\n"))
	m.Toggle()

	// Filter to errors only
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})

	view := ansi.Strip(m.View())
	require.Contains(t, view, "something broke")
	require.NotContains(t, view, "noisy detail")

	// Back to debug shows everything
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	view = ansi.Strip(m.View())
	require.Contains(t, view, "noisy detail")
}

func TestFilterHint_HighlightsActiveLevel(t *testing.T) {
	m := sizedModel(t)
	m.Toggle()

	view := ansi.Strip(m.View())
	require.Contains(t, view, "[c] Clear")
	require.Contains(t, view, "[d] Debug")
	require.Contains(t, view, "[e] Error")
}

func TestEsc_ClosesOverlay(t *testing.T) {
	m := sizedModel(t)
	m.Toggle()

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	require.False(t, m.Visible())
	require.NotNil(t, cmd)
	require.IsType(t, CloseMsg{}, cmd())
}

func TestKeys_IgnoredWhenHidden(t *testing.T) {
	m := sizedModel(t)
	m, _ = m.Update(logEvent("[INFO] kept\n"))

	// 'c' while hidden must not clear
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})

	require.Equal(t, 1, m.EntryCount())
}

func TestOverlay_PlacesOnBackground(t *testing.T) {
	m := sizedModel(t)

	bg := strings.Repeat(strings.Repeat(".", 100)+"\n", 39) + strings.Repeat(".", 100)
	require.Equal(t, bg, m.Overlay(bg), "hidden overlay leaves background untouched")

	m.Toggle()
	composited := ansi.Strip(m.Overlay(bg))
	require.Contains(t, composited, "Logs")
	require.Contains(t, composited, ".")
}

func TestUnknownLevelEntriesAlwaysShown(t *testing.T) {
	m := sizedModel(t)
	m, _ = m.Update(logEvent("plain entry without level tag\n"))
	m.Toggle()

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})

	require.Contains(t, ansi.Strip(m.View()), "plain entry without level tag")
}
