// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor     = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#CCCCCC"} // Main/primary text
	TextSecondaryColor   = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#BBBBBB"} // Timestamps, secondary info
	TextMutedColor       = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"} // Hints, help text, footers
	TextPlaceholderColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#777777"} // Input placeholders

	// Semantic color names - Border
	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"} // Unfocused borders

	// Semantic color names - Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"} // Success states
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"} // Warnings
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"} // Errors
	StatusInfoColor    = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"} // Informational accents

	// Conversation roles
	RoleUserColor      = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}
	RoleAssistantColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	// Task status colors
	TaskPendingColor = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}
	TaskActiveColor  = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}
	TaskDoneColor    = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	// Overlay colors
	OverlayTitleColor  = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#C9C9C9"}
	OverlayBorderColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#8C8C8C"}

	// Loading spinner color
	SpinnerColor = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#FFF"}

	// Conversation role styles
	RoleUserStyle      = lipgloss.NewStyle().Foreground(RoleUserColor).Bold(true)
	RoleAssistantStyle = lipgloss.NewStyle().Foreground(RoleAssistantColor).Bold(true)

	// Task status styles
	TaskPendingStyle = lipgloss.NewStyle().Foreground(TaskPendingColor)
	TaskActiveStyle  = lipgloss.NewStyle().Foreground(TaskActiveColor).Bold(true)
	TaskDoneStyle    = lipgloss.NewStyle().Foreground(TaskDoneColor)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	// Error display
	ErrorStyle = lipgloss.NewStyle().
			Foreground(StatusErrorColor).
			Bold(true)

	// Pane borders
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDefaultColor)

	PaneTitleStyle = lipgloss.NewStyle().
			Foreground(OverlayTitleColor).
			Bold(true).
			PaddingLeft(1)
)

// TaskStyle returns the style for a task's status string.
func TaskStyle(status string) lipgloss.Style {
	switch status {
	case "done":
		return TaskDoneStyle
	case "in_progress", "active":
		return TaskActiveStyle
	default:
		return TaskPendingStyle
	}
}
