// Package overlay renders modal content centered on top of a background
// view without clearing the screen.
package overlay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Place renders foreground content centered over the background.
// Uses ANSI-aware string manipulation so styling in both layers survives.
func Place(width, height int, fg, bg string) string {
	fgLines := strings.Split(fg, "\n")
	bgLines := strings.Split(bg, "\n")

	// Pad background to full height
	for len(bgLines) < height {
		bgLines = append(bgLines, strings.Repeat(" ", width))
	}

	fgWidth := lipgloss.Width(fg)

	startX := max((width-fgWidth)/2, 0)
	startY := max((height-len(fgLines))/2, 0)

	for i, fgLine := range fgLines {
		bgY := startY + i
		if bgY >= len(bgLines) {
			break
		}

		bgLine := bgLines[bgY]
		fgLineWidth := ansi.StringWidth(fgLine)

		// Left portion of background, padded when shorter than startX
		leftPart := ansi.Truncate(bgLine, startX, "")
		if leftWidth := ansi.StringWidth(leftPart); leftWidth < startX {
			leftPart += strings.Repeat(" ", startX-leftWidth)
		}

		// Right portion of background after the overlay
		endX := startX + fgLineWidth
		var rightPart string
		if endX < ansi.StringWidth(bgLine) {
			rightPart = ansi.TruncateLeft(bgLine, endX, "")
		}

		bgLines[bgY] = leftPart + fgLine + rightPart
	}

	return strings.Join(bgLines, "\n")
}
