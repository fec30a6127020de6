package overlay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlace_CentersForeground(t *testing.T) {
	bg := strings.Join([]string{
		"..........",
		"..........",
		"..........",
		"..........",
		"..........",
	}, "\n")

	result := Place(10, 5, "XX", bg)

	lines := strings.Split(result, "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[2], "XX", "foreground should land on the middle row")
	require.Equal(t, "....XX....", lines[2])
}

func TestPlace_PreservesBackgroundOutsideOverlay(t *testing.T) {
	bg := strings.Join([]string{
		"aaaaaaaa",
		"bbbbbbbb",
		"cccccccc",
	}, "\n")

	result := Place(8, 3, "XX", bg)

	lines := strings.Split(result, "\n")
	require.Equal(t, "aaaaaaaa", lines[0])
	require.Equal(t, "cccccccc", lines[2])
	require.Equal(t, "bbbXXbbb", lines[1])
}

func TestPlace_PadsShortBackground(t *testing.T) {
	result := Place(6, 4, "X", "top")

	lines := strings.Split(result, "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "top", lines[0])
}

func TestPlace_OversizedForegroundClamps(t *testing.T) {
	bg := "....\n...."

	// Wider than the viewport: starts at column 0 rather than negative
	result := Place(4, 2, "XXXXXX", bg)

	lines := strings.Split(result, "\n")
	require.Contains(t, lines[0], "XXXXXX")
}

func TestPlace_MultilineForeground(t *testing.T) {
	bg := strings.Join([]string{
		"........",
		"........",
		"........",
		"........",
	}, "\n")

	result := Place(8, 4, "AA\nBB", bg)

	lines := strings.Split(result, "\n")
	require.Equal(t, "...AA...", lines[1])
	require.Equal(t, "...BB...", lines[2])
}
