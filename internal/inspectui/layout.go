package inspectui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	tabActive = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	tabIdle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#B0B0B0")).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder(), true).
		BorderForeground(lipgloss.Color("#4A4A4A"))
	card = lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder(), true).
		BorderForeground(lipgloss.Color("#4A4A4A"))

	mutedText = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errText   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValue = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableText = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// fit pads every line of s to width cells. A non-negative height also cuts or pads the
// block to exactly that many lines.
func fit(s string, width, height int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if height >= 0 {
		lines = lines[:min(len(lines), height)]
		for len(lines) < height {
			lines = append(lines, "")
		}
	}
	for i, line := range lines {
		if gap := width - lipgloss.Width(line); gap > 0 {
			lines[i] = line + strings.Repeat(" ", gap)
		}
	}
	return strings.Join(lines, "\n")
}

// truncate shortens plain text to width cells with a trailing ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
