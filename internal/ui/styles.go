package ui

import (
	"fmt"
	"image/color"
	"time"

	"charm.land/lipgloss/v2"
)

var (
	ColorBorder color.Color

	StyleHeader        lipgloss.Style
	StyleDim           lipgloss.Style
	StyleAccent        lipgloss.Style
	StyleDir           lipgloss.Style
	StyleInfo          lipgloss.Style
	StyleWarn          lipgloss.Style
	StyleError         lipgloss.Style
	StylePreviewBorder lipgloss.Style
	StylePane          lipgloss.Style
)

func init() { buildStyles() }

func buildStyles() {
	ColorBorder = lipgloss.Color(T.Border)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(T.Header))

	StyleDim = lipgloss.NewStyle().
		Foreground(lipgloss.Color(T.Dim))

	StyleAccent = lipgloss.NewStyle().
		Foreground(lipgloss.Color(T.Accent))

	StyleDir = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(T.Blue))

	StyleInfo = lipgloss.NewStyle().
		Foreground(lipgloss.Color(T.Green))

	StyleWarn = lipgloss.NewStyle().
		Foreground(lipgloss.Color(T.Yellow))

	StyleError = lipgloss.NewStyle().
		Foreground(lipgloss.Color(T.Red))

	StylePreviewBorder = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(ColorBorder).
		PaddingLeft(1)

	StylePane = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(ColorBorder)
}

// FormatSize renders a byte count in the largest unit that keeps it short.
func FormatSize(n int) string {
	switch {
	case n < 1<<10:
		return fmt.Sprintf("%dB", n)
	case n < 1<<20:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	}
}

// FormatClock formats a timestamp for the log pane and header.
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04:05")
}
