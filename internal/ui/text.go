package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// ExpandTabs replaces tabs with spaces up to the next multiple of tabWidth
// columns. Columns restart after each newline.
func ExpandTabs(text string, tabWidth int) string {
	if tabWidth <= 0 || !strings.ContainsRune(text, '\t') {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	col := 0
	for _, r := range text {
		switch r {
		case '\t':
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			w := runewidth.RuneWidth(r)
			if w < 1 {
				w = 1
			}
			col += w
		}
	}
	return b.String()
}

// Truncate shortens s to at most width terminal columns, ending in "…" when
// anything was cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// TruncateLeft keeps the tail of s, which for paths is the part that matters.
func TruncateLeft(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.TruncateLeft(s, runewidth.StringWidth(s)-width+1, "…")
}
