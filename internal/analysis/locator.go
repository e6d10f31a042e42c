package analysis

import (
	"strings"
	"unicode/utf8"
)

// locator finds source sentences in the analysed text. Its cursor only
// moves forward, so a repeated sentence matches its next occurrence.
type locator struct {
	text       string
	cursor     int
	runeCursor int
	// newlines[i] is the number of '\n' among the first i runes of text.
	newlines []int
}

func newLocator(text string) *locator {
	newlines := make([]int, 1, utf8.RuneCountInString(text)+1)
	count := 0
	for _, r := range text {
		if r == '\n' {
			count++
		}
		newlines = append(newlines, count)
	}
	return &locator{text: text, newlines: newlines}
}

// locate returns the rune offset of source at or after the cursor.
func (l *locator) locate(source string) (int, bool) {
	if source == "" {
		return 0, false
	}
	idx := strings.Index(l.text[l.cursor:], source)
	if idx < 0 {
		return 0, false
	}
	start := l.cursor + idx
	runeStart := l.runeCursor + utf8.RuneCountInString(l.text[l.cursor:start])
	l.cursor = start + len(source)
	l.runeCursor = runeStart + utf8.RuneCountInString(source)
	return runeStart, true
}

// addressable converts a rune offset in the text to an addressable offset
// by discounting the line breaks before it.
func (l *locator) addressable(offset int) int {
	if offset < 0 {
		offset = 0
	}
	if max := len(l.newlines) - 1; offset > max {
		offset = max
	}
	return offset - l.newlines[offset]
}
