package views

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rivo/tview"
)

// Bodies arrive as whatever the server relays; markup is stripped to text.
var bodyPolicy = bluemonday.StrictPolicy()

// SanitizeText turns an untrusted body or username into one line of plain
// text safe to embed in a dynamic-color tview string.
func SanitizeText(s string) string {
	s = html.UnescapeString(bodyPolicy.Sanitize(s))
	return tview.Escape(sanitizeForTerminal(s))
}

// sanitizeForTerminal removes codepoints that break tcell cell widths and
// folds line breaks and other control characters to spaces so every
// message stays on one row. Specifically dropped:
// - Skin tone modifiers (U+1F3FB..U+1F3FF)
// - Zero Width Joiner (U+200D)
// - Variation Selectors (U+FE00..U+FE0F, U+E0100..U+E01EF)
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case isProblematicRune(r):
			continue
		case unicode.IsControl(r) || unicode.IsSpace(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

func isProblematicRune(r rune) bool {
	switch {
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
