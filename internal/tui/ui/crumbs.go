package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// maxCrumb bounds one crumb's label; room ids may be long.
const maxCrumb = 24

// Crumbs shows the page stack, e.g. "rooms > #golang".
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates an empty crumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &Crumbs{TextView: tv, theme: theme}
}

// Update renders stack, bottom first. label maps a page name to its
// display text; nil shows names as is. The top page is highlighted.
func (c *Crumbs) Update(stack []string, label func(string) string) {
	c.Clear()
	var b strings.Builder
	for i, name := range stack {
		text := name
		if label != nil {
			text = label(name)
		}
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "[%s:%s:%s] %s [-:-:-]", colorName(fg), colorName(bg), attr, tview.Escape(truncate(text, maxCrumb)))
	}
	_, _ = fmt.Fprint(c, b.String())
}

// truncate shortens s to at most n runes, marking the cut with "~".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}

// colorName returns the tview tag name for c.
func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
