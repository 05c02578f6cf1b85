package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the header's top-left mark. Its caption tracks whether the
// daemon event stream is up.
type Logo struct {
	*tview.TextView
	theme  *Theme
	online bool
	drawn  bool
}

// NewLogo creates the logo in the offline state.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)
	l := &Logo{TextView: tv, theme: theme}
	l.SetOnline(false)
	return l
}

// SetOnline updates the caption.
func (l *Logo) SetOnline(online bool) {
	if l.drawn && online == l.online {
		return
	}
	l.online, l.drawn = online, true

	mark := Tag(l.theme.TitleColor)
	caption, color := "room chat", l.theme.FgColor
	if !online {
		caption, color = "offline", l.theme.FlashWarnColor
	}
	l.Clear()
	_, _ = fmt.Fprintf(l, "%s╭───────╮[-]\n%s│ vibee │[-]\n%s╰┬──────╯[-]\n%s ╰ %s%s[-]",
		mark, mark, mark, mark, Tag(color), caption)
}
