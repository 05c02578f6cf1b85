package ui

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/tui/model"
)

// FlashBar shows the current flash message under the header.
type FlashBar struct {
	*tview.TextView
	theme *Theme
	last  model.FlashMessage
}

// NewFlashBar creates an empty flash bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{TextView: tv, theme: theme}
}

// Update shows msg; nil clears the bar. Redrawing the same message is a
// no-op so the one-second refresh tick does not churn the view.
func (fb *FlashBar) Update(msg *model.FlashMessage) {
	var next model.FlashMessage
	if msg != nil {
		next = *msg
	}
	if next == fb.last {
		return
	}
	fb.last = next
	fb.Clear()
	if msg == nil {
		return
	}
	color, glyph := fb.theme.FlashInfoColor, "i"
	switch msg.Level {
	case model.FlashWarn:
		color, glyph = fb.theme.FlashWarnColor, "!"
	case model.FlashErr:
		color, glyph = fb.theme.FlashErrColor, "x"
	}
	_, _ = fmt.Fprintf(fb, " %s%s %s[-]", Tag(color), tview.Escape("["+glyph+"]"), tview.Escape(msg.Text))
}
