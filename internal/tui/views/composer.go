package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/tui/ui"
)

// Composer is the text input for sending messages.
type Composer struct {
	*tview.InputField
	onSend func(text string)
	onDone func()
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)
	input.SetTitle(" Compose (i to focus) ")
	input.SetTitleColor(theme.TitleColor)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			c.submit()
		case tcell.KeyEscape:
			if c.onDone != nil {
				c.onDone()
			}
		}
	})

	return c
}

func (c *Composer) submit() {
	text := c.GetText()
	if strings.TrimSpace(text) == "" || c.onSend == nil {
		return
	}
	c.onSend(text)
	c.SetText("")
}

// SetOnSend sets the callback when a message is sent. Blank input is
// never sent.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetOnDone sets the callback when the user leaves the composer.
func (c *Composer) SetOnDone(fn func()) {
	c.onDone = fn
}
