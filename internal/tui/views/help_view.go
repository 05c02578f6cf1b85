package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

type helpSection struct {
	title string
	keys  [][2]string
}

var helpSections = []helpSection{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"Esc", "Cancel / Go back"},
		{"?", "Help"},
		{"q", "Quit"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Rooms", [][2]string{
		{"Enter", "Join selected room"},
		{"n", "Join a new room"},
		{"/", "Filter rooms"},
		{"1-9", "Join Nth room"},
		{"r", "Reload rooms"},
	}},
	{"Room", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send message (in composer)"},
		{"Esc", "Leave composer / back to rooms"},
		{"Up/k/PgUp", "Scroll; at the top loads older messages"},
		{"o", "Load older messages"},
		{"G/End", "Jump to newest"},
		{"l", "Leave room"},
	}},
	{"Commands (: mode)", [][2]string{
		{":join <room>", "Join a room"},
		{":leave", "Leave the current room"},
		{":older", "Load older messages"},
		{":rooms", "Show recent rooms"},
		{":logout", "Log out"},
		{":help / :h", "Show this help"},
		{":quit / :q", "Quit application"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, k := range s.keys {
			fmt.Fprintf(&b, "  %s%-14s[-] %s\n", kc, tview.Escape(k[0]), k[1])
		}
	}
	hv.SetText(b.String())
}
