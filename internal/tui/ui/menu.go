package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is how many hints stack in one menu column.
const menuRows = 5

// Menu displays keyboard shortcut hints in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints column by column, menuRows per column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, layoutHints(hints, colorName(m.theme.MenuKeyColor), colorName(m.theme.NumericKeyColor)))
}

func layoutHints(hints []MenuHint, keyColor, numColor string) string {
	if len(hints) == 0 {
		return ""
	}
	cols := (len(hints) + menuRows - 1) / menuRows
	width := make([]int, cols)
	for i, h := range hints {
		c := i / menuRows
		if w := len(h.Key) + len(h.Description) + 3; w > width[c] {
			width[c] = w
		}
	}

	rows := min(len(hints), menuRows)
	lines := make([]string, rows)
	for i, h := range hints {
		c, r := i/menuRows, i%menuRows
		kc := keyColor
		if h.Numeric {
			kc = numColor
		}
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", kc, tview.Escape(h.Key), h.Description)
		pad := width[c] - (len(h.Key) + len(h.Description) + 3)
		if c < cols-1 {
			cell += strings.Repeat(" ", pad+2)
		}
		lines[r] += cell
	}
	return strings.Join(lines, "\n")
}
