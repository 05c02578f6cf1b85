package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/protocol"
	"github.com/vibee/vibee/internal/tui/ui"
)

// TimelineView renders a room's messages one per row, oldest first,
// below a single marker row. Scrolling up past the marker asks for older
// history; prepends keep the top visible message in place.
type TimelineView struct {
	*tview.TextView
	theme     *ui.Theme
	msgs      []protocol.Message
	self      string
	loading   bool
	exhausted bool
	onTop     func()
	now       func() time.Time
}

// NewTimelineView creates an empty timeline.
func NewTimelineView(theme *ui.Theme) *TimelineView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitleColor(theme.TitleColor)

	t := &TimelineView{TextView: tv, theme: theme, now: time.Now}

	tv.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if t.atTop() && isScrollUp(ev) {
			t.reachTop()
		}
		return ev
	})
	tv.SetMouseCapture(func(action tview.MouseAction, ev *tcell.EventMouse) (tview.MouseAction, *tcell.EventMouse) {
		if action == tview.MouseScrollUp && t.atTop() {
			t.reachTop()
		}
		return action, ev
	})
	return t
}

// SetOnReachTop sets the callback fired when the user scrolls up from
// the first row.
func (t *TimelineView) SetOnReachTop(fn func()) {
	t.onTop = fn
}

// SetSelf sets the username rendered as the local user.
func (t *TimelineView) SetSelf(name string) {
	t.self = name
}

// Update re-renders msgs. A view scrolled to the bottom follows new
// messages; otherwise the message at the top stays at the top.
func (t *TimelineView) Update(msgs []protocol.Message, loading, exhausted bool) {
	row, _ := t.GetScrollOffset()
	_, _, _, height := t.GetInnerRect()
	follow := len(t.msgs) == 0 || row+height >= len(t.msgs)+1

	old := t.msgs
	t.msgs = msgs
	t.loading, t.exhausted = loading, exhausted
	t.SetText(t.render())

	if follow {
		t.ScrollToEnd()
		return
	}
	t.ScrollTo(anchorRow(old, msgs, row), 0)
}

// Len returns the number of rendered messages.
func (t *TimelineView) Len() int {
	return len(t.msgs)
}

func (t *TimelineView) atTop() bool {
	row, _ := t.GetScrollOffset()
	return row == 0
}

func (t *TimelineView) reachTop() {
	if t.onTop != nil && !t.loading && !t.exhausted {
		t.onTop()
	}
}

func isScrollUp(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyUp, tcell.KeyPgUp, tcell.KeyHome:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'k' || ev.Rune() == 'g'
	}
	return false
}

func (t *TimelineView) render() string {
	var b strings.Builder
	marker := ui.Tag(t.theme.MarkerColor)
	switch {
	case t.loading:
		b.WriteString(marker + "  loading older messages...[-]")
	case t.exhausted:
		b.WriteString(marker + "  beginning of room[-]")
	default:
		b.WriteString(marker + "  scroll up for older messages[-]")
	}
	for _, m := range t.msgs {
		b.WriteByte('\n')
		b.WriteString(t.formatMessage(m))
	}
	return b.String()
}

func (t *TimelineView) formatMessage(m protocol.Message) string {
	author := t.theme.Author(m.Username, t.self)
	return fmt.Sprintf("%s%s[-] %s%s[-]: %s",
		ui.Tag(t.theme.TimeColor), formatStamp(m.Timestamp, t.now()),
		ui.Tag(author), SanitizeText(m.Username),
		SanitizeText(m.Body))
}

// formatStamp shows the time of day for today and the date otherwise.
func formatStamp(ts, now time.Time) string {
	ts = ts.In(now.Location())
	if ts.Year() == now.Year() && ts.YearDay() == now.YearDay() {
		return ts.Format("15:04")
	}
	return ts.Format("01/02 15:04")
}

// anchorRow returns the scroll row that keeps the message shown at row of
// old at the same screen position in cur. Row 0 is the marker row, so
// message i sits at row i+1. The anchor is found by identity, which
// holds across prepends and out-of-order inserts.
func anchorRow(old, cur []protocol.Message, row int) int {
	idx := max(row-1, 0)
	if idx >= len(old) {
		return row
	}
	key := old[idx].Key()
	for i, m := range cur {
		if m.Key() == key {
			return max(row+i-idx, 0)
		}
	}
	return row
}
