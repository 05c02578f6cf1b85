package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/status"
	"github.com/vibee/vibee/internal/tui/ui"
)

// RoomView is the page for the joined room: the timeline over the composer.
type RoomView struct {
	*tview.Flex
	Timeline *TimelineView
	Composer *Composer
}

// NewRoomView creates the room page.
func NewRoomView(theme *ui.Theme) *RoomView {
	tl := NewTimelineView(theme)
	comp := NewComposer(theme)
	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tl, 0, 1, true).
		AddItem(comp, 3, 0, false)
	return &RoomView{Flex: flex, Timeline: tl, Composer: comp}
}

// Name implements Component.
func (rv *RoomView) Name() string { return "room" }

// Hints implements Component.
func (rv *RoomView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Up/k", Description: "Scroll (older at top)"},
		{Key: "Enter", Description: "Send (in composer)"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetRoom updates the title with the room and its connection phase.
func (rv *RoomView) SetRoom(room, phase string) {
	title := fmt.Sprintf(" #%s ", tview.Escape(room))
	if phase != "" && phase != string(status.Joined) {
		title = fmt.Sprintf(" #%s (%s) ", tview.Escape(room), phase)
	}
	rv.Timeline.SetTitle(title)
}
