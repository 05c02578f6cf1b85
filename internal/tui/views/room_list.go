package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/tui/ui"
)

// RoomList is the table of recently joined rooms.
type RoomList struct {
	*tview.Table
	theme    *ui.Theme
	rooms    []string
	visible  []string
	lastRoom string
	active   string
	filter   string
}

// NewRoomList creates a new room list table.
func NewRoomList(theme *ui.Theme) *RoomList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	rl := &RoomList{Table: table, theme: theme}
	rl.render()
	return rl
}

// Name implements Component.
func (rl *RoomList) Name() string { return "rooms" }

// Hints implements Component.
func (rl *RoomList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Join"},
		{Key: "/", Description: "Filter"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the list. lastRoom is marked and preselected so the
// user can rejoin it with Enter; active marks the room currently joined.
func (rl *RoomList) Update(rooms []string, lastRoom, active string) {
	first := rl.rooms == nil
	rl.rooms, rl.lastRoom, rl.active = rooms, lastRoom, active
	rl.render()
	if first {
		rl.selectRoom(lastRoom)
	}
}

// SetFilter narrows the list to rooms containing filter.
func (rl *RoomList) SetFilter(filter string) {
	rl.filter = strings.TrimSpace(filter)
	rl.render()
}

// Filter returns the active filter.
func (rl *RoomList) Filter() string {
	return rl.filter
}

func (rl *RoomList) render() {
	selected := rl.SelectedRoom()
	rl.Clear()
	rl.visible = filterRooms(rl.rooms, rl.filter)

	for col, h := range []string{" ROOM", " "} {
		rl.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(rl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1-col))
	}
	for i, r := range rl.visible {
		var mark string
		switch r {
		case rl.active:
			mark = "joined"
		case rl.lastRoom:
			mark = "last"
		}
		rl.SetCell(i+1, 0, tview.NewTableCell(" #"+SanitizeText(r)).SetExpansion(1).SetTextColor(rl.theme.FgColor))
		rl.SetCell(i+1, 1, tview.NewTableCell(mark+" ").SetAlign(tview.AlignRight).SetTextColor(rl.theme.CounterColor))
	}

	if rl.filter != "" {
		rl.SetTitle(fmt.Sprintf(" Rooms (%d/%d) filter: %s ", len(rl.visible), len(rl.rooms), tview.Escape(rl.filter)))
	} else {
		rl.SetTitle(fmt.Sprintf(" Rooms (%d) ", len(rl.rooms)))
	}
	rl.selectRoom(selected)
}

func (rl *RoomList) selectRoom(room string) {
	for i, r := range rl.visible {
		if r == room {
			rl.Select(i+1, 0)
			return
		}
	}
	if len(rl.visible) > 0 {
		rl.Select(1, 0)
	}
}

// SelectedRoom returns the highlighted room, or "".
func (rl *RoomList) SelectedRoom() string {
	row, _ := rl.GetSelection()
	return rl.RoomByIndex(row)
}

// RoomByIndex returns the Nth visible room (1-based), or "".
func (rl *RoomList) RoomByIndex(n int) string {
	if n < 1 || n > len(rl.visible) {
		return ""
	}
	return rl.visible[n-1]
}

func filterRooms(rooms []string, filter string) []string {
	if filter == "" {
		return rooms
	}
	f := strings.ToLower(filter)
	var out []string
	for _, r := range rooms {
		if strings.Contains(strings.ToLower(r), f) {
			out = append(out, r)
		}
	}
	return out
}
