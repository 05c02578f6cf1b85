package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // true for digit shortcuts (displayed in a different color)
}

// Component is a page of the shell. Name doubles as the page key and
// the breadcrumb label.
type Component interface {
	tview.Primitive
	Name() string
	Hints() []MenuHint
}
