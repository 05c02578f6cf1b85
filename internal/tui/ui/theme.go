package ui

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gdamore/tcell/v2"
)

// Theme holds the TUI colors. Chrome colors style the header, menus and
// bars; timeline colors style rendered messages.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	PromptBorderColor tcell.Color

	TableHeaderFg tcell.Color
	TableCursorFg tcell.Color
	TableCursorBg tcell.Color

	CrumbActiveFg   tcell.Color
	CrumbActiveBg   tcell.Color
	CrumbInactiveFg tcell.Color
	CrumbInactiveBg tcell.Color

	FlashInfoColor tcell.Color
	FlashWarnColor tcell.Color
	FlashErrColor  tcell.Color

	// AuthorPalette colors other users; each name maps to a stable entry.
	AuthorPalette  []tcell.Color
	OwnAuthorColor tcell.Color
	TimeColor      tcell.Color
	MarkerColor    tcell.Color
}

// DefaultTheme returns the dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		NumericKeyColor:   tcell.ColorFuchsia,
		PromptBorderColor: tcell.ColorDodgerBlue,

		TableHeaderFg: tcell.ColorWhite,
		TableCursorFg: tcell.ColorBlack,
		TableCursorBg: tcell.ColorAqua,

		CrumbActiveFg:   tcell.ColorBlack,
		CrumbActiveBg:   tcell.ColorOrange,
		CrumbInactiveFg: tcell.ColorBlack,
		CrumbInactiveBg: tcell.ColorAqua,

		FlashInfoColor: tcell.ColorNavajoWhite,
		FlashWarnColor: tcell.ColorOrange,
		FlashErrColor:  tcell.ColorOrangeRed,

		AuthorPalette: []tcell.Color{
			tcell.ColorAqua, tcell.ColorGold, tcell.ColorViolet,
			tcell.ColorLightSalmon, tcell.ColorSkyblue, tcell.ColorPaleGreen,
		},
		OwnAuthorColor: tcell.ColorLightGreen,
		TimeColor:      tcell.ColorSlateGray,
		MarkerColor:    tcell.ColorGray,
	}
}

// Author returns the color for name. The local user gets OwnAuthorColor.
func (t *Theme) Author(name, self string) tcell.Color {
	if self != "" && name == self {
		return t.OwnAuthorColor
	}
	if len(t.AuthorPalette) == 0 {
		return t.FgColor
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return t.AuthorPalette[h.Sum32()%uint32(len(t.AuthorPalette))]
}

// themeFile is the on-disk override format:
//
//	authors = ["aqua", "violet"]
//
//	[colors]
//	title = "gold"
//	own_author = "#80ff80"
type themeFile struct {
	Colors  map[string]string `toml:"colors"`
	Authors []string          `toml:"authors"`
}

// LoadTheme returns DefaultTheme with overrides from the TOML file at path.
// A missing file yields the defaults.
func LoadTheme(path string) (*Theme, error) {
	t := DefaultTheme()
	var f themeFile
	_, err := toml.DecodeFile(path, &f)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("theme: %w", err)
	}
	if err := t.apply(f); err != nil {
		return nil, fmt.Errorf("theme %s: %w", path, err)
	}
	return t, nil
}

func (t *Theme) slots() map[string]*tcell.Color {
	return map[string]*tcell.Color{
		"background":      &t.BgColor,
		"foreground":      &t.FgColor,
		"border":          &t.BorderColor,
		"title":           &t.TitleColor,
		"counter":         &t.CounterColor,
		"menu_key":        &t.MenuKeyColor,
		"numeric_key":     &t.NumericKeyColor,
		"prompt_border":   &t.PromptBorderColor,
		"table_header":    &t.TableHeaderFg,
		"cursor_fg":       &t.TableCursorFg,
		"cursor_bg":       &t.TableCursorBg,
		"crumb_fg":        &t.CrumbInactiveFg,
		"crumb_bg":        &t.CrumbInactiveBg,
		"crumb_active_fg": &t.CrumbActiveFg,
		"crumb_active_bg": &t.CrumbActiveBg,
		"flash_info":      &t.FlashInfoColor,
		"flash_warn":      &t.FlashWarnColor,
		"flash_error":     &t.FlashErrColor,
		"own_author":      &t.OwnAuthorColor,
		"time":            &t.TimeColor,
		"marker":          &t.MarkerColor,
	}
}

func (t *Theme) apply(f themeFile) error {
	slots := t.slots()
	keys := make([]string, 0, len(f.Colors))
	for k := range f.Colors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		slot, ok := slots[k]
		if !ok {
			return fmt.Errorf("unknown color %q", k)
		}
		c, err := parseColor(f.Colors[k])
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*slot = c
	}
	if len(f.Authors) > 0 {
		palette := make([]tcell.Color, 0, len(f.Authors))
		for _, name := range f.Authors {
			c, err := parseColor(name)
			if err != nil {
				return fmt.Errorf("authors: %w", err)
			}
			palette = append(palette, c)
		}
		t.AuthorPalette = palette
	}
	return nil
}

func parseColor(s string) (tcell.Color, error) {
	c := tcell.GetColor(strings.ToLower(strings.TrimSpace(s)))
	if c == tcell.ColorDefault {
		return c, fmt.Errorf("bad color %q", s)
	}
	return c, nil
}

// Tag returns a tview color tag for c, e.g. "[aqua]".
func Tag(c tcell.Color) string {
	return "[" + colorName(c) + "]"
}
