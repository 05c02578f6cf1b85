package ui

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/tui/model"
)

type page struct {
	*tview.Box
	name string
}

func (p *page) Name() string      { return p.name }
func (p *page) Hints() []MenuHint { return nil }

func newPages(names ...string) *Pages {
	p := NewPages()
	for _, n := range names {
		p.AddComponent(&page{Box: tview.NewBox(), name: n})
	}
	return p
}

func TestPagesStack(t *testing.T) {
	p := newPages("login", "rooms", "room", "help")
	var changes [][]string
	p.SetOnChange(func(s []string) { changes = append(changes, s) })

	p.Reset("rooms")
	p.Push("room")
	p.Push("help")
	if got := p.Stack(); !slices.Equal(got, []string{"rooms", "room", "help"}) {
		t.Fatalf("stack = %v", got)
	}
	if p.Top().Name() != "help" {
		t.Errorf("top = %s", p.Top().Name())
	}

	p.Push("rooms")
	if got := p.Stack(); !slices.Equal(got, []string{"rooms"}) {
		t.Errorf("push of stacked page: stack = %v", got)
	}
	if p.Pop() != "" {
		t.Error("popped the last page")
	}
	if p.Depth() != 1 {
		t.Errorf("depth = %d", p.Depth())
	}
	if len(changes) != 4 {
		t.Errorf("got %d change notifications, want 4", len(changes))
	}
	if name, _ := p.GetFrontPage(); name != "rooms" {
		t.Errorf("front page = %s", name)
	}
}

func TestLayoutHints(t *testing.T) {
	var hints []MenuHint
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		hints = append(hints, MenuHint{Key: k, Description: "do " + k})
	}
	out := layoutHints(hints, "blue", "pink")
	lines := strings.Split(out, "\n")
	if len(lines) != menuRows {
		t.Fatalf("got %d lines, want %d", len(lines), menuRows)
	}
	if !strings.Contains(lines[0], "<a>") || !strings.Contains(lines[0], "<f>") {
		t.Errorf("first line = %q", lines[0])
	}
	if strings.Contains(lines[2], "<h>") || !strings.Contains(lines[2], "<c>") {
		t.Errorf("third line = %q", lines[2])
	}
	if layoutHints(nil, "blue", "pink") != "" {
		t.Error("empty hints rendered text")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		90 * time.Second:            "1m",
		2*time.Hour + 5*time.Minute: "2h5m",
		0:                           "0m",
	}
	for d, want := range cases {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestPromptHistoryAndCompletion(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.remember("join golang")
	p.remember("join golang")
	p.remember("older")
	if got := p.History(); !slices.Equal(got, []string{"join golang", "older"}) {
		t.Fatalf("history = %q", got)
	}

	p.Activate(PromptCommand, "")
	up := tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone)
	down := tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone)
	p.capture(up)
	if p.GetText() != "older" {
		t.Errorf("after Up text = %q, want older", p.GetText())
	}
	p.capture(up)
	p.capture(up)
	if p.GetText() != "join golang" {
		t.Errorf("Up past start text = %q", p.GetText())
	}
	p.capture(down)
	p.capture(down)
	if p.GetText() != "" {
		t.Errorf("Down to end text = %q, want empty", p.GetText())
	}

	p.SetCompletions(func(string) []string { return []string{"join a", "join b"} })
	tab := tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone)
	p.capture(tab)
	p.capture(tab)
	if p.GetText() != "join b" {
		t.Errorf("second Tab text = %q, want join b", p.GetText())
	}
	p.capture(tab)
	if p.GetText() != "join a" {
		t.Errorf("third Tab wraps to %q, want join a", p.GetText())
	}

	p.Activate(PromptFilter, "go")
	if ev := p.capture(up); ev == nil {
		t.Error("filter mode should pass Up through")
	}
}

func TestAuthorColorIsStable(t *testing.T) {
	th := DefaultTheme()
	if th.Author("alice", "alice") != th.OwnAuthorColor {
		t.Error("own messages should use OwnAuthorColor")
	}
	first := th.Author("bob", "alice")
	for range 3 {
		if th.Author("bob", "alice") != first {
			t.Fatal("author color changed between calls")
		}
	}
	if !slices.Contains(th.AuthorPalette, first) {
		t.Errorf("color %v not in palette", first)
	}
}

func TestLoadTheme(t *testing.T) {
	dir := t.TempDir()

	th, err := LoadTheme(filepath.Join(dir, "missing.toml"))
	if err != nil || th.TitleColor != DefaultTheme().TitleColor {
		t.Fatalf("missing file: theme=%v err=%v", th, err)
	}

	path := filepath.Join(dir, "theme.toml")
	body := "authors = [\"gold\"]\n\n[colors]\ntitle = \"red\"\nown_author = \"#00ff00\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	th, err = LoadTheme(path)
	if err != nil {
		t.Fatal(err)
	}
	if th.TitleColor != tcell.ColorRed {
		t.Errorf("title = %v, want red", th.TitleColor)
	}
	if th.OwnAuthorColor != tcell.NewHexColor(0x00ff00) {
		t.Errorf("own_author = %v", th.OwnAuthorColor)
	}
	if th.Author("anyone", "") != tcell.ColorGold {
		t.Errorf("single-entry palette not applied")
	}

	for _, bad := range []string{"[colors]\nnope = \"red\"\n", "[colors]\ntitle = \"notacolor\"\n"} {
		if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTheme(path); err == nil {
			t.Errorf("LoadTheme(%q) should fail", bad)
		}
	}
}

func TestCrumbsTruncateLongRooms(t *testing.T) {
	c := NewCrumbs(DefaultTheme())
	long := strings.Repeat("r", 40)
	c.Update([]string{"rooms", "room"}, func(name string) string {
		if name == "room" {
			return "#" + long
		}
		return name
	})
	got := c.GetText(true)
	if !strings.Contains(got, "rooms") || strings.Contains(got, long) {
		t.Errorf("crumbs = %q", got)
	}
	if want := "#" + strings.Repeat("r", maxCrumb-2) + "~"; !strings.Contains(got, want) {
		t.Errorf("crumbs = %q, want %q", got, want)
	}
}

func TestFlashBarLevels(t *testing.T) {
	fb := NewFlashBar(DefaultTheme())
	fb.Update(&model.FlashMessage{Text: "lost connection", Level: model.FlashWarn})
	if got := fb.GetText(true); !strings.Contains(got, "!") || !strings.Contains(got, "lost connection") {
		t.Errorf("flash = %q", got)
	}
	fb.Update(nil)
	if got := fb.GetText(true); got != "" {
		t.Errorf("cleared flash = %q", got)
	}
}

func TestLogoCaptionFollowsConnection(t *testing.T) {
	l := NewLogo(DefaultTheme())
	if got := l.GetText(true); !strings.Contains(got, "offline") {
		t.Errorf("initial logo = %q", got)
	}
	l.SetOnline(true)
	got := l.GetText(true)
	if !strings.Contains(got, "room chat") || !strings.Contains(got, "vibee") {
		t.Errorf("online logo = %q", got)
	}
}
