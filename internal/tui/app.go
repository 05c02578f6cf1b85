package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/tui/keys"
	"github.com/vibee/vibee/internal/tui/model"
	"github.com/vibee/vibee/internal/tui/ui"
	"github.com/vibee/vibee/internal/tui/views"
	"go.uber.org/zap"
)

const (
	requestTimeout = 30 * time.Second
	watchRetry     = 2 * time.Second
	headerHeight   = 6
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	vm       *model.ViewModel
	registry *keys.Registry
	profile  string
	logger   *zap.Logger

	info   *ui.SessionInfo
	menu   *ui.Menu
	logo   *ui.Logo
	crumbs *ui.Crumbs
	flash  *ui.FlashBar
	prompt *ui.Prompt
	body   *tview.Flex

	auth  *views.AuthView
	rooms *views.RoomList
	room  *views.RoomView
	help  *views.HelpView

	promptActive bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application for the daemon behind c. A nil
// theme uses ui.DefaultTheme.
func NewApp(c *api.Client, profileName string, theme *ui.Theme, logger *zap.Logger) *App {
	return newApp(model.FromClient(c), profileName, theme, logger)
}

func newApp(b model.Backend, profileName string, theme *ui.Theme, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if theme == nil {
		theme = ui.DefaultTheme()
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		vm:       model.NewViewModel(b),
		registry: keys.NewRegistry(),
		profile:  profileName,
		logger:   logger,
		info:     ui.NewSessionInfo(theme),
		menu:     ui.NewMenu(theme),
		logo:     ui.NewLogo(theme),
		crumbs:   ui.NewCrumbs(theme),
		flash:    ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		auth:     views.NewAuthView(theme),
		rooms:    views.NewRoomList(theme),
		room:     views.NewRoomView(theme),
		help:     views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Label: ":", Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand, "") },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "Help", Visible: true,
		Handler: a.showHelp,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Visible: true,
		Handler: a.Stop,
	})

	a.registry.AddView("rooms", &keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Label: "n", Description: "New room", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand, "join ") },
	})
	a.registry.AddView("rooms", &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "Filter",
		Handler: func() { a.showPrompt(ui.PromptFilter, a.rooms.Filter()) },
	})
	a.registry.AddView("rooms", &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Reload", Visible: true,
		Handler: a.reloadRooms,
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView("rooms", &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if r := a.rooms.RoomByIndex(n); r != "" {
					a.joinRoom(r)
				}
			},
		})
	}

	a.registry.AddView("room", &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.room.Composer) },
	})
	a.registry.AddView("room", &keys.Action{
		Key: tcell.KeyRune, Rune: 'o', Label: "o", Description: "Older", Visible: true,
		Handler: a.loadOlder,
	})
	a.registry.AddView("room", &keys.Action{
		Key: tcell.KeyRune, Rune: 'G', Label: "G", Description: "Newest", Visible: true,
		Handler: func() { a.room.Timeline.ScrollToEnd() },
	})
	a.registry.AddView("room", &keys.Action{
		Key: tcell.KeyRune, Rune: 'l', Label: "l", Description: "Leave", Visible: true,
		Handler: a.leaveRoom,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'L', Label: "L", Description: "Logout", Visible: true,
		Handler: a.logout,
	})
}

func (a *App) setupCallbacks() {
	a.auth.SetHandlers(views.AuthHandlers{
		Login: func(username, password string) {
			a.run("login", func(ctx context.Context) error {
				return a.vm.Login(ctx, username, password)
			}, func(err error) {
				if err != nil {
					a.auth.ShowError(model.Describe(err))
					return
				}
				a.auth.ClearSecrets()
				a.auth.ShowMessage("")
			})
		},
		Register: func(username, email, password string) {
			a.authCall("register", func(ctx context.Context) (string, error) {
				return a.vm.Register(ctx, username, email, password)
			})
		},
		Verify: func(email, code string) {
			a.authCall("verify", func(ctx context.Context) (string, error) {
				return a.vm.VerifyOTP(ctx, email, code)
			})
		},
		Resend: func(email string) {
			a.authCall("resend code", func(ctx context.Context) (string, error) {
				return a.vm.ResendOTP(ctx, email)
			})
		},
	})

	a.rooms.SetSelectedFunc(func(row, _ int) {
		if r := a.rooms.RoomByIndex(row); r != "" {
			a.joinRoom(r)
		}
	})

	a.room.Timeline.SetOnReachTop(a.loadOlder)
	a.room.Composer.SetOnSend(a.send)
	a.room.Composer.SetOnDone(func() { a.app.SetFocus(a.room.Timeline) })

	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.rooms.SetFilter(text)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptCommand {
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetCompletions(func(text string) []string {
		rooms, _ := a.vm.Rooms()
		return CompleteCommand(text, rooms)
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.rooms.SetFilter("")
		}
		a.hidePrompt()
	})

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack, a.crumbLabel)
		a.updateMenu()
	})
}

func (a *App) setupLayout() {
	for _, c := range []ui.Component{a.auth, a.rooms, a.room, a.help} {
		a.pages.AddComponent(c)
	}

	header := tview.NewFlex().
		AddItem(a.info, 30, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 16, 0, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerHeight, 0, false).
		AddItem(a.body, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flash, 1, 0, false)

	a.app.SetRoot(root, true).EnableMouse(true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}

		// Let text input widgets handle all keys normally.
		switch a.app.GetFocus().(type) {
		case *tview.InputField, *tview.Button, *ui.Prompt, *views.Composer:
			return event
		}

		if event.Key() == tcell.KeyEscape {
			if a.pages.Pop() != "" {
				a.focusPage()
			}
			return nil
		}

		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go a.start()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) start() {
	ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
	err := a.vm.LoadStatus(ctx)
	if err == nil && a.vm.LoggedIn() {
		err = a.vm.LoadRooms(ctx)
	}
	cancel()
	if err != nil {
		a.logger.Warn("initial load failed", zap.Error(err))
		a.vm.Flash.Err(err)
	}
	a.app.QueueUpdateDraw(a.refresh)

	go a.watchLoop()
	a.refreshLoop()
}

// watchLoop keeps an event subscription open, resyncing after each
// reconnect since events may have been missed.
func (a *App) watchLoop() {
	for {
		err := a.vm.Watch(a.ctx, nil)
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.logger.Warn("event stream ended", zap.Error(err))
			a.vm.Flash.Warn("daemon events: " + model.Describe(err))
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(watchRetry):
		}
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		if err := a.vm.LoadStatus(ctx); err == nil && a.vm.Room() != "" {
			_ = a.vm.ReloadTimeline(ctx)
		}
		cancel()
	}
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.refresh)
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.refreshChrome)
		case <-a.ctx.Done():
			return
		}
	}
}

// run executes fn off the UI goroutine; done, when set, runs back on it.
func (a *App) run(label string, fn func(ctx context.Context) error, done func(err error)) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		err := fn(ctx)
		if err != nil && a.ctx.Err() == nil {
			a.logger.Warn(label+" failed", zap.Error(err))
			a.vm.Flash.Err(fmt.Errorf("%s: %s", label, model.Describe(err)))
		}
		a.app.QueueUpdateDraw(func() {
			if done != nil {
				done(err)
			}
			a.refresh()
		})
	}()
}

func (a *App) authCall(label string, fn func(ctx context.Context) (string, error)) {
	var reply string
	a.run(label, func(ctx context.Context) error {
		var err error
		reply, err = fn(ctx)
		return err
	}, func(err error) {
		if err != nil {
			a.auth.ShowError(model.Describe(err))
			return
		}
		a.auth.ShowMessage(reply)
	})
}

func (a *App) joinRoom(name string) {
	if name == a.vm.Room() {
		a.pages.Push("room")
		a.focusPage()
		return
	}
	a.vm.Flash.Info("Joining #" + name + "...")
	a.refreshChrome()
	a.run("join", func(ctx context.Context) error {
		if err := a.vm.Join(ctx, name); err != nil {
			return err
		}
		return a.vm.LoadRooms(ctx)
	}, func(err error) {
		if err != nil || a.vm.Room() == "" {
			return
		}
		a.logger.Info("joined room", zap.String("room", a.vm.Room()))
		a.pages.Push("room")
		a.focusPage()
		a.room.Timeline.ScrollToEnd()
	})
}

func (a *App) leaveRoom() {
	a.run("leave", a.vm.Leave, func(err error) {
		if err == nil {
			a.pages.Reset("rooms")
			a.focusPage()
		}
	})
}

func (a *App) loadOlder() {
	a.run("load older", func(ctx context.Context) error {
		_, err := a.vm.LoadOlder(ctx)
		return err
	}, nil)
}

func (a *App) send(text string) {
	a.run("send", func(ctx context.Context) error {
		return a.vm.Send(ctx, text)
	}, nil)
}

func (a *App) logout() {
	a.run("logout", a.vm.Logout, nil)
}

func (a *App) reloadRooms() {
	a.run("rooms", a.vm.LoadRooms, nil)
}

func (a *App) showHelp() {
	a.pages.Push("help")
	a.focusPage()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "":
	case "join":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: join <room>")
			break
		}
		a.joinRoom(cmd.Args)
	case "leave":
		a.leaveRoom()
	case "older":
		a.loadOlder()
	case "rooms":
		a.pages.Reset("rooms")
		a.focusPage()
		a.reloadRooms()
	case "logout":
		a.logout()
	case "help":
		a.showHelp()
	case "quit":
		a.Stop()
	default:
		a.vm.Flash.Warn("unknown command: " + cmd.Name)
	}
	a.refreshChrome()
}

func (a *App) showPrompt(mode ui.PromptMode, initial string) {
	if a.pages.Current() == "login" {
		return
	}
	a.prompt.Activate(mode, initial)
	a.promptActive = true
	a.body.Clear().
		AddItem(a.prompt, 3, 0, true).
		AddItem(a.pages, 0, 1, false)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.promptActive = false
	a.body.Clear().AddItem(a.pages, 0, 1, true)
	a.focusPage()
}

func (a *App) focusPage() {
	if a.promptActive {
		return
	}
	switch a.pages.Current() {
	case "login":
		a.auth.FocusForm()
		a.app.SetFocus(a.auth)
	case "room":
		a.app.SetFocus(a.room.Timeline)
	default:
		if top := a.pages.Top(); top != nil {
			a.app.SetFocus(top)
		}
	}
}

func (a *App) crumbLabel(name string) string {
	if name == "room" && a.vm.Room() != "" {
		return "#" + a.vm.Room()
	}
	return name
}

func (a *App) updateMenu() {
	var hints []ui.MenuHint
	if top := a.pages.Top(); top != nil {
		hints = append(hints, top.Hints()...)
	}
	hints = append(hints, a.registry.Hints(a.pages.Current())...)
	a.menu.Update(hints)
}

// syncPage moves to the page the daemon state calls for: the login form
// while logged out, the room list after login, and back to the list when
// the room goes away underneath the room page.
func (a *App) syncPage(st *api.StatusResponse) {
	if st == nil {
		return
	}
	cur := a.pages.Current()
	switch {
	case !st.LoggedIn:
		if cur != "login" {
			a.pages.Reset("login")
			a.focusPage()
		}
	case cur == "" || cur == "login":
		a.pages.Reset("rooms")
		if a.vm.Room() != "" {
			a.pages.Push("room")
		}
		a.focusPage()
		a.reloadRooms()
	case cur == "room" && a.vm.Room() == "":
		a.pages.Reset("rooms")
		a.focusPage()
	}
}

// refresh re-renders everything from the view model. UI goroutine only.
func (a *App) refresh() {
	st := a.vm.Status()
	a.syncPage(st)

	phase := ""
	if st != nil {
		phase = st.Phase
		a.room.Timeline.SetSelf(st.Subject)
	}
	rooms, last := a.vm.Rooms()
	a.rooms.Update(rooms, last, a.vm.Room())

	loading, exhausted := a.vm.History()
	a.room.SetRoom(a.vm.Room(), phase)
	a.room.Timeline.Update(a.vm.Messages(), loading, exhausted)

	a.crumbs.Update(a.pages.Stack(), a.crumbLabel)
	a.refreshChrome()
}

// refreshChrome redraws the header and flash bar only.
func (a *App) refreshChrome() {
	data := &ui.SessionData{Profile: a.profile, Room: a.vm.Room(), Messages: a.room.Timeline.Len()}
	if st := a.vm.Status(); st != nil {
		data.User = st.Subject
		data.Uptime = a.vm.Uptime()
		if st.Room != "" {
			data.Phase = st.Phase
		}
	}
	a.info.Update(data)
	a.flash.Update(a.vm.Flash.Get())
	a.logo.SetOnline(a.vm.Connected())
}
