package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/vibee/vibee/internal/tui/ui"
)

const (
	fieldUsername = "Username"
	fieldPassword = "Password"
	fieldEmail    = "Email"
	fieldCode     = "Code"
)

// AuthHandlers receives the actions of the auth form. Each runs on the
// UI goroutine and must not block.
type AuthHandlers struct {
	Login    func(username, password string)
	Register func(username, email, password string)
	Verify   func(email, code string)
	Resend   func(email string)
}

// AuthView is the login and registration form shown while logged out.
type AuthView struct {
	*tview.Flex
	theme    *ui.Theme
	form     *tview.Form
	message  *tview.TextView
	handlers AuthHandlers
}

// NewAuthView creates the auth form.
func NewAuthView(theme *ui.Theme) *AuthView {
	av := &AuthView{theme: theme}

	form := tview.NewForm().
		AddInputField(fieldUsername, "", 32, nil, nil).
		AddPasswordField(fieldPassword, "", 32, '*', nil).
		AddInputField(fieldEmail, "", 32, nil, nil).
		AddInputField(fieldCode, "", 10, nil, nil).
		AddButton("Login", av.login).
		AddButton("Register", av.register).
		AddButton("Verify", av.verify).
		AddButton("Resend code", av.resend)
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.BorderColor)
	form.SetTitle(" Authentication Required ")
	form.SetTitleColor(theme.TitleColor)

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	message.SetBackgroundColor(theme.BgColor)
	message.SetBorderPadding(0, 0, 1, 1)

	av.form = form
	av.message = message
	av.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(form, 13, 0, true).
		AddItem(message, 0, 1, false)
	return av
}

// Name implements Component.
func (av *AuthView) Name() string { return "login" }

// Hints implements Component.
func (av *AuthView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Press button"},
		{Key: "Ctrl-C", Description: "Quit"},
	}
}

// SetHandlers installs the form actions.
func (av *AuthView) SetHandlers(h AuthHandlers) {
	av.handlers = h
}

// ShowMessage displays an informational line below the form.
func (av *AuthView) ShowMessage(msg string) {
	av.show(msg, av.theme.FlashInfoColor)
}

// ShowError displays an error line below the form.
func (av *AuthView) ShowError(msg string) {
	av.show(msg, av.theme.FlashErrColor)
}

func (av *AuthView) show(msg string, color tcell.Color) {
	av.message.SetText(ui.Tag(color) + tview.Escape(msg) + "[-]")
}

// ClearSecrets empties the password and code fields.
func (av *AuthView) ClearSecrets() {
	av.field(fieldPassword).SetText("")
	av.field(fieldCode).SetText("")
}

// FocusForm focuses the username field.
func (av *AuthView) FocusForm() {
	av.form.SetFocus(0)
}

func (av *AuthView) field(label string) *tview.InputField {
	return av.form.GetFormItemByLabel(label).(*tview.InputField)
}

func (av *AuthView) text(label string) string {
	return strings.TrimSpace(av.field(label).GetText())
}

func (av *AuthView) login() {
	user, pass := av.text(fieldUsername), av.field(fieldPassword).GetText()
	if user == "" || pass == "" {
		av.ShowError("username and password are required")
		return
	}
	if av.handlers.Login != nil {
		av.ShowMessage("Logging in...")
		av.handlers.Login(user, pass)
	}
}

func (av *AuthView) register() {
	user, email, pass := av.text(fieldUsername), av.text(fieldEmail), av.field(fieldPassword).GetText()
	if user == "" || email == "" || pass == "" {
		av.ShowError("username, password and email are required to register")
		return
	}
	if av.handlers.Register != nil {
		av.ShowMessage("Registering...")
		av.handlers.Register(user, email, pass)
	}
}

func (av *AuthView) verify() {
	email, code := av.text(fieldEmail), av.text(fieldCode)
	if email == "" || code == "" {
		av.ShowError("email and code are required to verify")
		return
	}
	if av.handlers.Verify != nil {
		av.handlers.Verify(email, code)
	}
}

func (av *AuthView) resend() {
	email := av.text(fieldEmail)
	if email == "" {
		av.ShowError("email is required to resend the code")
		return
	}
	if av.handlers.Resend != nil {
		av.handlers.Resend(email)
	}
}
