package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/protocol"
	"github.com/vibee/vibee/internal/room"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNoRoom is returned by room operations when nothing is joined.
var ErrNoRoom = errors.New("no room joined")

// ViewModel caches daemon state for the views and signals refreshes.
// Backend calls block; the app runs them off the UI goroutine.
type ViewModel struct {
	mu sync.RWMutex

	backend   Backend
	status    *api.StatusResponse
	statusAt  time.Time
	rooms     []string
	lastRoom  string
	room      string
	messages  []protocol.Message
	exhausted bool
	loading   bool
	connected bool

	Flash *Flash

	refreshCh chan struct{}
}

// NewViewModel creates a view model over the daemon backend.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{
		backend:   b,
		Flash:     NewFlash(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches daemon status. A room the daemon still holds is
// adopted so a restarted TUI resumes where it left off.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	adopted := false
	vm.mu.Lock()
	vm.status = resp
	vm.statusAt = time.Now()
	switch {
	case !resp.LoggedIn || resp.Room == "":
		vm.clearRoomLocked()
	case resp.Room != vm.room:
		vm.room = resp.Room
		vm.messages = nil
		adopted = true
	}
	if resp.Room != "" {
		vm.exhausted = resp.Exhausted
	}
	vm.mu.Unlock()
	if adopted {
		return vm.ReloadTimeline(ctx)
	}
	vm.signalRefresh()
	return nil
}

// Login authenticates with username and password.
func (vm *ViewModel) Login(ctx context.Context, username, password string) error {
	resp, err := vm.backend.Login(ctx, &api.LoginRequest{Username: strings.TrimSpace(username), Password: password})
	if err != nil {
		return err
	}
	vm.Flash.Info("Logged in as " + resp.Subject)
	return vm.LoadStatus(ctx)
}

// Register creates an account and returns the collaborator's reply.
func (vm *ViewModel) Register(ctx context.Context, username, email, password string) (string, error) {
	resp, err := vm.backend.Register(ctx, &api.RegisterRequest{Username: username, Email: email, Password: password})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// VerifyOTP confirms a registration code.
func (vm *ViewModel) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	resp, err := vm.backend.VerifyOTP(ctx, &api.VerifyOTPRequest{Email: email, OTP: code})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ResendOTP requests a new registration code.
func (vm *ViewModel) ResendOTP(ctx context.Context, email string) (string, error) {
	resp, err := vm.backend.ResendOTP(ctx, &api.ResendOTPRequest{Email: email})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Logout drops the credential and the room.
func (vm *ViewModel) Logout(ctx context.Context) error {
	if _, err := vm.backend.Logout(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.clearRoomLocked()
	vm.mu.Unlock()
	vm.Flash.Info("Logged out")
	return vm.LoadStatus(ctx)
}

// LoadRooms fetches recent rooms.
func (vm *ViewModel) LoadRooms(ctx context.Context) error {
	resp, err := vm.backend.RecentRooms(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.rooms = resp.Rooms
	vm.lastRoom = resp.LastRoom
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Join enters roomID, replacing any current room.
func (vm *ViewModel) Join(ctx context.Context, roomID string) error {
	resp, err := vm.backend.Join(ctx, roomID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.room = resp.Room
	vm.messages = resp.Messages
	vm.exhausted = false
	vm.loading = false
	vm.lastRoom = resp.Room
	vm.mu.Unlock()
	return vm.LoadStatus(ctx)
}

// Leave exits the current room.
func (vm *ViewModel) Leave(ctx context.Context) error {
	if _, err := vm.backend.Leave(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.clearRoomLocked()
	vm.mu.Unlock()
	return vm.LoadStatus(ctx)
}

// Send posts body to the current room. The message shows up through
// the timeline_changed event once the server echoes it.
func (vm *ViewModel) Send(ctx context.Context, body string) error {
	if vm.Room() == "" {
		return ErrNoRoom
	}
	return vm.backend.Send(ctx, body)
}

// LoadOlder backfills one page. It is a no-op while a fetch is pending
// or once history is exhausted, and reports whether a fetch was made.
func (vm *ViewModel) LoadOlder(ctx context.Context) (bool, error) {
	vm.mu.Lock()
	if vm.room == "" || vm.loading || vm.exhausted {
		vm.mu.Unlock()
		return false, nil
	}
	vm.loading = true
	vm.mu.Unlock()
	vm.signalRefresh()

	resp, err := vm.backend.LoadOlder(ctx)

	vm.mu.Lock()
	vm.loading = false
	if err == nil {
		vm.exhausted = resp.Exhausted
	}
	vm.mu.Unlock()

	if status.Code(err) == codes.Aborted {
		vm.signalRefresh()
		return false, nil
	}
	if err != nil {
		vm.signalRefresh()
		return true, err
	}
	return true, vm.ReloadTimeline(ctx)
}

// ReloadTimeline replaces the cached messages with the daemon's timeline.
func (vm *ViewModel) ReloadTimeline(ctx context.Context) error {
	resp, err := vm.backend.Timeline(ctx)
	if status.Code(err) == codes.FailedPrecondition {
		vm.mu.Lock()
		vm.clearRoomLocked()
		vm.mu.Unlock()
		vm.signalRefresh()
		return nil
	}
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if resp.Room == vm.room {
		vm.messages = resp.Messages
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Watch consumes daemon events until the stream ends or ctx is done.
// ready, when non-nil, is closed once the subscription is in place.
func (vm *ViewModel) Watch(ctx context.Context, ready chan<- struct{}) error {
	stream, err := vm.backend.Watch(ctx, "")
	if err != nil {
		return err
	}
	defer vm.setConnected(false)
	for {
		env, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if env.Kind == api.KindWatchReady {
			vm.setConnected(true)
			if ready != nil {
				close(ready)
				ready = nil
			}
			continue
		}
		vm.HandleEvent(ctx, env)
	}
}

func (vm *ViewModel) setConnected(v bool) {
	vm.mu.Lock()
	changed := vm.connected != v
	vm.connected = v
	vm.mu.Unlock()
	if changed {
		vm.signalRefresh()
	}
}

// Connected reports whether the daemon event stream is live.
func (vm *ViewModel) Connected() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.connected
}

// HandleEvent applies one daemon event to the cached state.
func (vm *ViewModel) HandleEvent(ctx context.Context, env *api.EventEnvelope) {
	switch env.Kind {
	case bus.KindTimelineChanged:
		var p room.TimelineChanged
		if decode(env, &p) && p.Room == vm.Room() {
			_ = vm.ReloadTimeline(ctx)
		}
	case bus.KindNotice:
		var p room.Notice
		if decode(env, &p) {
			vm.Flash.Info(p.Text)
		}
	case bus.KindFetchFailed:
		var p room.FetchFailed
		if decode(env, &p) {
			vm.Flash.Warn("history: " + p.Err)
		}
	case bus.KindChannelFailure:
		var p struct{ Err string }
		if decode(env, &p) {
			vm.Flash.Warn(p.Err)
		}
		_ = vm.LoadStatus(ctx)
	case bus.KindRoomLeft:
		var p room.Left
		if decode(env, &p) && p.Room == vm.Room() && p.Reason != "left" && p.Reason != "switching rooms" {
			vm.Flash.Warn(fmt.Sprintf("Left %s: %s", p.Room, p.Reason))
		}
		_ = vm.LoadStatus(ctx)
	case bus.KindLoggedOut:
		var p struct{ Reason string }
		if decode(env, &p) && p.Reason != "" {
			vm.Flash.Warn("Logged out: " + p.Reason)
		}
		_ = vm.LoadStatus(ctx)
	case bus.KindLoggedIn, bus.KindRoomJoined, bus.KindPhaseChanged:
		_ = vm.LoadStatus(ctx)
	}
}

func decode(env *api.EventEnvelope, v any) bool {
	if len(env.Payload) == 0 {
		return false
	}
	return json.Unmarshal(env.Payload, v) == nil
}

func (vm *ViewModel) clearRoomLocked() {
	vm.room = ""
	vm.messages = nil
	vm.exhausted = false
	vm.loading = false
}

// Status returns the last fetched status, or nil before the first load.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Uptime extrapolates the daemon uptime from the last status.
func (vm *ViewModel) Uptime() time.Duration {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.status == nil {
		return 0
	}
	return time.Duration(vm.status.UptimeMs)*time.Millisecond + time.Since(vm.statusAt)
}

// LoggedIn reports whether the daemon holds a credential.
func (vm *ViewModel) LoggedIn() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status != nil && vm.status.LoggedIn
}

// Rooms returns recent rooms and the last joined one.
func (vm *ViewModel) Rooms() ([]string, string) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.rooms, vm.lastRoom
}

// Room returns the joined room, or "".
func (vm *ViewModel) Room() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.room
}

// Messages returns a snapshot of the timeline, oldest first.
func (vm *ViewModel) Messages() []protocol.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// History reports whether a backfill is pending and whether the start
// of the room has been reached.
func (vm *ViewModel) History() (loading, exhausted bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.loading, vm.exhausted
}

// Describe turns an RPC error into a line fit for the flash bar.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable:
			return "daemon unavailable: " + s.Message()
		case codes.Unauthenticated:
			return "not logged in: " + s.Message()
		}
		return s.Message()
	}
	return err.Error()
}
