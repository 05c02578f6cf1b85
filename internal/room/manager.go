// Package room owns the active room: its live channel, history cursor and
// timeline, and the explicit leave-then-join transition between rooms.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/vibee/vibee/internal/auth"
	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/channel"
	"github.com/vibee/vibee/internal/history"
	"github.com/vibee/vibee/internal/status"
	"github.com/vibee/vibee/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNoRoom is returned when an operation needs a joined room and there is none.
	ErrNoRoom = errors.New("room: no active room")

	// ErrInvalidRoom is returned for a malformed room identifier.
	ErrInvalidRoom = errors.New("room: invalid room id")

	// ErrLoggedOut is returned when joining without a valid credential.
	ErrLoggedOut = errors.New("room: not logged in")
)

const maxRoomIDLen = 128

// ValidateRoomID trims id and checks it can name a room.
func ValidateRoomID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoom)
	}
	if utf8.RuneCountInString(id) > maxRoomIDLen {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidRoom, maxRoomIDLen)
	}
	for _, r := range id {
		if unicode.IsControl(r) || r == '/' {
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidRoom, id, r)
		}
	}
	return id, nil
}

// Config holds the per-join settings.
type Config struct {
	WSURL          string
	PageSize       int
	ConnectTimeout time.Duration
	Backoff        channel.Backoff
	Dialer         *websocket.Dialer
}

// RoomHistory is the history collaborator. *history.Client implements it.
type RoomHistory interface {
	history.Source
	RecentRooms(ctx context.Context, token string) ([]string, error)
}

// Manager holds at most one active Session.
type Manager struct {
	cfg     Config
	guard   *auth.Guard
	history RoomHistory
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger

	mu     sync.Mutex
	active *Session
	epoch  uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager with no active room.
func NewManager(cfg Config, guard *auth.Guard, h RoomHistory, db *store.DB, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		guard:   guard,
		history: h,
		db:      db,
		bus:     b,
		logger:  logger,
	}
}

// Start watches for logout and tears the active room down when it happens.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	ch, unsub := m.bus.Subscribe(bus.KindLoggedOut, 16)

	go func() {
		defer close(m.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				out, _ := evt.Payload.(auth.LoggedOut)
				reason := "logged out"
				if out.Reason != "" {
					reason = out.Reason
				}
				if m.leave(reason) {
					m.logger.Info("room closed after logout", zap.String("reason", reason))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the logout watcher and leaves the active room.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.leave("shutdown")
}

// Join leaves the current room, if any, and joins roomID. Joining the room
// that is already active returns it unchanged.
func (m *Manager) Join(ctx context.Context, roomID string) (*Session, error) {
	roomID, err := ValidateRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if m.guard.Current() == nil {
		return nil, ErrLoggedOut
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.active; s != nil && s.Room() == roomID && s.live.Phase() != status.Disconnected {
		return s, nil
	}
	m.leaveLocked("switching rooms")

	m.epoch++
	live := channel.New(channel.Options{
		URL:            m.cfg.WSURL,
		Room:           roomID,
		Credentials:    m.guard,
		ConnectTimeout: m.cfg.ConnectTimeout,
		Backoff:        m.cfg.Backoff,
		Dialer:         m.cfg.Dialer,
		Bus:            m.bus,
		Logger:         m.logger,
	})
	pager := history.NewFetcher(roomID, m.cfg.PageSize, m.history, m.guard, m.logger)
	s := NewSession(roomID, m.epoch, live, pager, m.guard, m.bus, m.logger)

	if err := s.Open(ctx); err != nil {
		s.Close()
		m.logger.Warn("join failed", zap.String("room", roomID), zap.Error(err))
		return nil, err
	}
	m.active = s

	if err := m.db.TouchRecentRoom(roomID, time.Now()); err != nil {
		m.logger.Error("record recent room", zap.Error(err))
	}
	if err := m.db.UpdateCheckpoint(store.KeyLastRoom, roomID); err != nil {
		m.logger.Error("record last room", zap.Error(err))
	}
	m.logger.Info("joined room", zap.String("room", roomID), zap.Uint64("epoch", m.epoch))
	m.bus.Emit(bus.KindRoomJoined, Joined{Room: roomID, Epoch: m.epoch})
	return s, nil
}

// Leave closes the active room. It reports whether there was one.
func (m *Manager) Leave() bool {
	return m.leave("left")
}

func (m *Manager) leave(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(reason)
}

func (m *Manager) leaveLocked(reason string) bool {
	s := m.active
	if s == nil {
		return false
	}
	m.active = nil
	s.Close()
	m.bus.Emit(bus.KindRoomLeft, Left{Room: s.Room(), Reason: reason})
	return true
}

// Active returns the active session, or ErrNoRoom.
func (m *Manager) Active() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoRoom
	}
	return m.active, nil
}

// Send posts body to the active room.
func (m *Manager) Send(body string) error {
	s, err := m.Active()
	if err != nil {
		return err
	}
	return s.Send(body)
}

// LoadOlder backfills the active room by one page.
func (m *Manager) LoadOlder(ctx context.Context) (LoadResult, error) {
	s, err := m.Active()
	if err != nil {
		return LoadResult{}, err
	}
	return s.LoadOlder(ctx)
}

// RecentRooms merges the rooms joined from this machine, most recent
// first, with the server's list for the subject.
func (m *Manager) RecentRooms(ctx context.Context) ([]string, error) {
	local, err := m.db.ListRecentRooms(50)
	if err != nil {
		return nil, fmt.Errorf("list recent rooms: %w", err)
	}
	seen := make(map[string]bool, len(local))
	rooms := make([]string, 0, len(local))
	for _, r := range local {
		seen[r.RoomID] = true
		rooms = append(rooms, r.RoomID)
	}

	cred := m.guard.Current()
	if cred == nil {
		return rooms, nil
	}
	remote, err := m.history.RecentRooms(ctx, cred.Token)
	switch {
	case errors.Is(err, history.ErrUnauthorized):
		m.guard.Invalidate(err)
		return nil, err
	case err != nil:
		m.logger.Warn("server recent rooms unavailable", zap.Error(err))
		return rooms, nil
	}
	for _, r := range remote {
		if !seen[r] {
			seen[r] = true
			rooms = append(rooms, r)
		}
	}
	return rooms, nil
}

// LastRoom returns the room joined most recently, or "".
func (m *Manager) LastRoom() string {
	v, err := m.db.GetCheckpoint(store.KeyLastRoom)
	if err != nil {
		m.logger.Error("read last room", zap.Error(err))
		return ""
	}
	return v
}
