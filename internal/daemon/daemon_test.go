package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/config"
	"github.com/vibee/vibee/internal/profile"
	"github.com/vibee/vibee/internal/protocol"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// backend fakes the chat server: login, history and the room websocket.
type backend struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	token    string

	mu      sync.Mutex
	history []protocol.Message // oldest first
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	be := &backend{token: token}
	for i, body := range []string{"first", "second", "third", "fourth"} {
		be.history = append(be.history, protocol.Message{Username: "bob", Body: body, Timestamp: t0.Add(time.Duration(i) * time.Minute)})
	}

	r := chi.NewRouter()
	r.Post("/api/login", func(w http.ResponseWriter, req *http.Request) {
		var in struct{ Username, Password string }
		_ = json.NewDecoder(req.Body).Decode(&in)
		if in.Username != "alice" || in.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"msg": "Invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": be.token})
	})
	r.Group(func(r chi.Router) {
		r.Use(be.requireToken)
		r.Get("/api/rooms/{roomID}/messages", be.serveMessages)
		r.Get("/api/recent-rooms", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"recent_rooms": []string{"lobby"}})
		})
		r.Get("/ws", be.serveWS)
	})
	be.srv = httptest.NewServer(r)
	t.Cleanup(be.srv.Close)
	return be
}

func (be *backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+be.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// page slices newest-first by offset, returning each page oldest first.
func (be *backend) page(limit, offset int) []protocol.Message {
	be.mu.Lock()
	defer be.mu.Unlock()
	end := len(be.history) - offset
	if end <= 0 {
		return nil
	}
	return append([]protocol.Message(nil), be.history[max(end-limit, 0):end]...)
}

func (be *backend) serveMessages(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	msgs := be.page(limit, offset)
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
}

func (be *backend) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := be.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	write := func(event string, payload any) {
		raw, _ := protocol.Encode(event, payload)
		_ = conn.WriteMessage(websocket.TextMessage, raw)
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.Decode(raw)
		if err != nil {
			continue
		}
		switch f.Event {
		case protocol.EventJoinRoom:
			write(protocol.EventAnnouncement, protocol.Announcement{Username: protocol.SystemUser, Message: "alice has joined the room."})
			write(protocol.EventPreviousMessages, protocol.PreviousMessages{Messages: be.page(2, 0)})
		case protocol.EventSendMessage:
			var sr protocol.SendRequest
			_ = f.DecodeData(&sr)
			m := protocol.Message{Username: "alice", Body: sr.Message, Timestamp: time.Now().UTC()}
			be.mu.Lock()
			be.history = append(be.history, m)
			be.mu.Unlock()
			write(protocol.EventReceiveMessage, m)
		case protocol.EventLeaveRoom:
			return
		}
	}
}

func shortHome(t *testing.T) string {
	t.Helper()
	// Use /tmp for short socket paths (macOS 104-char limit).
	dir, err := os.MkdirTemp("/tmp", "vibee-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(profile.HomeEnv, dir)
	return dir
}

func testConfig(be *backend) *config.Config {
	cfg := config.Default()
	cfg.ServerURL = be.srv.URL + "/api"
	cfg.WSURL = "ws" + strings.TrimPrefix(be.srv.URL, "http") + "/ws"
	cfg.PageSize = 2
	cfg.ConnectTimeout = config.Duration{Duration: 2 * time.Second}
	return cfg
}

func code(err error) codes.Code {
	return grpcstatus.Code(err)
}

func TestDaemonEndToEnd(t *testing.T) {
	home := shortHome(t)
	be := newBackend(t)
	socketPath := filepath.Join(home, "d.sock")

	app := fxtest.New(t,
		Module(Params{ProfileName: "test", SocketPath: socketPath, Config: testConfig(be)}),
	)
	app.RequireStart()
	defer app.RequireStop()

	c, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	st, err := c.Session.Status(ctx, &api.StatusRequest{})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Profile != "test" || st.LoggedIn || st.Phase != "DISCONNECTED" {
		t.Errorf("initial status = %+v", st)
	}

	if _, err := c.Room.Join(ctx, &api.JoinRequest{Room: "lobby"}); code(err) != codes.Unauthenticated {
		t.Errorf("Join before login code = %v, want Unauthenticated", code(err))
	}
	if _, err := c.Session.Login(ctx, &api.LoginRequest{Username: "alice", Password: "wrong"}); code(err) != codes.Unauthenticated {
		t.Errorf("bad login code = %v, want Unauthenticated", code(err))
	}
	login, err := c.Session.Login(ctx, &api.LoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Subject != "alice" {
		t.Errorf("subject = %q", login.Subject)
	}

	watcher, err := c.Room.WatchEvents(ctx, &api.WatchRequest{Prefix: bus.KindTimelineChanged})
	if err != nil {
		t.Fatalf("WatchEvents: %v", err)
	}
	if ready, err := watcher.Recv(); err != nil || ready.Kind != api.KindWatchReady {
		t.Fatalf("first envelope = %+v, %v; want %s", ready, err, api.KindWatchReady)
	}

	joined, err := c.Room.Join(ctx, &api.JoinRequest{Room: "lobby"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined.Room != "lobby" {
		t.Errorf("joined room = %q", joined.Room)
	}

	evt, err := watcher.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if evt.Kind != bus.KindTimelineChanged || evt.Profile != "test" || evt.EventID == "" {
		t.Errorf("envelope = %+v", evt)
	}

	older, err := c.Room.LoadOlder(ctx, &api.LoadOlderRequest{})
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if older.Prepended != 2 || older.Offset != 4 || older.Exhausted {
		t.Errorf("LoadOlder = %+v, want 2 prepended at offset 4", older)
	}
	older, err = c.Room.LoadOlder(ctx, &api.LoadOlderRequest{})
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if older.Prepended != 0 || !older.Exhausted {
		t.Errorf("LoadOlder past the start = %+v, want exhausted", older)
	}

	if _, err := c.Room.Send(ctx, &api.SendRequest{Body: "   "}); code(err) != codes.InvalidArgument {
		t.Errorf("blank send code = %v, want InvalidArgument", code(err))
	}
	if _, err := c.Room.Send(ctx, &api.SendRequest{Body: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var bodies []string
	deadline := time.Now().Add(5 * time.Second)
	for {
		tl, err := c.Room.Timeline(ctx, &api.TimelineRequest{})
		if err != nil {
			t.Fatalf("Timeline: %v", err)
		}
		bodies = bodies[:0]
		for _, m := range tl.Messages {
			bodies = append(bodies, m.Body)
		}
		if len(bodies) == 5 || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := strings.Join(bodies, ","); got != "first,second,third,fourth,hello" {
		t.Errorf("timeline = %s", got)
	}

	rooms, err := c.Room.RecentRooms(ctx, &api.RecentRoomsRequest{})
	if err != nil {
		t.Fatalf("RecentRooms: %v", err)
	}
	if len(rooms.Rooms) != 1 || rooms.Rooms[0] != "lobby" || rooms.LastRoom != "lobby" {
		t.Errorf("recent rooms = %+v", rooms)
	}

	st, err = c.Session.Status(ctx, &api.StatusRequest{})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.LoggedIn || st.Room != "lobby" || st.Phase != "JOINED" || len(st.Notices) == 0 {
		t.Errorf("joined status = %+v", st)
	}

	out, err := c.Session.Logout(ctx, &api.LogoutRequest{})
	if err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !out.WasLoggedIn {
		t.Error("WasLoggedIn = false")
	}
	st, err = c.Session.Status(ctx, &api.StatusRequest{})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.LoggedIn || st.Room != "" {
		t.Errorf("status after logout = %+v", st)
	}
	if _, err := c.Room.Send(ctx, &api.SendRequest{Body: "hi"}); code(err) != codes.FailedPrecondition {
		t.Errorf("send after logout code = %v, want FailedPrecondition", code(err))
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	home := shortHome(t)
	be := newBackend(t)

	first := fxtest.New(t,
		Module(Params{ProfileName: "test", SocketPath: filepath.Join(home, "a.sock"), Config: testConfig(be)}),
	)
	first.RequireStart()
	defer first.RequireStop()

	second := fx.New(
		fx.NopLogger,
		Module(Params{ProfileName: "test", SocketPath: filepath.Join(home, "b.sock"), Config: testConfig(be)}),
	)
	if err := second.Err(); err == nil || !strings.Contains(err.Error(), "profile lock held") {
		t.Fatalf("second daemon err = %v, want lock held", err)
	}
}

func TestNewServerCreatesSocket(t *testing.T) {
	home := shortHome(t)
	socketPath := filepath.Join(home, "d.sock")

	p := Params{ProfileName: "fxtest", SocketPath: socketPath}
	srv, err := NewServer(
		p,
		zap.NewNop(),
		api.NewSessionService("fxtest", nil, nil, nil),
		api.NewRoomService("fxtest", nil, nil, nil),
	)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}

	// Verify socket was created inside the temp dir (not ~/.vibee).
	if _, statErr := os.Stat(socketPath); statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}

	srv.Stop(context.Background())
	if _, statErr := os.Stat(socketPath); !os.IsNotExist(statErr) {
		t.Errorf("socket left behind after Stop: %v", statErr)
	}
}

func TestUnaryInterceptorRecoversPanics(t *testing.T) {
	s := &Server{logger: zap.NewNop()}
	info := &grpc.UnaryServerInfo{FullMethod: "/vibee.v1.RoomService/Send"}

	_, err := s.unaryInterceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if grpcstatus.Code(err) != codes.Internal {
		t.Fatalf("err = %v, want Internal", err)
	}

	resp, err := s.unaryInterceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Errorf("resp=%v err=%v", resp, err)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	shortHome(t)
	cfg, err := provideConfig(Params{ProfileName: "test"})
	if err != nil {
		t.Fatalf("provideConfig: %v", err)
	}
	if cfg.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.PageSize)
	}
}
