// Package channel manages the live websocket connection for one room:
// authenticate, join, receive, send, and reconnect after a drop.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vibee/vibee/internal/auth"
	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/metrics"
	"github.com/vibee/vibee/internal/protocol"
	"github.com/vibee/vibee/internal/status"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 1 << 20
	eventsBuf  = 256
)

// Credentials yields the current valid credential, or nil. *auth.Guard implements it.
type Credentials interface {
	Current() *auth.Credential
}

// Options configures a Channel.
type Options struct {
	URL            string // websocket endpoint, e.g. ws://localhost:5000/ws
	Room           string
	Credentials    Credentials
	ConnectTimeout time.Duration
	Backoff        Backoff
	Dialer         *websocket.Dialer
	Bus            *bus.Bus
	Logger         *zap.Logger
}

// Channel is the live connection for exactly one room. It is created per
// join and discarded on leave; it is never reused for another room.
type Channel struct {
	opts   Options
	phase  *status.Machine
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	evMu     sync.Mutex
	evClosed bool
	events   chan Event

	started   bool
	closeOnce sync.Once
}

// New creates a Disconnected channel for opts.Room.
func New(opts Options) *Channel {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		opts:   opts,
		phase:  status.NewMachine(opts.Bus, opts.Room),
		logger: opts.Logger.With(zap.String("room", opts.Room)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		events: make(chan Event, eventsBuf),
	}
}

// Room returns the room this channel is bound to.
func (c *Channel) Room() string { return c.opts.Room }

// Phase returns the current lifecycle phase.
func (c *Channel) Phase() status.Phase { return c.phase.Current() }

// Events delivers snapshots, messages, announcements, phase changes and
// failures. It is closed when the channel stops.
func (c *Channel) Events() <-chan Event { return c.events }

// Open connects, presents the credential and joins the room. It returns
// once the join snapshot has been received, or with ErrAuthRejected,
// ErrConnectTimeout or a dial error; on error the channel is Disconnected.
func (c *Channel) Open(ctx context.Context) error {
	if err := c.setPhase(status.Connecting); err != nil {
		return err
	}

	start := time.Now()
	conn, err := c.handshake(ctx)
	if err != nil {
		_ = c.setPhase(status.Disconnected)
		return err
	}
	metrics.Since(metrics.ConnectDuration, start)

	c.connMu.Lock()
	if c.ctx.Err() != nil {
		c.connMu.Unlock()
		_ = conn.ws.Close()
		return context.Canceled
	}
	c.conn = conn.ws
	c.started = true
	c.connMu.Unlock()

	_ = c.setPhase(status.Joined)
	c.deliver(conn)

	go c.run(conn.ws)
	return nil
}

// Send writes a message to the room. Blank input is rejected locally.
func (c *Channel) Send(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyComposerInput
	}
	if c.phase.Current() != status.Joined {
		return ErrNotJoined
	}
	frame, err := protocol.Encode(protocol.EventSendMessage, protocol.SendRequest{RoomID: c.opts.Room, Message: body})
	if err != nil {
		return err
	}
	if err := c.write(frame); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	metrics.Inc(metrics.MessagesSent)
	return nil
}

// Close leaves the room, closes the connection and waits for the reader
// to stop. Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		joined := c.phase.Current() == status.Joined
		c.cancel()

		c.connMu.Lock()
		conn, started := c.conn, c.started
		c.connMu.Unlock()

		if conn != nil {
			if joined {
				if frame, err := protocol.Encode(protocol.EventLeaveRoom, protocol.RoomRequest{RoomID: c.opts.Room}); err == nil {
					_ = c.write(frame)
				}
			}
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
		if started {
			<-c.done
		}
		c.closeEvents()
		if c.phase.Current() != status.Disconnected {
			_ = c.phase.Transition(status.Disconnected)
		}
		metrics.SetJoined(false)
		c.logger.Info("channel closed")
	})
}

// joined is the result of a successful handshake.
type joined struct {
	ws       *websocket.Conn
	id       string
	snapshot []protocol.Message
	early    []Event // frames that arrived before the snapshot
}

// handshake dials, joins and waits for the snapshot, all bounded by the
// connect timeout.
func (c *Channel) handshake(ctx context.Context) (*joined, error) {
	cred := c.opts.Credentials.Current()
	if cred == nil {
		return nil, fmt.Errorf("%w: no valid credential", ErrAuthRejected)
	}

	hctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	stopParent := context.AfterFunc(c.ctx, cancel)
	defer stopParent()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Token)

	ws, resp, err := c.opts.Dialer.DialContext(hctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, c.handshakeErr(ctx, hctx, fmt.Errorf("dial %s: %w", c.opts.URL, err))
	}

	// Unblock the reads below if the deadline passes or the channel closes.
	stopClose := context.AfterFunc(hctx, func() { _ = ws.Close() })

	j, err := c.join(ws)
	if !stopClose() {
		_ = ws.Close()
		return nil, c.handshakeErr(ctx, hctx, err)
	}
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return j, nil
}

func (c *Channel) handshakeErr(ctx, hctx context.Context, err error) error {
	switch {
	case c.ctx.Err() != nil:
		return context.Canceled
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(hctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrConnectTimeout, c.opts.ConnectTimeout)
	}
	return err
}

func (c *Channel) join(ws *websocket.Conn) (*joined, error) {
	j := &joined{ws: ws, id: uuid.NewString()}

	frame, err := protocol.Encode(protocol.EventJoinRoom, protocol.RoomRequest{RoomID: c.opts.Room})
	if err != nil {
		return nil, err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return nil, fmt.Errorf("write join_room: %w", err)
	}
	_ = ws.SetWriteDeadline(time.Time{})

	ws.SetReadLimit(readLimit)
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("await join: %w", err)
		}
		f, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		switch f.Event {
		case protocol.EventPreviousMessages:
			var pm protocol.PreviousMessages
			if err := f.DecodeData(&pm); err != nil {
				return nil, err
			}
			j.snapshot = pm.Messages
			return j, nil
		case protocol.EventError:
			var ep protocol.ErrorPayload
			_ = f.DecodeData(&ep)
			return nil, fmt.Errorf("%w: %s", ErrAuthRejected, ep.Text())
		default:
			if ev, ok := c.translate(f); ok {
				j.early = append(j.early, ev)
			}
		}
	}
}

// deliver emits the snapshot of a fresh join, then anything that raced it.
func (c *Channel) deliver(j *joined) {
	metrics.SetJoined(true)
	c.logger.Info("room joined", zap.String("conn_id", j.id), zap.Int("snapshot", len(j.snapshot)))
	c.emit(Event{Kind: EventSnapshot, Messages: j.snapshot})
	for _, ev := range j.early {
		c.emit(ev)
	}
}

// run reads until the connection drops, then reconnects. It exits when the
// channel is closed or reconnecting gives up.
func (c *Channel) run(ws *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.pump(ws)
		if c.ctx.Err() != nil {
			return
		}
		metrics.SetJoined(false)
		c.logger.Warn("connection lost", zap.Error(err))
		_ = c.setPhase(status.Reconnecting)

		next, err := c.reconnect()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("giving up on room", zap.Error(err))
			_ = c.setPhase(status.Disconnected)
			c.opts.Bus.Emit(bus.KindChannelFailure, Failure{Room: c.opts.Room, Err: err.Error()})
			c.emit(Event{Kind: EventFailure, Err: err, Fatal: true})
			c.closeEvents()
			return
		}

		c.connMu.Lock()
		if c.ctx.Err() != nil {
			c.connMu.Unlock()
			_ = next.ws.Close()
			return
		}
		c.conn = next.ws
		c.connMu.Unlock()
		_ = c.setPhase(status.Joined)
		c.deliver(next)
		ws = next.ws
	}
}

// Failure is the bus payload for channel.failure.
type Failure struct {
	Room string
	Err  string
}

func (c *Channel) reconnect() (*joined, error) {
	b := c.opts.Backoff
	for attempt := 0; attempt < b.MaxAttempts; attempt++ {
		delay := b.Delay(attempt)
		c.logger.Info("reconnecting", zap.Int("attempt", attempt+1), zap.Duration("backoff", delay))
		select {
		case <-c.ctx.Done():
			return nil, c.ctx.Err()
		case <-time.After(delay):
		}

		metrics.Inc(metrics.ReconnectAttempts)
		j, err := c.handshake(c.ctx)
		if err == nil {
			return j, nil
		}
		if errors.Is(err, ErrAuthRejected) || c.ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrTransportDropped, b.MaxAttempts)
}

// pump reads frames until the connection fails, pinging in the background.
func (c *Channel) pump(ws *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go c.ping(ws, stop)

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			_ = ws.Close()
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		f, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if ev, ok := c.translate(f); ok {
			c.emit(ev)
		}
	}
}

func (c *Channel) ping(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// translate maps a server frame to a channel event.
func (c *Channel) translate(f protocol.Frame) (Event, bool) {
	switch f.Event {
	case protocol.EventReceiveMessage:
		var m protocol.Message
		if err := f.DecodeData(&m); err != nil {
			c.logger.Warn("bad receive_message", zap.Error(err))
			return Event{}, false
		}
		return Event{Kind: EventMessage, Message: m}, true
	case protocol.EventAnnouncement:
		var a protocol.Announcement
		if err := f.DecodeData(&a); err != nil {
			c.logger.Warn("bad announcement", zap.Error(err))
			return Event{}, false
		}
		return Event{Kind: EventAnnouncement, Announcement: Announcement{
			Text:   a.Message,
			Joiner: a.Joiner(),
			At:     time.Now(),
		}}, true
	case protocol.EventPreviousMessages:
		var pm protocol.PreviousMessages
		if err := f.DecodeData(&pm); err != nil {
			c.logger.Warn("bad previous_messages", zap.Error(err))
			return Event{}, false
		}
		return Event{Kind: EventSnapshot, Messages: pm.Messages}, true
	case protocol.EventError:
		var ep protocol.ErrorPayload
		_ = f.DecodeData(&ep)
		return Event{Kind: EventFailure, Err: &ServerError{Msg: ep.Text()}}, true
	}
	c.logger.Debug("ignoring frame", zap.String("event", f.Event))
	return Event{}, false
}

func (c *Channel) write(frame []byte) error {
	c.connMu.Lock()
	ws := c.conn
	c.connMu.Unlock()
	if ws == nil {
		return ErrNotJoined
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Channel) setPhase(to status.Phase) error {
	if err := c.phase.Transition(to); err != nil {
		c.logger.Warn("phase transition rejected", zap.Error(err))
		return err
	}
	c.emit(Event{Kind: EventPhase, Phase: to})
	return nil
}

// emit delivers ev unless the channel is closed. It blocks while the
// buffer is full so no event is lost to a slow consumer.
func (c *Channel) emit(ev Event) {
	c.evMu.Lock()
	defer c.evMu.Unlock()
	if c.evClosed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Channel) closeEvents() {
	c.evMu.Lock()
	defer c.evMu.Unlock()
	if !c.evClosed {
		c.evClosed = true
		close(c.events)
	}
}
