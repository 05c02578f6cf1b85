package room

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/channel"
	"github.com/vibee/vibee/internal/history"
	"github.com/vibee/vibee/internal/metrics"
	"github.com/vibee/vibee/internal/protocol"
	"github.com/vibee/vibee/internal/status"
	"github.com/vibee/vibee/internal/timeline"
	"go.uber.org/zap"
)

const maxNotices = 50

// Live is the live transport of a session. *channel.Channel implements it.
type Live interface {
	Open(ctx context.Context) error
	Send(body string) error
	Close()
	Events() <-chan channel.Event
	Phase() status.Phase
}

// Pager fetches older history. *history.Fetcher implements it.
type Pager interface {
	FetchPage(ctx context.Context) (history.Page, error)
	Seed(n int)
	NoteLive()
	Cursor() history.Cursor
}

// Invalidator is told when a collaborator rejects the credential. *auth.Guard implements it.
type Invalidator interface {
	Invalidate(reason error)
}

// LoadResult reports what one backfill did.
type LoadResult struct {
	Delta  timeline.Delta
	Cursor history.Cursor
}

// State is a point-in-time view of a session.
type State struct {
	Room      string
	Epoch     uint64
	Phase     status.Phase
	Cursor    history.Cursor
	Messages  int
	Notices   []Notice
	LastError string
}

type fetchResult struct {
	page  history.Page
	err   error
	reply chan<- loadReply
}

type loadReply struct {
	res LoadResult
	err error
}

// Session binds one room's channel, pager and timeline. Every timeline
// mutation happens on its loop goroutine: channel events, fetch
// completions and commands are all funnelled into it.
type Session struct {
	room   string
	epoch  uint64
	live   Live
	pager  Pager
	guard  Invalidator
	bus    *bus.Bus
	logger *zap.Logger

	tl        *timeline.Timeline
	notices   []Notice
	lastErr   error
	fetchDone chan fetchResult
	cmds      chan func()

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
	closeOnce sync.Once
}

// NewSession creates a session for room. epoch identifies this join among
// all joins of the process.
func NewSession(room string, epoch uint64, live Live, pager Pager, guard Invalidator, b *bus.Bus, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		room:      room,
		epoch:     epoch,
		live:      live,
		pager:     pager,
		guard:     guard,
		bus:       b,
		logger:    logger.With(zap.String("room", room), zap.Uint64("epoch", epoch)),
		tl:        timeline.New(),
		fetchDone: make(chan fetchResult),
		cmds:      make(chan func()),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Room returns the session's room identifier.
func (s *Session) Room() string { return s.room }

// Epoch returns the join epoch.
func (s *Session) Epoch() uint64 { return s.epoch }

// Open joins the room, applies the join snapshot and starts the loop, so
// the timeline is populated once Open returns. A rejected credential is
// reported to the guard before the error is returned.
func (s *Session) Open(ctx context.Context) error {
	if err := s.live.Open(ctx); err != nil {
		if errors.Is(err, channel.ErrAuthRejected) {
			s.guard.Invalidate(err)
		}
		return err
	}
	if err := s.applySnapshot(ctx); err != nil {
		return err
	}
	s.started = true
	go s.loop()
	return nil
}

// applySnapshot consumes channel events up to and including the join
// snapshot. The channel queues them before its Open returns.
func (s *Session) applySnapshot(ctx context.Context) error {
	events := s.live.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return channel.ErrTransportDropped
			}
			s.handleEvent(ev)
			if ev.Kind == channel.EventSnapshot {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close leaves the room and discards the timeline. No background work
// touches session state afterwards.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.live.Close()
		if s.started {
			<-s.done
		}
		metrics.SetTimelineSize(0)
		s.logger.Info("session closed")
	})
}

// Send posts body to the room.
func (s *Session) Send(body string) error {
	return s.live.Send(body)
}

// LoadOlder fetches the next older page and prepends it. It returns
// history.ErrFetchInFlight if a fetch is already pending.
func (s *Session) LoadOlder(ctx context.Context) (LoadResult, error) {
	reply := make(chan loadReply, 1)
	go s.fetch(reply)
	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return LoadResult{}, ctx.Err()
	case <-s.done:
		return LoadResult{}, ErrNoRoom
	}
}

// Messages returns the timeline, oldest first.
func (s *Session) Messages() ([]protocol.Message, error) {
	var out []protocol.Message
	err := s.do(func() { out = s.tl.Messages() })
	return out, err
}

// State returns a view of the session.
func (s *Session) State() (State, error) {
	var st State
	err := s.do(func() {
		st = State{
			Room:     s.room,
			Epoch:    s.epoch,
			Phase:    s.live.Phase(),
			Cursor:   s.pager.Cursor(),
			Messages: s.tl.Len(),
			Notices:  slices.Clone(s.notices),
		}
		if s.lastErr != nil {
			st.LastError = s.lastErr.Error()
		}
	})
	return st, err
}

// do runs fn on the loop goroutine and waits for it.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrNoRoom
	}
	<-finished
	return nil
}

// fetch runs FetchPage off the loop. fetchDone belongs to this session, so
// a completion can only outlive it through teardown; s.ctx covers that.
func (s *Session) fetch(reply chan<- loadReply) {
	page, err := s.pager.FetchPage(s.ctx)
	if errors.Is(err, history.ErrFetchInFlight) {
		reply <- loadReply{err: err}
		return
	}
	select {
	case s.fetchDone <- fetchResult{page: page, err: err, reply: reply}:
	case <-s.ctx.Done():
		reply <- loadReply{err: ErrNoRoom}
	}
}

func (s *Session) loop() {
	defer close(s.done)
	events := s.live.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
		case r := <-s.fetchDone:
			s.handleFetch(r)
		case fn := <-s.cmds:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handleEvent(ev channel.Event) {
	switch ev.Kind {
	case channel.EventSnapshot:
		s.pager.Seed(len(ev.Messages))
		d := s.tl.ApplySnapshot(ev.Messages)
		s.changed(SourceSnapshot, d)
	case channel.EventMessage:
		d := s.tl.ApplyLiveMessage(ev.Message)
		if d.Changed() {
			s.pager.NoteLive()
		}
		s.changed(SourceLive, d)
	case channel.EventAnnouncement:
		s.notice(Notice{Room: s.room, Text: ev.Announcement.Text, Joiner: ev.Announcement.Joiner, At: ev.Announcement.At})
	case channel.EventPhase:
		s.logger.Debug("phase", zap.String("phase", string(ev.Phase)))
	case channel.EventFailure:
		if !ev.Fatal {
			s.notice(Notice{Room: s.room, Text: ev.Err.Error(), At: time.Now()})
			return
		}
		s.lastErr = ev.Err
		s.logger.Error("channel stopped", zap.Error(ev.Err))
		if errors.Is(ev.Err, channel.ErrAuthRejected) {
			s.guard.Invalidate(ev.Err)
		}
	}
}

func (s *Session) handleFetch(r fetchResult) {
	if r.err != nil {
		var fe *history.FetchError
		switch {
		case errors.Is(r.err, history.ErrUnauthorized):
			s.guard.Invalidate(r.err)
		case errors.As(r.err, &fe):
			s.lastErr = r.err
			s.bus.Emit(bus.KindFetchFailed, FetchFailed{Room: s.room, Err: r.err.Error()})
		}
		r.reply <- loadReply{err: r.err}
		return
	}

	d := s.tl.ApplyHistoryPage(r.page.Messages)
	s.changed(SourceHistory, d)
	r.reply <- loadReply{res: LoadResult{Delta: d, Cursor: s.pager.Cursor()}}
}

func (s *Session) changed(source string, d timeline.Delta) {
	metrics.RecordApply(source, d.Prepended+d.Appended+d.Inserted, d.Dropped)
	if !d.Changed() {
		return
	}
	metrics.SetTimelineSize(s.tl.Len())
	s.bus.Emit(bus.KindTimelineChanged, TimelineChanged{Room: s.room, Source: source, Delta: d, Len: s.tl.Len()})
}

func (s *Session) notice(n Notice) {
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	s.bus.Emit(bus.KindNotice, n)
}
