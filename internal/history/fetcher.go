package history

import (
	"context"
	"sync"
	"time"

	"github.com/vibee/vibee/internal/auth"
	"github.com/vibee/vibee/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Source fetches raw pages. *Client implements it.
type Source interface {
	Messages(ctx context.Context, token, roomID string, limit, offset int) (Page, error)
}

// Credentials yields the current valid credential, or nil. *auth.Guard implements it.
type Credentials interface {
	Current() *auth.Credential
}

// Cursor is the offset bookkeeping for one room.
type Cursor struct {
	Offset    int
	PageSize  int
	Exhausted bool
}

// Fetcher retrieves progressively older pages for one room. At most one
// fetch is in flight at a time; a room change means a new Fetcher.
type Fetcher struct {
	room   string
	source Source
	creds  Credentials
	logger *zap.Logger
	sem    *semaphore.Weighted

	mu     sync.Mutex
	cursor Cursor
	seeded bool // Seed applied or a fetch started
}

// NewFetcher creates a fetcher for room with a fresh cursor.
func NewFetcher(room string, pageSize int, source Source, creds Credentials, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		room:   room,
		source: source,
		creds:  creds,
		logger: logger.With(zap.String("room", room)),
		sem:    semaphore.NewWeighted(1),
		cursor: Cursor{PageSize: pageSize},
	}
}

// Room returns the room this fetcher serves.
func (f *Fetcher) Room() string { return f.room }

// Cursor returns a snapshot of the cursor.
func (f *Fetcher) Cursor() Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// Seed positions the cursor behind the first join snapshot of n messages,
// which stands in for the page at offset 0. It is a no-op after the first
// call or once a fetch has started, since the cursor then already covers
// what was fetched.
func (f *Fetcher) Seed(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seeded {
		return
	}
	f.seeded = true
	f.cursor.Offset = n
	f.cursor.Exhausted = n < f.cursor.PageSize
}

// NoteLive shifts the cursor by one for a live push, which moves every
// older message one position further from the newest.
func (f *Fetcher) NoteLive() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cursor.Exhausted {
		f.cursor.Offset++
	}
}

// FetchPage fetches the next older page. After exhaustion it returns an
// empty page without touching the cursor. A call while another is pending
// returns ErrFetchInFlight.
func (f *Fetcher) FetchPage(ctx context.Context) (Page, error) {
	if !f.sem.TryAcquire(1) {
		return Page{}, ErrFetchInFlight
	}
	defer f.sem.Release(1)

	f.mu.Lock()
	cur := f.cursor
	f.seeded = true
	f.mu.Unlock()
	if cur.Exhausted {
		return Page{}, nil
	}
	cred := f.creds.Current()
	if cred == nil {
		return Page{}, ErrUnauthorized
	}

	start := time.Now()
	page, err := f.source.Messages(ctx, cred.Token, f.room, cur.PageSize, cur.Offset)
	metrics.Since(metrics.FetchDuration, start)
	if err != nil {
		metrics.Inc(metrics.FetchFailures)
		f.logger.Warn("history fetch failed", zap.Int("offset", cur.Offset), zap.Error(err))
		return Page{}, err
	}

	f.mu.Lock()
	f.cursor.Offset += cur.PageSize
	if page.Count < cur.PageSize {
		f.cursor.Exhausted = true
	}
	next := f.cursor
	f.mu.Unlock()

	f.logger.Debug("history page fetched",
		zap.Int("offset", cur.Offset),
		zap.Int("count", page.Count),
		zap.Bool("exhausted", next.Exhausted),
	)
	return page, nil
}
