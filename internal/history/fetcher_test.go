package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vibee/vibee/internal/auth"
	"github.com/vibee/vibee/internal/protocol"
)

type staticCreds struct{ cred *auth.Credential }

func (s staticCreds) Current() *auth.Credential { return s.cred }

var alice = staticCreds{&auth.Credential{Token: "tok", Subject: "alice"}}

// fakeSource serves a room of total messages, newest at offset 0, the way
// the server slices history.
type fakeSource struct {
	mu      sync.Mutex
	total   int
	calls   []int // offsets requested
	err     error
	block   chan struct{}
	started chan struct{}
}

func (s *fakeSource) Messages(ctx context.Context, token, roomID string, limit, offset int) (Page, error) {
	s.mu.Lock()
	s.calls = append(s.calls, offset)
	err := s.err
	s.mu.Unlock()

	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if err != nil {
		return Page{}, err
	}

	// Message i has timestamp i; newest is total-1.
	hi := s.total - offset
	lo := max(hi-limit, 0)
	var msgs []protocol.Message
	for i := lo; i < hi; i++ {
		msgs = append(msgs, protocol.Message{
			Username:  "u",
			Body:      fmt.Sprintf("m%d", i),
			Timestamp: time.Unix(int64(i), 0),
		})
	}
	return Page{Messages: msgs, Count: len(msgs)}, nil
}

func (s *fakeSource) offsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

func TestFetchAdvancesAndExhausts(t *testing.T) {
	src := &fakeSource{total: 62}
	f := NewFetcher("lobby", 50, src, alice, nil)
	ctx := context.Background()

	p, err := f.FetchPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Messages) != 50 {
		t.Fatalf("first page = %d messages, want 50", len(p.Messages))
	}
	if c := f.Cursor(); c.Offset != 50 || c.Exhausted {
		t.Errorf("cursor = %+v, want offset 50 not exhausted", c)
	}

	p, err = f.FetchPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Messages) != 12 {
		t.Fatalf("second page = %d messages, want 12", len(p.Messages))
	}
	if c := f.Cursor(); c.Offset != 100 || !c.Exhausted {
		t.Errorf("cursor = %+v, want offset 100 exhausted", c)
	}
}

func TestFetchAfterExhaustedIsIdempotent(t *testing.T) {
	src := &fakeSource{total: 3}
	f := NewFetcher("lobby", 50, src, alice, nil)
	if _, err := f.FetchPage(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := f.Cursor()

	for range 3 {
		p, err := f.FetchPage(context.Background())
		if err != nil {
			t.Fatalf("FetchPage after exhaustion error = %v", err)
		}
		if len(p.Messages) != 0 {
			t.Errorf("page = %d messages, want 0", len(p.Messages))
		}
	}
	if f.Cursor() != before {
		t.Errorf("cursor changed: %+v -> %+v", before, f.Cursor())
	}
	if n := len(src.offsets()); n != 1 {
		t.Errorf("source called %d times, want 1", n)
	}
}

func TestFetchAtMostOneInFlight(t *testing.T) {
	src := &fakeSource{total: 500, block: make(chan struct{}), started: make(chan struct{}, 1)}
	f := NewFetcher("lobby", 50, src, alice, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.FetchPage(context.Background())
		done <- err
	}()

	select {
	case <-src.started:
	case <-time.After(time.Second):
		t.Fatal("first fetch never started")
	}

	if _, err := f.FetchPage(context.Background()); !errors.Is(err, ErrFetchInFlight) {
		t.Fatalf("second FetchPage error = %v, want ErrFetchInFlight", err)
	}

	close(src.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if c := f.Cursor(); c.Offset != 50 {
		t.Errorf("offset = %d, want 50 (advanced once)", c.Offset)
	}
	if n := len(src.offsets()); n != 1 {
		t.Errorf("source called %d times, want 1", n)
	}
}

func TestFetchWithoutCredential(t *testing.T) {
	src := &fakeSource{total: 10}
	f := NewFetcher("lobby", 50, src, staticCreds{}, nil)
	if _, err := f.FetchPage(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
	if len(src.offsets()) != 0 {
		t.Error("source must not be called without a credential")
	}
}

func TestFetchErrorDoesNotAdvance(t *testing.T) {
	src := &fakeSource{total: 500, err: &FetchError{Status: 502}}
	f := NewFetcher("lobby", 50, src, alice, nil)

	_, err := f.FetchPage(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if c := f.Cursor(); c.Offset != 0 || c.Exhausted {
		t.Errorf("cursor = %+v, want untouched", c)
	}

	// A retry after recovery fetches the same offset.
	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	if _, err := f.FetchPage(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := src.offsets(); got[0] != 0 || got[1] != 0 {
		t.Errorf("offsets = %v, want [0 0]", got)
	}
}

func TestSeedAndNoteLive(t *testing.T) {
	src := &fakeSource{total: 200}
	f := NewFetcher("lobby", 50, src, alice, nil)

	f.Seed(50)
	f.Seed(10) // re-join snapshot: ignored
	if c := f.Cursor(); c.Offset != 50 || c.Exhausted {
		t.Fatalf("cursor after seed = %+v", c)
	}

	f.NoteLive()
	f.NoteLive()
	if _, err := f.FetchPage(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := src.offsets(); got[0] != 52 {
		t.Errorf("requested offset = %d, want 52", got[0])
	}
	if c := f.Cursor(); c.Offset != 102 {
		t.Errorf("offset = %d, want 102", c.Offset)
	}
}

func TestSeedShortSnapshotExhausts(t *testing.T) {
	src := &fakeSource{total: 3}
	f := NewFetcher("lobby", 50, src, alice, nil)
	f.Seed(3)
	f.NoteLive()

	if c := f.Cursor(); !c.Exhausted || c.Offset != 3 {
		t.Errorf("cursor = %+v, want exhausted at 3", c)
	}
	p, err := f.FetchPage(context.Background())
	if err != nil || len(p.Messages) != 0 {
		t.Errorf("FetchPage() = %d messages, %v", len(p.Messages), err)
	}
	if len(src.offsets()) != 0 {
		t.Error("exhausted fetcher must not hit the source")
	}
}

func TestSeedDuringFetchKeepsCursor(t *testing.T) {
	src := &fakeSource{total: 5, block: make(chan struct{}), started: make(chan struct{}, 1)}
	f := NewFetcher("lobby", 2, src, alice, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.FetchPage(context.Background())
		done <- err
	}()
	select {
	case <-src.started:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	// The join snapshot lands while the first page is in flight.
	f.Seed(2)
	close(src.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if c := f.Cursor(); c.Offset != 2 {
		t.Fatalf("offset = %d, want 2", c.Offset)
	}
	src.started = nil

	for !f.Cursor().Exhausted {
		if _, err := f.FetchPage(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := fmt.Sprint(src.offsets()); got != "[0 2 4]" {
		t.Errorf("offsets = %s, want [0 2 4]", got)
	}
}
