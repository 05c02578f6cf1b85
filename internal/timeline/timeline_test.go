package timeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/vibee/vibee/internal/protocol"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func msg(user string, sec int) protocol.Message {
	return protocol.Message{
		Username:  user,
		Body:      fmt.Sprintf("%s@%d", user, sec),
		Timestamp: base.Add(time.Duration(sec) * time.Second),
	}
}

// page returns n messages with timestamps [from, from+n), oldest first.
func page(from, n int) []protocol.Message {
	out := make([]protocol.Message, n)
	for i := range n {
		out[i] = msg("u", from+i)
	}
	return out
}

func assertSorted(t *testing.T, tl *Timeline) {
	t.Helper()
	msgs := tl.Messages()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Fatalf("timeline out of order at %d: %v before %v", i, msgs[i-1].Timestamp, msgs[i].Timestamp)
		}
	}
}

func assertEqual(t *testing.T, got, want []protocol.Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key() != want[i].Key() {
			t.Fatalf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFreshJoinSnapshot(t *testing.T) {
	tl := New()
	m1, m2, m3 := msg("a", 1), msg("b", 2), msg("c", 3)

	d := tl.ApplySnapshot([]protocol.Message{m1, m2, m3})
	if d.Appended != 3 || d.Dropped != 0 {
		t.Errorf("delta = %+v, want 3 appended", d)
	}
	assertEqual(t, tl.Messages(), []protocol.Message{m1, m2, m3})
}

func TestSnapshotThenLiveDedup(t *testing.T) {
	tl := New()
	m := msg("a", 1)
	tl.ApplySnapshot([]protocol.Message{m})

	d := tl.ApplyLiveMessage(m)
	if d.Dropped != 1 || d.Changed() {
		t.Errorf("delta = %+v, want dropped duplicate", d)
	}
	if tl.Len() != 1 {
		t.Errorf("len = %d, want 1", tl.Len())
	}
}

func TestHistoryPagesPrefixIsReverseConcatenation(t *testing.T) {
	tl := New()
	snapshot := page(300, 50)
	tl.ApplySnapshot(snapshot)

	// Offsets 50, 100, 150: each page strictly older than the last.
	p1, p2, p3 := page(250, 50), page(200, 50), page(150, 12)
	for _, p := range [][]protocol.Message{p1, p2, p3} {
		d := tl.ApplyHistoryPage(p)
		if d.Prepended != len(p) {
			t.Fatalf("delta = %+v, want %d prepended", d, len(p))
		}
	}

	var want []protocol.Message
	for _, p := range [][]protocol.Message{p3, p2, p1, snapshot} {
		want = append(want, p...)
	}
	assertEqual(t, tl.Messages(), want)

	oldest, ok := tl.Oldest()
	if !ok || oldest.Key() != p3[0].Key() {
		t.Errorf("oldest = %+v, want %+v", oldest, p3[0])
	}
}

func TestHistoryPageKeepsExistingElementsInPlace(t *testing.T) {
	tl := New()
	tl.ApplySnapshot(page(100, 5))
	before := tl.Messages()

	tl.ApplyHistoryPage(page(90, 10))

	after := tl.Messages()
	assertEqual(t, after[10:], before)
}

func TestHistoryPageOverlappingSnapshot(t *testing.T) {
	tl := New()
	tl.ApplySnapshot(page(10, 5)) // 10..14

	// A live push shifted the server window so the page repeats 10 and 11.
	d := tl.ApplyHistoryPage(page(5, 7)) // 5..11
	if d.Prepended != 5 || d.Dropped != 2 {
		t.Errorf("delta = %+v, want 5 prepended, 2 dropped", d)
	}
	assertEqual(t, tl.Messages(), page(5, 10))
}

func TestHistoryPageInterleavedIsOrdered(t *testing.T) {
	tl := New()
	tl.ApplySnapshot([]protocol.Message{msg("a", 10), msg("a", 20)})

	d := tl.ApplyHistoryPage([]protocol.Message{msg("b", 5), msg("b", 15), msg("b", 25)})
	if d.Prepended != 1 || d.Inserted != 1 || d.Appended != 1 {
		t.Errorf("delta = %+v, want 1 prepended, 1 inserted, 1 appended", d)
	}
	assertSorted(t, tl)
	if tl.Len() != 5 {
		t.Errorf("len = %d, want 5", tl.Len())
	}
}

func TestHistoryPageEqualTimestampsKeepPageOrder(t *testing.T) {
	tl := New()
	tl.ApplySnapshot([]protocol.Message{msg("a", 10)})

	x := protocol.Message{Username: "x", Body: "first", Timestamp: base.Add(10 * time.Second)}
	y := protocol.Message{Username: "y", Body: "second", Timestamp: base.Add(10 * time.Second)}
	z := protocol.Message{Username: "z", Body: "later", Timestamp: base.Add(11 * time.Second)}
	tl.ApplyHistoryPage([]protocol.Message{x, y, z})

	got := tl.Messages()
	if got[0].Key() != x.Key() || got[1].Key() != y.Key() {
		t.Errorf("page order not preserved: %+v", got)
	}
	assertSorted(t, tl)
}

func TestLiveOutOfOrderIsPlacedByTimestamp(t *testing.T) {
	tl := New()
	tl.ApplySnapshot([]protocol.Message{msg("a", 1), msg("a", 3)})

	d := tl.ApplyLiveMessage(msg("b", 2))
	if d.Inserted != 1 {
		t.Errorf("delta = %+v, want 1 inserted", d)
	}
	assertSorted(t, tl)

	d = tl.ApplyLiveMessage(msg("c", 3))
	if d.Appended != 1 {
		t.Errorf("equal timestamp should append, delta = %+v", d)
	}
	newest, _ := tl.Newest()
	if newest.Username != "c" {
		t.Errorf("newest = %+v, want c", newest)
	}
}

func TestReconnectSnapshotMerges(t *testing.T) {
	tl := New()
	tl.ApplySnapshot(page(0, 5))
	tl.ApplyLiveMessage(msg("u", 5))
	tl.ApplyLiveMessage(msg("u", 6))

	// Messages 7 and 8 arrived while disconnected; the fresh snapshot covers 4..8.
	d := tl.ApplySnapshot(page(4, 5))
	if d.Appended != 2 || d.Dropped != 3 {
		t.Errorf("delta = %+v, want 2 appended, 3 dropped", d)
	}
	assertEqual(t, tl.Messages(), page(0, 9))
}

func TestInvalidMessagesDropped(t *testing.T) {
	tl := New()
	d := tl.ApplySnapshot([]protocol.Message{
		{Username: "a", Body: "   ", Timestamp: base},
		{Username: "", Body: "x", Timestamp: base},
		{Username: "a", Body: "x"},
	})
	if d.Dropped != 3 || tl.Len() != 0 {
		t.Errorf("delta = %+v, len = %d", d, tl.Len())
	}
}

func TestEmptyTimeline(t *testing.T) {
	tl := New()
	if _, ok := tl.Oldest(); ok {
		t.Error("Oldest on empty timeline should report false")
	}
	if _, ok := tl.Newest(); ok {
		t.Error("Newest on empty timeline should report false")
	}
	d := tl.ApplyHistoryPage(nil)
	if d.Changed() {
		t.Errorf("empty page changed timeline: %+v", d)
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	tl := New()
	tl.ApplySnapshot(page(0, 2))
	got := tl.Messages()
	got[0].Body = "mutated"
	if tl.Messages()[0].Body == "mutated" {
		t.Error("Messages must not alias internal state")
	}
}
