// Package timeline merges the join snapshot, history pages and live pushes
// of one room into a single oldest-first sequence without duplicates.
package timeline

import (
	"slices"
	"sort"

	"github.com/vibee/vibee/internal/protocol"
)

// Delta describes what one Apply call did to the timeline.
type Delta struct {
	Prepended int // placed before the element that was oldest before the call
	Appended  int // placed after the element that was newest before the call
	Inserted  int // placed between existing elements to keep timestamp order
	Dropped   int // duplicates or invalid messages
}

// Changed reports whether the timeline was mutated.
func (d Delta) Changed() bool {
	return d.Prepended+d.Appended+d.Inserted > 0
}

// Add accumulates o into d.
func (d *Delta) Add(o Delta) {
	d.Prepended += o.Prepended
	d.Appended += o.Appended
	d.Inserted += o.Inserted
	d.Dropped += o.Dropped
}

// Timeline is not safe for concurrent use; a room session owns it and
// applies every mutation from a single goroutine.
type Timeline struct {
	msgs []protocol.Message
	seen map[protocol.Key]struct{}
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{seen: make(map[protocol.Key]struct{})}
}

// Len returns the number of messages.
func (t *Timeline) Len() int { return len(t.msgs) }

// Messages returns a copy of the timeline, oldest first.
func (t *Timeline) Messages() []protocol.Message {
	return slices.Clone(t.msgs)
}

// Oldest returns the oldest loaded message, the boundary history pages are
// prepended in front of.
func (t *Timeline) Oldest() (protocol.Message, bool) {
	if len(t.msgs) == 0 {
		return protocol.Message{}, false
	}
	return t.msgs[0], true
}

// Newest returns the most recent message.
func (t *Timeline) Newest() (protocol.Message, bool) {
	if len(t.msgs) == 0 {
		return protocol.Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

// Contains reports whether a message with the same key is present.
func (t *Timeline) Contains(m protocol.Message) bool {
	_, ok := t.seen[m.Key()]
	return ok
}

// ApplySnapshot ingests the batch the server pushes after a join. The first
// call seeds the timeline; later calls after a re-join merge against what is
// already there.
func (t *Timeline) ApplySnapshot(msgs []protocol.Message) Delta {
	var d Delta
	for _, m := range msgs {
		d.Add(t.ApplyLiveMessage(m))
	}
	return d
}

// ApplyLiveMessage appends m in receipt order. A message older than the
// current newest element is placed after every element with an equal or
// earlier timestamp.
func (t *Timeline) ApplyLiveMessage(m protocol.Message) Delta {
	if !t.admit(m) {
		return Delta{Dropped: 1}
	}
	n := len(t.msgs)
	if n == 0 || !m.Timestamp.Before(t.msgs[n-1].Timestamp) {
		t.msgs = append(t.msgs, m)
		return Delta{Appended: 1}
	}
	i := sort.Search(n, func(i int) bool {
		return t.msgs[i].Timestamp.After(m.Timestamp)
	})
	t.msgs = slices.Insert(t.msgs, i, m)
	if i == 0 {
		return Delta{Prepended: 1}
	}
	return Delta{Inserted: 1}
}

// ApplyHistoryPage ingests one oldest-first page of older history. When the
// page sits entirely before the current oldest element it is prepended as a
// block in its own order. Otherwise each message is placed before every
// element with an equal or later timestamp, keeping the page's relative order.
func (t *Timeline) ApplyHistoryPage(msgs []protocol.Message) Delta {
	var d Delta
	fresh := make([]protocol.Message, 0, len(msgs))
	for _, m := range msgs {
		if !t.admit(m) {
			d.Dropped++
			continue
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return d
	}

	sorted := slices.IsSortedFunc(fresh, func(a, b protocol.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if sorted && (len(t.msgs) == 0 || !fresh[len(fresh)-1].Timestamp.After(t.msgs[0].Timestamp)) {
		t.msgs = append(fresh, t.msgs...)
		d.Prepended += len(fresh)
		return d
	}

	// anchor tracks the index of the element that was oldest before the call.
	anchor := 0
	for k := len(fresh) - 1; k >= 0; k-- {
		m := fresh[k]
		i := sort.Search(len(t.msgs), func(i int) bool {
			return !t.msgs[i].Timestamp.Before(m.Timestamp)
		})
		t.msgs = slices.Insert(t.msgs, i, m)
		switch {
		case i <= anchor:
			anchor++
			d.Prepended++
		case i == len(t.msgs)-1:
			d.Appended++
		default:
			d.Inserted++
		}
	}
	return d
}

// admit records m as seen and reports whether it should be placed.
func (t *Timeline) admit(m protocol.Message) bool {
	if !m.Valid() {
		return false
	}
	k := m.Key()
	if _, dup := t.seen[k]; dup {
		return false
	}
	t.seen[k] = struct{}{}
	return true
}
