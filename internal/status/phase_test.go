package status

import (
	"testing"

	"github.com/vibee/vibee/internal/bus"
)

func TestInitialPhase(t *testing.T) {
	m := NewMachine(nil, "lobby")
	if m.Current() != Disconnected {
		t.Errorf("initial phase = %s, want DISCONNECTED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from Phase
		to   Phase
	}{
		{Disconnected, Connecting},
		{Connecting, Joined},
		{Connecting, Disconnected},
		{Joined, Reconnecting},
		{Joined, Disconnected},
		{Reconnecting, Joined},
		{Reconnecting, Disconnected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil, "lobby")
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("phase = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from Phase
		to   Phase
	}{
		{Disconnected, Joined},
		{Disconnected, Reconnecting},
		{Connecting, Reconnecting},
		{Reconnecting, Connecting},
		{Joined, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil, "lobby")
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("phase = %s, want %s (unchanged)", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("channel.", 10)
	defer unsub()

	m := NewMachine(b, "lobby")
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindPhaseChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindPhaseChanged)
	}
	change, ok := evt.Payload.(PhaseChange)
	if !ok {
		t.Fatalf("payload type = %T, want PhaseChange", evt.Payload)
	}
	if change.Room != "lobby" || change.From != Disconnected || change.To != Connecting {
		t.Errorf("change = %+v, want lobby DISCONNECTED -> CONNECTING", change)
	}
}

// TestDropAndRecover walks the reconnect path:
// DISCONNECTED → CONNECTING → JOINED → RECONNECTING → JOINED
func TestDropAndRecover(t *testing.T) {
	m := NewMachine(nil, "lobby")
	for _, p := range []Phase{Connecting, Joined, Reconnecting, Joined} {
		if err := m.Transition(p); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", p, err, m.Current())
		}
	}
}

// TestAuthRejectedDuringConnect verifies a rejected handshake lands in
// DISCONNECTED and a fresh attempt must start from CONNECTING again.
func TestAuthRejectedDuringConnect(t *testing.T) {
	m := NewMachine(nil, "lobby")
	walkTo(t, m, Connecting)
	if err := m.Transition(Disconnected); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Joined); err == nil {
		t.Fatal("DISCONNECTED -> JOINED must go through CONNECTING")
	}
}

func walkTo(t *testing.T, m *Machine, target Phase) {
	t.Helper()
	paths := map[Phase][]Phase{
		Disconnected: {},
		Connecting:   {Connecting},
		Joined:       {Connecting, Joined},
		Reconnecting: {Connecting, Joined, Reconnecting},
	}
	for _, p := range paths[target] {
		if err := m.Transition(p); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
