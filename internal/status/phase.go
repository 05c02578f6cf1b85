package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/vibee/vibee/internal/bus"
)

// Phase is the lifecycle phase of a live room channel.
type Phase string

const (
	Disconnected Phase = "DISCONNECTED"
	Connecting   Phase = "CONNECTING"
	Joined       Phase = "JOINED"
	Reconnecting Phase = "RECONNECTING"
)

// validTransitions defines allowed phase transitions.
var validTransitions = map[Phase][]Phase{
	Disconnected: {Connecting},
	Connecting:   {Joined, Disconnected},
	Joined:       {Disconnected, Reconnecting},
	Reconnecting: {Joined, Disconnected},
}

// Machine tracks and enforces channel phase transitions for one room.
type Machine struct {
	mu      sync.RWMutex
	current Phase
	room    string
	bus     *bus.Bus
}

// NewMachine creates a machine for room starting in Disconnected.
func NewMachine(b *bus.Bus, room string) *Machine {
	return &Machine{
		current: Disconnected,
		room:    room,
		bus:     b,
	}
}

// Current returns the current phase.
func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new phase. Returns error if transition is invalid.
func (m *Machine) Transition(to Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindPhaseChanged, PhaseChange{
		Room: m.room,
		From: from,
		To:   to,
	})
	return nil
}

// PhaseChange is the payload for phase change events.
type PhaseChange struct {
	Room string
	From Phase
	To   Phase
}
