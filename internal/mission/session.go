package mission

import (
	"sync"
	"time"
)

// State describes whether a mission is loaded.
type State string

const (
	StateIdle   State = "idle"
	StateLoaded State = "loaded"
)

// Event is delivered to listeners on every lifecycle transition.
type Event struct {
	Kind  string    `json:"kind"` // "loaded" or "cleared"
	Name  string    `json:"name"`
	Epoch uint64    `json:"epoch"`
	At    time.Time `json:"at"`
}

// Listener receives lifecycle events synchronously.
type Listener func(Event)

// Session tracks the loaded mission and owns the Epoch. Clearing the session
// bumps the epoch exactly once.
type Session struct {
	mu        sync.Mutex
	epoch     Epoch
	name      string
	state     State
	loadedAt  time.Time
	listeners []Listener
}

// NewSession returns an idle session at epoch 0.
func NewSession() *Session {
	return &Session{state: StateIdle}
}

// Epoch exposes the session's generation counter.
func (s *Session) Epoch() *Epoch { return &s.epoch }

// OnEvent registers l for lifecycle events.
func (s *Session) OnEvent(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// MarkLoaded records that mission name is active. The epoch is unchanged.
func (s *Session) MarkLoaded(name string, at time.Time) {
	s.mu.Lock()
	s.name = name
	s.state = StateLoaded
	s.loadedAt = at
	ev := Event{Kind: "loaded", Name: name, Epoch: s.epoch.Current(), At: at}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// Clear resets the session to idle and bumps the epoch. It returns the new
// generation.
func (s *Session) Clear(at time.Time) uint64 {
	s.mu.Lock()
	name := s.name
	s.name = ""
	s.state = StateIdle
	s.loadedAt = time.Time{}
	g := s.epoch.Bump()
	ev := Event{Kind: "cleared", Name: name, Epoch: g, At: at}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
	return g
}

// Status is a snapshot of the session.
type Status struct {
	Name     string    `json:"name,omitempty"`
	State    State     `json:"state"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Epoch    uint64    `json:"epoch"`
}

// Status returns the current snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Name: s.name, State: s.state, LoadedAt: s.loadedAt, Epoch: s.epoch.Current()}
}
