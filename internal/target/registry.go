// Package target holds the in-memory registry of geolocated targets and the
// active-target selection that guidance follows.
package target

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sonus/internal/geo"
)

// Kind distinguishes fixed targets from targets that move along routes.
type Kind int

const (
	Stationary Kind = iota
	Dynamic
)

func (k Kind) String() string {
	if k == Dynamic {
		return "dynamic"
	}
	return "stationary"
}

// ParseKind accepts "stationary" or "dynamic" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stationary":
		return Stationary, nil
	case "dynamic":
		return Dynamic, nil
	default:
		return Stationary, fmt.Errorf("unknown target kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Target is a geolocated point of interest.
type Target struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Kind      Kind      `json:"kind"`
	Position  geo.Point `json:"position"`
	Heading   float32   `json:"heading"` // degrees, written only for Dynamic targets
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound is returned when an id is not registered.
	ErrNotFound = errors.New("target not found")
	// ErrDuplicate is returned by Register for an id already in use.
	ErrDuplicate = errors.New("target id already registered")
)

// ActiveChangedFunc observes changes of the active target. Either id may be
// empty.
type ActiveChangedFunc func(prev, next string)

// Registry is a concurrency-safe set of targets with one optional active
// target. Iteration order is registration order.
type Registry struct {
	mu        sync.RWMutex
	targets   map[string]*Target
	order     []string
	active    string
	observers []ActiveChangedFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]*Target)}
}

// OnActiveChanged registers fn. Callbacks run synchronously after the lock
// is released.
func (r *Registry) OnActiveChanged(fn ActiveChangedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Register adds t. An empty ID is replaced with a fresh UUID.
func (r *Registry) Register(t Target) (Target, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[t.ID]; ok {
		return Target{}, fmt.Errorf("register %s: %w", t.ID, ErrDuplicate)
	}
	cp := t
	r.targets[t.ID] = &cp
	r.order = append(r.order, t.ID)
	return t, nil
}

// Spawn registers a new target with a generated ID.
func (r *Registry) Spawn(name string, kind Kind, pos geo.Point, at time.Time) Target {
	t, _ := r.Register(Target{Name: name, Kind: kind, Position: pos, UpdatedAt: at})
	return t
}

// Remove unregisters id. Removing the active target clears the selection.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	if _, ok := r.targets[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.targets, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	notify := r.setActiveLocked("", id)
	r.mu.Unlock()

	notify()
	return true
}

// Clear unregisters every target and clears the selection.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.targets = make(map[string]*Target)
	r.order = nil
	notify := r.setActiveLocked("", r.active)
	r.mu.Unlock()

	notify()
}

// Get returns a copy of the target with id.
func (r *Registry) Get(id string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return Target{}, false
	}
	return *t, true
}

// IsUsable reports whether id is still registered.
func (r *Registry) IsUsable(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.targets[id]
	return ok
}

// ActiveTargets returns copies of all registered targets.
func (r *Registry) ActiveTargets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.targets[id])
	}
	return out
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// Active returns the selected target.
func (r *Registry) Active() (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return Target{}, false
	}
	t, ok := r.targets[r.active]
	if !ok {
		return Target{}, false
	}
	return *t, true
}

// ActiveID returns the selected target's id, or "".
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive selects id. An empty id clears the selection.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	if id != "" {
		if _, ok := r.targets[id]; !ok {
			r.mu.Unlock()
			return fmt.Errorf("set active %s: %w", id, ErrNotFound)
		}
	}
	notify := r.setActiveLocked(id, r.active)
	r.mu.Unlock()

	notify()
	return nil
}

// setActiveLocked changes the selection to next if the current selection is
// onlyIf, returning the deferred notification.
func (r *Registry) setActiveLocked(next, onlyIf string) func() {
	prev := r.active
	if prev != onlyIf || prev == next {
		return func() {}
	}
	r.active = next
	observers := append([]ActiveChangedFunc(nil), r.observers...)
	return func() {
		for _, fn := range observers {
			fn(prev, next)
		}
	}
}

// SetPose writes position and heading for id. It reports false when id is
// not registered.
func (r *Registry) SetPose(id string, pos geo.Point, heading float32, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return false
	}
	t.Position = pos
	t.Heading = heading
	t.UpdatedAt = at
	return true
}
