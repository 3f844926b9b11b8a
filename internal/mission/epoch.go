// Package mission holds the mission lifecycle and the epoch counter that
// invalidates in-flight work when a mission is cleared.
package mission

import "sync/atomic"

// Epoch is a monotonic generation counter. Work that may outlive a reset
// captures Current when it starts and checks Valid before every resumption.
type Epoch struct {
	gen atomic.Uint64
}

// Current returns the current generation.
func (e *Epoch) Current() uint64 { return e.gen.Load() }

// Bump invalidates every captured generation and returns the new one.
func (e *Epoch) Bump() uint64 { return e.gen.Add(1) }

// Valid reports whether g is still the current generation.
func (e *Epoch) Valid(g uint64) bool { return e.gen.Load() == g }
