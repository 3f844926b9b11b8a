// Package monitoring holds the pluggable diagnostic logger used by the core
// packages and log-backed observers for cue emissions.
package monitoring

import (
	"log"
	"sync"

	"github.com/banshee-data/sonus/internal/cue"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogSink is a cue.Sink that writes every emitted cue through Logf.
type LogSink struct {
	Prefix string // defaults to "[cue]"
}

// Emit implements cue.Sink.
func (s LogSink) Emit(c cue.Cue) {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "[cue]"
	}
	Logf("%s %s", prefix, c)
}

// Recorder is a cue.Sink that keeps the most recent cues in memory.
type Recorder struct {
	mu    sync.Mutex
	limit int
	cues  []cue.Cue
	total int
}

// NewRecorder keeps at most limit cues (minimum 1).
func NewRecorder(limit int) *Recorder {
	if limit < 1 {
		limit = 1
	}
	return &Recorder{limit: limit}
}

// Emit implements cue.Sink.
func (r *Recorder) Emit(c cue.Cue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.cues = append(r.cues, c)
	if over := len(r.cues) - r.limit; over > 0 {
		r.cues = append(r.cues[:0], r.cues[over:]...)
	}
}

// Recent returns up to n of the latest cues, oldest first. n <= 0 returns all
// retained cues.
func (r *Recorder) Recent(n int) []cue.Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := 0
	if n > 0 && n < len(r.cues) {
		start = len(r.cues) - n
	}
	return append([]cue.Cue(nil), r.cues[start:]...)
}

// Total returns how many cues were emitted since creation.
func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
