// Package history keeps a short ring buffer of past authoritative
// states per session, so hit checks can be evaluated against the world
// as the acting client perceived it.
package history

import (
	"sync"
	"time"

	"github.com/virtarena/arena-server-go/internal/geom"
)

// Snapshot is one immutable per-tick record of a session's state.
type Snapshot struct {
	Position  geom.Vec3
	Velocity  geom.Vec3
	Rotation  float64
	Health    float64
	Tick      uint64
	Timestamp time.Time
}

// Sample is the result of a lag-compensated lookup. LowConfidence marks
// requests older than the retained horizon, answered with the oldest
// snapshot instead of an error; callers may apply stricter acceptance
// criteria to such results.
type Sample struct {
	Snapshot
	Interpolated  bool
	LowConfidence bool
}

// Ledger is a fixed-capacity ring buffer of snapshots for one session.
// Appends are O(1) and allocation-free after warm-up; the oldest entry
// is overwritten once the ring is full.
type Ledger struct {
	mu   sync.Mutex
	buf  []Snapshot
	head int // next write index
	size int
}

// NewLedger creates a ledger retaining capacity snapshots.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ledger{buf: make([]Snapshot, capacity)}
}

// Append records a snapshot. Snapshots must arrive in non-decreasing
// timestamp order; the tick loop guarantees this.
func (l *Ledger) Append(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.head] = s
	l.head = (l.head + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
}

// Len returns the number of retained snapshots.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// at returns the i-th retained snapshot, oldest first.
func (l *Ledger) at(i int) Snapshot {
	start := l.head - l.size
	if start < 0 {
		start += len(l.buf)
	}
	return l.buf[(start+i)%len(l.buf)]
}

// Newest returns the most recent snapshot.
func (l *Ledger) Newest() (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return Snapshot{}, false
	}
	return l.at(l.size - 1), true
}

// Oldest returns the oldest retained snapshot.
func (l *Ledger) Oldest() (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return Snapshot{}, false
	}
	return l.at(0), true
}

// StateAt rewinds to the given timestamp. Between two retained
// snapshots the position and rotation are linearly interpolated, so the
// result always lies between the bracketing records. Timestamps past
// the newest snapshot return the newest state; timestamps older than
// the horizon return the oldest with LowConfidence set. Degrades
// gracefully, never an error.
func (l *Ledger) StateAt(ts time.Time) (Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return Sample{}, false
	}

	newest := l.at(l.size - 1)
	if !ts.Before(newest.Timestamp) {
		return Sample{Snapshot: newest}, true
	}

	oldest := l.at(0)
	if ts.Before(oldest.Timestamp) {
		return Sample{Snapshot: oldest, LowConfidence: true}, true
	}

	// Linear scan from the newest end; the ring spans ~1s of ticks so
	// the window is small and recent timestamps are the common case.
	for i := l.size - 1; i > 0; i-- {
		after := l.at(i)
		before := l.at(i - 1)
		if ts.Before(before.Timestamp) {
			continue
		}

		span := after.Timestamp.Sub(before.Timestamp)
		if span <= 0 {
			return Sample{Snapshot: before}, true
		}
		t := float64(ts.Sub(before.Timestamp)) / float64(span)

		interp := before
		interp.Position = before.Position.Lerp(after.Position, t)
		interp.Velocity = before.Velocity.Lerp(after.Velocity, t)
		interp.Rotation = before.Rotation + (after.Rotation-before.Rotation)*t
		interp.Timestamp = ts
		return Sample{Snapshot: interp, Interpolated: true}, true
	}

	return Sample{Snapshot: oldest, LowConfidence: true}, true
}
