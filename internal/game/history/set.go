package history

import (
	"sync"
	"time"

	"github.com/virtarena/arena-server-go/internal/geom"
)

// Set holds one ledger per registered session. The lock here guards the
// map; each ring carries its own.
type Set struct {
	mu       sync.RWMutex
	capacity int
	ledgers  map[string]*Ledger
}

// NewSet creates a ledger set; each session's ring retains capacity
// snapshots.
func NewSet(capacity int) *Set {
	return &Set{capacity: capacity, ledgers: make(map[string]*Ledger)}
}

// Register creates a ledger for a new session.
func (s *Set) Register(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[sessionID]; !ok {
		s.ledgers[sessionID] = NewLedger(s.capacity)
	}
}

// Unregister drops a session's ledger.
func (s *Set) Unregister(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ledgers, sessionID)
}

// Ledger returns the ledger for a session.
func (s *Set) Ledger(sessionID string) (*Ledger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[sessionID]
	return l, ok
}

// Hit is one session found inside a rewound query radius.
type Hit struct {
	SessionID     string
	Position      geom.Vec3
	Distance      float64
	LowConfidence bool
}

// QueryHits rewinds every session except exclude to the given timestamp
// and returns those whose rewound position lies within radius of
// center. This is the lag-compensation entry point for hit validation:
// the timestamp is the actor's perceived time (client timestamp minus
// estimated one-way latency).
func (s *Set) QueryHits(exclude string, at time.Time, center geom.Vec3, radius float64) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Hit
	for id, ledger := range s.ledgers {
		if id == exclude {
			continue
		}
		sample, ok := ledger.StateAt(at)
		if !ok {
			continue
		}
		dist := sample.Position.Distance(center)
		if dist <= radius {
			hits = append(hits, Hit{
				SessionID:     id,
				Position:      sample.Position,
				Distance:      dist,
				LowConfidence: sample.LowConfidence,
			})
		}
	}
	return hits
}
