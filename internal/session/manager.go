package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/virtarena/arena-server-go/internal/geom"
	"go.uber.org/zap"
)

// ErrUnknownSession is returned when an operation names a session id
// that is not (or no longer) registered. Callers passing ids they never
// obtained from Create are contract violations.
var ErrUnknownSession = errors.New("unknown session")

// ErrServerFull is returned when the session table is at capacity.
var ErrServerFull = errors.New("server full")

// Manager is the session table: the single owner of session lifecycle.
// Sessions exist from Create until Remove; no ambient global state.
type Manager struct {
	logger *zap.Logger

	maxSessions int
	maxEnergy   float64
	regenPerSec float64
	historyCap  int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session table.
func NewManager(maxSessions int, maxEnergy, regenPerSec float64, historyCap int, logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		maxSessions: maxSessions,
		maxEnergy:   maxEnergy,
		regenPerSec: regenPerSec,
		historyCap:  historyCap,
		sessions:    make(map[string]*Session),
	}
}

// Create registers a new session at the given spawn point and returns
// it. The connection-approval hook runs before this in the transport
// layer; by the time Create is called the connection is trusted enough
// to own state.
func (m *Manager) Create(name string, spawn geom.Vec3, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("create session for %q: %w", name, ErrServerFull)
	}

	id := uuid.NewString()
	s := New(id, name, spawn, m.maxEnergy, m.regenPerSec, now, m.historyCap)
	m.sessions[id] = s

	m.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("name", name),
		zap.Int("active", len(m.sessions)),
	)
	return s, nil
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove tears down a session. Idempotent; removing an unknown id is a
// no-op so disconnect races are harmless.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if ok {
		m.logger.Info("session removed",
			zap.String("session_id", id),
			zap.String("name", s.Name),
			zap.Int("active", active),
		)
	}
}

// ForEach calls fn for every registered session. fn must not call back
// into the manager.
func (m *Manager) ForEach(fn func(*Session)) {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IdleSessions returns ids of sessions with no accepted message since
// the cutoff.
func (m *Manager) IdleSessions(cutoff time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}
