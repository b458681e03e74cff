package session

import (
	"sync"
	"time"

	"github.com/virtarena/arena-server-go/internal/game/resource"
	"github.com/virtarena/arena-server-go/internal/geom"
)

// ViolationKind classifies a plausibility-check failure.
type ViolationKind int

const (
	ViolationSpeed ViolationKind = iota
	ViolationTeleport
	ViolationAcceleration
	ViolationRateLimit
	ViolationRapidAction
	ViolationStructural
)

var violationNames = map[ViolationKind]string{
	ViolationSpeed:        "SPEED",
	ViolationTeleport:     "TELEPORT",
	ViolationAcceleration: "ACCELERATION",
	ViolationRateLimit:    "RATE_LIMIT",
	ViolationRapidAction:  "RAPID_ACTION",
	ViolationStructural:   "STRUCTURAL",
}

func (k ViolationKind) String() string {
	if name, ok := violationNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ViolationRecord is one forensic log entry on a session.
type ViolationRecord struct {
	Time   time.Time
	Kind   ViolationKind
	Detail string
}

// Session is the server's authoritative record for one connected player.
// Clients never mutate it directly; they submit commands that the
// validators may accept, clamp, or reject.
//
// All fields below the mutex are guarded by it. The resource pool carries
// its own lock and may be read without holding the session lock.
type Session struct {
	ID   string
	Name string

	Energy *resource.Pool

	mu sync.Mutex

	position   geom.Vec3
	velocity   geom.Vec3
	rotation   float64
	health     float64
	lastUpdate time.Time
	lastSeen   time.Time

	// Per-ability cooldown expiry. Updated atomically with the energy
	// deduction on cast acceptance.
	cooldowns map[string]time.Time

	// Teleport grant set by privileged respawn logic: the next movement
	// near anchor before deadline is exempt from the teleport bound.
	teleportAnchor   geom.Vec3
	teleportDeadline time.Time

	castWindow RateLimitWindow

	speedViolations       int
	teleportViolations    int
	accelViolations       int
	rapidActionViolations int
	rateLimitViolations   int
	structuralViolations  int
	totalViolations       int
	suspected             bool
	violationHistory      []ViolationRecord
	violationHistoryCap   int
}

// New creates a session at the given spawn position with full energy.
func New(id, name string, spawn geom.Vec3, maxEnergy, regenPerSec float64, now time.Time, historyCap int) *Session {
	if historyCap <= 0 {
		historyCap = 50
	}
	return &Session{
		ID:                  id,
		Name:                name,
		Energy:              resource.NewPool(maxEnergy, regenPerSec),
		position:            spawn,
		health:              100,
		lastUpdate:          now,
		lastSeen:            now,
		cooldowns:           make(map[string]time.Time),
		violationHistoryCap: historyCap,
	}
}

// Kinematics returns the last authoritative position, velocity and the
// timestamp of the last accepted movement command.
func (s *Session) Kinematics() (pos, vel geom.Vec3, last time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, s.velocity, s.lastUpdate
}

// Position returns the last authoritative position.
func (s *Session) Position() geom.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Rotation returns the last authoritative yaw.
func (s *Session) Rotation() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation
}

// Health returns current health.
func (s *Session) Health() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// ApplyDamage reduces health, clamping at zero, and reports whether the
// session is still alive.
func (s *Session) ApplyDamage(amount float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health -= amount
	if s.health < 0 {
		s.health = 0
	}
	return s.health > 0
}

// Revive restores health after a respawn. Position is handled
// separately through ForcePosition.
func (s *Session) Revive(health float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = health
}

// Commit records an accepted movement command as the new authoritative
// kinematic state. lastUpdate only moves forward; the movement validator
// rejects stale timestamps before calling this.
func (s *Session) Commit(pos, vel geom.Vec3, rotation float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = pos
	s.velocity = vel
	s.rotation = rotation
	if ts.After(s.lastUpdate) {
		s.lastUpdate = ts
	}
	if ts.After(s.lastSeen) {
		s.lastSeen = ts
	}
}

// ForcePosition repositions the session bypassing validation (respawns,
// admin moves) and arms a teleport grant so the next movement command
// near the anchor is not flagged as a teleport.
func (s *Session) ForcePosition(pos geom.Vec3, now time.Time, grantWindow time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = pos
	s.velocity = geom.Vec3{}
	s.teleportAnchor = pos
	s.teleportDeadline = now.Add(grantWindow)
}

// TeleportGrant returns the active teleport anchor, if any.
func (s *Session) TeleportGrant(now time.Time) (geom.Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teleportDeadline.IsZero() || now.After(s.teleportDeadline) {
		return geom.Vec3{}, false
	}
	return s.teleportAnchor, true
}

// Touch marks the session as seen at the given time without accepting a
// movement command. Used by non-movement traffic for idle reaping.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
}

// LastSeen returns the time of the last accepted message of any kind.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// CooldownReady reports whether the ability's cooldown has elapsed.
func (s *Session) CooldownReady(kind string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.cooldowns[kind]
	return !ok || !now.Before(expiry)
}

// StartCooldown arms the ability's cooldown from now.
func (s *Session) StartCooldown(kind string, now time.Time, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[kind] = now.Add(d)
}

// ClearCooldown disarms the ability's cooldown. Used when an accepted
// cast is evicted before resolution and its commit is rolled back.
func (s *Session) ClearCooldown(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cooldowns, kind)
}

// CastWindow exposes the session's sliding-window limiter state. The
// caller must treat it as owned by the ability validator.
func (s *Session) CastWindow() *RateLimitWindow {
	return &s.castWindow
}

// RecordViolation appends to the forensic history and bumps counters.
// weight lets structural violations count heavier than plausibility ones.
// Returns the new weighted total.
func (s *Session) RecordViolation(kind ViolationKind, detail string, weight int, now time.Time) int {
	if weight <= 0 {
		weight = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case ViolationSpeed:
		s.speedViolations++
	case ViolationTeleport:
		s.teleportViolations++
	case ViolationAcceleration:
		s.accelViolations++
	case ViolationRateLimit:
		s.rateLimitViolations++
	case ViolationRapidAction:
		s.rapidActionViolations++
	case ViolationStructural:
		s.structuralViolations++
	}
	s.totalViolations += weight

	s.violationHistory = append(s.violationHistory, ViolationRecord{Time: now, Kind: kind, Detail: detail})
	if len(s.violationHistory) > s.violationHistoryCap {
		s.violationHistory = s.violationHistory[len(s.violationHistory)-s.violationHistoryCap:]
	}

	return s.totalViolations
}

// MarkSuspected flips the one-way suspicion flag. It is never cleared by
// gameplay; only ClearSuspected (admin surface) resets it.
func (s *Session) MarkSuspected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspected = true
}

// Suspected reports the suspicion flag.
func (s *Session) Suspected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspected
}

// ClearSuspected resets the suspicion flag. Reserved for the admin
// surface; nothing in the gameplay path calls this.
func (s *Session) ClearSuspected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspected = false
}

// Counters is a snapshot of the violation counters for telemetry.
type Counters struct {
	Speed       int
	Teleport    int
	Accel       int
	RateLimit   int
	RapidAction int
	Structural  int
	Total       int
}

// ViolationCounters returns a snapshot of the per-kind counters.
func (s *Session) ViolationCounters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counters{
		Speed:       s.speedViolations,
		Teleport:    s.teleportViolations,
		Accel:       s.accelViolations,
		RateLimit:   s.rateLimitViolations,
		RapidAction: s.rapidActionViolations,
		Structural:  s.structuralViolations,
		Total:       s.totalViolations,
	}
}

// ViolationHistory returns a copy of the bounded forensic log.
func (s *Session) ViolationHistory() []ViolationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ViolationRecord, len(s.violationHistory))
	copy(out, s.violationHistory)
	return out
}
