// Package movement validates client-claimed movement against physical
// plausibility bounds. The validator knows nothing about game rules;
// legitimate teleports (respawns) are whitelisted by the caller through
// session teleport grants and the injected spawn registry.
package movement

import (
	"fmt"
	"time"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/geom"
	"github.com/virtarena/arena-server-go/internal/session"
)

// Reason classifies why a movement command was not applied.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonStale: timestamp at or before the last accepted command.
	// Ordinary under packet reordering; not a violation.
	ReasonStale
	ReasonSpeed
	ReasonTeleport
	ReasonAcceleration
)

var reasonNames = map[Reason]string{
	ReasonNone:         "NONE",
	ReasonStale:        "STALE",
	ReasonSpeed:        "SPEED",
	ReasonTeleport:     "TELEPORT",
	ReasonAcceleration: "ACCELERATION",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("REASON_%d", int(r))
}

// Result is the outcome of one movement validation. Rejections are
// expected control flow, not errors; Violation distinguishes the
// plausibility failures that feed the anomaly tracker from benign
// rejections like staleness.
type Result struct {
	Accepted     bool
	Reason       Reason
	Violation    bool
	ImpliedSpeed float64
	Detail       string
}

// SpawnRegistry answers whether a position is close to a known spawn
// point. Injected so the validator carries no map knowledge.
type SpawnRegistry interface {
	NearSpawn(pos geom.Vec3, within float64) bool
}

// Reporter receives plausibility violations. Implemented by the anomaly
// tracker.
type Reporter interface {
	Report(s *session.Session, kind session.ViolationKind, detail string, now time.Time)
}

// Validator checks movement commands against configured bounds and, on
// acceptance, commits the new authoritative kinematic state.
type Validator struct {
	cfg     config.MovementConfig
	epsilon time.Duration
	spawns  SpawnRegistry
	report  Reporter
}

// NewValidator creates a movement validator. epsilon is the minimum
// delta-time used for speed computation, normally one tick interval, so
// two commands landing in the same tick cannot divide by zero.
func NewValidator(cfg config.MovementConfig, epsilon time.Duration, spawns SpawnRegistry, report Reporter) *Validator {
	if epsilon <= 0 {
		epsilon = time.Millisecond
	}
	return &Validator{cfg: cfg, epsilon: epsilon, spawns: spawns, report: report}
}

// ValidateAndApply runs the plausibility checks in order, short-
// circuiting on the first failure. On success the session's
// authoritative position, velocity and timestamp are updated.
func (v *Validator) ValidateAndApply(s *session.Session, claimedPos, claimedVel geom.Vec3, rotation float64, clientTS, now time.Time) Result {
	lastPos, lastVel, lastUpdate := s.Kinematics()

	// Staleness. Equal timestamps are duplicates under retransmission.
	if !clientTS.After(lastUpdate) {
		return Result{Reason: ReasonStale}
	}

	dt := clientTS.Sub(lastUpdate)
	if dt < v.epsilon {
		dt = v.epsilon
	}
	dtSec := dt.Seconds()

	displacement := claimedPos.Distance(lastPos)
	impliedSpeed := displacement / dtSec

	if impliedSpeed > v.cfg.SpeedHackThreshold {
		if !v.teleportExempt(s, claimedPos, now) {
			detail := fmt.Sprintf("implied speed %.1f exceeds hard ceiling %.1f", impliedSpeed, v.cfg.SpeedHackThreshold)
			v.report.Report(s, session.ViolationTeleport, detail, now)
			return Result{Reason: ReasonTeleport, Violation: true, ImpliedSpeed: impliedSpeed, Detail: detail}
		}
		// Whitelisted teleport: skip the speed and acceleration bounds,
		// the jump is discontinuous by construction.
		s.Commit(claimedPos, claimedVel, rotation, clientTS)
		return Result{Accepted: true, ImpliedSpeed: impliedSpeed}
	}

	if maxAllowed := v.cfg.MaxSpeed * v.cfg.ToleranceMultiplier; impliedSpeed > maxAllowed {
		detail := fmt.Sprintf("implied speed %.1f exceeds %.1f", impliedSpeed, maxAllowed)
		v.report.Report(s, session.ViolationSpeed, detail, now)
		return Result{Reason: ReasonSpeed, Violation: true, ImpliedSpeed: impliedSpeed, Detail: detail}
	}

	if v.cfg.MaxAcceleration > 0 {
		accel := claimedVel.Sub(lastVel).Length() / dtSec
		if accel > v.cfg.MaxAcceleration {
			detail := fmt.Sprintf("implied acceleration %.1f exceeds %.1f", accel, v.cfg.MaxAcceleration)
			v.report.Report(s, session.ViolationAcceleration, detail, now)
			return Result{Reason: ReasonAcceleration, Violation: true, ImpliedSpeed: impliedSpeed, Detail: detail}
		}
	}

	s.Commit(claimedPos, claimedVel, rotation, clientTS)
	return Result{Accepted: true, ImpliedSpeed: impliedSpeed}
}

// teleportExempt reports whether a discontinuous jump to pos is covered
// by a respawn grant or lands near a registered spawn point.
func (v *Validator) teleportExempt(s *session.Session, pos geom.Vec3, now time.Time) bool {
	if anchor, ok := s.TeleportGrant(now); ok {
		if pos.Distance(anchor) <= v.cfg.TeleportAnchorRange {
			return true
		}
	}
	if v.spawns != nil && v.spawns.NearSpawn(pos, v.cfg.TeleportAnchorRange) {
		return true
	}
	return false
}
