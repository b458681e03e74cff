// Package anomaly aggregates validator rejections into per-session
// suspicion state and escalates the response. Violations are never
// forgiven: the design deliberately tolerates false positives (a
// wrongly flagged player costs a manual review) over false negatives
// (a cheater persisting).
package anomaly

import (
	"time"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/session"
	"go.uber.org/zap"
)

// Sink receives violation records for persistence. Implementations must
// not block the caller.
type Sink interface {
	RecordViolation(sessionID string, kind string, detail string, counters session.Counters, at time.Time)
}

// Escalator carries out the tracker's decisions against the transport:
// snapping a client back to authoritative state, or tearing the session
// down entirely.
type Escalator interface {
	ForceCorrection(sessionID string)
	Disconnect(sessionID string, reason string)
}

// Tracker implements the three-tier escalation policy over the
// configured thresholds: log only, forced correction, disconnect.
type Tracker struct {
	cfg    config.AnomalyConfig
	logger *zap.Logger
	sink   Sink
	esc    Escalator
}

// NewTracker creates a tracker. sink may be nil (log-only telemetry);
// esc must be set before the first Report via SetEscalator.
func NewTracker(cfg config.AnomalyConfig, sink Sink, logger *zap.Logger) *Tracker {
	return &Tracker{cfg: cfg, sink: sink, logger: logger}
}

// SetEscalator wires the transport-side escalation actions. Separate
// from the constructor because the engine and tracker reference each
// other.
func (t *Tracker) SetEscalator(esc Escalator) {
	t.esc = esc
}

// Report records a violation against the session and escalates if a
// threshold is crossed. Structural violations count at the configured
// weight; everything else counts once.
func (t *Tracker) Report(s *session.Session, kind session.ViolationKind, detail string, now time.Time) {
	weight := 1
	if kind == session.ViolationStructural && t.cfg.StructuralWeight > 1 {
		weight = t.cfg.StructuralWeight
	}

	total := s.RecordViolation(kind, detail, weight, now)

	t.logger.Debug("violation recorded",
		zap.String("session_id", s.ID),
		zap.Stringer("kind", kind),
		zap.String("detail", detail),
		zap.Int("total", total),
	)

	if t.sink != nil {
		t.sink.RecordViolation(s.ID, kind.String(), detail, s.ViolationCounters(), now)
	}

	if total >= t.cfg.WarnThreshold && !s.Suspected() {
		s.MarkSuspected()
		t.logger.Warn("session marked suspected",
			zap.String("session_id", s.ID),
			zap.String("name", s.Name),
			zap.Int("total", total),
		)
	}

	switch {
	case total >= t.cfg.DisconnectThreshold:
		t.logger.Warn("violation threshold: disconnecting session",
			zap.String("session_id", s.ID),
			zap.Int("total", total),
		)
		if t.esc != nil {
			t.esc.Disconnect(s.ID, "anomaly threshold exceeded")
		}
	case total >= t.cfg.CorrectThreshold:
		t.logger.Warn("violation threshold: forcing correction",
			zap.String("session_id", s.ID),
			zap.Int("total", total),
		)
		if t.esc != nil {
			t.esc.ForceCorrection(s.ID)
		}
	}
}
