package anomaly

import (
	"testing"
	"time"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/geom"
	"github.com/virtarena/arena-server-go/internal/session"
	"go.uber.org/zap"
)

type stubEscalator struct {
	corrections int
	disconnects int
	lastReason  string
}

func (e *stubEscalator) ForceCorrection(sessionID string) { e.corrections++ }
func (e *stubEscalator) Disconnect(sessionID, reason string) {
	e.disconnects++
	e.lastReason = reason
}

type recordingSink struct {
	records  int
	lastKind string
}

func (s *recordingSink) RecordViolation(sessionID, kind, detail string, counters session.Counters, at time.Time) {
	s.records++
	s.lastKind = kind
}

func testAnomalyConfig() config.AnomalyConfig {
	return config.AnomalyConfig{
		WarnThreshold:       3,
		CorrectThreshold:    10,
		DisconnectThreshold: 25,
		StructuralWeight:    2,
		HistoryCap:          50,
	}
}

func newTracked(now time.Time) *session.Session {
	return session.New("sess-1", "tester", geom.Vec3{}, 100, 5, now, 50)
}

func report(t *Tracker, s *session.Session, kind session.ViolationKind, n int, now time.Time) {
	for i := 0; i < n; i++ {
		t.Report(s, kind, "test", now)
	}
}

func TestTracker_EscalationTiers(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTracked(now)
	esc := &stubEscalator{}
	tr := NewTracker(testAnomalyConfig(), nil, zap.NewNop())
	tr.SetEscalator(esc)

	// Below warn: nothing happens.
	report(tr, s, session.ViolationSpeed, 2, now)
	if s.Suspected() || esc.corrections != 0 || esc.disconnects != 0 {
		t.Fatal("no action expected below the warn threshold")
	}

	// Third violation crosses warn: suspected, no transport action yet.
	report(tr, s, session.ViolationSpeed, 1, now)
	if !s.Suspected() {
		t.Error("expected suspected at warn threshold")
	}
	if esc.corrections != 0 {
		t.Error("warn tier must not force corrections")
	}

	// Up to the correction threshold.
	report(tr, s, session.ViolationSpeed, 7, now)
	if esc.corrections != 1 {
		t.Errorf("expected 1 forced correction at total 10, got %d", esc.corrections)
	}
	if esc.disconnects != 0 {
		t.Error("correction tier must not disconnect")
	}

	// Every further violation in the correction band repeats the snap.
	report(tr, s, session.ViolationSpeed, 5, now)
	if esc.corrections != 6 {
		t.Errorf("expected 6 corrections at total 15, got %d", esc.corrections)
	}

	// Crossing the disconnect threshold tears the session down. The
	// totals 16 through 24 still land in the correction band first.
	report(tr, s, session.ViolationSpeed, 10, now)
	if esc.disconnects != 1 {
		t.Errorf("expected 1 disconnect at total 25, got %d", esc.disconnects)
	}
	if esc.lastReason == "" {
		t.Error("disconnect must carry a reason")
	}
	if esc.corrections != 15 {
		t.Errorf("expected corrections for totals 10-24 only, got %d", esc.corrections)
	}
}

func TestTracker_StructuralWeight(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTracked(now)
	tr := NewTracker(testAnomalyConfig(), nil, zap.NewNop())
	tr.SetEscalator(&stubEscalator{})

	// Two structural violations at weight 2 reach warn threshold 3.
	report(tr, s, session.ViolationStructural, 2, now)
	if got := s.ViolationCounters().Total; got != 4 {
		t.Errorf("expected weighted total 4, got %d", got)
	}
	if !s.Suspected() {
		t.Error("weighted structural violations must cross the warn threshold")
	}
	if got := s.ViolationCounters().Structural; got != 2 {
		t.Errorf("per-kind counter counts events, not weight: got %d", got)
	}
}

func TestTracker_SuspicionIsSticky(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTracked(now)
	tr := NewTracker(testAnomalyConfig(), nil, zap.NewNop())
	tr.SetEscalator(&stubEscalator{})

	report(tr, s, session.ViolationTeleport, 3, now)
	if !s.Suspected() {
		t.Fatal("expected suspected")
	}
	// More reports never clear it; only the admin surface can.
	report(tr, s, session.ViolationTeleport, 1, now)
	if !s.Suspected() {
		t.Error("suspicion must persist")
	}
	s.ClearSuspected()
	if s.Suspected() {
		t.Error("explicit clear must take effect")
	}
}

func TestTracker_SinkReceivesEveryViolation(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newTracked(now)
	sink := &recordingSink{}
	tr := NewTracker(testAnomalyConfig(), sink, zap.NewNop())
	tr.SetEscalator(&stubEscalator{})

	report(tr, s, session.ViolationRateLimit, 2, now)
	if sink.records != 2 {
		t.Errorf("expected 2 sink records, got %d", sink.records)
	}
	if sink.lastKind != session.ViolationRateLimit.String() {
		t.Errorf("unexpected sink kind %q", sink.lastKind)
	}
}
