package ability

import (
	"testing"
	"time"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/geom"
	"github.com/virtarena/arena-server-go/internal/session"
)

type stubReporter struct {
	kinds []session.ViolationKind
}

func (r *stubReporter) Report(s *session.Session, kind session.ViolationKind, detail string, now time.Time) {
	s.RecordViolation(kind, detail, 1, now)
	r.kinds = append(r.kinds, kind)
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := NewCatalog([]config.AbilityConfig{
		{Kind: "fireball", Cooldown: 5 * time.Second, Cost: 20, Range: 30, Radius: 2.5},
		{Kind: "blink_strike", Cooldown: 5 * time.Second, Cost: 20, Range: 30, Radius: 1.5},
		{Kind: "frost_nova", Cooldown: 5 * time.Second, Cost: 20, Range: 30, Radius: 4},
		{Kind: "arcane_bolt", Cooldown: 5 * time.Second, Cost: 20, Range: 30},
	}, 2.0)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func testCastingConfig() config.CastingConfig {
	return config.CastingConfig{
		WindowDuration:   time.Second,
		MaxCastsPerWin:   3,
		MinCastInterval:  100 * time.Millisecond,
		MaxRapidCasts:    2,
		QueueCapacity:    16,
		ResolvePerTick:   8,
		DefaultHitRadius: 2.0,
	}
}

func newCastSession(energy float64, now time.Time) *session.Session {
	return session.New("sess-1", "tester", geom.Vec3{}, energy, 0, now, 50)
}

func TestValidateCast_AcceptCommitsCostAndCooldown(t *testing.T) {
	base := time.Unix(1000, 0)
	s := newCastSession(100, base)
	q := NewQueue(16)
	v := NewValidator(testCatalog(t), testCastingConfig(), q, &stubReporter{})

	res, dropped := v.ValidateCast(s, "fireball", geom.Vec3{X: 10}, base, base)
	if !res.Accepted {
		t.Fatalf("expected acceptance, got %+v", res)
	}
	if dropped != nil {
		t.Error("no overflow expected on an empty queue")
	}
	if got := s.Energy.Current(); got != 80 {
		t.Errorf("expected 80 energy after 20-cost cast, got %.1f", got)
	}
	if s.CooldownReady("fireball", base.Add(time.Second)) {
		t.Error("fireball must be on cooldown 1s after casting")
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 queued cast, got %d", q.Len())
	}
}

func TestValidateCast_UnknownKindIsStructural(t *testing.T) {
	base := time.Unix(1000, 0)
	s := newCastSession(100, base)
	rep := &stubReporter{}
	v := NewValidator(testCatalog(t), testCastingConfig(), NewQueue(16), rep)

	res, _ := v.ValidateCast(s, "meteor_storm", geom.Vec3{}, base, base)
	if res.Reason != ReasonUnknownKind || !res.Violation {
		t.Fatalf("expected structural unknown-kind rejection, got %+v", res)
	}
	if len(rep.kinds) != 1 || rep.kinds[0] != session.ViolationStructural {
		t.Errorf("expected one structural report, got %v", rep.kinds)
	}
}

func TestValidateCast_CooldownIsTransient(t *testing.T) {
	base := time.Unix(1000, 0)
	s := newCastSession(100, base)
	rep := &stubReporter{}
	v := NewValidator(testCatalog(t), testCastingConfig(), NewQueue(16), rep)

	if res, _ := v.ValidateCast(s, "fireball", geom.Vec3{}, base, base); !res.Accepted {
		t.Fatalf("first cast rejected: %+v", res)
	}
	at := base.Add(time.Second)
	res, _ := v.ValidateCast(s, "fireball", geom.Vec3{}, at, at)
	if res.Reason != ReasonCooldown || res.Violation {
		t.Fatalf("expected transient cooldown rejection, got %+v", res)
	}
	if got := s.Energy.Current(); got != 80 {
		t.Errorf("cooldown rejection must not spend energy, got %.1f", got)
	}
	if len(rep.kinds) != 0 {
		t.Errorf("cooldown rejection must not be reported, got %v", rep.kinds)
	}
}

// A cast costing more than the remaining energy is rejected without
// touching the pool, arming the cooldown, or counting against the rate
// window, so the client can retry once regeneration catches up.
func TestValidateCast_InsufficientEnergyLeavesStateUntouched(t *testing.T) {
	base := time.Unix(1000, 0)
	s := newCastSession(15, base)
	rep := &stubReporter{}
	q := NewQueue(16)
	v := NewValidator(testCatalog(t), testCastingConfig(), q, rep)

	res, _ := v.ValidateCast(s, "fireball", geom.Vec3{X: 5}, base, base)
	if res.Reason != ReasonResource || res.Violation {
		t.Fatalf("expected transient resource rejection, got %+v", res)
	}
	if got := s.Energy.Current(); got != 15 {
		t.Errorf("energy must be untouched, got %.1f", got)
	}
	if !s.CooldownReady("fireball", base) {
		t.Error("rejected cast must not arm the cooldown")
	}
	if count, _ := s.CastWindow().Snapshot(); count != 0 {
		t.Errorf("rejected cast must not count against the window, got %d", count)
	}
	if q.Len() != 0 {
		t.Error("rejected cast must not be queued")
	}
	if len(rep.kinds) != 0 {
		t.Errorf("resource rejection must not be reported, got %v", rep.kinds)
	}
}

// Matches the burst scenario where a client fills the per-window quota
// with distinct abilities: the fourth cast in the same window trips the
// rate limit, and only the rate-limit counter moves.
func TestValidateCast_WindowLimit(t *testing.T) {
	base := time.Unix(1000, 0)
	s := newCastSession(200, base)
	rep := &stubReporter{}
	v := NewValidator(testCatalog(t), testCastingConfig(), NewQueue(16), rep)

	kinds := []string{"fireball", "blink_strike", "frost_nova"}
	for i, kind := range kinds {
		at := base.Add(time.Duration(i) * 200 * time.Millisecond)
		if res, _ := v.ValidateCast(s, kind, geom.Vec3{}, at, at); !res.Accepted {
			t.Fatalf("cast %d (%s) rejected: %+v", i, kind, res)
		}
	}

	at := base.Add(800 * time.Millisecond)
	res, _ := v.ValidateCast(s, "arcane_bolt", geom.Vec3{}, at, at)
	if res.Reason != ReasonRateLimit || !res.Violation {
		t.Fatalf("expected rate-limit rejection for fourth cast in window, got %+v", res)
	}
	c := s.ViolationCounters()
	if c.RateLimit != 1 {
		t.Errorf("expected rateLimit counter 1, got %d", c.RateLimit)
	}
	if c.RapidAction != 0 {
		t.Errorf("window rejection must not touch the rapid counter, got %d", c.RapidAction)
	}

	// The window rolls after a full duration; the same cast then passes.
	at = base.Add(1100 * time.Millisecond)
	if res, _ := v.ValidateCast(s, "arcane_bolt", geom.Vec3{}, at, at); !res.Accepted {
		t.Fatalf("cast after window roll rejected: %+v", res)
	}
}

func TestValidateCast_RapidBurst(t *testing.T) {
	cfg := testCastingConfig()
	cfg.MaxCastsPerWin = 100 // isolate the burst guard
	base := time.Unix(1000, 0)
	s := newCastSession(500, base)
	rep := &stubReporter{}
	v := NewValidator(testCatalog(t), cfg, NewQueue(64), rep)

	// Four distinct abilities 10ms apart: streaks 0,1,2 are within
	// MaxRapidCasts 2, the fourth attempt exceeds it.
	kinds := []string{"fireball", "blink_strike", "frost_nova"}
	for i, kind := range kinds {
		at := base.Add(time.Duration(i) * 10 * time.Millisecond)
		if res, _ := v.ValidateCast(s, kind, geom.Vec3{}, at, at); !res.Accepted {
			t.Fatalf("cast %d (%s) rejected: %+v", i, kind, res)
		}
	}

	at := base.Add(30 * time.Millisecond)
	res, _ := v.ValidateCast(s, "arcane_bolt", geom.Vec3{}, at, at)
	if res.Reason != ReasonBurst || !res.Violation {
		t.Fatalf("expected burst rejection, got %+v", res)
	}
	if got := s.ViolationCounters().RapidAction; got != 1 {
		t.Errorf("expected rapidAction counter 1, got %d", got)
	}
}

func TestValidateCast_RangeUsesAuthoritativePosition(t *testing.T) {
	base := time.Unix(1000, 0)
	s := newCastSession(100, base)
	rep := &stubReporter{}
	v := NewValidator(testCatalog(t), testCastingConfig(), NewQueue(16), rep)

	res, _ := v.ValidateCast(s, "fireball", geom.Vec3{X: 31}, base, base)
	if res.Reason != ReasonRange || res.Violation {
		t.Fatalf("expected transient range rejection, got %+v", res)
	}
	if got := s.Energy.Current(); got != 100 {
		t.Errorf("range rejection must not spend energy, got %.1f", got)
	}
	if len(rep.kinds) != 0 {
		t.Errorf("range rejection must not be reported, got %v", rep.kinds)
	}
}
