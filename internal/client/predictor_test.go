package client

import (
	"testing"

	"github.com/virtarena/arena-server-go/internal/geom"
)

func TestPredictor_ApplyInputIntegrates(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 64)

	pos := p.ApplyInput(Input{Tick: 1, Velocity: geom.Vec3{X: 5}, DT: 0.1})
	if pos.X != 0.5 {
		t.Errorf("expected x=0.5 after 5 units/s over 0.1s, got %v", pos.X)
	}
	if p.State() != StatePredicted {
		t.Errorf("expected PREDICTED, got %s", p.State())
	}
	if p.PendingInputs() != 1 {
		t.Errorf("expected 1 buffered input, got %d", p.PendingInputs())
	}
}

func TestPredictor_ClampsToMaxSpeed(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 64)

	// 100 units/s requested, clamped to 10.
	pos := p.ApplyInput(Input{Tick: 1, Velocity: geom.Vec3{X: 100}, DT: 1})
	if pos.X != 10 {
		t.Errorf("expected clamped displacement 10, got %v", pos.X)
	}
}

func TestPredictor_ConfirmationTrimsHistory(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 64)
	for tick := uint64(1); tick <= 3; tick++ {
		p.ApplyInput(Input{Tick: tick, Velocity: geom.Vec3{X: 5}, DT: 0.1})
	}

	// Server agrees with the tick-2 prediction (x=1.0).
	corrected := p.OnSnapshot(Snapshot{Position: geom.Vec3{X: 1.0}, Tick: 2})
	if corrected {
		t.Fatal("matching snapshot must not correct")
	}
	if p.PendingInputs() != 1 {
		t.Errorf("expected only tick 3 pending, got %d", p.PendingInputs())
	}
	if p.Corrections() != 0 {
		t.Errorf("expected 0 corrections, got %d", p.Corrections())
	}
}

func TestPredictor_SnapAndReplayOnDivergence(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 64)
	for tick := uint64(1); tick <= 3; tick++ {
		p.ApplyInput(Input{Tick: tick, Velocity: geom.Vec3{X: 5}, DT: 0.1})
	}

	// Server rejected something: authoritative tick-1 position differs
	// from the local x=0.5 by more than the threshold.
	corrected := p.OnSnapshot(Snapshot{Position: geom.Vec3{X: -1}, Tick: 1})
	if !corrected {
		t.Fatal("diverged snapshot must correct")
	}
	if p.Corrections() != 1 {
		t.Errorf("expected 1 correction, got %d", p.Corrections())
	}
	// Ticks 2 and 3 replayed on the corrected baseline: -1 + 0.5 + 0.5.
	if got := p.Position(); got.X != 0 {
		t.Errorf("expected replayed position 0, got %v", got.X)
	}
	if p.PendingInputs() != 2 {
		t.Errorf("expected ticks 2,3 still pending, got %d", p.PendingInputs())
	}
	if p.State() != StatePredicted {
		t.Errorf("expected PREDICTED after replay, got %s", p.State())
	}
}

func TestPredictor_DiscardsStaleSnapshot(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 64)
	p.ApplyInput(Input{Tick: 5, Velocity: geom.Vec3{X: 5}, DT: 0.1})
	p.OnSnapshot(Snapshot{Position: geom.Vec3{X: 0.5}, Tick: 5})

	// An out-of-order older snapshot must not move anything.
	before := p.Position()
	if p.OnSnapshot(Snapshot{Position: geom.Vec3{X: 99}, Tick: 3}) {
		t.Error("stale snapshot must be discarded")
	}
	if p.Position() != before {
		t.Errorf("stale snapshot moved the predictor: %v", p.Position())
	}
}

func TestPredictor_DiscardsDuplicateSnapshot(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 64)
	p.ApplyInput(Input{Tick: 5, Velocity: geom.Vec3{X: 5}, DT: 0.1})

	if p.OnSnapshot(Snapshot{Position: geom.Vec3{X: 0.5}, Tick: 5}) {
		t.Fatal("matching snapshot must not correct")
	}

	// A retransmitted copy of the same tick: the history entry is gone,
	// so re-applying it would take the mismatch path. It must be
	// discarded instead.
	before := p.Position()
	if p.OnSnapshot(Snapshot{Position: geom.Vec3{X: 0.5}, Tick: 5}) {
		t.Error("duplicate snapshot must not trigger a correction")
	}
	if p.Corrections() != 0 {
		t.Errorf("expected 0 corrections, got %d", p.Corrections())
	}
	if p.Position() != before {
		t.Errorf("duplicate snapshot moved the predictor: %v", p.Position())
	}
}

func TestPredictor_AdoptsAuthoritativeWhenIdle(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 64)

	corrected := p.OnSnapshot(Snapshot{Position: geom.Vec3{X: 7}, Velocity: geom.Vec3{X: 1}, Tick: 10})
	if corrected {
		t.Error("adopting state with no predictions is not a correction")
	}
	if p.Position().X != 7 {
		t.Errorf("expected adopted position 7, got %v", p.Position().X)
	}
	if p.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", p.State())
	}
}

func TestPredictor_IdleAfterAllConfirmed(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 64)
	p.ApplyInput(Input{Tick: 1, Velocity: geom.Vec3{X: 5}, DT: 0.1})
	p.OnSnapshot(Snapshot{Position: geom.Vec3{X: 0.5}, Tick: 1})
	if p.State() != StateIdle {
		t.Errorf("expected IDLE with empty history, got %s", p.State())
	}
}

func TestPredictor_HistoryBounded(t *testing.T) {
	p := NewPredictor(geom.Vec3{}, 10, 0.5, 8)
	for tick := uint64(1); tick <= 100; tick++ {
		p.ApplyInput(Input{Tick: tick, Velocity: geom.Vec3{X: 1}, DT: 0.01})
	}
	if p.PendingInputs() != 8 {
		t.Errorf("expected history capped at 8, got %d", p.PendingInputs())
	}
}
