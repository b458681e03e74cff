// Package client implements the client-side counterpart of the
// authoritative server: local prediction for responsiveness, and
// reconciliation against authoritative snapshots when they disagree.
package client

import (
	"fmt"

	"github.com/virtarena/arena-server-go/internal/geom"
)

// State is the predictor's explicit state machine. The loop has no
// terminal state; it runs until the session ends.
type State int

const (
	// StateIdle: no unconfirmed local input.
	StateIdle State = iota
	// StatePredicted: local inputs applied ahead of the server.
	StatePredicted
	// StateReconciling: snapping to authoritative state and replaying
	// buffered inputs. Transient within a single OnSnapshot call.
	StateReconciling
)

var stateNames = map[State]string{
	StateIdle:        "IDLE",
	StatePredicted:   "PREDICTED",
	StateReconciling: "RECONCILING",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE_%d", int(s))
}

// Input is one locally-applied movement input, kept until the server
// confirms the tick it was applied on.
type Input struct {
	Tick     uint64
	Velocity geom.Vec3
	DT       float64
}

// predictedEntry pairs an input with the position it produced.
type predictedEntry struct {
	input    Input
	position geom.Vec3
}

// Snapshot is the slice of an authoritative broadcast relevant to the
// local player.
type Snapshot struct {
	Position geom.Vec3
	Velocity geom.Vec3
	Tick     uint64
}

// Predictor applies inputs locally with the same movement model the
// server validates against, buffers them, and reconciles when an
// authoritative snapshot disagrees beyond the threshold.
type Predictor struct {
	maxSpeed  float64
	threshold float64

	state    State
	position geom.Vec3
	velocity geom.Vec3

	history     []predictedEntry
	historyCap  int
	lastApplied uint64 // newest snapshot tick applied, guards ordering

	corrections uint64
}

// NewPredictor creates a predictor starting at the given position.
// threshold is the positional divergence beyond which the client snaps
// and replays rather than trusting its prediction.
func NewPredictor(start geom.Vec3, maxSpeed, threshold float64, historyCap int) *Predictor {
	if historyCap <= 0 {
		historyCap = 128
	}
	return &Predictor{
		maxSpeed:   maxSpeed,
		threshold:  threshold,
		position:   start,
		historyCap: historyCap,
	}
}

// State returns the current machine state.
func (p *Predictor) State() State {
	return p.state
}

// Position returns the current predicted position.
func (p *Predictor) Position() geom.Vec3 {
	return p.position
}

// Corrections returns how many times the predictor has had to snap and
// replay. Repeated corrections are a visible signal of cheating or
// severe network conditions, by intent.
func (p *Predictor) Corrections() uint64 {
	return p.corrections
}

// PendingInputs returns the number of unconfirmed buffered inputs.
func (p *Predictor) PendingInputs() int {
	return len(p.history)
}

// step advances a position by one input using the shared movement
// model: velocity clamped to maxSpeed, then integrated over dt. The
// server's speed bound accepts exactly what this produces.
func (p *Predictor) step(pos geom.Vec3, in Input) geom.Vec3 {
	vel := in.Velocity
	if speed := vel.Length(); p.maxSpeed > 0 && speed > p.maxSpeed {
		vel = vel.Scale(p.maxSpeed / speed)
	}
	return pos.Add(vel.Scale(in.DT))
}

// ApplyInput applies a local input immediately and buffers it for later
// confirmation. Returns the predicted position to render and submit.
func (p *Predictor) ApplyInput(in Input) geom.Vec3 {
	p.position = p.step(p.position, in)
	p.velocity = in.Velocity

	p.history = append(p.history, predictedEntry{input: in, position: p.position})
	if len(p.history) > p.historyCap {
		p.history = p.history[len(p.history)-p.historyCap:]
	}

	p.state = StatePredicted
	return p.position
}

// OnSnapshot reconciles against an authoritative snapshot. Snapshots
// are applied in tick order; a snapshot at or before the last applied
// tick is discarded outright, so a retransmitted duplicate cannot
// trigger a second (spurious) reconciliation after the first one
// trimmed its history entry. Returns true if a correction (snap +
// replay) was performed.
func (p *Predictor) OnSnapshot(snap Snapshot) bool {
	if snap.Tick <= p.lastApplied {
		return false
	}
	p.lastApplied = snap.Tick

	// Find the stored prediction for the snapshot's tick.
	idx := -1
	for i, entry := range p.history {
		if entry.input.Tick == snap.Tick {
			idx = i
			break
		}
	}

	if idx >= 0 && p.history[idx].position.Distance(snap.Position) <= p.threshold {
		// Confirmed: drop the entry and everything older.
		p.history = p.history[idx+1:]
		if len(p.history) == 0 {
			p.state = StateIdle
		}
		return false
	}

	if idx < 0 && len(p.history) == 0 {
		// Nothing predicted; adopt the authoritative state directly.
		p.position = snap.Position
		p.velocity = snap.Velocity
		p.state = StateIdle
		return false
	}

	// Mismatch: snap to authoritative state and replay every buffered
	// input newer than the snapshot's tick on the corrected baseline.
	p.state = StateReconciling
	p.corrections++

	pos := snap.Position
	replay := p.history[:0:0]
	for _, entry := range p.history {
		if entry.input.Tick <= snap.Tick {
			continue
		}
		pos = p.step(pos, entry.input)
		replay = append(replay, predictedEntry{input: entry.input, position: pos})
	}

	p.history = replay
	p.position = pos
	if len(p.history) > 0 {
		p.state = StatePredicted
	} else {
		p.state = StateIdle
	}
	return true
}
