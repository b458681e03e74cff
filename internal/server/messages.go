package server

import (
	"github.com/virtarena/arena-server-go/internal/game"
	"github.com/virtarena/arena-server-go/internal/geom"
)

// Client-to-server message types. The set is closed; anything else is a
// structural violation.
const (
	msgJoin = "join"
	msgMove = "move"
	msgCast = "cast"
)

// Server-to-client message types.
const (
	msgWelcome      = "welcome"
	msgState        = "state"
	msgReject       = "reject"
	msgCastResolved = "cast_resolved"
	msgCorrection   = "force_correction"
	msgTerminated   = "session_terminated"
)

// clientMessage is the inbound JSON envelope. Fields are populated per
// Type; unused ones stay zero.
type clientMessage struct {
	Type string `json:"type"`

	// join
	Token string `json:"token,omitempty"`

	// move
	Position geom.Vec3 `json:"position,omitempty"`
	Velocity geom.Vec3 `json:"velocity,omitempty"`
	Rotation float64   `json:"rotation,omitempty"`

	// cast
	Kind   string    `json:"kind,omitempty"`
	Target geom.Vec3 `json:"target,omitempty"`

	// ClientTime is the sender's timestamp in unix milliseconds,
	// shared by move and cast.
	ClientTime int64 `json:"t,omitempty"`
}

// serverMessage is the outbound JSON envelope.
type serverMessage struct {
	Type string `json:"type"`

	SessionID string `json:"sessionId,omitempty"`
	Tick      uint64 `json:"tick,omitempty"`

	Snapshots []game.StateSnapshot    `json:"snapshots,omitempty"`
	Cast      *game.CastResolvedEvent `json:"cast,omitempty"`
	Position  *geom.Vec3              `json:"position,omitempty"`

	// Reject/terminate details. Reason is a machine-readable code.
	Command string `json:"command,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}
