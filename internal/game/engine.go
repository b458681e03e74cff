// Package game hosts the authoritative engine: the single owner of
// session state, validators, the cast resolution queue, and the
// fixed-rate simulation tick.
package game

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/game/ability"
	"github.com/virtarena/arena-server-go/internal/game/anomaly"
	"github.com/virtarena/arena-server-go/internal/game/history"
	"github.com/virtarena/arena-server-go/internal/game/movement"
	"github.com/virtarena/arena-server-go/internal/geom"
	"github.com/virtarena/arena-server-go/internal/session"
	"go.uber.org/zap"
)

const respawnHealth = 100

// StateSnapshot is one session's entry in the periodic authoritative
// broadcast.
type StateSnapshot struct {
	SessionID string    `json:"sessionId"`
	Position  geom.Vec3 `json:"position"`
	Velocity  geom.Vec3 `json:"velocity"`
	Rotation  float64   `json:"rotation"`
	Health    float64   `json:"health"`
	Tick      uint64    `json:"tick"`
}

// CastResolvedEvent is broadcast once a queued cast resolves.
type CastResolvedEvent struct {
	CasterID        string        `json:"casterId"`
	Kind            string        `json:"kind"`
	Target          geom.Vec3     `json:"target"`
	ServerTimestamp time.Time     `json:"serverTimestamp"`
	Hits            []history.Hit `json:"hits,omitempty"`
}

// Broadcaster is the outbound half of the transport, consumed by the
// engine. All methods must be non-blocking from the tick loop's point
// of view.
type Broadcaster interface {
	BroadcastSnapshots(snaps []StateSnapshot)
	BroadcastCastResolved(ev CastResolvedEvent)
	SendForceCorrection(sessionID string, pos geom.Vec3, tick uint64)
	TerminateSession(sessionID string, reason string)
}

// Stats are the engine's cumulative counters, exposed for the metrics
// endpoint.
type Stats struct {
	MovementsAccepted uint64
	MovementsRejected uint64
	CastsAccepted     uint64
	CastsRejected     uint64
	CastsResolved     uint64
	QueueDrops        uint64
	ForcedCorrections uint64
	Disconnects       uint64
	Tick              uint64
}

type engineStats struct {
	movementsAccepted atomic.Uint64
	movementsRejected atomic.Uint64
	castsAccepted     atomic.Uint64
	castsRejected     atomic.Uint64
	castsResolved     atomic.Uint64
	forcedCorrections atomic.Uint64
	disconnects       atomic.Uint64
}

// abilityDamage is the flat damage applied per resolved hit. Balance
// values are not this subsystem's concern; one knob keeps resolution
// observable in tests.
const abilityDamage = 25

// Engine validates incoming commands synchronously and advances the
// authoritative simulation at a fixed tick rate. Validation never
// blocks on the tick; per-session mutation is serialized by the
// session's own lock.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	sessions *session.Manager
	spawns   *SpawnRegistry
	movement *movement.Validator
	casts    *ability.Validator
	queue    *ability.Queue
	ledgers  *history.Set

	broadcaster Broadcaster
	now         func() time.Time

	tick  atomic.Uint64
	stats engineStats
}

// Reporter is the violation reporting dependency shared by both
// validators; satisfied by the anomaly tracker.
type Reporter interface {
	Report(s *session.Session, kind session.ViolationKind, detail string, now time.Time)
}

// NewEngine wires the validators, queue and ledgers around the session
// table.
func NewEngine(cfg *config.Config, sessions *session.Manager, reporter Reporter, logger *zap.Logger) (*Engine, error) {
	catalog, err := ability.NewCatalog(cfg.Abilities, cfg.Casting.DefaultHitRadius)
	if err != nil {
		return nil, err
	}

	spawns := NewSpawnRegistry(cfg.World)
	queue := ability.NewQueue(cfg.Casting.QueueCapacity)

	horizonTicks := int(cfg.Server.HistoryHorizon / cfg.TickInterval())
	if horizonTicks < 2 {
		horizonTicks = 2
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		spawns:   spawns,
		movement: movement.NewValidator(cfg.Movement, cfg.TickInterval(), spawns, reporter),
		casts:    ability.NewValidator(catalog, cfg.Casting, queue, reporter),
		queue:    queue,
		ledgers:  history.NewSet(horizonTicks),
		now:      time.Now,
	}
	return e, nil
}

// SetBroadcaster wires the outbound transport. Must be called before
// Run.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// SetClock overrides the engine clock; tests use this to drive
// deterministic time.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Sessions exposes the session table for the transport and admin
// surfaces.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Tick returns the current tick number.
func (e *Engine) Tick() uint64 {
	return e.tick.Load()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		MovementsAccepted: e.stats.movementsAccepted.Load(),
		MovementsRejected: e.stats.movementsRejected.Load(),
		CastsAccepted:     e.stats.castsAccepted.Load(),
		CastsRejected:     e.stats.castsRejected.Load(),
		CastsResolved:     e.stats.castsResolved.Load(),
		QueueDrops:        e.queue.Dropped(),
		ForcedCorrections: e.stats.forcedCorrections.Load(),
		Disconnects:       e.stats.disconnects.Load(),
		Tick:              e.tick.Load(),
	}
}

// Connect creates a session at a spawn point and registers its ledger.
// The connection-approval hook has already run in the transport layer.
func (e *Engine) Connect(name string) (*session.Session, error) {
	now := e.now()
	spawn := e.spawns.Pick()

	s, err := e.sessions.Create(name, spawn, now)
	if err != nil {
		return nil, err
	}

	e.ledgers.Register(s.ID)
	e.appendSnapshot(s, now)
	return s, nil
}

// Disconnect tears down a session's state. Queued casts for the session
// are left in the queue; server-authoritative effects may legitimately
// outlive their caster, and resolution tolerates the missing session.
func (e *Engine) Disconnect(sessionID string) {
	e.sessions.Remove(sessionID)
	e.ledgers.Unregister(sessionID)
}

// SubmitMovement validates a client movement command against the
// session's authoritative state.
func (e *Engine) SubmitMovement(sessionID string, pos, vel geom.Vec3, rotation float64, clientTS time.Time) (movement.Result, error) {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return movement.Result{}, session.ErrUnknownSession
	}

	now := e.now()
	s.Touch(now)

	res := e.movement.ValidateAndApply(s, pos, vel, rotation, clientTS, now)
	if res.Accepted {
		e.stats.movementsAccepted.Add(1)
	} else {
		e.stats.movementsRejected.Add(1)
	}
	return res, nil
}

// SubmitCast validates a client ability-cast request and, on success,
// queues it for resolution.
func (e *Engine) SubmitCast(sessionID, kind string, target geom.Vec3, clientTS time.Time) (ability.Result, error) {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return ability.Result{}, session.ErrUnknownSession
	}

	now := e.now()
	s.Touch(now)

	res, dropped := e.casts.ValidateCast(s, kind, target, clientTS, now)
	if res.Accepted {
		e.stats.castsAccepted.Add(1)
	} else {
		e.stats.castsRejected.Add(1)
	}

	if dropped != nil {
		e.refundDropped(*dropped)
	}
	return res, nil
}

// ForcePosition is the privileged reposition entry point for respawn
// and admin logic. It bypasses validation, never counts as a violation,
// and arms a teleport grant for the session's next movement command.
func (e *Engine) ForcePosition(sessionID string, pos geom.Vec3) error {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return session.ErrUnknownSession
	}
	now := e.now()
	s.ForcePosition(pos, now, e.cfg.Movement.TeleportGrantWindow)
	e.appendSnapshot(s, now)
	return nil
}

// StateAt rewinds a session to the given timestamp through its ledger.
func (e *Engine) StateAt(sessionID string, ts time.Time) (history.Sample, error) {
	l, ok := e.ledgers.Ledger(sessionID)
	if !ok {
		return history.Sample{}, session.ErrUnknownSession
	}
	sample, ok := l.StateAt(ts)
	if !ok {
		return history.Sample{}, session.ErrUnknownSession
	}
	return sample, nil
}

// RewindQuery finds sessions within radius of center at the shooter's
// perceived time. Used by hit validation.
func (e *Engine) RewindQuery(shooterID string, perceived time.Time, center geom.Vec3, radius float64) []history.Hit {
	return e.ledgers.QueryHits(shooterID, perceived, center, radius)
}

// ForceCorrection implements the anomaly escalation: snap the client
// back to the authoritative position, one-way.
func (e *Engine) ForceCorrection(sessionID string) {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return
	}
	e.stats.forcedCorrections.Add(1)
	if e.broadcaster != nil {
		e.broadcaster.SendForceCorrection(sessionID, s.Position(), e.tick.Load())
	}
}

// DisconnectForAnomaly implements the terminal escalation tier:
// notify, then tear the session down.
func (e *Engine) DisconnectForAnomaly(sessionID, reason string) {
	e.stats.disconnects.Add(1)
	if e.broadcaster != nil {
		e.broadcaster.TerminateSession(sessionID, reason)
	}
	e.Disconnect(sessionID)
}

// escalator adapts the engine to the anomaly tracker's Escalator
// interface.
type escalator struct {
	e *Engine
}

func (a escalator) ForceCorrection(sessionID string) {
	a.e.ForceCorrection(sessionID)
}

func (a escalator) Disconnect(sessionID, reason string) {
	a.e.DisconnectForAnomaly(sessionID, reason)
}

// Escalator returns the engine's anomaly escalation adapter.
func (e *Engine) Escalator() anomaly.Escalator {
	return escalator{e}
}

// Run drives the fixed-rate simulation loop until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("simulation loop started",
		zap.Duration("tick_interval", interval),
		zap.Int("snapshot_every_ticks", e.cfg.Server.SnapshotEveryTicks),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("simulation loop stopped", zap.Uint64("tick", e.tick.Load()))
			return
		case <-ticker.C:
			e.step(interval)
		}
	}
}

// step advances the simulation one tick. Cost is bounded: K cast
// resolutions plus O(sessions) regen and ledger appends.
func (e *Engine) step(interval time.Duration) {
	tick := e.tick.Add(1)
	now := e.now()
	dt := interval.Seconds()

	e.sessions.ForEach(func(s *session.Session) {
		s.Energy.Regen(dt)
		e.appendSnapshot(s, now)
	})

	e.resolveCasts(now)

	if tick%uint64(e.cfg.Server.SnapshotEveryTicks) == 0 {
		e.broadcastState(tick)
	}

	if e.cfg.Server.IdleTimeout > 0 {
		for _, id := range e.sessions.IdleSessions(now.Add(-e.cfg.Server.IdleTimeout)) {
			e.logger.Info("reaping idle session", zap.String("session_id", id))
			if e.broadcaster != nil {
				e.broadcaster.TerminateSession(id, "idle timeout")
			}
			e.Disconnect(id)
		}
	}
}

// resolveCasts drains at most ResolvePerTick casts and applies their
// effects with lag compensation: targets are rewound to the caster's
// perceived time before the radius check.
func (e *Engine) resolveCasts(now time.Time) {
	batch := e.queue.DrainUpTo(e.cfg.Casting.ResolvePerTick)
	for _, pc := range batch {
		// The caster may have disconnected since validation; the cast
		// still resolves.
		perceived := pc.ClientTimestamp
		if perceived.After(pc.ServerReceiveTime) {
			perceived = pc.ServerReceiveTime
		}

		hits := e.ledgers.QueryHits(pc.SessionID, perceived, pc.Target, pc.Radius)
		for _, h := range hits {
			target, ok := e.sessions.Get(h.SessionID)
			if !ok {
				continue
			}
			if alive := target.ApplyDamage(abilityDamage); !alive {
				e.respawn(target)
			}
		}

		e.stats.castsResolved.Add(1)
		if e.broadcaster != nil {
			e.broadcaster.BroadcastCastResolved(CastResolvedEvent{
				CasterID:        pc.SessionID,
				Kind:            pc.Kind,
				Target:          pc.Target,
				ServerTimestamp: now,
				Hits:            hits,
			})
		}
	}
}

// respawn revives a dead session at a spawn point via the privileged
// path, so its first post-respawn movement is teleport-exempt.
func (e *Engine) respawn(s *session.Session) {
	s.Revive(respawnHealth)
	spawn := e.spawns.Pick()
	s.ForcePosition(spawn, e.now(), e.cfg.Movement.TeleportGrantWindow)
	e.logger.Debug("session respawned",
		zap.String("session_id", s.ID),
	)
}

func (e *Engine) broadcastState(tick uint64) {
	if e.broadcaster == nil {
		return
	}
	snaps := make([]StateSnapshot, 0, e.sessions.Count())
	e.sessions.ForEach(func(s *session.Session) {
		pos, vel, _ := s.Kinematics()
		snaps = append(snaps, StateSnapshot{
			SessionID: s.ID,
			Position:  pos,
			Velocity:  vel,
			Rotation:  s.Rotation(),
			Health:    s.Health(),
			Tick:      tick,
		})
	})
	e.broadcaster.BroadcastSnapshots(snaps)
}

// appendSnapshot records the session's current state in its ledger.
// Appends are tick-paced (plus the rare connect and forced-reposition
// records); the ring is sized for that rate, so per-message appends
// would shrink the retained rewind horizon.
func (e *Engine) appendSnapshot(s *session.Session, now time.Time) {
	l, ok := e.ledgers.Ledger(s.ID)
	if !ok {
		return
	}
	pos, vel, _ := s.Kinematics()
	l.Append(history.Snapshot{
		Position:  pos,
		Velocity:  vel,
		Rotation:  s.Rotation(),
		Health:    s.Health(),
		Tick:      e.tick.Load(),
		Timestamp: now,
	})
}

// refundDropped rolls back the commit of an overflow-evicted cast:
// energy back, cooldown disarmed. The caster lost the cast to someone
// else's burst and must be able to retry immediately.
func (e *Engine) refundDropped(pc ability.PendingCast) {
	e.logger.Warn("cast queue overflow, oldest cast dropped",
		zap.String("session_id", pc.SessionID),
		zap.String("kind", pc.Kind),
	)
	if s, ok := e.sessions.Get(pc.SessionID); ok {
		s.Energy.Refund(pc.Cost)
		s.ClearCooldown(pc.Kind)
	}
}
