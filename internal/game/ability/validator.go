package ability

import (
	"fmt"
	"time"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/geom"
	"github.com/virtarena/arena-server-go/internal/session"
)

// Reason classifies why a cast request was not queued.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonUnknownKind: ability outside the catalog. Structural; a
	// conforming client cannot produce it.
	ReasonUnknownKind
	// ReasonCooldown and ReasonResource are transient rejections: the
	// client may legitimately resubmit later.
	ReasonCooldown
	ReasonResource
	ReasonRateLimit
	ReasonBurst
	ReasonRange
)

var reasonNames = map[Reason]string{
	ReasonNone:        "NONE",
	ReasonUnknownKind: "UNKNOWN_KIND",
	ReasonCooldown:    "COOLDOWN",
	ReasonResource:    "RESOURCE",
	ReasonRateLimit:   "RATE_LIMIT",
	ReasonBurst:       "BURST",
	ReasonRange:       "RANGE",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("REASON_%d", int(r))
}

// Result is the outcome of one cast validation.
type Result struct {
	Accepted  bool
	Reason    Reason
	Violation bool
	Detail    string
}

// Reporter receives violations from the validator. Implemented by the
// anomaly tracker.
type Reporter interface {
	Report(s *session.Session, kind session.ViolationKind, detail string, now time.Time)
}

// Validator applies the cast admission checks in order: catalog,
// cooldown, resource, sliding window, burst guard, range. Cost and
// cooldown are committed atomically on acceptance, before the cast is
// queued, so a double-submission cannot spend the same energy twice
// while the queue drains.
type Validator struct {
	catalog *Catalog
	cfg     config.CastingConfig
	queue   *Queue
	report  Reporter
}

// NewValidator creates a cast validator feeding the given queue.
func NewValidator(catalog *Catalog, cfg config.CastingConfig, queue *Queue, report Reporter) *Validator {
	return &Validator{catalog: catalog, cfg: cfg, queue: queue, report: report}
}

// ValidateCast admits or rejects a cast request. On acceptance the
// session's energy is deducted, the per-ability cooldown armed, and a
// PendingCast enqueued. A rejected cast leaves energy and cooldowns
// untouched. Returns the overflow-evicted cast, if any, so the caller
// can refund and log it.
func (v *Validator) ValidateCast(s *session.Session, kind string, target geom.Vec3, clientTS, now time.Time) (Result, *PendingCast) {
	def, ok := v.catalog.Lookup(kind)
	if !ok {
		detail := fmt.Sprintf("unknown ability kind %q", kind)
		v.report.Report(s, session.ViolationStructural, detail, now)
		return Result{Reason: ReasonUnknownKind, Violation: true, Detail: detail}, nil
	}

	if !s.CooldownReady(kind, now) {
		return Result{Reason: ReasonCooldown}, nil
	}

	if s.Energy.Current() < def.Cost {
		return Result{Reason: ReasonResource}, nil
	}

	w := s.CastWindow()
	if w.WindowFull(now, v.cfg.WindowDuration, v.cfg.MaxCastsPerWin) {
		detail := fmt.Sprintf("window limit %d exceeded", v.cfg.MaxCastsPerWin)
		v.report.Report(s, session.ViolationRateLimit, detail, now)
		return Result{Reason: ReasonRateLimit, Violation: true, Detail: detail}, nil
	}

	if w.RapidBurst(now, v.cfg.MinCastInterval, v.cfg.MaxRapidCasts) {
		detail := fmt.Sprintf("more than %d casts under %s apart", v.cfg.MaxRapidCasts, v.cfg.MinCastInterval)
		v.report.Report(s, session.ViolationRapidAction, detail, now)
		return Result{Reason: ReasonBurst, Violation: true, Detail: detail}, nil
	}

	// Range is always measured from the last authoritative position,
	// never a client-claimed one.
	if dist := target.Distance(s.Position()); dist > def.Range {
		return Result{
			Reason: ReasonRange,
			Detail: fmt.Sprintf("target %.1f away, range %.1f", dist, def.Range),
		}, nil
	}

	if !s.Energy.Spend(def.Cost) {
		// Lost a race against another spender for this session.
		return Result{Reason: ReasonResource}, nil
	}
	s.StartCooldown(kind, now, def.Cooldown)
	w.RecordAction(now)

	dropped := v.queue.Enqueue(PendingCast{
		SessionID:         s.ID,
		Kind:              kind,
		Target:            target,
		ClientTimestamp:   clientTS,
		ServerReceiveTime: now,
		Cost:              def.Cost,
		Radius:            def.Radius,
	})

	return Result{Accepted: true}, dropped
}
