package repository

import (
	"context"
	"time"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/session"
	"go.uber.org/zap"
)

// violationRow is one queued telemetry record.
type violationRow struct {
	sessionID string
	kind      string
	detail    string
	counters  session.Counters
	at        time.Time
}

// ViolationStore is the asynchronous telemetry sink for the anomaly
// tracker. RecordViolation never blocks the validation path: rows go
// through a buffered channel to a single writer goroutine, and are
// dropped (with a log) if the buffer is full.
type ViolationStore struct {
	db           *DB
	logger       *zap.Logger
	writeTimeout time.Duration
	rows         chan violationRow
}

// NewViolationStore creates the sink. Start must be called to begin
// draining.
func NewViolationStore(db *DB, cfg config.DatabaseConfig, logger *zap.Logger) *ViolationStore {
	return &ViolationStore{
		db:           db,
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
		rows:         make(chan violationRow, 1024),
	}
}

// Start runs the writer loop until ctx is done.
func (vs *ViolationStore) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-vs.rows:
			vs.write(ctx, row)
		}
	}
}

// RecordViolation implements anomaly.Sink.
func (vs *ViolationStore) RecordViolation(sessionID, kind, detail string, counters session.Counters, at time.Time) {
	select {
	case vs.rows <- violationRow{sessionID: sessionID, kind: kind, detail: detail, counters: counters, at: at}:
	default:
		vs.logger.Warn("violation telemetry buffer full, record dropped",
			zap.String("session_id", sessionID),
			zap.String("kind", kind),
		)
	}
}

func (vs *ViolationStore) write(ctx context.Context, row violationRow) {
	writeCtx, cancel := context.WithTimeout(ctx, vs.writeTimeout)
	defer cancel()

	const stmt = `
INSERT INTO violations (
    session_id, kind, detail,
    speed_count, teleport_count, accel_count, rate_count, rapid_count, struct_count, total_count,
    recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := vs.db.Pool().Exec(writeCtx, stmt,
		row.sessionID, row.kind, row.detail,
		row.counters.Speed, row.counters.Teleport, row.counters.Accel,
		row.counters.RateLimit, row.counters.RapidAction, row.counters.Structural,
		row.counters.Total,
		row.at,
	)
	if err != nil {
		vs.logger.Error("failed to persist violation record",
			zap.String("session_id", row.sessionID),
			zap.Error(err),
		)
	}
}
