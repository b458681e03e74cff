package server

import (
	"fmt"
	"net/http"
	"strings"
)

// handleMetrics renders engine counters in Prometheus text exposition
// format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()

	var b strings.Builder
	b.WriteString("# TYPE arena_sessions_active gauge\n")
	fmt.Fprintf(&b, "arena_sessions_active %d\n", s.engine.Sessions().Count())
	b.WriteString("# TYPE arena_tick counter\n")
	fmt.Fprintf(&b, "arena_tick %d\n", stats.Tick)
	b.WriteString("# TYPE arena_movements_accepted_total counter\n")
	fmt.Fprintf(&b, "arena_movements_accepted_total %d\n", stats.MovementsAccepted)
	b.WriteString("# TYPE arena_movements_rejected_total counter\n")
	fmt.Fprintf(&b, "arena_movements_rejected_total %d\n", stats.MovementsRejected)
	b.WriteString("# TYPE arena_casts_accepted_total counter\n")
	fmt.Fprintf(&b, "arena_casts_accepted_total %d\n", stats.CastsAccepted)
	b.WriteString("# TYPE arena_casts_rejected_total counter\n")
	fmt.Fprintf(&b, "arena_casts_rejected_total %d\n", stats.CastsRejected)
	b.WriteString("# TYPE arena_casts_resolved_total counter\n")
	fmt.Fprintf(&b, "arena_casts_resolved_total %d\n", stats.CastsResolved)
	b.WriteString("# TYPE arena_cast_queue_drops_total counter\n")
	fmt.Fprintf(&b, "arena_cast_queue_drops_total %d\n", stats.QueueDrops)
	b.WriteString("# TYPE arena_forced_corrections_total counter\n")
	fmt.Fprintf(&b, "arena_forced_corrections_total %d\n", stats.ForcedCorrections)
	b.WriteString("# TYPE arena_anomaly_disconnects_total counter\n")
	fmt.Fprintf(&b, "arena_anomaly_disconnects_total %d\n", stats.Disconnects)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(b.String()))
}
