package server

import (
	"encoding/json"
	"net/http"

	"github.com/virtarena/arena-server-go/internal/session"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// withAdminAuth guards the admin surface with the configured bcrypt
// password hash. No hash configured means no admin access at all.
func (s *Server) withAdminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := s.cfg.Auth.AdminPasswordHash
		if hash == "" {
			http.Error(w, "admin access not configured", http.StatusForbidden)
			return
		}
		password := r.Header.Get("X-Admin-Password")
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// sessionDump is one row of the admin session listing.
type sessionDump struct {
	SessionID  string                    `json:"sessionId"`
	Name       string                    `json:"name"`
	Suspected  bool                      `json:"suspected"`
	Counters   session.Counters          `json:"counters"`
	Violations []session.ViolationRecord `json:"violations"`
}

// handleAdminSessions lists sessions with their violation state, for
// manual review of flagged players.
func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	var dump []sessionDump
	s.engine.Sessions().ForEach(func(sess *session.Session) {
		dump = append(dump, sessionDump{
			SessionID:  sess.ID,
			Name:       sess.Name,
			Suspected:  sess.Suspected(),
			Counters:   sess.ViolationCounters(),
			Violations: sess.ViolationHistory(),
		})
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dump)
}

// handleAdminClearSuspect resets a session's suspicion flag. This is
// the only path that clears it: suspicion is one-way inside the
// gameplay subsystem and requires human review to lift.
func (s *Server) handleAdminClearSuspect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("session_id")
	sess, ok := s.engine.Sessions().Get(id)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	sess.ClearSuspected()
	s.logger.Info("suspicion flag cleared by admin",
		zap.String("session_id", id),
		zap.String("name", sess.Name),
	)
	w.WriteHeader(http.StatusNoContent)
}
