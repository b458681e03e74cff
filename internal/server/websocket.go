// Package server is the client-facing transport: a websocket endpoint
// feeding the authoritative engine, plus the admin and metrics HTTP
// surfaces.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/game"
	"github.com/virtarena/arena-server-go/internal/geom"
	"github.com/virtarena/arena-server-go/internal/session"
	"go.uber.org/zap"
)

const (
	maxMessageBytes = 4096
	writeWait       = 5 * time.Second
)

// subscriber is one connected client's write half. The mutex serializes
// writes; gorilla connections allow one concurrent writer.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (sub *subscriber) send(msg serverMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sub.conn.WriteMessage(websocket.TextMessage, payload)
}

// Server owns the websocket endpoint and implements game.Broadcaster.
type Server struct {
	cfg      *config.Config
	engine   *game.Engine
	approver Approver
	reporter game.Reporter
	logger   *zap.Logger

	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[string]*subscriber
}

// NewServer wires the transport around the engine. reporter receives
// the structural violations only the transport can see (malformed
// frames, unknown message types).
func NewServer(cfg *config.Config, engine *game.Engine, approver Approver, reporter game.Reporter, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		engine:   engine,
		approver: approver,
		reporter: reporter,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subscribers: make(map[string]*subscriber),
	}
}

// ListenAndServe runs the HTTP server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/admin/sessions", s.withAdminAuth(s.handleAdminSessions))
	mux.HandleFunc("/admin/clear-suspect", s.withAdminAuth(s.handleAdminClearSuspect))

	srv := &http.Server{Addr: s.cfg.Server.Address, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("websocket server listening", zap.String("address", s.cfg.Server.Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWS upgrades the connection, runs the approval hook on the first
// message, creates the session, and enters the read loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	sub := &subscriber{conn: conn}

	// First frame must be a join carrying the grant. No session state
	// exists until approval passes.
	var join clientMessage
	if err := conn.ReadJSON(&join); err != nil || join.Type != msgJoin {
		sub.send(serverMessage{Type: msgTerminated, Reason: "join required"})
		conn.Close()
		return
	}

	name, err := s.approver.Approve(join.Token)
	if err != nil {
		s.logger.Warn("connection rejected by approval hook", zap.Error(err))
		sub.send(serverMessage{Type: msgTerminated, Reason: "approval rejected"})
		conn.Close()
		return
	}

	sess, err := s.engine.Connect(name)
	if err != nil {
		reason := "connect failed"
		if errors.Is(err, session.ErrServerFull) {
			reason = "server full"
		}
		sub.send(serverMessage{Type: msgTerminated, Reason: reason})
		conn.Close()
		return
	}

	s.mu.Lock()
	s.subscribers[sess.ID] = sub
	s.mu.Unlock()

	sub.send(serverMessage{Type: msgWelcome, SessionID: sess.ID, Tick: s.engine.Tick()})

	s.readLoop(sess, sub)
}

// readLoop dispatches inbound frames until the connection drops.
// Validation runs synchronously here, per message, and never blocks on
// the simulation tick.
func (s *Server) readLoop(sess *session.Session, sub *subscriber) {
	defer func() {
		s.dropSubscriber(sess.ID)
		s.engine.Disconnect(sess.ID)
	}()

	for {
		_, payload, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.structural(sess, "malformed frame")
			continue
		}

		switch msg.Type {
		case msgMove:
			s.handleMove(sess, sub, msg)
		case msgCast:
			s.handleCast(sess, sub, msg)
		default:
			s.structural(sess, "unknown message type "+msg.Type)
		}
	}
}

func (s *Server) handleMove(sess *session.Session, sub *subscriber, msg clientMessage) {
	clientTS := time.UnixMilli(msg.ClientTime)
	res, err := s.engine.SubmitMovement(sess.ID, msg.Position, msg.Velocity, msg.Rotation, clientTS)
	if err != nil {
		sub.send(serverMessage{Type: msgReject, Command: msgMove, Reason: "unknown session"})
		return
	}
	if !res.Accepted {
		sub.send(serverMessage{
			Type:    msgReject,
			Command: msgMove,
			Reason:  res.Reason.String(),
			Detail:  res.Detail,
		})
	}
}

func (s *Server) handleCast(sess *session.Session, sub *subscriber, msg clientMessage) {
	clientTS := time.UnixMilli(msg.ClientTime)
	res, err := s.engine.SubmitCast(sess.ID, msg.Kind, msg.Target, clientTS)
	if err != nil {
		sub.send(serverMessage{Type: msgReject, Command: msgCast, Reason: "unknown session"})
		return
	}
	if !res.Accepted {
		sub.send(serverMessage{
			Type:    msgReject,
			Command: msgCast,
			Reason:  res.Reason.String(),
			Detail:  res.Detail,
		})
	}
}

// structural reports a protocol-level violation: these indicate a
// non-conforming client rather than network jitter, and weigh heavier.
func (s *Server) structural(sess *session.Session, detail string) {
	s.reporter.Report(sess, session.ViolationStructural, detail, time.Now())
}

func (s *Server) dropSubscriber(sessionID string) {
	s.mu.Lock()
	sub, ok := s.subscribers[sessionID]
	if ok {
		delete(s.subscribers, sessionID)
	}
	s.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}

func (s *Server) snapshotSubscribers() map[string]*subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*subscriber, len(s.subscribers))
	for id, sub := range s.subscribers {
		out[id] = sub
	}
	return out
}

// ==================== game.Broadcaster ====================

// BroadcastSnapshots fans the authoritative state out to every
// subscriber.
func (s *Server) BroadcastSnapshots(snaps []game.StateSnapshot) {
	if len(snaps) == 0 {
		return
	}
	msg := serverMessage{Type: msgState, Snapshots: snaps}
	for id, sub := range s.snapshotSubscribers() {
		if err := sub.send(msg); err != nil {
			s.logger.Debug("snapshot write failed",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}
}

// BroadcastCastResolved announces a resolved cast to all observers.
func (s *Server) BroadcastCastResolved(ev game.CastResolvedEvent) {
	msg := serverMessage{Type: msgCastResolved, Cast: &ev}
	for _, sub := range s.snapshotSubscribers() {
		sub.send(msg)
	}
}

// SendForceCorrection snaps one client back to authoritative state.
func (s *Server) SendForceCorrection(sessionID string, pos geom.Vec3, tick uint64) {
	s.mu.Lock()
	sub, ok := s.subscribers[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	p := pos
	sub.send(serverMessage{Type: msgCorrection, SessionID: sessionID, Position: &p, Tick: tick})
}

// TerminateSession notifies the client and closes its connection. The
// engine removes session state separately.
func (s *Server) TerminateSession(sessionID, reason string) {
	s.mu.Lock()
	sub, ok := s.subscribers[sessionID]
	if ok {
		delete(s.subscribers, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	sub.send(serverMessage{Type: msgTerminated, SessionID: sessionID, Reason: reason})
	sub.conn.Close()
}

// Close tears down every live connection; used on shutdown.
func (s *Server) Close() {
	for id := range s.snapshotSubscribers() {
		s.dropSubscriber(id)
	}
}
