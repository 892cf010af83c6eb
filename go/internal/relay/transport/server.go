// Package transport is the bidirectional messaging layer under the relay: it
// accepts websocket connections, assigns session identifiers, groups sessions
// into named rooms, and supports room-wide emits with per-recipient
// acknowledgment collection inside a bounded window.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrAckTimeout reports that at least one room member failed to acknowledge a
// room emit within the ack window.
var ErrAckTimeout = errors.New("transport: emit not acknowledged within window")

// Config holds configuration for websocket sessions.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns default websocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			// Overlays and admin screens connect from arbitrary origins.
			return true
		},
	}
}

// Server accepts connections and owns every session's lifecycle plus the
// room-membership table.
type Server struct {
	config   Config
	clock    clockwork.Clock
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	sessions  map[string]*Session
	rooms     map[string]map[*Session]struct{}
	connectFn func(*Session)
}

// NewServer creates a websocket transport server.
func NewServer(config Config, clock clockwork.Clock) *Server {
	return &Server{
		config: config,
		clock:  clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[*Session]struct{}),
	}
}

// OnConnect registers the callback invoked for every new session, before any
// of its frames are read. Protocol handlers are attached here.
func (s *Server) OnConnect(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectFn = fn
}

// HandleSocket upgrades an HTTP request into a session.
func (s *Server) HandleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	sess := &Session{
		id:       uuid.New().String(),
		conn:     conn,
		server:   s,
		send:     make(chan []byte, s.config.SendBuffer),
		done:     make(chan struct{}),
		handlers: make(map[string]Handler),
		pending:  make(map[uint64]chan<- string),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	connectFn := s.connectFn
	s.mu.Unlock()

	if connectFn != nil {
		connectFn(sess)
	}

	go sess.writePump()
	go sess.readPump()

	log.Info().Str("session_id", sess.id).Msg("websocket session established")
}

// JoinRoom adds the session to a named room, creating the room on first join.
// A session may belong to any number of rooms at once.
func (s *Server) JoinRoom(sessionID, roomKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	members, ok := s.rooms[roomKey]
	if !ok {
		members = make(map[*Session]struct{})
		s.rooms[roomKey] = members
	}
	members[sess] = struct{}{}
	log.Debug().Str("session_id", sessionID).Str("room", roomKey).Int("members", len(members)).Msg("session joined room")
	return true
}

// RoomOccupied reports whether the room currently has any members.
func (s *Server) RoomOccupied(roomKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomKey]) > 0
}

func (s *Server) roomMembers(roomKey string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]*Session, 0, len(s.rooms[roomKey]))
	for sess := range s.rooms[roomKey] {
		members = append(members, sess)
	}
	return members
}

// EmitToRoom sends one event frame to every current member of the room and
// waits up to ackWindow for each member to acknowledge it. An empty room
// succeeds immediately. Returns ErrAckTimeout when the window elapses with
// acks outstanding; callers that need delivery retry on top of this.
func (s *Server) EmitToRoom(ctx context.Context, roomKey, event string, payload any, ackWindow time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	members := s.roomMembers(roomKey)
	if len(members) == 0 {
		return nil
	}

	ackCh := make(chan string, len(members))
	type sent struct {
		sess *Session
		seq  uint64
	}
	var inFlight []sent
	failed := 0
	for _, sess := range members {
		seq, ok := sess.sendWithAck(event, data, ackCh)
		if !ok {
			failed++
			continue
		}
		inFlight = append(inFlight, sent{sess: sess, seq: seq})
	}
	defer func() {
		for _, f := range inFlight {
			f.sess.dropPending(f.seq)
		}
	}()

	timer := s.clock.NewTimer(ackWindow)
	defer stopTimer(timer)

	remaining := len(inFlight)
	for remaining > 0 {
		select {
		case <-ackCh:
			remaining--
		case <-timer.Chan():
			log.Warn().Str("room", roomKey).Str("event", event).Int("unacked", remaining).Msg("emit ack window elapsed")
			return fmt.Errorf("emit %s to %s: %w", event, roomKey, ErrAckTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failed > 0 {
		return fmt.Errorf("emit %s to %s: %d send failures: %w", event, roomKey, failed, ErrAckTimeout)
	}
	return nil
}

// dropSession removes the session from the server and every room, then runs
// its disconnect callbacks. Rooms are left before the callbacks fire so the
// cleanup pass sees post-departure membership.
func (s *Server) dropSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	for roomKey, members := range s.rooms {
		delete(members, sess)
		if len(members) == 0 {
			delete(s.rooms, roomKey)
		}
	}
	s.mu.Unlock()

	sess.mu.Lock()
	sess.closed = true
	fns := sess.disconnectFns
	sess.pending = make(map[uint64]chan<- string)
	sess.mu.Unlock()
	close(sess.done)

	for _, fn := range fns {
		fn()
	}

	log.Info().Str("session_id", sess.id).Msg("websocket session closed")
}

// DisconnectAll force-closes every session, used when stopping the service.
func (s *Server) DisconnectAll() {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.conn.Close()
	}
	log.Info().Int("sessions", len(sessions)).Msg("disconnected all sessions")
}

// Stats returns the current session and room counts.
func (s *Server) Stats() (sessions, rooms int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), len(s.rooms)
}

// RegisterRoutes registers the websocket endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleSocket)
	mux.HandleFunc("/ws/stats", func(w http.ResponseWriter, r *http.Request) {
		sessions, rooms := s.Stats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"sessions":%d,"rooms":%d}`, sessions, rooms)
	})
}

// stopTimer stops a timer and drains its channel so a fired-but-unseen tick
// cannot leak.
func stopTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
