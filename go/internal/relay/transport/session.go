package transport

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler processes one inbound request. The ack callback delivers the reply
// to the sender and is safe to call at most once; extra calls are ignored.
// Requests sent without a seq have a no-op ack.
type Handler func(data json.RawMessage, ack func(result any))

// Session is one client connection. The transport owns its identifier and
// lifetime; protocol code attaches event handlers at connect time and is told
// about the close through OnDisconnect callbacks.
type Session struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	done   chan struct{}

	closeOnce sync.Once

	mu            sync.Mutex
	handlers      map[string]Handler
	disconnectFns []func()
	pending       map[uint64]chan<- string
	nextSeq       uint64
	closed        bool
}

// ID returns the session identifier assigned at upgrade.
func (s *Session) ID() string { return s.id }

// Handle registers the handler for an inbound event, replacing any previous
// handler for the same event.
func (s *Session) Handle(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// OnDisconnect registers a callback invoked after the session has closed and
// left every room, so membership queries observe the post-departure state.
func (s *Session) OnDisconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectFns = append(s.disconnectFns, fn)
}

// enqueue hands a frame to the write pump without blocking. A full buffer
// means the client is slow or gone; the frame is dropped and the connection
// torn down rather than letting a dead peer stall the pump.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	case s.send <- frame:
		return true
	default:
		log.Warn().Str("session_id", s.id).Msg("session send buffer full, closing connection")
		s.conn.Close()
		return false
	}
}

// sendWithAck sends an event frame that requests a client acknowledgment,
// registering ackCh to be signalled with the session id when the ack arrives.
// Returns the assigned seq and whether the frame was enqueued.
func (s *Session) sendWithAck(event string, data json.RawMessage, ackCh chan<- string) (uint64, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, false
	}
	s.nextSeq++
	seq := s.nextSeq
	s.pending[seq] = ackCh
	s.mu.Unlock()

	frame, err := encodeEvent(event, &seq, data)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("failed to encode event frame")
		s.dropPending(seq)
		return 0, false
	}
	if !s.enqueue(frame) {
		s.dropPending(seq)
		return 0, false
	}
	return seq, true
}

func (s *Session) dropPending(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, seq)
}

func (s *Session) resolveAck(seq uint64) {
	s.mu.Lock()
	ch, ok := s.pending[seq]
	if ok {
		delete(s.pending, seq)
	}
	s.mu.Unlock()
	if ok {
		// Buffered by the emitter with one slot per recipient; never blocks.
		ch <- s.id
	}
}

// dispatch routes one inbound frame: a bare ack resolves a pending
// server-initiated send, anything else goes to the registered event handler.
// Handlers run synchronously on the read pump, so a session's messages are
// processed to completion in arrival order.
func (s *Session) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("discarding malformed frame")
		return
	}

	if env.Ack != nil {
		s.resolveAck(*env.Ack)
		return
	}
	if env.Event == "" {
		log.Warn().Str("session_id", s.id).Msg("discarding frame with no event")
		return
	}

	s.mu.Lock()
	h, ok := s.handlers[env.Event]
	s.mu.Unlock()
	if !ok {
		log.Debug().Str("session_id", s.id).Str("event", env.Event).Msg("no handler for event")
		return
	}

	seq := env.Seq
	var ackOnce sync.Once
	ack := func(result any) {
		ackOnce.Do(func() {
			if seq == nil {
				return
			}
			frame, err := encodeAck(*seq, result)
			if err != nil {
				log.Error().Err(err).Str("session_id", s.id).Msg("failed to encode ack")
				return
			}
			s.enqueue(frame)
		})
	}
	h(env.Data, ack)
}

// writePump drains the send buffer to the socket and keeps the connection
// alive with websocket-level pings.
func (s *Session) writePump() {
	cfg := s.server.config
	ticker := s.server.clock.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(s.server.clock.Now().Add(cfg.WriteTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(s.server.clock.Now().Add(cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("session_id", s.id).Msg("failed to write frame")
				return
			}
		case <-ticker.Chan():
			s.conn.SetWriteDeadline(s.server.clock.Now().Add(cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("session_id", s.id).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads frames until the connection drops, then tears the session
// down exactly once.
func (s *Session) readPump() {
	cfg := s.server.config
	defer func() {
		s.closeOnce.Do(func() { s.server.dropSession(s) })
		s.conn.Close()
	}()

	s.conn.SetReadLimit(cfg.MaxMessageSize)
	s.conn.SetReadDeadline(s.server.clock.Now().Add(cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(s.server.clock.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("session_id", s.id).Msg("unexpected websocket close")
			}
			return
		}
		s.dispatch(raw)
		s.conn.SetReadDeadline(s.server.clock.Now().Add(cfg.ReadTimeout))
	}
}
