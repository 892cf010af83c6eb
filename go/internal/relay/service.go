// Package relay implements the shot-clock coordination protocol between one
// admin screen controlling a countdown and any number of overlays following a
// match: join/update/disconnect room handling, ping-based clock-offset
// support, and acknowledgment-gated state fan-out.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/timtraver/repeater/go/internal/relay/diag"
	"github.com/timtraver/repeater/go/internal/relay/rooms"
	"github.com/timtraver/repeater/go/internal/relay/transport"
)

// Membership is the transport-owned room membership surface the relay
// consults. The relay requests joins and queries occupancy but never mutates
// membership directly.
type Membership interface {
	JoinRoom(sessionID, roomKey string) bool
	RoomOccupied(roomKey string) bool
}

// Broadcaster fans state out to a room and keeps retrying until acknowledged.
type Broadcaster interface {
	EnsureDelivered(roomKey, event string, payload any)
	CancelRoom(roomKey string)
}

// AdminClaimPolicy decides how competing admin joins for one match are
// resolved.
type AdminClaimPolicy string

// AdminLastWriterWins replaces the admin on every admin-type join with no
// arbitration and no signal to the displaced admin. It is the only policy
// implemented; the type exists so a fencing scheme can be added without
// changing the protocol contract.
const AdminLastWriterWins AdminClaimPolicy = "last-writer-wins"

// Config holds configuration for the relay service.
type Config struct {
	AdminClaim AdminClaimPolicy
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{AdminClaim: AdminLastWriterWins}
}

// Service is the per-connection protocol logic, wired between the transport,
// the room store, the broadcaster, and the diagnostic recorder.
type Service struct {
	config   Config
	members  Membership
	store    *rooms.Store
	bcast    Broadcaster
	recorder diag.Recorder
	clock    clockwork.Clock
}

// NewService creates the relay service. An unrecognized admin-claim policy
// falls back to last-writer-wins.
func NewService(config Config, members Membership, store *rooms.Store, bcast Broadcaster, recorder diag.Recorder, clock clockwork.Clock) *Service {
	if config.AdminClaim != AdminLastWriterWins {
		log.Warn().Str("policy", string(config.AdminClaim)).Msg("unknown admin claim policy, using last-writer-wins")
		config.AdminClaim = AdminLastWriterWins
	}
	return &Service{
		config:   config,
		members:  members,
		store:    store,
		bcast:    bcast,
		recorder: recorder,
		clock:    clock,
	}
}

// Bind attaches the protocol handlers to every session the transport accepts.
func (s *Service) Bind(t *transport.Server) {
	t.OnConnect(func(sess *transport.Session) {
		id := sess.ID()
		log.Info().Str("session_id", id).Msg("client connected")
		s.recorder.Record(id + " - connected")

		sess.Handle("ping", func(data json.RawMessage, ack func(any)) {
			s.HandlePing(id, data, ack)
		})
		sess.Handle("join", func(data json.RawMessage, ack func(any)) {
			s.HandleJoin(id, data, ack)
		})
		sess.Handle("update", func(data json.RawMessage, ack func(any)) {
			s.HandleUpdate(id, data, ack)
		})
		sess.OnDisconnect(func() {
			log.Info().Str("session_id", id).Msg("client disconnected")
			s.HandleDisconnect(id)
		})
	})
}

// Rooms returns the number of tracked rooms, for the info endpoint.
func (s *Service) Rooms() int {
	return s.store.Len()
}

func (s *Service) record(format string, args ...any) {
	s.recorder.Record(fmt.Sprintf(format, args...))
}
