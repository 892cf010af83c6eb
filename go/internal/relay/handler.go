package relay

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/timtraver/repeater/go/internal/relay/rooms"
)

// Payload fields the relay interprets. Everything else is stored and
// forwarded verbatim.
const (
	fieldMatch       = "match"
	fieldType        = "type"
	fieldEndTimer    = "endTimerTime"
	fieldClockOffset = "clockOffset"
)

// joinTypeAdmin marks a join that claims the controlling role; any other type
// value is a viewer.
const joinTypeAdmin = "admin"

// updateAck is the literal success token returned to an update sender, before
// and independent of broadcast completion.
const updateAck = "ok"

// PingResult is the ack payload for a ping. Clients compare it against their
// local clock to estimate the offset they later attach to updates; the server
// does no averaging or filtering of its own.
type PingResult struct {
	SentServerTime int64 `json:"sentServerTime"`
}

// HandlePing acknowledges immediately with the current server timestamp in
// epoch milliseconds.
func (s *Service) HandlePing(sessionID string, _ json.RawMessage, ack func(any)) {
	ack(PingResult{SentServerTime: s.clock.Now().UnixMilli()})
}

// HandleJoin adds the session to a match room, creating the room on first
// join. An admin-type join claims (or takes over) the room's admin role. The
// ack carries the room's current stored state, so a viewer joining a live
// match starts from the clock the admin last pushed.
func (s *Service) HandleJoin(sessionID string, data json.RawMessage, ack func(any)) {
	fields, match, ok := parsePayload(sessionID, "join", data)
	if !ok {
		ack(rooms.State{})
		return
	}
	joinType, _ := fields[fieldType].AsString()
	delete(fields, fieldType)
	key := rooms.KeyFor(match)

	snapshot, created := s.store.GetOrCreate(key)
	if created {
		s.store.Merge(key, fields)
	}
	if joinType == joinTypeAdmin {
		// Last-writer-wins: a competing admin claim simply displaces the
		// previous one (see AdminClaimPolicy).
		s.store.SetAdmin(key, sessionID)
	}
	if created || joinType == joinTypeAdmin {
		snapshot, _ = s.store.Snapshot(key)
	}

	s.members.JoinRoom(sessionID, key)
	ack(snapshot)

	log.Info().
		Str("session_id", sessionID).
		Str("match", match).
		Str("type", joinType).
		Str("room", key).
		Bool("created", created).
		Msg("session joined match")
	s.record("%s - joining Match %s as %s", sessionID, match, joinType)
}

// HandleUpdate merges the pushed fields into the room's state and fans the
// adjusted payload out to the whole room, sender included. The broadcast's
// endTimerTime is shifted by the sender's reported clockOffset so every viewer
// receives a server-clock-relative deadline; clockOffset itself is consumed.
// The sender is acked "ok" right away, before delivery is confirmed.
//
// Any session may send an update; the admin role is a convention the relay
// does not enforce.
func (s *Service) HandleUpdate(sessionID string, data json.RawMessage, ack func(any)) {
	fields, match, ok := parsePayload(sessionID, "update", data)
	if !ok {
		ack(updateAck)
		return
	}
	key := rooms.KeyFor(match)

	offset, _ := fields.Number(fieldClockOffset)
	delete(fields, fieldClockOffset)

	s.store.Merge(key, fields)

	outbound := fields.Clone()
	if end, hasEnd := fields.Number(fieldEndTimer); hasEnd {
		outbound[fieldEndTimer] = rooms.Number(end - offset)
	}
	s.bcast.EnsureDelivered(key, "update", outbound)
	ack(updateAck)

	log.Debug().
		Str("session_id", sessionID).
		Str("room", key).
		Int("fields", len(outbound)).
		Msg("update merged and queued for broadcast")
	s.record("%s - Room %s - Update Message from %s", sessionID, key, sessionID)
}

// HandleDisconnect runs the cleanup pass over every tracked room, not just the
// ones the departing session belonged to: rooms with no remaining transport
// members are deleted (abandoning their pending broadcasts), and surviving
// rooms lose their admin claim if the departing session held it.
func (s *Service) HandleDisconnect(sessionID string) {
	for _, key := range s.store.Keys() {
		if s.store.RemoveIfEmpty(key, s.members.RoomOccupied) {
			s.bcast.CancelRoom(key)
			continue
		}
		if s.store.ClearAdminIfMatches(key, sessionID) {
			log.Info().Str("session_id", sessionID).Str("room", key).Msg("cleared admin claim on disconnect")
		}
	}
	s.record("%s - Client disconnected", sessionID)
}

// parsePayload decodes a request body into a state bag and extracts the match
// identifier, which may arrive as a string or a number. Malformed payloads are
// tolerated: the handler still acks, nothing is stored.
func parsePayload(sessionID, event string, data json.RawMessage) (rooms.State, string, bool) {
	fields := make(rooms.State)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Str("event", event).Msg("discarding malformed payload")
			return nil, "", false
		}
	}
	matchVal, ok := fields[fieldMatch]
	if !ok {
		log.Warn().Str("session_id", sessionID).Str("event", event).Msg("payload missing match identifier")
		return nil, "", false
	}
	delete(fields, fieldMatch)
	return fields, matchVal.Text(), true
}
