package transport

import (
	"encoding/json"
	"fmt"
)

// envelope is the single frame shape on the wire, in both directions. A
// request carries an event name, an optional seq when the sender wants a
// reply, and a payload. A reply carries ack set to the request's seq plus an
// optional payload. Server-to-client room events reuse the request shape and
// clients reply with a bare ack frame.
type envelope struct {
	Event string          `json:"event,omitempty"`
	Seq   *uint64         `json:"seq,omitempty"`
	Ack   *uint64         `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeEvent(event string, seq *uint64, data json.RawMessage) ([]byte, error) {
	frame, err := json.Marshal(envelope{Event: event, Seq: seq, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return frame, nil
}

func encodeAck(seq uint64, result any) ([]byte, error) {
	var data json.RawMessage
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode ack payload: %w", err)
		}
		data = encoded
	}
	frame, err := json.Marshal(envelope{Ack: &seq, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode ack frame: %w", err)
	}
	return frame, nil
}
