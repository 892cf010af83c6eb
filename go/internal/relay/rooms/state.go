package rooms

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the type of a state field value.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindNumber
	KindString
	// KindRaw carries any JSON value outside the scalar set verbatim, so
	// unrecognized payload shapes pass through the relay untouched.
	KindRaw
)

// Value is one field of a room's clock state. Admins send free-form fields and
// the relay forwards them without interpreting anything beyond endTimerTime and
// clockOffset, so Value keeps a small closed set of scalar kinds plus a raw
// pass-through for everything else.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	raw  json.RawMessage
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean payload and whether the value is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload and whether the value is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string payload and whether the value is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Text renders the value the way a client would stringify it, used when a
// match identifier arrives as a number instead of a string.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	case KindRaw:
		return string(v.raw)
	default:
		return ""
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindRaw:
		return v.raw, nil
	default:
		return nil, fmt.Errorf("marshal state value: invalid kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler, classifying scalars and keeping
// anything else (objects, arrays, null) as raw bytes.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return fmt.Errorf("unmarshal state value: empty input")
	}
	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("unmarshal bool state value: %w", err)
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal string state value: %w", err)
		}
		*v = String(s)
	case '{', '[', 'n':
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		*v = Value{kind: KindRaw, raw: raw}
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unmarshal numeric state value: %w", err)
		}
		*v = Number(n)
	}
	return nil
}

// State is the free-form set of named clock fields for one room.
type State map[string]Value

// Clone returns an independent shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Number is a convenience accessor for a numeric field.
func (s State) Number(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}
