// Package packets defines the JSON frames exchanged over the socket.
//
// Packets use externally tagged encoding: a single-key object whose key
// names the variant, e.g. {"Hi":"what's up?"} or
// {"CounterChanged":{"name":"foo","value":3}}. The authentication frame is
// the exception: a plain {"token":"..."} object sent before anything else.
package packets

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Errors
var (
	ErrUnknownPacket = errors.New("unknown packet type")
	ErrMalformed     = errors.New("malformed packet")
)

// AuthFrame authenticates a freshly opened socket.
type AuthFrame struct {
	Token string `json:"token"`
}

// ClientPacket is a packet sent from client to server.
type ClientPacket interface {
	clientPacket()
}

// ServerPacket is a packet sent from server to client.
type ServerPacket interface {
	serverPacket()
}

// Hi is a free-form greeting from the client.
type Hi string

func (Hi) clientPacket() {}

func (h Hi) MarshalJSON() ([]byte, error) {
	return tagged("Hi", string(h))
}

// CounterChanged reports a named counter's new value.
type CounterChanged struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func (CounterChanged) serverPacket() {}

func (c CounterChanged) MarshalJSON() ([]byte, error) {
	type body CounterChanged // drops the method set to avoid recursion
	return tagged("CounterChanged", body(c))
}

// Entity identifies a game object.
type Entity uint64

// Position is a coarse world position.
type Position struct {
	X uint64 `json:"x"`
	Y uint64 `json:"y"`
	Z uint16 `json:"z"`
}

// PrecisePosition is a Position with sub-tile offsets.
type PrecisePosition struct {
	Position Position `json:"position"`
	PreciseX uint8    `json:"precise_x"`
	PreciseY uint8    `json:"precise_y"`
	PreciseZ uint8    `json:"precise_z"`
}

// PositionChanged reports an entity's new position. It encodes as a
// two-element array: {"PositionChanged":[entity, position]}.
type PositionChanged struct {
	Entity   Entity
	Position PrecisePosition
}

func (PositionChanged) serverPacket() {}

func (p PositionChanged) MarshalJSON() ([]byte, error) {
	return tagged("PositionChanged", []any{p.Entity, p.Position})
}

// Marshal encodes a client or server packet.
func Marshal(p any) ([]byte, error) {
	switch p.(type) {
	case ClientPacket, ServerPacket:
		return json.Marshal(p)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownPacket, p)
}

// DecodeClientPacket parses a client-to-server packet.
func DecodeClientPacket(data []byte) (ClientPacket, error) {
	tag, body, err := untag(data)
	if err != nil {
		return nil, err
	}

	switch tag {
	case "Hi":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("%w: Hi: %v", ErrMalformed, err)
		}
		return Hi(s), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPacket, tag)
}

// DecodeServerPacket parses a server-to-client packet.
func DecodeServerPacket(data []byte) (ServerPacket, error) {
	tag, body, err := untag(data)
	if err != nil {
		return nil, err
	}

	switch tag {
	case "CounterChanged":
		type wire CounterChanged
		var c wire
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, fmt.Errorf("%w: CounterChanged: %v", ErrMalformed, err)
		}
		return CounterChanged(c), nil

	case "PositionChanged":
		var parts []json.RawMessage
		if err := json.Unmarshal(body, &parts); err != nil {
			return nil, fmt.Errorf("%w: PositionChanged: %v", ErrMalformed, err)
		}
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: PositionChanged: want 2 fields, got %d", ErrMalformed, len(parts))
		}
		var p PositionChanged
		if err := json.Unmarshal(parts[0], &p.Entity); err != nil {
			return nil, fmt.Errorf("%w: PositionChanged entity: %v", ErrMalformed, err)
		}
		if err := json.Unmarshal(parts[1], &p.Position); err != nil {
			return nil, fmt.Errorf("%w: PositionChanged position: %v", ErrMalformed, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPacket, tag)
}

// DecodeAuthFrame parses the authentication frame. The token must be present.
func DecodeAuthFrame(data []byte) (AuthFrame, error) {
	var frame AuthFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return AuthFrame{}, fmt.Errorf("%w: auth: %v", ErrMalformed, err)
	}
	if frame.Token == "" {
		return AuthFrame{}, fmt.Errorf("%w: auth: missing token", ErrMalformed)
	}
	return frame, nil
}

func tagged(tag string, body any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: body})
}

func untag(data []byte) (string, json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(envelope) != 1 {
		return "", nil, fmt.Errorf("%w: want exactly one variant, got %d", ErrMalformed, len(envelope))
	}
	for tag, body := range envelope {
		return tag, body, nil
	}
	return "", nil, ErrMalformed
}
