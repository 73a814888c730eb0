package net

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")
)

// DecodeError wraps every failure to turn a frame into a Message.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return "decode frame: " + e.Err.Error()
	}
	return fmt.Sprintf("decode %q frame: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type decodeFunc func(raw []byte) (Message, error)

type variant struct {
	required []string
	decode   decodeFunc
}

var clientVariants = map[string]variant{
	MsgUpdate:              {[]string{"position", "rotation"}, decodeAs[UpdateMessage]},
	MsgFireProjectile:      {[]string{"projectile"}, decodeAs[FireProjectileMessage]},
	MsgRemoveProjectile:    {[]string{"projectileId"}, decodeAs[RemoveProjectileMessage]},
	MsgProjectileCollision: {[]string{"projectileId", "position", "collisionType"}, decodeAs[ProjectileCollisionMessage]},
	MsgUpdateHealth:        {[]string{"health"}, decodeAs[UpdateHealthMessage]},
	MsgRespawn:             {[]string{"position"}, decodeAs[RespawnMessage]},
	MsgSetName:             {[]string{"name"}, decodeAs[SetNameMessage]},
	MsgCaptureSkull:        {nil, decodeAs[CaptureSkullMessage]},
}

var serverVariants = map[string]variant{
	MsgInit:                {[]string{"id"}, decodeAs[InitMessage]},
	MsgPlayers:             {[]string{"players"}, decodeAs[PlayersMessage]},
	MsgNewPlayer:           {[]string{"player"}, decodeAs[NewPlayerMessage]},
	MsgPlayerUpdate:        {[]string{"id", "position", "rotation"}, decodeAs[PlayerUpdateMessage]},
	MsgPlayerLeft:          {[]string{"id"}, decodeAs[PlayerLeftMessage]},
	MsgNewProjectile:       {[]string{"projectile"}, decodeAs[NewProjectileMessage]},
	MsgRemoveProjectile:    {[]string{"projectileId"}, decodeAs[RemoveProjectileMessage]},
	MsgProjectileCollision: {[]string{"projectileId", "position", "collisionType"}, decodeAs[ProjectileCollisionMessage]},
	MsgHealthUpdate:        {[]string{"id", "health", "isAlive"}, decodeAs[HealthUpdateMessage]},
	MsgPlayerName:          {[]string{"id", "name"}, decodeAs[PlayerNameMessage]},
	MsgSkullMode:           {[]string{"state"}, decodeAs[SkullModeMessage]},
	MsgSkullCaptured:       {[]string{"playerId"}, decodeAs[SkullCapturedMessage]},
}

// DecodeClient parses a frame sent by a game client.
func DecodeClient(b []byte) (Message, error) {
	return decode(b, clientVariants)
}

// DecodeServer parses a frame sent by the relay.
func DecodeServer(b []byte) (Message, error) {
	return decode(b, serverVariants)
}

func decode(b []byte, variants map[string]variant) (Message, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, &DecodeError{Err: ErrEmptyFrame}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, &DecodeError{Err: err}
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, &DecodeError{Err: fmt.Errorf("%w: type", ErrMissingField)}
	}
	var msgType string
	if err := json.Unmarshal(rawType, &msgType); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: type: %v", ErrInvalidField, err)}
	}

	v, ok := variants[msgType]
	if !ok {
		return nil, &DecodeError{Type: msgType, Err: ErrUnknownType}
	}
	for _, key := range v.required {
		raw, ok := fields[key]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return nil, &DecodeError{Type: msgType, Err: fmt.Errorf("%w: %s", ErrMissingField, key)}
		}
	}

	msg, err := v.decode(b)
	if err != nil {
		return nil, &DecodeError{Type: msgType, Err: err}
	}
	return msg, nil
}

func decodeAs[T Message](raw []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode marshals m and merges its type tag into the top-level object.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", m.MessageType())
	}
	tag, err := json.Marshal(m.MessageType())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}

	out := make([]byte, 0, len(body)+len(tag)+10)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	out = append(out, body[1:]...)
	return out, nil
}

// ClientCatalog returns a zero value of every message a client may send.
func ClientCatalog() []Message {
	return []Message{
		UpdateMessage{},
		FireProjectileMessage{},
		RemoveProjectileMessage{},
		ProjectileCollisionMessage{},
		UpdateHealthMessage{},
		RespawnMessage{},
		SetNameMessage{},
		CaptureSkullMessage{},
	}
}

// ServerCatalog returns a zero value of every message the relay may send.
func ServerCatalog() []Message {
	return []Message{
		InitMessage{},
		PlayersMessage{},
		NewPlayerMessage{},
		PlayerUpdateMessage{},
		PlayerLeftMessage{},
		NewProjectileMessage{},
		RemoveProjectileMessage{},
		ProjectileCollisionMessage{},
		HealthUpdateMessage{},
		PlayerNameMessage{},
		SkullModeMessage{},
		SkullCapturedMessage{},
	}
}

// ClientRequired lists the keys a client frame of msgType must carry.
func ClientRequired(msgType string) []string {
	return append([]string{"type"}, clientVariants[msgType].required...)
}

// ServerRequired lists the keys a relay frame of msgType must carry.
func ServerRequired(msgType string) []string {
	return append([]string{"type"}, serverVariants[msgType].required...)
}
