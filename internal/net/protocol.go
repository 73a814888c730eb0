package net

import (
	"fmt"
	"math"
	"strings"
)

// Client → Server message types

const (
	MsgUpdate              = "update"
	MsgFireProjectile      = "fireProjectile"
	MsgRemoveProjectile    = "removeProjectile"
	MsgProjectileCollision = "projectileCollision"
	MsgUpdateHealth        = "updateHealth"
	MsgRespawn             = "respawn"
	MsgSetName             = "setName"
	MsgCaptureSkull        = "captureSkull"
)

// Server → Client message types. removeProjectile and projectileCollision
// travel in both directions with the same shape.

const (
	MsgInit          = "init"
	MsgPlayers       = "players"
	MsgNewPlayer     = "newPlayer"
	MsgPlayerUpdate  = "playerUpdate"
	MsgPlayerLeft    = "playerLeft"
	MsgNewProjectile = "newProjectile"
	MsgHealthUpdate  = "healthUpdate"
	MsgPlayerName    = "playerName"
	MsgSkullMode     = "skullMode"
	MsgSkullCaptured = "skullCaptured"
)

const (
	MaxHealth     = 100
	MaxNameLength = 24
)

type CollisionType string

const (
	CollisionWater   CollisionType = "water"
	CollisionTerrain CollisionType = "terrain"
	CollisionPlayer  CollisionType = "player"
)

func (c CollisionType) Valid() bool {
	switch c {
	case CollisionWater, CollisionTerrain, CollisionPlayer:
		return true
	}
	return false
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist returns the euclidean distance between two points.
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

type Rotation struct {
	Y float64 `json:"y"`
}

// PlayerRecord is one roster entry. Version increases every time the relay
// changes the record so receivers can discard stale deliveries.
type PlayerRecord struct {
	ID       string   `json:"id"`
	Position Vec3     `json:"position"`
	Rotation Rotation `json:"rotation"`
	Health   int      `json:"health"`
	IsAlive  bool     `json:"isAlive"`
	Name     string   `json:"name"`
	Version  uint64   `json:"version"`
}

type ProjectileRecord struct {
	ID            string  `json:"id"`
	PlayerID      string  `json:"playerId"`
	Position      Vec3    `json:"position"`
	Velocity      Vec3    `json:"velocity"`
	RotationSpeed float64 `json:"rotationSpeed"`
	Timestamp     int64   `json:"timestamp"` // launch time, unix ms
}

type SkullModeState struct {
	IsActive        bool    `json:"isActive"`
	Countdown       float64 `json:"countdown"` // seconds left in the current phase
	SkullPosition   Vec3    `json:"skullPosition"`
	IsSkullCaptured bool    `json:"isSkullCaptured"`
	CapturedBy      string  `json:"capturedBy,omitempty"`
}

// ClampHealth bounds h to [0, MaxHealth].
func ClampHealth(h int) int {
	if h < 0 {
		return 0
	}
	if h > MaxHealth {
		return MaxHealth
	}
	return h
}

// SanitizeName trims whitespace and caps the name at MaxNameLength runes.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	r := []rune(name)
	if len(r) > MaxNameLength {
		r = r[:MaxNameLength]
	}
	return string(r)
}

// Message is any frame that can travel over the socket.
type Message interface {
	MessageType() string
	Validate() error
}

// Client → Server messages

type UpdateMessage struct {
	Position Vec3     `json:"position"`
	Rotation Rotation `json:"rotation"`
}

type FireProjectileMessage struct {
	Projectile ProjectileRecord `json:"projectile"`
}

type RemoveProjectileMessage struct {
	ProjectileID string `json:"projectileId"`
	PlayerID     string `json:"playerId"`
}

type ProjectileCollisionMessage struct {
	ProjectileID  string        `json:"projectileId"`
	PlayerID      string        `json:"playerId"`
	Position      Vec3          `json:"position"`
	CollisionType CollisionType `json:"collisionType"`
	TargetID      string        `json:"targetId,omitempty"`
}

// UpdateHealthMessage is a request: the sender proposes its own new health
// and waits for the relay's healthUpdate before showing it.
type UpdateHealthMessage struct {
	Health     int    `json:"health"`
	AttackerID string `json:"attackerId,omitempty"`
}

type RespawnMessage struct {
	Position Vec3 `json:"position"`
}

type SetNameMessage struct {
	Name string `json:"name"`
}

type CaptureSkullMessage struct{}

// Server → Client messages

type InitMessage struct {
	ID string `json:"id"`
}

type PlayersMessage struct {
	Players []PlayerRecord `json:"players"`
}

type NewPlayerMessage struct {
	Player PlayerRecord `json:"player"`
}

type PlayerUpdateMessage struct {
	ID       string   `json:"id"`
	Position Vec3     `json:"position"`
	Rotation Rotation `json:"rotation"`
	Version  uint64   `json:"version"`
}

type PlayerLeftMessage struct {
	ID string `json:"id"`
}

type NewProjectileMessage struct {
	Projectile ProjectileRecord `json:"projectile"`
}

type HealthUpdateMessage struct {
	ID         string `json:"id"`
	Health     int    `json:"health"`
	IsAlive    bool   `json:"isAlive"`
	AttackerID string `json:"attackerId,omitempty"`
	Version    uint64 `json:"version"`
}

type PlayerNameMessage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SkullModeMessage struct {
	State SkullModeState `json:"state"`
}

type SkullCapturedMessage struct {
	PlayerID string `json:"playerId"`
}

func (UpdateMessage) MessageType() string { return MsgUpdate }
func (FireProjectileMessage) MessageType() string { return MsgFireProjectile }
func (RemoveProjectileMessage) MessageType() string { return MsgRemoveProjectile }
func (ProjectileCollisionMessage) MessageType() string { return MsgProjectileCollision }
func (UpdateHealthMessage) MessageType() string { return MsgUpdateHealth }
func (RespawnMessage) MessageType() string { return MsgRespawn }
func (SetNameMessage) MessageType() string { return MsgSetName }
func (CaptureSkullMessage) MessageType() string { return MsgCaptureSkull }
func (InitMessage) MessageType() string { return MsgInit }
func (PlayersMessage) MessageType() string { return MsgPlayers }
func (NewPlayerMessage) MessageType() string { return MsgNewPlayer }
func (PlayerUpdateMessage) MessageType() string { return MsgPlayerUpdate }
func (PlayerLeftMessage) MessageType() string { return MsgPlayerLeft }
func (NewProjectileMessage) MessageType() string { return MsgNewProjectile }
func (HealthUpdateMessage) MessageType() string { return MsgHealthUpdate }
func (PlayerNameMessage) MessageType() string { return MsgPlayerName }
func (SkullModeMessage) MessageType() string { return MsgSkullMode }
func (SkullCapturedMessage) MessageType() string { return MsgSkullCaptured }

func (m UpdateMessage) Validate() error { return nil }

func (m FireProjectileMessage) Validate() error {
	if m.Projectile.ID == "" {
		return fmt.Errorf("%w: projectile.id", ErrInvalidField)
	}
	return nil
}

func (m RemoveProjectileMessage) Validate() error {
	if m.ProjectileID == "" {
		return fmt.Errorf("%w: projectileId", ErrInvalidField)
	}
	return nil
}

func (m ProjectileCollisionMessage) Validate() error {
	if m.ProjectileID == "" {
		return fmt.Errorf("%w: projectileId", ErrInvalidField)
	}
	if !m.CollisionType.Valid() {
		return fmt.Errorf("%w: collisionType %q", ErrInvalidField, m.CollisionType)
	}
	return nil
}

func (m UpdateHealthMessage) Validate() error { return nil }
func (m RespawnMessage) Validate() error { return nil }
func (m SetNameMessage) Validate() error { return nil }
func (m CaptureSkullMessage) Validate() error { return nil }

func (m InitMessage) Validate() error { return requireID(m.ID) }

func (m PlayersMessage) Validate() error {
	for _, p := range m.Players {
		if err := requireID(p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (m NewPlayerMessage) Validate() error { return requireID(m.Player.ID) }
func (m PlayerUpdateMessage) Validate() error { return requireID(m.ID) }
func (m PlayerLeftMessage) Validate() error { return requireID(m.ID) }

func (m NewProjectileMessage) Validate() error {
	return FireProjectileMessage{Projectile: m.Projectile}.Validate()
}

func (m HealthUpdateMessage) Validate() error { return requireID(m.ID) }
func (m PlayerNameMessage) Validate() error { return requireID(m.ID) }
func (m SkullModeMessage) Validate() error { return nil }
func (m SkullCapturedMessage) Validate() error { return nil }

func requireID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id", ErrInvalidField)
	}
	return nil
}
