package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/game"
	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

var (
	ErrUnknownPlayer = errors.New("unknown player")
	ErrNotOwner      = errors.New("projectile owned by another player")
)

// Peer is the outbound half of a connection. Send must not block; it
// reports false when the frame was dropped.
type Peer interface {
	Send(data []byte) bool
}

type Options struct {
	SkullNormal time.Duration
	SkullEvent  time.Duration
	NewID       func() string   // defaults to uuid.NewString
	PlaceSkull  func() net.Vec3 // defaults to game.RandomSkullPoint
}

// Relay is the server session: roster, active projectiles and the skull
// timer. It fans client messages out to the other connections without
// judging them.
type Relay struct {
	mu          sync.Mutex
	players     map[string]*net.PlayerRecord
	joinOrder   []string
	peers       map[string]Peer
	projectiles map[string]net.ProjectileRecord
	skull       *game.SkullTimer
	newID       func() string
}

// Status is the JSON body of /api/status.
type Status struct {
	Players     []net.PlayerRecord `json:"players"`
	Projectiles int                `json:"projectiles"`
	Skull       net.SkullModeState `json:"skull"`
}

func NewRelay(opts Options) *Relay {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	r := &Relay{
		players:     make(map[string]*net.PlayerRecord),
		peers:       make(map[string]Peer),
		projectiles: make(map[string]net.ProjectileRecord),
		newID:       newID,
	}

	r.skull = game.NewSkullTimer(opts.SkullNormal, opts.SkullEvent, opts.PlaceSkull)
	r.skull.OnModeActivated = func(state net.SkullModeState) {
		log.Printf("Skull mode active at (%.0f, %.0f) for %.0fs", state.SkullPosition.X, state.SkullPosition.Z, state.Countdown)
		r.broadcastUnlocked(net.SkullModeMessage{State: state}, "")
	}
	r.skull.OnModeDeactivated = func(state net.SkullModeState) {
		log.Printf("Skull mode over, next event in %.0fs", state.Countdown)
		r.broadcastUnlocked(net.SkullModeMessage{State: state}, "")
	}
	r.skull.OnCaptured = func(playerID string) {
		log.Printf("Player %s captured the skull", playerID)
		r.broadcastUnlocked(net.SkullCapturedMessage{PlayerID: playerID}, "")
		r.broadcastUnlocked(net.SkullModeMessage{State: r.skull.State()}, "")
	}
	return r
}

// Join registers a new connection and returns its player id. The joiner
// receives init, the current roster, the active projectiles and the skull
// state; everyone else is told about the new player.
func (r *Relay) Join(peer Peer) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for r.players[id] != nil {
		id = r.newID()
	}

	player := &net.PlayerRecord{
		ID:      id,
		Health:  net.MaxHealth,
		IsAlive: true,
		Name:    defaultName(id),
		Version: 1,
	}

	sendUnlocked(peer, net.InitMessage{ID: id})
	sendUnlocked(peer, net.PlayersMessage{Players: r.rosterUnlocked()})
	for _, proj := range r.projectiles {
		sendUnlocked(peer, net.NewProjectileMessage{Projectile: proj})
	}
	sendUnlocked(peer, net.SkullModeMessage{State: r.skull.State()})

	r.broadcastUnlocked(net.NewPlayerMessage{Player: *player}, "")

	r.players[id] = player
	r.joinOrder = append(r.joinOrder, id)
	r.peers[id] = peer

	log.Printf("Player %s (%s) joined, %d connected", id, player.Name, len(r.players))
	return id
}

// Leave drops the player, their projectiles and tells everyone left.
func (r *Relay) Leave(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[id]; !ok {
		return
	}
	delete(r.players, id)
	delete(r.peers, id)
	for i, pid := range r.joinOrder {
		if pid == id {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}

	for projID, proj := range r.projectiles {
		if proj.PlayerID != id {
			continue
		}
		delete(r.projectiles, projID)
		r.broadcastUnlocked(net.RemoveProjectileMessage{ProjectileID: projID, PlayerID: id}, "")
	}
	r.broadcastUnlocked(net.PlayerLeftMessage{ID: id}, "")

	log.Printf("Player %s left, %d connected", id, len(r.players))
}

// Handle decodes one frame from player id and relays it. Errors cover only
// this frame; the caller logs them and keeps reading.
func (r *Relay) Handle(id string, frame []byte) error {
	msg, err := net.DecodeClient(frame)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}

	switch m := msg.(type) {
	case net.UpdateMessage:
		player.Position = m.Position
		player.Rotation = m.Rotation
		player.Version++
		r.broadcastUnlocked(net.PlayerUpdateMessage{
			ID:       id,
			Position: player.Position,
			Rotation: player.Rotation,
			Version:  player.Version,
		}, id)

	case net.FireProjectileMessage:
		proj := m.Projectile
		if existing, ok := r.projectiles[proj.ID]; ok && existing.PlayerID != id {
			return fmt.Errorf("fire %s: %w", proj.ID, ErrNotOwner)
		}
		proj.PlayerID = id
		r.projectiles[proj.ID] = proj
		r.broadcastUnlocked(net.NewProjectileMessage{Projectile: proj}, "")

	case net.RemoveProjectileMessage:
		owner := id
		if proj, ok := r.projectiles[m.ProjectileID]; ok {
			if proj.PlayerID != id {
				return fmt.Errorf("remove %s: %w", m.ProjectileID, ErrNotOwner)
			}
			delete(r.projectiles, m.ProjectileID)
		} else {
			log.Printf("Player %s removed unknown projectile %s", id, m.ProjectileID)
		}
		r.broadcastUnlocked(net.RemoveProjectileMessage{ProjectileID: m.ProjectileID, PlayerID: owner}, "")

	case net.ProjectileCollisionMessage:
		if m.PlayerID == "" {
			m.PlayerID = id
		}
		r.broadcastUnlocked(m, id)

	case net.UpdateHealthMessage:
		player.Health = net.ClampHealth(m.Health)
		wasAlive := player.IsAlive
		player.IsAlive = player.Health > 0
		player.Version++
		if wasAlive && !player.IsAlive {
			log.Printf("Player %s sunk (attacker %q)", id, m.AttackerID)
		}
		r.broadcastUnlocked(net.HealthUpdateMessage{
			ID:         id,
			Health:     player.Health,
			IsAlive:    player.IsAlive,
			AttackerID: m.AttackerID,
			Version:    player.Version,
		}, "")

	case net.RespawnMessage:
		player.Health = net.MaxHealth
		player.IsAlive = true
		player.Position = m.Position
		player.Version++
		r.broadcastUnlocked(net.HealthUpdateMessage{
			ID:      id,
			Health:  player.Health,
			IsAlive: true,
			Version: player.Version,
		}, "")
		player.Version++
		r.broadcastUnlocked(net.PlayerUpdateMessage{
			ID:       id,
			Position: player.Position,
			Rotation: player.Rotation,
			Version:  player.Version,
		}, id)

	case net.SetNameMessage:
		name := net.SanitizeName(m.Name)
		if name == "" {
			return fmt.Errorf("set name for %s: %w", id, net.ErrInvalidField)
		}
		player.Name = name
		r.broadcastUnlocked(net.PlayerNameMessage{ID: id, Name: name}, id)

	case net.CaptureSkullMessage:
		if err := r.skull.Capture(id); err != nil {
			return fmt.Errorf("capture by %s: %w", id, err)
		}

	default:
		return fmt.Errorf("%w: %s", net.ErrUnknownType, msg.MessageType())
	}
	return nil
}

// Tick advances the skull timer by dt seconds.
func (r *Relay) Tick(dt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skull.Tick(dt)
}

// Run drives Tick every interval and rebroadcasts the skull state every
// broadcastEvery until ctx is done.
func (r *Relay) Run(ctx context.Context, interval, broadcastEvery time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	lastBroadcast := last
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Tick(now.Sub(last).Seconds())
			last = now
			if broadcastEvery > 0 && now.Sub(lastBroadcast) >= broadcastEvery {
				r.mu.Lock()
				r.broadcastUnlocked(net.SkullModeMessage{State: r.skull.State()}, "")
				r.mu.Unlock()
				lastBroadcast = now
			}
		}
	}
}

func (r *Relay) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Players:     r.rosterUnlocked(),
		Projectiles: len(r.projectiles),
		Skull:       r.skull.State(),
	}
}

// rosterUnlocked copies the roster in join order. Caller holds r.mu.
func (r *Relay) rosterUnlocked() []net.PlayerRecord {
	out := make([]net.PlayerRecord, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		if p, ok := r.players[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// broadcastUnlocked encodes msg once and queues it on every peer except
// the one named. Caller holds r.mu.
func (r *Relay) broadcastUnlocked(msg net.Message, except string) {
	data, err := net.Encode(msg)
	if err != nil {
		log.Printf("Error encoding %s: %v", msg.MessageType(), err)
		return
	}
	for id, peer := range r.peers {
		if id == except {
			continue
		}
		if !peer.Send(data) {
			log.Printf("Send buffer full for player %s, dropped %s", id, msg.MessageType())
		}
	}
}

func sendUnlocked(peer Peer, msg net.Message) {
	data, err := net.Encode(msg)
	if err != nil {
		log.Printf("Error encoding %s: %v", msg.MessageType(), err)
		return
	}
	if !peer.Send(data) {
		log.Printf("Send buffer full, dropped %s", msg.MessageType())
	}
}

func defaultName(id string) string {
	if len(id) > 4 {
		id = id[:4]
	}
	return "Sailor-" + id
}
