package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrSendBufferFull = errors.New("send buffer full")
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Handlers receive inbound messages on the read goroutine. Nil entries are
// skipped.
type Handlers struct {
	OnInit                func(id string)
	OnPlayers             func(players []net.PlayerRecord)
	OnPlayerUpdate        func(msg net.PlayerUpdateMessage)
	OnPlayerJoin          func(player net.PlayerRecord)
	OnPlayerLeave         func(id string)
	OnProjectileUpdate    func(projectile net.ProjectileRecord)
	OnProjectileRemove    func(msg net.RemoveProjectileMessage)
	OnProjectileCollision func(msg net.ProjectileCollisionMessage)
	OnHealthUpdate        func(msg net.HealthUpdateMessage)
	OnPlayerName          func(msg net.PlayerNameMessage)
	OnSkullMode           func(state net.SkullModeState)
	OnSkullCaptured       func(playerID string)
	OnDisconnect          func(err error)
}

// NetClient owns one socket to the relay. It never reconnects on its own:
// after OnDisconnect the caller dials again and gets a new identity.
type NetClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	handlers  Handlers
	connected atomic.Bool
	closeOnce sync.Once

	mu       sync.Mutex
	playerID string
	players  map[string]net.PlayerRecord
}

func Dial(ctx context.Context, url string, h Handlers) (*NetClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	nc := &NetClient{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		handlers: h,
		players:  make(map[string]net.PlayerRecord),
	}
	nc.connected.Store(true)

	go nc.readPump()
	go nc.writePump()

	return nc, nil
}

func (nc *NetClient) Connected() bool { return nc.connected.Load() }

// ID is the id assigned by the relay's init message, empty until then.
func (nc *NetClient) ID() string {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.playerID
}

// Players returns a copy of the remote roster mirror.
func (nc *NetClient) Players() []net.PlayerRecord {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	out := make([]net.PlayerRecord, 0, len(nc.players))
	for _, p := range nc.players {
		out = append(out, p)
	}
	return out
}

func (nc *NetClient) Close() error {
	nc.shutdown(nil)
	return nil
}

func (nc *NetClient) SendUpdate(pos net.Vec3, rot net.Rotation) error {
	return nc.sendMessage(net.UpdateMessage{Position: pos, Rotation: rot})
}

func (nc *NetClient) SendProjectile(p net.ProjectileRecord) error {
	return nc.sendMessage(net.FireProjectileMessage{Projectile: p})
}

func (nc *NetClient) RemoveProjectile(id string) error {
	return nc.sendMessage(net.RemoveProjectileMessage{ProjectileID: id, PlayerID: nc.ID()})
}

func (nc *NetClient) SendCollision(msg net.ProjectileCollisionMessage) error {
	return nc.sendMessage(msg)
}

// SendHealth asks the relay to set our health. Nothing changes locally
// until the healthUpdate comes back.
func (nc *NetClient) SendHealth(health int, attackerID string) error {
	return nc.sendMessage(net.UpdateHealthMessage{Health: health, AttackerID: attackerID})
}

func (nc *NetClient) SendRespawn(pos net.Vec3) error {
	return nc.sendMessage(net.RespawnMessage{Position: pos})
}

func (nc *NetClient) SendName(name string) error {
	return nc.sendMessage(net.SetNameMessage{Name: name})
}

func (nc *NetClient) CaptureSkull() error {
	return nc.sendMessage(net.CaptureSkullMessage{})
}

func (nc *NetClient) sendMessage(msg net.Message) error {
	if !nc.connected.Load() {
		return ErrNotConnected
	}
	data, err := net.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-nc.done:
		return ErrNotConnected
	default:
	}
	select {
	case nc.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (nc *NetClient) shutdown(cause error) {
	nc.closeOnce.Do(func() {
		nc.connected.Store(false)
		close(nc.done)
		nc.conn.Close()
		if nc.handlers.OnDisconnect != nil {
			nc.handlers.OnDisconnect(cause)
		}
	})
}

func (nc *NetClient) readPump() {
	var cause error
	defer func() { nc.shutdown(cause) }()

	for {
		_, message, err := nc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			cause = err
			return
		}

		msg, err := net.DecodeServer(message)
		if err != nil {
			log.Printf("Discarding malformed frame: %v", err)
			continue
		}
		nc.dispatch(msg)
	}
}

func (nc *NetClient) writePump() {
	for {
		select {
		case <-nc.done:
			nc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			nc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-nc.send:
			nc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := nc.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				nc.shutdown(err)
				return
			}
		}
	}
}

// dispatch updates the roster mirror and then calls the matching handler.
func (nc *NetClient) dispatch(msg net.Message) {
	h := nc.handlers

	switch m := msg.(type) {
	case net.InitMessage:
		nc.mu.Lock()
		nc.playerID = m.ID
		nc.mu.Unlock()
		if h.OnInit != nil {
			h.OnInit(m.ID)
		}

	case net.PlayersMessage:
		nc.mu.Lock()
		nc.players = make(map[string]net.PlayerRecord, len(m.Players))
		for _, p := range m.Players {
			if p.ID != nc.playerID {
				nc.players[p.ID] = p
			}
		}
		nc.mu.Unlock()
		if h.OnPlayers != nil {
			h.OnPlayers(m.Players)
		}

	case net.NewPlayerMessage:
		nc.mu.Lock()
		if m.Player.ID != nc.playerID {
			nc.players[m.Player.ID] = m.Player
		}
		nc.mu.Unlock()
		if h.OnPlayerJoin != nil {
			h.OnPlayerJoin(m.Player)
		}

	case net.PlayerUpdateMessage:
		nc.mu.Lock()
		if p, ok := nc.players[m.ID]; ok && fresh(p.Version, m.Version) {
			p.Position = m.Position
			p.Rotation = m.Rotation
			p.Version = m.Version
			nc.players[m.ID] = p
		}
		nc.mu.Unlock()
		if h.OnPlayerUpdate != nil {
			h.OnPlayerUpdate(m)
		}

	case net.PlayerLeftMessage:
		nc.mu.Lock()
		delete(nc.players, m.ID)
		nc.mu.Unlock()
		if h.OnPlayerLeave != nil {
			h.OnPlayerLeave(m.ID)
		}

	case net.HealthUpdateMessage:
		nc.mu.Lock()
		if p, ok := nc.players[m.ID]; ok && fresh(p.Version, m.Version) {
			p.Health = m.Health
			p.IsAlive = m.IsAlive
			p.Version = m.Version
			nc.players[m.ID] = p
		}
		nc.mu.Unlock()
		if h.OnHealthUpdate != nil {
			h.OnHealthUpdate(m)
		}

	case net.PlayerNameMessage:
		nc.mu.Lock()
		if p, ok := nc.players[m.ID]; ok {
			p.Name = m.Name
			nc.players[m.ID] = p
		}
		nc.mu.Unlock()
		if h.OnPlayerName != nil {
			h.OnPlayerName(m)
		}

	case net.NewProjectileMessage:
		if h.OnProjectileUpdate != nil {
			h.OnProjectileUpdate(m.Projectile)
		}

	case net.RemoveProjectileMessage:
		if h.OnProjectileRemove != nil {
			h.OnProjectileRemove(m)
		}

	case net.ProjectileCollisionMessage:
		if h.OnProjectileCollision != nil {
			h.OnProjectileCollision(m)
		}

	case net.SkullModeMessage:
		if h.OnSkullMode != nil {
			h.OnSkullMode(m.State)
		}

	case net.SkullCapturedMessage:
		if h.OnSkullCaptured != nil {
			h.OnSkullCaptured(m.PlayerID)
		}
	}
}

// fresh reports whether an incoming version supersedes the stored one.
// Version 0 means the sender does not sequence and always applies.
func fresh(have, incoming uint64) bool {
	return incoming == 0 || incoming > have
}
