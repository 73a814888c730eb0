package client

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/game"
	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

const (
	RespawnDelay = 5 * time.Second
	TombstoneTTL = 10 * time.Second
	remoteGrace  = 2 * time.Second
)

var (
	ErrNoLocalPlayer = errors.New("no local player yet")
	ErrDead          = errors.New("local player is dead")
	ErrReloading     = errors.New("cannons reloading")
)

// Sender is the outbound half of NetClient that the reconciler needs.
type Sender interface {
	SendProjectile(p net.ProjectileRecord) error
	RemoveProjectile(id string) error
	SendCollision(msg net.ProjectileCollisionMessage) error
	SendHealth(health int, attackerID string) error
	SendRespawn(pos net.Vec3) error
	CaptureSkull() error
}

// Entity is the client-side view of one boat.
type Entity struct {
	net.PlayerRecord
	Local bool
}

// View is a copy of everything the renderer draws in one frame.
type View struct {
	LocalID     string
	Players     []Entity
	Projectiles []game.Projectile
	Skull       net.SkullModeState
}

// Reconciler folds relay messages into the local entity table. Health is
// only ever written from healthUpdate confirmations; Damage just asks.
type Reconciler struct {
	mu sync.Mutex

	sender  Sender
	terrain game.Terrain
	scores  *game.Scoreboard

	localID     string
	localName   string
	entities    map[string]*Entity
	projectiles map[string]*game.Projectile
	tombstones  map[string]time.Time

	skull       net.SkullModeState
	captureSent bool

	pendingHealth *int
	lastFire      time.Time
	respawnTimer  *time.Timer
	respawnPos    *net.Vec3
	lives         uint64
	closed        bool

	now          func() time.Time
	spawn        func() net.Vec3
	respawnDelay time.Duration

	// Optional hooks, called without the lock held.
	OnDamageEffect    func(amount int, attackerID string)
	OnDeath           func(victimID, killerID string)
	OnRespawned       func(pos net.Vec3)
	OnModeActivated   func(state net.SkullModeState)
	OnModeDeactivated func(state net.SkullModeState)
	OnCaptured        func(playerID string)
}

func NewReconciler(terrain game.Terrain, scores *game.Scoreboard) *Reconciler {
	if scores == nil {
		scores = game.NewScoreboard(nil)
	}
	return &Reconciler{
		terrain:      terrain,
		scores:       scores,
		entities:     make(map[string]*Entity),
		projectiles:  make(map[string]*game.Projectile),
		tombstones:   make(map[string]time.Time),
		now:          time.Now,
		spawn:        func() net.Vec3 { return game.RandomSpawn(nil) },
		respawnDelay: RespawnDelay,
	}
}

// Attach sets the outbound channel. Dial needs the handlers first, so
// this happens after construction.
func (r *Reconciler) Attach(s Sender) {
	r.mu.Lock()
	r.sender = s
	r.mu.Unlock()
}

// Handlers wires every inbound message to the reconciler.
func (r *Reconciler) Handlers() Handlers {
	return Handlers{
		OnInit:                r.ApplyInit,
		OnPlayers:             r.ApplyPlayers,
		OnPlayerUpdate:        r.ApplyPlayerUpdate,
		OnPlayerJoin:          r.ApplyPlayerJoin,
		OnPlayerLeave:         r.ApplyPlayerLeave,
		OnProjectileUpdate:    r.ApplyNewProjectile,
		OnProjectileRemove:    func(m net.RemoveProjectileMessage) { r.ApplyRemoveProjectile(m.ProjectileID) },
		OnProjectileCollision: r.ApplyCollision,
		OnHealthUpdate:        r.ApplyHealthUpdate,
		OnPlayerName:          r.ApplyPlayerName,
		OnSkullMode:           r.ApplySkullMode,
		OnSkullCaptured:       r.ApplySkullCaptured,
		OnDisconnect: func(err error) {
			if err != nil {
				log.Printf("Disconnected: %v", err)
			}
			r.Shutdown()
		},
	}
}

func (r *Reconciler) ApplyInit(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.localID = id
	e := r.entities[id]
	if e == nil {
		e = &Entity{PlayerRecord: net.PlayerRecord{ID: id, Health: net.MaxHealth, IsAlive: true}}
		r.entities[id] = e
	}
	e.Local = true
	if r.localName != "" {
		e.Name = r.localName
	}
	r.scores.Ensure(id, e.Name)
}

// SetLocalName labels our own boat. The relay does not echo setName back.
func (r *Reconciler) SetLocalName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localName = name
	if e := r.entities[r.localID]; e != nil {
		e.Name = name
		r.scores.Ensure(e.ID, name)
	}
}

func (r *Reconciler) ApplyPlayers(players []net.PlayerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range players {
		r.upsertLocked(p)
	}
}

func (r *Reconciler) ApplyPlayerJoin(p net.PlayerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(p)
}

func (r *Reconciler) upsertLocked(p net.PlayerRecord) {
	if p.ID == "" || p.ID == r.localID {
		return
	}
	if e, ok := r.entities[p.ID]; ok && !fresh(e.Version, p.Version) {
		return
	}
	r.entities[p.ID] = &Entity{PlayerRecord: p}
	r.scores.Ensure(p.ID, p.Name)
}

func (r *Reconciler) ApplyPlayerLeave(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == r.localID {
		return
	}
	delete(r.entities, id)
	now := r.now()
	for pid, p := range r.projectiles {
		if p.PlayerID == id {
			delete(r.projectiles, pid)
			r.tombstones[pid] = now
		}
	}
}

// ApplyPlayerUpdate moves a remote boat. Our own boat is driven locally.
func (r *Reconciler) ApplyPlayerUpdate(m net.PlayerUpdateMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == r.localID {
		return
	}
	e, ok := r.entities[m.ID]
	if !ok {
		log.Printf("Ignoring update for unknown player %s", m.ID)
		return
	}
	if !fresh(e.Version, m.Version) {
		return
	}
	e.Position = m.Position
	e.Rotation = m.Rotation
	if m.Version != 0 {
		e.Version = m.Version
	}
}

func (r *Reconciler) ApplyPlayerName(m net.PlayerNameMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[m.ID]
	if !ok {
		return
	}
	e.Name = m.Name
	r.scores.Ensure(m.ID, m.Name)
}

// ApplyHealthUpdate is the only place health and liveness change.
func (r *Reconciler) ApplyHealthUpdate(m net.HealthUpdateMessage) {
	r.mu.Lock()

	e, ok := r.entities[m.ID]
	if !ok {
		r.mu.Unlock()
		log.Printf("Ignoring health for unknown player %s", m.ID)
		return
	}
	if !fresh(e.Version, m.Version) {
		r.mu.Unlock()
		return
	}

	wasAlive := e.IsAlive
	e.Health = net.ClampHealth(m.Health)
	e.IsAlive = m.IsAlive
	if m.Version != 0 {
		e.Version = m.Version
	}

	died := wasAlive && !e.IsAlive
	revived := !wasAlive && e.IsAlive
	if died {
		r.scores.RecordDeath(m.ID, m.AttackerID)
	}

	var respawned *net.Vec3
	if e.Local {
		switch {
		case died:
			r.pendingHealth = nil
			r.scheduleRespawnLocked()
		case revived:
			r.pendingHealth = nil
			r.cancelRespawnLocked()
			if r.respawnPos != nil {
				e.Position = *r.respawnPos
				respawned = r.respawnPos
				r.respawnPos = nil
			}
		case r.pendingHealth != nil && e.Health <= *r.pendingHealth:
			r.pendingHealth = nil
		}
	}

	onDeath, onRespawned := r.OnDeath, r.OnRespawned
	r.mu.Unlock()

	if died && onDeath != nil {
		onDeath(m.ID, m.AttackerID)
	}
	if respawned != nil && onRespawned != nil {
		onRespawned(*respawned)
	}
}

// Damage asks the relay to lower our health by amount. Local health stays
// as last confirmed. Hits landing before a confirmation stack on the
// pending value.
func (r *Reconciler) Damage(amount int, attackerID string) {
	r.mu.Lock()
	sender, proposed, ok := r.damageLocked(amount)
	effect := r.OnDamageEffect
	r.mu.Unlock()

	if !ok {
		return
	}
	r.requestHealth(sender, proposed, attackerID)
	if effect != nil {
		effect(amount, attackerID)
	}
}

func (r *Reconciler) damageLocked(amount int) (Sender, int, bool) {
	e := r.entities[r.localID]
	if e == nil || !e.IsAlive || amount <= 0 || r.closed {
		return nil, 0, false
	}
	base := e.Health
	if r.pendingHealth != nil && *r.pendingHealth < base {
		base = *r.pendingHealth
	}
	proposed := net.ClampHealth(base - amount)
	r.pendingHealth = &proposed
	return r.sender, proposed, true
}

func (r *Reconciler) requestHealth(sender Sender, health int, attackerID string) {
	if sender == nil {
		return
	}
	if err := sender.SendHealth(health, attackerID); err != nil {
		log.Printf("Health request failed: %v", err)
	}
}

func (r *Reconciler) scheduleRespawnLocked() {
	r.cancelRespawnLocked()
	if r.closed {
		return
	}
	r.lives++
	life := r.lives
	r.respawnTimer = time.AfterFunc(r.respawnDelay, func() { r.respawn(life) })
}

func (r *Reconciler) cancelRespawnLocked() {
	if r.respawnTimer != nil {
		r.respawnTimer.Stop()
		r.respawnTimer = nil
	}
}

func (r *Reconciler) respawn(life uint64) {
	r.mu.Lock()
	e := r.entities[r.localID]
	if r.closed || life != r.lives || e == nil || e.IsAlive || r.sender == nil {
		r.mu.Unlock()
		return
	}
	pos := r.spawn()
	r.respawnPos = &pos
	r.respawnTimer = nil
	sender := r.sender
	r.mu.Unlock()

	if err := sender.SendRespawn(pos); err != nil {
		log.Printf("Respawn request failed: %v", err)
	}
}

// RespawnPending reports whether a respawn timer is armed.
func (r *Reconciler) RespawnPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respawnTimer != nil
}

// ApplyNewProjectile mirrors a ball fired by anyone. Duplicates and balls
// already removed are ignored, so the order of fire and remove does not
// matter.
func (r *Reconciler) ApplyNewProjectile(rec net.ProjectileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, gone := r.tombstones[rec.ID]; gone {
		return
	}
	if _, ok := r.projectiles[rec.ID]; ok {
		return
	}
	r.projectiles[rec.ID] = &game.Projectile{ProjectileRecord: rec}
}

func (r *Reconciler) ApplyRemoveProjectile(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projectiles, id)
	r.tombstones[id] = r.now()
}

// ApplyCollision removes the ball and, when we were the target, files a
// damage request on our own behalf.
func (r *Reconciler) ApplyCollision(m net.ProjectileCollisionMessage) {
	r.mu.Lock()
	delete(r.projectiles, m.ProjectileID)
	r.tombstones[m.ProjectileID] = r.now()

	hitUs := m.CollisionType == net.CollisionPlayer && m.TargetID != "" && m.TargetID == r.localID
	r.mu.Unlock()

	if hitUs {
		r.Damage(game.ProjectileDamage, m.PlayerID)
	}
}

func (r *Reconciler) ApplySkullMode(state net.SkullModeState) {
	r.mu.Lock()
	prev := r.skull
	r.skull = state

	var cb func(net.SkullModeState)
	switch {
	case !prev.IsActive && state.IsActive:
		r.captureSent = false
		cb = r.OnModeActivated
	case prev.IsActive && !state.IsActive:
		r.captureSent = false
		cb = r.OnModeDeactivated
	}
	r.mu.Unlock()

	if cb != nil {
		cb(state)
	}
}

func (r *Reconciler) ApplySkullCaptured(playerID string) {
	r.mu.Lock()
	r.skull.IsSkullCaptured = true
	r.skull.CapturedBy = playerID
	cb := r.OnCaptured
	r.mu.Unlock()

	if cb != nil {
		cb(playerID)
	}
}

// SetLocalTransform records where our boat is after local movement.
func (r *Reconciler) SetLocalTransform(pos net.Vec3, rot net.Rotation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.entities[r.localID]; e != nil {
		e.Position = pos
		e.Rotation = rot
	}
}

// Fire launches a ball from our boat and announces it.
func (r *Reconciler) Fire() (net.ProjectileRecord, error) {
	r.mu.Lock()
	e := r.entities[r.localID]
	now := r.now()
	switch {
	case e == nil:
		r.mu.Unlock()
		return net.ProjectileRecord{}, ErrNoLocalPlayer
	case !e.IsAlive:
		r.mu.Unlock()
		return net.ProjectileRecord{}, ErrDead
	case now.Sub(r.lastFire) < game.ReloadTime:
		r.mu.Unlock()
		return net.ProjectileRecord{}, ErrReloading
	}
	r.lastFire = now
	rec := game.Launch(uuid.NewString(), e.ID, e.Position, e.Rotation.Y, now)
	r.projectiles[rec.ID] = &game.Projectile{ProjectileRecord: rec}
	sender := r.sender
	r.mu.Unlock()

	if sender == nil {
		return rec, ErrNotConnected
	}
	return rec, sender.SendProjectile(rec)
}

// Tick steps every ball. Balls we own are checked for impact and expiry
// and their outcome is sent; other balls only move and wait for their
// owner's removal.
func (r *Reconciler) Tick(dt float64) {
	r.mu.Lock()
	now := r.now()

	var (
		collisions []net.ProjectileCollisionMessage
		removals   []string
		capture    bool
	)

	boats := r.boatsLocked()
	for id, p := range r.projectiles {
		p.Step(dt)

		if p.PlayerID != r.localID || r.localID == "" {
			if now.Sub(time.UnixMilli(p.Timestamp)) >= game.ProjectileLifetime+remoteGrace {
				delete(r.projectiles, id)
				r.tombstones[id] = now
			}
			continue
		}

		if p.Expired(now) || !game.InBounds(p.Position) {
			delete(r.projectiles, id)
			r.tombstones[id] = now
			removals = append(removals, id)
			continue
		}

		impact, hit := game.CheckImpact(p.Position, r.localID, boats, r.terrain)
		if !hit {
			continue
		}
		delete(r.projectiles, id)
		r.tombstones[id] = now
		collisions = append(collisions, net.ProjectileCollisionMessage{
			ProjectileID:  id,
			PlayerID:      r.localID,
			Position:      impact.Position,
			CollisionType: impact.Type,
			TargetID:      impact.TargetID,
		})
		removals = append(removals, id)
	}

	for id, at := range r.tombstones {
		if now.Sub(at) >= TombstoneTTL {
			delete(r.tombstones, id)
		}
	}

	if e := r.entities[r.localID]; e != nil && e.IsAlive && !r.captureSent && game.CanCapture(e.Position, r.skull) {
		r.captureSent = true
		capture = true
	}

	sender := r.sender
	r.mu.Unlock()

	if sender == nil {
		return
	}
	for _, c := range collisions {
		if err := sender.SendCollision(c); err != nil {
			log.Printf("Collision send failed: %v", err)
		}
	}
	for _, id := range removals {
		if err := sender.RemoveProjectile(id); err != nil {
			log.Printf("Remove send failed: %v", err)
		}
	}
	if capture {
		if err := sender.CaptureSkull(); err != nil {
			log.Printf("Capture send failed: %v", err)
		}
	}
}

func (r *Reconciler) boatsLocked() []net.PlayerRecord {
	boats := make([]net.PlayerRecord, 0, len(r.entities))
	for _, e := range r.entities {
		boats = append(boats, e.PlayerRecord)
	}
	return boats
}

// Shutdown cancels timers. The reconciler ignores later respawn requests.
func (r *Reconciler) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cancelRespawnLocked()
}

func (r *Reconciler) LocalID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localID
}

func (r *Reconciler) Entity(id string) (Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

func (r *Reconciler) HasProjectile(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.projectiles[id]
	return ok
}

func (r *Reconciler) ProjectileCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.projectiles)
}

func (r *Reconciler) Skull() net.SkullModeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skull
}

func (r *Reconciler) Scores() []game.ScoreRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scores.Records()
}

// Snapshot copies the world for drawing, players in id order.
func (r *Reconciler) Snapshot() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{LocalID: r.localID, Skull: r.skull}
	for _, e := range r.entities {
		v.Players = append(v.Players, *e)
	}
	sort.Slice(v.Players, func(i, j int) bool { return v.Players[i].ID < v.Players[j].ID })
	for _, p := range r.projectiles {
		v.Projectiles = append(v.Projectiles, *p)
	}
	return v
}
