package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/game"
	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

type fakePeer struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (f *fakePeer) Send(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.frames = append(f.frames, cp)
	return true
}

// drain decodes and clears everything queued so far.
func (f *fakePeer) drain(t *testing.T) []net.Message {
	t.Helper()
	f.mu.Lock()
	frames := f.frames
	f.frames = nil
	f.mu.Unlock()

	out := make([]net.Message, 0, len(frames))
	for _, b := range frames {
		msg, err := net.DecodeServer(b)
		if err != nil {
			t.Fatalf("relay sent undecodable frame %s: %v", b, err)
		}
		out = append(out, msg)
	}
	return out
}

func ofType[T net.Message](msgs []net.Message) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func newTestRelay() *Relay {
	n := 0
	return NewRelay(Options{
		SkullNormal: time.Second,
		SkullEvent:  2 * time.Second,
		NewID: func() string {
			n++
			return fmt.Sprintf("p%d", n)
		},
		PlaceSkull: func() net.Vec3 { return net.Vec3{X: 10, Y: 1, Z: 10} },
	})
}

func mustHandle(t *testing.T, r *Relay, id string, msg net.Message) {
	t.Helper()
	b, err := net.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := r.Handle(id, b); err != nil {
		t.Fatalf("handle %s from %s: %v", msg.MessageType(), id, err)
	}
}

func TestJoinSendsInitThenRosterThenAnnounces(t *testing.T) {
	r := newTestRelay()
	a := &fakePeer{}
	idA := r.Join(a)
	if idA != "p1" {
		t.Fatalf("first id = %q, want p1", idA)
	}

	msgs := a.drain(t)
	if len(msgs) < 2 {
		t.Fatalf("joiner got %d messages, want at least init and players", len(msgs))
	}
	if init, ok := msgs[0].(net.InitMessage); !ok || init.ID != "p1" {
		t.Fatalf("first message = %#v, want init{p1}", msgs[0])
	}
	if players, ok := msgs[1].(net.PlayersMessage); !ok || len(players.Players) != 0 {
		t.Fatalf("second message = %#v, want empty players", msgs[1])
	}

	b := &fakePeer{}
	idB := r.Join(b)
	bMsgs := b.drain(t)
	players := bMsgs[1].(net.PlayersMessage)
	if len(players.Players) != 1 || players.Players[0].ID != idA {
		t.Fatalf("B roster = %+v, want only %s", players.Players, idA)
	}

	joins := ofType[net.NewPlayerMessage](a.drain(t))
	if len(joins) != 1 || joins[0].Player.ID != idB {
		t.Fatalf("A saw joins %+v, want one for %s", joins, idB)
	}
	if got := ofType[net.NewPlayerMessage](bMsgs); len(got) != 0 {
		t.Fatalf("joiner was announced to itself: %+v", got)
	}
	if p := joins[0].Player; p.Health != net.MaxHealth || !p.IsAlive || p.Name == "" {
		t.Fatalf("new player default state = %+v", p)
	}
}

func TestUpdateIsNeverEchoedToSender(t *testing.T) {
	r := newTestRelay()
	a, b := &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	r.Join(b)
	a.drain(t)
	b.drain(t)

	for i := 0; i < 5; i++ {
		mustHandle(t, r, idA, net.UpdateMessage{Position: net.Vec3{X: float64(i)}, Rotation: net.Rotation{Y: 0.5}})
	}

	if echoed := ofType[net.PlayerUpdateMessage](a.drain(t)); len(echoed) != 0 {
		t.Fatalf("sender received %d of its own updates", len(echoed))
	}
	updates := ofType[net.PlayerUpdateMessage](b.drain(t))
	if len(updates) != 5 {
		t.Fatalf("B got %d updates, want 5", len(updates))
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].Version <= updates[i-1].Version {
			t.Fatalf("versions not increasing: %d then %d", updates[i-1].Version, updates[i].Version)
		}
	}
	if last := updates[4]; last.ID != idA || last.Position.X != 4 {
		t.Fatalf("last update = %+v", last)
	}
}

func TestLateJoinerSeesLatestPosition(t *testing.T) {
	r := newTestRelay()
	a := &fakePeer{}
	idA := r.Join(a)
	mustHandle(t, r, idA, net.UpdateMessage{Position: net.Vec3{X: 1, Y: 0, Z: 2}, Rotation: net.Rotation{Y: 0}})

	b := &fakePeer{}
	r.Join(b)
	players := ofType[net.PlayersMessage](b.drain(t))
	if len(players) != 1 || len(players[0].Players) != 1 {
		t.Fatalf("players messages = %+v", players)
	}
	got := players[0].Players[0]
	if got.ID != "p1" || got.Position != (net.Vec3{X: 1, Y: 0, Z: 2}) {
		t.Fatalf("roster entry = %+v, want p1 at {1,0,2}", got)
	}
}

func TestLeaveRemovesOwnedProjectilesThenPlayer(t *testing.T) {
	r := newTestRelay()
	a, b, c := &fakePeer{}, &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	idB := r.Join(b)
	r.Join(c)

	mustHandle(t, r, idA, net.FireProjectileMessage{Projectile: net.ProjectileRecord{ID: "a-1"}})
	mustHandle(t, r, idA, net.FireProjectileMessage{Projectile: net.ProjectileRecord{ID: "a-2"}})
	mustHandle(t, r, idB, net.FireProjectileMessage{Projectile: net.ProjectileRecord{ID: "b-1"}})
	b.drain(t)
	c.drain(t)

	r.Leave(idA)
	r.Leave(idA) // second leave is a no-op

	for name, peer := range map[string]*fakePeer{"B": b, "C": c} {
		msgs := peer.drain(t)
		removed := ofType[net.RemoveProjectileMessage](msgs)
		if len(removed) != 2 {
			t.Fatalf("%s saw %d removals, want 2", name, len(removed))
		}
		for _, rm := range removed {
			if rm.PlayerID != idA {
				t.Fatalf("%s removal for wrong owner: %+v", name, rm)
			}
		}
		left := ofType[net.PlayerLeftMessage](msgs)
		if len(left) != 1 || left[0].ID != idA {
			t.Fatalf("%s playerLeft = %+v", name, left)
		}
		if _, ok := msgs[len(msgs)-1].(net.PlayerLeftMessage); !ok {
			t.Fatalf("%s: playerLeft should follow the removals", name)
		}
	}

	st := r.Status()
	if len(st.Players) != 2 || st.Projectiles != 1 {
		t.Fatalf("status = %d players %d projectiles, want 2 and 1", len(st.Players), st.Projectiles)
	}
}

func TestFireThenRemoveLeavesNothingForLateJoiners(t *testing.T) {
	r := newTestRelay()
	a, b := &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	r.Join(b)
	a.drain(t)
	b.drain(t)

	mustHandle(t, r, idA, net.FireProjectileMessage{Projectile: net.ProjectileRecord{ID: "ball", PlayerID: "spoofed"}})
	fired := ofType[net.NewProjectileMessage](a.drain(t))
	if len(fired) != 1 {
		t.Fatalf("sender should also receive newProjectile, got %d", len(fired))
	}
	if fired[0].Projectile.PlayerID != idA {
		t.Fatalf("owner = %q, want connection id %q", fired[0].Projectile.PlayerID, idA)
	}

	mustHandle(t, r, idA, net.RemoveProjectileMessage{ProjectileID: "ball"})
	msgs := b.drain(t)
	if len(ofType[net.NewProjectileMessage](msgs)) != 1 || len(ofType[net.RemoveProjectileMessage](msgs)) != 1 {
		t.Fatalf("B messages = %#v", msgs)
	}

	late := &fakePeer{}
	r.Join(late)
	if got := ofType[net.NewProjectileMessage](late.drain(t)); len(got) != 0 {
		t.Fatalf("late joiner received removed projectile: %+v", got)
	}
}

func TestLateJoinerCatchesUpOnActiveProjectiles(t *testing.T) {
	r := newTestRelay()
	idA := r.Join(&fakePeer{})
	mustHandle(t, r, idA, net.FireProjectileMessage{Projectile: net.ProjectileRecord{ID: "live", Velocity: net.Vec3{Z: 70}}})

	late := &fakePeer{}
	r.Join(late)
	got := ofType[net.NewProjectileMessage](late.drain(t))
	if len(got) != 1 || got[0].Projectile.ID != "live" || got[0].Projectile.Velocity.Z != 70 {
		t.Fatalf("catch-up projectiles = %+v", got)
	}
}

func TestRemoveByNonOwnerRejected(t *testing.T) {
	r := newTestRelay()
	idA := r.Join(&fakePeer{})
	idB := r.Join(&fakePeer{})
	mustHandle(t, r, idA, net.FireProjectileMessage{Projectile: net.ProjectileRecord{ID: "ball"}})

	frame, _ := net.Encode(net.RemoveProjectileMessage{ProjectileID: "ball"})
	if err := r.Handle(idB, frame); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if r.Status().Projectiles != 1 {
		t.Fatalf("projectile removed by non-owner")
	}
}

func TestHealthRequestConfirmedToEveryone(t *testing.T) {
	r := newTestRelay()
	a, b := &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	idB := r.Join(b)
	a.drain(t)
	b.drain(t)

	mustHandle(t, r, idA, net.UpdateHealthMessage{Health: -30, AttackerID: idB})

	for name, peer := range map[string]*fakePeer{"A": a, "B": b} {
		hu := ofType[net.HealthUpdateMessage](peer.drain(t))
		if len(hu) != 1 {
			t.Fatalf("%s got %d health updates, want 1", name, len(hu))
		}
		if hu[0].ID != idA || hu[0].Health != 0 || hu[0].IsAlive || hu[0].AttackerID != idB {
			t.Fatalf("%s health update = %+v", name, hu[0])
		}
	}

	mustHandle(t, r, idA, net.UpdateHealthMessage{Health: 250})
	if hu := ofType[net.HealthUpdateMessage](b.drain(t)); hu[0].Health != net.MaxHealth || !hu[0].IsAlive {
		t.Fatalf("health not clamped to max: %+v", hu[0])
	}
}

func TestRespawnRestoresHealthAndPosition(t *testing.T) {
	r := newTestRelay()
	a, b := &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	r.Join(b)
	mustHandle(t, r, idA, net.UpdateHealthMessage{Health: 0})
	a.drain(t)
	b.drain(t)

	spawn := net.Vec3{X: -220, Z: -220}
	mustHandle(t, r, idA, net.RespawnMessage{Position: spawn})

	aMsgs := a.drain(t)
	if hu := ofType[net.HealthUpdateMessage](aMsgs); len(hu) != 1 || !hu[0].IsAlive || hu[0].Health != net.MaxHealth {
		t.Fatalf("respawning player confirmation = %+v", hu)
	}
	if pu := ofType[net.PlayerUpdateMessage](aMsgs); len(pu) != 0 {
		t.Fatalf("respawn position echoed to sender")
	}

	bMsgs := b.drain(t)
	hu := ofType[net.HealthUpdateMessage](bMsgs)
	pu := ofType[net.PlayerUpdateMessage](bMsgs)
	if len(hu) != 1 || len(pu) != 1 || pu[0].Position != spawn {
		t.Fatalf("observer respawn messages = %#v", bMsgs)
	}
	if pu[0].Version <= hu[0].Version {
		t.Fatalf("position version %d should follow health version %d", pu[0].Version, hu[0].Version)
	}
}

func TestCollisionForwardedToOthersOnly(t *testing.T) {
	r := newTestRelay()
	a, b := &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	idB := r.Join(b)
	a.drain(t)
	b.drain(t)

	mustHandle(t, r, idA, net.ProjectileCollisionMessage{
		ProjectileID:  "ball",
		Position:      net.Vec3{X: 3},
		CollisionType: net.CollisionPlayer,
		TargetID:      idB,
	})
	if got := a.drain(t); len(got) != 0 {
		t.Fatalf("collision echoed to sender: %#v", got)
	}
	col := ofType[net.ProjectileCollisionMessage](b.drain(t))
	if len(col) != 1 || col[0].PlayerID != idA || col[0].TargetID != idB {
		t.Fatalf("forwarded collision = %+v", col)
	}
}

func TestSetName(t *testing.T) {
	r := newTestRelay()
	a, b := &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	r.Join(b)
	b.drain(t)

	mustHandle(t, r, idA, net.SetNameMessage{Name: "  Calavera  "})
	names := ofType[net.PlayerNameMessage](b.drain(t))
	if len(names) != 1 || names[0].Name != "Calavera" {
		t.Fatalf("playerName = %+v", names)
	}
	if r.Status().Players[0].Name != "Calavera" {
		t.Fatalf("roster name not stored")
	}

	frame, _ := net.Encode(net.SetNameMessage{Name: "   "})
	if err := r.Handle(idA, frame); !errors.Is(err, net.ErrInvalidField) {
		t.Fatalf("blank name err = %v, want ErrInvalidField", err)
	}
}

func TestMalformedFramesAreDiscarded(t *testing.T) {
	r := newTestRelay()
	a, b := &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	r.Join(b)
	b.drain(t)

	bad := [][]byte{
		[]byte("{oops"),
		[]byte(`{"type":"update"}`),
		[]byte(`{"type":"warp"}`),
		[]byte(`{"type":"fireProjectile","projectile":{"id":""}}`),
	}
	for _, frame := range bad {
		err := r.Handle(idA, frame)
		var de *net.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("frame %s: err = %v, want DecodeError", frame, err)
		}
	}
	if got := b.drain(t); len(got) != 0 {
		t.Fatalf("malformed frames were relayed: %#v", got)
	}

	mustHandle(t, r, idA, net.UpdateMessage{Position: net.Vec3{X: 9}})
	if got := ofType[net.PlayerUpdateMessage](b.drain(t)); len(got) != 1 {
		t.Fatalf("relay stopped working after bad frames")
	}
}

func TestUnknownPlayer(t *testing.T) {
	r := newTestRelay()
	frame, _ := net.Encode(net.UpdateMessage{})
	if err := r.Handle("ghost", frame); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("err = %v, want ErrUnknownPlayer", err)
	}
}

func TestSkullCaptureFirstReportWins(t *testing.T) {
	r := newTestRelay()
	a, b := &fakePeer{}, &fakePeer{}
	idA := r.Join(a)
	idB := r.Join(b)
	a.drain(t)
	b.drain(t)

	frame, _ := net.Encode(net.CaptureSkullMessage{})
	if err := r.Handle(idA, frame); !errors.Is(err, game.ErrSkullInactive) {
		t.Fatalf("capture before event: err = %v", err)
	}

	r.Tick(1)
	modes := ofType[net.SkullModeMessage](b.drain(t))
	if len(modes) != 1 || !modes[0].State.IsActive || modes[0].State.SkullPosition.X != 10 {
		t.Fatalf("activation broadcast = %+v", modes)
	}
	a.drain(t)

	mustHandle(t, r, idA, net.CaptureSkullMessage{})
	if err := r.Handle(idB, frame); !errors.Is(err, game.ErrSkullTaken) {
		t.Fatalf("second capture: err = %v, want ErrSkullTaken", err)
	}

	for name, peer := range map[string]*fakePeer{"A": a, "B": b} {
		msgs := peer.drain(t)
		caps := ofType[net.SkullCapturedMessage](msgs)
		if len(caps) != 1 || caps[0].PlayerID != idA {
			t.Fatalf("%s captures = %+v, want one for %s", name, caps, idA)
		}
		modes := ofType[net.SkullModeMessage](msgs)
		if len(modes) != 1 || modes[0].State.CapturedBy != idA {
			t.Fatalf("%s skull state = %+v", name, modes)
		}
	}

	r.Tick(2)
	modes = ofType[net.SkullModeMessage](a.drain(t))
	if len(modes) != 1 || modes[0].State.IsActive {
		t.Fatalf("deactivation broadcast = %+v", modes)
	}
}

func TestFullPeerDoesNotStallOthers(t *testing.T) {
	r := newTestRelay()
	slow, fast := &fakePeer{}, &fakePeer{}
	idS := r.Join(slow)
	r.Join(fast)
	fast.drain(t)

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	other := r.Join(&fakePeer{})
	mustHandle(t, r, other, net.UpdateMessage{Position: net.Vec3{Z: 5}})
	if got := ofType[net.PlayerUpdateMessage](fast.drain(t)); len(got) != 1 {
		t.Fatalf("fast peer missed the update")
	}
	if len(r.Status().Players) != 3 {
		t.Fatalf("slow peer %s should stay connected", idS)
	}
}
