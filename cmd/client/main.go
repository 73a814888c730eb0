package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/client"
	"github.com/Guillerming/calavera-arena-game-sub000/internal/config"
	"github.com/Guillerming/calavera-arena-game-sub000/internal/game"
	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

const dialTimeout = 5 * time.Second

type Game struct {
	netClient  *client.NetClient
	reconciler *client.Reconciler
	renderer   *client.Renderer
	arena      *game.Arena
	store      game.Store
	name       string
	boat       game.Boat
	respawned  chan net.Vec3
	lastSent   net.Vec3
	lastYaw    float64
}

func NewGame(cfg config.Client, store game.Store, profile game.Profile) (*Game, error) {
	arena := game.DefaultArena()
	g := &Game{
		renderer:  client.NewRenderer(arena),
		arena:     arena,
		store:     store,
		name:      cfg.PlayerName,
		boat:      game.Boat{Position: game.RandomSpawn(nil)},
		respawned: make(chan net.Vec3, 1),
	}

	g.reconciler = client.NewReconciler(arena, game.NewScoreboard(profile.Scores))
	g.reconciler.SetLocalName(cfg.PlayerName)
	g.reconciler.OnRespawned = func(pos net.Vec3) {
		select {
		case g.respawned <- pos:
		default:
		}
	}
	g.reconciler.OnDeath = func(victim, killer string) {
		log.Printf("%s sunk by %s", victim, killer)
	}
	g.reconciler.OnModeActivated = func(s net.SkullModeState) {
		log.Printf("Skull hunt started at (%.0f, %.0f)", s.SkullPosition.X, s.SkullPosition.Z)
	}
	g.reconciler.OnCaptured = func(id string) {
		log.Printf("Skull captured by %s", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	nc, err := client.Dial(ctx, cfg.ServerURL, g.reconciler.Handlers())
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	g.netClient = nc
	g.reconciler.Attach(nc)

	if err := nc.SendName(cfg.PlayerName); err != nil {
		log.Printf("Failed to send name: %v", err)
	}
	return g, nil
}

func (g *Game) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if !g.netClient.Connected() {
		return errors.New("disconnected from server")
	}

	select {
	case pos := <-g.respawned:
		g.boat = game.Boat{Position: pos}
	default:
	}

	dt := 1.0 / float64(ebiten.TPS())
	g.handleInput(dt)
	g.reconciler.Tick(dt)
	return nil
}

func (g *Game) handleInput(dt float64) {
	me, ok := g.reconciler.Entity(g.netClient.ID())
	if !ok || !me.IsAlive {
		return
	}

	var helm game.Helm
	if ebiten.IsKeyPressed(ebiten.KeyW) {
		helm.Throttle += 1
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		helm.Throttle -= 1
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) {
		helm.Rudder += 1
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) {
		helm.Rudder -= 1
	}
	g.boat.Sail(helm, dt, g.arena)

	rot := net.Rotation{Y: g.boat.Yaw}
	g.reconciler.SetLocalTransform(g.boat.Position, rot)

	// Only send when something moved
	if g.boat.Position != g.lastSent || g.boat.Yaw != g.lastYaw {
		if err := g.netClient.SendUpdate(g.boat.Position, rot); err != nil {
			log.Printf("Update failed: %v", err)
		}
		g.lastSent = g.boat.Position
		g.lastYaw = g.boat.Yaw
	}

	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		if _, err := g.reconciler.Fire(); err != nil && !errors.Is(err, client.ErrReloading) {
			log.Printf("Fire failed: %v", err)
		}
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.renderer.Draw(screen, g.reconciler.Snapshot())
	g.renderer.DrawScores(screen, g.reconciler.Scores())
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return client.ScreenWidth, client.ScreenHeight
}

// Close saves the profile and drops the connection.
func (g *Game) Close() {
	g.reconciler.Shutdown()
	g.netClient.Close()

	profile := game.Profile{Name: g.name, Scores: g.reconciler.Scores()}
	if err := g.store.Save(profile); err != nil {
		log.Printf("Failed to save profile: %v", err)
	}
}

func main() {
	config.InitConfig()

	store := game.FileStore{Path: config.LoadClient("").ProfilePath}
	profile, err := store.Load()
	if err != nil {
		log.Printf("Ignoring unreadable profile: %v", err)
	}
	cfg := config.LoadClient(profile.Name)

	ebiten.SetWindowSize(client.ScreenWidth, client.ScreenHeight)
	ebiten.SetWindowTitle("Calavera Arena")

	g, err := NewGame(cfg, store, profile)
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		log.Printf("Game ended: %v", err)
	}
}
