package client

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/game"
	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

const (
	ScreenWidth  = 900
	ScreenHeight = 600
	WorldScale   = float32(ScreenHeight) / (2 * game.ArenaHalfSize) // pixels per world unit
)

var (
	seaColor    = color.RGBA{24, 62, 104, 255}
	islandColor = color.RGBA{196, 170, 110, 255}
	peakColor   = color.RGBA{90, 120, 60, 255}
	localColor  = color.RGBA{240, 240, 240, 255}
	enemyColor  = color.RGBA{200, 60, 50, 255}
	wreckColor  = color.RGBA{80, 80, 80, 255}
	ballColor   = color.RGBA{20, 20, 20, 255}
	skullColor  = color.RGBA{250, 250, 210, 255}
	skullRing   = color.RGBA{250, 210, 40, 255}
)

// Renderer draws the arena from above, centred on the origin.
type Renderer struct {
	arena *game.Arena
}

func NewRenderer(arena *game.Arena) *Renderer {
	return &Renderer{arena: arena}
}

func toScreen(p net.Vec3) (float32, float32) {
	return ScreenWidth/2 + float32(p.X)*WorldScale, ScreenHeight/2 - float32(p.Z)*WorldScale
}

func (r *Renderer) Draw(screen *ebiten.Image, v View) {
	screen.Fill(seaColor)

	for _, is := range r.arena.Islands {
		x, y := toScreen(net.Vec3{X: is.X, Z: is.Z})
		vector.DrawFilledCircle(screen, x, y, float32(is.Radius)*WorldScale, islandColor, true)
		vector.DrawFilledCircle(screen, x, y, float32(is.Radius)*WorldScale*0.4, peakColor, true)
	}

	if v.Skull.IsActive && !v.Skull.IsSkullCaptured {
		x, y := toScreen(v.Skull.SkullPosition)
		vector.StrokeCircle(screen, x, y, game.SkullCaptureRadius*WorldScale, 1, skullRing, true)
		vector.DrawFilledCircle(screen, x, y, 4, skullColor, true)
	}

	for _, p := range v.Players {
		r.drawBoat(screen, p)
	}

	for _, p := range v.Projectiles {
		x, y := toScreen(p.Position)
		// Higher balls draw larger.
		size := 2 + float32(p.Position.Y)*0.08
		if size < 2 {
			size = 2
		}
		vector.DrawFilledCircle(screen, x, y, size, ballColor, true)
	}

	r.drawHUD(screen, v)
}

func (r *Renderer) drawBoat(screen *ebiten.Image, e Entity) {
	x, y := toScreen(e.Position)
	c := enemyColor
	switch {
	case !e.IsAlive:
		c = wreckColor
	case e.Local:
		c = localColor
	}

	radius := float32(game.BoatRadius) * WorldScale * 1.5
	vector.DrawFilledCircle(screen, x, y, radius, c, true)

	dir := game.Heading(e.Rotation.Y)
	bx, by := toScreen(e.Position.Add(dir.Scale(game.BoatRadius * 2)))
	vector.StrokeLine(screen, x, y, bx, by, 2, c, true)

	if !e.IsAlive {
		return
	}
	// Health bar.
	w := radius * 2
	vector.DrawFilledRect(screen, x-radius, y-radius-6, w, 3, wreckColor, false)
	vector.DrawFilledRect(screen, x-radius, y-radius-6, w*float32(e.Health)/net.MaxHealth, 3, skullRing, false)
	if e.Name != "" {
		ebitenutil.DebugPrintAt(screen, e.Name, int(x-radius), int(y+radius+2))
	}
}

func (r *Renderer) drawHUD(screen *ebiten.Image, v View) {
	for _, p := range v.Players {
		if !p.Local {
			continue
		}
		status := fmt.Sprintf("Hull %d", p.Health)
		if !p.IsAlive {
			status = "Sunk, respawning..."
		}
		ebitenutil.DebugPrintAt(screen, status, 10, 10)
	}

	skull := fmt.Sprintf("Skull in %.0fs", v.Skull.Countdown)
	switch {
	case v.Skull.IsActive && v.Skull.IsSkullCaptured:
		skull = fmt.Sprintf("Skull taken by %s, %.0fs left", v.Skull.CapturedBy, v.Skull.Countdown)
	case v.Skull.IsActive:
		skull = fmt.Sprintf("Skull hunt! %.0fs left", v.Skull.Countdown)
	}
	ebitenutil.DebugPrintAt(screen, skull, 10, 26)
}

// DrawScores lists the ledger in the top right corner.
func (r *Renderer) DrawScores(screen *ebiten.Image, scores []game.ScoreRecord) {
	y := 10
	for i, s := range scores {
		if i == 8 {
			break
		}
		name := s.Name
		if name == "" {
			name = s.ID
		}
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%-12.12s %2d/%2d", name, s.Kills, s.Deaths), ScreenWidth-150, y)
		y += 16
	}
}
