package game

import (
	"math"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

// Boat handling constants
const (
	BoatAcceleration = 30.0 // units/s² at full throttle
	BoatDrag         = 0.9  // fraction of speed kept per second
	BoatMaxSpeed     = 25.0
	BoatTurnSpeed    = 1.6 // rad/s at full speed
)

// Helm is the local steering input for one tick.
type Helm struct {
	Throttle float64 // -1..1
	Rudder   float64 // -1..1, positive turns right
}

// Boat is the locally simulated hull of the player's own ship.
type Boat struct {
	Position net.Vec3
	Yaw      float64
	Speed    float64
}

// Sail advances the boat by dt seconds. Turning scales with speed so a
// stopped boat cannot spin in place, and the hull stops dead rather than
// beaching when the next position is not navigable.
func (b *Boat) Sail(h Helm, dt float64, arena *Arena) {
	thrust := clamp(h.Throttle, -1, 1) * BoatAcceleration
	if thrust < 0 {
		thrust *= 0.5
	}
	b.Speed += thrust * dt
	b.Speed *= math.Pow(BoatDrag, dt)
	b.Speed = clamp(b.Speed, -BoatMaxSpeed/2, BoatMaxSpeed)

	turnFactor := math.Abs(b.Speed) / BoatMaxSpeed
	b.Yaw += clamp(h.Rudder, -1, 1) * BoatTurnSpeed * turnFactor * dt

	next := b.Position.Add(Heading(b.Yaw).Scale(b.Speed * dt))
	if arena != nil && !arena.Navigable(next.X, next.Z) {
		b.Speed = 0
		return
	}
	b.Position = next
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
