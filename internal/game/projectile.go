package game

import (
	"math"
	"time"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

const (
	Gravity            = 9.8
	ProjectileSpeed    = 70.0
	ProjectileLift     = 12.0
	ProjectileSpin     = 6.0
	ProjectileDamage   = 20
	ProjectileLifetime = 6 * time.Second
	MuzzleHeight       = 3.0
	ReloadTime         = 800 * time.Millisecond
)

// Projectile is a cannonball simulated locally from its launch record.
type Projectile struct {
	net.ProjectileRecord
	Spin float64 // accumulated rotation, cosmetic
}

// Launch builds the record for a shot fired from a boat at pos facing yaw.
func Launch(id, ownerID string, pos net.Vec3, yaw float64, now time.Time) net.ProjectileRecord {
	dir := Heading(yaw)
	return net.ProjectileRecord{
		ID:            id,
		PlayerID:      ownerID,
		Position:      net.Vec3{X: pos.X + dir.X*(BoatRadius+1), Y: MuzzleHeight, Z: pos.Z + dir.Z*(BoatRadius+1)},
		Velocity:      net.Vec3{X: dir.X * ProjectileSpeed, Y: ProjectileLift, Z: dir.Z * ProjectileSpeed},
		RotationSpeed: ProjectileSpin,
		Timestamp:     now.UnixMilli(),
	}
}

// Step advances the ball by dt seconds under gravity.
func (p *Projectile) Step(dt float64) {
	p.Velocity.Y -= Gravity * dt
	p.Position = p.Position.Add(p.Velocity.Scale(dt))
	p.Spin += p.RotationSpeed * dt
}

// Expired reports whether the ball has outlived ProjectileLifetime.
func (p *Projectile) Expired(now time.Time) bool {
	return now.Sub(time.UnixMilli(p.Timestamp)) >= ProjectileLifetime
}

// Heading converts a yaw angle to a unit vector on the water plane.
func Heading(yaw float64) net.Vec3 {
	return net.Vec3{X: math.Sin(yaw), Z: math.Cos(yaw)}
}
