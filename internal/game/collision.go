package game

import "github.com/Guillerming/calavera-arena-game-sub000/internal/net"

const (
	BoatRadius         = 6.0
	SkullCaptureRadius = 10.0
)

// Terrain is the height-query service consulted by impact checks.
type Terrain interface {
	HeightAt(x, z float64) float64
}

// Impact describes what a projectile struck.
type Impact struct {
	Type     net.CollisionType
	TargetID string
	Position net.Vec3
}

// SphereContains is the boat hit test: no sweep, just distance at the
// sampled position.
func SphereContains(center net.Vec3, radius float64, p net.Vec3) bool {
	return center.Dist(p) <= radius
}

// CheckImpact tests p against live boats (other than the owner), then
// terrain, then the sea surface. The first match wins.
func CheckImpact(p net.Vec3, ownerID string, boats []net.PlayerRecord, terrain Terrain) (Impact, bool) {
	for _, b := range boats {
		if b.ID == ownerID || !b.IsAlive {
			continue
		}
		if SphereContains(b.Position, BoatRadius, p) {
			return Impact{Type: net.CollisionPlayer, TargetID: b.ID, Position: p}, true
		}
	}

	if terrain != nil {
		h := terrain.HeightAt(p.X, p.Z)
		if h > WaterLevel && p.Y <= h {
			return Impact{Type: net.CollisionTerrain, Position: p}, true
		}
	}

	if p.Y <= WaterLevel {
		return Impact{Type: net.CollisionWater, Position: p}, true
	}
	return Impact{}, false
}

// CanCapture reports whether a boat at pos is close enough to grab the skull.
func CanCapture(pos net.Vec3, skull net.SkullModeState) bool {
	if !skull.IsActive || skull.IsSkullCaptured {
		return false
	}
	flat := net.Vec3{X: skull.SkullPosition.X, Y: pos.Y, Z: skull.SkullPosition.Z}
	return SphereContains(flat, SkullCaptureRadius, pos)
}
