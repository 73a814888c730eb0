package game

import (
	"math"
	"math/rand"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

const (
	ArenaHalfSize = 300.0 // playable square spans [-ArenaHalfSize, ArenaHalfSize] on x and z
	WaterLevel    = 0.0
	SeaFloor      = -20.0
)

// Island is a rounded mound rising from the sea floor.
type Island struct {
	X, Z   float64
	Radius float64
	Peak   float64
}

// Arena answers height queries for the fixed map.
type Arena struct {
	Islands []Island
}

// DefaultArena returns the hardcoded island layout.
func DefaultArena() *Arena {
	return &Arena{
		Islands: []Island{
			// Central rock
			{X: 0, Z: 0, Radius: 45, Peak: 18},
			// Corner cover
			{X: -160, Z: -140, Radius: 35, Peak: 12},
			{X: 170, Z: 150, Radius: 35, Peak: 12},
			{X: 150, Z: -170, Radius: 25, Peak: 8},
			{X: -140, Z: 180, Radius: 25, Peak: 8},
		},
	}
}

// HeightAt returns the terrain height at (x, z). Open sea reports SeaFloor.
func (a *Arena) HeightAt(x, z float64) float64 {
	h := SeaFloor
	for _, is := range a.Islands {
		d := math.Hypot(x-is.X, z-is.Z)
		if d >= is.Radius {
			continue
		}
		k := d / is.Radius
		ih := SeaFloor + (is.Peak-SeaFloor)*(1-k*k)
		if ih > h {
			h = ih
		}
	}
	return h
}

// Navigable reports whether a boat may sit at (x, z).
func (a *Arena) Navigable(x, z float64) bool {
	if !InBounds(net.Vec3{X: x, Z: z}) {
		return false
	}
	return a.HeightAt(x, z) < WaterLevel-1
}

// InBounds reports whether p lies inside the arena square.
func InBounds(p net.Vec3) bool {
	return math.Abs(p.X) <= ArenaHalfSize && math.Abs(p.Z) <= ArenaHalfSize
}

// SpawnPoints for boats, all in open water.
var SpawnPoints = []net.Vec3{
	{X: -220, Z: -220},
	{X: 220, Z: 220},
	{X: -220, Z: 220},
	{X: 220, Z: -220},
	{X: 0, Z: -240},
	{X: 0, Z: 240},
	{X: -240, Z: 0},
	{X: 240, Z: 0},
}

// SkullPoints are where the skull may appear when an event starts.
var SkullPoints = []net.Vec3{
	{X: 0, Y: 1, Z: -110},
	{X: 0, Y: 1, Z: 110},
	{X: -110, Y: 1, Z: 0},
	{X: 110, Y: 1, Z: 0},
	{X: -90, Y: 1, Z: 90},
	{X: 90, Y: 1, Z: -90},
}

// RandomSpawn picks a spawn point. A nil rng uses the global source.
func RandomSpawn(rng *rand.Rand) net.Vec3 {
	return pick(rng, SpawnPoints)
}

// RandomSkullPoint picks where the next skull appears.
func RandomSkullPoint(rng *rand.Rand) net.Vec3 {
	return pick(rng, SkullPoints)
}

func pick(rng *rand.Rand, points []net.Vec3) net.Vec3 {
	if rng == nil {
		return points[rand.Intn(len(points))]
	}
	return points[rng.Intn(len(points))]
}
