package game

import (
	"math/rand"
	"sync"

	"github.com/virtarena/arena-server-go/internal/config"
	"github.com/virtarena/arena-server-go/internal/geom"
)

// SpawnRegistry is the set of legitimate teleport anchors. It backs the
// movement validator's teleport-legitimacy check and picks placement
// for new and respawning sessions.
type SpawnRegistry struct {
	mu     sync.RWMutex
	points []geom.Vec3
}

// NewSpawnRegistry builds a registry from configuration. An empty
// configuration yields a single spawn at the origin.
func NewSpawnRegistry(cfg config.WorldConfig) *SpawnRegistry {
	points := make([]geom.Vec3, 0, len(cfg.SpawnPoints))
	for _, p := range cfg.SpawnPoints {
		points = append(points, geom.Vec3{X: p.X, Y: p.Y, Z: p.Z})
	}
	if len(points) == 0 {
		points = append(points, geom.Vec3{})
	}
	return &SpawnRegistry{points: points}
}

// NearSpawn reports whether pos lies within the given distance of any
// spawn point.
func (r *SpawnRegistry) NearSpawn(pos geom.Vec3, within float64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.points {
		if pos.Distance(p) <= within {
			return true
		}
	}
	return false
}

// Pick returns a random spawn point.
func (r *SpawnRegistry) Pick() geom.Vec3 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.points[rand.Intn(len(r.points))]
}
