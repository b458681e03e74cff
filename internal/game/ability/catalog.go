// Package ability validates client cast requests and buffers accepted
// casts for bounded per-tick resolution.
package ability

import (
	"fmt"
	"time"

	"github.com/virtarena/arena-server-go/internal/config"
)

// Ability is the validated definition of one castable ability. All
// values come from explicit configuration at construction time; there
// are no runtime-patched defaults.
type Ability struct {
	Kind     string
	Cooldown time.Duration
	Cost     float64
	Range    float64
	// Radius is the effect radius used by hit resolution.
	Radius float64
}

// Catalog is the closed set of abilities the server accepts. Cast
// requests naming a kind outside the catalog are structural violations.
type Catalog struct {
	abilities map[string]Ability
}

// NewCatalog builds a catalog from configuration. Duplicate kinds are
// rejected here even though config validation also catches them, so the
// catalog is safe to build from other sources.
func NewCatalog(defs []config.AbilityConfig, defaultRadius float64) (*Catalog, error) {
	abilities := make(map[string]Ability, len(defs))
	for _, d := range defs {
		if _, dup := abilities[d.Kind]; dup {
			return nil, fmt.Errorf("duplicate ability kind %q", d.Kind)
		}
		radius := d.Radius
		if radius <= 0 {
			radius = defaultRadius
		}
		abilities[d.Kind] = Ability{
			Kind:     d.Kind,
			Cooldown: d.Cooldown,
			Cost:     d.Cost,
			Range:    d.Range,
			Radius:   radius,
		}
	}
	return &Catalog{abilities: abilities}, nil
}

// Lookup returns the ability definition for kind.
func (c *Catalog) Lookup(kind string) (Ability, bool) {
	a, ok := c.abilities[kind]
	return a, ok
}

// Kinds returns the number of registered abilities.
func (c *Catalog) Kinds() int {
	return len(c.abilities)
}
