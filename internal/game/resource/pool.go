package resource

import (
	"sync"
)

// Pool is a session's spendable energy reserve. Casts deduct from it
// atomically with their cooldown update; regeneration is applied by the
// simulation tick.
type Pool struct {
	mu sync.RWMutex

	current     float64
	max         float64
	regenPerSec float64
}

// NewPool creates a full pool.
func NewPool(max, regenPerSec float64) *Pool {
	return &Pool{current: max, max: max, regenPerSec: regenPerSec}
}

// Current returns the available energy.
func (p *Pool) Current() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Max returns the pool ceiling.
func (p *Pool) Max() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.max
}

// Spend attempts to deduct amount from the pool. Returns true on
// success; on failure the pool is unchanged.
func (p *Pool) Spend(amount float64) bool {
	if amount <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current < amount {
		return false
	}
	p.current -= amount
	return true
}

// Refund returns energy to the pool, clamped at max. Used when a
// queued cast is dropped before resolution.
func (p *Pool) Refund(amount float64) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += amount
	if p.current > p.max {
		p.current = p.max
	}
}

// Regen applies dt seconds of regeneration, clamped at max.
func (p *Pool) Regen(dt float64) {
	if dt <= 0 || p.regenPerSec <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += p.regenPerSec * dt
	if p.current > p.max {
		p.current = p.max
	}
}
