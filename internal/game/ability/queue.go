package ability

import (
	"sync"
	"time"

	"github.com/virtarena/arena-server-go/internal/geom"
)

// PendingCast is a validated cast awaiting resolution. Created on
// acceptance, destroyed when drained by the simulation tick.
type PendingCast struct {
	SessionID         string
	Kind              string
	Target            geom.Vec3
	ClientTimestamp   time.Time
	ServerReceiveTime time.Time
	// Cost is carried so a cast dropped on overflow can be refunded.
	Cost   float64
	Radius float64
}

// Queue is the bounded FIFO between cast validation and per-tick
// resolution. Validation is per-message and must stay cheap; resolution
// is batched so a burst of valid casts cannot monopolize one tick.
//
// Overflow policy: oldest-first drop. The dropped cast is returned to
// the caller for refund and logging. Chosen over newest-reject so the
// queue always makes forward progress after a burst, and over
// backpressure because validation must never block.
type Queue struct {
	mu       sync.Mutex
	items    []PendingCast
	capacity int
	dropped  uint64
}

// NewQueue creates a queue holding at most capacity casts.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends a cast. When the queue is at capacity the oldest cast
// is evicted and returned for the caller to refund.
func (q *Queue) Enqueue(pc PendingCast) (dropped *PendingCast) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		evicted := q.items[0]
		q.items = q.items[1:]
		q.dropped++
		dropped = &evicted
	}
	q.items = append(q.items, pc)
	return dropped
}

// DrainUpTo removes and returns at most k casts in FIFO order.
func (q *Queue) DrainUpTo(k int) []PendingCast {
	q.mu.Lock()
	defer q.mu.Unlock()

	if k <= 0 || len(q.items) == 0 {
		return nil
	}
	if k > len(q.items) {
		k = len(q.items)
	}
	batch := make([]PendingCast, k)
	copy(batch, q.items[:k])
	q.items = q.items[k:]
	return batch
}

// Len returns the number of queued casts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the cumulative overflow eviction count.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
