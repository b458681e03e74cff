package ability

import (
	"fmt"
	"testing"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 5; i++ {
		if dropped := q.Enqueue(PendingCast{Kind: fmt.Sprintf("k%d", i)}); dropped != nil {
			t.Fatalf("unexpected eviction at %d", i)
		}
	}

	batch := q.DrainUpTo(3)
	if len(batch) != 3 {
		t.Fatalf("expected 3 drained, got %d", len(batch))
	}
	for i, pc := range batch {
		if want := fmt.Sprintf("k%d", i); pc.Kind != want {
			t.Errorf("position %d: expected %s, got %s", i, want, pc.Kind)
		}
	}
	if q.Len() != 2 {
		t.Errorf("expected 2 remaining, got %d", q.Len())
	}
}

func TestQueue_DrainBounds(t *testing.T) {
	q := NewQueue(8)
	if got := q.DrainUpTo(4); got != nil {
		t.Errorf("draining an empty queue must return nil, got %v", got)
	}
	q.Enqueue(PendingCast{Kind: "only"})
	if got := q.DrainUpTo(0); got != nil {
		t.Errorf("k=0 must drain nothing, got %v", got)
	}
	if got := q.DrainUpTo(10); len(got) != 1 {
		t.Errorf("expected the single queued cast, got %d", len(got))
	}
}

func TestQueue_OverflowEvictsOldest(t *testing.T) {
	q := NewQueue(3)
	q.Enqueue(PendingCast{Kind: "a", Cost: 10})
	q.Enqueue(PendingCast{Kind: "b"})
	q.Enqueue(PendingCast{Kind: "c"})

	dropped := q.Enqueue(PendingCast{Kind: "d"})
	if dropped == nil || dropped.Kind != "a" {
		t.Fatalf("expected oldest cast evicted, got %+v", dropped)
	}
	if dropped.Cost != 10 {
		t.Errorf("evicted cast must carry its cost for refund, got %.1f", dropped.Cost)
	}
	if q.Dropped() != 1 {
		t.Errorf("expected dropped counter 1, got %d", q.Dropped())
	}

	batch := q.DrainUpTo(10)
	if len(batch) != 3 || batch[0].Kind != "b" || batch[2].Kind != "d" {
		t.Errorf("expected [b c d] after eviction, got %v", batch)
	}
}
