package session

import (
	"testing"
	"time"
)

func TestRateLimitWindow_ExactCapacity(t *testing.T) {
	var w RateLimitWindow
	base := time.Unix(1000, 0)
	window := time.Second
	max := 3

	for i := 0; i < max; i++ {
		now := base.Add(time.Duration(i) * 100 * time.Millisecond)
		if w.WindowFull(now, window, max) {
			t.Fatalf("cast %d should fit in window", i+1)
		}
		w.RecordAction(now)
	}

	// The (max+1)-th within the same window must fail.
	if !w.WindowFull(base.Add(400*time.Millisecond), window, max) {
		t.Error("expected window to be full after max casts")
	}
}

func TestRateLimitWindow_ResetsOnlyAfterFullDuration(t *testing.T) {
	var w RateLimitWindow
	base := time.Unix(1000, 0)
	window := time.Second

	w.WindowFull(base, window, 1)
	w.RecordAction(base)

	// Mid-window: still full.
	if !w.WindowFull(base.Add(999*time.Millisecond), window, 1) {
		t.Error("window must not reset mid-window")
	}

	// Exactly at windowDuration the count resets.
	if w.WindowFull(base.Add(time.Second), window, 1) {
		t.Error("window must reset once a full duration has elapsed")
	}
}

func TestRateLimitWindow_RapidBurst(t *testing.T) {
	var w RateLimitWindow
	base := time.Unix(2000, 0)
	minInterval := 100 * time.Millisecond
	maxRapid := 3

	w.RecordAction(base)

	// Rapid attempts build the streak; threshold is exceeded on the
	// attempt after maxRapid consecutive rapid ones.
	for i := 1; i <= maxRapid; i++ {
		now := base.Add(time.Duration(i) * 10 * time.Millisecond)
		if w.RapidBurst(now, minInterval, maxRapid) {
			t.Fatalf("attempt %d should not trip the burst guard yet", i)
		}
		w.RecordAction(now)
	}
	if !w.RapidBurst(base.Add(40*time.Millisecond), minInterval, maxRapid) {
		t.Error("expected burst guard to trip past the rapid threshold")
	}
}

func TestRateLimitWindow_SpacedActionResetsStreak(t *testing.T) {
	var w RateLimitWindow
	base := time.Unix(3000, 0)
	minInterval := 100 * time.Millisecond

	w.RecordAction(base)
	w.RapidBurst(base.Add(10*time.Millisecond), minInterval, 3)
	w.RecordAction(base.Add(10 * time.Millisecond))

	// A properly spaced attempt resets the streak.
	if w.RapidBurst(base.Add(200*time.Millisecond), minInterval, 0) {
		t.Error("spaced attempt must reset the rapid streak")
	}
	if _, streak := w.Snapshot(); streak != 0 {
		t.Errorf("expected streak 0, got %d", streak)
	}
}
