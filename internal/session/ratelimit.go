package session

import (
	"sync"
	"time"
)

// RateLimitWindow tracks one limited action class for one session: a
// sliding window count plus an independent burst detector. The window
// count resets exactly when a full windowDuration has elapsed since
// windowStart, never mid-window.
type RateLimitWindow struct {
	mu sync.Mutex

	windowStart   time.Time
	countInWindow int

	lastActionTime        time.Time
	consecutiveRapidCount int
}

// WindowFull rolls the window if it has expired and reports whether the
// current window has already admitted max actions. It does not count the
// action; call RecordAction on acceptance.
func (w *RateLimitWindow) WindowFull(now time.Time, windowDuration time.Duration, max int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= windowDuration {
		w.windowStart = now
		w.countInWindow = 0
	}
	return w.countInWindow >= max
}

// RapidBurst updates the burst detector for an action attempted at now
// and reports whether the consecutive-rapid threshold has been exceeded.
// An attempt spaced at or above minInterval resets the streak.
func (w *RateLimitWindow) RapidBurst(now time.Time, minInterval time.Duration, maxRapid int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.lastActionTime.IsZero() && now.Sub(w.lastActionTime) < minInterval {
		w.consecutiveRapidCount++
	} else {
		w.consecutiveRapidCount = 0
	}
	return w.consecutiveRapidCount > maxRapid
}

// RecordAction counts an accepted action against the current window and
// stamps the burst detector.
func (w *RateLimitWindow) RecordAction(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.countInWindow++
	w.lastActionTime = now
}

// Snapshot returns the current window count and rapid streak, for tests
// and the admin dump.
func (w *RateLimitWindow) Snapshot() (countInWindow, rapidStreak int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.countInWindow, w.consecutiveRapidCount
}
