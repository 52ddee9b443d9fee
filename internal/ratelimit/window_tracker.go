/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "time"

// WindowTracker keeps timestamps of admitted requests.
// It's not safe for concurrent use, the owner is responsible for synchronization.
type WindowTracker struct {
	timestamps []time.Time
}

// NewWindowTracker creates a new WindowTracker with capacity preallocated for maxSize timestamps.
func NewWindowTracker(maxSize int) *WindowTracker {
	if maxSize < 0 {
		maxSize = 0
	}
	return &WindowTracker{timestamps: make([]time.Time, 0, maxSize)}
}

// RecordAdmission adds a new admission timestamp.
func (wt *WindowTracker) RecordAdmission(now time.Time) {
	wt.timestamps = append(wt.timestamps, now)
}

// EvictExpired removes all timestamps t for which now - t >= window and returns the number of removed ones.
func (wt *WindowTracker) EvictExpired(now time.Time, window time.Duration) int {
	kept := wt.timestamps[:0]
	for _, t := range wt.timestamps {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	removed := len(wt.timestamps) - len(kept)
	for i := len(kept); i < len(wt.timestamps); i++ {
		wt.timestamps[i] = time.Time{}
	}
	wt.timestamps = kept
	return removed
}

// Size returns the number of tracked timestamps.
func (wt *WindowTracker) Size() int {
	return len(wt.timestamps)
}

// Oldest returns the earliest tracked timestamp.
func (wt *WindowTracker) Oldest() (time.Time, bool) {
	if len(wt.timestamps) == 0 {
		return time.Time{}, false
	}
	oldest := wt.timestamps[0]
	for _, t := range wt.timestamps[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	return oldest, true
}
