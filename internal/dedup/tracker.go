// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package dedup tracks the highest action ID already covered by a mitigation
// for each (user, channel) pair, so that actions swept up by one mitigation
// are never counted toward a new burst.
//
// Watermarks only move forward. Entries are created lazily and live for the
// lifetime of the process.
package dedup

import (
	"sync"
	"sync/atomic"

	"github.com/tomtom215/burstguard/internal/models"
)

// Tracker is the dedup watermark store.
type Tracker interface {
	// ShouldSkip reports whether id is at or below the watermark for (user, channel).
	ShouldSkip(userID, channelID string, id models.ActionID) bool

	// RecordHandled raises the watermark for (user, channel) to id if id is higher.
	RecordHandled(userID, channelID string, id models.ActionID)
}

type pairKey struct {
	userID    string
	channelID string
}

// MemoryTracker is a lock-free Tracker. Each pair holds an atomic watermark;
// raises use a compare-and-swap loop so concurrent writers converge on the max.
type MemoryTracker struct {
	marks sync.Map // pairKey -> *atomic.Uint64
	size  atomic.Int64
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{}
}

// ShouldSkip implements Tracker.
func (t *MemoryTracker) ShouldSkip(userID, channelID string, id models.ActionID) bool {
	v, ok := t.marks.Load(pairKey{userID, channelID})
	if !ok {
		return false
	}
	return uint64(id) <= v.(*atomic.Uint64).Load()
}

// RecordHandled implements Tracker.
func (t *MemoryTracker) RecordHandled(userID, channelID string, id models.ActionID) {
	key := pairKey{userID, channelID}

	v, ok := t.marks.Load(key)
	if !ok {
		fresh := new(atomic.Uint64)
		fresh.Store(uint64(id))
		actual, loaded := t.marks.LoadOrStore(key, fresh)
		if !loaded {
			t.size.Add(1)
			return
		}
		v = actual
	}

	mark := v.(*atomic.Uint64)
	for {
		cur := mark.Load()
		if uint64(id) <= cur {
			return
		}
		if mark.CompareAndSwap(cur, uint64(id)) {
			return
		}
	}
}

// Watermark returns the current watermark for (user, channel).
func (t *MemoryTracker) Watermark(userID, channelID string) (models.ActionID, bool) {
	v, ok := t.marks.Load(pairKey{userID, channelID})
	if !ok {
		return 0, false
	}
	return models.ActionID(v.(*atomic.Uint64).Load()), true
}

// Len returns the number of tracked pairs.
func (t *MemoryTracker) Len() int {
	return int(t.size.Load())
}
