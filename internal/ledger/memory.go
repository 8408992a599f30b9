// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package ledger

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/burstguard/internal/models"
)

const memoryShards = 32

// MemoryLedger is an in-process ledger partitioned into shards by key hash.
// Records within a series are kept sorted by (timestamp, action ID).
type MemoryLedger struct {
	shards [memoryShards]*memoryShard
}

type memoryShard struct {
	mu     sync.RWMutex
	series map[Key][]models.ActionRecord
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	l := &MemoryLedger{}
	for i := range l.shards {
		l.shards[i] = &memoryShard{series: make(map[Key][]models.ActionRecord)}
	}
	return l
}

func (l *MemoryLedger) shard(key Key) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return l.shards[h.Sum32()%memoryShards]
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, key Key, action models.Action, weight int) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if weight <= 0 {
		return nil
	}

	rec := models.ActionRecord{
		Action:     action,
		Type:       key.Type,
		Weight:     weight,
		RecordedAt: time.Now(),
	}

	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.series[key]
	for i := range records {
		if records[i].Action.ID == action.ID {
			return nil
		}
	}

	// Actions almost always arrive in order, so the common case is an append.
	idx := len(records)
	if idx > 0 && recordLess(rec, records[idx-1]) {
		idx = sort.Search(len(records), func(i int) bool { return recordLess(rec, records[i]) })
	}
	records = append(records, models.ActionRecord{})
	copy(records[idx+1:], records[idx:])
	records[idx] = rec
	s.series[key] = records
	return nil
}

// CountSince implements Ledger.
func (l *MemoryLedger) CountSince(_ context.Context, key Key, since time.Time) (int, error) {
	s := l.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.series[key]
	total := 0
	for i := firstAtOrAfter(records, since); i < len(records); i++ {
		total += records[i].Weight
	}
	return total, nil
}

// ListSince implements Ledger.
func (l *MemoryLedger) ListSince(_ context.Context, key Key, since time.Time) ([]models.ActionRecord, error) {
	s := l.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.series[key]
	start := firstAtOrAfter(records, since)
	out := make([]models.ActionRecord, len(records)-start)
	copy(out, records[start:])
	return out, nil
}

// Clear implements Ledger.
func (l *MemoryLedger) Clear(_ context.Context, key Key) error {
	s := l.shard(key)
	s.mu.Lock()
	delete(s.series, key)
	s.mu.Unlock()
	return nil
}

// Prune drops records posted before the cutoff and returns how many were removed.
func (l *MemoryLedger) Prune(_ context.Context, before time.Time) (int, error) {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, records := range s.series {
			start := firstAtOrAfter(records, before)
			if start == 0 {
				continue
			}
			removed += start
			if start == len(records) {
				delete(s.series, key)
				continue
			}
			kept := make([]models.ActionRecord, len(records)-start)
			copy(kept, records[start:])
			s.series[key] = kept
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of live series.
func (l *MemoryLedger) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.RLock()
		n += len(s.series)
		s.mu.RUnlock()
	}
	return n
}

func recordLess(a, b models.ActionRecord) bool {
	if !a.Action.PostedAt.Equal(b.Action.PostedAt) {
		return a.Action.PostedAt.Before(b.Action.PostedAt)
	}
	return a.Action.ID < b.Action.ID
}

func firstAtOrAfter(records []models.ActionRecord, since time.Time) int {
	return sort.Search(len(records), func(i int) bool {
		return !records[i].Action.PostedAt.Before(since)
	})
}
