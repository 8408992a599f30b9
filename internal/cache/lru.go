// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package cache provides a bounded, expiring key set.
package cache

import (
	"sync"
	"time"
)

type lruEntry struct {
	key       string
	prev      *lruEntry
	next      *lruEntry
	expiresAt time.Time
}

// LRUSet is a thread-safe set of keys with per-key TTL and LRU eviction
// once capacity is reached. Expired keys are removed lazily on access and
// by CleanupExpired.
type LRUSet struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*lruEntry

	// head.next is the most recently added, tail.prev the oldest.
	head *lruEntry
	tail *lruEntry

	evictions int64
}

// NewLRUSet creates a set holding at most capacity keys for ttl each.
func NewLRUSet(capacity int, ttl time.Duration) *LRUSet {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	s := &LRUSet{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Add inserts key or refreshes its TTL.
func (s *LRUSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(s.ttl)
	if entry, ok := s.items[key]; ok {
		entry.expiresAt = expiresAt
		s.moveToFront(entry)
		return
	}

	entry := &lruEntry{key: key, expiresAt: expiresAt}
	s.addToFront(entry)
	s.items[key] = entry

	for len(s.items) > s.capacity {
		s.evictOldest()
	}
}

// Contains reports whether key is present and unexpired.
func (s *LRUSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return false
	}
	if s.now().After(entry.expiresAt) {
		s.removeEntry(entry)
		return false
	}
	return true
}

// Take removes key and reports whether it was present and unexpired.
func (s *LRUSet) Take(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeEntry(entry)
	return !s.now().After(entry.expiresAt)
}

// Len returns the number of stored keys, including expired ones not yet removed.
func (s *LRUSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Evictions returns how many keys were dropped for capacity.
func (s *LRUSet) Evictions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

// CleanupExpired removes expired keys and returns how many were removed.
func (s *LRUSet) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for entry := s.tail.prev; entry != s.head; {
		prev := entry.prev
		if now.After(entry.expiresAt) {
			s.removeEntry(entry)
			removed++
		}
		entry = prev
	}
	return removed
}

// Internal methods (must be called with lock held)

func (s *LRUSet) addToFront(entry *lruEntry) {
	entry.prev = s.head
	entry.next = s.head.next
	s.head.next.prev = entry
	s.head.next = entry
}

func (s *LRUSet) moveToFront(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	s.addToFront(entry)
}

func (s *LRUSet) removeEntry(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(s.items, entry.key)
}

func (s *LRUSet) evictOldest() {
	oldest := s.tail.prev
	if oldest == s.head {
		return
	}
	s.removeEntry(oldest)
	s.evictions++
}
