// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package platform

import (
	"context"
	"time"

	"github.com/tomtom215/burstguard/internal/cache"
	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/models"
)

// suppressorCapacity bounds the ignore list.
const suppressorCapacity = 50000

// Suppressor keeps the ids of messages removed by mitigation so the
// deletion log can skip them. Entries expire after the configured TTL.
type Suppressor struct {
	set *cache.LRUSet
	ttl time.Duration
}

var _ detection.DeletionLogSuppressor = (*Suppressor)(nil)

// NewSuppressor creates a suppressor whose entries live for ttl.
func NewSuppressor(ttl time.Duration) *Suppressor {
	return &Suppressor{set: cache.NewLRUSet(suppressorCapacity, ttl), ttl: ttl}
}

func suppressionKey(kind string, id models.ActionID) string {
	return kind + ":" + id.String()
}

// Ignore marks a removal so the deletion log skips it.
func (s *Suppressor) Ignore(kind string, id models.ActionID) {
	s.set.Add(suppressionKey(kind, id))
}

// Suppressed reports whether the deletion of id was caused by mitigation.
// Each mark is consumed by the first check.
func (s *Suppressor) Suppressed(kind string, id models.ActionID) bool {
	return s.set.Take(suppressionKey(kind, id))
}

// Serve periodically drops expired entries until ctx is canceled.
func (s *Suppressor) Serve(ctx context.Context) error {
	interval := s.ttl
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.set.CleanupExpired(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Expired deletion-log suppressions removed")
			}
		}
	}
}

func (s *Suppressor) String() string {
	return "deletion-log-suppressor"
}
