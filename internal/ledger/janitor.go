// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package ledger

import (
	"context"
	"time"

	"github.com/tomtom215/burstguard/internal/logging"
)

// Janitor periodically prunes records older than the retention window.
// It implements suture.Service.
type Janitor struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
}

// NewJanitor creates a janitor that prunes every interval.
func NewJanitor(pruner Pruner, retention, interval time.Duration) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{pruner: pruner, retention: retention, interval: interval}
}

// Serve runs until ctx is canceled.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single prune pass.
func (j *Janitor) RunOnce(ctx context.Context) int {
	removed, err := j.pruner.Prune(ctx, time.Now().Add(-j.retention))
	if err != nil {
		logging.Warn().Err(err).Msg("Ledger prune failed")
		return 0
	}
	if removed > 0 {
		logging.Debug().Int("removed", removed).Msg("Pruned expired ledger records")
	}
	return removed
}

func (j *Janitor) String() string {
	return "ledger-janitor"
}
