// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package detection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/burstguard/internal/ledger"
	"github.com/tomtom215/burstguard/internal/metrics"
)

// BurstDetector decides whether a ledger key is over its threshold.
type BurstDetector struct {
	ledger ledger.Ledger
	now    func() time.Time
}

// NewBurstDetector creates a detector. A nil clock uses time.Now.
func NewBurstDetector(l ledger.Ledger, clock func() time.Time) *BurstDetector {
	if clock == nil {
		clock = time.Now
	}
	return &BurstDetector{ledger: l, now: clock}
}

// Evaluate counts the weighted actions for key inside cfg's window. The burst
// trips when the count is strictly greater than cfg.Count, in which case the
// qualifying records are returned in action ID order.
func (d *BurstDetector) Evaluate(ctx context.Context, key ledger.Key, cfg SpamConfig) (*Detection, error) {
	now := d.now()
	det := &Detection{
		Key:         key,
		Since:       now.Add(-cfg.Window()),
		EvaluatedAt: now,
	}

	count, err := d.ledger.CountSince(ctx, key, det.Since)
	if err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	det.Count = count
	det.Tripped = count > cfg.Count
	metrics.RecordEvaluation(string(key.Type), det.Tripped)

	if !det.Tripped {
		return det, nil
	}

	records, err := d.ledger.ListSince(ctx, key, det.Since)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Action.ID < records[j].Action.ID
	})
	det.Records = records
	return det, nil
}
