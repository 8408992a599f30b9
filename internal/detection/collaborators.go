// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/burstguard/internal/dedup"
	"github.com/tomtom215/burstguard/internal/ledger"
	"github.com/tomtom215/burstguard/internal/metrics"
)

// DefaultCallTimeout bounds each collaborator call.
const DefaultCallTimeout = 10 * time.Second

// Collaborators are the dependencies of the engine and mitigator.
type Collaborators struct {
	Ledger     ledger.Ledger
	Dedup      dedup.Tracker
	Source     ContentSource
	Directory  Directory
	Restrictor Restrictor
	Remover    ContentRemover
	Suppressor DeletionLogSuppressor
	Incidents  IncidentStore
	Archiver   Archiver
	Audit      AuditSink
}

// Validate reports the first missing collaborator.
func (c *Collaborators) Validate() error {
	required := []struct {
		name string
		ok   bool
	}{
		{"ledger", c.Ledger != nil},
		{"dedup", c.Dedup != nil},
		{"source", c.Source != nil},
		{"directory", c.Directory != nil},
		{"restrictor", c.Restrictor != nil},
		{"remover", c.Remover != nil},
		{"suppressor", c.Suppressor != nil},
		{"incidents", c.Incidents != nil},
		{"archiver", c.Archiver != nil},
		{"audit", c.Audit != nil},
	}
	for _, r := range required {
		if !r.ok {
			return fmt.Errorf("%w: %s", ErrMissingCollaborator, r.name)
		}
	}
	return nil
}

// call runs fn with a bounded timeout and records its duration.
func call[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer metrics.ObserveCollaborator(name, start)

	return fn(ctx)
}

// callErr is call for functions that only return an error.
func callErr(ctx context.Context, timeout time.Duration, name string, fn func(context.Context) error) error {
	_, err := call(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
