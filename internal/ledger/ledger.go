// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package ledger stores recent user actions for burst detection.
//
// Records are keyed by (scope, action type, user, channel). Each record carries
// a weight so that a single message can count as several actions (for example
// a message with four mentions appends one record of weight 4 to the mention
// key). Appending the same action ID twice under the same key is a no-op, so a
// redelivered intake message never counts twice.
//
// Two implementations are provided: MemoryLedger for single-process
// deployments and BadgerLedger, which persists records with a TTL so that
// restarts do not reset in-flight windows.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/burstguard/internal/models"
)

// ErrInvalidKey is returned when a key is missing one of its components.
var ErrInvalidKey = errors.New("ledger key requires scope, type, user and channel")

// Key identifies one ledger series.
type Key struct {
	ScopeID   string
	Type      models.ActionType
	UserID    string
	ChannelID string
}

func (k Key) String() string {
	return k.ScopeID + ":" + string(k.Type) + ":" + k.UserID + ":" + k.ChannelID
}

// Validate checks that all key components are present.
func (k Key) Validate() error {
	if k.ScopeID == "" || k.Type == "" || k.UserID == "" || k.ChannelID == "" {
		return ErrInvalidKey
	}
	return nil
}

// Ledger is the action ledger used by the burst detector.
type Ledger interface {
	// Append records an action with the given weight. The record timestamp is
	// action.PostedAt.
	Append(ctx context.Context, key Key, action models.Action, weight int) error

	// CountSince returns the summed weight of records at or after since.
	CountSince(ctx context.Context, key Key, since time.Time) (int, error)

	// ListSince returns records at or after since ordered by timestamp, ties by action ID.
	ListSince(ctx context.Context, key Key, since time.Time) ([]models.ActionRecord, error)

	// Clear removes every record for key.
	Clear(ctx context.Context, key Key) error
}

// Pruner removes records older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}
