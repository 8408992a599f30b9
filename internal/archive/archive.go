// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package archive keeps copies of removed content so moderators can review
// what a spam burst contained after the originals are deleted.
//
// Archives are stored in BadgerDB with a TTL and are addressed by a random
// UUID, which doubles as the capability needed to view them.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
	"github.com/tomtom215/burstguard/internal/models"
)

const archiveKeyPrefix = "archive:"

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 30 * 24 * time.Hour

// ErrNotFound is returned for unknown or expired archives.
var ErrNotFound = errors.New("archive not found")

// Archive is a stored snapshot of removed actions.
type Archive struct {
	ID        string          `json:"id"`
	ScopeID   string          `json:"scope_id"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Actions   []models.Action `json:"actions"`
}

// Text renders the archive as a plain-text transcript.
func (a *Archive) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Archive %s (scope %s, %d actions, expires %s)\n\n",
		a.ID, a.ScopeID, len(a.Actions), a.ExpiresAt.Format(time.RFC3339))
	for i := range a.Actions {
		act := &a.Actions[i]
		fmt.Fprintf(&b, "[%s] %s in %s (%s): %s\n",
			act.PostedAt.UTC().Format(time.RFC3339), act.UserID, act.ChannelID, act.ID, act.Content)
	}
	return b.String()
}

// BadgerArchiver stores archives in BadgerDB.
type BadgerArchiver struct {
	db        *badger.DB
	ttl       time.Duration
	publicURL string
	now       func() time.Time
}

var _ detection.Archiver = (*BadgerArchiver)(nil)

// NewBadgerArchiver creates an archiver. Archive URLs are built under publicURL.
func NewBadgerArchiver(db *badger.DB, publicURL string, ttl time.Duration) *BadgerArchiver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BadgerArchiver{
		db:        db,
		ttl:       ttl,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

// URL returns the viewer URL for an archive id.
func (a *BadgerArchiver) URL(id string) string {
	return a.publicURL + "/archives/" + id
}

// Archive stores actions and returns the URL to view them.
func (a *BadgerArchiver) Archive(ctx context.Context, scopeID string, actions []models.Action) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := a.now().UTC()
	arc := Archive{
		ID:        uuid.New().String(),
		ScopeID:   scopeID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
		Actions:   actions,
	}
	data, err := json.Marshal(&arc)
	if err != nil {
		return "", fmt.Errorf("marshal archive: %w", err)
	}

	start := time.Now()
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(archiveKeyPrefix+arc.ID), data).WithTTL(a.ttl))
	})
	metrics.RecordDBQuery("insert", "archives", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("store archive: %w", err)
	}

	logging.Ctx(ctx).Debug().
		Str("archive_id", arc.ID).
		Str("scope_id", scopeID).
		Int("actions", len(actions)).
		Msg("Archive stored")
	return a.URL(arc.ID), nil
}

// Get loads an archive. Expired archives are reported as ErrNotFound.
func (a *BadgerArchiver) Get(ctx context.Context, id string) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var arc Archive
	start := time.Now()
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(archiveKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &arc)
		})
	})
	metrics.RecordDBQuery("select", "archives", time.Since(start), err)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}
	if !a.now().Before(arc.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &arc, nil
}
