// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/burstguard/internal/models"
)

// Key prefix for BadgerDB storage.
//
// Layout: ledger:{scope}:{type}:{user}:{channel}:|{ts 8 bytes}{id 8 bytes}
// The binary suffix sorts records by timestamp then action ID.
const ledgerKeyPrefix = "ledger:"

// DefaultRetention bounds how long a record survives without being cleared.
const DefaultRetention = time.Hour

// BadgerLedger implements Ledger on BadgerDB with per-record TTL.
type BadgerLedger struct {
	db        *badger.DB
	retention time.Duration
}

// NewBadgerLedger creates a BadgerDB-backed ledger. Records expire after retention.
func NewBadgerLedger(db *badger.DB, retention time.Duration) *BadgerLedger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &BadgerLedger{db: db, retention: retention}
}

func seriesPrefix(key Key) []byte {
	return []byte(ledgerKeyPrefix + key.String() + ":|")
}

// orderedTime maps a timestamp onto an unsigned value with the same ordering.
func orderedTime(t time.Time) uint64 {
	return uint64(t.UnixNano()) ^ (1 << 63)
}

func recordKey(key Key, ts time.Time, id models.ActionID) []byte {
	prefix := seriesPrefix(key)
	out := make([]byte, len(prefix)+16)
	copy(out, prefix)
	binary.BigEndian.PutUint64(out[len(prefix):], orderedTime(ts))
	binary.BigEndian.PutUint64(out[len(prefix)+8:], uint64(id))
	return out
}

// Append implements Ledger. Re-appending the same action overwrites its record.
func (l *BadgerLedger) Append(ctx context.Context, key Key, action models.Action, weight int) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if weight <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(models.ActionRecord{
		Action:     action,
		Type:       key.Type,
		Weight:     weight,
		RecordedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(recordKey(key, action.PostedAt, action.ID), data).WithTTL(l.retention)
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set record: %w", err)
		}
		return nil
	})
}

// CountSince implements Ledger.
func (l *BadgerLedger) CountSince(ctx context.Context, key Key, since time.Time) (int, error) {
	total := 0
	err := l.scan(ctx, key, since, func(rec *models.ActionRecord) {
		total += rec.Weight
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListSince implements Ledger.
func (l *BadgerLedger) ListSince(ctx context.Context, key Key, since time.Time) ([]models.ActionRecord, error) {
	var out []models.ActionRecord
	err := l.scan(ctx, key, since, func(rec *models.ActionRecord) {
		out = append(out, *rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *BadgerLedger) scan(ctx context.Context, key Key, since time.Time, fn func(*models.ActionRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := seriesPrefix(key)
	start := recordKey(key, since, 0)

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			var rec models.ActionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			fn(&rec)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan ledger %s: %w", key, err)
	}
	return nil
}

// Clear implements Ledger.
func (l *BadgerLedger) Clear(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := seriesPrefix(key)
	var keys [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list ledger keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	wb := l.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete ledger key: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush ledger clear: %w", err)
	}
	return nil
}

// Prune lets BadgerDB reclaim space held by expired records. Expiry itself is
// handled by the per-record TTL, so the returned count is always zero.
func (l *BadgerLedger) Prune(_ context.Context, _ time.Time) (int, error) {
	err := l.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		return 0, fmt.Errorf("value log gc: %w", err)
	}
	return 0, nil
}
