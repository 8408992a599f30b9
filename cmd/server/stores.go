// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package main

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/burstguard/internal/audit"
	"github.com/tomtom215/burstguard/internal/config"
	"github.com/tomtom215/burstguard/internal/database"
	"github.com/tomtom215/burstguard/internal/incident"
	"github.com/tomtom215/burstguard/internal/ledger"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/websocket"
)

// stores holds the persistence layer and closes it in dependency order.
type stores struct {
	db     *database.DB
	badger *badger.DB

	ledger  ledger.Ledger
	janitor *ledger.Janitor

	incidents   *incident.DuckDBStore
	auditStore  audit.Store
	auditLogger *audit.Logger

	// feed is nil when the live feed is disabled.
	feed *websocket.Hub
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	st.db = db

	kv, err := database.OpenBadger(&cfg.Badger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	st.badger = kv

	st.incidents = incident.NewDuckDBStore(db.Conn())
	if err := st.incidents.CreateTables(ctx); err != nil {
		st.Close()
		return nil, err
	}

	switch cfg.Detection.LedgerBackend {
	case "badger":
		bl := ledger.NewBadgerLedger(kv, cfg.Detection.LedgerRetention)
		st.ledger = bl
		st.janitor = ledger.NewJanitor(bl, cfg.Detection.LedgerRetention, cfg.Detection.JanitorInterval)
	default:
		ml := ledger.NewMemoryLedger()
		st.ledger = ml
		st.janitor = ledger.NewJanitor(ml, cfg.Detection.LedgerRetention, cfg.Detection.JanitorInterval)
	}

	st.auditStore, err = openAuditStore(ctx, cfg, db)
	if err != nil {
		st.Close()
		return nil, err
	}
	forwarders := auditForwarders(cfg)
	if cfg.Server.LiveFeed {
		st.feed = websocket.NewHub()
		forwarders = append(forwarders, st.feed)
	}
	st.auditLogger = audit.NewLogger(st.auditStore, auditConfig(&cfg.Audit), forwarders...)

	logging.Info().
		Str("database", cfg.Database.Path).
		Bool("badger_in_memory", cfg.Badger.InMemory).
		Str("ledger_backend", cfg.Detection.LedgerBackend).
		Msg("Stores initialized")
	return st, nil
}

func openAuditStore(ctx context.Context, cfg *config.Config, db *database.DB) (audit.Store, error) {
	if cfg.Audit.Store != "duckdb" {
		return audit.NewMemoryStore(10000), nil
	}
	s := audit.NewDuckDBStore(db.Conn())
	if err := s.CreateTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	return s, nil
}

func auditConfig(cfg *config.AuditConfig) *audit.Config {
	c := audit.DefaultConfig()
	c.Enabled = cfg.Enabled
	c.LogLevel = audit.Severity(cfg.LogLevel)
	c.RetentionDays = cfg.RetentionDays
	c.CleanupInterval = cfg.CleanupInterval
	c.BufferSize = cfg.BufferSize
	c.LogToStdout = cfg.LogToStdout
	return c
}

func auditForwarders(cfg *config.Config) []audit.Forwarder {
	d := cfg.Detection.Discord
	if !d.Enabled || d.WebhookURL == "" {
		return nil
	}
	logging.Info().Int("rate_limit_ms", d.RateLimitMs).Msg("Discord mod-log forwarder enabled")
	return []audit.Forwarder{audit.NewDiscordForwarder(audit.DiscordConfig{
		WebhookURL:  d.WebhookURL,
		Enabled:     d.Enabled,
		RateLimitMs: d.RateLimitMs,
	})}
}

// Close flushes the audit buffer before closing the databases it writes to.
func (st *stores) Close() {
	if st.auditLogger != nil {
		if err := st.auditLogger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}
	if st.badger != nil {
		if err := st.badger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing badger")
		}
	}
	if st.db != nil {
		if err := st.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}
}
