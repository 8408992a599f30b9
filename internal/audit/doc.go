// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package audit records the moderation trail produced by the detection engine.
//
// Every mitigated burst becomes a spam.detected event and every failed
// background removal becomes a spam.removal_failed event. Events are written
// asynchronously so the mitigation pipeline never blocks on storage.
//
// # Event Types
//
//   - spam.detected: a burst crossed its threshold and was mitigated
//   - spam.removal_failed: a detached bulk removal did not complete
//
// # Storage
//
// Two Store implementations are provided:
//
//   - MemoryStore: bounded in-memory ring for development and tests
//   - DuckDBStore: durable audit_events table
//
// # Forwarding
//
// A Logger can fan events out to Forwarders after they are stored. The
// DiscordForwarder posts a mod-log embed to a webhook:
//
//	logger := audit.NewLogger(store, cfg, audit.NewDiscordForwarder(discordCfg))
//	engine, _ := detection.NewEngine(engineCfg, detection.Collaborators{Audit: logger, ...})
//
// # Retention
//
// Logger.Serve runs the retention sweep and is meant to be supervised:
//
//	supervisor.Add(logger)
package audit
