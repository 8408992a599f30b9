// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

/*
Package websocket streams moderation activity to connected dashboards.

The Hub is an audit.Forwarder: every audit event the audit logger persists
(spam detections, restrictions, failures) is pushed to connected clients as
an "audit_event" message. Clients may narrow the feed to one scope with the
scope_id query parameter.

# Architecture

	audit.Logger ──Forward──▶ Hub.broadcast ──▶ Client.send ──▶ writePump ──▶ browser
	                                ▲
	                     addClient / removeClient (upgrade, readPump exit)

The hub runs as a supervised service (Serve). On shutdown every client
channel is closed, which makes each writePump send a close frame.

# Message Format

	{"type": "audit_event", "data": { ...audit.Event... }}

Clients may send {"type": "ping"} and receive {"type": "pong"}.

# Usage

	hub := websocket.NewHub()
	tree.Add(supervisor.LayerAPI, hub)
	auditLogger := audit.NewLogger(store, cfg, hub)
	router.Handle("/api/v1/feed", websocket.Handler(hub))
*/
package websocket
