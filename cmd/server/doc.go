// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

/*
Package main is the entry point for the burstguard server.

burstguard watches chat message events, counts per-user action bursts in a
sliding window, and mitigates spam: it times the member out, removes the
burst's messages, archives them, and files an incident for moderators.

# Application Architecture

	root ("burstguard")
	├── LayerData ("data-layer")
	│   ├── Ledger janitor
	│   ├── Audit logger (retention sweep)
	│   └── Deletion-log suppressor (expiry sweep)
	├── LayerMessaging ("messaging-layer")
	│   ├── Detection engine
	│   └── NATS intake router (NATS_ENABLED=true)
	└── LayerAPI ("api-layer")
	    ├── Live feed websocket hub (LIVE_FEED=true)
	    └── HTTP server

Initialization order:

 1. Configuration: koanf v2 (defaults, config.yaml, environment, optional .env)
 2. Logging: zerolog
 3. Storage: DuckDB (incidents, audit) and BadgerDB (ledger, archives)
 4. Platform client: rate limited, circuit broken REST client
 5. Detection engine
 6. NATS intake: embedded JetStream server (optional), stream, subscriber
 7. Supervisor tree and HTTP server, with /api/v1 behind HS256 bearer tokens

# Configuration

Required environment:

	PLATFORM_TOKEN=...               bot token for the chat platform API
	DETECTION_MODERATOR_ID=...       actor recorded on restrictions and incidents
	JWT_SECRET=...                   at least 32 characters; signs /api/v1 tokens

Mint a token for a gateway or operator with cmd/token:

	JWT_SECRET=... go run ./cmd/token -subject gateway-eu

Common options:

	HTTP_PORT=8080
	PUBLIC_URL=https://mod.example.com   base of archive links
	NATS_ENABLED=true
	NATS_EMBEDDED=true
	LEDGER_BACKEND=badger
	LIVE_FEED=false                  disable the audit event websocket

# Signal Handling

SIGINT and SIGTERM cancel the root context. The engine drains its scope
queues, the HTTP server finishes in-flight requests, and the stores are
closed after the tree stops.
*/
package main
