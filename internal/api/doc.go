// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

/*
Package api serves burstguard's HTTP surface using the chi router.

Routes:

	GET  /healthz                    liveness
	GET  /readyz                     readiness (DuckDB ping, platform breaker)
	GET  /metrics                    Prometheus exposition
	GET  /archives/{id}              archived burst transcript (text, or JSON with ?format=json)
	GET  /api/v1/incidents           incident listing (scope_id, target_user_id, kind, since, limit, offset)
	GET  /api/v1/incidents/{id}      single incident with notes
	GET  /api/v1/audit/events        audit trail query
	GET  /api/v1/audit/events/{id}   single audit event
	GET  /api/v1/engine/stats        detection engine counters
	GET  /api/v1/feed                live audit event websocket (when Dependencies.Feed is set)
	POST /api/v1/actions             HTTP intake for chat messages (rate limited)

JSON endpoints answer with models.APIResponse envelopes.
*/
package api
