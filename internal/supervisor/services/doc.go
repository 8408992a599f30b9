// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

/*
Package services adapts burstguard components that don't already speak
suture's Serve(ctx) error into supervised services.

Components with a native Serve method (ledger.Janitor, audit.Logger,
platform.Suppressor, intake.Router) are added to the tree directly.

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe into Serve

Detection Engine (EngineService):
  - Wraps detection.Engine.RunWithContext
  - Records asynchronous removal failures
  - Drains per-scope queues on shutdown
*/
package services
