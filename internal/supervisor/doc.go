// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

/*
Package supervisor provides process supervision for burstguard using suture v4.

Every long-running component runs under a three-layer tree:

	root ("burstguard")
	├── LayerData ("data-layer")
	│   ├── ledger.Janitor
	│   ├── audit.Logger
	│   └── platform.Suppressor
	├── LayerMessaging ("messaging-layer")
	│   ├── services.EngineService
	│   └── intake.Router (if NATS_ENABLED)
	└── LayerAPI ("api-layer")
	    ├── websocket.Hub (if LIVE_FEED)
	    └── services.HTTPServerService

Crashed services are restarted with suture's exponential backoff. Supervisor
events are logged through sutureslog, which wraps the slog adapter from
internal/logging so they land in the same zerolog stream as everything else.

# Usage

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.Add(supervisor.LayerMessaging, services.NewEngineService(engine))
	tree.Add(supervisor.LayerAPI, services.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

# Shutdown

On cancellation each service gets TreeConfig.ShutdownTimeout to return.
The engine service uses that window to drain per-scope queues and wait for
detached content removals. UnstoppedServiceReport names anything that did
not make it.
*/
package supervisor
