// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/burstguard/internal/api"
	"github.com/tomtom215/burstguard/internal/archive"
	"github.com/tomtom215/burstguard/internal/auth"
	"github.com/tomtom215/burstguard/internal/config"
	"github.com/tomtom215/burstguard/internal/dedup"
	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/platform"
	"github.com/tomtom215/burstguard/internal/supervisor"
	"github.com/tomtom215/burstguard/internal/supervisor/services"
	"github.com/tomtom215/burstguard/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("burstguard stopped with error")
	}
}

func run(cfg *config.Config) error {
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("ledger_backend", cfg.Detection.LedgerBackend).
		Str("audit_store", cfg.Audit.Store).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Int("rules", len(cfg.Detection.Rules)).
		Msg("Starting burstguard")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	client := platform.NewClient(&cfg.Platform)
	suppressor := platform.NewSuppressor(cfg.Platform.SuppressionTTL)
	archiver := archive.NewBadgerArchiver(st.badger, cfg.Server.PublicURL, cfg.Archive.TTL)

	engine, err := detection.NewEngine(cfg.EngineConfig(), detection.Collaborators{
		Ledger:     st.ledger,
		Dedup:      dedup.NewMemoryTracker(),
		Source:     client,
		Directory:  client,
		Restrictor: platform.NewRestrictor(client, st.incidents),
		Remover:    client,
		Suppressor: suppressor,
		Incidents:  st.incidents,
		Archiver:   archiver,
		Audit:      st.auditLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create detection engine: %w", err)
	}
	for _, rule := range engine.Rules() {
		logging.Info().
			Str("action_type", string(rule.Type)).
			Int("count", rule.Config.Count).
			Int("interval_seconds", rule.Config.Interval).
			Bool("mute", rule.Config.Mute).
			Msg("Detection rule loaded")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		// Leave room for the engine drain on top of in-flight HTTP requests.
		ShutdownTimeout: cfg.Detection.ShutdownTimeout + 5*time.Second,
	})

	if st.janitor != nil {
		tree.Add(supervisor.LayerData, st.janitor)
	}
	tree.Add(supervisor.LayerData, st.auditLogger)
	tree.Add(supervisor.LayerData, suppressor)

	tree.Add(supervisor.LayerMessaging, services.NewEngineService(engine))

	in, err := startIntake(ctx, cfg, engine, suppressor)
	if err != nil {
		return err
	}
	defer in.Close()
	if in.router != nil {
		tree.Add(supervisor.LayerMessaging, in.router)
	}

	deps := api.Dependencies{
		Engine:    engine,
		Incidents: st.incidents,
		Archives:  archiver,
		Audit:     st.auditStore,
		Database:  st.db,
		Platform:  client,
	}
	if st.feed != nil {
		tree.Add(supervisor.LayerAPI, st.feed)
		deps.Feed = websocket.Handler(st.feed)
	}
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}
	router := api.NewRouter(deps, api.Config{Tokens: tokens, IntakeRateLimit: cfg.Server.IntakeRateLimit})
	tree.Add(supervisor.LayerAPI, services.NewHTTPServerService(newHTTPServer(&cfg.Server, router), 10*time.Second))

	logging.Info().Str("public_url", cfg.Server.PublicURL).Msg("Supervisor tree starting")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor shutdown error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	stats := engine.Stats()
	logging.Info().
		Int64("actions_observed", stats.ActionsObserved).
		Int64("mitigations", stats.Mitigations).
		Int64("removal_failures", stats.RemovalFailures).
		Msg("burstguard stopped")
	return nil
}

func newHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Timeout,
		WriteTimeout:      cfg.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
}
