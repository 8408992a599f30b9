// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package main

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/burstguard/internal/config"
	"github.com/tomtom215/burstguard/internal/intake"
	"github.com/tomtom215/burstguard/internal/logging"
)

// intakeComponents owns the NATS side of the intake. A zero value means
// NATS is disabled and only HTTP intake is available.
type intakeComponents struct {
	server     *intake.EmbeddedServer
	subscriber message.Subscriber
	router     *intake.Router
}

func startIntake(ctx context.Context, cfg *config.Config, processor intake.MessageProcessor, suppressor intake.SuppressionChecker) (*intakeComponents, error) {
	in := &intakeComponents{}
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS intake disabled, HTTP intake only")
		return in, nil
	}

	natsCfg := cfg.NATS
	if natsCfg.EmbeddedServer {
		srv, err := intake.NewEmbeddedServer(natsCfg.URL, natsCfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded NATS server: %w", err)
		}
		in.server = srv
		natsCfg.URL = srv.ClientURL()
	}

	if err := intake.ProvisionStream(ctx, &natsCfg); err != nil {
		in.Close()
		return nil, fmt.Errorf("failed to provision intake stream: %w", err)
	}

	wmLogger := logging.NewWatermillAdapter()
	sub, err := intake.NewSubscriber(&natsCfg, wmLogger)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("failed to create intake subscriber: %w", err)
	}
	in.subscriber = sub

	in.router = intake.NewRouter(intake.DefaultRouterConfig(), wmLogger)
	intake.Register(in.router, &natsCfg, sub, intake.NewHandler(processor, suppressor))

	logging.Info().
		Str("stream", natsCfg.StreamName).
		Str("subject", natsCfg.Subject).
		Str("deletion_subject", natsCfg.DeletionSubject).
		Msg("NATS intake configured")
	return in, nil
}

// Close releases the subscriber and stops the embedded server. Call it
// after the supervisor tree has stopped the router.
func (in *intakeComponents) Close() {
	if in.subscriber != nil {
		if err := in.subscriber.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing intake subscriber")
		}
	}
	if in.server != nil {
		in.server.Shutdown()
	}
}
