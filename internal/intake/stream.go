// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/burstguard/internal/config"
	"github.com/tomtom215/burstguard/internal/logging"
)

// streamMaxAge bounds how long unconsumed gateway events are retained.
const streamMaxAge = time.Hour

// JetStreamContext is the subset of jetstream.JetStream used by EnsureStream.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// StreamConfig returns the stream configuration for cfg's subjects.
func StreamConfig(cfg *config.NATSConfig) jetstream.StreamConfig {
	subjects := []string{cfg.Subject}
	if cfg.DeletionSubject != "" {
		subjects = append(subjects, cfg.DeletionSubject)
	}
	return jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    streamMaxAge,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
	}
}

// EnsureStream creates the stream or updates its configuration. It is idempotent.
func EnsureStream(ctx context.Context, js JetStreamContext, streamCfg jetstream.StreamConfig) error {
	_, err := js.Stream(ctx, streamCfg.Name)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", streamCfg.Name, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", streamCfg.Name, err)
		}
	default:
		return fmt.Errorf("check stream %s: %w", streamCfg.Name, err)
	}

	logging.Info().Str("stream", streamCfg.Name).Strs("subjects", streamCfg.Subjects).Msg("JetStream stream ready")
	return nil
}

// ProvisionStream connects to cfg.URL and ensures the intake stream exists.
func ProvisionStream(ctx context.Context, cfg *config.NATSConfig) error {
	nc, err := natsgo.Connect(cfg.URL, natsgo.Name("burstguard-provisioner"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	return EnsureStream(ctx, js, StreamConfig(cfg))
}
