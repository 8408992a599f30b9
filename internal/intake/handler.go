// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package intake consumes gateway events from the message bus and hands
// them to the detection engine.
//
// Messages arrive on a Watermill subscriber (NATS JetStream in production,
// gochannel in tests). Malformed or invalid payloads are acked and dropped so
// they are never redelivered; engine errors are returned so the router's
// retry middleware and JetStream redelivery can try again.
package intake

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
	"github.com/tomtom215/burstguard/internal/models"
	"github.com/tomtom215/burstguard/internal/validation"
)

// MetadataCorrelationID is the message metadata key carrying a correlation id.
const MetadataCorrelationID = "correlation_id"

const sourceNATS = "nats"

// MessageProcessor runs detection for a chat message.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, msg *models.Message) error
}

// SuppressionChecker reports whether a deletion was caused by mitigation.
type SuppressionChecker interface {
	Suppressed(kind string, id models.ActionID) bool
}

// Handler decodes bus messages for the engine and the deletion log.
type Handler struct {
	processor  MessageProcessor
	suppressor SuppressionChecker
}

// NewHandler creates a handler. suppressor may be nil when the deletion log
// consumer is not used.
func NewHandler(processor MessageProcessor, suppressor SuppressionChecker) *Handler {
	return &Handler{processor: processor, suppressor: suppressor}
}

// messageContext derives a logging context for msg.
func messageContext(msg *message.Message) context.Context {
	ctx := msg.Context()
	id := msg.Metadata.Get(MetadataCorrelationID)
	if id == "" {
		id = msg.UUID
	}
	return logging.ContextWithCorrelationID(ctx, id)
}

// HandleMessage processes a chat message event.
func (h *Handler) HandleMessage(msg *message.Message) error {
	ctx := messageContext(msg)

	var m models.Message
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		metrics.IntakeMessages.WithLabelValues(sourceNATS, "parse_failed").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable message event")
		return nil
	}
	if verr := validation.ValidateStruct(&m); verr != nil {
		metrics.IntakeMessages.WithLabelValues(sourceNATS, "invalid").Inc()
		logging.Ctx(ctx).Warn().Err(verr).Str("message_uuid", msg.UUID).Msg("Dropping invalid message event")
		return nil
	}

	ctx = logging.ContextWithScope(ctx, m.ScopeID)
	if err := h.processor.ProcessMessage(ctx, &m); err != nil {
		metrics.IntakeMessages.WithLabelValues(sourceNATS, "failed").Inc()
		return err
	}
	metrics.IntakeMessages.WithLabelValues(sourceNATS, "processed").Inc()
	return nil
}

// HandleDeletion writes a deletion-log entry unless the deletion was made
// by mitigation.
func (h *Handler) HandleDeletion(msg *message.Message) error {
	ctx := messageContext(msg)

	var d models.MessageDeletion
	if err := json.Unmarshal(msg.Payload, &d); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable deletion event")
		return nil
	}
	if verr := validation.ValidateStruct(&d); verr != nil {
		logging.Ctx(ctx).Warn().Err(verr).Str("message_uuid", msg.UUID).Msg("Dropping invalid deletion event")
		return nil
	}

	if h.suppressor != nil && h.suppressor.Suppressed(detection.DeletionKindMessageDelete, d.ID) {
		logging.Ctx(ctx).Debug().Str("message_id", d.ID.String()).Msg("Deletion by spam mitigation, not logged")
		return nil
	}

	logging.Ctx(ctx).Info().
		Str("scope_id", d.ScopeID).
		Str("channel_id", d.ChannelID).
		Str("message_id", d.ID.String()).
		Msg("Message deleted")
	return nil
}
