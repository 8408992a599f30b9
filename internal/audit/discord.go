// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package audit

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// DiscordConfig configures the Discord mod-log forwarder.
type DiscordConfig struct {
	WebhookURL  string `koanf:"webhook_url" json:"webhook_url" validate:"omitempty,url"`
	Enabled     bool   `koanf:"enabled" json:"enabled"`
	RateLimitMs int    `koanf:"rate_limit_ms" json:"rate_limit_ms" validate:"gte=0"` // minimum ms between messages
}

// DiscordForwarder posts audit events to a Discord webhook as embeds.
type DiscordForwarder struct {
	webhookURL string
	client     *http.Client
	enabled    bool
	mu         sync.RWMutex

	lastSent  time.Time
	rateLimit time.Duration
}

// NewDiscordForwarder creates a new Discord forwarder.
func NewDiscordForwarder(config DiscordConfig) *DiscordForwarder {
	rateLimit := time.Duration(config.RateLimitMs) * time.Millisecond
	if rateLimit == 0 {
		rateLimit = time.Second
	}

	return &DiscordForwarder{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled,
		rateLimit:  rateLimit,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the forwarder name.
func (n *DiscordForwarder) Name() string {
	return "discord"
}

// Enabled returns whether this forwarder is enabled.
func (n *DiscordForwarder) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.webhookURL != ""
}

// SetEnabled enables or disables the forwarder.
func (n *DiscordForwarder) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Forward delivers an audit event to Discord.
func (n *DiscordForwarder) Forward(ctx context.Context, event *Event) error {
	n.mu.RLock()
	if !n.enabled || n.webhookURL == "" {
		n.mu.RUnlock()
		return nil
	}
	webhookURL := n.webhookURL
	rateLimit := n.rateLimit
	lastSent := n.lastSent
	n.mu.RUnlock()

	if wait := rateLimit - time.Since(lastSent); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	payload := discordWebhookPayload{
		Embeds: []discordEmbed{buildEmbed(event)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Discord webhook: %w", err)
	}
	defer resp.Body.Close()

	n.mu.Lock()
	n.lastSent = time.Now()
	n.mu.Unlock()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// buildEmbed renders an audit event as a mod-log embed.
func buildEmbed(event *Event) discordEmbed {
	title := "Spam detected"
	if event.Type == EventTypeRemovalFailed {
		title = "Spam removal failed"
	}

	var fields []discordEmbedField
	if event.Target != nil && event.Target.Type == "member" {
		fields = append(fields, discordEmbedField{Name: "Member", Value: event.Target.Name, Inline: true})
	}

	if md := event.SpamMetadata(); md != nil {
		if md.ChannelID != "" {
			fields = append(fields, discordEmbedField{Name: "Channel", Value: "<#" + md.ChannelID + ">", Inline: true})
		}
		if md.ActionType != "" {
			fields = append(fields, discordEmbedField{Name: "Rule", Value: md.ActionType, Inline: true})
		}
		if md.Threshold > 0 {
			fields = append(fields, discordEmbedField{
				Name:   "Count",
				Value:  fmt.Sprintf("%d (over %d in %ds)", md.ActionCount, md.Threshold, md.IntervalSeconds),
				Inline: true,
			})
		}
		if event.Type == EventTypeSpamDetected {
			fields = append(fields, discordEmbedField{Name: "Muted", Value: strconv.FormatBool(md.RestrictionApplied), Inline: true})
		}
		if md.IncidentID > 0 {
			fields = append(fields, discordEmbedField{Name: "Incident", Value: "#" + strconv.FormatInt(md.IncidentID, 10), Inline: true})
		}
		if md.ArchiveURL != "" {
			fields = append(fields, discordEmbedField{Name: "Archive", Value: md.ArchiveURL})
		}
		if md.Error != "" {
			fields = append(fields, discordEmbedField{Name: "Error", Value: md.Error})
		}
	}

	return discordEmbed{
		Title:       title,
		Description: event.Description,
		Color:       severityColor(event.Severity),
		Timestamp:   event.Timestamp.Format(time.RFC3339),
		Fields:      fields,
		Footer: discordEmbedFooter{
			Text: "burstguard",
		},
	}
}

// severityColor returns the Discord embed color for a severity level.
func severityColor(severity Severity) int {
	switch severity {
	case SeverityCritical, SeverityError:
		return 0xFF0000 // Red
	case SeverityWarning:
		return 0xFFA500 // Orange
	case SeverityInfo:
		return 0x3498DB // Blue
	default:
		return 0x95A5A6 // Gray
	}
}

// Discord webhook structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}
