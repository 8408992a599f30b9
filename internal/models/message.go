// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package models

import "time"

// Message is an inbound chat message event as published to the intake.
type Message struct {
	ID              ActionID  `json:"id" validate:"required"`
	ScopeID         string    `json:"scope_id" validate:"required,snowflake"`
	ChannelID       string    `json:"channel_id" validate:"required,snowflake"`
	AuthorID        string    `json:"author_id" validate:"required,snowflake"`
	AuthorIsBot     bool      `json:"author_is_bot,omitempty"`
	Content         string    `json:"content"`
	MentionCount    int       `json:"mention_count" validate:"gte=0"`
	AttachmentCount int       `json:"attachment_count" validate:"gte=0"`
	StickerCount    int       `json:"sticker_count" validate:"gte=0"`
	PostedAt        time.Time `json:"posted_at" validate:"required"`
}

// Action converts the message into its action representation.
func (m *Message) Action() Action {
	return Action{
		ID:        m.ID,
		ScopeID:   m.ScopeID,
		UserID:    m.AuthorID,
		ChannelID: m.ChannelID,
		PostedAt:  m.PostedAt,
		Content:   m.Content,
	}
}

// Member is a scalar-safe snapshot of a scope member for logs and audit records.
type Member struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// Label returns a human readable "name (id)" label.
func (m *Member) Label() string {
	if m == nil {
		return ""
	}
	name := m.DisplayName
	if name == "" {
		name = m.Username
	}
	return name + " (" + m.ID + ")"
}

// Channel is a scalar-safe snapshot of a channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Label returns "#name (id)".
func (c *Channel) Label() string {
	if c == nil {
		return ""
	}
	return "#" + c.Name + " (" + c.ID + ")"
}

// MessageDeletion is an inbound message deletion event.
type MessageDeletion struct {
	ID        ActionID `json:"id" validate:"required"`
	ScopeID   string   `json:"scope_id" validate:"required,snowflake"`
	ChannelID string   `json:"channel_id" validate:"required,snowflake"`
}
