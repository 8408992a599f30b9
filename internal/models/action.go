// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package models

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ActionID identifies an action. IDs are totally ordered and monotonic per channel.
type ActionID uint64

// ParseActionID parses a decimal action ID.
func ParseActionID(s string) (ActionID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid action id %q: %w", s, err)
	}
	return ActionID(v), nil
}

func (id ActionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// MarshalJSON encodes the ID as a decimal string.
func (id ActionID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON accepts either a decimal string or a bare number.
func (id *ActionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseActionID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid action id: %w", err)
	}
	*id = ActionID(n)
	return nil
}

// ActionType is the kind of action being rate limited.
type ActionType string

const (
	ActionMessage    ActionType = "message"
	ActionMention    ActionType = "mention"
	ActionLink       ActionType = "link"
	ActionAttachment ActionType = "attachment"
	ActionEmoji      ActionType = "emoji"
	ActionNewline    ActionType = "newline"
	ActionCharacter  ActionType = "character"
	ActionSticker    ActionType = "sticker"
)

// AllActionTypes lists every supported action type.
var AllActionTypes = []ActionType{
	ActionMessage, ActionMention, ActionLink, ActionAttachment,
	ActionEmoji, ActionNewline, ActionCharacter, ActionSticker,
}

// Valid reports whether t is a supported action type.
func (t ActionType) Valid() bool {
	for _, known := range AllActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Action is a single observed user action. Actions are immutable once observed.
type Action struct {
	ID        ActionID        `json:"id"`
	ScopeID   string          `json:"scope_id"`
	UserID    string          `json:"user_id"`
	ChannelID string          `json:"channel_id"`
	PostedAt  time.Time       `json:"posted_at"`
	Content   string          `json:"content,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ActionRecord is an action stored in the ledger under a given type.
type ActionRecord struct {
	Action     Action     `json:"action"`
	Type       ActionType `json:"type"`
	Weight     int        `json:"weight"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// SortActions orders actions by ID ascending in place.
func SortActions(actions []Action) {
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
}

// SortRecords orders records by timestamp, breaking ties by action ID.
func SortRecords(records []ActionRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Action.PostedAt.Equal(b.Action.PostedAt) {
			return a.Action.PostedAt.Before(b.Action.PostedAt)
		}
		return a.Action.ID < b.Action.ID
	})
}

// MergeActions returns the union of a and b, deduplicated by ID and sorted ascending.
// When an ID appears in both, the entry from a wins.
func MergeActions(a, b []Action) []Action {
	seen := make(map[ActionID]struct{}, len(a)+len(b))
	out := make([]Action, 0, len(a)+len(b))
	for _, list := range [][]Action{a, b} {
		for i := range list {
			if _, ok := seen[list[i].ID]; ok {
				continue
			}
			seen[list[i].ID] = struct{}{}
			out = append(out, list[i])
		}
	}
	SortActions(out)
	return out
}

// ActionIDs returns the IDs of actions in order.
func ActionIDs(actions []Action) []ActionID {
	ids := make([]ActionID, len(actions))
	for i := range actions {
		ids[i] = actions[i].ID
	}
	return ids
}
