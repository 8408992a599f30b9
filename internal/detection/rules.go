// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package detection

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tomtom215/burstguard/internal/models"
)

// Rule binds a SpamConfig to an action type.
type Rule struct {
	Type        models.ActionType `json:"type"`
	Config      SpamConfig        `json:"config"`
	Description string            `json:"description"`
}

// Validate checks the rule.
func (r Rule) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidConfig, r.Type)
	}
	if err := r.Config.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", r.Type, err)
	}
	return nil
}

// DefaultDescription returns the stock description for an action type.
func DefaultDescription(t models.ActionType) string {
	switch t {
	case models.ActionEmoji:
		return "too many emoji"
	case models.ActionMessage, models.ActionMention, models.ActionLink, models.ActionAttachment,
		models.ActionNewline, models.ActionCharacter, models.ActionSticker:
		return "too many " + string(t) + "s"
	default:
		return "too many actions"
	}
}

var (
	linkPattern        = regexp.MustCompile(`(?i)\bhttps?://[^\s<>]+`)
	customEmojiPattern = regexp.MustCompile(`<a?:\w{2,32}:\d{15,21}>`)
)

// CountActions derives the per-type weights of a message.
func CountActions(msg *models.Message) map[models.ActionType]int {
	content := msg.Content
	return map[models.ActionType]int{
		models.ActionMessage:    1,
		models.ActionMention:    msg.MentionCount,
		models.ActionLink:       len(linkPattern.FindAllStringIndex(content, -1)),
		models.ActionAttachment: msg.AttachmentCount,
		models.ActionEmoji:      countEmoji(content),
		models.ActionNewline:    strings.Count(content, "\n"),
		models.ActionCharacter:  utf8.RuneCountInString(content),
		models.ActionSticker:    msg.StickerCount,
	}
}

func countEmoji(content string) int {
	n := len(customEmojiPattern.FindAllStringIndex(content, -1))
	for _, r := range customEmojiPattern.ReplaceAllString(content, "") {
		if isEmojiRune(r) {
			n++
		}
	}
	return n
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, transport, supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	}
	return false
}
