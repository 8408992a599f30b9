// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/models"
)

const (
	// pageSize is the platform's maximum page and bulk-delete size.
	pageSize = 100

	// maxSweepPages bounds the trailing sweep.
	maxSweepPages = 5
)

type apiUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Bot        bool   `json:"bot"`
}

type apiMember struct {
	User apiUser `json:"user"`
	Nick string  `json:"nick"`
}

type apiChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiMessage struct {
	ID        models.ActionID `json:"id"`
	ChannelID string          `json:"channel_id"`
	Author    apiUser         `json:"author"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

var (
	_ detection.Directory      = (*Client)(nil)
	_ detection.ContentSource  = (*Client)(nil)
	_ detection.ContentRemover = (*Client)(nil)
)

// ResolveMember returns a member snapshot, or detection.ErrNotApplicable when
// the user is no longer in the scope.
func (c *Client) ResolveMember(ctx context.Context, scopeID, userID string) (*models.Member, error) {
	var m apiMember
	err := c.do(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/guilds/" + url.PathEscape(scopeID) + "/members/" + url.PathEscape(userID),
	}, &m)
	if IsStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%w: user %s not in scope %s", detection.ErrNotApplicable, userID, scopeID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve member: %w", err)
	}

	display := m.Nick
	if display == "" {
		display = m.User.GlobalName
	}
	return &models.Member{ID: m.User.ID, Username: m.User.Username, DisplayName: display}, nil
}

// ResolveChannel returns a channel snapshot.
func (c *Client) ResolveChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	var ch apiChannel
	if err := c.do(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/channels/" + url.PathEscape(channelID),
	}, &ch); err != nil {
		return nil, fmt.Errorf("resolve channel: %w", err)
	}
	return &models.Channel{ID: ch.ID, Name: ch.Name}, nil
}

// FetchAfter lists messages userID posted in channelID after the given id.
func (c *Client) FetchAfter(ctx context.Context, channelID, userID string, after models.ActionID) ([]models.Action, error) {
	var out []models.Action
	cursor := after
	for page := 0; page < maxSweepPages; page++ {
		var msgs []apiMessage
		err := c.do(ctx, requestConfig{
			method: http.MethodGet,
			path:   "/channels/" + url.PathEscape(channelID) + "/messages",
			query: url.Values{
				"after": {cursor.String()},
				"limit": {fmt.Sprint(pageSize)},
			},
		}, &msgs)
		if err != nil {
			return nil, fmt.Errorf("fetch messages after %s: %w", cursor, err)
		}

		for i := range msgs {
			msg := &msgs[i]
			if msg.ID > cursor {
				cursor = msg.ID
			}
			if msg.Author.ID != userID {
				continue
			}
			out = append(out, models.Action{
				ID:        msg.ID,
				UserID:    msg.Author.ID,
				ChannelID: channelID,
				PostedAt:  msg.Timestamp,
				Content:   msg.Content,
			})
		}
		if len(msgs) < pageSize {
			break
		}
	}
	return out, nil
}

// Remove deletes ids from channelID, using bulk deletion for groups of two or more.
func (c *Client) Remove(ctx context.Context, channelID string, ids []models.ActionID) error {
	base := "/channels/" + url.PathEscape(channelID) + "/messages"
	for start := 0; start < len(ids); start += pageSize {
		end := start + pageSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		var err error
		if len(chunk) == 1 {
			err = c.do(ctx, requestConfig{method: http.MethodDelete, path: base + "/" + chunk[0].String()}, nil)
			if IsStatus(err, http.StatusNotFound) {
				err = nil
			}
		} else {
			err = c.do(ctx, requestConfig{
				method: http.MethodPost,
				path:   base + "/bulk-delete",
				body:   map[string][]models.ActionID{"messages": chunk},
			}, nil)
		}
		if err != nil {
			return fmt.Errorf("remove %d messages from %s: %w", len(chunk), channelID, err)
		}
	}
	logging.Ctx(ctx).Debug().Str("channel_id", channelID).Int("count", len(ids)).Msg("Messages removed")
	return nil
}

// Restrictor applies timeouts and records each one as a "mute" incident.
type Restrictor struct {
	client    *Client
	incidents detection.IncidentStore
	now       func() time.Time
}

var _ detection.Restrictor = (*Restrictor)(nil)

// NewRestrictor creates a restrictor. incidents may be nil, in which case
// no restriction incident is recorded.
func NewRestrictor(client *Client, incidents detection.IncidentStore) *Restrictor {
	return &Restrictor{client: client, incidents: incidents, now: time.Now}
}

// Restrict times the member out. A member who left the scope yields
// detection.ErrNotApplicable.
func (r *Restrictor) Restrict(ctx context.Context, req detection.RestrictionRequest) (*detection.RestrictionResult, error) {
	until := r.now().Add(req.Duration).UTC()
	err := r.client.do(ctx, requestConfig{
		method: http.MethodPatch,
		path:   "/guilds/" + url.PathEscape(req.ScopeID) + "/members/" + url.PathEscape(req.UserID),
		body:   map[string]string{"communication_disabled_until": until.Format(time.RFC3339)},
		reason: req.Reason,
	}, nil)
	if IsStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%w: user %s not in scope %s", detection.ErrNotApplicable, req.UserID, req.ScopeID)
	}
	if err != nil {
		return nil, fmt.Errorf("apply timeout: %w", err)
	}

	result := &detection.RestrictionResult{Until: until}
	if r.incidents == nil {
		return result, nil
	}

	id, err := r.incidents.CreateIncident(ctx, detection.NewIncident{
		ScopeID:      req.ScopeID,
		Kind:         detection.IncidentMute,
		TargetUserID: req.UserID,
		ModeratorID:  req.ModeratorID,
		Body:         fmt.Sprintf("%s\nMuted until %s", req.Reason, until.Format(time.RFC3339)),
	})
	if err != nil {
		// The timeout is in place; the detection note will open its own incident.
		logging.Ctx(ctx).Error().Err(err).Str("user_id", req.UserID).Msg("Failed to record mute incident")
		return result, nil
	}
	result.IncidentID = id
	return result, nil
}
