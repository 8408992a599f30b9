// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package websocket

import (
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/burstguard/internal/logging"
)

// Handler upgrades requests to websocket connections on hub. Browsers must
// connect from the same host; non-browser clients without an Origin header
// are accepted.
func Handler(hub *Hub) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     sameOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		c := newClient(hub, conn, r.URL.Query().Get("scope_id"))
		hub.addClient(c)
		go c.writePump()
		go c.readPump()
	})
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
