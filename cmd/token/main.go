// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Command token prints a bearer token for the burstguard /api/v1 routes.
// It reads the same configuration as the server, so JWT_SECRET and
// JWT_TOKEN_TTL must match the running instance.
//
//	token -subject gateway-eu
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tomtom215/burstguard/internal/auth"
	"github.com/tomtom215/burstguard/internal/config"
	"github.com/tomtom215/burstguard/internal/logging"
)

func main() {
	subject := flag.String("subject", "", "caller name recorded in the token (required)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := issue(os.Stdout, &cfg.Auth, *subject); err != nil {
		logging.Fatal().Err(err).Msg("Failed to issue token")
	}
}

func issue(w io.Writer, cfg *config.AuthConfig, subject string) error {
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(subject)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
