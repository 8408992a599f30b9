// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/tomtom215/burstguard/internal/audit"
	"github.com/tomtom215/burstguard/internal/config"
)

func TestAuditConfigMapping(t *testing.T) {
	t.Parallel()

	got := auditConfig(&config.AuditConfig{
		Enabled:         true,
		Store:           "duckdb",
		LogLevel:        "warning",
		RetentionDays:   30,
		CleanupInterval: 6 * time.Hour,
		BufferSize:      512,
		LogToStdout:     true,
	})

	if !got.Enabled || got.LogLevel != audit.SeverityWarning {
		t.Errorf("Enabled/LogLevel = %v/%q", got.Enabled, got.LogLevel)
	}
	if got.RetentionDays != 30 || got.CleanupInterval != 6*time.Hour {
		t.Errorf("retention = %d days every %v", got.RetentionDays, got.CleanupInterval)
	}
	if got.BufferSize != 512 || !got.LogToStdout {
		t.Errorf("BufferSize/LogToStdout = %d/%v", got.BufferSize, got.LogToStdout)
	}
	if got.ForwardTimeout != audit.DefaultConfig().ForwardTimeout {
		t.Errorf("ForwardTimeout = %v, want default", got.ForwardTimeout)
	}
}

func TestAuditForwarders(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if fw := auditForwarders(cfg); len(fw) != 0 {
		t.Errorf("disabled discord: got %d forwarders", len(fw))
	}

	cfg.Detection.Discord.Enabled = true
	if fw := auditForwarders(cfg); len(fw) != 0 {
		t.Errorf("enabled without webhook: got %d forwarders", len(fw))
	}

	cfg.Detection.Discord.WebhookURL = "https://discord.test/hook"
	fw := auditForwarders(cfg)
	if len(fw) != 1 || fw[0].Name() != "discord" {
		t.Fatalf("forwarders = %v, want one discord forwarder", fw)
	}
}

func TestNewHTTPServer(t *testing.T) {
	t.Parallel()

	srv := newHTTPServer(&config.ServerConfig{Host: "127.0.0.1", Port: 3857, Timeout: 20 * time.Second}, http.NotFoundHandler())
	if srv.Addr != "127.0.0.1:3857" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadTimeout != 20*time.Second || srv.WriteTimeout != 20*time.Second {
		t.Errorf("timeouts = %v/%v", srv.ReadTimeout, srv.WriteTimeout)
	}
	if srv.ReadHeaderTimeout == 0 {
		t.Error("ReadHeaderTimeout must be set")
	}

	srv = newHTTPServer(&config.ServerConfig{Host: "::1", Port: 80, Timeout: time.Second}, http.NotFoundHandler())
	if srv.Addr != "[::1]:80" {
		t.Errorf("IPv6 Addr = %q", srv.Addr)
	}
}

func TestStartIntakeDisabled(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	in, err := startIntake(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("startIntake: %v", err)
	}
	if in.router != nil || in.subscriber != nil || in.server != nil {
		t.Errorf("expected no intake components, got %+v", in)
	}
	in.Close()
}
