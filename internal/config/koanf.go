// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/burstguard/config.yaml",
	"/etc/burstguard/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3857,
			Timeout:         30 * time.Second,
			PublicURL:       "http://localhost:3857",
			IntakeRateLimit: 600,
			LiveFeed:        true,
			Environment:     "development",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/burstguard.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Badger: BadgerConfig{
			Path:        "/data/badger",
			InMemory:    false,
			SyncWrites:  false,
			Compression: true,
		},
		NATS: NATSConfig{
			Enabled:          true,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/nats",
			StreamName:       "BURSTGUARD",
			Subject:          "gateway.messages",
			DeletionSubject:  "gateway.message_deletes",
			QueueGroup:       "burstguard",
			DurableName:      "burstguard-intake",
			SubscribersCount: 4,
			AckWaitTimeout:   30 * time.Second,
			MaxDeliver:       5,
		},
		Platform: PlatformConfig{
			BaseURL:            "https://discord.com/api/v10",
			Token:              "",
			Timeout:            10 * time.Second,
			RequestsPerSecond:  40,
			Burst:              10,
			BreakerMaxFailures: 5,
			BreakerInterval:    time.Minute,
			BreakerTimeout:     30 * time.Second,
			SuppressionTTL:     5 * time.Minute,
		},
		Detection: DetectionConfig{
			Enabled:          true,
			IgnoreBots:       true,
			ModeratorID:      "",
			CallTimeout:      10 * time.Second,
			RemovalTimeout:   30 * time.Second,
			ShutdownTimeout:  15 * time.Second,
			QueueMaxDepth:    1000,
			QueueIdleTimeout: 30 * time.Second,
			LedgerBackend:    "badger",
			LedgerRetention:  time.Hour,
			JanitorInterval:  5 * time.Minute,
			Discord: DiscordNotifierConfig{
				Enabled:     false,
				RateLimitMs: 1000,
			},
		},
		Archive: ArchiveConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:         true,
			Store:           "duckdb",
			LogLevel:        "info",
			RetentionDays:   90,
			CleanupInterval: 24 * time.Hour,
			BufferSize:      1000,
			LogToStdout:     false,
		},
	}
}

// Load reads an optional .env file and then loads the layered configuration.
func Load() (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	return LoadWithKoanf()
}

// LoadDotEnv loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadWithKoanf loads configuration using Koanf with the following precedence:
//
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if len(cfg.Detection.Rules) == 0 {
		cfg.Detection.Rules = DefaultRules()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"public_url":        "server.public_url",
	"intake_rate_limit": "server.intake_rate_limit",
	"live_feed":         "server.live_feed",
	"environment":       "server.environment",

	// Auth
	"jwt_secret":    "auth.jwt_secret",
	"jwt_token_ttl": "auth.token_ttl",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// DuckDB
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Badger
	"badger_path":        "badger.path",
	"badger_in_memory":   "badger.in_memory",
	"badger_sync_writes": "badger.sync_writes",

	// NATS
	"nats_enabled":           "nats.enabled",
	"nats_url":               "nats.url",
	"nats_embedded":          "nats.embedded_server",
	"nats_store_dir":         "nats.store_dir",
	"nats_stream_name":       "nats.stream_name",
	"nats_subject":           "nats.subject",
	"nats_deletion_subject":  "nats.deletion_subject",
	"nats_queue_group":       "nats.queue_group",
	"nats_durable_name":      "nats.durable_name",
	"nats_subscribers_count": "nats.subscribers_count",

	// Platform
	"platform_base_url":            "platform.base_url",
	"platform_token":               "platform.token",
	"platform_timeout":             "platform.timeout",
	"platform_requests_per_second": "platform.requests_per_second",
	"platform_burst":               "platform.burst",

	// Detection
	"detection_enabled":      "detection.enabled",
	"detection_ignore_bots":  "detection.ignore_bots",
	"detection_moderator_id": "detection.moderator_id",
	"ledger_backend":         "detection.ledger_backend",
	"ledger_retention":       "detection.ledger_retention",

	// Discord mod-log
	"discord_webhook_url":     "detection.discord.webhook_url",
	"discord_webhook_enabled": "detection.discord.enabled",
	"discord_rate_limit_ms":   "detection.discord.rate_limit_ms",

	// Archive
	"archive_ttl": "archive.ttl",

	// Audit
	"audit_enabled":        "audit.enabled",
	"audit_store":          "audit.store",
	"audit_log_level":      "audit.log_level",
	"audit_retention_days": "audit.retention_days",
	"audit_log_to_stdout":  "audit.log_to_stdout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - PLATFORM_TOKEN -> platform.token
//   - DISCORD_WEBHOOK_URL -> detection.discord.webhook_url
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables
	// cannot pollute the configuration.
	return ""
}
