// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package config

import (
	"sort"
	"time"

	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/models"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	Logging   LoggingConfig   `koanf:"logging"`
	Database  DatabaseConfig  `koanf:"database"`
	Badger    BadgerConfig    `koanf:"badger"`
	NATS      NATSConfig      `koanf:"nats"`
	Platform  PlatformConfig  `koanf:"platform"`
	Detection DetectionConfig `koanf:"detection"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Audit     AuditConfig     `koanf:"audit"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// PublicURL is the externally reachable base used in archive links.
	PublicURL string `koanf:"public_url" validate:"required,url"`

	// IntakeRateLimit caps POST /api/v1/actions requests per minute per client.
	IntakeRateLimit int `koanf:"intake_rate_limit" validate:"gte=0"`

	// LiveFeed enables the /api/v1/feed websocket of audit events.
	LiveFeed bool `koanf:"live_feed"`

	// Environment mode: "development" or "production".
	Environment string `koanf:"environment" validate:"oneof=development production"`
}

// AuthConfig holds bearer token settings for the /api/v1 routes.
//
// Environment Variables:
//   - JWT_SECRET: HS256 signing secret, at least 32 characters (required)
//   - JWT_TOKEN_TTL: lifetime of tokens minted by cmd/token (default: 24h)
type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret" validate:"required,min=32"`
	TokenTTL  time.Duration `koanf:"token_ttl" validate:"gt=0"`
}

// LoggingConfig holds zerolog settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"` // 0 = use NumCPU
}

// BadgerConfig holds the key-value store settings shared by the ledger and archive.
type BadgerConfig struct {
	Path        string `koanf:"path" validate:"required_if=InMemory false"`
	InMemory    bool   `koanf:"in_memory"`
	SyncWrites  bool   `koanf:"sync_writes"`
	Compression bool   `koanf:"compression"`
}

// NATSConfig holds the intake transport settings.
//
// Example - Embedded server (default, single-node):
//
//	cfg := NATSConfig{
//	    Enabled:        true,
//	    EmbeddedServer: true,
//	    StoreDir:       "/data/nats",
//	}
type NATSConfig struct {
	// Enabled controls whether the NATS intake is started.
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server connection URL.
	URL string `koanf:"url" validate:"required_if=Enabled true"`

	// EmbeddedServer runs an in-process JetStream server.
	EmbeddedServer bool `koanf:"embedded_server"`

	// StoreDir is the JetStream storage directory for the embedded server.
	StoreDir string `koanf:"store_dir"`

	// StreamName is the JetStream stream holding the intake subjects.
	StreamName string `koanf:"stream_name" validate:"required_if=Enabled true"`

	// Subject carries gateway message events.
	Subject string `koanf:"subject" validate:"required_if=Enabled true"`

	// DeletionSubject carries message deletion events for the deletion log.
	// Empty disables the deletion log consumer.
	DeletionSubject string `koanf:"deletion_subject"`

	// QueueGroup load-balances messages across replicas.
	QueueGroup string `koanf:"queue_group"`

	// DurableName is the JetStream durable consumer name.
	DurableName string `koanf:"durable_name"`

	// SubscribersCount is the number of parallel subscribers.
	SubscribersCount int `koanf:"subscribers_count" validate:"gte=1"`

	// AckWaitTimeout is how long JetStream waits for an ack before redelivery.
	AckWaitTimeout time.Duration `koanf:"ack_wait_timeout" validate:"gt=0"`

	// MaxDeliver bounds redelivery attempts.
	MaxDeliver int `koanf:"max_deliver" validate:"gte=1"`
}

// PlatformConfig holds the chat platform REST client settings.
type PlatformConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Token   string        `koanf:"token" validate:"required"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RequestsPerSecond and Burst configure the client-side rate limiter.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int     `koanf:"burst" validate:"gte=1"`

	// Circuit breaker settings.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"gte=1"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout" validate:"gt=0"`

	// SuppressionTTL is how long a removed message id stays on the
	// deletion-log ignore list.
	SuppressionTTL time.Duration `koanf:"suppression_ttl" validate:"gt=0"`
}

// RuleConfig configures one action type threshold.
type RuleConfig struct {
	detection.SpamConfig `koanf:",squash"`

	// Description overrides the stock "too many ..." text.
	Description string `koanf:"description"`
}

// DetectionConfig holds detection engine configuration.
//
// Environment Variables:
//   - DETECTION_ENABLED: Enable detection engine (default: true)
//   - DETECTION_MODERATOR_ID: Actor recorded on restrictions and incidents
//   - DISCORD_WEBHOOK_URL: Discord webhook URL for the mod-log
//   - DISCORD_WEBHOOK_ENABLED: Enable Discord forwarding (default: false)
//   - DISCORD_RATE_LIMIT_MS: Rate limit between messages (default: 1000)
type DetectionConfig struct {
	Enabled     bool   `koanf:"enabled"`
	IgnoreBots  bool   `koanf:"ignore_bots"`
	ModeratorID string `koanf:"moderator_id" validate:"required"`

	CallTimeout     time.Duration `koanf:"call_timeout" validate:"gt=0"`
	RemovalTimeout  time.Duration `koanf:"removal_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	QueueMaxDepth    int           `koanf:"queue_max_depth" validate:"gte=1"`
	QueueIdleTimeout time.Duration `koanf:"queue_idle_timeout" validate:"gt=0"`

	// LedgerBackend selects "memory" or "badger".
	LedgerBackend   string        `koanf:"ledger_backend" validate:"oneof=memory badger"`
	LedgerRetention time.Duration `koanf:"ledger_retention" validate:"gt=0"`
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"gt=0"`

	// Rules maps action type names to thresholds. Empty means DefaultRules.
	Rules map[string]RuleConfig `koanf:"rules"`

	Discord DiscordNotifierConfig `koanf:"discord"`
}

// DiscordNotifierConfig holds Discord webhook settings.
type DiscordNotifierConfig struct {
	WebhookURL  string `koanf:"webhook_url" validate:"required_if=Enabled true,omitempty,url"`
	Enabled     bool   `koanf:"enabled"`
	RateLimitMs int    `koanf:"rate_limit_ms" validate:"gte=0"`
}

// ArchiveConfig holds archive viewer settings.
type ArchiveConfig struct {
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Store           string        `koanf:"store" validate:"oneof=memory duckdb"`
	LogLevel        string        `koanf:"log_level" validate:"oneof=debug info warning error critical"`
	RetentionDays   int           `koanf:"retention_days" validate:"gte=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"gt=0"`
	BufferSize      int           `koanf:"buffer_size" validate:"gte=1"`
	LogToStdout     bool          `koanf:"log_to_stdout"`
}

// DefaultRules returns the thresholds used when none are configured.
func DefaultRules() map[string]RuleConfig {
	return map[string]RuleConfig{
		string(models.ActionMessage): {SpamConfig: detection.SpamConfig{Count: 5, Interval: 5, Mute: true}},
		string(models.ActionMention): {SpamConfig: detection.SpamConfig{Count: 10, Interval: 15, Mute: true}},
		string(models.ActionLink):    {SpamConfig: detection.SpamConfig{Count: 5, Interval: 30}},
	}
}

// DetectionRules converts the configured rule map into engine rules,
// ordered by action type for stable logs.
func (c *DetectionConfig) DetectionRules() []detection.Rule {
	names := make([]string, 0, len(c.Rules))
	for name := range c.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]detection.Rule, 0, len(names))
	for _, name := range names {
		rc := c.Rules[name]
		rules = append(rules, detection.Rule{
			Type:        models.ActionType(name),
			Config:      rc.SpamConfig,
			Description: rc.Description,
		})
	}
	return rules
}

// EngineConfig builds the detection engine configuration.
func (c *Config) EngineConfig() detection.EngineConfig {
	cfg := detection.DefaultEngineConfig()
	cfg.Enabled = c.Detection.Enabled
	cfg.IgnoreBots = c.Detection.IgnoreBots
	cfg.Rules = c.Detection.DetectionRules()
	cfg.Queue.MaxDepth = c.Detection.QueueMaxDepth
	cfg.Queue.IdleTimeout = c.Detection.QueueIdleTimeout
	cfg.ShutdownTimeout = c.Detection.ShutdownTimeout
	cfg.Mitigator.ModeratorID = c.Detection.ModeratorID
	cfg.Mitigator.CallTimeout = c.Detection.CallTimeout
	cfg.Mitigator.RemovalTimeout = c.Detection.RemovalTimeout
	return cfg
}
