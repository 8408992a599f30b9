// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/models"
	"github.com/tomtom215/burstguard/internal/validation"
)

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Message)
}

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		errs := verr.Errors()
		field := "unknown"
		if len(errs) > 0 {
			field = errs[0].Field()
		}
		return &ConfigurationError{Field: field, Message: verr.Error()}
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return &ConfigurationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}

	return c.validateRules()
}

// validateRules checks every configured rule, in name order so the
// reported error is deterministic.
func (c *Config) validateRules() error {
	if len(c.Detection.Rules) == 0 {
		return &ConfigurationError{Field: "detection.rules", Message: "at least one rule is required"}
	}

	names := make([]string, 0, len(c.Detection.Rules))
	for name := range c.Detection.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := detection.Rule{Type: models.ActionType(name), Config: c.Detection.Rules[name].SpamConfig}
		if err := rule.Validate(); err != nil {
			return &ConfigurationError{Field: "detection.rules." + name, Message: err.Error()}
		}
		// The janitor would prune history the rule still needs to count.
		if window := time.Duration(rule.Config.Interval) * time.Second; window > c.Detection.LedgerRetention {
			return &ConfigurationError{
				Field:   "detection.rules." + name,
				Message: fmt.Sprintf("interval %v exceeds ledger_retention %v", window, c.Detection.LedgerRetention),
			}
		}
	}
	return nil
}
