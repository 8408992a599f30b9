// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package config loads burstguard configuration with Koanf.
//
// Configuration is layered, later sources overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/burstguard/config.yaml)
//  3. Mapped environment variables (HTTP_PORT, PLATFORM_TOKEN, ...)
//
// Load additionally reads a local .env file first, without overriding
// variables already present in the environment.
//
// Detection rules are keyed by action type:
//
//	detection:
//	  moderator_id: "1234567890"
//	  rules:
//	    mention:
//	      count: 10
//	      interval: 15
//	      mute: true
//	      mute_time: 10m
//	    link:
//	      count: 5
//	      interval: 30
//	      clean: false
//	      description: "link flood"
//
// When no rules are configured, DefaultRules applies. Invalid configuration
// is reported as *ConfigurationError.
package config
