// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package middleware provides HTTP middleware shared by the API router:
// correlation ids for log tracing and Prometheus request instrumentation.
package middleware
