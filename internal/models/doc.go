// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

/*
Package models defines the data structures shared across burstguard.

Key types:

  - ActionID: totally ordered identifier of a user action (a platform snowflake)
  - Action: one observed user action in a channel of a scope
  - ActionRecord: an Action as stored in the action ledger, with its weight
  - Message: the inbound chat message event that actions are derived from
  - Member, Channel: scalar-safe snapshots used in logs and audit records
  - APIResponse, APIError: the HTTP response envelope

Action IDs travel as decimal strings in JSON, matching the platform wire
format, but are compared numerically everywhere inside the service.
*/
package models
