// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

/*
Package detection implements spam burst detection and mitigation.

An Engine receives actions (a message, the mentions in it, its links, ...)
and appends them to the action ledger under a (scope, type, user, channel)
key. After every append the BurstDetector counts the weighted actions inside
the configured window; when the count is strictly greater than the configured
threshold the burst trips and the Mitigator runs.

Mitigation is a fixed pipeline:

 1. Restrict the user (timeout) if configured and the user is still a member.
 2. Sweep trailing content the user posted after the last detected action.
 3. Remove the detected and trailing content (detached, never blocks).
 4. Raise the dedup watermark to the highest handled action ID.
 5. Clear the ledger key.
 6. Archive the content and record an incident note.
 7. Emit a structured audit event.

Steps 4 and 5 always run. Every other step logs and counts its failure and
the pipeline continues.

All work for a scope is serialized through a scopequeue.Queue, so two passes
for the same key never observe the same ledger state. A best-effort dedup
check also runs before enqueueing to drop actions that an earlier mitigation
already swept; the check is repeated inside the serialized pass.

Collaborators (restriction, removal, incident store, archiver, audit sink)
are injected through Collaborators and called with a bounded timeout.
*/
package detection
