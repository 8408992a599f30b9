// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package detection

import (
	"errors"
	"fmt"

	"github.com/tomtom215/burstguard/internal/models"
)

var (
	// ErrNotApplicable is returned by a collaborator when an effect cannot
	// apply to the target, for example restricting a user who already left.
	// The mitigation step is skipped without counting as a failure.
	ErrNotApplicable = errors.New("not applicable")

	// ErrInvalidConfig is returned when a SpamConfig is unusable.
	ErrInvalidConfig = errors.New("invalid spam config")

	// ErrMissingCollaborator is returned by NewEngine when a required
	// collaborator is nil.
	ErrMissingCollaborator = errors.New("missing collaborator")
)

// Mitigation step names used in logs, errors and metrics.
const (
	StepResolve  = "resolve"
	StepRestrict = "restrict"
	StepSweep    = "sweep"
	StepRemove   = "remove"
	StepClear    = "clear"
	StepArchive  = "archive"
	StepIncident = "incident"
	StepAudit    = "audit"
)

// CollaboratorError wraps a failure of an external collaborator during a
// mitigation step.
type CollaboratorError struct {
	Step string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// RemovalError reports a failed bulk removal. Removal runs detached from the
// mitigation pass, so these errors are delivered asynchronously.
type RemovalError struct {
	ScopeID   string
	ChannelID string
	IDs       []models.ActionID
	Err       error
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("remove %d actions from channel %s: %v", len(e.IDs), e.ChannelID, e.Err)
}

func (e *RemovalError) Unwrap() error {
	return e.Err
}
