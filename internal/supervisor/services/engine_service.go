// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package services

import (
	"context"
)

// DetectionEngine matches detection.Engine's background loop.
//
// Satisfied by *detection.Engine from internal/detection/engine.go.
type DetectionEngine interface {
	// RunWithContext consumes removal failures and drains the scope
	// queues once ctx is canceled.
	RunWithContext(ctx context.Context) error
}

// EngineService wraps the detection engine as a supervised service.
//
// Example usage:
//
//	engine := detection.NewEngine(cfg, collaborators)
//	tree.Add(supervisor.LayerMessaging, services.NewEngineService(engine))
type EngineService struct {
	engine DetectionEngine
	name   string
}

// NewEngineService creates a new detection engine service wrapper.
func NewEngineService(engine DetectionEngine) *EngineService {
	return &EngineService{
		engine: engine,
		name:   "detection-engine",
	}
}

// Serve implements suture.Service. It returns ctx.Err() on normal shutdown.
func (d *EngineService) Serve(ctx context.Context) error {
	return d.engine.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (d *EngineService) String() string {
	return d.name
}
