// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// RouterConfig holds configuration for the Watermill router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for handlers to finish when closing.
	CloseTimeout time.Duration

	// Retry configuration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
}

// DefaultRouterConfig returns production defaults for the router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		RetryMultiplier:      2.0,
	}
}

type handlerSpec struct {
	name       string
	topic      string
	subscriber message.Subscriber
	handler    message.NoPublishHandlerFunc
}

// Router runs consumer handlers on a Watermill router with recovery and
// retry middleware. Each Serve call builds a fresh router so the service
// can be restarted by its supervisor.
type Router struct {
	cfg      RouterConfig
	logger   watermill.LoggerAdapter
	handlers []handlerSpec

	runningOnce sync.Once
	running     chan struct{}
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig, logger watermill.LoggerAdapter) *Router {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Router{cfg: cfg, logger: logger, running: make(chan struct{})}
}

// AddConsumerHandler registers a handler that doesn't produce output messages.
// Handlers must be added before Serve.
func (r *Router) AddConsumerHandler(name, topic string, subscriber message.Subscriber, handler message.NoPublishHandlerFunc) {
	r.handlers = append(r.handlers, handlerSpec{name: name, topic: topic, subscriber: subscriber, handler: handler})
}

// Running returns a channel that closes when the router first starts running.
func (r *Router) Running() <-chan struct{} {
	return r.running
}

// build creates the Watermill router. Middleware order, outer to inner:
// Recoverer turns panics into errors, Retry backs off transient failures.
func (r *Router) build() (*message.Router, error) {
	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: r.cfg.CloseTimeout}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      r.cfg.RetryMaxRetries,
		InitialInterval: r.cfg.RetryInitialInterval,
		MaxInterval:     r.cfg.RetryMaxInterval,
		Multiplier:      r.cfg.RetryMultiplier,
		Logger:          r.logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	for _, h := range r.handlers {
		wmRouter.AddConsumerHandler(h.name, h.topic, h.subscriber, h.handler)
	}
	return wmRouter, nil
}

// Serve runs the router until ctx is canceled.
func (r *Router) Serve(ctx context.Context) error {
	if len(r.handlers) == 0 {
		return fmt.Errorf("intake router: no handlers registered")
	}
	wmRouter, err := r.build()
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-wmRouter.Running():
			r.runningOnce.Do(func() { close(r.running) })
		case <-ctx.Done():
		}
	}()

	if err := wmRouter.Run(ctx); err != nil {
		return fmt.Errorf("intake router: %w", err)
	}
	return ctx.Err()
}

func (r *Router) String() string {
	return "intake-router"
}
