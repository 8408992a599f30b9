// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package scopequeue runs work items serially per scope.
//
// Every scope with pending work owns one worker goroutine that drains its FIFO
// in enqueue order. Different scopes run concurrently. A work item that returns
// an error or panics is logged and counted, and the next item for the scope
// starts normally. Workers retire after an idle period and are recreated on
// demand, so the number of goroutines tracks the number of active scopes.
package scopequeue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
)

var (
	// ErrQueueFull is returned when a scope already has MaxDepth pending items.
	ErrQueueFull = errors.New("scope queue is full")

	// ErrQueueClosed is returned after Shutdown has been called.
	ErrQueueClosed = errors.New("scope queue is closed")

	// ErrItemPanicked wraps a recovered panic from a work item.
	ErrItemPanicked = errors.New("work item panicked")
)

// Work is a unit of serialized work. ctx carries the scope for logging and is
// canceled if the queue is forced down.
type Work func(ctx context.Context) error

// Config holds queue configuration.
type Config struct {
	// MaxDepth bounds pending items per scope. Zero means unbounded.
	MaxDepth int

	// IdleTimeout is how long a worker waits for new work before retiring.
	IdleTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:    1000,
		IdleTimeout: 30 * time.Second,
	}
}

type item struct {
	work Work
	done chan error // nil for fire-and-forget items
}

type worker struct {
	scope string
	items []item // guarded by Queue.mu
	wake  chan struct{}
}

// Queue is a set of per-scope serial queues.
type Queue struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool

	wg sync.WaitGroup
}

// New creates a queue.
func New(cfg Config) *Queue {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[string]*worker),
	}
}

// Enqueue appends work to the scope's FIFO and returns immediately.
func (q *Queue) Enqueue(scope string, work Work) error {
	return q.enqueue(scope, item{work: work})
}

// Do enqueues work and waits for it to finish, returning its error.
// If ctx ends first the item still runs but its result is discarded.
func (q *Queue) Do(ctx context.Context, scope string, work Work) error {
	done := make(chan error, 1)
	if err := q.enqueue(scope, item{work: work, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until every item enqueued for scope before the call has settled.
func (q *Queue) Sync(ctx context.Context, scope string) error {
	return q.Do(ctx, scope, func(context.Context) error { return nil })
}

func (q *Queue) enqueue(scope string, it item) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	w := q.workers[scope]
	if w == nil {
		w = &worker{scope: scope, wake: make(chan struct{}, 1)}
		q.workers[scope] = w
		q.wg.Add(1)
		metrics.QueueWorkers.Inc()
		go q.run(w)
	}
	if q.cfg.MaxDepth > 0 && len(w.items) >= q.cfg.MaxDepth {
		q.mu.Unlock()
		return ErrQueueFull
	}
	w.items = append(w.items, it)
	metrics.QueueDepth.Inc()
	q.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) run(w *worker) {
	defer q.wg.Done()
	defer metrics.QueueWorkers.Dec()

	idle := time.NewTimer(q.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		if q.ctx.Err() != nil {
			q.abandon(w)
			return
		}

		q.mu.Lock()
		if len(w.items) > 0 {
			it := w.items[0]
			w.items[0] = item{}
			w.items = w.items[1:]
			q.mu.Unlock()

			metrics.QueueDepth.Dec()
			err := q.execute(w.scope, it.work)
			if it.done != nil {
				it.done <- err
			}
			continue
		}
		if q.closed {
			delete(q.workers, w.scope)
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		idle.Reset(q.cfg.IdleTimeout)
		select {
		case <-w.wake:
		case <-q.ctx.Done():
		case <-idle.C:
			q.mu.Lock()
			if len(w.items) == 0 {
				delete(q.workers, w.scope)
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
		}
	}
}

// abandon fails every pending item after a forced shutdown.
func (q *Queue) abandon(w *worker) {
	q.mu.Lock()
	rest := w.items
	w.items = nil
	delete(q.workers, w.scope)
	q.mu.Unlock()

	for _, it := range rest {
		metrics.QueueDepth.Dec()
		if it.done != nil {
			it.done <- ErrQueueClosed
		}
	}
	if len(rest) > 0 {
		logging.Warn().Str("scope_id", w.scope).Int("dropped", len(rest)).Msg("Scope queue dropped pending items on shutdown")
	}
}

func (q *Queue) execute(scope string, work Work) (err error) {
	ctx := logging.ContextWithScope(q.ctx, scope)

	defer func() {
		if r := recover(); r != nil {
			metrics.QueueItemFailures.WithLabelValues("panic").Inc()
			logging.Error().
				Str("scope_id", scope).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Scope queue item panicked")
			err = fmt.Errorf("%w: %v", ErrItemPanicked, r)
		}
	}()

	if err = work(ctx); err != nil {
		metrics.QueueItemFailures.WithLabelValues("error").Inc()
		logging.Error().Err(err).Str("scope_id", scope).Msg("Scope queue item failed")
	}
	return err
}

// Depth returns the number of pending items for scope.
func (q *Queue) Depth(scope string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w := q.workers[scope]; w != nil {
		return len(w.items)
	}
	return 0
}

// Workers returns the number of live workers.
func (q *Queue) Workers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

// Shutdown stops accepting work and lets workers drain. If ctx ends before the
// drain completes, running items see a canceled context and pending items are
// dropped.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	for _, w := range q.workers {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
