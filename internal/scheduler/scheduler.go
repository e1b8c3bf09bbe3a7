package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const shutdownFlushTimeout = 30 * time.Second

// Flusher persists pending changes of one aggregate.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushFunc adapts a function to Flusher.
type FlushFunc func(ctx context.Context) error

func (f FlushFunc) Flush(ctx context.Context) error {
	return f(ctx)
}

type target struct {
	name    string
	flusher Flusher
}

// Scheduler flushes every registered aggregate on a fixed interval and
// whenever Notify is called. On shutdown it runs one last flush.
type Scheduler struct {
	mu       sync.Mutex
	targets  []target
	interval time.Duration
	notify   chan struct{}
	logger   *slog.Logger
}

func NewScheduler(interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		notify:   make(chan struct{}, 1),
		logger:   logger,
	}
}

func (s *Scheduler) AddTarget(name string, f Flusher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, target{name: name, flusher: f})
}

// Notify requests a flush without blocking. Calls made while a request is
// pending are coalesced.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("flush scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			s.logger.Info("flush scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runFlush(ctx)
		case <-s.notify:
			s.runFlush(ctx)
		}
	}
}

// FlushAll flushes every target and joins their errors.
func (s *Scheduler) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	targets := make([]target, len(s.targets))
	copy(targets, s.targets)
	s.mu.Unlock()

	var errs []error
	for _, t := range targets {
		start := time.Now()
		if err := t.flusher.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", t.name, err))
			continue
		}
		s.logger.Debug("flushed", "target", t.name, "duration", time.Since(start))
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runFlush(ctx context.Context) {
	if err := s.FlushAll(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("flush failed", "error", err)
	}
}

// shutdown runs the final flush on a fresh context, since the caller's has
// already been cancelled.
func (s *Scheduler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	if err := s.FlushAll(ctx); err != nil {
		s.logger.Error("final flush failed", "error", err)
	}
}
