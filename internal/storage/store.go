package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"lms_mirror/internal/domain"
)

const DefaultCooldown = 5 * time.Second

// WriteResult is the outcome of a Save call.
type WriteResult int

const (
	// WriteUnnecessary: nothing to write, no I/O was performed.
	WriteUnnecessary WriteResult = iota
	// WriteSuccessful: a snapshot was written and the cooldown elapsed. The
	// caller must call Tracker.SaveCompleted.
	WriteSuccessful
	// WriteRetry: another save was in flight. The cooldown has already been
	// waited out; call Save again.
	WriteRetry
)

func (r WriteResult) String() string {
	switch r {
	case WriteUnnecessary:
		return "unnecessary"
	case WriteSuccessful:
		return "successful"
	case WriteRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Aggregate is a root object persisted as a single document. Load decodes
// into the aggregate directly, so T is expected to be a pointer type.
type Aggregate interface {
	Tracker() *Tracker
	// Snapshot returns a detached copy of the persisted fields.
	Snapshot() any
}

type Option func(*options)

type options struct {
	cooldown time.Duration
	logger   *slog.Logger
}

func WithCooldown(d time.Duration) Option {
	return func(o *options) {
		o.cooldown = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Store persists one aggregate under a fixed document name with at most one
// write in flight.
type Store[T Aggregate] struct {
	backend  Backend
	name     string
	newFn    func() T
	cooldown time.Duration
	logger   *slog.Logger
}

func New[T Aggregate](backend Backend, name string, newFn func() T, opts ...Option) *Store[T] {
	o := options{
		cooldown: DefaultCooldown,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store[T]{
		backend:  backend,
		name:     name,
		newFn:    newFn,
		cooldown: o.cooldown,
		logger:   o.logger.With("document", name),
	}
}

func (s *Store[T]) Name() string {
	return s.name
}

// Load reads and decodes the document. A missing document yields an error
// wrapping domain.ErrNotFound; an undecodable one wraps domain.ErrCorrupt and
// is left untouched.
func (s *Store[T]) Load(ctx context.Context) (T, error) {
	var zero T

	data, err := s.backend.Read(ctx, s.name)
	if err != nil {
		return zero, err
	}

	agg := s.newFn()
	if err := json.Unmarshal(data, agg); err != nil {
		return zero, fmt.Errorf("decode %s: %w: %w", s.name, domain.ErrCorrupt, err)
	}
	return agg, nil
}

// LoadOrDefault always returns a usable aggregate. The error is nil on
// success, on first run and when a corrupt document was restored from a
// retained revision; otherwise it reports why a fresh aggregate was
// substituted.
func (s *Store[T]) LoadOrDefault(ctx context.Context) (T, error) {
	agg, err := s.Load(ctx)
	switch {
	case err == nil:
		s.logger.Debug("document loaded")
		return agg, nil
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Debug("no document yet, starting empty")
		return s.newFn(), nil
	case errors.Is(err, domain.ErrCorrupt):
		if restored, ok := s.restore(ctx); ok {
			s.logger.Warn("document is corrupt, restored previous revision", "error", err)
			return restored, nil
		}
		s.logger.Warn("document is corrupt, starting empty", "error", err)
		return s.newFn(), err
	default:
		s.logger.Error("failed to load document, starting empty", "error", err)
		return s.newFn(), err
	}
}

// restore decodes the newest retained revision that is still readable. The
// restored aggregate is dirty so the next save replaces the corrupt document.
func (s *Store[T]) restore(ctx context.Context) (T, bool) {
	var zero T

	versioned, ok := s.backend.(Versioned)
	if !ok {
		return zero, false
	}

	revisions, err := versioned.RevisionNumbers(ctx, s.name)
	if err != nil {
		s.logger.Error("failed to list revisions", "error", err)
		return zero, false
	}

	for _, revision := range revisions {
		data, err := versioned.ReadRevision(ctx, s.name, revision)
		if err != nil {
			s.logger.Debug("revision unreadable", "revision", revision, "error", err)
			continue
		}
		agg := s.newFn()
		if err := json.Unmarshal(data, agg); err != nil {
			s.logger.Debug("revision corrupt", "revision", revision, "error", err)
			continue
		}
		agg.Tracker().MarkDirty()
		s.logger.Info("restored document", "revision", revision)
		return agg, true
	}
	return zero, false
}

// Save writes agg if it has unsaved mutations.
func (s *Store[T]) Save(ctx context.Context, agg T) (WriteResult, error) {
	tracker := agg.Tracker()

	switch tracker.begin() {
	case Clean, Saving:
		return WriteUnnecessary, nil
	case DirtySaving:
		if err := s.wait(ctx); err != nil {
			return WriteRetry, err
		}
		return WriteRetry, nil
	}

	start := time.Now()
	data, err := json.MarshalIndent(agg.Snapshot(), "", "  ")
	if err != nil {
		tracker.fail()
		return WriteUnnecessary, fmt.Errorf("encode %s: %w", s.name, err)
	}

	if err := s.backend.Write(ctx, s.name, data); err != nil {
		tracker.fail()
		s.logger.Error("failed to write document", "error", err)
		return WriteUnnecessary, err
	}

	s.logger.Debug("document written",
		"bytes", len(data),
		"duration", time.Since(start),
	)

	if err := s.wait(ctx); err != nil {
		return WriteSuccessful, err
	}
	return WriteSuccessful, nil
}

// Flush saves until nothing is left to write, completing each successful
// save itself.
func (s *Store[T]) Flush(ctx context.Context, agg T) error {
	for {
		result, err := s.Save(ctx, agg)
		if result == WriteSuccessful {
			agg.Tracker().SaveCompleted()
		}
		if err != nil {
			return err
		}
		if result == WriteUnnecessary {
			return nil
		}
	}
}

func (s *Store[T]) wait(ctx context.Context) error {
	if s.cooldown <= 0 {
		return nil
	}

	timer := time.NewTimer(s.cooldown)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
