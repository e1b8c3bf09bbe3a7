package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"lms_mirror/internal/domain"
)

// Source is the remote learning-management system. Every returned record
// carries the fetchedAt timestamp supplied by the caller.
type Source interface {
	ID() string
	FetchModules(ctx context.Context, term string, fetchedAt time.Time) ([]domain.Module, error)
	FetchResources(ctx context.Context, category domain.Category, modules []domain.Module, fetchedAt time.Time) ([]domain.ResourceState, error)
	Download(ctx context.Context, resource domain.ResourceState, destination string) (domain.DownloadResult, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, category string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type Publisher interface {
	PublishMerge(ctx context.Context, stats *domain.MergeStats) error
	PublishDownload(ctx context.Context, record *domain.DownloadRecord) error
	Close() error
}

// Notifier is told whenever an aggregate was mutated and should be flushed.
type Notifier interface {
	Notify()
}
