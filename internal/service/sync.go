package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lms_mirror/internal/domain"
	"lms_mirror/internal/state"
)

const (
	syncStatusOK    = "ok"
	syncStatusError = "error"
)

type SyncService struct {
	source    Source
	data      *state.Data
	syncState SyncStateStore
	publisher Publisher
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewSyncService wires a sync service. syncState, publisher and notifier
// are optional and may be nil.
func NewSyncService(
	source Source,
	data *state.Data,
	syncState SyncStateStore,
	publisher Publisher,
	notifier Notifier,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		source:    source,
		data:      data,
		syncState: syncState,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With("source", source.ID()),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LoadModules fetches the module list of term as a batch stamped with the
// current time. It does not touch the aggregate.
func (s *SyncService) LoadModules(ctx context.Context, term string) (domain.DataItems[domain.Module], error) {
	fetchedAt := s.now()

	modules, err := s.source.FetchModules(ctx, term, fetchedAt)
	if err != nil {
		batch := domain.NewDataItems[domain.Module](nil, fetchedAt)
		batch.FetchStatus = domain.FetchError
		return batch, fmt.Errorf("fetch modules: %w: %w", domain.ErrRemote, err)
	}
	return domain.NewDataItems(modules, fetchedAt), nil
}

// LoadResources fetches one resource category for modules as a batch
// stamped with lastUpdated. It does not touch the aggregate.
func (s *SyncService) LoadResources(
	ctx context.Context,
	category domain.Category,
	modules []domain.Module,
	lastUpdated time.Time,
) (domain.DataItems[domain.ResourceState], error) {
	if !category.IsResource() {
		return domain.DataItems[domain.ResourceState]{}, fmt.Errorf("%w: %q holds no resources", domain.ErrUnknownCategory, category)
	}

	resources, err := s.source.FetchResources(ctx, category, modules, lastUpdated)
	if err != nil {
		batch := domain.NewDataItems[domain.ResourceState](nil, lastUpdated)
		batch.FetchStatus = domain.FetchError
		return batch, fmt.Errorf("fetch %s: %w: %w", category, domain.ErrRemote, err)
	}
	return domain.NewDataItems(resources, lastUpdated), nil
}

// RefreshModules fetches the module list of term and merges it.
func (s *SyncService) RefreshModules(ctx context.Context, term string) (*domain.MergeStats, error) {
	logger := s.logger.With("category", domain.CategoryModules, "term", term)
	logger.Info("refreshing modules")

	_ = s.data.SetFetchStatus(domain.CategoryModules, domain.FetchFetching)

	batch, err := s.LoadModules(ctx, term)
	if err != nil {
		_ = s.data.SetFetchStatus(domain.CategoryModules, domain.FetchError)
		s.recordFailure(ctx, domain.CategoryModules)
		return nil, err
	}

	stats := s.data.MergeModules(batch)
	return s.afterMerge(ctx, logger, &stats)
}

// RefreshResources fetches one resource category for every accessible
// module and merges it.
func (s *SyncService) RefreshResources(ctx context.Context, category domain.Category) (*domain.MergeStats, error) {
	logger := s.logger.With("category", category)

	if !category.IsResource() {
		return nil, fmt.Errorf("%w: %q holds no resources", domain.ErrUnknownCategory, category)
	}
	_ = s.data.SetFetchStatus(category, domain.FetchFetching)

	var modules []domain.Module
	for _, m := range s.data.Modules().Items {
		if m.HasAccess() {
			modules = append(modules, m)
		}
	}
	logger.Info("refreshing resources", "modules", len(modules))

	batch, err := s.LoadResources(ctx, category, modules, s.now())
	if err != nil {
		_ = s.data.SetFetchStatus(category, domain.FetchError)
		s.recordFailure(ctx, category)
		return nil, err
	}

	stats, err := s.data.MergeResources(category, batch)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", category, err)
	}
	return s.afterMerge(ctx, logger, &stats)
}

// RefreshAll refreshes the module list, then every resource category
// concurrently. A failed module fetch falls back to the stored modules.
// Every category is attempted; the first error is returned.
func (s *SyncService) RefreshAll(ctx context.Context, term string) ([]domain.MergeStats, error) {
	var (
		mu       sync.Mutex
		results  []domain.MergeStats
		firstErr error
	)

	stats, err := s.RefreshModules(ctx, term)
	if err != nil {
		s.logger.Warn("module refresh failed, using stored modules", "error", err)
		firstErr = err
	}
	if stats != nil {
		results = append(results, *stats)
	}

	var g errgroup.Group
	for _, category := range domain.ResourceCategories {
		g.Go(func() error {
			stats, err := s.RefreshResources(ctx, category)
			if stats != nil {
				mu.Lock()
				results = append(results, *stats)
				mu.Unlock()
			}
			if err != nil {
				return fmt.Errorf("refresh %s: %w", category, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}
	return results, firstErr
}

func (s *SyncService) afterMerge(ctx context.Context, logger *slog.Logger, stats *domain.MergeStats) (*domain.MergeStats, error) {
	logger.Info("merge completed",
		"existing", stats.Existing,
		"incoming", stats.Incoming,
		"result", stats.Result,
		"added", stats.Added(),
		"duration", stats.Duration,
	)

	if s.notifier != nil {
		s.notifier.Notify()
	}

	if s.publisher != nil {
		if err := s.publisher.PublishMerge(ctx, stats); err != nil {
			logger.Warn("failed to publish merge", "error", err)
		}
	}

	if err := s.updateSyncState(ctx, stats.Category, syncStatusOK, stats); err != nil {
		return stats, fmt.Errorf("update sync state: %w", err)
	}
	return stats, nil
}

func (s *SyncService) recordFailure(ctx context.Context, category domain.Category) {
	if err := s.updateSyncState(ctx, category, syncStatusError, nil); err != nil {
		s.logger.Warn("failed to record sync failure", "category", category, "error", err)
	}
}

func (s *SyncService) updateSyncState(ctx context.Context, category domain.Category, status string, stats *domain.MergeStats) error {
	if s.syncState == nil {
		return nil
	}

	st, err := s.syncState.Get(ctx, category.String())
	if err != nil {
		return err
	}

	st.Category = category.String()
	st.LastStatus = status
	if stats != nil {
		st.LastSyncedAt = stats.FetchedAt
		st.ItemCount = int64(stats.Result)
		st.TotalSynced += int64(stats.Incoming)
	}

	return s.syncState.Update(ctx, st)
}
