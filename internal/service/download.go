package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lms_mirror/internal/domain"
	"lms_mirror/internal/state"
)

const defaultParallelDownloads = 4

type DownloadService struct {
	source    Source
	data      *state.Data
	settings  *state.Settings
	publisher Publisher
	notifier  Notifier
	parallel  int
	logger    *slog.Logger
	now       func() time.Time
}

// NewDownloadService wires a download service. publisher and notifier may
// be nil.
func NewDownloadService(
	source Source,
	data *state.Data,
	settings *state.Settings,
	publisher Publisher,
	notifier Notifier,
	parallel int,
	logger *slog.Logger,
) *DownloadService {
	if parallel <= 0 {
		parallel = defaultParallelDownloads
	}
	return &DownloadService{
		source:    source,
		data:      data,
		settings:  settings,
		publisher: publisher,
		notifier:  notifier,
		parallel:  parallel,
		logger:    logger.With("source", source.ID()),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Download materializes one resource under the download location and
// records where it went.
func (s *DownloadService) Download(ctx context.Context, category domain.Category, key domain.ResourceKey) (domain.DownloadResult, error) {
	resource, err := s.data.Resource(category, key)
	if err != nil {
		return domain.DownloadResult{}, err
	}
	if resource.Remote == nil {
		return domain.DownloadResult{}, fmt.Errorf("%w: %s/%s", domain.ErrNoRemoteHandle, key.ModuleID, key.Path)
	}

	location := s.settings.DownloadLocation()
	localPath := resource.LocalPath(s.data.ModuleLookup(), category)
	destination := filepath.Join(location, localPath)

	logger := s.logger.With("category", category, "module_id", key.ModuleID, "path", key.Path)

	if err := s.data.SetDownloadStatus(category, key, domain.DownloadFetching); err != nil {
		return domain.DownloadResult{}, err
	}

	result, err := s.source.Download(ctx, resource, destination)
	if err != nil {
		_ = s.data.SetDownloadStatus(category, key, domain.DownloadError)
		logger.Error("download failed", "error", err)
		return domain.DownloadResult{}, fmt.Errorf("download %s/%s: %w: %w", key.ModuleID, key.Path, domain.ErrRemote, err)
	}

	written := result.Path
	if written == "" {
		written = destination
	}
	recorded := written
	if rel, err := filepath.Rel(location, written); err == nil {
		recorded = rel
	}

	downloadedAt := s.now()
	if err := s.data.RecordDownload(category, key, recorded, downloadedAt); err != nil {
		return result, err
	}

	logger.Info("resource downloaded", "outcome", result.Outcome, "local_path", recorded)

	if s.notifier != nil {
		s.notifier.Notify()
	}

	if s.publisher != nil {
		record := &domain.DownloadRecord{
			Category:     category,
			ModuleID:     key.ModuleID,
			Path:         key.Path,
			LocalPath:    recorded,
			Outcome:      result.Outcome,
			DownloadedAt: downloadedAt,
		}
		if err := s.publisher.PublishDownload(ctx, record); err != nil {
			logger.Warn("failed to publish download", "error", err)
		}
	}

	return result, nil
}

// DownloadAll downloads every resource of category that has a remote handle
// and has not been downloaded yet. It returns how many succeeded.
func (s *DownloadService) DownloadAll(ctx context.Context, category domain.Category) (int, error) {
	resources, err := s.data.Resources(category)
	if err != nil {
		return 0, err
	}
	if err := s.data.SetDownloadAllStatus(category, domain.FetchFetching); err != nil {
		return 0, err
	}

	var pending []domain.ResourceKey
	for _, r := range resources.Items {
		if r.Remote != nil && !r.IsDownloaded() {
			pending = append(pending, r.Key())
		}
	}

	s.logger.Info("downloading category",
		"category", category,
		"pending", len(pending),
		"parallel", s.parallel,
	)

	var (
		mu         sync.Mutex
		errs       []error
		downloaded int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)

	for _, key := range pending {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_, err := s.Download(gctx, category, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			downloaded++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	status := domain.FetchIdle
	if len(errs) > 0 {
		status = domain.FetchError
	}
	_ = s.data.SetDownloadAllStatus(category, status)

	return downloaded, errors.Join(errs...)
}
