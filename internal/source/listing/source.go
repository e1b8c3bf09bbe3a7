package listing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"lms_mirror/internal/domain"
)

const SourceID = "listing"

const (
	modulesFile = "modules.json"
	contentDir  = "content"
)

// Config holds listing source configuration.
type Config struct {
	Dir            string
	Conflict       ConflictPolicy
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source reads an exported course listing:
//
//	<dir>/modules.json
//	<dir>/<category>/<module id>.json
//	<dir>/content/<resource id>
//
// and downloads content blobs onto a destination filesystem.
type Source struct {
	src            afero.Fs
	dst            afero.Fs
	dir            string
	conflict       ConflictPolicy
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	return NewWithFS(afero.NewOsFs(), afero.NewOsFs(), cfg, logger)
}

// NewWithFS creates a source reading the listing from src and writing
// downloads to dst.
func NewWithFS(src, dst afero.Fs, cfg Config, logger *slog.Logger) *Source {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Conflict == "" {
		cfg.Conflict = ConflictRename
	}
	return &Source{
		src:            src,
		dst:            dst,
		dir:            cfg.Dir,
		conflict:       cfg.Conflict,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

func (s *Source) ID() string {
	return SourceID
}

// FetchModules returns the modules of term, or of every term when term is
// empty.
func (s *Source) FetchModules(ctx context.Context, term string, fetchedAt time.Time) ([]domain.Module, error) {
	var entries []ModuleEntry
	if err := s.readJSON(ctx, filepath.Join(s.dir, modulesFile), &entries); err != nil {
		return nil, fmt.Errorf("read modules: %w", err)
	}

	modules := make([]domain.Module, 0, len(entries))
	for _, e := range entries {
		if term != "" && e.Term != term {
			continue
		}
		if e.ID == "" || e.Code == "" {
			s.logger.Warn("skipping module without id or code", "id", e.ID, "code", e.Code)
			continue
		}
		modules = append(modules, domain.Module{
			ID:          e.ID,
			Code:        e.Code,
			Name:        e.Name,
			Term:        e.Term,
			IsTaking:    e.IsTaking,
			IsTeaching:  e.IsTeaching,
			LastUpdated: fetchedAt,
			Remote:      e,
		})
	}

	s.logger.Debug("fetched modules", "term", term, "count", len(modules))
	return modules, nil
}

// FetchResources lists category for every module. A module whose listing
// cannot be read is logged and skipped; a category the export does not
// contain at all is an error.
func (s *Source) FetchResources(ctx context.Context, category domain.Category, modules []domain.Module, fetchedAt time.Time) ([]domain.ResourceState, error) {
	categoryDir := filepath.Join(s.dir, category.String())
	if ok, err := afero.DirExists(s.src, categoryDir); err != nil || !ok {
		return nil, fmt.Errorf("category %s not in listing", category)
	}

	perModule := make([][]domain.ResourceState, len(modules))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range modules {
		g.Go(func() error {
			resources, err := s.moduleResources(gctx, categoryDir, m.ID, fetchedAt)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("failed loading module resources",
					"category", category,
					"module", m.Code,
					"error", err,
				)
				return nil
			}
			perModule[i] = resources
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.ResourceState
	for _, resources := range perModule {
		all = append(all, resources...)
	}

	s.logger.Debug("fetched resources", "category", category, "modules", len(modules), "count", len(all))
	return all, nil
}

func (s *Source) moduleResources(ctx context.Context, categoryDir, moduleID string, fetchedAt time.Time) ([]domain.ResourceState, error) {
	var entries []ResourceEntry
	err := s.readJSON(ctx, filepath.Join(categoryDir, moduleID+".json"), &entries)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	makePathsUnique(entries)

	resources := make([]domain.ResourceState, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Path == "" {
			continue
		}
		resources = append(resources, domain.ResourceState{
			ModuleID:    moduleID,
			Path:        e.Path,
			LastUpdated: fetchedAt,
			Remote:      Handle{ID: e.ID, ModuleID: moduleID},
		})
	}
	return resources, nil
}

func (s *Source) readJSON(ctx context.Context, path string, v any) error {
	data, err := s.readFile(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// readFile retries transient read failures, such as a listing on a network
// mount. A missing file is returned immediately.
func (s *Source) readFile(ctx context.Context, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		data, err = afero.ReadFile(s.src, path)
		if err == nil || os.IsNotExist(err) {
			return data, err
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("read failed, retrying",
			"path", path,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if s.maxBackoff > 0 && backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}
