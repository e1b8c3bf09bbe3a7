package listing

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"lms_mirror/internal/domain"
)

// ConflictPolicy decides what happens when the destination already exists
// with different content.
type ConflictPolicy string

const (
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictSkip      ConflictPolicy = "skip"
	ConflictRename    ConflictPolicy = "rename"
)

func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(s)); p {
	case ConflictOverwrite, ConflictSkip, ConflictRename:
		return p, nil
	case "":
		return ConflictRename, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

const maxRenameAttempts = 1000

// Download copies the content behind resource's handle to destination.
func (s *Source) Download(ctx context.Context, resource domain.ResourceState, destination string) (domain.DownloadResult, error) {
	handle, ok := resource.Remote.(Handle)
	if !ok {
		return domain.DownloadResult{}, domain.ErrNoRemoteHandle
	}

	content, err := s.readFile(ctx, filepath.Join(s.dir, contentDir, handle.ID))
	if err != nil {
		return domain.DownloadResult{}, fmt.Errorf("read content %s: %w", handle.ID, err)
	}

	existing, err := afero.ReadFile(s.dst, destination)
	switch {
	case os.IsNotExist(err):
		if err := s.write(destination, content); err != nil {
			return domain.DownloadResult{}, err
		}
		return domain.DownloadResult{Outcome: domain.OutcomeNewFile, Path: destination}, nil
	case err != nil:
		return domain.DownloadResult{}, fmt.Errorf("read %s: %w", destination, err)
	case bytes.Equal(existing, content):
		return domain.DownloadResult{Outcome: domain.OutcomeAlreadySatisfied, Path: destination}, nil
	}

	switch s.conflict {
	case ConflictSkip:
		s.logger.Info("keeping existing file", "path", destination)
		return domain.DownloadResult{Outcome: domain.OutcomeSkipped, Path: destination}, nil
	case ConflictOverwrite:
		if err := s.write(destination, content); err != nil {
			return domain.DownloadResult{}, err
		}
		return domain.DownloadResult{Outcome: domain.OutcomeOverwritten, Path: destination}, nil
	}

	renamed, err := s.freePath(destination)
	if err != nil {
		return domain.DownloadResult{}, err
	}
	if err := s.write(renamed, content); err != nil {
		return domain.DownloadResult{}, err
	}
	return domain.DownloadResult{Outcome: domain.OutcomeRenamed, Path: renamed}, nil
}

// freePath returns the first "name (n).ext" next to path that does not
// exist yet.
func (s *Source) freePath(path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	for n := 1; n <= maxRenameAttempts; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		exists, err := afero.Exists(s.dst, candidate)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s", path)
}

func (s *Source) write(path string, content []byte) error {
	if err := s.dst.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	tmp := path + ".part"
	if err := afero.WriteFile(s.dst, tmp, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := s.dst.Rename(tmp, path); err != nil {
		_ = s.dst.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
