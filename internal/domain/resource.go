package domain

import (
	"path/filepath"
	"time"
)

type ResourceState struct {
	ModuleID     string     `json:"module_id"`
	Path         string     `json:"path"`
	LastUpdated  time.Time  `json:"last_updated"`
	DownloadPath *string    `json:"download_path,omitempty"`
	DownloadTime *time.Time `json:"download_time,omitempty"`

	DownloadStatus DownloadStatus `json:"-"`
	// Remote is the remote resource descriptor, valid for this run only.
	Remote any `json:"-"`
}

// ResourceKey is the identity of a resource within a category.
type ResourceKey struct {
	ModuleID string
	Path     string
}

func EmptyResource() ResourceState {
	return ResourceState{LastUpdated: time.Unix(0, 0).UTC()}
}

func (r ResourceState) Key() ResourceKey {
	return ResourceKey{ModuleID: r.ModuleID, Path: r.Path}
}

// IsDownloaded reports whether the resource has been materialized locally.
func (r ResourceState) IsDownloaded() bool {
	return r.DownloadPath != nil && *r.DownloadPath != ""
}

func (r ResourceState) downloadedAt() time.Time {
	if r.DownloadTime == nil {
		return time.Time{}
	}
	return *r.DownloadTime
}

// DownloadedAfter reports whether r carries more recent download metadata
// than other.
func (r ResourceState) DownloadedAfter(other ResourceState) bool {
	if !r.IsDownloaded() {
		return false
	}
	if !other.IsDownloaded() {
		return true
	}
	return r.downloadedAt().After(other.downloadedAt())
}

// LocalPath returns <module code>/<category folder>/<path>, relative to the
// download location.
func (r ResourceState) LocalPath(lookup ModuleLookup, category Category) string {
	return filepath.Join(lookup.CodeOrUnknown(r.ModuleID), category.FolderName(), filepath.FromSlash(r.Path))
}
