package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"lms_mirror/internal/domain"
	"lms_mirror/internal/merge"
	"lms_mirror/internal/storage"
)

// DataFileName is the document name of the Data aggregate.
const DataFileName = "data.json"

type dataDocument struct {
	Modules     domain.DataItems[domain.Module]        `json:"modules"`
	Files       domain.DataItems[domain.ResourceState] `json:"files"`
	Multimedia  domain.DataItems[domain.ResourceState] `json:"multimedia"`
	WebLectures domain.DataItems[domain.ResourceState] `json:"weblectures"`
	Conferences domain.DataItems[domain.ResourceState] `json:"conferences"`
}

func newDataDocument() dataDocument {
	epoch := time.Unix(0, 0).UTC()
	return dataDocument{
		Modules:     domain.NewDataItems([]domain.Module{}, epoch),
		Files:       domain.NewDataItems([]domain.ResourceState{}, epoch),
		Multimedia:  domain.NewDataItems([]domain.ResourceState{}, epoch),
		WebLectures: domain.NewDataItems([]domain.ResourceState{}, epoch),
		Conferences: domain.NewDataItems([]domain.ResourceState{}, epoch),
	}
}

func (doc *dataDocument) resources(category domain.Category) (*domain.DataItems[domain.ResourceState], error) {
	switch category {
	case domain.CategoryFiles:
		return &doc.Files, nil
	case domain.CategoryMultimedia:
		return &doc.Multimedia, nil
	case domain.CategoryWebLectures:
		return &doc.WebLectures, nil
	case domain.CategoryConferences:
		return &doc.Conferences, nil
	}
	return nil, fmt.Errorf("%w: %q holds no resources", domain.ErrUnknownCategory, category)
}

func (doc dataDocument) clone() dataDocument {
	return dataDocument{
		Modules:     doc.Modules.Clone(),
		Files:       doc.Files.Clone(),
		Multimedia:  doc.Multimedia.Clone(),
		WebLectures: doc.WebLectures.Clone(),
		Conferences: doc.Conferences.Clone(),
	}
}

// Data is the aggregate of everything fetched from the remote source: the
// module list and the four resource categories. It is safe for concurrent
// use; every mutation of persisted fields marks it dirty.
type Data struct {
	mu      sync.RWMutex
	tracker storage.Tracker
	doc     dataDocument
}

func NewData() *Data {
	return &Data{doc: newDataDocument()}
}

func (d *Data) UnmarshalJSON(b []byte) error {
	doc := newDataDocument()
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}

	d.mu.Lock()
	d.doc = doc
	d.mu.Unlock()
	return nil
}

func (d *Data) Tracker() *storage.Tracker {
	return &d.tracker
}

func (d *Data) MarkDirty() {
	d.tracker.MarkDirty()
}

// Snapshot returns a detached copy of the persisted document.
func (d *Data) Snapshot() any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.clone()
}

// MergeModules folds a fetched module batch into the aggregate.
func (d *Data) MergeModules(incoming domain.DataItems[domain.Module]) domain.MergeStats {
	start := time.Now()

	d.mu.Lock()
	stats := domain.MergeStats{
		Category:  domain.CategoryModules,
		FetchedAt: incoming.LastUpdated,
		Existing:  d.doc.Modules.Len(),
		Incoming:  incoming.Len(),
	}
	merge.Modules(&d.doc.Modules, incoming)
	stats.Result = d.doc.Modules.Len()
	d.mu.Unlock()

	d.MarkDirty()
	stats.Duration = time.Since(start)
	return stats
}

// MergeResources folds a fetched resource batch into category.
func (d *Data) MergeResources(category domain.Category, incoming domain.DataItems[domain.ResourceState]) (domain.MergeStats, error) {
	start := time.Now()

	d.mu.Lock()
	existing, err := d.doc.resources(category)
	if err != nil {
		d.mu.Unlock()
		return domain.MergeStats{}, err
	}
	stats := domain.MergeStats{
		Category:  category,
		FetchedAt: incoming.LastUpdated,
		Existing:  existing.Len(),
		Incoming:  incoming.Len(),
	}
	merge.Resources(existing, incoming)
	stats.Result = existing.Len()
	d.mu.Unlock()

	d.MarkDirty()
	stats.Duration = time.Since(start)
	return stats, nil
}

func (d *Data) Modules() domain.DataItems[domain.Module] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Modules.Clone()
}

func (d *Data) Resources(category domain.Category) (domain.DataItems[domain.ResourceState], error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	items, err := d.doc.resources(category)
	if err != nil {
		return domain.DataItems[domain.ResourceState]{}, err
	}
	return items.Clone(), nil
}

// Resource returns one resource by key.
func (d *Data) Resource(category domain.Category, key domain.ResourceKey) (domain.ResourceState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	items, err := d.doc.resources(category)
	if err != nil {
		return domain.ResourceState{}, err
	}
	i := indexOf(items.Items, key)
	if i < 0 {
		return domain.ResourceState{}, fmt.Errorf("%w: %s %s/%s", domain.ErrResourceNotFound, category, key.ModuleID, key.Path)
	}
	return items.Items[i], nil
}

// ModuleLookup indexes the current modules by id.
func (d *Data) ModuleLookup() domain.ModuleLookup {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return domain.NewModuleLookup(d.doc.Modules.Items)
}

// SetFetchStatus updates the transient fetch status of a category. It does
// not dirty the aggregate.
func (d *Data) SetFetchStatus(category domain.Category, status domain.FetchStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if category == domain.CategoryModules {
		d.doc.Modules.FetchStatus = status
		return nil
	}
	items, err := d.doc.resources(category)
	if err != nil {
		return err
	}
	items.FetchStatus = status
	return nil
}

func (d *Data) FetchStatus(category domain.Category) (domain.FetchStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if category == domain.CategoryModules {
		return d.doc.Modules.FetchStatus, nil
	}
	items, err := d.doc.resources(category)
	if err != nil {
		return domain.FetchIdle, err
	}
	return items.FetchStatus, nil
}

// SetDownloadAllStatus updates the transient bulk download status of a
// resource category.
func (d *Data) SetDownloadAllStatus(category domain.Category, status domain.FetchStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	items, err := d.doc.resources(category)
	if err != nil {
		return err
	}
	items.DownloadAllStatus = status
	return nil
}

// SetDownloadStatus updates the transient download status of one resource.
func (d *Data) SetDownloadStatus(category domain.Category, key domain.ResourceKey, status domain.DownloadStatus) error {
	return d.update(category, key, false, func(r *domain.ResourceState) {
		r.DownloadStatus = status
	})
}

// RecordDownload stores where and when a resource was materialized locally.
func (d *Data) RecordDownload(category domain.Category, key domain.ResourceKey, localPath string, at time.Time) error {
	return d.update(category, key, true, func(r *domain.ResourceState) {
		r.DownloadPath = &localPath
		r.DownloadTime = &at
		r.DownloadStatus = domain.DownloadIdle
	})
}

func (d *Data) update(category domain.Category, key domain.ResourceKey, persisted bool, fn func(r *domain.ResourceState)) error {
	d.mu.Lock()
	items, err := d.doc.resources(category)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	i := indexOf(items.Items, key)
	if i < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s %s/%s", domain.ErrResourceNotFound, category, key.ModuleID, key.Path)
	}
	fn(&items.Items[i])
	d.mu.Unlock()

	if persisted {
		d.MarkDirty()
	}
	return nil
}

func indexOf(items []domain.ResourceState, key domain.ResourceKey) int {
	for i := range items {
		if items[i].Key() == key {
			return i
		}
	}
	return -1
}
