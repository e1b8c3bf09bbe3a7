package merge

import (
	"sort"

	"lms_mirror/internal/domain"
)

// Resources merges incoming into existing in place.
//
// One record survives per (module id, path). It carries the newest
// LastUpdated and the most recently observed remote handle, while download
// metadata recorded on any of the duplicates is kept. Keys present only in
// existing are retained unchanged. Records without a path are placeholders
// and are dropped.
func Resources(existing *domain.DataItems[domain.ResourceState], incoming domain.DataItems[domain.ResourceState]) {
	existing.LastUpdated = incoming.LastUpdated
	existing.FetchStatus = incoming.FetchStatus

	index := make(map[domain.ResourceKey]int, len(existing.Items)+len(incoming.Items))
	merged := make([]domain.ResourceState, 0, len(existing.Items)+len(incoming.Items))

	add := func(r domain.ResourceState) {
		if r.Path == "" {
			return
		}
		i, ok := index[r.Key()]
		if !ok {
			index[r.Key()] = len(merged)
			merged = append(merged, r)
			return
		}
		merged[i] = reduceResource(merged[i], r)
	}

	for _, r := range existing.Items {
		add(r)
	}
	for _, r := range incoming.Items {
		add(r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.ModuleID != b.ModuleID {
			return a.ModuleID < b.ModuleID
		}
		return a.Path < b.Path
	})
	existing.Items = merged
}

// reduceResource combines two observations of the same resource. kept was
// seen first; next wins LastUpdated ties.
func reduceResource(kept, next domain.ResourceState) domain.ResourceState {
	newer, older := next, kept
	if next.LastUpdated.Before(kept.LastUpdated) {
		newer, older = kept, next
	}

	out := newer
	if out.Remote == nil {
		out.Remote = older.Remote
	}
	if older.DownloadedAfter(out) {
		out.DownloadPath = older.DownloadPath
		out.DownloadTime = older.DownloadTime
	}
	if out.DownloadStatus == domain.DownloadIdle {
		out.DownloadStatus = older.DownloadStatus
	}
	return out
}
