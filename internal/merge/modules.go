package merge

import (
	"sort"
	"time"

	"lms_mirror/internal/domain"
)

// Modules merges incoming into existing in place.
//
// The envelope adopts incoming's LastUpdated and FetchStatus. Exactly one
// module survives per (term, code): the one with the latest LastUpdated,
// with incoming winning ties. Modules carrying the zero or epoch timestamp
// are placeholders and are dropped.
func Modules(existing *domain.DataItems[domain.Module], incoming domain.DataItems[domain.Module]) {
	existing.LastUpdated = incoming.LastUpdated
	existing.FetchStatus = incoming.FetchStatus

	index := make(map[domain.ModuleKey]int, len(existing.Items)+len(incoming.Items))
	merged := make([]domain.Module, 0, len(existing.Items)+len(incoming.Items))

	add := func(m domain.Module) {
		if isEpoch(m.LastUpdated) {
			return
		}
		i, ok := index[m.Key()]
		if !ok {
			index[m.Key()] = len(merged)
			merged = append(merged, m)
			return
		}
		if !m.LastUpdated.Before(merged[i].LastUpdated) {
			merged[i] = m
		}
	}

	for _, m := range existing.Items {
		add(m)
	}
	for _, m := range incoming.Items {
		add(m)
	}

	sortModules(merged)
	existing.Items = merged
}

func isEpoch(t time.Time) bool {
	return t.IsZero() || t.Equal(time.Unix(0, 0))
}

// sortModules orders by term descending, then code ascending.
func sortModules(modules []domain.Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		a, b := modules[i], modules[j]
		if a.Term != b.Term {
			return a.Term > b.Term
		}
		return a.Code < b.Code
	})
}
