package listing

import (
	"path"
	"sort"
	"strconv"
	"strings"
)

// makePathsUnique sorts entries by path and rewrites every path shared by
// more than one entry to carry the entry id, so that no two resources of a
// module download onto the same file. A rewritten path that collides with
// one already taken gets a counter as well.
func makePathsUnique(entries []ResourceEntry) {
	for i := range entries {
		entries[i].Path = cleanPath(entries[i].Path)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Path != entries[j].Path {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].ID < entries[j].ID
	})

	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		counts[e.Path]++
	}

	taken := make(map[string]struct{}, len(entries))
	for p, n := range counts {
		if n == 1 {
			taken[p] = struct{}{}
		}
	}

	for i := range entries {
		p := entries[i].Path
		if counts[p] == 1 {
			continue
		}
		suffix := "-" + entries[i].ID
		candidate := withSuffix(p, suffix)
		for n := 2; ; n++ {
			if _, ok := taken[candidate]; !ok {
				break
			}
			candidate = withSuffix(p, suffix+"-"+strconv.Itoa(n))
		}
		taken[candidate] = struct{}{}
		entries[i].Path = candidate
	}
}

// cleanPath normalizes a listing path to a relative slash path.
func cleanPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// withSuffix inserts suffix before the extension of p.
func withSuffix(p, suffix string) string {
	ext := path.Ext(p)
	if ext == p || strings.HasSuffix(p, "/"+ext) {
		ext = ""
	}
	return strings.TrimSuffix(p, ext) + suffix + ext
}
