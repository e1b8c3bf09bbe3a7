// Package merge reconciles a freshly fetched batch with the persisted
// collection of the same category. Merges are pure in-memory transforms:
// they never fail and never drop a key that was present before.
package merge
