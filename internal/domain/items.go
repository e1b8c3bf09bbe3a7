package domain

import "time"

// DataItems is the fetch envelope around one category's items.
type DataItems[T any] struct {
	LastUpdated time.Time `json:"last_updated"`
	Items       []T       `json:"items"`

	FetchStatus       FetchStatus `json:"-"`
	DownloadAllStatus FetchStatus `json:"-"`
}

// NewDataItems wraps a fetched batch observed at lastUpdated.
func NewDataItems[T any](items []T, lastUpdated time.Time) DataItems[T] {
	return DataItems[T]{
		LastUpdated: lastUpdated,
		Items:       items,
	}
}

func (d DataItems[T]) Len() int {
	return len(d.Items)
}

// Clone copies the envelope and its item slice.
func (d DataItems[T]) Clone() DataItems[T] {
	c := d
	if d.Items != nil {
		c.Items = make([]T, len(d.Items))
		copy(c.Items, d.Items)
	}
	return c
}
