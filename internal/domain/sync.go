package domain

import "time"

// MergeStats holds statistics about one merge of a fetched batch.
type MergeStats struct {
	Category  Category      `json:"category"`
	FetchedAt time.Time     `json:"fetched_at"`
	Existing  int           `json:"existing"`
	Incoming  int           `json:"incoming"`
	Result    int           `json:"result"`
	Duration  time.Duration `json:"duration"`
}

// Added is the number of keys not present before the merge.
func (s MergeStats) Added() int {
	return s.Result - s.Existing
}

// Superseded is the number of records dropped as duplicates.
func (s MergeStats) Superseded() int {
	return s.Existing + s.Incoming - s.Result
}

type SyncState struct {
	ID           int64     `db:"id"`
	Category     string    `db:"category"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	LastStatus   string    `db:"last_status"`
	ItemCount    int64     `db:"item_count"`
	TotalSynced  int64     `db:"total_synced"`
}
