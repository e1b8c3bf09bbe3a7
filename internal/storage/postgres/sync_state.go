package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"lms_mirror/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

func (s *SyncStateStore) Get(ctx context.Context, category string) (*domain.SyncState, error) {
	var state domain.SyncState
	query := `
		SELECT id, category, last_synced_at, last_status, item_count, total_synced
		FROM sync_state
		WHERE category = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, category)
	if errors.Is(err, sql.ErrNoRows) {
		// Nothing recorded yet for this category
		return &domain.SyncState{
			Category:     category,
			LastSyncedAt: time.Time{},
			TotalSynced:  0,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SyncStateStore) Update(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_state (category, last_synced_at, last_status, item_count, total_synced)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (category) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			last_status = EXCLUDED.last_status,
			item_count = EXCLUDED.item_count,
			total_synced = EXCLUDED.total_synced`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.Category,
		state.LastSyncedAt,
		state.LastStatus,
		state.ItemCount,
		state.TotalSynced,
	)
	return err
}
