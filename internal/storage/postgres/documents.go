package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lms_mirror/internal/domain"
)

// DefaultKeepRevisions is how many past versions of a document are kept.
const DefaultKeepRevisions = 10

// Revision describes one stored version of a document.
type Revision struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Revision  int64     `db:"revision"`
	Size      int       `db:"size"`
	CreatedAt time.Time `db:"created_at"`
}

// DocumentStore keeps whole documents in Postgres, along with a bounded
// history of previous versions.
type DocumentStore struct {
	db            *sqlx.DB
	txManager     *TransactionManager
	keepRevisions int
}

func NewDocumentStore(db *sqlx.DB, keepRevisions int) *DocumentStore {
	if keepRevisions <= 0 {
		keepRevisions = DefaultKeepRevisions
	}
	return &DocumentStore{
		db:            db,
		txManager:     NewTransactionManager(db),
		keepRevisions: keepRevisions,
	}
}

func (s *DocumentStore) Read(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	query := `SELECT body FROM documents WHERE name = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &body, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read document %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w: %w", name, domain.ErrIO, err)
	}
	return body, nil
}

// Write replaces the current document, records it as a new revision and
// prunes revisions beyond the retention limit, all in one transaction.
func (s *DocumentStore) Write(ctx context.Context, name string, data []byte) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		now := time.Now().UTC()

		var revision int64
		err := exec.QueryRowxContext(txCtx, `
			INSERT INTO documents (name, body, revision, updated_at)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (name) DO UPDATE SET
				body = EXCLUDED.body,
				revision = documents.revision + 1,
				updated_at = EXCLUDED.updated_at
			RETURNING revision`,
			name, data, now,
		).Scan(&revision)
		if err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}

		_, err = exec.ExecContext(txCtx, `
			INSERT INTO document_revisions (id, name, revision, body, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), name, revision, data, now,
		)
		if err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}

		_, err = exec.ExecContext(txCtx, `
			DELETE FROM document_revisions
			WHERE name = $1 AND revision <= $2`,
			name, revision-int64(s.keepRevisions),
		)
		if err != nil {
			return fmt.Errorf("prune revisions: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write document %s: %w: %w", name, domain.ErrIO, err)
	}
	return nil
}

// Revisions lists the retained versions of a document, newest first.
func (s *DocumentStore) Revisions(ctx context.Context, name string) ([]Revision, error) {
	var revisions []Revision
	query := `
		SELECT id, name, revision, length(body) AS size, created_at
		FROM document_revisions
		WHERE name = $1
		ORDER BY revision DESC`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &revisions, query, name); err != nil {
		return nil, err
	}
	return revisions, nil
}

// RevisionNumbers lists the retained revision numbers of a document, newest
// first.
func (s *DocumentStore) RevisionNumbers(ctx context.Context, name string) ([]int64, error) {
	revisions, err := s.Revisions(ctx, name)
	if err != nil {
		return nil, err
	}

	numbers := make([]int64, 0, len(revisions))
	for _, r := range revisions {
		numbers = append(numbers, r.Revision)
	}
	return numbers, nil
}

// ReadRevision returns the body of a past version, for restoring a document
// whose current version cannot be decoded.
func (s *DocumentStore) ReadRevision(ctx context.Context, name string, revision int64) ([]byte, error) {
	var body []byte
	query := `SELECT body FROM document_revisions WHERE name = $1 AND revision = $2`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &body, query, name, revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read %s revision %d: %w", name, revision, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}
