package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, owner_id, display_name, content_type, storage_key, size_bytes, status, is_deleted, created_at, updated_at`

// Repository persists file records in PostgreSQL.
//
// State transitions are expressed as conditional updates so they stay
// correct under concurrent or duplicate webhook delivery without any
// in-process locking.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository bound to the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new pending record.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO files (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.OwnerID, rec.DisplayName, rec.ContentType, rec.StorageKey,
		rec.SizeBytes, rec.Status, rec.IsDeleted, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("file: insert: %w", err)
	}
	return nil
}

// GetOwned returns the non-deleted record with the given id belonging
// to ownerID. Existence and ownership are checked together: a foreign
// or deleted record is ErrNotFound, indistinguishable from absence.
func (r *Repository) GetOwned(ctx context.Context, id, ownerID string) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM files
		WHERE id = $1 AND owner_id = $2 AND NOT is_deleted
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id, ownerID))
}

// GetByStorageKey returns the record with the given storage key,
// deleted or not. Webhook processing must still see soft-deleted
// records to keep transitions idempotent.
func (r *Repository) GetByStorageKey(ctx context.Context, key string) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM files
		WHERE storage_key = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, key))
}

// ListOwned returns all non-deleted records of ownerID, newest first.
func (r *Repository) ListOwned(ctx context.Context, ownerID string) ([]*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM files
		WHERE owner_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("file: list: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("file: list: %w", err)
	}
	return records, nil
}

// MarkCompleted transitions the record with the given storage key from
// pending to completed and writes the authoritative size. Returns false
// when no pending record matched, which covers both unknown keys and
// duplicate deliveries.
func (r *Repository) MarkCompleted(ctx context.Context, key string, size int64) (bool, error) {
	query := `
		UPDATE files
		SET status = $2, size_bytes = $3, updated_at = now()
		WHERE storage_key = $1 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, key, StatusCompleted, size, StatusPending)
	if err != nil {
		return false, fmt.Errorf("file: mark completed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed transitions the record with the given storage key from
// pending to failed. Terminal states are never overwritten.
func (r *Repository) MarkFailed(ctx context.Context, key string) (bool, error) {
	query := `
		UPDATE files
		SET status = $2, updated_at = now()
		WHERE storage_key = $1 AND status = $3
	`
	tag, err := r.pool.Exec(ctx, query, key, StatusFailed, StatusPending)
	if err != nil {
		return false, fmt.Errorf("file: mark failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDelete marks the owned record as deleted. Returns false when the
// record does not exist, belongs to someone else, or is already
// deleted.
func (r *Repository) SoftDelete(ctx context.Context, id, ownerID string) (bool, error) {
	query := `
		UPDATE files
		SET is_deleted = TRUE, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND NOT is_deleted
	`
	tag, err := r.pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("file: soft delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailStale transitions every record still pending from before the
// cutoff to failed. Run by the reconciliation sweep for uploads whose
// completion notification never arrived.
func (r *Repository) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE files
		SET status = $1, updated_at = now()
		WHERE status = $2 AND created_at < $3
	`
	tag, err := r.pool.Exec(ctx, query, StatusFailed, StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("file: fail stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) scanOne(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.DisplayName, &rec.ContentType, &rec.StorageKey,
		&rec.SizeBytes, &rec.Status, &rec.IsDeleted, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("file: scan: %w", err)
	}
	return &rec, nil
}
