package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, entity_type, entity_id, action, payload, created_at, priority,
	retry_count, last_attempt_at, last_error, next_attempt_at, base_version, frozen`

func (r *SQLiteRepository) Enqueue(ctx context.Context, op *models.PendingOperation) error {
	query := `INSERT INTO pending_operations (id, entity_type, entity_id, action, payload, created_at, priority, base_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			id = excluded.id,
			action = CASE
				WHEN excluded.action = 'DELETE' THEN 'DELETE'
				WHEN pending_operations.action = 'CREATE' THEN 'CREATE'
				WHEN pending_operations.base_version = 0 THEN 'CREATE'
				ELSE 'UPDATE'
			END,
			payload = excluded.payload,
			created_at = excluded.created_at,
			priority = excluded.priority,
			retry_count = 0,
			last_attempt_at = 0,
			last_error = '',
			next_attempt_at = 0,
			frozen = 0`

	_, err := r.db.ExecContext(ctx, query,
		op.ID, string(op.EntityType), op.EntityID, string(op.Action), nullableJSON(op.Payload),
		timex.ToMicros(op.CreatedAt), op.Priority, op.BaseVersion)
	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DequeueBatch(ctx context.Context, q BatchQuery) ([]*models.PendingOperation, error) {
	query := `SELECT ` + selectColumns + ` FROM pending_operations
		WHERE frozen = 0
			AND retry_count < ?
			AND next_attempt_at <= ?
			AND created_at <= ?
		ORDER BY priority DESC, created_at ASC
		LIMIT ?`

	return r.list(ctx, query, q.MaxRetries, timex.ToMicros(q.Now), timex.ToMicros(q.CreatedBefore), q.Limit)
}

func (r *SQLiteRepository) MarkSucceeded(ctx context.Context, opID string) (bool, error) {
	n, err := dbx.ExecAffected(ctx, r.db, `DELETE FROM pending_operations WHERE id = ?`, opID)
	if err != nil {
		return false, fmt.Errorf("failed to delete operation: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, opID string, reason string, now, nextAttemptAt time.Time) error {
	query := `UPDATE pending_operations
		SET retry_count = retry_count + 1, last_error = ?, last_attempt_at = ?, next_attempt_at = ?
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, reason, timex.ToMicros(now), timex.ToMicros(nextAttemptAt), opID)
	if err != nil {
		return fmt.Errorf("failed to mark operation failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Freeze(ctx context.Context, opID string, reason string, now time.Time) error {
	query := `UPDATE pending_operations
		SET frozen = 1, retry_count = retry_count + 1, last_error = ?, last_attempt_at = ?
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, reason, timex.ToMicros(now), opID)
	if err != nil {
		return fmt.Errorf("failed to freeze operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Rebase(ctx context.Context, t models.EntityType, entityID string, baseVersion int64) error {
	query := `UPDATE pending_operations
		SET base_version = ?,
			action = CASE WHEN action = 'CREATE' AND ? > 0 THEN 'UPDATE' ELSE action END
		WHERE entity_type = ? AND entity_id = ?`
	_, err := r.db.ExecContext(ctx, query, baseVersion, baseVersion, string(t), entityID)
	if err != nil {
		return fmt.Errorf("failed to rebase operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, opID string) (*models.PendingOperation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM pending_operations WHERE id = ?`, opID)
	return scanOne(row)
}

func (r *SQLiteRepository) GetByEntity(ctx context.Context, t models.EntityType, entityID string) (*models.PendingOperation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM pending_operations WHERE entity_type = ? AND entity_id = ?`,
		string(t), entityID)
	return scanOne(row)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Failed(ctx context.Context, maxRetries int) ([]*models.PendingOperation, error) {
	query := `SELECT ` + selectColumns + ` FROM pending_operations
		WHERE frozen = 1 OR retry_count >= ?
		ORDER BY created_at ASC`
	return r.list(ctx, query, maxRetries)
}

func (r *SQLiteRepository) Requeue(ctx context.Context, opID string) error {
	query := `UPDATE pending_operations
		SET retry_count = 0, frozen = 0, last_error = '', next_attempt_at = 0
		WHERE id = ?`
	n, err := dbx.ExecAffected(ctx, r.db, query, opID)
	if err != nil {
		return fmt.Errorf("failed to requeue operation: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Discard(ctx context.Context, opID string) error {
	n, err := dbx.ExecAffected(ctx, r.db, `DELETE FROM pending_operations WHERE id = ?`, opID)
	if err != nil {
		return fmt.Errorf("failed to discard operation: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.PendingOperation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select operations: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingOperation
	for rows.Next() {
		op, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (*models.PendingOperation, error) {
	op, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return op, err
}

func scan(row scanner) (*models.PendingOperation, error) {
	var (
		op                                      models.PendingOperation
		entityType, action                      string
		payload                                 sql.NullString
		createdAt, lastAttemptAt, nextAttemptAt int64
	)
	err := row.Scan(&op.ID, &entityType, &op.EntityID, &action, &payload, &createdAt, &op.Priority,
		&op.RetryCount, &lastAttemptAt, &op.LastError, &nextAttemptAt, &op.BaseVersion, &op.Frozen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan operation: %w", err)
	}

	op.EntityType = models.EntityType(entityType)
	op.Action = models.Action(action)
	if payload.Valid {
		op.Payload = []byte(payload.String)
	}
	op.CreatedAt = timex.FromMicros(createdAt)
	op.LastAttemptAt = timex.FromMicros(lastAttemptAt)
	op.NextAttemptAt = timex.FromMicros(nextAttemptAt)

	return &op, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
