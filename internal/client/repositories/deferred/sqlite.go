package deferred

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/entities"
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

func (r *SQLiteRepository) Defer(ctx context.Context, t models.EntityType, entityID string, version int64, updatedAt time.Time) error {
	query := `INSERT INTO deferred_changes (entity_type, entity_id, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			version = MAX(deferred_changes.version, excluded.version),
			updated_at = MAX(deferred_changes.updated_at, excluded.updated_at)`

	_, err := r.db.ExecContext(ctx, query, string(t), entityID, version, timex.ToMicros(updatedAt))
	if err != nil {
		return fmt.Errorf("failed to defer %s %s: %w", t, entityID, err)
	}
	return nil
}

func (r *SQLiteRepository) ReplayFrom(ctx context.Context, t models.EntityType) (time.Time, bool, error) {
	table, err := entities.TableName(t)
	if err != nil {
		return time.Time{}, false, err
	}

	query := fmt.Sprintf(`SELECT MIN(d.updated_at) FROM deferred_changes d
		LEFT JOIN %s e ON e.id = d.entity_id
		WHERE d.entity_type = ?
			AND (e.id IS NULL OR (e.sync_status != ? AND e.version < d.version))`, table)

	var from sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, string(t), string(models.StatusPendingUpload)).Scan(&from); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read deferred %s: %w", t, err)
	}
	if !from.Valid {
		return time.Time{}, false, nil
	}
	return timex.FromMicros(from.Int64), true, nil
}

func (r *SQLiteRepository) Settle(ctx context.Context, t models.EntityType) (int64, error) {
	table, err := entities.TableName(t)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`DELETE FROM deferred_changes
		WHERE entity_type = ? AND EXISTS (
			SELECT 1 FROM %s e
			WHERE e.id = deferred_changes.entity_id
				AND e.sync_status != ?
				AND e.version >= deferred_changes.version)`, table)

	n, err := dbx.ExecAffected(ctx, r.db, query, string(t), string(models.StatusPendingUpload))
	if err != nil {
		return 0, fmt.Errorf("failed to settle deferred %s: %w", t, err)
	}
	return n, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, t models.EntityType) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deferred_changes WHERE entity_type = ?`, string(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count deferred %s: %w", t, err)
	}
	return n, nil
}
