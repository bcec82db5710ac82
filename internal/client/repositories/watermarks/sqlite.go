package watermarks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, t models.EntityType) (time.Time, error) {
	var us int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_sync_timestamp FROM sync_watermarks WHERE entity_type = ?`, string(t)).Scan(&us)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get watermark[%s]: %w", t, err)
	}
	return timex.FromMicros(us), nil
}

func (r *SQLiteRepository) All(ctx context.Context, types []models.EntityType) (map[models.EntityType]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT entity_type, last_sync_timestamp FROM sync_watermarks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watermarks: %w", err)
	}
	defer rows.Close()

	stored := make(map[models.EntityType]int64)
	for rows.Next() {
		var (
			t  string
			us int64
		)
		if err := rows.Scan(&t, &us); err != nil {
			return nil, fmt.Errorf("failed to scan watermark row: %w", err)
		}
		stored[models.EntityType(t)] = us
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate watermark rows: %w", err)
	}

	result := make(map[models.EntityType]time.Time, len(types))
	for _, t := range types {
		result[t] = timex.FromMicros(stored[t])
	}
	return result, nil
}

func (r *SQLiteRepository) Advance(ctx context.Context, t models.EntityType, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_watermarks (entity_type, last_sync_timestamp) VALUES (?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET
			last_sync_timestamp = MAX(sync_watermarks.last_sync_timestamp, excluded.last_sync_timestamp)
	`, string(t), timex.ToMicros(ts))
	if err != nil {
		return fmt.Errorf("failed to advance watermark[%s]: %w", t, err)
	}
	return nil
}

func (r *SQLiteRepository) Reset(ctx context.Context, t models.EntityType) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_watermarks (entity_type, last_sync_timestamp) VALUES (?, 0)
		ON CONFLICT(entity_type) DO UPDATE SET last_sync_timestamp = 0
	`, string(t))
	if err != nil {
		return fmt.Errorf("failed to reset watermark[%s]: %w", t, err)
	}
	return nil
}
