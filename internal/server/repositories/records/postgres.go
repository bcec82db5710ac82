package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/server/models"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, t syncapi.EntityType, id string) (*models.Record, error) {
	query := `
		SELECT user_id, payload, version, updated_at, deleted
		FROM sync_records
		WHERE entity_type = $1 AND entity_id = $2
		FOR UPDATE
	`
	rec := &models.Record{EntityType: t, EntityID: id}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, string(t), id).
		Scan(&rec.UserID, &payload, &rec.Version, &rec.UpdatedAt, &rec.Deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	rec.Payload = payload
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *models.Record) (bool, error) {
	query := `
		INSERT INTO sync_records (entity_type, entity_id, user_id, payload, version, updated_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type, entity_id) DO NOTHING
	`
	n, err := dbx.ExecAffected(ctx, r.db, query,
		string(rec.EntityType), rec.EntityID, rec.UserID, jsonArg(rec.Payload), rec.Version, rec.UpdatedAt, rec.Deleted)
	if err != nil {
		return false, fmt.Errorf("error performing sql request: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rec *models.Record) error {
	query := `
		UPDATE sync_records
		SET payload = COALESCE($3, payload), version = $4, updated_at = $5, deleted = $6
		WHERE entity_type = $1 AND entity_id = $2
	`
	n, err := dbx.ExecAffected(ctx, r.db, query,
		string(rec.EntityType), rec.EntityID, jsonArg(rec.Payload), rec.Version, rec.UpdatedAt, rec.Deleted)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ChangedSince(ctx context.Context, userID string, t syncapi.EntityType, since time.Time, limit int) ([]*models.Record, error) {
	query := `
		SELECT entity_id, payload, version, updated_at, deleted
		FROM sync_records
		WHERE user_id = $1 AND entity_type = $2 AND updated_at > $3
		ORDER BY updated_at, entity_id
	`
	args := []any{userID, string(t), since}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec := &models.Record{EntityType: t, UserID: userID}
		var payload []byte
		if err := rows.Scan(&rec.EntityID, &payload, &rec.Version, &rec.UpdatedAt, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		rec.Payload = payload
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// jsonArg passes a JSON document as text so the driver casts it to jsonb;
// an empty document becomes NULL.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
