package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Find(ctx context.Context, userID, key string) (*syncapi.PushResult, error) {
	query := `
		SELECT result
		FROM idempotency_keys
		WHERE user_id = $1 AND key = $2
	`
	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, userID, key).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	res := &syncapi.PushResult{}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("decode stored result for %s: %w", key, err)
	}
	return res, nil
}

func (r *PostgresRepository) Save(ctx context.Context, userID, key string, res syncapi.PushResult, now time.Time) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result for %s: %w", key, err)
	}

	query := `
		INSERT INTO idempotency_keys (user_id, key, result, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, key) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, key, string(raw), now); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := dbx.ExecAffected(ctx, r.db, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
