package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata`)
	if err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metadata rows: %w", err)
	}

	return result, nil
}

func (r *SQLiteRepository) DeviceID(ctx context.Context) (string, error) {
	// INSERT OR IGNORE keeps the first id even if two callers race.
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO metadata (key, value) VALUES (?, ?)`, KeyDeviceID, []byte(uuid.NewString()))
	if err != nil {
		return "", fmt.Errorf("failed to init metadata[%s]: %w", KeyDeviceID, err)
	}
	v, err := r.Get(ctx, KeyDeviceID)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (r *SQLiteRepository) Tokens(ctx context.Context) (string, string, error) {
	access, err := r.Get(ctx, KeyAccessToken)
	if err != nil {
		return "", "", err
	}
	refresh, err := r.Get(ctx, KeyRefreshToken)
	if err != nil {
		return "", "", err
	}
	return string(access), string(refresh), nil
}

func (r *SQLiteRepository) SetTokens(ctx context.Context, access, refresh string) error {
	if err := r.Set(ctx, KeyAccessToken, []byte(access)); err != nil {
		return err
	}
	return r.Set(ctx, KeyRefreshToken, []byte(refresh))
}

func (r *SQLiteRepository) LastSyncAt(ctx context.Context) (time.Time, error) {
	v, err := r.Get(ctx, KeyLastSyncAt)
	if err != nil || v == nil {
		return time.Time{}, err
	}
	us, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad metadata[%s]: %w", KeyLastSyncAt, err)
	}
	return timex.FromMicros(us), nil
}

func (r *SQLiteRepository) SetLastSyncAt(ctx context.Context, ts time.Time) error {
	return r.Set(ctx, KeyLastSyncAt, []byte(strconv.FormatInt(timex.ToMicros(ts), 10)))
}
