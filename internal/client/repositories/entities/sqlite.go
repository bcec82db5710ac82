package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

var tables = map[models.EntityType]string{
	syncapi.EntityTrip:    "trips",
	syncapi.EntityVehicle: "vehicles",
	syncapi.EntityUser:    "users",
	syncapi.EntityLicense: "licenses",
}

// TableName returns the SQLite table backing t.
func TableName(t models.EntityType) (string, error) {
	table, ok := tables[t]
	if !ok {
		return "", fmt.Errorf("no table for entity type %q", t)
	}
	return table, nil
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db    dbx.DBTX
	typ   models.EntityType
	table string
}

func NewSQLiteRepository(db dbx.DBTX, t models.EntityType) (*SQLiteRepository, error) {
	table, err := TableName(t)
	if err != nil {
		return nil, err
	}
	return &SQLiteRepository{db: db, typ: t, table: table}, nil
}

func (r *SQLiteRepository) Type() models.EntityType {
	return r.typ
}

func (r *SQLiteRepository) ApplyLocalMutation(ctx context.Context, e *models.Entity, now time.Time) (int64, int64, error) {
	data, err := encode(e.Payload)
	if err != nil {
		return 0, 0, err
	}

	query := fmt.Sprintf(`INSERT INTO %[1]s (id, data, version, sync_status, local_updated_at, deleted)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = COALESCE(excluded.data, %[1]s.data),
			version = %[1]s.version + 1,
			sync_status = excluded.sync_status,
			local_updated_at = excluded.local_updated_at,
			deleted = excluded.deleted
		RETURNING version`, r.table)

	var version int64
	err = r.db.QueryRowContext(ctx, query,
		e.ID, data, string(models.StatusPendingUpload), timex.ToMicros(now), e.Deleted).Scan(&version)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to write %s: %w", r.table, err)
	}
	return version, version - 1, nil
}

func (r *SQLiteRepository) ApplyPulledChange(ctx context.Context, remote *models.Entity) (PullOutcome, error) {
	var (
		status  string
		version int64
	)
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT sync_status, version FROM %s WHERE id = ?`, r.table), remote.ID).Scan(&status, &version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("failed to read %s: %w", r.table, err)
	case models.SyncStatus(status) == models.StatusPendingUpload:
		return PullSkippedPending, nil
	case remote.Version < version:
		return PullSkippedStale, nil
	}

	data, err := encode(remote.Payload)
	if err != nil {
		return 0, err
	}

	serverAt := timex.ToMicros(remote.ServerUpdatedAt)
	query := fmt.Sprintf(`INSERT INTO %[1]s (id, data, version, sync_status, local_updated_at, server_updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = COALESCE(excluded.data, %[1]s.data),
			version = excluded.version,
			sync_status = excluded.sync_status,
			local_updated_at = excluded.local_updated_at,
			server_updated_at = excluded.server_updated_at,
			deleted = excluded.deleted`, r.table)

	_, err = r.db.ExecContext(ctx, query,
		remote.ID, data, remote.Version, string(models.StatusSynced), serverAt, serverAt, remote.Deleted)
	if err != nil {
		return 0, fmt.Errorf("failed to apply pulled %s: %w", r.table, err)
	}
	return PullApplied, nil
}

func (r *SQLiteRepository) ResolveConflict(ctx context.Context, id string, serverVersion int64, serverUpdatedAt time.Time) error {
	at := timex.ToMicros(serverUpdatedAt)
	query := fmt.Sprintf(`UPDATE %s
		SET version = ?, sync_status = ?, local_updated_at = ?, server_updated_at = ?
		WHERE id = ?`, r.table)
	return r.expectOne(ctx, "resolve conflict", query, serverVersion, string(models.StatusSynced), at, at, id)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, serverVersion int64, serverUpdatedAt time.Time) error {
	query := fmt.Sprintf(`UPDATE %s
		SET version = ?, sync_status = ?, server_updated_at = ?
		WHERE id = ?`, r.table)
	return r.expectOne(ctx, "mark synced", query, serverVersion, string(models.StatusSynced), timex.ToMicros(serverUpdatedAt), id)
}

func (r *SQLiteRepository) Rebase(ctx context.Context, id string, serverVersion int64) error {
	query := fmt.Sprintf(`UPDATE %s SET version = ? WHERE id = ?`, r.table)
	return r.expectOne(ctx, "rebase", query, serverVersion, id)
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Entity, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, r.table), id)
	e, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return e, err
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Entity, error) {
	return r.list(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE deleted = 0 ORDER BY local_updated_at DESC, id`, selectColumns, r.table))
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, status models.SyncStatus) ([]*models.Entity, error) {
	return r.list(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE sync_status = ? ORDER BY id`, selectColumns, r.table), string(status))
}

const selectColumns = `id, data, version, sync_status, local_updated_at, server_updated_at, deleted`

func (r *SQLiteRepository) expectOne(ctx context.Context, what, query string, args ...any) error {
	n, err := dbx.ExecAffected(ctx, r.db, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", what, r.table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, r.table, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", r.table, err)
	}
	defer rows.Close()

	var result []*models.Entity
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scan(row scanner) (*models.Entity, error) {
	var (
		e                 models.Entity
		data              sql.NullString
		status            string
		localAt, serverAt int64
	)
	if err := row.Scan(&e.ID, &data, &e.Version, &status, &localAt, &serverAt, &e.Deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan %s: %w", r.table, err)
	}

	e.Type = r.typ
	e.SyncStatus = models.SyncStatus(status)
	e.LocalUpdatedAt = timex.FromMicros(localAt)
	e.ServerUpdatedAt = timex.FromMicros(serverAt)

	if data.Valid && data.String != "" {
		p, err := syncapi.DecodePayload(r.typ, json.RawMessage(data.String))
		if err != nil {
			return nil, fmt.Errorf("stored %s %s: %w", r.table, e.ID, err)
		}
		e.Payload = p
	}
	return &e, nil
}

func encode(p syncapi.Payload) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(b), nil
}
