// Package memory keeps the whole server state in process. It backs tests and
// the "memory" DSN.
//
// Repositories handed out by Store are only safe inside WithinTx, which holds
// the store lock for the duration of the transaction and restores the
// previous state when fn fails.
package memory

import (
	"context"
	"database/sql"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/cryptox"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/server/models"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/idempotency"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/records"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/refreshtokens"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

type recordKey struct {
	t  syncapi.EntityType
	id string
}

type idemKey struct {
	userID string
	key    string
}

type idemEntry struct {
	res     syncapi.PushResult
	created time.Time
}

type state struct {
	records map[recordKey]models.Record
	results map[idemKey]idemEntry
	tokens  map[string]models.RefreshToken
}

func (s state) clone() state {
	return state{
		records: maps.Clone(s.records),
		results: maps.Clone(s.results),
		tokens:  maps.Clone(s.tokens),
	}
}

type Store struct {
	mu sync.Mutex
	st state
}

func NewStore() *Store {
	return &Store{st: state{
		records: make(map[recordKey]models.Record),
		results: make(map[idemKey]idemEntry),
		tokens:  make(map[string]models.RefreshToken),
	}}
}

// WithinTx runs fn under the store lock. The DBTX passed to fn is nil; use
// the repositories of the store instead.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	saved := s.st.clone()
	if err := fn(ctx, nil); err != nil {
		s.st = saved
		return err
	}
	return nil
}

// RunMigrations is a no-op; the store has no schema.
func (s *Store) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (s *Store) Records(dbx.DBTX) records.Repository { return recordRepo{s} }

func (s *Store) Idempotency(dbx.DBTX) idempotency.Repository { return idempotencyRepo{s} }

func (s *Store) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return refreshTokenRepo{s} }

// Records

type recordRepo struct{ s *Store }

func (r recordRepo) Get(ctx context.Context, t syncapi.EntityType, id string) (*models.Record, error) {
	rec, ok := r.s.st.records[recordKey{t, id}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rec, nil
}

func (r recordRepo) Insert(ctx context.Context, rec *models.Record) (bool, error) {
	k := recordKey{rec.EntityType, rec.EntityID}
	if _, ok := r.s.st.records[k]; ok {
		return false, nil
	}
	r.s.st.records[k] = *rec
	return true, nil
}

func (r recordRepo) Update(ctx context.Context, rec *models.Record) error {
	k := recordKey{rec.EntityType, rec.EntityID}
	cur, ok := r.s.st.records[k]
	if !ok {
		return common.ErrorNotFound
	}
	if len(rec.Payload) > 0 {
		cur.Payload = rec.Payload
	}
	cur.Version = rec.Version
	cur.UpdatedAt = rec.UpdatedAt
	cur.Deleted = rec.Deleted
	r.s.st.records[k] = cur
	return nil
}

func (r recordRepo) ChangedSince(ctx context.Context, userID string, t syncapi.EntityType, since time.Time, limit int) ([]*models.Record, error) {
	var out []*models.Record
	for k, rec := range r.s.st.records {
		if k.t != t || rec.UserID != userID || !rec.UpdatedAt.After(since) {
			continue
		}
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].EntityID < out[j].EntityID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Idempotency results

type idempotencyRepo struct{ s *Store }

func (r idempotencyRepo) Find(ctx context.Context, userID, key string) (*syncapi.PushResult, error) {
	e, ok := r.s.st.results[idemKey{userID, key}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	res := e.res
	return &res, nil
}

func (r idempotencyRepo) Save(ctx context.Context, userID, key string, res syncapi.PushResult, now time.Time) error {
	k := idemKey{userID, key}
	if _, ok := r.s.st.results[k]; !ok {
		r.s.st.results[k] = idemEntry{res: res, created: now}
	}
	return nil
}

func (r idempotencyRepo) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for k, e := range r.s.st.results {
		if e.created.Before(cutoff) {
			delete(r.s.st.results, k)
			n++
		}
	}
	return n, nil
}

// Refresh tokens

type refreshTokenRepo struct{ s *Store }

func (r refreshTokenRepo) Create(ctx context.Context, userID string, token string, expires time.Time) error {
	h := cryptox.HashToken(token)
	r.s.st.tokens[h] = models.RefreshToken{UserID: userID, Token: h, Expires: expires}
	return nil
}

func (r refreshTokenRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := r.s.st.tokens[cryptox.HashToken(token)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rt, nil
}

func (r refreshTokenRepo) Delete(ctx context.Context, token string) error {
	delete(r.s.st.tokens, cryptox.HashToken(token))
	return nil
}
