package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/server/models"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

// DefaultPullLimit caps the rows returned per entity type in one exchange.
const DefaultPullLimit = 1000

type SyncService struct {
	tx          dbx.TxRunner
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
	pullLimit   int
	log         logging.Logger
}

func NewSyncService(tx dbx.TxRunner, rm repomanager.RepositoryManager, clock timex.Clock, pullLimit int, log logging.Logger) *SyncService {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if pullLimit <= 0 {
		pullLimit = DefaultPullLimit
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &SyncService{tx: tx, repomanager: rm, clock: clock, pullLimit: pullLimit, log: log}
}

// SyncChanges applies the pushed items in order and then answers the pull
// part of the request. Every item gets a result at its own index; a failing
// item never aborts the others.
func (s *SyncService) SyncChanges(ctx context.Context, userID string, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error) {
	if userID == "" {
		return nil, common.ErrorUnauthorized
	}

	resp := &syncapi.SyncChangesResponse{
		PushResults: make([]syncapi.PushResult, len(req.Push)),
	}

	for i := range req.Push {
		resp.PushResults[i] = s.push(ctx, userID, &req.Push[i])
	}

	if len(req.PullSince) > 0 {
		pulled, more, err := s.pull(ctx, userID, req.PullSince)
		if err != nil {
			return nil, err
		}
		resp.PullResults = pulled
		if len(more) > 0 {
			resp.HasMore = more
		}
	}

	resp.SyncTimestamp = s.now()
	return resp, nil
}

func (s *SyncService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func rejected(code string, format string, args ...any) syncapi.PushResult {
	return syncapi.PushResult{ErrorCode: code, ErrorMessage: fmt.Sprintf(format, args...)}
}

func conflict(cur *models.Record) syncapi.PushResult {
	res := rejected(syncapi.CodeVersionConflict, "server has version %d", cur.Version)
	res.ServerVersion = cur.Version
	res.ServerUpdatedAt = cur.UpdatedAt
	return res
}

func accepted(rec *models.Record) syncapi.PushResult {
	return syncapi.PushResult{Success: true, ServerVersion: rec.Version, ServerUpdatedAt: rec.UpdatedAt}
}

// validate rejects items that can never succeed. Such verdicts are not
// remembered under the idempotency key.
func validate(userID string, it *syncapi.PushItem) (syncapi.PushResult, bool) {
	switch {
	case !it.EntityType.Valid():
		return rejected(syncapi.CodeValidationFailed, "unknown entity type %q", it.EntityType), false
	case it.EntityID == "":
		return rejected(syncapi.CodeValidationFailed, "entity_id is required"), false
	case !it.Action.Valid():
		return rejected(syncapi.CodeValidationFailed, "unknown action %q", it.Action), false
	case it.IdempotencyKey == "":
		return rejected(syncapi.CodeValidationFailed, "idempotency_key is required"), false
	case it.ExpectedVersion < 1:
		return rejected(syncapi.CodeValidationFailed, "expected_version must be positive"), false
	}

	if it.Action == syncapi.ActionDelete {
		return syncapi.PushResult{}, true
	}

	p, err := syncapi.DecodePayload(it.EntityType, it.Payload)
	if err != nil {
		return rejected(syncapi.CodeValidationFailed, "%v", err), false
	}
	if owner := payloadOwner(p); owner != "" && owner != userID {
		return rejected(syncapi.CodeNotAuthorized, "payload belongs to another user"), false
	}
	return syncapi.PushResult{}, true
}

func payloadOwner(p syncapi.Payload) string {
	switch v := p.(type) {
	case syncapi.Trip:
		return v.UserID
	case syncapi.Vehicle:
		return v.UserID
	}
	return ""
}

func (s *SyncService) push(ctx context.Context, userID string, it *syncapi.PushItem) syncapi.PushResult {
	if res, ok := validate(userID, it); !ok {
		return res
	}

	var res syncapi.PushResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		idem := s.repomanager.Idempotency(tx)

		prev, err := idem.Find(ctx, userID, it.IdempotencyKey)
		if err == nil {
			res = *prev
			return nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		res, err = s.apply(ctx, tx, userID, it)
		if err != nil {
			return err
		}
		return idem.Save(ctx, userID, it.IdempotencyKey, res, s.now())
	})
	if err != nil {
		s.log.Error(ctx, "push item failed",
			"entity_type", it.EntityType, "entity_id", it.EntityID, "action", it.Action, "error", err)
		return rejected(syncapi.CodeTransient, "temporary server error")
	}

	s.log.Debug(ctx, "push item applied",
		"entity_type", it.EntityType, "entity_id", it.EntityID, "action", it.Action,
		"success", res.Success, "code", res.ErrorCode)
	return res
}

func (s *SyncService) apply(ctx context.Context, tx dbx.DBTX, userID string, it *syncapi.PushItem) (syncapi.PushResult, error) {
	repo := s.repomanager.Records(tx)

	cur, err := repo.Get(ctx, it.EntityType, it.EntityID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return syncapi.PushResult{}, err
	}
	if cur != nil && cur.UserID != userID {
		return rejected(syncapi.CodeNotAuthorized, "%s %s belongs to another user", it.EntityType, it.EntityID), nil
	}

	switch it.Action {
	case syncapi.ActionCreate:
		if cur != nil {
			return conflict(cur), nil
		}
		if it.ExpectedVersion != 1 {
			return rejected(syncapi.CodeVersionConflict, "create must expect version 1"), nil
		}
		rec := &models.Record{
			EntityType: it.EntityType,
			EntityID:   it.EntityID,
			UserID:     userID,
			Payload:    it.Payload,
			Version:    1,
			UpdatedAt:  s.now(),
		}
		ok, err := repo.Insert(ctx, rec)
		if err != nil {
			return syncapi.PushResult{}, err
		}
		if !ok {
			// lost a race with a concurrent create
			cur, err = repo.Get(ctx, it.EntityType, it.EntityID)
			if err != nil {
				return syncapi.PushResult{}, err
			}
			return conflict(cur), nil
		}
		return accepted(rec), nil

	case syncapi.ActionUpdate:
		if cur == nil {
			return rejected(syncapi.CodeNotFound, "%s %s does not exist", it.EntityType, it.EntityID), nil
		}
		if cur.Deleted || it.ExpectedVersion != cur.Version+1 {
			return conflict(cur), nil
		}
		cur.Payload = it.Payload
		return s.bump(ctx, repo, cur)

	default: // delete
		if cur == nil {
			return syncapi.PushResult{Success: true}, nil
		}
		if cur.Deleted {
			return accepted(cur), nil
		}
		if it.ExpectedVersion != cur.Version+1 {
			return conflict(cur), nil
		}
		cur.Deleted = true
		cur.Payload = nil
		return s.bump(ctx, repo, cur)
	}
}

type recordUpdater interface {
	Update(ctx context.Context, r *models.Record) error
}

// bump stores rec as its next version. updated_at always moves forward so a
// pull watermark taken earlier never hides the change.
func (s *SyncService) bump(ctx context.Context, repo recordUpdater, rec *models.Record) (syncapi.PushResult, error) {
	now := s.now()
	if !now.After(rec.UpdatedAt) {
		now = rec.UpdatedAt.Add(time.Microsecond)
	}
	rec.Version++
	rec.UpdatedAt = now
	if err := repo.Update(ctx, rec); err != nil {
		return syncapi.PushResult{}, err
	}
	return accepted(rec), nil
}

// pull returns the changes of each requested type and the types whose page
// was cut at the limit.
func (s *SyncService) pull(ctx context.Context, userID string, since map[syncapi.EntityType]time.Time) (map[syncapi.EntityType][]syncapi.RemoteChange, map[syncapi.EntityType]bool, error) {
	out := make(map[syncapi.EntityType][]syncapi.RemoteChange, len(since))
	more := make(map[syncapi.EntityType]bool)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Records(tx)
		for t, watermark := range since {
			if !t.Valid() {
				return fmt.Errorf("%w: unknown entity type %q", common.ErrValidation, t)
			}

			recs, err := repo.ChangedSince(ctx, userID, t, watermark, s.pullLimit+1)
			if err != nil {
				return fmt.Errorf("pull %s: %w", t, err)
			}
			if len(recs) > s.pullLimit {
				recs = trimTies(recs[:s.pullLimit], recs[s.pullLimit])
				if len(recs) > 0 {
					more[t] = true
				} else {
					// a single timestamp holds more rows than the limit
					recs, err = repo.ChangedSince(ctx, userID, t, watermark, 0)
					if err != nil {
						return fmt.Errorf("pull %s: %w", t, err)
					}
				}
			}

			changes := make([]syncapi.RemoteChange, 0, len(recs))
			for _, r := range recs {
				changes = append(changes, r.Change())
			}
			out[t] = changes
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, more, nil
}

// trimTies drops the trailing rows that share next's timestamp. The client
// advances its watermark to the newest row it saw, so a page must never end
// in the middle of a group of equal timestamps.
func trimTies(page []*models.Record, next *models.Record) []*models.Record {
	n := len(page)
	for n > 0 && page[n-1].UpdatedAt.Equal(next.UpdatedAt) {
		n--
	}
	return page[:n]
}

// PurgeIdempotency forgets push verdicts older than retention.
func (s *SyncService) PurgeIdempotency(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)

	var n int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.repomanager.Idempotency(tx).Purge(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return n, nil
}
