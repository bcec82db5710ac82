package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

// Notifier is told about every committed local mutation so a sync round can
// be scheduled.
type Notifier interface {
	Notify()
}

// MutationService is the write path of the local store. Every mutation bumps
// the entity's version, marks it PENDING_UPLOAD and enqueues the matching
// pending operation in the same transaction.
type MutationService interface {
	// EnqueueLocalMutation writes e and queues its push. A zero e.ID gets a
	// fresh uuid.
	EnqueueLocalMutation(ctx context.Context, e *models.Entity) (*models.PendingOperation, error)

	// Save creates or updates the entity id of p's type.
	Save(ctx context.Context, id string, p syncapi.Payload) (*models.PendingOperation, error)

	// Delete tombstones an existing entity.
	Delete(ctx context.Context, t models.EntityType, id string) (*models.PendingOperation, error)

	Get(ctx context.Context, t models.EntityType, id string) (*models.Entity, error)
	List(ctx context.Context, t models.EntityType) ([]*models.Entity, error)
}

type mutationService struct {
	db       dbx.DBTX
	tx       dbx.TxRunner
	rm       repomanager.RepositoryManager
	clock    timex.Clock
	notifier Notifier
	log      logging.Logger
}

func NewMutationService(db dbx.DBTX, tx dbx.TxRunner, rm repomanager.RepositoryManager, clock timex.Clock, notifier Notifier, log logging.Logger) MutationService {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &mutationService{db: db, tx: tx, rm: rm, clock: clock, notifier: notifier, log: log.With("module", "mutations")}
}

func (s *mutationService) EnqueueLocalMutation(ctx context.Context, e *models.Entity) (*models.PendingOperation, error) {
	if !e.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", common.ErrValidation, e.Type)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	var payload json.RawMessage
	if !e.Deleted {
		if e.Payload == nil || e.Payload.EntityType() != e.Type {
			return nil, fmt.Errorf("%w: payload does not match entity type %s", common.ErrValidation, e.Type)
		}
		raw, err := syncapi.EncodePayload(e.Payload)
		if err != nil {
			return nil, err
		}
		payload = raw
	}

	now := s.clock.Now()
	var op *models.PendingOperation

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo, err := s.rm.Entities(tx, e.Type)
		if err != nil {
			return err
		}

		version, prev, err := repo.ApplyLocalMutation(ctx, e, now)
		if err != nil {
			return err
		}
		e.Version = version
		e.SyncStatus = models.StatusPendingUpload
		e.LocalUpdatedAt = now

		op = models.NewPendingOperation(e.Type, e.ID, models.ResolveAction(e.Deleted, prev), payload, prev, now)
		return s.rm.Queue(tx).Enqueue(ctx, op)
	})
	if err != nil {
		return nil, fmt.Errorf("local mutation of %s %s: %w", e.Type, e.ID, err)
	}

	s.log.Debug(ctx, "local mutation queued", "entity_type", e.Type, "entity_id", e.ID, "action", op.Action, "version", e.Version)
	if s.notifier != nil {
		s.notifier.Notify()
	}
	return op, nil
}

func (s *mutationService) Save(ctx context.Context, id string, p syncapi.Payload) (*models.PendingOperation, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", common.ErrValidation)
	}
	return s.EnqueueLocalMutation(ctx, &models.Entity{ID: id, Type: p.EntityType(), Payload: p})
}

func (s *mutationService) Delete(ctx context.Context, t models.EntityType, id string) (*models.PendingOperation, error) {
	e, err := s.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if e.Deleted {
		return nil, fmt.Errorf("%s %s: %w", t, id, common.ErrorNotFound)
	}
	e.Deleted = true
	return s.EnqueueLocalMutation(ctx, e)
}

func (s *mutationService) Get(ctx context.Context, t models.EntityType, id string) (*models.Entity, error) {
	repo, err := s.rm.Entities(s.db, t)
	if err != nil {
		return nil, err
	}
	e, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%s %s: %w", t, id, common.ErrorNotFound)
		}
		return nil, err
	}
	return e, nil
}

func (s *mutationService) List(ctx context.Context, t models.EntityType) ([]*models.Entity, error) {
	repo, err := s.rm.Entities(s.db, t)
	if err != nil {
		return nil, err
	}
	return repo.List(ctx)
}
