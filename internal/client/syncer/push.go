package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// PushStats counts what happened to the operations of a round.
type PushStats struct {
	Succeeded  int
	Conflicts  int
	Failed     int
	Frozen     int
	Superseded int
}

func (s *PushStats) add(o PushStats) {
	s.Succeeded += o.Succeeded
	s.Conflicts += o.Conflicts
	s.Failed += o.Failed
	s.Frozen += o.Frozen
	s.Superseded += o.Superseded
}

// pushOutcome is the local effect of one batch of push results.
type pushOutcome struct {
	PushStats
	// resetTypes holds the types whose watermark a conflict rewound.
	resetTypes map[models.EntityType]bool
	// needsAuth is set when the server rejected an op's credentials.
	needsAuth bool
}

// Pusher turns queued operations into push items and applies the server's
// verdicts to the queue and the entity store.
type Pusher struct {
	rm     repomanager.RepositoryManager
	policy BackoffPolicy
	log    logging.Logger
}

func NewPusher(rm repomanager.RepositoryManager, policy BackoffPolicy, log logging.Logger) *Pusher {
	if log == nil {
		log = logging.Nop{}
	}
	return &Pusher{rm: rm, policy: policy, log: log}
}

func (p *Pusher) Items(ops []*models.PendingOperation) []syncapi.PushItem {
	items := make([]syncapi.PushItem, 0, len(ops))
	for _, op := range ops {
		items = append(items, op.PushItem())
	}
	return items
}

// permanent reports whether code will fail the same way on every retry.
func permanent(code string) bool {
	switch code {
	case syncapi.CodeNotAuthorized, syncapi.CodeReferentialViolation,
		syncapi.CodeValidationFailed, syncapi.CodeNotFound:
		return true
	}
	return false
}

// Apply records results[i] for ops[i]. It must run inside the transaction
// that also applies the pull of the same response.
func (p *Pusher) Apply(ctx context.Context, tx dbx.DBTX, ops []*models.PendingOperation, results []syncapi.PushResult, now time.Time) (pushOutcome, error) {
	out := pushOutcome{resetTypes: map[models.EntityType]bool{}}
	if len(ops) != len(results) {
		return out, fmt.Errorf("%d results for %d operations", len(results), len(ops))
	}

	for i, op := range ops {
		res := results[i]
		var err error
		switch {
		case res.Success:
			err = p.succeeded(ctx, tx, op, res, &out)
		case res.ErrorCode == syncapi.CodeVersionConflict:
			err = p.conflicted(ctx, tx, op, res, &out)
		case res.ErrorCode == syncapi.CodeNotAuthenticated:
			out.needsAuth = true
			err = p.retryLater(ctx, tx, op, res, now, &out)
		case permanent(res.ErrorCode):
			out.Frozen++
			p.log.Warn(ctx, "operation rejected permanently",
				"op_id", op.ID, "entity_type", op.EntityType, "entity_id", op.EntityID,
				"code", res.ErrorCode, "message", res.ErrorMessage)
			err = p.rm.Queue(tx).Freeze(ctx, op.ID, reason(res), now)
		default:
			err = p.retryLater(ctx, tx, op, res, now, &out)
		}
		if err != nil {
			return out, fmt.Errorf("apply result of %s %s: %w", op.EntityType, op.EntityID, err)
		}
	}
	return out, nil
}

func (p *Pusher) succeeded(ctx context.Context, tx dbx.DBTX, op *models.PendingOperation, res syncapi.PushResult, out *pushOutcome) error {
	current, err := p.rm.Queue(tx).MarkSucceeded(ctx, op.ID)
	if err != nil {
		return err
	}
	repo, err := p.rm.Entities(tx, op.EntityType)
	if err != nil {
		return err
	}

	out.Succeeded++
	if !current {
		out.Superseded++
		return p.rebase(ctx, tx, op, res.ServerVersion)
	}

	err = repo.MarkSynced(ctx, op.EntityID, res.ServerVersion, res.ServerUpdatedAt)
	if errors.Is(err, common.ErrorNotFound) {
		p.log.Warn(ctx, "acknowledged entity missing locally", "entity_type", op.EntityType, "entity_id", op.EntityID)
		return nil
	}
	return err
}

func (p *Pusher) conflicted(ctx context.Context, tx dbx.DBTX, op *models.PendingOperation, res syncapi.PushResult, out *pushOutcome) error {
	out.Conflicts++
	p.log.Warn(ctx, "version conflict, server wins",
		"op_id", op.ID, "entity_type", op.EntityType, "entity_id", op.EntityID,
		"expected_version", op.ExpectedVersion(), "server_version", res.ServerVersion)

	current, err := p.rm.Queue(tx).MarkSucceeded(ctx, op.ID)
	if err != nil {
		return err
	}
	if err := p.rm.Watermarks(tx).Reset(ctx, op.EntityType); err != nil {
		return err
	}
	out.resetTypes[op.EntityType] = true

	if !current {
		out.Superseded++
		return p.rebase(ctx, tx, op, res.ServerVersion)
	}

	repo, err := p.rm.Entities(tx, op.EntityType)
	if err != nil {
		return err
	}
	err = repo.ResolveConflict(ctx, op.EntityID, res.ServerVersion, res.ServerUpdatedAt)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}

// rebase moves the newer queued op of the same entity, and the entity
// itself, onto the version the server now holds.
func (p *Pusher) rebase(ctx context.Context, tx dbx.DBTX, op *models.PendingOperation, serverVersion int64) error {
	if err := p.rm.Queue(tx).Rebase(ctx, op.EntityType, op.EntityID, serverVersion); err != nil {
		return err
	}
	repo, err := p.rm.Entities(tx, op.EntityType)
	if err != nil {
		return err
	}
	err = repo.Rebase(ctx, op.EntityID, serverVersion)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}

func (p *Pusher) retryLater(ctx context.Context, tx dbx.DBTX, op *models.PendingOperation, res syncapi.PushResult, now time.Time, out *pushOutcome) error {
	out.Failed++
	next := p.policy.NextAttempt(op.RetryCount+1, now)
	p.log.Info(ctx, "operation will be retried",
		"op_id", op.ID, "code", res.ErrorCode, "retry_count", op.RetryCount+1, "next_attempt_at", next)
	return p.rm.Queue(tx).MarkFailed(ctx, op.ID, reason(res), now, next)
}

// FailBatch reschedules every op of a batch whose call never got an answer.
func (p *Pusher) FailBatch(ctx context.Context, tx dbx.DBTX, ops []*models.PendingOperation, cause error, now time.Time) (PushStats, error) {
	var stats PushStats
	q := p.rm.Queue(tx)
	for _, op := range ops {
		next := p.policy.NextAttempt(op.RetryCount+1, now)
		if err := q.MarkFailed(ctx, op.ID, cause.Error(), now, next); err != nil {
			return stats, err
		}
		stats.Failed++
	}
	return stats, nil
}

func reason(res syncapi.PushResult) string {
	if res.ErrorMessage == "" {
		return res.ErrorCode
	}
	return res.ErrorCode + ": " + res.ErrorMessage
}
