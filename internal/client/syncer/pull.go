package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/entities"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// PullStats counts what happened to the remote changes of a round.
type PullStats struct {
	Applied        int
	SkippedPending int
	SkippedStale   int
	Invalid        int
}

func (s *PullStats) add(o PullStats) {
	s.Applied += o.Applied
	s.SkippedPending += o.SkippedPending
	s.SkippedStale += o.SkippedStale
	s.Invalid += o.Invalid
}

// Puller reads the pull cursors and applies remote changes.
type Puller struct {
	rm  repomanager.RepositoryManager
	log logging.Logger
}

func NewPuller(rm repomanager.RepositoryManager, log logging.Logger) *Puller {
	if log == nil {
		log = logging.Nop{}
	}
	return &Puller{rm: rm, log: log}
}

// Since returns the pull_since map of the next request. A type with a
// deferred change that can be applied now starts just before that change.
func (p *Puller) Since(ctx context.Context, db dbx.DBTX) (map[syncapi.EntityType]time.Time, error) {
	since, err := p.rm.Watermarks(db).All(ctx, syncapi.AllEntityTypes)
	if err != nil {
		return nil, err
	}

	deferred := p.rm.Deferred(db)
	for _, t := range syncapi.AllEntityTypes {
		from, ok, err := deferred.ReplayFrom(ctx, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if mark := from.Add(-time.Microsecond); mark.Before(since[t]) {
			since[t] = mark
		}
	}
	return since, nil
}

// Apply stores the pulled changes, type by type in dependency order, and
// advances each watermark to the newest change seen. A change skipped
// because the local row is pending is recorded as deferred instead of
// holding the watermark back. Watermarks of the types in frozen are left
// alone.
func (p *Puller) Apply(ctx context.Context, tx dbx.DBTX, results map[syncapi.EntityType][]syncapi.RemoteChange, frozen map[models.EntityType]bool) (PullStats, error) {
	var stats PullStats
	deferred := p.rm.Deferred(tx)
	for _, t := range syncapi.AllEntityTypes {
		if changes := results[t]; len(changes) > 0 {
			if err := p.applyType(ctx, tx, t, changes, frozen[t], &stats); err != nil {
				return stats, err
			}
		}
		if _, err := deferred.Settle(ctx, t); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (p *Puller) applyType(ctx context.Context, tx dbx.DBTX, t syncapi.EntityType, changes []syncapi.RemoteChange, keepWatermark bool, stats *PullStats) error {
	repo, err := p.rm.Entities(tx, t)
	if err != nil {
		return err
	}
	deferred := p.rm.Deferred(tx)

	sorted := make([]syncapi.RemoteChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
	})

	for _, ch := range sorted {
		e, err := remoteEntity(t, ch)
		if err != nil {
			stats.Invalid++
			p.log.Error(ctx, "dropping invalid remote change", "entity_type", t, "entity_id", ch.EntityID, "error", err)
			continue
		}

		outcome, err := repo.ApplyPulledChange(ctx, e)
		if err != nil {
			return err
		}
		switch outcome {
		case entities.PullApplied:
			stats.Applied++
		case entities.PullSkippedStale:
			stats.SkippedStale++
		case entities.PullSkippedPending:
			stats.SkippedPending++
			if err := deferred.Defer(ctx, t, ch.EntityID, ch.Version, ch.UpdatedAt); err != nil {
				return err
			}
			p.log.Debug(ctx, "remote change deferred, local edit pending", "entity_type", t, "entity_id", ch.EntityID)
		}
	}

	mark := newestChange(sorted)
	if keepWatermark || mark.IsZero() {
		return nil
	}
	if err := p.rm.Watermarks(tx).Advance(ctx, t, mark); err != nil {
		return fmt.Errorf("advance %s watermark: %w", t, err)
	}
	return nil
}

// newestChange returns the latest updated_at of changes, zero if empty.
func newestChange(changes []syncapi.RemoteChange) time.Time {
	var newest time.Time
	for _, ch := range changes {
		if ch.UpdatedAt.After(newest) {
			newest = ch.UpdatedAt
		}
	}
	return newest
}

func remoteEntity(t syncapi.EntityType, ch syncapi.RemoteChange) (*models.Entity, error) {
	e := &models.Entity{
		ID:              ch.EntityID,
		Type:            t,
		Version:         ch.Version,
		SyncStatus:      models.StatusSynced,
		ServerUpdatedAt: ch.UpdatedAt,
		Deleted:         ch.Deleted,
	}
	if ch.EntityID == "" {
		return nil, fmt.Errorf("missing entity id")
	}
	if ch.Deleted && len(ch.Payload) == 0 {
		return e, nil
	}
	payload, err := syncapi.DecodePayload(t, ch.Payload)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return e, nil
}
