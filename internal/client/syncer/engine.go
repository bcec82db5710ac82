package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/client"
	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/queue"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

const DefaultBatchSize = 50

// Remote is the server side of a round.
type Remote interface {
	SyncChanges(ctx context.Context, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error)
}

// Credentials renews the access token after the server rejected it.
type Credentials interface {
	Refresh(ctx context.Context) (string, error)
}

type Options struct {
	BatchSize   int
	Policy      BackoffPolicy
	Clock       timex.Clock
	Logger      logging.Logger
	Credentials Credentials
}

// RoundResult summarizes one sync round.
type RoundResult struct {
	Push  PushStats
	Pull  PullStats
	Calls int
	// SyncTimestamp is the server clock reported by the final call.
	SyncTimestamp time.Time
}

// Engine is the sync orchestrator.
type Engine struct {
	db     dbx.DBTX
	tx     dbx.TxRunner
	rm     repomanager.RepositoryManager
	remote Remote
	creds  Credentials
	pusher *Pusher
	puller *Puller

	policy    BackoffPolicy
	batchSize int
	clock     timex.Clock
	log       logging.Logger

	// running is held for the duration of a round
	running  sync.Mutex
	failures int

	status *broadcaster
	wake   chan struct{}
}

func NewEngine(db dbx.DBTX, tx dbx.TxRunner, rm repomanager.RepositoryManager, remote Remote, opts Options) *Engine {
	policy := opts.Policy.normalized()
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = timex.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	log := opts.Logger.With("module", "sync")

	return &Engine{
		db:        db,
		tx:        tx,
		rm:        rm,
		remote:    remote,
		creds:     opts.Credentials,
		pusher:    NewPusher(rm, policy, log),
		puller:    NewPuller(rm, log),
		policy:    policy,
		batchSize: opts.BatchSize,
		clock:     opts.Clock,
		log:       log,
		status:    newBroadcaster(),
		wake:      make(chan struct{}, 1),
	}
}

// Notify asks Run for a round without blocking. Repeated calls before the
// round starts collapse into one.
func (e *Engine) Notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Foreground is the app-foreground trigger.
func (e *Engine) Foreground() {
	e.Notify()
}

// ObserveStatus streams status snapshots, starting with the current one.
// Call the returned func to unsubscribe.
func (e *Engine) ObserveStatus() (<-chan Status, func()) {
	return e.status.subscribe()
}

func (e *Engine) Status() Status {
	return e.status.get()
}

// FailedOperations lists the operations that no longer retry on their own.
func (e *Engine) FailedOperations(ctx context.Context) ([]*models.PendingOperation, error) {
	return e.rm.Queue(e.db).Failed(ctx, e.policy.MaxRetries)
}

// PendingCount is the number of queued operations, failed ones included.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.rm.Queue(e.db).Count(ctx)
}

// Requeue gives a failed operation a fresh set of retries.
func (e *Engine) Requeue(ctx context.Context, opID string) error {
	return e.rm.Queue(e.db).Requeue(ctx, opID)
}

// SyncNow runs one round. It returns common.ErrSyncInProgress when another
// round is already running.
func (e *Engine) SyncNow(ctx context.Context) (RoundResult, error) {
	if !e.running.TryLock() {
		return RoundResult{}, common.ErrSyncInProgress
	}
	defer e.running.Unlock()

	prev := e.status.get()
	e.status.publish(Status{State: StateSyncing, LastSyncAt: prev.LastSyncAt})

	started := time.Now()
	res, err := e.round(ctx)
	if err != nil {
		e.failures++
		retryAt := e.clock.Now().Add(e.policy.Backoff(e.failures - 1))
		e.status.publish(Status{State: StateBackoff, LastSyncAt: prev.LastSyncAt, LastError: err.Error(), RetryAt: retryAt})
		e.log.Warn(ctx, "sync round failed", "error", err, "failures", e.failures, "retry_at", retryAt)
		return res, err
	}

	e.failures = 0
	last := prev.LastSyncAt
	if !res.SyncTimestamp.IsZero() {
		last = res.SyncTimestamp
	}
	e.status.publish(Status{State: StateIdle, LastSyncAt: last})
	e.log.Info(ctx, "sync round finished",
		"calls", res.Calls,
		"pushed", res.Push.Succeeded, "conflicts", res.Push.Conflicts,
		"failed", res.Push.Failed, "frozen", res.Push.Frozen,
		"pulled", res.Pull.Applied, "deferred", res.Pull.SkippedPending,
		"duration", time.Since(started))
	return res, nil
}

func (e *Engine) round(ctx context.Context) (RoundResult, error) {
	var (
		res       RoundResult
		refreshed bool
	)
	start := e.clock.Now()
	seen := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ops, err := e.rm.Queue(e.db).DequeueBatch(ctx, queue.BatchQuery{
			Limit:         e.batchSize + 1,
			Now:           start,
			CreatedBefore: start,
			MaxRetries:    e.policy.MaxRetries,
		})
		if err != nil {
			return res, fmt.Errorf("dequeue: %w", err)
		}
		last := len(ops) <= e.batchSize
		if !last {
			ops = ops[:e.batchSize]
		}
		for _, op := range ops {
			if seen[op.ID] {
				return res, fmt.Errorf("operation %s dequeued twice in one round", op.ID)
			}
			seen[op.ID] = true
		}

		req := &syncapi.SyncChangesRequest{Push: e.pusher.Items(ops)}
		if last {
			if req.PullSince, err = e.puller.Since(ctx, e.db); err != nil {
				return res, fmt.Errorf("read watermarks: %w", err)
			}
		}

		resp, err := e.call(ctx, req, &refreshed)
		res.Calls++
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, e.failBatch(ctx, ops, err, &res)
		}

		out, err := e.apply(ctx, ops, resp, last, &res)
		if err != nil {
			return res, err
		}
		if out.needsAuth {
			if err := e.refresh(ctx, &refreshed); err != nil {
				return res, err
			}
		}
		if last {
			return res, e.pullRest(ctx, req.PullSince, resp, out.resetTypes, &refreshed, &res)
		}
	}
}

// pullRest keeps issuing pull-only calls while a type's page came back cut
// short, each one starting after the newest change of the previous page.
func (e *Engine) pullRest(ctx context.Context, since map[syncapi.EntityType]time.Time, resp *syncapi.SyncChangesResponse, reset map[models.EntityType]bool, refreshed *bool, res *RoundResult) error {
	for {
		next := nextPage(since, resp, reset)
		if len(next) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		resp, err = e.call(ctx, &syncapi.SyncChangesRequest{PullSince: next}, refreshed)
		res.Calls++
		if err != nil {
			return err
		}
		if _, err := e.apply(ctx, nil, resp, true, res); err != nil {
			return err
		}
		since, reset = next, nil
	}
}

// nextPage returns the pull_since map of the page after resp. A type whose
// cursor a conflict rewound during this call is left to the next round, and
// a page that did not move past its cursor ends the type.
func nextPage(since map[syncapi.EntityType]time.Time, resp *syncapi.SyncChangesResponse, reset map[models.EntityType]bool) map[syncapi.EntityType]time.Time {
	next := make(map[syncapi.EntityType]time.Time)
	for t, more := range resp.HasMore {
		prev, asked := since[t]
		if !more || !asked || reset[t] {
			continue
		}
		if newest := newestChange(resp.PullResults[t]); newest.After(prev) {
			next[t] = newest
		}
	}
	return next
}

// call sends req, renewing credentials once per round if the server
// rejects them.
func (e *Engine) call(ctx context.Context, req *syncapi.SyncChangesRequest, refreshed *bool) (*syncapi.SyncChangesResponse, error) {
	resp, err := e.send(ctx, req)
	if err == nil || !errors.Is(err, client.ErrUnauthorized) || e.creds == nil || *refreshed {
		return resp, err
	}
	if rerr := e.refresh(ctx, refreshed); rerr != nil {
		return nil, rerr
	}
	return e.send(ctx, req)
}

func (e *Engine) send(ctx context.Context, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error) {
	resp, err := e.remote.SyncChanges(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.PushResults) != len(req.Push) {
		return nil, fmt.Errorf("%w: %d push results for %d items", client.ErrUnavailable, len(resp.PushResults), len(req.Push))
	}
	return resp, nil
}

func (e *Engine) refresh(ctx context.Context, refreshed *bool) error {
	if e.creds == nil || *refreshed {
		return common.ErrReconnectRequired
	}
	*refreshed = true
	if _, err := e.creds.Refresh(ctx); err != nil {
		if errors.Is(err, common.ErrReconnectRequired) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrReconnectRequired, err)
	}
	return nil
}

// apply stores a response. Once the server has answered, its verdicts are
// recorded even if ctx is canceled meanwhile.
func (e *Engine) apply(ctx context.Context, ops []*models.PendingOperation, resp *syncapi.SyncChangesResponse, last bool, res *RoundResult) (pushOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	now := e.clock.Now()

	var (
		push pushOutcome
		pull PullStats
	)
	err := e.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if push, err = e.pusher.Apply(ctx, tx, ops, resp.PushResults, now); err != nil {
			return err
		}
		if !last {
			return nil
		}
		if pull, err = e.puller.Apply(ctx, tx, resp.PullResults, push.resetTypes); err != nil {
			return err
		}
		if resp.SyncTimestamp.IsZero() {
			return nil
		}
		return e.rm.Metadata(tx).SetLastSyncAt(ctx, resp.SyncTimestamp)
	})
	if err != nil {
		return push, fmt.Errorf("apply response: %w", err)
	}

	res.Push.add(push.PushStats)
	res.Pull.add(pull)
	if last {
		res.SyncTimestamp = resp.SyncTimestamp
	}
	return push, nil
}

func (e *Engine) failBatch(ctx context.Context, ops []*models.PendingOperation, cause error, res *RoundResult) error {
	if len(ops) == 0 {
		return cause
	}
	now := e.clock.Now()
	var stats PushStats
	err := e.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		stats, err = e.pusher.FailBatch(ctx, tx, ops, cause, now)
		return err
	})
	if err != nil {
		return errors.Join(cause, fmt.Errorf("record failed batch: %w", err))
	}
	res.Push.add(stats)
	return cause
}

// Run performs a round whenever Notify is called and retries failed rounds
// after their backoff. It returns when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	var retry *time.Timer
	stopRetry := func() {
		if retry != nil {
			retry.Stop()
			retry = nil
		}
	}
	defer stopRetry()

	for {
		var retryC <-chan time.Time
		if retry != nil {
			retryC = retry.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wake:
		case <-retryC:
			retry = nil
		}

		_, err := e.SyncNow(ctx)
		switch {
		case err == nil:
			stopRetry()
		case errors.Is(err, common.ErrSyncInProgress):
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, common.ErrReconnectRequired):
			// nothing to retry until the user signs in again
			stopRetry()
			e.log.Error(ctx, "sync paused, reconnect required", "error", err)
		default:
			stopRetry()
			retry = time.NewTimer(max(e.Status().RetryAt.Sub(e.clock.Now()), 0))
		}
	}
}
