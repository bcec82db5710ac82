package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wichigo/Motium-sub012/internal/client/client"
	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

func (env *testEnv) entity(t *testing.T, typ syncapi.EntityType, id string) *models.Entity {
	t.Helper()
	repo, err := env.rm.Entities(env.db, typ)
	require.NoError(t, err)
	e, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (env *testEnv) queued(t *testing.T, typ syncapi.EntityType, id string) *models.PendingOperation {
	t.Helper()
	op, err := env.rm.Queue(env.db).GetByEntity(context.Background(), typ, id)
	require.NoError(t, err)
	return op
}

func (env *testEnv) queueLen(t *testing.T) int {
	t.Helper()
	n, err := env.rm.Queue(env.db).Count(context.Background())
	require.NoError(t, err)
	return n
}

func (env *testEnv) watermark(t *testing.T, typ syncapi.EntityType) time.Time {
	t.Helper()
	ts, err := env.rm.Watermarks(env.db).Get(context.Background(), typ)
	require.NoError(t, err)
	return ts
}

func (env *testEnv) deferredCount(t *testing.T, typ syncapi.EntityType) int {
	t.Helper()
	n, err := env.rm.Deferred(env.db).Count(context.Background(), typ)
	require.NoError(t, err)
	return n
}

// seedSynced stores id as a SYNCED row at version, as if pulled earlier.
func (env *testEnv) seedSynced(t *testing.T, id string, p syncapi.Trip, version int64) {
	t.Helper()
	repo, err := env.rm.Entities(env.db, syncapi.EntityTrip)
	require.NoError(t, err)
	_, err = repo.ApplyPulledChange(context.Background(), &models.Entity{
		ID: id, Type: syncapi.EntityTrip, Payload: p, Version: version,
		SyncStatus: models.StatusSynced, ServerUpdatedAt: env.clock.Now(),
	})
	require.NoError(t, err)
}

func TestSync_PushSuccessMarksSynced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	env.srv.put(syncapi.EntityTrip, "t1", testTrip("v4"), 4)
	env.seedSynced(t, "t1", testTrip("v4"), 4)

	_, err := env.svc.Save(ctx, "t1", testTrip("edited"))
	require.NoError(t, err)
	require.EqualValues(t, 5, env.queued(t, syncapi.EntityTrip, "t1").ExpectedVersion())

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Push.Succeeded)
	assert.Equal(t, 1, res.Calls)

	e := env.entity(t, syncapi.EntityTrip, "t1")
	assert.EqualValues(t, 5, e.Version)
	assert.Equal(t, models.StatusSynced, e.SyncStatus)
	assert.Equal(t, "edited", e.Payload.(syncapi.Trip).Notes)
	assert.Zero(t, env.queueLen(t))

	assert.EqualValues(t, 5, env.srv.row(syncapi.EntityTrip, "t1").version)
	assert.False(t, env.watermark(t, syncapi.EntityTrip).IsZero())
}

func TestSync_CreateThenUpdateIsOnePush(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	_, err := env.svc.Save(ctx, "t1", testTrip("first"))
	require.NoError(t, err)
	_, err = env.svc.Save(ctx, "t1", testTrip("second"))
	require.NoError(t, err)

	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)

	calls := env.srv.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Push, 1)

	item := calls[0].Push[0]
	assert.Equal(t, syncapi.ActionCreate, item.Action)
	assert.EqualValues(t, 1, item.ExpectedVersion)
	p, err := syncapi.DecodePayload(syncapi.EntityTrip, item.Payload)
	require.NoError(t, err)
	assert.Equal(t, "second", p.(syncapi.Trip).Notes)

	e := env.entity(t, syncapi.EntityTrip, "t1")
	assert.EqualValues(t, 1, e.Version)
	assert.Equal(t, models.StatusSynced, e.SyncStatus)
}

func TestSync_VersionConflictConverges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	env.seedSynced(t, "t1", testTrip("v5"), 5)
	_, err := env.svc.Save(ctx, "t1", testTrip("local"))
	require.NoError(t, err)
	require.EqualValues(t, 6, env.queued(t, syncapi.EntityTrip, "t1").ExpectedVersion())

	// someone else moved the trip to version 7
	env.srv.put(syncapi.EntityTrip, "t1", testTrip("remote"), 7)

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Push.Conflicts)

	e := env.entity(t, syncapi.EntityTrip, "t1")
	assert.EqualValues(t, 7, e.Version)
	assert.Equal(t, models.StatusSynced, e.SyncStatus)
	assert.Equal(t, "remote", e.Payload.(syncapi.Trip).Notes)
	assert.True(t, env.watermark(t, syncapi.EntityTrip).IsZero())
	assert.Zero(t, env.queueLen(t))

	// the next pull starts over for trips
	res, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	calls := env.srv.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[1].PullSince[syncapi.EntityTrip].IsZero())
	assert.Equal(t, 1, res.Pull.Applied)
	assert.Equal(t, env.srv.row(syncapi.EntityTrip, "t1").updatedAt, env.watermark(t, syncapi.EntityTrip))

	// and a new edit builds on the server's version
	_, err = env.svc.Save(ctx, "t1", testTrip("again"))
	require.NoError(t, err)
	assert.EqualValues(t, 8, env.queued(t, syncapi.EntityTrip, "t1").ExpectedVersion())

	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 8, env.entity(t, syncapi.EntityTrip, "t1").Version)
}

func TestSync_PullNeverClobbersPendingEdit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	env.seedSynced(t, "t1", testTrip("v1"), 1)
	_, err := env.svc.Save(ctx, "t1", testTrip("mine"))
	require.NoError(t, err)

	env.srv.codes["t1"] = syncapi.CodeTransient
	remote := env.srv.put(syncapi.EntityTrip, "t1", testTrip("theirs"), 2)
	later := env.srv.put(syncapi.EntityTrip, "t2", testTrip("other"), 1)

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Push.Failed)
	assert.Equal(t, 1, res.Pull.SkippedPending)
	assert.Equal(t, 1, res.Pull.Applied)

	e := env.entity(t, syncapi.EntityTrip, "t1")
	assert.Equal(t, models.StatusPendingUpload, e.SyncStatus)
	assert.Equal(t, "mine", e.Payload.(syncapi.Trip).Notes)

	// the cursor moves on and the skipped change is remembered instead
	assert.Equal(t, later.updatedAt, env.watermark(t, syncapi.EntityTrip))
	assert.True(t, remote.updatedAt.Before(later.updatedAt))
	assert.Equal(t, 1, env.deferredCount(t, syncapi.EntityTrip))
	assert.Equal(t, "other", env.entity(t, syncapi.EntityTrip, "t2").Payload.(syncapi.Trip).Notes)
}

func TestSync_FrozenEditDoesNotStallPull(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.srv.pageSize = 2

	env.seedSynced(t, "t0", testTrip("v1"), 1)
	_, err := env.svc.Save(ctx, "t0", testTrip("mine"))
	require.NoError(t, err)

	env.srv.codes["t0"] = syncapi.CodeNotAuthorized
	env.srv.put(syncapi.EntityTrip, "t0", testTrip("theirs"), 2)
	var newest *fakeRow
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		newest = env.srv.put(syncapi.EntityTrip, id, testTrip(id), 1)
	}

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Push.Frozen)
	assert.Equal(t, 3, res.Calls)
	assert.Equal(t, 5, res.Pull.Applied)
	assert.Equal(t, 1, res.Pull.SkippedPending)

	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		assert.Equal(t, id, env.entity(t, syncapi.EntityTrip, id).Payload.(syncapi.Trip).Notes)
	}
	assert.Equal(t, newest.updatedAt, env.watermark(t, syncapi.EntityTrip))

	e := env.entity(t, syncapi.EntityTrip, "t0")
	assert.Equal(t, models.StatusPendingUpload, e.SyncStatus)
	assert.Equal(t, "mine", e.Payload.(syncapi.Trip).Notes)

	// later changes keep flowing while the op stays frozen
	t6 := env.srv.put(syncapi.EntityTrip, "t6", testTrip("t6"), 1)
	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t6", env.entity(t, syncapi.EntityTrip, "t6").Payload.(syncapi.Trip).Notes)
	assert.Equal(t, t6.updatedAt, env.watermark(t, syncapi.EntityTrip))

	// once requeued, the edit loses to the server's version and converges
	delete(env.srv.codes, "t0")
	failed, err := env.eng.FailedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NoError(t, env.eng.Requeue(ctx, failed[0].ID))

	res, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Push.Conflicts)
	assert.Zero(t, env.deferredCount(t, syncapi.EntityTrip))

	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	e = env.entity(t, syncapi.EntityTrip, "t0")
	assert.Equal(t, models.StatusSynced, e.SyncStatus)
	assert.Equal(t, "theirs", e.Payload.(syncapi.Trip).Notes)
	assert.EqualValues(t, 2, e.Version)
}

func TestSync_PullPagesWithinRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.srv.pageSize = 2

	var newest *fakeRow
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		newest = env.srv.put(syncapi.EntityTrip, id, testTrip(id), 1)
	}
	env.srv.put(syncapi.EntityVehicle, "v1", syncapi.Vehicle{UserID: "u1", Name: "van", Type: syncapi.VehicleCar}, 1)

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Calls)
	assert.Equal(t, 6, res.Pull.Applied)
	assert.Equal(t, newest.updatedAt, env.watermark(t, syncapi.EntityTrip))

	// follow-up pages only ask for the types that had more
	calls := env.srv.Calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[0].PullSince, len(syncapi.AllEntityTypes))
	for _, c := range calls[1:] {
		assert.Empty(t, c.Push)
		require.Len(t, c.PullSince, 1)
		assert.Contains(t, c.PullSince, syncapi.EntityTrip)
	}
	assert.True(t, calls[2].PullSince[syncapi.EntityTrip].After(calls[1].PullSince[syncapi.EntityTrip]))
}

func TestSync_IdempotentRetryAfterLostResponse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)

	env.srv.dropResponses = 1
	_, err = env.eng.SyncNow(ctx)
	require.Error(t, err)
	assert.Equal(t, StateBackoff, env.eng.Status().State)
	assert.Equal(t, 1, env.queued(t, syncapi.EntityTrip, "t1").RetryCount)

	env.clock.Advance(time.Minute)
	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)

	calls := env.srv.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Push[0].IdempotencyKey, calls[1].Push[0].IdempotencyKey)
	assert.Equal(t, 1, env.srv.writes)
	assert.EqualValues(t, 1, env.srv.row(syncapi.EntityTrip, "t1").version)

	e := env.entity(t, syncapi.EntityTrip, "t1")
	assert.EqualValues(t, 1, e.Version)
	assert.Equal(t, models.StatusSynced, e.SyncStatus)
	assert.Zero(t, env.queueLen(t))
}

func TestSync_OfflineTriggersBackOff(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)

	env.srv.errs = []error{client.ErrUnavailable, client.ErrUnavailable, client.ErrUnavailable}
	for i := 0; i < 3; i++ {
		_, err := env.eng.SyncNow(ctx)
		require.ErrorIs(t, err, client.ErrUnavailable)
		env.clock.Advance(DefaultBackoffCeiling)
	}

	op := env.queued(t, syncapi.EntityTrip, "t1")
	assert.Equal(t, 3, op.RetryCount)
	assert.Equal(t, 1, env.queueLen(t))
	for _, typ := range syncapi.AllEntityTypes {
		assert.True(t, env.watermark(t, typ).IsZero())
	}
	assert.Zero(t, env.srv.writes)

	calls := env.srv.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		require.Len(t, c.Push, 1)
	}

	st := env.eng.Status()
	assert.Equal(t, StateBackoff, st.State)
	assert.NotEmpty(t, st.LastError)
}

func TestSync_FailedOpWaitsForBackoff(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)

	env.srv.errs = []error{client.ErrUnavailable}
	_, err = env.eng.SyncNow(ctx)
	require.Error(t, err)

	// still inside the 4s window: nothing to push
	env.clock.Advance(time.Second)
	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	calls := env.srv.Calls()
	require.Len(t, calls, 2)
	assert.Empty(t, calls[1].Push)
	assert.Equal(t, 1, env.queueLen(t))
}

func TestSync_PermanentFailureFreezes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)
	env.srv.codes["t1"] = syncapi.CodeValidationFailed

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Push.Frozen)

	failed, err := env.eng.FailedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.True(t, failed[0].Frozen)
	assert.Contains(t, failed[0].LastError, syncapi.CodeValidationFailed)

	env.clock.Advance(time.Hour)
	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, env.srv.Calls()[1].Push)

	// operator fixes the cause and requeues
	delete(env.srv.codes, "t1")
	require.NoError(t, env.eng.Requeue(ctx, failed[0].ID))
	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, env.queueLen(t))
}

func TestSync_NotAuthenticatedRefreshesCredentials(t *testing.T) {
	ctx := context.Background()
	creds := &fakeCreds{}
	env := newTestEnv(t, Options{Credentials: creds})

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)
	env.srv.codes["t1"] = syncapi.CodeNotAuthenticated

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Push.Failed)
	assert.Equal(t, 1, creds.calls)
	assert.Equal(t, 1, env.queued(t, syncapi.EntityTrip, "t1").RetryCount)
}

func TestSync_RefreshFailureRequiresReconnect(t *testing.T) {
	ctx := context.Background()
	creds := &fakeCreds{err: client.ErrUnauthorized}
	env := newTestEnv(t, Options{Credentials: creds})

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)
	env.srv.codes["t1"] = syncapi.CodeNotAuthenticated

	_, err = env.eng.SyncNow(ctx)
	require.ErrorIs(t, err, common.ErrReconnectRequired)
	assert.Equal(t, StateBackoff, env.eng.Status().State)
}

func TestSync_UnauthorizedCallRetriedAfterRefresh(t *testing.T) {
	ctx := context.Background()
	creds := &fakeCreds{}
	env := newTestEnv(t, Options{Credentials: creds})

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)
	env.srv.errs = []error{client.ErrUnauthorized}

	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, creds.calls)
	assert.Len(t, env.srv.Calls(), 2)
	assert.Zero(t, env.queueLen(t))
}

func TestSync_BatchesInPriorityOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{BatchSize: 2})

	for _, id := range []string{"t1", "t2", "t3"} {
		_, err := env.svc.Save(ctx, id, testTrip(id))
		require.NoError(t, err)
	}
	_, err := env.svc.Save(ctx, "v1", syncapi.Vehicle{UserID: "u1", Name: "car", Type: syncapi.VehicleCar})
	require.NoError(t, err)
	_, err = env.svc.Save(ctx, "u1", syncapi.User{Email: "a@b.c", SubscriptionType: syncapi.SubscriptionFree})
	require.NoError(t, err)

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Push.Succeeded)
	assert.Equal(t, 3, res.Calls)

	calls := env.srv.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, syncapi.EntityUser, calls[0].Push[0].EntityType)
	assert.Equal(t, syncapi.EntityVehicle, calls[0].Push[1].EntityType)
	assert.Nil(t, calls[0].PullSince)
	assert.Nil(t, calls[1].PullSince)
	assert.NotNil(t, calls[2].PullSince)
	assert.Len(t, calls[2].Push, 1)
	assert.Zero(t, env.queueLen(t))
}

func TestSync_MutationDuringRoundIsRebased(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)

	mutated := false
	env.srv.before = func(req *syncapi.SyncChangesRequest) {
		if mutated {
			return
		}
		mutated = true
		env.clock.Advance(time.Second)
		_, err := env.svc.Save(ctx, "t1", testTrip("b"))
		require.NoError(t, err)
	}

	res, err := env.eng.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Push.Superseded)

	op := env.queued(t, syncapi.EntityTrip, "t1")
	assert.Equal(t, syncapi.ActionUpdate, op.Action)
	assert.EqualValues(t, 1, op.BaseVersion)
	e := env.entity(t, syncapi.EntityTrip, "t1")
	assert.Equal(t, models.StatusPendingUpload, e.SyncStatus)
	assert.EqualValues(t, 1, e.Version)

	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	e = env.entity(t, syncapi.EntityTrip, "t1")
	assert.EqualValues(t, 2, e.Version)
	assert.Equal(t, models.StatusSynced, e.SyncStatus)
	assert.Equal(t, "b", e.Payload.(syncapi.Trip).Notes)
}

func TestSync_DeletePushed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	env.srv.put(syncapi.EntityTrip, "t1", testTrip("a"), 1)
	env.seedSynced(t, "t1", testTrip("a"), 1)

	_, err := env.svc.Delete(ctx, syncapi.EntityTrip, "t1")
	require.NoError(t, err)
	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)

	assert.True(t, env.srv.row(syncapi.EntityTrip, "t1").deleted)
	e := env.entity(t, syncapi.EntityTrip, "t1")
	assert.True(t, e.Deleted)
	assert.Equal(t, models.StatusSynced, e.SyncStatus)
}

func TestSync_SingleFlight(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	env.srv.before = func(req *syncapi.SyncChangesRequest) {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := env.eng.SyncNow(ctx)
		done <- err
	}()

	<-entered
	assert.Equal(t, StateSyncing, env.eng.Status().State)
	_, err := env.eng.SyncNow(ctx)
	require.ErrorIs(t, err, common.ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, env.eng.Status().State)
}

func TestSync_CanceledBeforeCall(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.svc.Save(context.Background(), "t1", testTrip("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = env.eng.SyncNow(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, env.srv.Calls())
	assert.Zero(t, env.queued(t, syncapi.EntityTrip, "t1").RetryCount)
}

func TestObserveStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	ch, stop := env.eng.ObserveStatus()
	defer stop()
	assert.Equal(t, StateIdle, (<-ch).State)

	env.srv.errs = []error{client.ErrUnavailable}
	_, err := env.eng.SyncNow(ctx)
	require.Error(t, err)

	st := <-ch
	assert.Equal(t, StateBackoff, st.State)
	assert.Equal(t, env.clock.Now().Add(DefaultBackoffBase), st.RetryAt)

	_, err = env.eng.SyncNow(ctx)
	require.NoError(t, err)
	st = <-ch
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.LastSyncAt.IsZero())
}

func TestRun_SyncsOnNotify(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := env.svc.Save(ctx, "t1", testTrip("a"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- env.eng.Run(ctx) }()

	env.eng.Foreground()
	require.Eventually(t, func() bool {
		n, err := env.rm.Queue(env.db).Count(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
