package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/client/deadletter"
)

func (app *App) syncOnce(ctx context.Context) error {
	res, err := app.engine.SyncNow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "pushed %d (conflicts %d, failed %d, frozen %d), pulled %d, deferred %d\n",
		res.Push.Succeeded, res.Push.Conflicts, res.Push.Failed, res.Push.Frozen,
		res.Pull.Applied, res.Pull.SkippedPending)
	return nil
}

func (app *App) status(ctx context.Context) error {
	pending, err := app.engine.PendingCount(ctx)
	if err != nil {
		return err
	}
	failed, err := app.engine.FailedOperations(ctx)
	if err != nil {
		return err
	}
	last, err := app.rm.Metadata(app.db).LastSyncAt(ctx)
	if err != nil {
		return err
	}

	lastSync := "never"
	if !last.IsZero() {
		lastSync = last.Format(time.RFC3339)
	}

	fmt.Fprintf(app.out, "device:    %s\n", app.deviceID)
	fmt.Fprintf(app.out, "pending:   %d\n", pending)
	fmt.Fprintf(app.out, "failed:    %d\n", len(failed))
	fmt.Fprintf(app.out, "last sync: %s\n", lastSync)
	return nil
}

func (app *App) failed(ctx context.Context) error {
	ops, err := app.engine.FailedOperations(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Fprintln(app.out, "no failed operations")
		return nil
	}
	for _, op := range ops {
		state := "exhausted"
		if op.Frozen {
			state = "frozen"
		}
		fmt.Fprintf(app.out, "%s %s %s/%s retries=%d %s: %s\n",
			op.ID, op.Action, op.EntityType, op.EntityID, op.RetryCount, state, op.LastError)
	}
	return nil
}

func (app *App) requeue(ctx context.Context, opID string) error {
	if err := app.engine.Requeue(ctx, opID); err != nil {
		return fmt.Errorf("requeue %s: %w", opID, err)
	}
	fmt.Fprintf(app.out, "operation %s requeued\n", opID)
	return nil
}

func (app *App) exportFailed(ctx context.Context) error {
	if app.exporter == nil {
		return deadletter.ErrNotConfigured
	}
	key, n, err := app.exporter.Export(ctx, app.deviceID)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(app.out, "no failed operations")
		return nil
	}
	fmt.Fprintf(app.out, "exported %d operations to s3://%s/%s\n", n, app.config.DeadLetter.Bucket, key)
	return nil
}
