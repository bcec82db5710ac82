package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

// save records a local create or update. The document is read from source,
// or from stdin when source is "-".
func (app *App) save(ctx context.Context, typ, source, id string) error {
	t, err := syncapi.ParseEntityType(typ)
	if err != nil {
		return err
	}

	var raw []byte
	if source == "-" {
		raw, err = io.ReadAll(app.in)
	} else {
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", source, err)
	}

	p, err := syncapi.DecodePayload(t, raw)
	if err != nil {
		return err
	}

	op, err := app.mutations.Save(ctx, id, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "%s %s %s queued as %s\n", op.Action, op.EntityType, op.EntityID, op.ID)
	return nil
}

func (app *App) delete(ctx context.Context, typ, id string) error {
	t, err := syncapi.ParseEntityType(typ)
	if err != nil {
		return err
	}
	op, err := app.mutations.Delete(ctx, t, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "%s %s %s queued as %s\n", op.Action, op.EntityType, op.EntityID, op.ID)
	return nil
}

func (app *App) list(ctx context.Context, typ string) error {
	t, err := syncapi.ParseEntityType(typ)
	if err != nil {
		return err
	}
	items, err := app.mutations.List(ctx, t)
	if err != nil {
		return err
	}
	for _, e := range items {
		updated := e.LocalUpdatedAt
		if e.ServerUpdatedAt.After(updated) {
			updated = e.ServerUpdatedAt
		}
		fmt.Fprintf(app.out, "%s v%d %s %s\n", e.ID, e.Version, e.SyncStatus, updated.Format(time.RFC3339))
	}
	return nil
}
