package cli

import (
	"context"
	"errors"
	"fmt"
)

var ErrUsage = errors.New("usage")

const usage = `Usage: motium-sync [flags] <command> [args]

Commands:
  run                          keep the local store in sync (default)
  sync                         run one sync round and exit
  status                       show queue and last sync
  failed                       list operations that stopped retrying
  requeue <op-id>              retry a failed operation
  export-failed                upload failed operations to the dead-letter bucket
  login <access> <refresh>     store a token pair issued by the server
  logout                       forget stored tokens
  save <type> <file|-> [id]    record a local change from a JSON document
  delete <type> <id>           record a local delete
  list <type>                  list local entities of a type
`

// Execute runs the command named by args[0]. No arguments means "run".
func (app *App) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return app.Run(ctx)
	}

	cmd, args := args[0], args[1:]

	switch cmd {
	case "run":
		return app.Run(ctx)
	case "sync":
		return app.syncOnce(ctx)
	case "status":
		return app.status(ctx)
	case "failed":
		return app.failed(ctx)
	case "requeue":
		if len(args) != 1 {
			return fmt.Errorf("%w: requeue <op-id>", ErrUsage)
		}
		return app.requeue(ctx, args[0])
	case "export-failed":
		return app.exportFailed(ctx)
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("%w: login <access> <refresh>", ErrUsage)
		}
		return app.login(ctx, args[0], args[1])
	case "logout":
		return app.logout(ctx)
	case "save":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("%w: save <type> <file|-> [id]", ErrUsage)
		}
		id := ""
		if len(args) == 3 {
			id = args[2]
		}
		return app.save(ctx, args[0], args[1], id)
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("%w: delete <type> <id>", ErrUsage)
		}
		return app.delete(ctx, args[0], args[1])
	case "list":
		if len(args) != 1 {
			return fmt.Errorf("%w: list <type>", ErrUsage)
		}
		return app.list(ctx, args[0])
	case "help":
		fmt.Fprint(app.out, usage)
		return nil
	default:
		fmt.Fprint(app.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}
