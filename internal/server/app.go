// Package server wires the reference sync server: storage, token issuing and
// the gRPC endpoint, plus the housekeeping that runs next to it.
package server

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/flagx"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/server/config"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/memory"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/server/services"

	gs "github.com/wichigo/Motium-sub012/internal/server/grpc"
)

const (
	// idempotencyRetention outlives any client backoff schedule by far.
	idempotencyRetention = 30 * 24 * time.Hour
	purgeInterval        = time.Hour
)

var ErrUsage = errors.New("usage")

const usage = `Usage: motium-server [flags] [command]

Commands:
  serve                  run the gRPC endpoint (default)
  issue-token -user ID   print a fresh access/refresh token pair for ID
`

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	out       io.Writer

	db           *sql.DB
	syncService  *services.SyncService
	tokenService *services.TokenService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, logCloser := logging.New(logging.Options{Level: c.LogLevel})

	app := &App{config: c, logger: logger, logCloser: logCloser, out: os.Stdout}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	var (
		tx dbx.TxRunner
		rm repomanager.RepositoryManager
	)

	if app.config.DatabaseDSN == config.MemoryDSN {
		store := memory.NewStore()
		tx, rm = store, store
		app.logger.Warn(ctx, "using in-memory store, data is lost on exit")
	} else {
		db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		app.db = db

		rm = repomanager.NewPostgresRepositoryManager(app.logger.With("module", "migrations"))
		if err := rm.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("migrations error: %w", err)
		}
		tx = dbx.NewTxManager(db, nil)
	}

	app.syncService = services.NewSyncService(tx, rm, nil, app.config.PullLimit, app.logger.With("module", "sync"))
	app.tokenService = services.NewTokenService(tx, rm, app.config, nil)
	return nil
}

func (app *App) Close() error {
	var errs []error
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if app.logCloser != nil {
		errs = append(errs, app.logCloser.Close())
	}
	return errors.Join(errs...)
}

// Execute runs the command found in args, which are the raw command-line
// arguments without the program name.
func (app *App) Execute(ctx context.Context, args []string) error {
	pos := flagx.Positionals(args, config.ValueFlags)
	if len(pos) == 0 {
		return app.Run(ctx)
	}

	switch pos[0] {
	case "serve":
		return app.Run(ctx)
	case "issue-token":
		return app.issueToken(ctx, args)
	case "help":
		fmt.Fprint(app.out, usage)
		return nil
	}

	fmt.Fprint(app.out, usage)
	return fmt.Errorf("%w: unknown command %q", ErrUsage, pos[0])
}

func (app *App) issueToken(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user", "", "user id")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-user"})); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *userID == "" {
		return fmt.Errorf("%w: issue-token needs -user", ErrUsage)
	}

	pair, err := app.tokenService.Issue(ctx, *userID)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "access_token:  %s\nrefresh_token: %s\n", pair.AccessToken, pair.RefreshToken)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.syncService.PurgeIdempotency(ctx, idempotencyRetention)
			if err != nil {
				app.logger.Error(ctx, "idempotency purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "idempotency keys purged", "count", n)
			}
		}
	}
}

// Run serves until ctx is done, a signal arrives or the endpoint fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.syncService, app.tokenService)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.purgeLoop(ctx)
	}()

	err := s.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "grpc server stopped", "error", err)
	}

	cancelFunc()
	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")

	return err
}
