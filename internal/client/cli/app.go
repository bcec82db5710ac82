package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wichigo/Motium-sub012/internal/client/client"
	"github.com/wichigo/Motium-sub012/internal/client/config"
	"github.com/wichigo/Motium-sub012/internal/client/deadletter"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/client/services"
	"github.com/wichigo/Motium-sub012/internal/client/storage"
	"github.com/wichigo/Motium-sub012/internal/client/syncer"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/filex"
	"github.com/wichigo/Motium-sub012/internal/logging"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	in        io.Reader
	out       io.Writer

	db        *sql.DB
	rm        repomanager.RepositoryManager
	api       *client.GRPCClient
	auth      services.AuthService
	mutations services.MutationService
	engine    *syncer.Engine
	watcher   *syncer.OnlineWatcher
	exporter  *deadletter.Exporter
	deviceID  string
}

// NewApp opens the local store and builds the sync stack on top of it.
// Nothing touches the network until a command needs it.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, logCloser := logging.New(logging.Options{Level: c.LogLevel, File: c.LogFile})

	app := &App{config: c, logger: logger, logCloser: logCloser, in: os.Stdin, out: os.Stdout}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config
	clock := timex.SystemClock{}

	dsn := c.DBPath
	if dsn != storage.MemoryDSN {
		path, err := filex.EnsureParentDir(c.DBPath)
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		dsn = storage.DSN(path)
	}

	db, err := storage.Open(ctx, dsn, storage.WithLogger(app.logger.With("module", "storage")))
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.rm = repomanager.NewSQLiteRepositoryManager()

	app.deviceID, err = app.rm.Metadata(db).DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}

	app.api, err = client.NewGRPCClient(c.ServerEndpointAddr, client.Options{
		DeviceID:       app.deviceID,
		RequestTimeout: c.RequestTimeout,
		Logger:         app.logger,
	})
	if err != nil {
		return fmt.Errorf("grpc client init error: %w", err)
	}

	app.auth = services.NewAuthService(app.api, app.rm.Metadata(db), services.AuthOptions{
		Clock:  clock,
		Logger: app.logger,
	})
	app.api.UseTokenSource(app.auth)

	app.engine = syncer.NewEngine(db, dbx.NewTxManager(db, nil), app.rm, app.api, syncer.Options{
		BatchSize: c.BatchSize,
		Policy: syncer.BackoffPolicy{
			Base:       c.BackoffBase,
			Ceiling:    c.BackoffCeiling,
			MaxRetries: c.MaxRetries,
		},
		Clock:       clock,
		Logger:      app.logger,
		Credentials: app.auth,
	})

	app.mutations = services.NewMutationService(db, dbx.NewTxManager(db, nil), app.rm, clock, app.engine, app.logger)
	app.watcher = syncer.NewOnlineWatcher(app.auth, c.OnlineCheckInterval, app.engine.Notify, app.logger)

	if c.DeadLetter.Bucket != "" {
		s3c, err := deadletter.NewS3Client(ctx, deadletter.S3Config{
			Region:       c.DeadLetter.Region,
			AccessKey:    c.DeadLetter.AccessKey,
			SecretKey:    c.DeadLetter.SecretKey,
			BaseEndpoint: c.DeadLetter.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("dead-letter init error: %w", err)
		}
		app.exporter = deadletter.NewExporter(s3c, app.engine, c.DeadLetter.Bucket, c.DeadLetter.Prefix, clock, app.logger)
	}

	return nil
}

// Close releases the connection, the database and the log file.
func (app *App) Close() error {
	var errs []error
	if app.api != nil {
		errs = append(errs, app.api.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if app.logCloser != nil {
		errs = append(errs, app.logCloser.Close())
	}
	return errors.Join(errs...)
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

// Run keeps the store in sync until ctx is done or a signal arrives. A
// round runs right away, after every local change, every SyncInterval, and
// whenever the server comes back after being unreachable.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)
	app.logger.Info(ctx, "Starting sync client...", "device_id", app.deviceID, "server", app.config.ServerEndpointAddr)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.watcher.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		syncer.RunTicker(ctx, app.config.SyncInterval, app.engine.Notify)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		statuses, cancel := app.engine.ObserveStatus()
		defer cancel()
		for {
			select {
			case s := <-statuses:
				app.logger.Debug(ctx, "sync status", "state", s.State, "last_sync_at", s.LastSyncAt, "retry_at", s.RetryAt)
			case <-ctx.Done():
				return
			}
		}
	}()

	app.engine.Foreground()
	err := app.engine.Run(ctx)

	cancelFunc()
	wg.Wait()
	app.logger.Info(context.Background(), "Sync client stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
