// Package server wires configuration, storage, object storage, metrics and
// the sync services together and runs the HTTP server until shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/config"
	"github.com/dmitrijs2005/journalsync/internal/server/httpserver"
	"github.com/dmitrijs2005/journalsync/internal/server/metrics"
	"github.com/dmitrijs2005/journalsync/internal/server/objectstore"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/journalsync/internal/server/services"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	services httpserver.Services
	metrics  *metrics.Metrics
}

var (
	openPostgres = repomanager.OpenPostgres

	newObjectStore = func(ctx context.Context, opts objectstore.Options) (objectstore.Store, error) {
		return objectstore.NewS3Store(ctx, opts)
	}
)

func newRepositoryManager(ctx context.Context, c *config.Config, clock timex.Clock) (repomanager.RepositoryManager, error) {
	switch c.StorageBackend {
	case config.BackendPostgres:
		db, err := openPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return repomanager.NewPostgresRepositoryManager(db, clock)
	default:
		return repomanager.NewMemoryRepositoryManager(clock)
	}
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	clock := timex.SystemClock

	repos, err := newRepositoryManager(ctx, c, clock)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	var store objectstore.Store
	if c.UseObjectStore() {
		store, err = newObjectStore(ctx, objectstore.Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			_ = repos.Close()
			return nil, fmt.Errorf("object store init error: %w", err)
		}
	}

	m, err := metrics.NewMetrics()
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	svc := httpserver.Services{
		Journals:     services.NewRecordService[*models.Journal](models.EntityJournals, repos.Journals(), clock, m, logger),
		Content:      services.NewRecordService[*models.Content](models.EntityContent, repos.Content(), clock, m, logger),
		Associations: services.NewAssociationService(repos.Associations(), clock, m, logger),
		Media:        services.NewMediaService(repos.Media(), store, clock, m, logger),
		Status:       services.NewStatusService(repos, clock),
	}

	logger.Info(ctx, "storage ready", "backend", c.StorageBackend, "object_store", store != nil)
	return &App{config: c, logger: logger, repos: repos, services: svc, metrics: m}, nil
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

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpserver.NewServer(app.config.HTTPAddr, app.services, app.metrics, app.config.SecretKey, app.config.ShutdownTimeout, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "close storage", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
