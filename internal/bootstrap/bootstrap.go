package bootstrap

import (
	"context"
	"fmt"

	"historysync/internal/application/service/fetch"
	appinstruments "historysync/internal/application/service/instruments"
	"historysync/internal/application/service/records"
	"historysync/internal/application/service/syncer"
	"historysync/internal/config"
	"historysync/internal/domain/entity/syncrun"
	"historysync/internal/domain/interfaces"
	"historysync/internal/infrastructure/broker"
	"historysync/internal/infrastructure/cache"
	"historysync/internal/infrastructure/journal"
	"historysync/internal/infrastructure/mse"
	"historysync/internal/infrastructure/store/csvstore"
	"historysync/internal/infrastructure/store/pgstore"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App holds the wired services shared by the binaries.
type App struct {
	Config      *config.Config
	Logger      *logrus.Logger
	Source      *mse.Client
	Store       interfaces.StoreRepository
	Instruments *appinstruments.Service
	Records     *records.Service
	Runner      *syncer.Runner
	Journal     *journal.Repository
	Redis       *redis.Client

	closers []func()
}

// Options switch off the collaborators a binary does not need.
type Options struct {
	WithoutPublisher bool
	WithoutJournal   bool
}

// Build connects every configured backend. Optional backends (Redis, the
// journal, the event publisher) are skipped when their settings are empty.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Store = store
	app.closers = append(app.closers, store.Close)

	if cfg.Redis.Addr != "" {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		client := app.Redis
		app.closers = append(app.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	app.Source = mse.NewClient(mse.Config{
		BaseURL:    cfg.Source.BaseURL,
		Timeout:    cfg.Source.Timeout,
		RetryCount: cfg.Source.RetryCount,
		RetryWait:  cfg.Source.RetryWait,
		SeedCode:   cfg.Source.SeedCode,
	}, logger)
	lister := cache.NewInstrumentLister(app.Source, app.Redis, cfg.Cache.InstrumentsTTL, logger)
	app.Instruments = appinstruments.NewService(lister, logger)
	app.Records = records.NewService(store)

	scheduler := fetch.NewScheduler(fetch.Config{
		MaxConcurrency: cfg.Sync.Concurrency,
		TaskTimeout:    cfg.Sync.TaskTimeout,
	}, logger)
	orchestrator := syncer.NewOrchestrator(syncer.Options{
		LookbackYears:  cfg.Sync.LookbackYears,
		WindowDays:     cfg.Sync.WindowDays,
		ReservedPrefix: cfg.Sync.ReservedPrefix,
		Allow:          cfg.Sync.Allow,
		Location:       cfg.Sync.Location(),
	}, app.Source, scheduler, logger)

	var runnerOpts []syncer.RunnerOption
	if !opts.WithoutJournal && cfg.Postgres.DSN != "" {
		j, err := journal.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		app.closers = append(app.closers, j.Close)
		if err := j.Migrate(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		app.Journal = j
		runnerOpts = append(runnerOpts, syncer.WithJournal(j))
	}
	if !opts.WithoutPublisher && cfg.RabbitMQ.URL != "" {
		publisher, err := broker.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.EventsExchange, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open publisher: %w", err)
		}
		app.closers = append(app.closers, publisher.Close)
		runnerOpts = append(runnerOpts, syncer.WithPublisher(publisher))
	}

	if app.Redis != nil {
		client := app.Redis
		runnerOpts = append(runnerOpts, syncer.WithAfterRun(func(ctx context.Context, summary syncrun.Summary) {
			if summary.Status == syncrun.StatusFailedToStart {
				return
			}
			if err := cache.InvalidateResponses(ctx, client); err != nil {
				logger.WithError(err).Warn("cached responses not invalidated")
			}
		}))
	}

	app.Runner = syncer.NewRunner(store, app.Instruments, orchestrator, logger, runnerOpts...)
	return app, nil
}

// Close releases everything Build opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (interfaces.StoreRepository, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		repo, err := pgstore.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		return repo, nil
	default:
		store, err := csvstore.New(cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open csv store: %w", err)
		}
		return store, nil
	}
}
