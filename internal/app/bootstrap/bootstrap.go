package bootstrap

import (
	"context"
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wikilinks/app/internal/auth"
	"wikilinks/app/internal/cache"
	"wikilinks/app/internal/config"
	"wikilinks/app/internal/content"
	"wikilinks/app/internal/db"
	"wikilinks/app/internal/events"
	apphttp "wikilinks/app/internal/http"
	"wikilinks/app/internal/jobs"
	"wikilinks/app/internal/wiki"
)

const cachePruneSchedule = "@every 1m"

type Dependencies struct {
	Config    config.Config
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
}

// Store is the wiki domain over an open, migrated database.
type Store struct {
	Database   *gorm.DB
	Service    wiki.Service
	Reconciler *wiki.Reconciler
	Bus        *events.Bus

	closers []func() error
}

// Close releases everything the store opened, database last.
func (s *Store) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Result struct {
	Store      *Store
	HTTPServer *apphttp.Server
	Scheduler  *jobs.Scheduler
	Cleanup    func() error
}

// Migrate opens the database and applies every schema migration.
func Migrate(ctx context.Context, deps Dependencies) error {
	database, err := openDatabase(deps)
	if err != nil {
		return err
	}

	migrateErr := migrate(ctx, database, deps.Logger)
	if closeErr := db.Close(database); closeErr != nil {
		return errors.Join(migrateErr, eris.Wrap(closeErr, "closing database"))
	}
	return migrateErr
}

// OpenStore opens the database, migrates it and wires the wiki domain: repositories,
// the event bus with its reconciler, and the optional Kafka sink.
func OpenStore(ctx context.Context, deps Dependencies) (*Store, error) {
	database, err := openDatabase(deps)
	if err != nil {
		return nil, err
	}

	store := &Store{Database: database}
	store.closers = append(store.closers, func() error { return db.Close(database) })

	closeOnError := func(wrapper error) (*Store, error) {
		if closeErr := store.Close(); closeErr != nil && deps.Logger != nil {
			deps.Logger.WithError(closeErr).Error("closing store after bootstrap failure")
		}
		return nil, wrapper
	}

	if err := migrate(ctx, database, deps.Logger); err != nil {
		return closeOnError(err)
	}

	entries, err := wiki.NewEntryRepository(database, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating entry repository"))
	}
	pending, err := wiki.NewPendingRepository(database, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating pending link repository"))
	}
	links, err := wiki.NewLinkRepository(database, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating content link repository"))
	}
	titles, err := content.NewRepository(database)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating content repository"))
	}

	store.Bus = events.NewBus(deps.Logger, deps.SentryHub)

	store.Reconciler, err = wiki.NewReconciler(entries, pending, deps.Logger, deps.SentryHub)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating reconciler"))
	}
	store.Reconciler.Register(store.Bus)

	if brokers := deps.Config.Events.KafkaBrokers; len(brokers) > 0 {
		sink, err := events.NewKafkaSink(brokers, deps.Config.Events.KafkaTopic)
		if err != nil {
			return closeOnError(eris.Wrap(err, "creating kafka sink"))
		}
		store.Bus.SubscribeAll("kafka", sink.Handle)
		store.closers = append(store.closers, sink.Close)

		deps.Logger.WithFields(logrus.Fields{
			"brokers": brokers,
			"topic":   deps.Config.Events.KafkaTopic,
		}).Info("forwarding wiki events to kafka")
	}

	store.Service, err = wiki.NewService(wiki.ServiceDependencies{
		Entries:   entries,
		Pending:   pending,
		Links:     links,
		Titles:    titles,
		Publisher: store.Bus,
		Logger:    deps.Logger,
		SentryHub: deps.SentryHub,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating wiki service"))
	}

	return store, nil
}

// Build composes the full server: the store, response cache, authenticator, HTTP
// transport and background jobs.
func Build(ctx context.Context, deps Dependencies) (Result, error) {
	store, err := OpenStore(ctx, deps)
	if err != nil {
		return Result{}, err
	}

	closeOnError := func(wrapper error) (Result, error) {
		if closeErr := store.Close(); closeErr != nil && deps.Logger != nil {
			deps.Logger.WithError(closeErr).Error("closing store after bootstrap failure")
		}
		return Result{}, wrapper
	}

	scheduler := jobs.NewScheduler(deps.Logger, deps.SentryHub)

	responseCache, err := buildCache(ctx, deps, store, scheduler)
	if err != nil {
		return closeOnError(err)
	}

	authenticator, err := buildAuthenticator(ctx, deps)
	if err != nil {
		return closeOnError(err)
	}

	httpServer, err := apphttp.NewServer(apphttp.Options{
		WikiService:   store.Service,
		Database:      store.Database,
		Cache:         responseCache,
		Authenticator: authenticator,
		Logger:        deps.Logger,
		SentryHub:     deps.SentryHub,
		Development:   deps.Config.IsDevelopment(),
		RateLimiter: apphttp.RateLimiterSettings{
			Burst:             deps.Config.RateLimit.Burst,
			RequestsPerSecond: deps.Config.RateLimit.RequestsPerSecond,
			ClientTTL:         deps.Config.RateLimit.ClientTTL,
		},
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "initialising http server"))
	}
	store.closers = append(store.closers, func() error {
		httpServer.Close()
		return nil
	})

	if schedule := deps.Config.ReconcileSchedule; schedule != "" {
		if err := scheduler.Add(schedule, jobs.ReconcileJob{Sweeper: store.Reconciler, Reads: httpServer}); err != nil {
			return closeOnError(eris.Wrap(err, "scheduling reconcile sweep"))
		}
	}

	return Result{
		Store:      store,
		HTTPServer: httpServer,
		Scheduler:  scheduler,
		Cleanup:    store.Close,
	}, nil
}

func openDatabase(deps Dependencies) (*gorm.DB, error) {
	database, err := db.Open(db.Options{
		Driver: deps.Config.DBDriver,
		Path:   deps.Config.DBPath,
		DSN:    deps.Config.DBDSN,
		Logrus: deps.Logger,
	})
	if err != nil {
		return nil, eris.Wrap(err, "opening database")
	}
	return database, nil
}

func migrate(ctx context.Context, database *gorm.DB, logger *logrus.Logger) error {
	if err := content.Migrate(ctx, database, logger); err != nil {
		return eris.Wrap(err, "running content migrations")
	}
	if err := wiki.Migrate(ctx, database, logger); err != nil {
		return eris.Wrap(err, "running wiki migrations")
	}
	return nil
}

func buildCache(ctx context.Context, deps Dependencies, store *Store, scheduler *jobs.Scheduler) (cache.Cache, error) {
	settings := deps.Config.Cache

	switch settings.Backend {
	case config.CacheRedis:
		redisCache, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
			TTL:      settings.TTL,
		})
		if err != nil {
			return nil, eris.Wrap(err, "connecting to redis cache")
		}
		store.closers = append(store.closers, redisCache.Close)
		return redisCache, nil
	case config.CacheNone:
		return cache.Nop{}, nil
	default:
		memory := cache.NewMemory(settings.TTL)
		if err := scheduler.Add(cachePruneSchedule, jobs.CachePruneJob{Cache: memory, Logger: deps.Logger}); err != nil {
			return nil, eris.Wrap(err, "scheduling cache pruning")
		}
		return memory, nil
	}
}

func buildAuthenticator(ctx context.Context, deps Dependencies) (auth.Authenticator, error) {
	settings := deps.Config.Auth
	if !settings.Enabled {
		deps.Logger.WithField("header", auth.UserHeader).Warn("authentication is disabled; mutating routes trust the user header")
		return auth.Header{}, nil
	}

	if settings.Issuer == "" || settings.ClientID == "" {
		return nil, eris.New("AUTH_ISSUER and AUTH_CLIENT_ID are required when AUTH_ENABLED is true")
	}

	verifier, err := auth.NewOIDC(ctx, settings.Issuer, settings.ClientID)
	if err != nil {
		return nil, eris.Wrap(err, "initialising oidc verifier")
	}
	return verifier, nil
}
