package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"connector-sync/internal/api"
	"connector-sync/internal/config"
	"connector-sync/internal/credentials"
	"connector-sync/internal/events"
	"connector-sync/internal/lease"
	repo "connector-sync/internal/repository"
	"connector-sync/internal/repository/memory"
	psqlRepo "connector-sync/internal/repository/postgres"
	"connector-sync/internal/service/orchestrator"
	"connector-sync/internal/service/resourcematching"
	"connector-sync/internal/source"
	"connector-sync/internal/source/catalog"
	"connector-sync/pkg/db"
	"connector-sync/pkg/db/migrations"
	"connector-sync/pkg/httpclient"
	"connector-sync/pkg/log"
)

const tokenClientTimeout = 30 * time.Second

// Wiring builds the long-lived components from configuration. Each component is built
// at most once; Close releases whatever was built.
type Wiring struct {
	config *config.Config
	logger zerolog.Logger

	storeOnce sync.Once
	store     repo.Store
	datastore *db.PostgresDatastore
	storeErr  error

	lockerOnce sync.Once
	locker     lease.Locker
	redis      *lease.RedisLocker
	lockerErr  error

	publisherOnce sync.Once
	publisher     events.Publisher
}

func NewWiring(cfg *config.Config) *Wiring {
	return &Wiring{
		config: cfg,
		logger: log.Logger.With().Str("component", "wiring").Logger(),
	}
}

func (w *Wiring) GetConfig() *config.Config {
	return w.config
}

func (w *Wiring) InitStore(ctx context.Context) (repo.Store, error) {
	w.storeOnce.Do(func() {
		if w.config.Storage == config.StorageMemory {
			w.logger.Warn().Msg("Using in-memory storage, nothing survives a restart")
			w.store = memory.NewStore()
			return
		}

		datastore, err := db.NewPostgresDatastore(ctx, w.config.Postgres, migrations.NewPostgresMigration())
		if err != nil {
			w.storeErr = fmt.Errorf("failed to create postgres datastore: %w", err)
			return
		}
		w.datastore = datastore
		w.store = psqlRepo.NewRepository(datastore)
	})
	return w.store, w.storeErr
}

func (w *Wiring) InitRegistry() (*source.Registry, error) {
	return catalog.NewRegistry(w.config.Sources)
}

func (w *Wiring) InitResourceMatcher() *resourcematching.RuleResourceMatcher {
	return resourcematching.NewRuleResourceMatcher(&w.config.Sync)
}

func (w *Wiring) InitLocker(ctx context.Context) (lease.Locker, error) {
	w.lockerOnce.Do(func() {
		if !w.config.Redis.Enabled {
			w.locker = lease.NewLocalLocker()
			return
		}

		locker, err := lease.NewRedisLocker(ctx, w.config.Redis)
		if err != nil {
			w.lockerErr = err
			return
		}
		w.redis = locker
		w.locker = locker
	})
	return w.locker, w.lockerErr
}

func (w *Wiring) InitPublisher() events.Publisher {
	w.publisherOnce.Do(func() {
		if !w.config.Kafka.Enabled {
			w.publisher = events.Noop{}
			return
		}
		w.publisher = events.NewKafkaPublisher(w.config.Kafka)
	})
	return w.publisher
}

func (w *Wiring) InitOrchestrator(ctx context.Context) (*orchestrator.SyncOrchestrator, error) {
	store, err := w.InitStore(ctx)
	if err != nil {
		return nil, err
	}
	registry, err := w.InitRegistry()
	if err != nil {
		return nil, err
	}
	locker, err := w.InitLocker(ctx)
	if err != nil {
		return nil, err
	}

	return orchestrator.NewSyncOrchestrator(orchestrator.Dependencies{
		Store:       store,
		Registry:    registry,
		Credentials: credentials.NewManager(store, httpclient.New(tokenClientTimeout, 0)),
		Matcher:     w.InitResourceMatcher(),
		Locker:      locker,
		Publisher:   w.InitPublisher(),
	}, orchestrator.SettingsFromConfig(w.config)), nil
}

func (w *Wiring) InitAPIHandler(ctx context.Context) (*api.Handler, error) {
	syncer, err := w.InitOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	return api.NewHandler(syncer, w.store, w.healthy), nil
}

func (w *Wiring) healthy() bool {
	if w.datastore == nil {
		return true
	}
	return w.datastore.Healthy()
}

func (w *Wiring) Close() error {
	var errs []error
	if w.publisher != nil {
		errs = append(errs, w.publisher.Close())
	}
	if w.redis != nil {
		errs = append(errs, w.redis.Close())
	}
	if w.store != nil {
		errs = append(errs, w.store.Close())
	}
	return errors.Join(errs...)
}
