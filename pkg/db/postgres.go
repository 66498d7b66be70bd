package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	psqlmigrator "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver with database/sql
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"connector-sync/internal/config"
	"connector-sync/pkg/db/migrations"
	"connector-sync/pkg/log"
)

//nolint:gochecknoglobals
var defaultHealthCheckPeriod = 1 * time.Minute

const healthCheckTimeout = 5 * time.Second

// PostgresDatastore owns the connection pool backing the credential and document stores.
type PostgresDatastore struct {
	DB                  *sqlx.DB
	migrationSource     migrations.MigrationSource
	healthCheckInterval *time.Ticker
	stopHealthCheckCh   chan struct{}
	healthCheckDone     sync.WaitGroup
	healthy             atomic.Bool
	logger              zerolog.Logger
}

type poolConfig struct {
	MaxConns        int
	MinimumConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func NewPostgresDatastore(
	ctx context.Context,
	cfg *config.Postgres,
	migrationSource migrations.MigrationSource,
) (*PostgresDatastore, error) {
	connectionString := buildPostgresDSN(cfg)
	redactedConnectionString := redactDSN(connectionString)

	log.Logger.Info().Str("dsn", redactedConnectionString).Msg("Attempting to connect to PostgreSQL")

	db, err := sqlx.ConnectContext(ctx, "pgx", connectionString)
	if err != nil {
		log.Logger.Error().Err(err).Str("dsn", redactedConnectionString).Msg("Failed to connect to postgres")
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pool := defaultPoolConfig()
	pool.MaxConns = cfg.MaxConnections
	setPoolConfig(pool, db)

	log.Logger.Info().Str("dsn", redactedConnectionString).Msg("Successfully connected to PostgreSQL")

	psqlDB := &PostgresDatastore{
		DB:                  db,
		migrationSource:     migrationSource,
		healthCheckInterval: time.NewTicker(defaultHealthCheckPeriod),
		stopHealthCheckCh:   make(chan struct{}),
		logger: log.Logger.With().
			Str("component", "postgres_datastore").
			Logger(),
	}
	psqlDB.healthy.Store(true)

	if err := psqlDB.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	psqlDB.startHealthCheck()
	return psqlDB, nil
}

// Healthy reports the result of the last periodic ping.
func (p *PostgresDatastore) Healthy() bool {
	return p.healthy.Load()
}

// Ping checks the database synchronously and updates the health flag.
func (p *PostgresDatastore) Ping(ctx context.Context) error {
	err := p.DB.PingContext(ctx)
	p.healthy.Store(err == nil)
	return err
}

func (p *PostgresDatastore) Close() error {
	if p.healthCheckInterval != nil && p.stopHealthCheckCh != nil {
		select {
		case p.stopHealthCheckCh <- struct{}{}:
			p.logger.Info().Msg("Waiting for PostgreSQL health check to finish...")
			p.healthCheckDone.Wait()
		default:
		}
	}
	if p.DB != nil {
		p.logger.Info().Msg("Closing PostgreSQL connection")
		return p.DB.Close()
	}
	return nil
}

func redactDSN(dsnStr string) string {
	parsedDSN, err := url.Parse(dsnStr)
	if err != nil {
		return "<invalid dsn>"
	}

	if parsedDSN.User != nil {
		parsedDSN.User = url.UserPassword(parsedDSN.User.Username(), "xxxxx")
	}
	return parsedDSN.String()
}

func (p *PostgresDatastore) initSchema() error {
	p.logger.Info().Msg("Applying embedded schema migrations")
	d, err := p.migrationSource.GetSourceDriver()
	if err != nil {
		return err
	}

	driver, err := psqlmigrator.WithInstance(p.DB.DB, &psqlmigrator.Config{})
	if err != nil {
		p.logger.Error().Err(err).Msg("Could not create postgres driver for migrate")
		return fmt.Errorf("could not create postgres driver for migrate: %w", err)
	}

	m, err := migrate.NewWithInstance(p.migrationSource.GetSourceType(), d, p.DB.DriverName(), driver)
	if err != nil {
		p.logger.Error().Err(err).Msg("Could not create migrate instance")
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if upErr := m.Up(); upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		p.logger.Error().Err(upErr).Msg("Failed to apply migrations")
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Could not read migration version")
	} else {
		p.logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema is up to date")
	}
	return nil
}

func buildPostgresDSN(cfg *config.Postgres) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Path:   cfg.DBName,
	}
	query := dsn.Query()
	query.Set("sslmode", sslMode)
	dsn.RawQuery = query.Encode()

	return dsn.String()
}

//nolint:mnd
func defaultPoolConfig() poolConfig {
	return poolConfig{
		MinimumConns:    5,
		ConnMaxLifetime: 15 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func setPoolConfig(cfg poolConfig, db *sqlx.DB) {
	db.SetMaxIdleConns(cfg.MinimumConns)
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Logger.Debug().
		Int("max_open", cfg.MaxConns).
		Int("max_idle", cfg.MinimumConns).
		Dur("max_lifetime", cfg.ConnMaxLifetime).
		Dur("max_idle_time", cfg.ConnMaxIdleTime).
		Msg("Configured PostgreSQL connection pool")
}

func (p *PostgresDatastore) startHealthCheck() {
	p.healthCheckDone.Add(1)
	go func() {
		for {
			select {
			case <-p.healthCheckInterval.C:
				ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
				if err := p.Ping(ctx); err != nil {
					p.logger.Warn().Err(err).Msg("Database health check failed")
				}
				cancel()
			case <-p.stopHealthCheckCh:
				p.healthCheckInterval.Stop()
				close(p.stopHealthCheckCh)
				p.healthCheckInterval = nil
				p.stopHealthCheckCh = nil
				p.logger.Info().Msg("Stopped PostgreSQL health check")
				p.healthCheckDone.Done()
				return
			}
		}
	}()

	p.logger.Info().Dur("interval", defaultHealthCheckPeriod).Msg("Started database health check")
}
