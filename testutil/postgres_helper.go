package testutil

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"connector-sync/internal/config"
)

const (
	pgUser     = "testuser"
	pgPassword = "testpassword"
	pgDatabase = "test_db"
)

type PostgresHelper struct {
	Container *postgres.PostgresContainer
	Config    *config.Postgres
	hostPort  int
}

func NewPostgresContainer(ctx context.Context) (*PostgresHelper, error) {
	hostPort, err := getPortManager().reservePort()
	if err != nil {
		return nil, err
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase(pgDatabase),
		postgres.WithUsername(pgUser),
		postgres.WithPassword(pgPassword),
		postgres.WithSQLDriver("pgx"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(1*time.Minute),
			wait.ForExposedPort().WithStartupTimeout(1*time.Minute),
		),
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
			hostConfig.PortBindings = nat.PortMap{
				nat.Port("5432/tcp"): []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}},
			}
		}),
	)
	if err != nil {
		getPortManager().releasePort(hostPort)
		return nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	return &PostgresHelper{
		Container: pgContainer,
		Config: &config.Postgres{
			Address:  host,
			Port:     hostPort,
			Username: pgUser,
			Password: pgPassword,
			DBName:   pgDatabase,
			SSLMode:  "disable",
		},
		hostPort: hostPort,
	}, nil
}

// ExecutePsqlCommand runs a SQL statement inside the container with psql.
func (p *PostgresHelper) ExecutePsqlCommand(ctx context.Context, statement string) error {
	code, _, err := p.Container.Exec(ctx, []string{"psql", "-U", pgUser, "-d", pgDatabase, "-c", statement})
	if err != nil {
		return fmt.Errorf("failed to run psql: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("psql exited with code %d", code)
	}
	return nil
}

func (p *PostgresHelper) Terminate(ctx context.Context) error {
	if p.Container == nil {
		return nil
	}
	defer getPortManager().releasePort(p.hostPort)
	return p.Container.Terminate(ctx)
}

func (p *PostgresHelper) Stop(ctx context.Context, timeout *time.Duration) error {
	if p.Container != nil {
		return p.Container.Stop(ctx, timeout)
	}
	return nil
}

func (p *PostgresHelper) Start(ctx context.Context) error {
	if p.Container != nil {
		return p.Container.Start(ctx)
	}
	return nil
}
