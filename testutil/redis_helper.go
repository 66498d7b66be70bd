package testutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"connector-sync/internal/config"
)

type RedisHelper struct {
	Container testcontainers.Container
	Config    config.Redis
	hostPort  int
}

func NewRedisContainer(ctx context.Context) (*RedisHelper, error) {
	hostPort, err := getPortManager().reservePort()
	if err != nil {
		return nil, err
	}

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(1 * time.Minute),
		HostConfigModifier: func(hostConfig *container.HostConfig) {
			hostConfig.PortBindings = nat.PortMap{
				nat.Port("6379/tcp"): []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}},
			}
		},
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		getPortManager().releasePort(hostPort)
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	return &RedisHelper{
		Container: redisContainer,
		Config: config.Redis{
			Enabled: true,
			Address: net.JoinHostPort(host, strconv.Itoa(hostPort)),
		},
		hostPort: hostPort,
	}, nil
}

func (r *RedisHelper) Terminate(ctx context.Context) error {
	if r.Container == nil {
		return nil
	}
	defer getPortManager().releasePort(r.hostPort)
	return r.Container.Terminate(ctx)
}
