package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"connector-sync/internal/config"
	"connector-sync/pkg/log"
)

const keyPrefix = "connector-sync:lease:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker shares leases between every process pointed at the same Redis.
type RedisLocker struct {
	client redis.UniversalClient
	logger zerolog.Logger
}

// NewRedisLocker connects to Redis and verifies the connection.
func NewRedisLocker(ctx context.Context, cfg config.Redis) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return NewRedisLockerWithClient(client), nil
}

func NewRedisLockerWithClient(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client: client,
		logger: log.Logger.With().Str("component", "redis_locker").Logger(),
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		r.logger.Debug().Str("key", key).Msg("Lease already held")
		return nil, ErrLeaseHeld
	}
	return &redisLease{locker: r, key: key, token: token}, nil
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
}

func (l *redisLease) Key() string {
	return l.key
}

func (l *redisLease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.locker.client, []string{keyPrefix + l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	if deleted == 0 {
		l.locker.logger.Warn().Str("key", l.key).Msg("Lease expired before release")
	}
	return nil
}

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	extended, err := extendScript.Run(ctx, l.locker.client, []string{keyPrefix + l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lease %s: %w", l.key, err)
	}
	if extended == 0 {
		return ErrLeaseLost
	}
	return nil
}
