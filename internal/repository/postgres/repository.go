package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"connector-sync/internal/repository"
	"connector-sync/pkg/db"
	"connector-sync/pkg/log"
)

var _ repository.Store = (*Repository)(nil)

// Repository stores connections and synced documents in PostgreSQL. Connection reads and
// updates are retried with backoff; batch commits are not retried. Both go through one
// circuit breaker so an unreachable database fails fast.
type Repository struct {
	psql           *db.PostgresDatastore
	circuitBreaker *gobreaker.CircuitBreaker
	retryOptFunc   func() []backoff.RetryOption
	logger         zerolog.Logger
}

func NewRepository(psql *db.PostgresDatastore) *Repository {
	return &Repository{
		psql:           psql,
		circuitBreaker: newCircuitBreaker(),
		retryOptFunc:   newBackoffStrategy,
		logger: log.Logger.With().
			Str("component", "postgres_repository").
			Logger(),
	}
}

func (repo *Repository) Close() error {
	return repo.psql.Close()
}

//nolint:mnd
func newCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres_repository",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

//nolint:mnd
func newBackoffStrategy() []backoff.RetryOption {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 200 * time.Millisecond
	strategy.MaxInterval = 2 * time.Second
	return []backoff.RetryOption{
		backoff.WithBackOff(strategy),
		backoff.WithMaxTries(5),
		backoff.WithMaxElapsedTime(10 * time.Second),
	}
}

// Not-found and oversized batches are caller errors and must not trip the breaker.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, repository.ErrConnectionNotFound) ||
		errors.Is(err, repository.ErrDocumentNotFound) ||
		errors.Is(err, repository.ErrBatchTooLarge)
}

// executeWithRetry runs op through the circuit breaker, retrying transient failures.
func executeWithRetry[T any](ctx context.Context, repo *Repository, op func() (T, error)) (T, error) {
	result, err := repo.circuitBreaker.Execute(func() (interface{}, error) {
		return backoff.Retry(ctx, func() (T, error) {
			value, err := op()
			if err != nil && isBreakerSuccess(err) {
				return value, backoff.Permanent(err)
			}
			return value, err
		}, repo.retryOptFunc()...)
	})
	return unwrapResult[T](result, err)
}

// executeOnce runs op through the circuit breaker without retrying.
func executeOnce[T any](repo *Repository, op func() (T, error)) (T, error) {
	result, err := repo.circuitBreaker.Execute(func() (interface{}, error) {
		return op()
	})
	return unwrapResult[T](result, err)
}

func unwrapResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, translateError(err)
	}
	if result == nil {
		return zero, nil
	}
	return result.(T), nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", repository.ErrDatabaseUnavailable, err)
	case isBreakerSuccess(err):
		return err
	default:
		return fmt.Errorf("%w: %v", repository.ErrDatabaseGeneric, err)
	}
}
