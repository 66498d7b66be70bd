package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"connector-sync/internal/config"
	"connector-sync/internal/credentials"
	"connector-sync/internal/events"
	"connector-sync/internal/lease"
	"connector-sync/internal/models"
	"connector-sync/internal/repository"
	"connector-sync/internal/service/job"
	"connector-sync/internal/service/resourcematching"
	"connector-sync/internal/source"
	"connector-sync/pkg/log"
)

// recoveryTimeout bounds the best effort writes made after a run was aborted.
const recoveryTimeout = 10 * time.Second

type TokenProvider interface {
	EnsureValidToken(ctx context.Context, conn *models.Connection, src credentials.TokenSource) (string, error)
}

// SyncOptions narrows one run. Zero values mean every selected resource and the
// adapter's own item caps.
type SyncOptions struct {
	Resources []string
	ItemCap   int
}

type Dependencies struct {
	Store       repository.Store
	Registry    *source.Registry
	Credentials TokenProvider
	Matcher     resourcematching.ResourceMatcher
	Locker      lease.Locker
	Publisher   events.Publisher
}

type Settings struct {
	Concurrency int
	BatchSize   int
	RunTimeout  time.Duration
	LeaseTTL    time.Duration
}

// SettingsFromConfig picks the orchestrator settings out of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.Sync.BatchSize,
		RunTimeout:  cfg.Sync.RunTimeout,
		LeaseTTL:    cfg.Sync.LeaseTTL,
	}
}

// SyncOrchestrator drives one connection through connected -> syncing -> connected|error.
type SyncOrchestrator struct {
	store       repository.Store
	registry    *source.Registry
	credentials TokenProvider
	matcher     resourcematching.ResourceMatcher
	locker      lease.Locker
	publisher   events.Publisher
	settings    Settings
	now         func() time.Time
	logger      zerolog.Logger
}

func NewSyncOrchestrator(deps Dependencies, settings Settings) *SyncOrchestrator {
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.BatchSize <= 0 || settings.BatchSize > config.MaxBatchSize {
		settings.BatchSize = config.MaxBatchSize
	}
	if settings.LeaseTTL <= 0 {
		settings.LeaseTTL = 15 * time.Minute
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Locker == nil {
		deps.Locker = lease.NewLocalLocker()
	}

	return &SyncOrchestrator{
		store:       deps.Store,
		registry:    deps.Registry,
		credentials: deps.Credentials,
		matcher:     deps.Matcher,
		locker:      deps.Locker,
		publisher:   deps.Publisher,
		settings:    settings,
		now:         time.Now,
		logger:      log.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Sync runs every selected resource of one connection and persists the outcome.
//
// Errors returned before the connection was marked syncing leave it untouched:
// unknown source or resource, a lease held by another run, a missing connection,
// or a connection that is not connected. A credential failure marks the connection
// error and returns an error wrapping models.ErrAuthExpired; a token check cut short
// by cancellation or the run deadline restores connected instead. Resource failures are
// reported in the returned SyncResult and are not errors of the run. A failure
// outside the resource tasks puts the connection back to connected with an error
// message and returns an error wrapping models.ErrUnexpected.
func (o *SyncOrchestrator) Sync(ctx context.Context, organizationID string, sourceName models.SourceName, opts SyncOptions) (result *models.SyncResult, err error) {
	startTime := time.Now()
	logger := o.logger.With().
		Str("organization_id", organizationID).
		Str("source", sourceName.String()).
		Logger()

	adapter, err := o.registry.Get(sourceName)
	if err != nil {
		return nil, err
	}
	resources, err := o.matcher.SelectResources(adapter, opts.Resources)
	if err != nil {
		return nil, err
	}

	key := models.ConnectionKey(organizationID, sourceName)
	held, err := o.locker.Acquire(ctx, key, o.settings.LeaseTTL)
	if errors.Is(err, lease.ErrLeaseHeld) {
		return nil, fmt.Errorf("%w: %s", models.ErrSyncInProgress, key)
	}
	if err != nil {
		return nil, err
	}
	defer o.releaseLease(ctx, held)

	conn, err := o.store.GetConnection(ctx, organizationID, sourceName)
	if err != nil {
		return nil, err
	}
	if !conn.Status.Syncable() {
		return nil, fmt.Errorf("%w: status is %s", models.ErrNotConnected, conn.Status)
	}
	if conn.Status == models.StatusSyncing {
		logger.Warn().Msg("Connection was left syncing by an earlier run, recovering")
	}

	if err := o.store.UpdateConnection(ctx, organizationID, sourceName, models.StatusUpdate(models.StatusSyncing)); err != nil {
		logger.Error().Err(err).Msg("Failed to mark connection as syncing")
		return nil, err
	}
	conn.Status = models.StatusSyncing
	logger.Info().Int("resources", len(resources)).Msg("Starting sync")

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, o.abort(ctx, conn, fmt.Errorf("%w: %v", models.ErrUnexpected, r))
		}
	}()

	runCtx, cancel := o.runContext(ctx)
	defer cancel()
	stopKeepAlive := o.keepLease(ctx, cancel, held, logger)
	defer stopKeepAlive()

	token, err := o.credentials.EnsureValidToken(runCtx, conn, adapter)
	if errors.Is(err, models.ErrAuthExpired) {
		return nil, o.failAuth(ctx, conn, err)
	}
	if err != nil {
		return nil, o.abort(ctx, conn, fmt.Errorf("sync interrupted before fetching: %w", err))
	}

	call := source.Call{
		Connection:  conn,
		AccessToken: token,
		HTTPClient:  adapter.HTTPClient(),
		ItemCap:     opts.ItemCap,
	}
	result = o.executeSyncJobs(runCtx, resources, call)

	syncedAt := o.now().UTC()
	update := models.StatusUpdate(models.StatusConnected).ClearErrorMessage()
	update.LastSyncAt = &syncedAt
	update.LastSyncResults = result
	if err := o.store.UpdateConnection(context.WithoutCancel(ctx), organizationID, sourceName, update); err != nil {
		return nil, o.abort(ctx, conn, fmt.Errorf("%w: failed to persist sync results: %v", models.ErrUnexpected, err))
	}
	conn.Status = models.StatusConnected

	o.publish(ctx, events.NewSyncEvent(conn, result, ""))
	o.logSummary(logger, result, time.Since(startTime))
	return result, nil
}

// keepLease extends held every third of its TTL until the returned stop func is
// called. A lease taken over by another run cancels this one.
func (o *SyncOrchestrator) keepLease(ctx context.Context, cancel context.CancelFunc, held lease.Lease, logger zerolog.Logger) (stop func()) {
	extendCtx := context.WithoutCancel(ctx)
	interval := max(o.settings.LeaseTTL/3, time.Millisecond)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			err := held.Extend(extendCtx, o.settings.LeaseTTL)
			if errors.Is(err, lease.ErrLeaseLost) {
				logger.Error().Str("key", held.Key()).Msg("Sync lease lost, cancelling run")
				cancel()
				return
			}
			if err != nil {
				logger.Warn().Err(err).Str("key", held.Key()).Msg("Failed to extend sync lease")
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (o *SyncOrchestrator) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.settings.RunTimeout > 0 {
		return context.WithTimeout(ctx, o.settings.RunTimeout)
	}
	return context.WithCancel(ctx)
}

type indexedResult struct {
	index  int
	result *job.SyncJobResult
}

// executeSyncJobs runs the resource jobs with bounded concurrency and folds their
// outcomes into a SyncResult in resource order.
func (o *SyncOrchestrator) executeSyncJobs(ctx context.Context, resources []source.Resource, call source.Call) *models.SyncResult {
	o.logger.Debug().
		Int("concurrency", o.settings.Concurrency).
		Int("total_resources", len(resources)).
		Msg("Starting resource sync jobs")

	jobResults := o.runJobsInParallel(ctx, resources, call)

	ordered := make([]*job.SyncJobResult, len(resources))
	for r := range jobResults {
		ordered[r.index] = r.result
	}

	result := models.NewSyncResult()
	for _, r := range ordered {
		r.ApplyTo(result)
	}
	return result
}

func (o *SyncOrchestrator) runJobsInParallel(ctx context.Context, resources []source.Resource, call source.Call) chan indexedResult {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, o.settings.Concurrency)
	jobResults := make(chan indexedResult, len(resources))

	for i, res := range resources {
		wg.Add(1)
		go o.executeJob(ctx, i, res, call, &wg, semaphore, jobResults)
	}

	go func() {
		wg.Wait()
		close(jobResults)
	}()

	return jobResults
}

// executeJob waits for a slot and runs one resource job. A job whose slot never
// came because the run expired reports the context error with a zero count.
func (o *SyncOrchestrator) executeJob(
	ctx context.Context,
	index int,
	res source.Resource,
	call source.Call,
	wg *sync.WaitGroup,
	semaphore chan struct{},
	jobResults chan indexedResult,
) {
	defer wg.Done()

	select {
	case semaphore <- struct{}{}:
		defer func() { <-semaphore }()
	case <-ctx.Done():
		jobResults <- indexedResult{index: index, result: &job.SyncJobResult{
			Resource: res.Name(),
			Error:    fmt.Errorf("%s sync failed: %w", res.Name(), ctx.Err()),
		}}
		return
	}

	syncJob := job.NewSyncJob(res, call, o.store, o.settings.BatchSize)
	jobResults <- indexedResult{index: index, result: syncJob.Execute(ctx)}
}

// failAuth marks the connection error after a credential failure.
func (o *SyncOrchestrator) failAuth(ctx context.Context, conn *models.Connection, cause error) error {
	logger := o.logger.With().
		Str("organization_id", conn.OrganizationID).
		Str("source", conn.Source.String()).
		Logger()
	logger.Error().Err(cause).Msg("Credential check failed, aborting sync")

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
	defer cancel()

	update := models.StatusUpdate(models.StatusError).WithErrorMessage(cause.Error())
	if err := o.store.UpdateConnection(persistCtx, conn.OrganizationID, conn.Source, update); err != nil {
		logger.Error().Err(err).Msg("Failed to mark connection as errored")
	}
	conn.Status = models.StatusError

	o.publish(persistCtx, events.NewSyncEvent(conn, nil, cause.Error()))
	return cause
}

// abort puts the connection back to connected with an error message so the next
// run is not blocked.
func (o *SyncOrchestrator) abort(ctx context.Context, conn *models.Connection, cause error) error {
	logger := o.logger.With().
		Str("organization_id", conn.OrganizationID).
		Str("source", conn.Source.String()).
		Logger()
	logger.Error().Err(cause).Msg("Sync aborted, restoring connection")

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
	defer cancel()

	update := models.StatusUpdate(models.StatusConnected).WithErrorMessage(cause.Error())
	if err := o.store.UpdateConnection(persistCtx, conn.OrganizationID, conn.Source, update); err != nil {
		logger.Error().Err(err).Msg("Failed to restore connection after abort")
	}
	conn.Status = models.StatusConnected

	o.publish(persistCtx, events.NewSyncEvent(conn, nil, cause.Error()))
	return cause
}

func (o *SyncOrchestrator) publish(ctx context.Context, event events.SyncEvent) {
	if err := o.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		o.logger.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to publish sync event")
	}
}

func (o *SyncOrchestrator) releaseLease(ctx context.Context, held lease.Lease) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
	defer cancel()
	if err := held.Release(releaseCtx); err != nil {
		o.logger.Warn().Err(err).Str("key", held.Key()).Msg("Failed to release sync lease")
	}
}

func (o *SyncOrchestrator) logSummary(logger zerolog.Logger, result *models.SyncResult, duration time.Duration) {
	event := logger.Info()
	if result.HasErrors() {
		event = logger.Warn().Strs("errors", result.Errors)
	}
	event.
		Int("total", result.Total()).
		Int("resources", len(result.Counts)).
		Dur("duration", duration).
		Msg("Synchronization completed")
}
