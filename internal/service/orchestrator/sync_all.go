package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"connector-sync/internal/models"
)

type ConnectionRunResult struct {
	OrganizationID string
	Source         models.SourceName
	Results        *models.SyncResult
	Error          error
}

type SyncAllResult struct {
	TotalConnections int
	Succeeded        int
	Failed           int
	// Skipped counts runs that never started: lease held or run context expired.
	Skipped  int
	Duration time.Duration
	Runs     []*ConnectionRunResult
}

// SyncAll runs every connection that is connected or syncing and whose source is
// registered, at most Concurrency connections at a time. A failing connection never
// stops the others.
func (o *SyncOrchestrator) SyncAll(ctx context.Context) (*SyncAllResult, error) {
	startTime := time.Now()
	o.logger.Info().Msg("Starting synchronization of all connections")

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	targets, err := o.discoverConnections(ctx)
	if err != nil {
		return nil, err
	}

	result := &SyncAllResult{
		TotalConnections: len(targets),
		Runs:             make([]*ConnectionRunResult, 0, len(targets)),
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, o.settings.Concurrency)
	runs := make(chan *ConnectionRunResult, len(targets))

	for _, conn := range targets {
		wg.Add(1)
		go func(conn *models.Connection) {
			defer wg.Done()
			run := &ConnectionRunResult{OrganizationID: conn.OrganizationID, Source: conn.Source}

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				run.Error = ctx.Err()
				runs <- run
				return
			}

			run.Results, run.Error = o.Sync(ctx, conn.OrganizationID, conn.Source, SyncOptions{})
			runs <- run
		}(conn)
	}

	go func() {
		wg.Wait()
		close(runs)
	}()

	for run := range runs {
		result.Runs = append(result.Runs, run)
		o.categorizeRun(result, run)
	}
	result.Duration = time.Since(startTime)

	o.logger.Info().
		Int("total", result.TotalConnections).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Synchronization of all connections completed")

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func (o *SyncOrchestrator) categorizeRun(result *SyncAllResult, run *ConnectionRunResult) {
	logger := o.logger.With().
		Str("organization_id", run.OrganizationID).
		Str("source", run.Source.String()).
		Logger()

	switch {
	case run.Error == nil:
		result.Succeeded++
	case errors.Is(run.Error, models.ErrSyncInProgress),
		errors.Is(run.Error, context.Canceled),
		errors.Is(run.Error, context.DeadlineExceeded):
		result.Skipped++
		logger.Debug().Err(run.Error).Msg("Connection skipped")
	default:
		result.Failed++
		logger.Error().Err(run.Error).Msg("Connection sync failed")
	}
}

// discoverConnections lists the connections a scheduled run should visit.
func (o *SyncOrchestrator) discoverConnections(ctx context.Context) ([]*models.Connection, error) {
	all, err := o.store.ListConnections(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to list connections")
		return nil, err
	}

	targets := make([]*models.Connection, 0, len(all))
	for _, conn := range all {
		if !conn.Status.Syncable() {
			continue
		}
		if _, err := o.registry.Get(conn.Source); err != nil {
			o.logger.Warn().
				Str("organization_id", conn.OrganizationID).
				Str("source", conn.Source.String()).
				Msg("Connection source is not configured, skipping")
			continue
		}
		targets = append(targets, conn)
	}

	o.logger.Info().Int("total_connections", len(targets)).Msg("Discovered connections")
	return targets, nil
}

type PlannedRun struct {
	OrganizationID string
	Source         models.SourceName
	Status         models.ConnectionStatus
	Resources      []string
	LastSyncAt     *time.Time
}

// Plan reports what SyncAll would do without touching any connection.
func (o *SyncOrchestrator) Plan(ctx context.Context) ([]PlannedRun, error) {
	targets, err := o.discoverConnections(ctx)
	if err != nil {
		return nil, err
	}

	plans := make([]PlannedRun, 0, len(targets))
	for _, conn := range targets {
		adapter, err := o.registry.Get(conn.Source)
		if err != nil {
			return nil, err
		}
		resources, err := o.matcher.SelectResources(adapter, nil)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(resources))
		for _, r := range resources {
			names = append(names, r.Name())
		}
		plans = append(plans, PlannedRun{
			OrganizationID: conn.OrganizationID,
			Source:         conn.Source,
			Status:         conn.Status,
			Resources:      names,
			LastSyncAt:     conn.LastSyncAt,
		})
	}
	return plans, nil
}
