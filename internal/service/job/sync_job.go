package job

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"connector-sync/internal/models"
	"connector-sync/internal/repository"
	"connector-sync/internal/source"
	"connector-sync/internal/writer"
	"connector-sync/pkg/log"
)

// flushTimeout bounds the final flush, which runs even after the run context expired.
const flushTimeout = 30 * time.Second

// SyncJob runs fetch, transform and write for one resource inside a failure boundary.
// Nothing it does, including a panic, escapes Execute.
type SyncJob struct {
	resource  source.Resource
	call      source.Call
	docs      repository.DocumentRepository
	batchSize int
	logger    zerolog.Logger
}

type SyncJobResult struct {
	Resource string
	// Count is the number of records committed, including those committed before a failure.
	Count int
	// Error, when set, reads "<resource> sync failed: <cause>".
	Error error
}

func NewSyncJob(resource source.Resource, call source.Call, docs repository.DocumentRepository, batchSize int) *SyncJob {
	return &SyncJob{
		resource:  resource,
		call:      call,
		docs:      docs,
		batchSize: batchSize,
		logger: log.Logger.With().
			Str("component", "sync_job").
			Str("organization_id", call.Connection.OrganizationID).
			Str("source", call.Connection.Source.String()).
			Str("resource", resource.Name()).
			Logger(),
	}
}

func (job *SyncJob) Execute(ctx context.Context) (result *SyncJobResult) {
	logger := job.logger.With().Str("action", "execute").Logger()
	logger.Debug().Msg("Starting resource sync job")
	startTime := time.Now()

	result = &SyncJobResult{Resource: job.resource.Name()}
	batchWriter := writer.NewBatchWriter(job.docs, job.resource.Collection(), job.batchSize)

	defer func() {
		if r := recover(); r != nil {
			job.fail(result, fmt.Errorf("panic: %v", r))
		}

		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if err := batchWriter.Flush(flushCtx); err != nil {
			job.fail(result, err)
		}

		result.Count = batchWriter.Committed()
		event := logger.Info()
		if result.Error != nil {
			event = logger.Warn().Err(result.Error)
		}
		event.
			Int("count", result.Count).
			Int("commits", batchWriter.Commits()).
			Dur("duration", time.Since(startTime)).
			Msg("Resource sync job finished")
	}()

	for record, err := range job.resource.Records(ctx, job.call) {
		if err != nil {
			job.fail(result, err)
			return result
		}
		if err := batchWriter.Enqueue(ctx, record); err != nil {
			job.fail(result, err)
			return result
		}
	}
	return result
}

// fail records the first failure only.
func (job *SyncJob) fail(result *SyncJobResult, err error) {
	if result.Error != nil {
		return
	}
	result.Error = fmt.Errorf("%s sync failed: %w", job.resource.Name(), err)
}

// Errored reports whether the job failed.
func (r *SyncJobResult) Errored() bool {
	return r.Error != nil
}

// ErrorMessage is the human readable failure recorded in the run's SyncResult.
func (r *SyncJobResult) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// ApplyTo records this job's outcome in result.
func (r *SyncJobResult) ApplyTo(result *models.SyncResult) {
	result.Add(r.Resource, r.Count, r.ErrorMessage())
}
