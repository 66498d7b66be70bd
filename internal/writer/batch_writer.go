// Package writer buffers normalized records and commits them in bounded atomic batches.
package writer

import (
	"context"

	"github.com/rs/zerolog"

	"connector-sync/internal/config"
	"connector-sync/internal/models"
	"connector-sync/internal/repository"
	"connector-sync/pkg/log"
)

// BatchWriter is owned by a single resource task and is not safe for concurrent use.
// Callers must call Flush once the fetch loop ends, whatever the reason.
type BatchWriter struct {
	repo       repository.DocumentRepository
	collection string
	batchSize  int
	buffer     []models.Record
	positions  map[string]int
	committed  int
	commits    int
	logger     zerolog.Logger
}

// NewBatchWriter creates a writer for one collection. batchSize is clamped to
// [1, config.MaxBatchSize].
func NewBatchWriter(repo repository.DocumentRepository, collection string, batchSize int) *BatchWriter {
	if batchSize <= 0 || batchSize > config.MaxBatchSize {
		batchSize = config.MaxBatchSize
	}
	return &BatchWriter{
		repo:       repo,
		collection: collection,
		batchSize:  batchSize,
		buffer:     make([]models.Record, 0, batchSize),
		positions:  make(map[string]int, batchSize),
		logger: log.Logger.With().
			Str("component", "batch_writer").
			Str("collection", collection).
			Logger(),
	}
}

// Enqueue buffers record and commits the buffer once it holds batchSize records.
// A record whose key is already buffered replaces the earlier one.
func (w *BatchWriter) Enqueue(ctx context.Context, record models.Record) error {
	if pos, ok := w.positions[record.Key]; ok {
		w.buffer[pos] = record
		return nil
	}

	w.positions[record.Key] = len(w.buffer)
	w.buffer = append(w.buffer, record)

	if len(w.buffer) >= w.batchSize {
		return w.commit(ctx)
	}
	return nil
}

// Flush commits whatever is buffered. It is a no-op on an empty buffer.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	return w.commit(ctx)
}

// Committed is the number of records durably written so far.
func (w *BatchWriter) Committed() int {
	return w.committed
}

// Commits is the number of batches written so far.
func (w *BatchWriter) Commits() int {
	return w.commits
}

func (w *BatchWriter) Buffered() int {
	return len(w.buffer)
}

// commit writes the buffer and clears it. On failure the batch is dropped, so a
// later Flush does not resend it.
func (w *BatchWriter) commit(ctx context.Context) error {
	batch := w.buffer
	w.buffer = make([]models.Record, 0, w.batchSize)
	clear(w.positions)

	if err := w.repo.UpsertBatch(ctx, w.collection, batch); err != nil {
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Batch commit failed")
		return &models.WriteCommitError{Collection: w.collection, BatchSize: len(batch), Err: err}
	}

	w.committed += len(batch)
	w.commits++
	w.logger.Debug().
		Int("batch_size", len(batch)).
		Int("committed", w.committed).
		Msg("Committed batch")
	return nil
}
