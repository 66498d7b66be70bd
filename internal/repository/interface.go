package repository

import (
	"context"

	"connector-sync/internal/models"
)

// ConnectionRepository is the credential store: one row per organization and source.
type ConnectionRepository interface {
	GetConnection(ctx context.Context, organizationID string, source models.SourceName) (*models.Connection, error)
	// UpdateConnection merges the non-nil fields of update into the stored connection.
	UpdateConnection(ctx context.Context, organizationID string, source models.SourceName, update models.ConnectionUpdate) error
	SaveConnection(ctx context.Context, conn *models.Connection) error
	ListConnections(ctx context.Context) ([]*models.Connection, error)
}

// DocumentRepository is the document store synced records are written to.
type DocumentRepository interface {
	// UpsertBatch replaces or inserts every record atomically. Batches larger than
	// config.MaxBatchSize are rejected with ErrBatchTooLarge.
	UpsertBatch(ctx context.Context, collection string, records []models.Record) error
	GetDocument(ctx context.Context, collection, key string) (*models.Record, error)
	CountDocuments(ctx context.Context, collection string) (int, error)
}

type Store interface {
	ConnectionRepository
	DocumentRepository
	Close() error
}
