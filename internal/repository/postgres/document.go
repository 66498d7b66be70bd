package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"connector-sync/internal/config"
	"connector-sync/internal/models"
	"connector-sync/internal/repository"
)

const documentColumnCount = 7

type documentRow struct {
	Collection     string    `db:"collection"`
	DocKey         string    `db:"doc_key"`
	OrganizationID string    `db:"organization_id"`
	ExternalID     string    `db:"external_id"`
	Source         string    `db:"source"`
	Fields         []byte    `db:"fields"`
	SyncedAt       time.Time `db:"synced_at"`
}

// UpsertBatch writes all records in one transaction with a single multi-row
// INSERT .. ON CONFLICT statement. Existing documents are replaced wholesale.
func (repo *Repository) UpsertBatch(ctx context.Context, collection string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > config.MaxBatchSize {
		return repository.ErrBatchTooLarge
	}

	query, args, err := buildUpsertQuery(collection, records)
	if err != nil {
		return err
	}

	_, err = executeOnce(repo, func() (struct{}, error) {
		tx, err := repo.psql.DB.BeginTxx(ctx, nil)
		if err != nil {
			return struct{}{}, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return struct{}{}, err
		}
		return struct{}{}, tx.Commit()
	})
	if err != nil {
		repo.logger.Error().Err(err).
			Str("collection", collection).
			Int("batch_size", len(records)).
			Msg("Failed to commit batch")
		return err
	}

	repo.logger.Debug().Str("collection", collection).Int("batch_size", len(records)).Msg("Committed batch")
	return nil
}

func buildUpsertQuery(collection string, records []models.Record) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO documents (collection, doc_key, organization_id, external_id, source, fields, synced_at) VALUES `)

	args := make([]any, 0, len(records)*documentColumnCount)
	for i, r := range records {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode fields of %s: %w", r.Key, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * documentColumnCount
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d::jsonb, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args, collection, r.Key, r.OrganizationID, r.ExternalID, string(r.Source), string(fields), r.SyncedAt)
	}

	sb.WriteString(` ON CONFLICT (collection, doc_key) DO UPDATE SET
		organization_id = EXCLUDED.organization_id,
		external_id     = EXCLUDED.external_id,
		source          = EXCLUDED.source,
		fields          = EXCLUDED.fields,
		synced_at       = EXCLUDED.synced_at`)

	return sb.String(), args, nil
}

func (repo *Repository) GetDocument(ctx context.Context, collection, key string) (*models.Record, error) {
	query := `SELECT collection, doc_key, organization_id, external_id, source, fields, synced_at
		FROM documents WHERE collection = $1 AND doc_key = $2`

	return executeWithRetry(ctx, repo, func() (*models.Record, error) {
		var row documentRow
		if err := repo.psql.DB.GetContext(ctx, &row, query, collection, key); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, repository.ErrDocumentNotFound
			}
			return nil, err
		}

		record := &models.Record{
			Key:            row.DocKey,
			OrganizationID: row.OrganizationID,
			ExternalID:     row.ExternalID,
			Source:         models.SourceName(row.Source),
			SyncedAt:       row.SyncedAt,
		}
		if err := json.Unmarshal(row.Fields, &record.Fields); err != nil {
			return nil, fmt.Errorf("invalid fields column: %w", err)
		}
		return record, nil
	})
}

func (repo *Repository) CountDocuments(ctx context.Context, collection string) (int, error) {
	query := `SELECT COUNT(*) FROM documents WHERE collection = $1`

	return executeWithRetry(ctx, repo, func() (int, error) {
		var count int
		err := repo.psql.DB.GetContext(ctx, &count, query, collection)
		return count, err
	})
}
