package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"connector-sync/internal/models"
	"connector-sync/internal/repository"
)

const connectionColumns = `organization_id, source, status, credentials, source_config,
	last_sync_at, last_sync_results, error_message, updated_at`

type connectionRow struct {
	OrganizationID  string     `db:"organization_id"`
	Source          string     `db:"source"`
	Status          string     `db:"status"`
	Credentials     []byte     `db:"credentials"`
	SourceConfig    []byte     `db:"source_config"`
	LastSyncAt      *time.Time `db:"last_sync_at"`
	LastSyncResults []byte     `db:"last_sync_results"`
	ErrorMessage    *string    `db:"error_message"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r *connectionRow) toModel() (*models.Connection, error) {
	conn := &models.Connection{
		OrganizationID: r.OrganizationID,
		Source:         models.SourceName(r.Source),
		Status:         models.ConnectionStatus(r.Status),
		LastSyncAt:     r.LastSyncAt,
		ErrorMessage:   r.ErrorMessage,
		UpdatedAt:      r.UpdatedAt,
	}
	if len(r.Credentials) > 0 {
		if err := json.Unmarshal(r.Credentials, &conn.Credentials); err != nil {
			return nil, fmt.Errorf("invalid credentials column: %w", err)
		}
	}
	if len(r.SourceConfig) > 0 {
		if err := json.Unmarshal(r.SourceConfig, &conn.SourceConfig); err != nil {
			return nil, fmt.Errorf("invalid source_config column: %w", err)
		}
	}
	if len(r.LastSyncResults) > 0 {
		conn.LastSyncResults = models.NewSyncResult()
		if err := json.Unmarshal(r.LastSyncResults, conn.LastSyncResults); err != nil {
			return nil, fmt.Errorf("invalid last_sync_results column: %w", err)
		}
	}
	return conn, nil
}

func (repo *Repository) GetConnection(ctx context.Context, organizationID string, source models.SourceName) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE organization_id = $1 AND source = $2`

	conn, err := executeWithRetry(ctx, repo, func() (*models.Connection, error) {
		var row connectionRow
		if err := repo.psql.DB.GetContext(ctx, &row, query, organizationID, string(source)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, repository.ErrConnectionNotFound
			}
			return nil, err
		}
		return row.toModel()
	})
	if err != nil {
		if !errors.Is(err, repository.ErrConnectionNotFound) {
			repo.decorateLog(repo.logger.Error, organizationID, source).Err(err).Msg("Failed to get connection")
		}
		return nil, err
	}

	repo.decorateLog(repo.logger.Debug, organizationID, source).Str("status", conn.Status.String()).Msg("Retrieved connection")
	return conn, nil
}

func (repo *Repository) UpdateConnection(ctx context.Context, organizationID string, source models.SourceName, update models.ConnectionUpdate) error {
	query := `
		UPDATE connections SET
			status            = COALESCE($3::text, status),
			credentials       = COALESCE($4::jsonb, credentials),
			last_sync_at      = COALESCE($5::timestamptz, last_sync_at),
			last_sync_results = COALESCE($6::jsonb, last_sync_results),
			error_message     = CASE WHEN $7::boolean THEN NULLIF($8::text, '') ELSE error_message END,
			updated_at        = now()
		WHERE organization_id = $1 AND source = $2`

	args, err := updateArgs(update)
	if err != nil {
		return err
	}

	_, err = executeWithRetry(ctx, repo, func() (struct{}, error) {
		res, err := repo.psql.DB.ExecContext(ctx, query, append([]any{organizationID, string(source)}, args...)...)
		if err != nil {
			return struct{}{}, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return struct{}{}, err
		}
		if affected == 0 {
			return struct{}{}, repository.ErrConnectionNotFound
		}
		return struct{}{}, nil
	})
	if err != nil {
		repo.decorateLog(repo.logger.Error, organizationID, source).Err(err).Msg("Failed to update connection")
		return err
	}

	event := repo.decorateLog(repo.logger.Debug, organizationID, source)
	if update.Status != nil {
		event = event.Str("status", update.Status.String())
	}
	event.Msg("Updated connection")
	return nil
}

func updateArgs(update models.ConnectionUpdate) ([]any, error) {
	var status, credentials, results, errorMessage *string
	if update.Status != nil {
		s := update.Status.String()
		status = &s
	}
	if update.Credentials != nil {
		encoded, err := marshalJSON(update.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to encode credentials: %w", err)
		}
		credentials = &encoded
	}
	if update.LastSyncResults != nil {
		encoded, err := marshalJSON(update.LastSyncResults)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sync results: %w", err)
		}
		results = &encoded
	}
	if update.ErrorMessage != nil {
		errorMessage = update.ErrorMessage
	}
	return []any{status, credentials, update.LastSyncAt, results, update.ErrorMessage != nil, errorMessage}, nil
}

func (repo *Repository) SaveConnection(ctx context.Context, conn *models.Connection) error {
	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7::jsonb, $8, now())
		ON CONFLICT (organization_id, source) DO UPDATE SET
			status            = EXCLUDED.status,
			credentials       = EXCLUDED.credentials,
			source_config     = EXCLUDED.source_config,
			last_sync_at      = EXCLUDED.last_sync_at,
			last_sync_results = EXCLUDED.last_sync_results,
			error_message     = EXCLUDED.error_message,
			updated_at        = now()`

	credentials, err := marshalJSON(conn.Credentials)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	sourceConfig, err := marshalJSON(conn.SourceConfig)
	if err != nil {
		return fmt.Errorf("failed to encode source config: %w", err)
	}
	var results *string
	if conn.LastSyncResults != nil {
		encoded, err := marshalJSON(conn.LastSyncResults)
		if err != nil {
			return fmt.Errorf("failed to encode sync results: %w", err)
		}
		results = &encoded
	}

	_, err = executeWithRetry(ctx, repo, func() (struct{}, error) {
		_, err := repo.psql.DB.ExecContext(ctx, query,
			conn.OrganizationID, string(conn.Source), conn.Status.String(),
			credentials, sourceConfig, conn.LastSyncAt, results, conn.ErrorMessage)
		return struct{}{}, err
	})
	if err != nil {
		repo.decorateLog(repo.logger.Error, conn.OrganizationID, conn.Source).Err(err).Msg("Failed to save connection")
		return err
	}
	return nil
}

func (repo *Repository) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections ORDER BY organization_id, source`

	conns, err := executeWithRetry(ctx, repo, func() ([]*models.Connection, error) {
		rows := make([]connectionRow, 0)
		if err := repo.psql.DB.SelectContext(ctx, &rows, query); err != nil {
			return nil, err
		}
		result := make([]*models.Connection, 0, len(rows))
		for i := range rows {
			conn, err := rows[i].toModel()
			if err != nil {
				return nil, err
			}
			result = append(result, conn)
		}
		return result, nil
	})
	if err != nil {
		repo.logger.Error().Err(err).Msg("Failed to list connections")
		return nil, err
	}
	return conns, nil
}

func (repo *Repository) decorateLog(eventFactory func() *zerolog.Event, organizationID string, source models.SourceName) *zerolog.Event {
	return eventFactory().Str("organization_id", organizationID).Str("source", source.String())
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
