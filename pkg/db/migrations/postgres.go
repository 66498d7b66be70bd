package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"connector-sync/pkg/log"
)

// MigrationSource supplies the schema migrations applied when a datastore opens.
type MigrationSource interface {
	GetSourceType() string
	GetSourceDriver() (source.Driver, error)
}

//go:embed postgres/*.sql
var PostgresFS embed.FS

// PostgresMigration serves the embedded connections and documents schema.
type PostgresMigration struct {
	fs fs.FS
}

func NewPostgresMigration() *PostgresMigration {
	subFS, err := fs.Sub(PostgresFS, "postgres")
	if err != nil {
		log.Logger.Error().Err(err).Msg("Failed to open embedded postgres migrations")
		return nil
	}
	return &PostgresMigration{fs: subFS}
}

func (p *PostgresMigration) GetSourceType() string {
	return "iofs"
}

func (p *PostgresMigration) GetSourceDriver() (source.Driver, error) {
	d, err := iofs.New(p.fs, ".")
	if err != nil {
		log.Logger.Error().Err(err).Msg("Failed to create migration source from embedded files")
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	return d, nil
}

// UpFiles lists the embedded up migrations in apply order.
func (p *PostgresMigration) UpFiles() ([]string, error) {
	entries, err := fs.ReadDir(p.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
