package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenFS struct{}

func (brokenFS) Open(string) (fs.File, error) {
	return nil, fs.ErrNotExist
}

func TestPostgresMigration(t *testing.T) {
	t.Run("returns iofs source type", func(t *testing.T) {
		migration := NewPostgresMigration()
		require.NotNil(t, migration)

		assert.Equal(t, "iofs", migration.GetSourceType())
	})

	t.Run("creates a source driver positioned at the first migration", func(t *testing.T) {
		migration := NewPostgresMigration()
		require.NotNil(t, migration)

		driver, err := migration.GetSourceDriver()
		require.NoError(t, err)
		defer driver.Close()

		first, err := driver.First()
		require.NoError(t, err)
		assert.Equal(t, uint(1), first)

		next, err := driver.Next(first)
		require.NoError(t, err)
		assert.Equal(t, uint(2), next)
	})

	t.Run("embeds connections before documents", func(t *testing.T) {
		migration := NewPostgresMigration()
		require.NotNil(t, migration)

		files, err := migration.UpFiles()

		require.NoError(t, err)
		assert.Equal(t, []string{
			"000001_create_connections.up.sql",
			"000002_create_documents.up.sql",
		}, files)
	})

	t.Run("fails on an unreadable filesystem", func(t *testing.T) {
		migration := &PostgresMigration{fs: brokenFS{}}

		driver, err := migration.GetSourceDriver()

		assert.Nil(t, driver)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create migration source")
	})
}
