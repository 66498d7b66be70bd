package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connector-sync/internal/config"
	"connector-sync/internal/events"
	"connector-sync/internal/lease"
	"connector-sync/internal/models"
	"connector-sync/internal/repository/memory"
)

func memoryConfig() *config.Config {
	return &config.Config{
		ID:          "test",
		Interval:    5,
		Concurrency: 2,
		Storage:     config.StorageMemory,
		Sync:        config.SyncRule{BatchSize: config.MaxBatchSize},
		Sources: []config.SourceConfig{
			{Name: "hubspot", BaseURL: "https://api.hubapi.com", TokenURL: "https://api.hubapi.com/oauth/v1/token", ClientID: "id", ClientSecret: "secret"},
			{Name: "seo_crawler", BaseURL: "https://crawler.example.com"},
		},
	}
}

func TestWiringBuildsInMemoryStack(t *testing.T) {
	ctx := context.Background()
	w := NewWiring(memoryConfig())
	t.Cleanup(func() { assert.NoError(t, w.Close()) })

	store, err := w.InitStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	again, err := w.InitStore(ctx)
	require.NoError(t, err)
	assert.Same(t, store, again)

	locker, err := w.InitLocker(ctx)
	require.NoError(t, err)
	assert.IsType(t, &lease.LocalLocker{}, locker)
	assert.Equal(t, events.Noop{}, w.InitPublisher())

	registry, err := w.InitRegistry()
	require.NoError(t, err)
	assert.Equal(t, []models.SourceName{models.SourceHubSpot, models.SourceSEOCrawler}, registry.Names())

	orch, err := w.InitOrchestrator(ctx)
	require.NoError(t, err)
	assert.NotNil(t, orch)

	handler, err := w.InitAPIHandler(ctx)
	require.NoError(t, err)
	assert.NotNil(t, handler)
	assert.True(t, w.healthy())
}

func TestWiringRejectsUnknownSource(t *testing.T) {
	cfg := memoryConfig()
	cfg.Sources = append(cfg.Sources, config.SourceConfig{Name: "salesforce", BaseURL: "https://example.com"})

	_, err := NewWiring(cfg).InitOrchestrator(context.Background())
	require.ErrorIs(t, err, models.ErrUnknownSource)
}
