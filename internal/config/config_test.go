package config

import (
	"maps"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

type configTestTable struct {
	name        string
	setFields   configFields
	errContains string
}

type configFields map[string]interface{}

var validSourceConfig = configFields{
	"name":          "hubspot",
	"base_url":      "https://api.hubapi.com",
	"token_url":     "https://api.hubapi.com/oauth/v1/token",
	"client_id":     "id",
	"client_secret": "secret",
}

var validAppConfig = configFields{
	"id":                      "test",
	"interval":                5,
	"postgres.address":        "localhost",
	"postgres.port":           5432,
	"postgres.username":       "u",
	"postgres.password":       "p",
	"postgres.db_name":        "d",
	"postgres.max_connection": "10",
	"sources":                 []configFields{validSourceConfig},
}

func deleteFromMap(m configFields, keys ...string) configFields {
	clonedMap := maps.Clone(m)
	for _, argument := range keys {
		delete(clonedMap, argument)
	}

	return clonedMap
}

func updateAndReturnMap(m configFields, key string, value interface{}) configFields {
	clonedMap := maps.Clone(m)
	clonedMap[key] = value
	return clonedMap
}

func TestConfigLoadFromYAML(t *testing.T) {
	viper.Reset()
	viper.SetConfigFile(filepath.Join("testdata", "config.yaml"))
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadInConfig())

	cfg, err := NewConfig()

	require.NoError(t, err)

	require.Equal(t, "test", cfg.ID)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5, cfg.Interval)
	require.Equal(t, 2, cfg.Concurrency)
	require.Equal(t, StoragePostgres, cfg.Storage)

	require.NotNil(t, cfg.Postgres)
	require.Equal(t, "localhost", cfg.Postgres.Address)
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.Equal(t, "postgres", cfg.Postgres.Username)
	require.Equal(t, "connector_sync", cfg.Postgres.DBName)
	require.Equal(t, "disable", cfg.Postgres.SSLMode)
	require.Equal(t, 10, cfg.Postgres.MaxConnections)

	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "redis:6379", cfg.Redis.Address)
	require.Equal(t, 1, cfg.Redis.DB)

	require.True(t, cfg.Kafka.Enabled)
	require.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "connector-sync.events", cfg.Kafka.Topic)

	require.Equal(t, 9090, cfg.HTTP.Port)
	require.Equal(t, "0.0.0.0", cfg.HTTP.Address)
	require.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	require.Equal(t, 7*time.Minute, cfg.HTTP.WriteTimeout)

	require.Equal(t, 250, cfg.Sync.BatchSize)
	require.Equal(t, 5*time.Minute, cfg.Sync.RunTimeout)
	require.Equal(t, 20*time.Minute, cfg.Sync.LeaseTTL)
	require.ElementsMatch(t, []string{"hubspot/*", "google_ads/campaigns"}, cfg.Sync.ResourcesToSync)
	require.ElementsMatch(t, []string{"hubspot/email_campaigns"}, cfg.Sync.ResourcesToIgnore)

	require.Len(t, cfg.Sources, 2)
	hubspot, ok := cfg.Source("hubspot")
	require.True(t, ok)
	require.Equal(t, "https://api.hubapi.com", hubspot.BaseURL)
	require.Equal(t, "hubspot-client", hubspot.ClientID)
	require.Equal(t, 5*time.Minute, hubspot.RefreshMargin)
	require.Equal(t, 100, hubspot.PageSize)
	require.Equal(t, 500, hubspot.ItemCap)
	require.InDelta(t, 10.0, hubspot.RequestsPerSecond, 0.001)

	crawler, ok := cfg.Source("seo_crawler")
	require.True(t, ok)
	require.Empty(t, crawler.TokenURL)

	_, ok = cfg.Source("xero")
	require.False(t, ok)
}

func TestConfigDefaults(t *testing.T) {
	viper.Reset()
	for k, v := range validAppConfig {
		viper.Set(k, v)
	}

	cfg, err := NewConfig()

	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 1, cfg.Concurrency)
	require.Equal(t, StoragePostgres, cfg.Storage)
	require.Equal(t, MaxBatchSize, cfg.Sync.BatchSize)
	require.Equal(t, 15*time.Minute, cfg.Sync.LeaseTTL)
	require.Equal(t, 10*time.Minute, cfg.Sync.RunTimeout)
	require.Greater(t, cfg.HTTP.WriteTimeout, cfg.Sync.RunTimeout+RunFinishBudget)
	require.Equal(t, 8080, cfg.HTTP.Port)
	require.False(t, cfg.Redis.Enabled)
	require.False(t, cfg.Kafka.Enabled)
}

func TestConfigurationValidation(t *testing.T) {
	t.Run("returns config without error when config is valid", func(t *testing.T) {
		viper.Reset()
		viper.SetConfigFile(filepath.Join("testdata", "config.yaml"))
		viper.SetConfigType("yaml")
		require.NoError(t, viper.ReadInConfig())

		cfg, err := NewConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg)
	})

	t.Run("Return error when no config loaded", func(t *testing.T) {
		viper.Reset()
		viper.SetConfigType("yaml")

		_, err := NewConfig()
		require.Error(t, err)
		require.Contains(t, err.Error(), "is required")
	})

	t.Run("write_timeout of 0 leaves responses unbounded", func(t *testing.T) {
		viper.Reset()
		for k, v := range updateAndReturnMap(validAppConfig, "http.write_timeout", "0s") {
			viper.Set(k, v)
		}

		cfg, err := NewConfig()
		require.NoError(t, err)
		require.Zero(t, cfg.HTTP.WriteTimeout)
	})

	t.Run("memory storage does not require postgres", func(t *testing.T) {
		viper.Reset()
		fields := deleteFromMap(validAppConfig,
			"postgres.address", "postgres.port", "postgres.username", "postgres.password",
			"postgres.db_name", "postgres.max_connection")
		for k, v := range updateAndReturnMap(fields, "storage", StorageMemory) {
			viper.Set(k, v)
		}

		cfg, err := NewConfig()
		require.NoError(t, err)
		require.Nil(t, cfg.Postgres)
	})

	t.Run("It fails on all required field if any is missing", func(t *testing.T) {
		tests := []configTestTable{
			{
				name:        "missing id",
				setFields:   deleteFromMap(validAppConfig, "id"),
				errContains: "Config.ID is required",
			},
			{
				name:        "missing interval",
				setFields:   deleteFromMap(validAppConfig, "interval"),
				errContains: "Config.Interval is required",
			},
			{
				name:        "interval not int",
				setFields:   updateAndReturnMap(validAppConfig, "interval", "a"),
				errContains: "interval",
			},
			{
				name:        "invalid log level",
				setFields:   updateAndReturnMap(validAppConfig, "log_level", "loud"),
				errContains: "Config.LogLevel must be one of",
			},
			{
				name:        "invalid storage",
				setFields:   updateAndReturnMap(validAppConfig, "storage", "firestore"),
				errContains: "Config.Storage must be one of [postgres memory]",
			},
			{
				name: "postgres storage without postgres section",
				setFields: deleteFromMap(validAppConfig,
					"postgres.address", "postgres.port", "postgres.username", "postgres.password",
					"postgres.db_name", "postgres.max_connection"),
				errContains: "Config.Postgres is required",
			},
			{
				name:        "missing postgres.address",
				setFields:   deleteFromMap(validAppConfig, "postgres.address"),
				errContains: "Config.Postgres.Address is required",
			},
			{
				name:        "invalid postgres.address",
				setFields:   updateAndReturnMap(validAppConfig, "postgres.address", "sfg://a"),
				errContains: "Config.Postgres.Address must be a valid hostname or IP address",
			},
			{
				name:        "invalid postgres.port greater than 65536",
				setFields:   updateAndReturnMap(validAppConfig, "postgres.port", 70000),
				errContains: "Config.Postgres.Port must be less than 65536",
			},
			{
				name:        "invalid postgres.port less than 0",
				setFields:   updateAndReturnMap(validAppConfig, "postgres.port", -1),
				errContains: "Config.Postgres.Port must be greater than 0",
			},
			{
				name:        "missing postgres.password",
				setFields:   deleteFromMap(validAppConfig, "postgres.password"),
				errContains: "Config.Postgres.Password is required",
			},
			{
				name:        "batch size above store limit",
				setFields:   updateAndReturnMap(validAppConfig, "sync.batch_size", 501),
				errContains: "Config.Sync.BatchSize must be less than or equal to 500",
			},
			{
				name:        "unbounded run_timeout",
				setFields:   updateAndReturnMap(validAppConfig, "sync.run_timeout", "0s"),
				errContains: "Config.Sync.RunTimeout must be greater than 0",
			},
			{
				name:        "write_timeout shorter than run_timeout",
				setFields:   updateAndReturnMap(validAppConfig, "http.write_timeout", "5m"),
				errContains: "Config.HTTP.WriteTimeout must be 0 or greater than Sync.RunTimeout plus 1m0s",
			},
			{
				name: "write_timeout without room to finish the run",
				setFields: updateAndReturnMap(
					updateAndReturnMap(validAppConfig, "http.write_timeout", "3m30s"),
					"sync.run_timeout", "3m"),
				errContains: "Config.HTTP.WriteTimeout must be 0 or greater than Sync.RunTimeout plus 1m0s",
			},
			{
				name:        "duplicated resources_to_sync",
				setFields:   updateAndReturnMap(validAppConfig, "sync.resources_to_sync", []string{"hubspot/*", "hubspot/*"}),
				errContains: "Config.Sync.ResourcesToSync must contain unique items",
			},
			{
				name: "mutually exclusive resources_to_sync and resources_to_ignore",
				setFields: updateAndReturnMap(
					updateAndReturnMap(validAppConfig, "sync.resources_to_sync", []string{"hubspot/contacts", "xero/invoices"}),
					"sync.resources_to_ignore", []string{"xero/invoices"},
				),
				errContains: "Config.Sync.ResourcesToIgnore must not contain items that are also in ResourcesToSync",
			},
			{
				name:        "redis enabled without address",
				setFields:   updateAndReturnMap(validAppConfig, "redis.enabled", true),
				errContains: "Config.Redis.Address is required",
			},
			{
				name:        "kafka enabled without brokers",
				setFields:   updateAndReturnMap(updateAndReturnMap(validAppConfig, "kafka.enabled", true), "kafka.topic", "t"),
				errContains: "Config.Kafka.Brokers is required",
			},
			{
				name:        "sources must not be empty",
				setFields:   updateAndReturnMap(validAppConfig, "sources", []configFields{}),
				errContains: "Config.Sources must have at least 1 items/characters",
			},
			{
				name:        "unknown source name",
				setFields:   updateAndReturnMap(validAppConfig, "sources", []configFields{updateAndReturnMap(validSourceConfig, "name", "salesforce")}),
				errContains: "Config.Sources[0].Name must be one of",
			},
			{
				name:        "missing source base_url",
				setFields:   updateAndReturnMap(validAppConfig, "sources", []configFields{deleteFromMap(validSourceConfig, "base_url")}),
				errContains: "Config.Sources[0].BaseURL is required",
			},
			{
				name:        "token_url without client credentials",
				setFields:   updateAndReturnMap(validAppConfig, "sources", []configFields{deleteFromMap(validSourceConfig, "client_id")}),
				errContains: "Config.Sources[0].ClientID is required",
			},
			{
				name:        "duplicated sources",
				setFields:   updateAndReturnMap(validAppConfig, "sources", []configFields{validSourceConfig, validSourceConfig}),
				errContains: "Config.Sources must contain unique items",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				viper.Reset()
				for k, v := range tt.setFields {
					viper.Set(k, v)
				}

				_, err := NewConfig()

				require.Error(t, err)
				require.Contains(t, err.Error(), tt.errContains)
			})
		}
	})
}
