package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"connector-sync/pkg/log"
)

const (
	// MaxBatchSize is the document store's atomic write limit.
	MaxBatchSize = 500

	// RunFinishBudget covers the flush and status writes a run makes after its
	// deadline. A response writer must outlive run_timeout by at least this much.
	RunFinishBudget = time.Minute

	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config represents the configuration for connector-sync
type Config struct {
	ID          string         `mapstructure:"id" validate:"required"`
	LogLevel    string         `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	Interval    int            `mapstructure:"interval" validate:"required,gt=0"`
	Concurrency int            `mapstructure:"concurrency" validate:"gt=0"`
	Storage     string         `mapstructure:"storage" validate:"oneof=postgres memory"`
	Postgres    *Postgres      `mapstructure:"postgres" validate:"required_if=Storage postgres"`
	Redis       Redis          `mapstructure:"redis"`
	Kafka       Kafka          `mapstructure:"kafka"`
	HTTP        HTTP           `mapstructure:"http"`
	Sync        SyncRule       `mapstructure:"sync"`
	Sources     []SourceConfig `mapstructure:"sources" validate:"required,min=1,unique=Name,dive"`
}

type Postgres struct {
	Address        string `mapstructure:"address" validate:"required,hostname|ip"`
	Port           int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	Username       string `mapstructure:"username" validate:"required"`
	Password       string `mapstructure:"password" validate:"required"`
	DBName         string `mapstructure:"db_name" validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConnections int    `mapstructure:"max_connection" validate:"gte=0"`
}

type Redis struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address" validate:"required_if=Enabled true,omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

type HTTP struct {
	Address      string        `mapstructure:"address"`
	Port         int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
}

// SyncRule controls how a single sync run behaves.
type SyncRule struct {
	BatchSize         int           `mapstructure:"batch_size" validate:"gt=0,lte=500"`
	RunTimeout        time.Duration `mapstructure:"run_timeout" validate:"gt=0"`
	LeaseTTL          time.Duration `mapstructure:"lease_ttl" validate:"gt=0"`
	ResourcesToSync   []string      `mapstructure:"resources_to_sync" validate:"unique"`
	ResourcesToIgnore []string      `mapstructure:"resources_to_ignore" validate:"unique"`
}

// SourceConfig holds the platform endpoints and OAuth client for one source.
type SourceConfig struct {
	Name              string        `mapstructure:"name" validate:"required,oneof=hubspot google_ads google_analytics seo_crawler xero"`
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	TokenURL          string        `mapstructure:"token_url" validate:"omitempty,url"`
	ClientID          string        `mapstructure:"client_id" validate:"required_with=TokenURL"`
	ClientSecret      string        `mapstructure:"client_secret" validate:"required_with=TokenURL"`
	RefreshMargin     time.Duration `mapstructure:"refresh_margin" validate:"gte=0"`
	PageSize          int           `mapstructure:"page_size" validate:"gte=0"`
	ItemCap           int           `mapstructure:"item_cap" validate:"gte=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
}

// Source returns the configuration of the named source.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

//nolint:mnd
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("concurrency", 1)
	viper.SetDefault("storage", StoragePostgres)
	viper.SetDefault("http.address", "0.0.0.0")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.read_timeout", 15*time.Second)
	viper.SetDefault("http.write_timeout", 12*time.Minute)
	viper.SetDefault("sync.batch_size", MaxBatchSize)
	viper.SetDefault("sync.lease_ttl", 15*time.Minute)
	viper.SetDefault("sync.run_timeout", 10*time.Minute)
}

// NewConfig decodes the viper state into a Config and validates it.
func NewConfig() (*Config, error) {
	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load builds the Config and initialises the global logger from it.
func Load() (*Config, error) {
	cfg, err := NewConfig()
	if err != nil {
		return nil, err
	}
	log.Init(cfg.ID, cfg.LogLevel)
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(syncRuleStructLevelValidation, SyncRule{})
	validate.RegisterStructValidation(configStructLevelValidation, Config{})

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, formatFieldError(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, ", "))
}

func syncRuleStructLevelValidation(sl validator.StructLevel) {
	rule := sl.Current().Interface().(SyncRule)
	for _, ignored := range rule.ResourcesToIgnore {
		if slices.Contains(rule.ResourcesToSync, ignored) {
			sl.ReportError(rule.ResourcesToIgnore, "ResourcesToIgnore", "ResourcesToIgnore", "excluded_overlap", "ResourcesToSync")
			sl.ReportError(rule.ResourcesToSync, "ResourcesToSync", "ResourcesToSync", "excluded_overlap", "ResourcesToIgnore")
			return
		}
	}
}

// configStructLevelValidation checks that an HTTP-triggered run can always answer
// before the server's write deadline closes the connection.
func configStructLevelValidation(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if cfg.HTTP.WriteTimeout > 0 && cfg.HTTP.WriteTimeout <= cfg.Sync.RunTimeout+RunFinishBudget {
		sl.ReportError(cfg.HTTP.WriteTimeout, "HTTP.WriteTimeout", "WriteTimeout", "outlives_run", RunFinishBudget.String())
	}
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return fmt.Sprintf("%s is required", field)
	case "hostname|ip":
		return fmt.Sprintf("%s must be a valid hostname or IP address", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s items/characters", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must contain unique items", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "excluded_overlap":
		return fmt.Sprintf("%s must not contain items that are also in %s", field, fe.Param())
	case "outlives_run":
		return fmt.Sprintf("%s must be 0 or greater than Sync.RunTimeout plus %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on the '%s' validation", field, fe.Tag())
	}
}
