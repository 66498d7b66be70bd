package configprint

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"connector-sync/internal/config"
	"connector-sync/pkg/log"
)

const redacted = "******"

var (
	sectionFlag string
	formatFlag  string
)

var ConfigPrintCmd = &cobra.Command{
	Use:   "config-print",
	Short: "Print the current configuration",
	Long: `Print the loaded configuration or a specific section of it, with secrets redacted.
Supports YAML and JSON output formats.`,
	Example: `  # Print entire config
  connector-sync config-print

  # Print specific section
  connector-sync config-print --section sources
  connector-sync config-print --section postgres
  connector-sync config-print --section sync

  # Print in YAML format
  connector-sync config-print --section kafka --format yaml`,
	RunE: run,
}

func init() {
	ConfigPrintCmd.Flags().StringVarP(&sectionFlag, "section", "s", "",
		"print only a specific section (sources, postgres, redis, kafka, http, sync)")
	ConfigPrintCmd.Flags().StringVarP(&formatFlag, "format", "f", "json",
		"output format (yaml|json)")
}

func run(_ *cobra.Command, _ []string) error {
	logger := log.Logger.With().Str("component", "config_print").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	cfg = redact(cfg)

	var output any
	if sectionFlag == "" {
		output = cfg
		logger.Info().Msg("Printing entire configuration")
	} else {
		output, err = getSection(cfg, sectionFlag)
		if err != nil {
			logger.Error().Err(err).Str("section", sectionFlag).Msg("Invalid section")
			return err
		}
		logger.Info().Str("section", sectionFlag).Msg("Printing configuration section")
	}

	switch formatFlag {
	case "yaml":
		return printYAML(logger, output)
	case "json":
		printJSON(logger, output)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

// redact returns a copy of cfg with every credential replaced.
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	if cfg.Postgres != nil {
		pg := *cfg.Postgres
		pg.Password = mask(pg.Password)
		out.Postgres = &pg
	}
	out.Redis.Password = mask(cfg.Redis.Password)
	out.Sources = make([]config.SourceConfig, len(cfg.Sources))
	for i, src := range cfg.Sources {
		src.ClientSecret = mask(src.ClientSecret)
		out.Sources[i] = src
	}
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}

func getSection(cfg *config.Config, section string) (any, error) {
	switch section {
	case "sources":
		return cfg.Sources, nil
	case "postgres":
		return cfg.Postgres, nil
	case "redis":
		return cfg.Redis, nil
	case "kafka":
		return cfg.Kafka, nil
	case "http":
		return cfg.HTTP, nil
	case "sync":
		return cfg.Sync, nil
	case "concurrency":
		return map[string]int{"concurrency": cfg.Concurrency}, nil
	case "interval":
		return map[string]int{"interval": cfg.Interval}, nil
	case "log_level":
		return map[string]string{"log_level": cfg.LogLevel}, nil
	case "id":
		return map[string]string{"id": cfg.ID}, nil
	default:
		return nil,
			fmt.Errorf(
				"unknown section: %s (valid: sources, postgres, redis, kafka, http, sync, "+
					"concurrency, interval, id, log_level)",
				section,
			)
	}
}

func printYAML(logger zerolog.Logger, data any) error {
	bytes, err := yaml.Marshal(data)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode YAML")
		return err
	}
	logger.Info().
		Str("format", "yaml").
		Str("config", "\n"+string(bytes)).
		Msg("Printing Configuration")
	return nil
}

func printJSON(logger zerolog.Logger, data any) {
	logger.Info().Interface("config", data).Msg("Printing Configuration")
}
