package resourcematcher

import (
	"bufio"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"connector-sync/internal/config"
	"connector-sync/internal/service/resourcematching"
	"connector-sync/pkg/log"
)

var resourcesFile string

var logger = log.Logger.With().Str("component", "resource-matcher").Logger()

var ResourceMatcherCmd = &cobra.Command{
	Use:   "resource-matcher",
	Short: "Test resource matching patterns against a list of resources",
	Long: `Test your sync rules against a list of resources to see which ones would be synced.

The resources file should contain one resource per line in the format: source/resource
For example:
  hubspot/contacts
  google_ads/campaigns
  xero/invoices`,
	RunE: runResourceMatcher,
}

func init() {
	ResourceMatcherCmd.Flags().StringVarP(&resourcesFile, "resources-file", "f", "", "File containing resources to test (one per line)")
	if err := ResourceMatcherCmd.MarkFlagRequired("resources-file"); err != nil {
		logger.Error().Err(err).Msg("Failed to mark resources-file as required")
		os.Exit(-1)
	}
}

func runResourceMatcher(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load config")
		return err
	}

	matcher := resourcematching.NewCoreResourceMatcher(&cfg.Sync)

	resources, err := readResourcesFromFile(resourcesFile)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read resources file")
		return err
	}

	if len(resources) == 0 {
		logger.Warn().Msg("No resources provided in --resources-file.")
		return nil
	}

	logger.Info().Int("resource_count", len(resources)).Msg("Testing resources against sync rules")

	matched, ignored := 0, 0
	for _, line := range resources {
		src, resource, ok := strings.Cut(line, "/")
		if !ok || src == "" || resource == "" {
			logger.Warn().Msgf("❌ INVALID (format should be source/resource): %s", line)
			continue
		}

		if matcher.ShouldSync(src, resource) {
			logger.Info().Msgf("✅ MATCH:   %s", line)
			matched++
		} else {
			logger.Info().Msgf("❌ IGNORE:  %s", line)
			ignored++
		}
	}

	logger.Info().
		Int("matched", matched).
		Int("ignored", ignored).
		Int("total", matched+ignored).
		Msg("Process is completed")
	return nil
}

func readResourcesFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		logger.Error().Err(err).Str("file_name", filename).Msg("failed to open file")
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Str("file_name", filename).Msg("failed to close file")
		}
	}()

	var resources []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			resources = append(resources, line)
		}
	}

	return resources, scanner.Err()
}
