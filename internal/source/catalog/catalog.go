// Package catalog builds source adapters from configuration.
package catalog

import (
	"fmt"

	"connector-sync/internal/config"
	"connector-sync/internal/models"
	"connector-sync/internal/source"
	"connector-sync/internal/source/googleads"
	"connector-sync/internal/source/googleanalytics"
	"connector-sync/internal/source/hubspot"
	"connector-sync/internal/source/seocrawler"
	"connector-sync/internal/source/xero"
)

// NewAdapter returns the adapter for cfg.Name.
func NewAdapter(cfg config.SourceConfig) (source.Adapter, error) {
	switch models.SourceName(cfg.Name) {
	case models.SourceHubSpot:
		return hubspot.New(cfg), nil
	case models.SourceGoogleAds:
		return googleads.New(cfg), nil
	case models.SourceGoogleAnalytics:
		return googleanalytics.New(cfg), nil
	case models.SourceSEOCrawler:
		return seocrawler.New(cfg), nil
	case models.SourceXero:
		return xero.New(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownSource, cfg.Name)
	}
}

// NewRegistry builds a registry holding one adapter per configured source.
func NewRegistry(sources []config.SourceConfig) (*source.Registry, error) {
	adapters := make([]source.Adapter, 0, len(sources))
	for _, cfg := range sources {
		a, err := NewAdapter(cfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return source.NewRegistry(adapters...), nil
}
