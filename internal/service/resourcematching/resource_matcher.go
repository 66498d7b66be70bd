// Package resourcematching decides which resources of a source take part in a run.
package resourcematching

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"connector-sync/internal/config"
	"connector-sync/internal/source"
	"connector-sync/pkg/log"
)

var ErrUnknownResource = errors.New("unknown resource")

type ResourceMatcher interface {
	// SelectResources returns the adapter's resources allowed by the sync rules, in
	// registration order. A non-empty requested list narrows the selection further.
	SelectResources(adapter source.Adapter, requested []string) ([]source.Resource, error)
	ShouldSync(source, resource string) bool
}

type RuleResourceMatcher struct {
	crm    *CoreResourceMatcher
	logger zerolog.Logger
}

func NewRuleResourceMatcher(syncRule *config.SyncRule) *RuleResourceMatcher {
	return &RuleResourceMatcher{
		crm: NewCoreResourceMatcher(syncRule),
		logger: log.Logger.With().
			Str("component", "resource_matcher").
			Logger(),
	}
}

func (rm *RuleResourceMatcher) ShouldSync(source, resource string) bool {
	return rm.crm.ShouldSync(source, resource)
}

func (rm *RuleResourceMatcher) SelectResources(adapter source.Adapter, requested []string) ([]source.Resource, error) {
	logger := rm.logger.With().
		Str("action", "select_resources").
		Str("source", adapter.Name().String()).
		Logger()

	all := adapter.Resources()
	for _, name := range requested {
		if !slices.ContainsFunc(all, func(r source.Resource) bool { return r.Name() == name }) {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownResource, adapter.Name(), name)
		}
	}

	selected := make([]source.Resource, 0, len(all))
	for _, res := range all {
		if len(requested) > 0 && !slices.Contains(requested, res.Name()) {
			continue
		}
		if !rm.crm.ShouldSync(adapter.Name().String(), res.Name()) {
			logger.Debug().Str("resource", res.Name()).Msg("Resource excluded by sync rules")
			continue
		}
		selected = append(selected, res)
	}

	logger.Debug().Int("selected_count", len(selected)).Msg("Resources selected")
	return selected, nil
}
