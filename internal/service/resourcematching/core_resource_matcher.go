package resourcematching

import (
	"github.com/bmatcuk/doublestar/v4"

	"connector-sync/internal/config"
)

// CoreResourceMatcher contains the core pattern matching logic without dependencies.
// Patterns are doublestar globs evaluated against "source/resource".
type CoreResourceMatcher struct {
	syncRule *config.SyncRule
}

func NewCoreResourceMatcher(syncRule *config.SyncRule) *CoreResourceMatcher {
	return &CoreResourceMatcher{
		syncRule: syncRule,
	}
}

// ShouldSync applies the ignore list first, then the include list. An empty include
// list includes everything.
func (crm *CoreResourceMatcher) ShouldSync(source, resource string) bool {
	path := source + "/" + resource

	for _, ignorePattern := range crm.syncRule.ResourcesToIgnore {
		if crm.matchesGlobPattern(ignorePattern, path) {
			return false
		}
	}

	if len(crm.syncRule.ResourcesToSync) == 0 {
		return true
	}
	for _, syncPattern := range crm.syncRule.ResourcesToSync {
		if crm.matchesGlobPattern(syncPattern, path) {
			return true
		}
	}
	return false
}

func (crm *CoreResourceMatcher) matchesGlobPattern(pattern, path string) bool {
	matched, err := doublestar.Match(pattern, path)
	if err != nil {
		return false
	}
	return matched
}
