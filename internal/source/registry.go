package source

import (
	"fmt"

	"connector-sync/internal/models"
	"connector-sync/pkg/converter"
)

// Registry resolves source names to adapters.
type Registry struct {
	adapters map[models.SourceName]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.SourceName]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name models.SourceName) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownSource, name)
	}
	return a, nil
}

// Names lists the registered sources in lexical order.
func (r *Registry) Names() []models.SourceName {
	return converter.SortedKeys(r.adapters)
}

// CollectionName is the document collection a source's resource is written to.
func CollectionName(name models.SourceName, resource string) string {
	return string(name) + "_" + resource
}
