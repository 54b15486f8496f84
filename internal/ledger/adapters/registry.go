package adapters

import (
	"strings"

	"github.com/blocksettle/ledgerbridge/internal/ledger/domain"
)

type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		backend := strings.ToLower(strings.TrimSpace(factory.Backend()))
		if backend == "" {
			continue
		}
		registry.factories[backend] = factory
	}
	return registry
}

func (r *Registry) BackendExists(backend string) bool {
	if r == nil {
		return false
	}
	backend = strings.ToLower(strings.TrimSpace(backend))
	_, ok := r.factories[backend]
	return ok
}

func (r *Registry) NewAdapter(backend string, cfg domain.AdapterConfig) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrBackendNotFound
	}
	backend = strings.ToLower(strings.TrimSpace(backend))
	factory, ok := r.factories[backend]
	if !ok {
		return nil, domain.ErrBackendNotFound
	}
	return factory.NewAdapter(cfg)
}
