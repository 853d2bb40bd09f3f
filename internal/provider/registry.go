package provider

import (
	"fmt"

	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
)

// Registry creates endpoints from configuration using registered factories.
type Registry struct {
	deps Deps
}

// NewRegistry creates a registry that hands deps to every factory.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps}
}

// CreateEndpoint builds the endpoint serving model through ep.
func (r *Registry) CreateEndpoint(ep config.EndpointConfig, model config.ModelConfig) (ports.Endpoint, error) {
	return createFromFactory(ep, model, r.deps)
}

// CreateEndpoints builds one endpoint per configured model, keyed by model name.
func (r *Registry) CreateEndpoints(cfg *config.Config) (map[string]ports.Endpoint, error) {
	byName := make(map[string]config.EndpointConfig, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		byName[ep.Name] = ep
	}

	endpoints := make(map[string]ports.Endpoint, len(cfg.Models))
	for _, m := range cfg.Models {
		ep, ok := byName[m.Endpoint]
		if !ok {
			return nil, fmt.Errorf("model %s: unknown endpoint %s", m.Name, m.Endpoint)
		}
		e, err := r.CreateEndpoint(ep, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create endpoint for model %s: %w", m.Name, err)
		}
		endpoints[m.Name] = e
	}
	return endpoints, nil
}
