// Package registry provides endpoint factory registration and lookup.
//
// # Adding a New Endpoint Type
//
// Each endpoint package exposes an explicit registration function:
//
//	func RegisterFactory() {
//	    if registry.IsRegistered(EndpointType) {
//	        return
//	    }
//	    registry.RegisterFactory(registry.EndpointFactory{
//	        Type:        EndpointType,
//	        Description: "Example API",
//	        Create:      CreateFromConfig,
//	    })
//	}
//
// provider.RegisterBuiltins calls it so no init() side effects are needed.
package registry

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat/internal/tokens"
)

// Deps are shared collaborators handed to every factory.
type Deps struct {
	HTTPClient *http.Client
	Estimator  *tokens.UsageEstimator
	Logger     *slog.Logger
}

// EndpointFactory defines how to create an endpoint of a specific type.
type EndpointFactory struct {
	// Type is the identifier used in configuration (e.g. "openai").
	Type string

	// Description provides a human-readable description.
	Description string

	// Create builds the endpoint serving model through ep.
	Create func(ep config.EndpointConfig, model config.ModelConfig, deps Deps) (ports.Endpoint, error)

	// ValidateConfig performs type-specific configuration validation.
	// Optional: if nil, no additional validation is performed.
	ValidateConfig func(ep config.EndpointConfig) error
}

var (
	factoryMu   sync.RWMutex
	factoryMap  = make(map[string]EndpointFactory)
	factoryList []EndpointFactory
)

// RegisterFactory registers a factory. Panics if the type is empty, has no
// Create function, or is already registered.
func RegisterFactory(f EndpointFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Type == "" {
		panic("endpoint factory type cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("endpoint factory %q must have a Create function", f.Type))
	}
	if _, exists := factoryMap[f.Type]; exists {
		panic(fmt.Sprintf("endpoint factory %q already registered", f.Type))
	}

	factoryMap[f.Type] = f
	factoryList = append(factoryList, f)
}

// GetFactory returns the factory for an endpoint type, if registered.
func GetFactory(endpointType string) (EndpointFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factoryMap[endpointType]
	return f, ok
}

// ListFactories returns all registered factories sorted by type.
func ListFactories() []EndpointFactory {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	result := make([]EndpointFactory, len(factoryList))
	copy(result, factoryList)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Type < result[j].Type
	})
	return result
}

// ListTypes returns all registered endpoint type names.
func ListTypes() []string {
	factories := ListFactories()
	types := make([]string, len(factories))
	for i, f := range factories {
		types[i] = f.Type
	}
	return types
}

// IsRegistered returns true if an endpoint type is registered.
func IsRegistered(endpointType string) bool {
	_, ok := GetFactory(endpointType)
	return ok
}

// CreateFromFactory validates ep and builds an endpoint for model.
func CreateFromFactory(ep config.EndpointConfig, model config.ModelConfig, deps Deps) (ports.Endpoint, error) {
	f, ok := GetFactory(ep.Type)
	if !ok {
		return nil, fmt.Errorf("unknown endpoint type: %s (registered types: %v)", ep.Type, ListTypes())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(ep); err != nil {
			return nil, fmt.Errorf("invalid configuration for endpoint type %s: %w", ep.Type, err)
		}
	}

	return f.Create(ep, model, deps)
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryMap = make(map[string]EndpointFactory)
	factoryList = nil
}
