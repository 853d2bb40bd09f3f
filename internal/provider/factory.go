// Package provider builds model endpoints from configuration.
//
// # Adding a New Endpoint Type
//
// Implement ports.Endpoint in a subpackage, expose a registration function
// that calls registry.RegisterFactory, and call it from RegisterBuiltins.
package provider

import (
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat/internal/provider/openai"
	"github.com/tjfontaine/polyglot-chat/internal/provider/registry"
)

// Re-export types from registry for convenience
type (
	EndpointFactory = registry.EndpointFactory
	Deps            = registry.Deps
)

// RegisterFactory registers an endpoint factory (delegated to registry).
var RegisterFactory = registry.RegisterFactory

// GetFactory returns the factory for an endpoint type (delegated to registry).
var GetFactory = registry.GetFactory

// ListFactories returns all registered factories (delegated to registry).
var ListFactories = registry.ListFactories

// ListTypes returns all registered endpoint type names (delegated to registry).
var ListTypes = registry.ListTypes

// IsRegistered returns true if an endpoint type is registered (delegated to registry).
var IsRegistered = registry.IsRegistered

// ClearFactories removes all registered factories (for testing only).
var ClearFactories = registry.ClearFactories

// RegisterBuiltins registers every endpoint type shipped with the server.
func RegisterBuiltins() {
	openai.RegisterFactories()
}

func createFromFactory(ep config.EndpointConfig, model config.ModelConfig, deps Deps) (ports.Endpoint, error) {
	return registry.CreateFromFactory(ep, model, deps)
}
