package openai

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat/internal/provider/registry"
)

// EndpointType is the endpoint type identifier used in configuration.
const EndpointType = string(domain.EndpointTypeOpenAI)

// EndpointTypeCompatible is the type for self-hosted OpenAI-compatible servers.
const EndpointTypeCompatible = string(domain.EndpointTypeOpenAICompatible)

// RegisterFactories registers both OpenAI endpoint types. Safe to call twice.
func RegisterFactories() {
	if !registry.IsRegistered(EndpointType) {
		registry.RegisterFactory(registry.EndpointFactory{
			Type:           EndpointType,
			Description:    "OpenAI chat completions API",
			Create:         CreateFromConfig,
			ValidateConfig: validateOpenAI,
		})
	}
	if !registry.IsRegistered(EndpointTypeCompatible) {
		registry.RegisterFactory(registry.EndpointFactory{
			Type:           EndpointTypeCompatible,
			Description:    "OpenAI-compatible chat completions server (vLLM, TGI, llama.cpp, Ollama)",
			Create:         CreateFromConfig,
			ValidateConfig: validateCompatible,
		})
	}
}

// CreateFromConfig creates an endpoint for model served by ep.
func CreateFromConfig(ep config.EndpointConfig, model config.ModelConfig, deps registry.Deps) (ports.Endpoint, error) {
	upstream := model.UpstreamModel
	if upstream == "" {
		upstream = model.Name
	}

	opts := []EndpointOption{
		WithStreaming(ep.Streaming()),
		WithDefaults(domain.GenerateSettings{
			MaxNewTokens: model.Parameters.MaxNewTokens,
			Temperature:  model.Parameters.Temperature,
			TopP:         model.Parameters.TopP,
			Stop:         model.Parameters.Stop,
		}),
	}
	if ep.BaseURL != "" {
		opts = append(opts, WithBaseURL(ep.BaseURL))
	}
	if deps.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(deps.HTTPClient))
	}
	if deps.Logger != nil {
		opts = append(opts, WithLogger(deps.Logger.With("endpoint", ep.Name, "model", model.Name)))
	}
	if ep.EstimateUsage && deps.Estimator != nil {
		opts = append(opts, WithUsageEstimator(deps.Estimator))
	}

	return New(ep.APIKey, upstream, opts...), nil
}

func validateOpenAI(ep config.EndpointConfig) error {
	if ep.APIKey == "" {
		return fmt.Errorf("endpoint %q: api_key is required", ep.Name)
	}
	return nil
}

// Local servers often run without a key, but they always need an address.
func validateCompatible(ep config.EndpointConfig) error {
	if ep.BaseURL == "" {
		return fmt.Errorf("endpoint %q: base_url is required", ep.Name)
	}
	if !strings.HasPrefix(ep.BaseURL, "http://") && !strings.HasPrefix(ep.BaseURL, "https://") {
		return fmt.Errorf("endpoint %q: base_url must be http(s), got %q", ep.Name, ep.BaseURL)
	}
	return nil
}
