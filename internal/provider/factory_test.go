package provider_test

import (
	"testing"

	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat/internal/provider"
)

func TestRegisterBuiltins(t *testing.T) {
	provider.RegisterBuiltins()
	// Registration is idempotent.
	provider.RegisterBuiltins()

	tests := []struct {
		endpointType string
		wantOk       bool
	}{
		{"openai", true},
		{"openai-compatible", true},
		{"anthropic", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpointType, func(t *testing.T) {
			f, ok := provider.GetFactory(tt.endpointType)
			if ok != tt.wantOk {
				t.Fatalf("GetFactory(%q) ok = %v, want %v", tt.endpointType, ok, tt.wantOk)
			}
			if ok && (f.Description == "" || f.Create == nil) {
				t.Errorf("factory %q is incomplete: %+v", tt.endpointType, f)
			}
		})
	}

	types := provider.ListTypes()
	if len(types) != 2 || types[0] != "openai" || types[1] != "openai-compatible" {
		t.Errorf("ListTypes() = %v", types)
	}
}

func TestRegistry_CreateEndpoints(t *testing.T) {
	provider.RegisterBuiltins()
	r := provider.NewRegistry(provider.Deps{})

	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr bool
	}{
		{
			name: "openai",
			cfg: &config.Config{
				Endpoints: []config.EndpointConfig{{Name: "oai", Type: "openai", APIKey: "sk-test"}},
				Models:    []config.ModelConfig{{Name: "gpt-4o", Endpoint: "oai"}},
			},
		},
		{
			name: "compatible without key",
			cfg: &config.Config{
				Endpoints: []config.EndpointConfig{{Name: "local", Type: "openai-compatible", BaseURL: "http://localhost:8000/v1"}},
				Models:    []config.ModelConfig{{Name: "llama", Endpoint: "local", UpstreamModel: "meta-llama/Llama-3.1-8B"}},
			},
		},
		{
			name: "openai without key",
			cfg: &config.Config{
				Endpoints: []config.EndpointConfig{{Name: "oai", Type: "openai"}},
				Models:    []config.ModelConfig{{Name: "gpt-4o", Endpoint: "oai"}},
			},
			wantErr: true,
		},
		{
			name: "compatible without base url",
			cfg: &config.Config{
				Endpoints: []config.EndpointConfig{{Name: "local", Type: "openai-compatible"}},
				Models:    []config.ModelConfig{{Name: "llama", Endpoint: "local"}},
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			cfg: &config.Config{
				Endpoints: []config.EndpointConfig{{Name: "g", Type: "gemini"}},
				Models:    []config.ModelConfig{{Name: "gemini-pro", Endpoint: "g"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoints, err := r.CreateEndpoints(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateEndpoints() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(endpoints) != len(tt.cfg.Models) {
				t.Errorf("got %d endpoints, want %d", len(endpoints), len(tt.cfg.Models))
			}
		})
	}
}
