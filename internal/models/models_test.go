package models

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/generation"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
)

type fakeEndpoints struct {
	err error
}

func (f fakeEndpoints) CreateEndpoints(cfg *config.Config) (map[string]ports.Endpoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	eps := make(map[string]ports.Endpoint, len(cfg.Models))
	for _, m := range cfg.Models {
		eps[m.Name] = ports.EndpointFunc(func(context.Context, *domain.EndpointRequest) (<-chan domain.RawTokenEvent, error) {
			return nil, errors.New("not used")
		})
	}
	return eps, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Models: []config.ModelConfig{
			{Name: "big", Endpoint: "oai", Reasoning: &config.ReasoningConfig{Type: config.ReasoningTokens, BeginToken: "<think>", EndToken: "</think>"}},
			{Name: "small", DisplayName: "Small Model", Endpoint: "oai", Parameters: config.ParametersConfig{Stop: []string{"</s>"}}},
		},
	}
}

func TestBuild(t *testing.T) {
	table, err := Build(testConfig(), fakeEndpoints{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if got := table.List(); len(got) != 2 || got[0].Name != "big" || got[1].Name != "small" {
		t.Fatalf("List() = %+v, want config order", got)
	}

	big, ok := table.Get("big")
	if !ok {
		t.Fatal("Get(big) not found")
	}
	if _, ok := big.Reasoning.(*generation.TokensReasoning); !ok {
		t.Errorf("big reasoning = %T, want *TokensReasoning", big.Reasoning)
	}
	if big.Endpoint == nil {
		t.Error("big has no endpoint")
	}

	small, _ := table.Get("small")
	if small.DisplayName != "Small Model" || len(small.Stop) != 1 {
		t.Errorf("small = %+v", small)
	}

	if table.TaskModel() != big {
		t.Errorf("TaskModel() = %v, want first model", table.TaskModel())
	}
}

func TestBuild_TaskModel(t *testing.T) {
	cfg := testConfig()
	cfg.Generation.TaskModel = "small"

	table, err := Build(cfg, fakeEndpoints{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if table.TaskModel().Name != "small" {
		t.Errorf("TaskModel() = %s, want small", table.TaskModel().Name)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.Config)
		endpoints fakeEndpoints
	}{
		{
			name:      "endpoint failure",
			mutate:    func(*config.Config) {},
			endpoints: fakeEndpoints{err: errors.New("bad api key")},
		},
		{
			name: "bad reasoning",
			mutate: func(c *config.Config) {
				c.Models[0].Reasoning = &config.ReasoningConfig{Type: config.ReasoningRegex, Regex: "("}
			},
		},
		{
			name:   "unknown task model",
			mutate: func(c *config.Config) { c.Generation.TaskModel = "missing" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if _, err := Build(cfg, tt.endpoints); err == nil {
				t.Error("Build() error = nil")
			}
		})
	}
}

func TestStore_Reload(t *testing.T) {
	table, err := Build(testConfig(), fakeEndpoints{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	store := NewStore(table)
	held, _ := store.Get("big")

	next := testConfig()
	next.Models = next.Models[1:]
	if err := store.Reload(next, fakeEndpoints{}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if _, ok := store.Get("big"); ok {
		t.Error("removed model still served after reload")
	}
	if store.TaskModel().Name != "small" {
		t.Errorf("TaskModel() = %s, want small", store.TaskModel().Name)
	}
	if held.Name != "big" {
		t.Error("model held across reload was modified")
	}

	if err := store.Reload(testConfig(), fakeEndpoints{err: errors.New("boom")}); err == nil {
		t.Fatal("Reload() error = nil")
	}
	if len(store.List()) != 1 {
		t.Error("failed reload replaced the table")
	}
}
