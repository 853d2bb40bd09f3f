// Package models holds the configured models, each bound to its endpoint and
// reasoning strategy. The table is rebuilt and swapped when configuration
// changes.
package models

import (
	"fmt"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/generation"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
)

// EndpointSource builds one endpoint per configured model, keyed by model name.
type EndpointSource interface {
	CreateEndpoints(cfg *config.Config) (map[string]ports.Endpoint, error)
}

// Table is an immutable snapshot of the configured models.
type Table struct {
	ordered []*generation.Model
	byName  map[string]*generation.Model
	task    *generation.Model
}

// Build creates a table from cfg. The task model is generation.task_model
// when set, otherwise the first configured model.
func Build(cfg *config.Config, endpoints EndpointSource) (*Table, error) {
	eps, err := endpoints.CreateEndpoints(cfg)
	if err != nil {
		return nil, err
	}

	t := &Table{byName: make(map[string]*generation.Model, len(cfg.Models))}
	for _, mc := range cfg.Models {
		m, err := generation.NewModel(mc, eps[mc.Name])
		if err != nil {
			return nil, err
		}
		t.ordered = append(t.ordered, m)
		t.byName[m.Name] = m
	}

	if name := cfg.Generation.TaskModel; name != "" {
		m, ok := t.byName[name]
		if !ok {
			return nil, fmt.Errorf("task model %q is not configured", name)
		}
		t.task = m
	} else if len(t.ordered) > 0 {
		t.task = t.ordered[0]
	}

	return t, nil
}

// Get returns the model with the given name.
func (t *Table) Get(name string) (*generation.Model, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// List returns the models in configuration order.
func (t *Table) List() []*generation.Model {
	return append([]*generation.Model(nil), t.ordered...)
}

// TaskModel returns the model used for summaries, or nil if none are configured.
func (t *Table) TaskModel() *generation.Model {
	return t.task
}

// Store publishes the current table. Readers never block; a generation that
// already picked its model keeps it across a swap.
type Store struct {
	current atomic.Pointer[Table]
}

// NewStore creates a store serving t.
func NewStore(t *Table) *Store {
	s := &Store{}
	s.current.Store(t)
	return s
}

// Current returns the table in effect.
func (s *Store) Current() *Table {
	return s.current.Load()
}

// Swap installs t.
func (s *Store) Swap(t *Table) {
	s.current.Store(t)
}

// Get looks up a model in the current table.
func (s *Store) Get(name string) (*generation.Model, bool) {
	return s.Current().Get(name)
}

// List lists the current table.
func (s *Store) List() []*generation.Model {
	return s.Current().List()
}

// TaskModel implements generation.TaskModelSource against the current table.
func (s *Store) TaskModel() *generation.Model {
	return s.Current().TaskModel()
}

// Reload rebuilds the table from cfg and swaps it in. On error the current
// table stays in place.
func (s *Store) Reload(cfg *config.Config, endpoints EndpointSource) error {
	t, err := Build(cfg, endpoints)
	if err != nil {
		return fmt.Errorf("rebuild model table: %w", err)
	}
	s.Swap(t)
	return nil
}
