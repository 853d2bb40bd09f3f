package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
)

const baseConfig = `
endpoints:
  - name: oai
    type: openai
models:
  - name: first
    endpoint: oai
`

func TestProvider_LoadAndWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(baseConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	p, err := NewProvider(path, nil)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Name != "first" {
		t.Fatalf("models = %+v", cfg.Models)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 4)
	if err := p.Watch(ctx, func(c *config.Config) { reloaded <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	updated := baseConfig + `
  - name: second
    endpoint: oai
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if len(c.Models) == 2 {
				if got := p.Current(); len(got.Models) != 2 {
					t.Errorf("Current() models = %d, want 2", len(got.Models))
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestProvider_WatchSurvivesRenameAndBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(baseConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	p, err := NewProvider(path, nil)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 4)
	if err := p.Watch(ctx, func(c *config.Config) { reloaded <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// A model pointing at a missing endpoint fails validation and is skipped.
	bad := baseConfig + `
  - name: broken
    endpoint: nowhere
`
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("write bad config: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := p.Current(); len(got.Models) != 1 {
		t.Fatalf("Current() models = %d after invalid config, want 1", len(got.Models))
	}

	// Editors often save by writing a temp file and renaming it over the original.
	tmp := filepath.Join(dir, "config.yaml.tmp")
	updated := baseConfig + `
  - name: second
    endpoint: oai
`
	if err := os.WriteFile(tmp, []byte(updated), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if len(c.Models) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload after rename")
		}
	}
}
