package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes environment overrides, e.g. CHAT_SERVER__PORT=9000.
const EnvPrefix = "CHAT_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Auth       AuthConfig       `koanf:"auth"`
	Storage    StorageConfig    `koanf:"storage"`
	Generation GenerationConfig `koanf:"generation"`
	Endpoints  []EndpointConfig `koanf:"endpoints"`
	Models     []ModelConfig    `koanf:"models"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// TelemetryConfig controls the stdout trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
	PrettyPrint bool   `koanf:"pretty_print"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// BlockPrivateEgress refuses upstream connections to loopback and private addresses.
	BlockPrivateEgress bool `koanf:"block_private_egress"`
}

type AuthConfig struct {
	APIKeys     []APIKeyConfig `koanf:"api_keys"`
	AdminSecret string         `koanf:"admin_secret"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	UserID      string `koanf:"user_id"`
	Description string `koanf:"description"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// GenerationConfig tunes the generation pipeline and the abort registry.
type GenerationConfig struct {
	// AbortTTL is the longest a generation may run; older stop requests are swept.
	AbortTTL       time.Duration `koanf:"abort_ttl"`
	AbortCapacity  int           `koanf:"abort_capacity"`
	AbortRefresh   time.Duration `koanf:"abort_refresh"`
	StatusInterval time.Duration `koanf:"status_interval"`
	// TaskModel names the model used for reasoning summaries.
	TaskModel string `koanf:"task_model"`
}

type EndpointConfig struct {
	Name          string `koanf:"name"`
	Type          string `koanf:"type"`
	APIKey        string `koanf:"api_key"`
	BaseURL       string `koanf:"base_url"`
	Stream        *bool  `koanf:"stream"`         // defaults to true
	EstimateUsage bool   `koanf:"estimate_usage"` // count tokens locally when upstream sends no usage
}

// Streaming reports whether the endpoint should use server-sent events.
func (e EndpointConfig) Streaming() bool {
	return e.Stream == nil || *e.Stream
}

type ModelConfig struct {
	Name          string           `koanf:"name"`
	DisplayName   string           `koanf:"display_name"`
	Endpoint      string           `koanf:"endpoint"`
	UpstreamModel string           `koanf:"upstream_model"`
	Multimodal    bool             `koanf:"multimodal"`
	Preprompt     string           `koanf:"preprompt"`
	Parameters    ParametersConfig `koanf:"parameters"`
	Reasoning     *ReasoningConfig `koanf:"reasoning"`
}

type ParametersConfig struct {
	Stop         []string `koanf:"stop"`
	MaxNewTokens int      `koanf:"max_new_tokens"`
	Temperature  *float32 `koanf:"temperature"`
	TopP         *float32 `koanf:"top_p"`
}

// Reasoning strategy names.
const (
	ReasoningRegex     = "regex"
	ReasoningSummarize = "summarize"
	ReasoningTokens    = "tokens"
)

type ReasoningConfig struct {
	Type       string `koanf:"type"`
	Regex      string `koanf:"regex"`
	BeginToken string `koanf:"begin_token"`
	EndToken   string `koanf:"end_token"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath (if present) overlaid by CHAT_ environment variables.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads path (if present) overlaid by CHAT_ environment variables.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	setDefault(k, "server.port", 8080)
	setDefault(k, "server.request_timeout", "10m")
	setDefault(k, "storage.type", "memory")
	setDefault(k, "storage.sqlite.path", "./data/chat.db")
	setDefault(k, "generation.abort_ttl", "10m")
	setDefault(k, "generation.abort_capacity", 10000)
	setDefault(k, "generation.abort_refresh", "1s")
	setDefault(k, "generation.status_interval", "4s")
	setDefault(k, "telemetry.service_name", "polyglot-chat")

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Endpoints {
		cfg.Endpoints[i].APIKey = substituteEnvVars(cfg.Endpoints[i].APIKey)
		cfg.Endpoints[i].BaseURL = substituteEnvVars(cfg.Endpoints[i].BaseURL)
	}
	cfg.Auth.AdminSecret = substituteEnvVars(cfg.Auth.AdminSecret)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

// Validate checks cross references between models and endpoints.
func (c *Config) Validate() error {
	endpoints := make(map[string]bool, len(c.Endpoints))
	for _, e := range c.Endpoints {
		if e.Name == "" {
			return fmt.Errorf("endpoint with empty name")
		}
		endpoints[e.Name] = true
	}

	models := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("model with empty name")
		}
		if models[m.Name] {
			return fmt.Errorf("duplicate model %q", m.Name)
		}
		models[m.Name] = true
		if !endpoints[m.Endpoint] {
			return fmt.Errorf("model %q references unknown endpoint %q", m.Name, m.Endpoint)
		}
		if r := m.Reasoning; r != nil {
			switch r.Type {
			case ReasoningRegex:
				if r.Regex == "" {
					return fmt.Errorf("model %q: regex reasoning needs a regex", m.Name)
				}
			case ReasoningSummarize:
			case ReasoningTokens:
				if r.EndToken == "" {
					return fmt.Errorf("model %q: tokens reasoning needs an end_token", m.Name)
				}
			default:
				return fmt.Errorf("model %q: unknown reasoning type %q", m.Name, r.Type)
			}
		}
	}

	if c.Generation.TaskModel != "" && !models[c.Generation.TaskModel] {
		return fmt.Errorf("task_model %q is not a configured model", c.Generation.TaskModel)
	}

	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
