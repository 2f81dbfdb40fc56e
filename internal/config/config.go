// Package config loads the layered harness configuration: built-in
// defaults, then an optional YAML file, then MEMBENCH_* environment
// overrides, each layer winning over the previous one.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file consulted when none is given.
const DefaultPath = "membench.yaml"

type Config struct {
	LLM       LLMConfig                 `koanf:"llm"`
	Defaults  DefaultsConfig            `koanf:"defaults"`
	Docker    DockerConfig              `koanf:"docker"`
	Adapters  map[string]map[string]any `koanf:"adapters"`
	Scenarios map[string]map[string]any `koanf:"scenarios"`
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"`
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
}

type DefaultsConfig struct {
	Trials    int    `koanf:"trials"`
	OutputDir string `koanf:"output_dir"`
}

type DockerConfig struct {
	Network string `koanf:"network"`
}

// Load reads the configuration from path. A missing file is fine: env
// overrides and defaults still apply. Nested keys in the environment
// use a double underscore, e.g. MEMBENCH_LLM__API_KEY.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("MEMBENCH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "MEMBENCH_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	defaults := map[string]any{
		"llm.provider":        "openai",
		"llm.model":           "gpt-4-turbo-preview",
		"llm.temperature":     0.0,
		"llm.max_tokens":      1024,
		"defaults.trials":     50,
		"defaults.output_dir": "results",
		"docker.network":      "membench-net",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Provider)
	}
	return &cfg, nil
}

// providerKeyFromEnv falls back to the provider's conventional key
// variable when no key is configured explicitly.
func providerKeyFromEnv(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// ScenarioConfig returns the configuration map for one scenario, empty
// when the scenario has no entry.
func (c *Config) ScenarioConfig(name string) map[string]any {
	if cfg, ok := c.Scenarios[name]; ok && cfg != nil {
		return cfg
	}
	return map[string]any{}
}

// AdapterConfig returns the configuration map for one adapter, empty
// when the adapter has no entry.
func (c *Config) AdapterConfig(name string) map[string]any {
	if cfg, ok := c.Adapters[name]; ok && cfg != nil {
		return cfg
	}
	return map[string]any{}
}
