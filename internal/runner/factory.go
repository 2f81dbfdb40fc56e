package runner

import (
	"fmt"
	"time"

	"membench/internal/adapter"
	"membench/internal/adapter/baseline"
	"membench/internal/adapter/chronicle"
	"membench/internal/adapter/vectorrag"
	"membench/internal/config"
	"membench/internal/orchestrator"
)

// AdapterFactory builds a fresh adapter instance by name. Every run gets
// its own instance so lifecycle state never leaks between combinations.
type AdapterFactory func(name string) (adapter.Memory, error)

// AdapterNames lists the backends the default factory can build.
func AdapterNames() []string {
	return []string{"baseline", "chronicle", "vector_rag"}
}

// NewAdapterFactory returns the Docker-backed factory. Each adapter gets
// its own orchestrator so Teardown of one backend cannot touch another's
// containers.
func NewAdapterFactory(cfg *config.Config) AdapterFactory {
	return func(name string) (adapter.Memory, error) {
		switch name {
		case "baseline":
			return baseline.New(), nil
		case "chronicle":
			orch, err := newOrchestrator(cfg)
			if err != nil {
				return nil, err
			}
			return chronicle.New(orch, chronicleConfig(cfg.AdapterConfig(name))), nil
		case "vector_rag":
			orch, err := newOrchestrator(cfg)
			if err != nil {
				return nil, err
			}
			return vectorrag.New(orch, vectorragConfig(cfg.AdapterConfig(name))), nil
		default:
			return nil, fmt.Errorf("unknown adapter %q", name)
		}
	}
}

func newOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	api, err := orchestrator.NewDockerAPI()
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	var opts []orchestrator.Option
	if cfg.Docker.Network != "" {
		opts = append(opts, orchestrator.WithNetworkName(cfg.Docker.Network))
	}
	return orchestrator.New(api, opts...), nil
}

func chronicleConfig(m map[string]any) chronicle.Config {
	cfg := chronicle.DefaultConfig()
	cfg.Image = mapString(m, "image", cfg.Image)
	cfg.Port = mapInt(m, "port", cfg.Port)
	cfg.RedisImage = mapString(m, "redis_image", cfg.RedisImage)
	cfg.RedisPort = mapInt(m, "redis_port", cfg.RedisPort)
	cfg.StartTimeout = mapSeconds(m, "start_timeout", cfg.StartTimeout)
	cfg.TopK = mapInt(m, "top_k", cfg.TopK)
	cfg.BaseURL = mapString(m, "base_url", cfg.BaseURL)
	return cfg
}

func vectorragConfig(m map[string]any) vectorrag.Config {
	cfg := vectorrag.DefaultConfig()
	cfg.Image = mapString(m, "image", cfg.Image)
	cfg.Port = mapInt(m, "port", cfg.Port)
	cfg.StartTimeout = mapSeconds(m, "start_timeout", cfg.StartTimeout)
	cfg.TopK = mapInt(m, "top_k", cfg.TopK)
	cfg.BaseURL = mapString(m, "base_url", cfg.BaseURL)
	return cfg
}

func mapString(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// mapInt tolerates the numeric types YAML and JSON decoders produce.
func mapInt(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func mapSeconds(m map[string]any, key string, fallback time.Duration) time.Duration {
	switch v := m[key].(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return fallback
}
