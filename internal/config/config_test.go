package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("provider = %q, want openai", cfg.LLM.Provider)
	}
	if cfg.Defaults.Trials != 50 {
		t.Errorf("trials = %d, want 50", cfg.Defaults.Trials)
	}
	if cfg.Docker.Network != "membench-net" {
		t.Errorf("network = %q", cfg.Docker.Network)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "membench.yaml")
	data := `
llm:
  provider: anthropic
  model: claude-from-file
defaults:
  trials: 5
scenarios:
  fact_correction:
    versions: 3
adapters:
  chronicle:
    port: 18380
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEMBENCH_LLM__MODEL", "claude-from-env")
	t.Setenv("MEMBENCH_DEFAULTS__TRIALS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic (from file)", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "claude-from-env" {
		t.Errorf("model = %q, want env override", cfg.LLM.Model)
	}
	if cfg.Defaults.Trials != 7 {
		t.Errorf("trials = %d, want env override 7", cfg.Defaults.Trials)
	}

	sc := cfg.ScenarioConfig("fact_correction")
	if sc["versions"] != 3 {
		t.Errorf("scenario versions = %v (%T), want 3", sc["versions"], sc["versions"])
	}
	if len(cfg.ScenarioConfig("niah")) != 0 {
		t.Error("unconfigured scenario returned non-empty config")
	}

	ac := cfg.AdapterConfig("chronicle")
	if ac["port"] != 18380 {
		t.Errorf("adapter port = %v, want 18380", ac["port"])
	}
	if len(cfg.AdapterConfig("missing")) != 0 {
		t.Error("unconfigured adapter returned non-empty config")
	}
}

func TestProviderKeyFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ak-env")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("MEMBENCH_LLM__PROVIDER", "anthropic")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "ak-env" {
		t.Errorf("api key = %q, want anthropic env key", cfg.LLM.APIKey)
	}
}
