package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk CLI configuration. The two API keys fall back to the
// ANTHROPIC_API_KEY and OPENAI_API_KEY environment variables; other fields
// have no environment fallback.
type Config struct {
	Provider  string        `yaml:"provider"` // "anthropic" or "openai"
	Model     string        `yaml:"model"`
	Workspace string        `yaml:"workspace"` // root directory file/exec tools are scoped to
	MaxTurns  int           `yaml:"max_turns"`
	Timeout   time.Duration `yaml:"timeout"` // per-delegation timeout

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
}

// DefaultConfigPath is where loadConfig looks when --config is not given.
const DefaultConfigPath = "nexus.yaml"

// defaultConfig returns the configuration a bare `nexus run` gets when no
// file and no overrides are present.
func defaultConfig() Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return Config{
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-20250514",
		Workspace: wd,
		MaxTurns:  70,
		Timeout:   10 * time.Minute,
	}
}

// loadConfig reads path (defaulting to DefaultConfigPath) if present,
// overlays it onto defaultConfig, and fills credentials from the
// environment when the file doesn't set them.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// No config file: defaults + environment only.
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}
