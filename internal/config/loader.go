package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return &cfg, secrets, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Generation.NumTasks == 0 {
		cfg.Generation.NumTasks = 10
	}
	if cfg.Generation.Parallelism == 0 {
		cfg.Generation.Parallelism = 3
	}
	// TOML cannot distinguish 0 from unset, so 0 defaults to 2 and an
	// explicit -1 disables task-level retries.
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 2
	}
	if cfg.Generation.MaxRetries < 0 {
		cfg.Generation.MaxRetries = 0
	}
	if cfg.Generation.ValidationRounds == 0 {
		cfg.Generation.ValidationRounds = 5
	}
	if cfg.Generation.OutputDir == "" {
		cfg.Generation.OutputDir = "output"
	}

	for name, model := range cfg.Models {
		if model.Temperature == 0 {
			model.Temperature = 0.7
		}
		if model.TopP == 0 {
			model.TopP = 1.0
		}
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 16384
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 60
		}
		if model.HTTPTimeoutSeconds == 0 {
			model.HTTPTimeoutSeconds = 120
		}
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
		}
		cfg.Models[name] = model
	}

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8000"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = os.TempDir() + "/agentic-rl-uploads"
	}

	if cfg.Sandbox.Command == "" {
		cfg.Sandbox.Command = "bash run-tests.sh"
	}
	if cfg.Sandbox.TimeoutSeconds == 0 {
		cfg.Sandbox.TimeoutSeconds = 600
	}

	if cfg.PromptTemplates.TaskSystemPrompt == "" {
		cfg.PromptTemplates.TaskSystemPrompt = DefaultTaskSystemPrompt()
	}
	if cfg.PromptTemplates.TaskGeneration == "" {
		cfg.PromptTemplates.TaskGeneration = DefaultTaskTemplate()
	}
	if cfg.PromptTemplates.RatingRubric == "" {
		cfg.PromptTemplates.RatingRubric = DefaultRatingTemplate()
	}
}
