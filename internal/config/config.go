package config

import (
	"fmt"
	"os"
	"strings"
)

// Config represents the complete application configuration
type Config struct {
	Generation      GenerationConfig       `toml:"generation"`
	Models          map[string]ModelConfig `toml:"models"`
	PromptTemplates PromptTemplates        `toml:"prompt_templates"`
	Server          ServerConfig           `toml:"server"`
	Sandbox         SandboxConfig          `toml:"sandbox"`
}

// GenerationConfig holds generation-specific settings
type GenerationConfig struct {
	Scenario         string `toml:"scenario"`          // Default scenario text for CLI runs
	NumTasks         int    `toml:"num_tasks"`         // Tasks per run (1-100)
	Parallelism      int    `toml:"parallelism"`       // Concurrent generation workers (1-10)
	MaxRetries       int    `toml:"max_retries"`       // Retry budget per task for transient model failures (default 2)
	ValidationRounds int    `toml:"validation_rounds"` // Independent validation rounds per task set (default 5)
	OutputDir        string `toml:"output_dir"`        // Base directory for session output (default "output")
	SeedTaskDir      string `toml:"seed_task_dir"`     // Optional seed task directory used when none was uploaded
}

// ModelConfig represents configuration for a single model endpoint
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // Per-call timeout (default 120)
	MaxRetries         int     `toml:"max_retries"`          // HTTP-level retry attempts (default 3)
	UseJSONMode        bool    `toml:"use_json_mode"`        // Request structured JSON output
	Enabled            bool    `toml:"enabled"`              // Only used for the rater model
}

// PromptTemplates holds all customizable prompt templates
type PromptTemplates struct {
	TaskSystemPrompt string `toml:"task_system_prompt"`
	TaskGeneration   string `toml:"task_generation"`
	RatingRubric     string `toml:"rating_rubric"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr   string   `toml:"listen_addr"`   // Default ":8000"
	AllowOrigins []string `toml:"allow_origins"` // CORS origins for the web front end
	UploadDir    string   `toml:"upload_dir"`    // Where uploaded seed archives are extracted
}

// SandboxConfig holds oracle-executor settings
type SandboxConfig struct {
	Command        string `toml:"command"`         // Test command run inside an expanded task dir (default "bash run-tests.sh")
	TimeoutSeconds int    `toml:"timeout_seconds"` // Per-round execution timeout (default 600)
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys map[string]string
}

const (
	// MaxNumTasks is the maximum tasks per run
	MaxNumTasks = 100
	// MaxParallelism is the maximum concurrent generation workers
	MaxParallelism = 10
	// MaxValidationRounds bounds a validation sweep
	MaxValidationRounds = 50
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Generation.NumTasks < 1 {
		return fmt.Errorf("generation.num_tasks must be at least 1")
	}
	if c.Generation.NumTasks > MaxNumTasks {
		return fmt.Errorf("generation.num_tasks must not exceed %d (got %d)", MaxNumTasks, c.Generation.NumTasks)
	}
	if c.Generation.Parallelism < 1 {
		return fmt.Errorf("generation.parallelism must be at least 1")
	}
	if c.Generation.Parallelism > MaxParallelism {
		return fmt.Errorf("generation.parallelism must not exceed %d (got %d)", MaxParallelism, c.Generation.Parallelism)
	}
	if c.Generation.MaxRetries < 0 || c.Generation.MaxRetries > 10 {
		return fmt.Errorf("generation.max_retries must be between 0 and 10 (got %d)", c.Generation.MaxRetries)
	}
	if c.Generation.ValidationRounds < 1 {
		return fmt.Errorf("generation.validation_rounds must be at least 1")
	}
	if c.Generation.ValidationRounds > MaxValidationRounds {
		return fmt.Errorf("generation.validation_rounds must not exceed %d (got %d)", MaxValidationRounds, c.Generation.ValidationRounds)
	}

	// Validate generator model exists
	generatorModel, ok := c.Models["generator"]
	if !ok {
		return fmt.Errorf("models.generator is required")
	}
	if err := validateModelConfig("generator", generatorModel); err != nil {
		return err
	}

	// Validate rater model if enabled
	raterModel, raterExists := c.Models["rater"]
	if raterExists && raterModel.Enabled {
		if err := validateModelConfig("rater", raterModel); err != nil {
			return err
		}
		if c.PromptTemplates.RatingRubric == "" {
			return fmt.Errorf("prompt_templates.rating_rubric is required when rater is enabled")
		}
	}

	if c.PromptTemplates.TaskGeneration == "" {
		return fmt.Errorf("prompt_templates.task_generation is required")
	}

	if c.Sandbox.TimeoutSeconds < 1 {
		return fmt.Errorf("sandbox.timeout_seconds must be at least 1")
	}

	return nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Generic API key works for any OpenAI-compatible provider
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}

	// Provider-specific keys override the generic one
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		secrets.APIKeys["anthropic"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	if strings.Contains(baseURL, "openai.com") {
		if key := s.APIKeys["openai"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "anthropic.com") {
		if key := s.APIKeys["anthropic"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "together.xyz") || strings.Contains(baseURL, "together.ai") {
		if key := s.APIKeys["together"]; key != "" {
			return key
		}
	}

	// Fall back to generic API_KEY; empty means a local server without auth
	return s.APIKeys["generic"]
}
