package config

import (
	"fmt"
	"net/url"
	"unicode"
)

const (
	// MaxScenarioLength is the maximum allowed length for a scenario
	MaxScenarioLength = 4000

	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxTemplateSize is the maximum allowed size for template content
	MaxTemplateSize = 50 * 1024 // 50KB
)

// ValidateInputs performs additional security validation on user-controllable
// fields, rejecting oversized or control-character-laden values before they
// reach prompt templates.
func (c *Config) ValidateInputs() error {
	if err := ValidateScenario(c.Generation.Scenario); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	for name, mc := range c.Models {
		if err := validateModelName(mc.ModelName, name); err != nil {
			return err
		}
		if err := validateBaseURL(mc.BaseURL, name); err != nil {
			return err
		}
	}

	return c.validateTemplateSizes()
}

// ValidateScenario checks a scenario string for size and control characters.
// An empty scenario is allowed here; request-level validation decides whether
// one is required.
func ValidateScenario(scenario string) error {
	if len(scenario) > MaxScenarioLength {
		return fmt.Errorf("exceeds maximum length of %d characters (got %d)",
			MaxScenarioLength, len(scenario))
	}
	if containsControlChars(scenario) {
		return fmt.Errorf("contains invalid control characters")
	}
	return nil
}

func validateModelName(modelName, configKey string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("model '%s' name exceeds maximum length of %d (got %d)",
			configKey, MaxModelNameLength, len(modelName))
	}
	if containsControlChars(modelName) {
		return fmt.Errorf("model '%s' name contains invalid control characters", configKey)
	}
	return nil
}

func validateBaseURL(baseURL, configKey string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("model '%s' has invalid base_url: %w", configKey, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("model '%s' base_url must use http or https scheme (got %s)",
			configKey, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("model '%s' base_url must have a host", configKey)
	}
	return nil
}

func (c *Config) validateTemplateSizes() error {
	templates := []struct {
		name  string
		value string
	}{
		{"task_system_prompt", c.PromptTemplates.TaskSystemPrompt},
		{"task_generation", c.PromptTemplates.TaskGeneration},
		{"rating_rubric", c.PromptTemplates.RatingRubric},
	}

	for _, tmpl := range templates {
		if len(tmpl.value) > MaxTemplateSize {
			return fmt.Errorf("template '%s' exceeds maximum size of %d bytes (got %d)",
				tmpl.name, MaxTemplateSize, len(tmpl.value))
		}
	}

	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
