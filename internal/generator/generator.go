// Package generator produces complete benchmark task artifacts from a seed
// task and a user scenario, one model call per task slot.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xdotli/agentic-rl/internal/api"
	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/seeds"
	"github.com/xdotli/agentic-rl/internal/util"
	"github.com/xdotli/agentic-rl/pkg/models"
)

// Job identifies one task slot within a run.
type Job struct {
	Slot     int // 1-based task number
	Scenario string
	Model    string // overrides the configured generator model name when set
}

// Generator produces one task artifact per job. Implementations must be safe
// for concurrent use; the orchestrator calls GenerateTask from multiple
// workers at once.
type Generator interface {
	GenerateTask(ctx context.Context, job Job) (*models.TaskArtifact, error)
}

// defaultRetryDelay is the backoff unit between task-level retry attempts.
// HTTP-level retries inside the API client have their own schedule.
const defaultRetryDelay = 1 * time.Second

// LLMGenerator generates tasks by prompting an OpenAI-compatible model with
// a seed task bundle and extracting a structured JSON artifact from the
// response.
type LLMGenerator struct {
	cfg     *config.Config
	secrets *config.Secrets
	client  *api.Client
	seeds   *seeds.Store
	logger  *slog.Logger

	retryDelay time.Duration

	mu     sync.Mutex
	bundle *seeds.Bundle
}

// NewLLMGenerator creates a generator backed by the configured generator
// model endpoint.
func NewLLMGenerator(
	cfg *config.Config,
	secrets *config.Secrets,
	client *api.Client,
	seedStore *seeds.Store,
	logger *slog.Logger,
) *LLMGenerator {
	return &LLMGenerator{
		cfg:        cfg,
		secrets:    secrets,
		client:     client,
		seeds:      seedStore,
		logger:     logger.With("component", "generator"),
		retryDelay: defaultRetryDelay,
	}
}

// Ready loads and caches the seed bundle. A run that cannot resolve a seed
// must fail before any job is dispatched, not per worker.
func (g *LLMGenerator) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bundle, err := g.seeds.Load()
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.bundle = bundle
	g.mu.Unlock()
	return nil
}

// GenerateTask produces a single task artifact. Transient model failures are
// retried up to the configured budget with exponential backoff; schema
// failures are terminal for the job.
func (g *LLMGenerator) GenerateTask(ctx context.Context, job Job) (*models.TaskArtifact, error) {
	bundle, err := g.seedBundle()
	if err != nil {
		return nil, &ModelError{Model: "generator", Err: err}
	}

	modelCfg, ok := g.cfg.Models["generator"]
	if !ok {
		return nil, &ModelError{Model: "generator", Err: fmt.Errorf("generator model is not configured")}
	}
	if job.Model != "" {
		modelCfg.ModelName = job.Model
	}

	prompt, err := g.buildPrompt(bundle, job)
	if err != nil {
		return nil, &ModelError{Model: modelCfg.ModelName, Err: err}
	}

	messages := []api.Message{
		{Role: "system", Content: g.systemPrompt()},
		{Role: "user", Content: prompt},
	}
	apiKey := g.secrets.GetAPIKey(modelCfg.BaseURL)

	maxRetries := g.cfg.Generation.MaxRetries
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * g.retryDelay
			g.logger.Warn("Retrying task generation",
				"slot", job.Slot,
				"attempt", attempt,
				"max_retries", maxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := g.client.ChatCompletionStructured(ctx, modelCfg, apiKey, messages)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Auth and request errors will not improve with retries.
			var apiErr *api.APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable {
				return nil, &ModelError{Model: modelCfg.ModelName, Err: err}
			}
			lastErr = err
			continue
		}

		artifact, err := parseArtifact(resp.Choices[0].Message.Content)
		if err != nil {
			// Malformed output is not retried: report it for this slot.
			g.logger.Warn("Generated task failed validation",
				"slot", job.Slot,
				"error", err)
			return nil, err
		}

		g.logger.Info("Task generated",
			"slot", job.Slot,
			"task_name", artifact.Name,
			"difficulty", artifact.Metadata.Difficulty)
		return artifact, nil
	}

	return nil, &ModelError{Model: modelCfg.ModelName, Err: lastErr}
}

func (g *LLMGenerator) seedBundle() (*seeds.Bundle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bundle != nil {
		return g.bundle, nil
	}
	bundle, err := g.seeds.Load()
	if err != nil {
		return nil, err
	}
	g.bundle = bundle
	return bundle, nil
}

func (g *LLMGenerator) systemPrompt() string {
	if g.cfg.PromptTemplates.TaskSystemPrompt != "" {
		return g.cfg.PromptTemplates.TaskSystemPrompt
	}
	return config.DefaultTaskSystemPrompt()
}

func (g *LLMGenerator) buildPrompt(bundle *seeds.Bundle, job Job) (string, error) {
	return util.RenderTemplate(g.cfg.PromptTemplates.TaskGeneration, map[string]interface{}{
		"SeedTaskYAML":   bundle.TaskYAML,
		"SeedDockerfile": bundle.Dockerfile,
		"SeedSolution":   bundle.Solution,
		"SeedTest":       bundle.TestFile,
		"Scenario":       job.Scenario,
		"TaskNum":        job.Slot,
	})
}

// generatedPayload mirrors the JSON shape the generation prompt demands.
type generatedPayload struct {
	TaskName       string              `json:"task_name"`
	TaskYAML       models.TaskMetadata `json:"task_yaml"`
	Dockerfile     string              `json:"dockerfile"`
	DockerCompose  string              `json:"docker_compose"`
	SolutionScript string              `json:"solution_script"`
	RunTestsScript string              `json:"run_tests_script"`
	TestFile       string              `json:"test_file_content"`
}

// parseArtifact extracts, sanitizes, and validates a task artifact from raw
// model output.
func parseArtifact(content string) (*models.TaskArtifact, error) {
	raw := util.ExtractJSON(content)
	if raw == "" {
		return nil, &SchemaError{Reason: "no JSON object found in model output"}
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		sanitized := util.SanitizeJSON(raw)
		if err2 := json.Unmarshal([]byte(sanitized), &payload); err2 != nil {
			return nil, &SchemaError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
		}
	}

	if err := validatePayload(&payload); err != nil {
		return nil, err
	}

	return &models.TaskArtifact{
		ID:             uuid.New().String(),
		Name:           payload.TaskName,
		Metadata:       payload.TaskYAML,
		Dockerfile:     payload.Dockerfile,
		DockerCompose:  payload.DockerCompose,
		SolutionScript: payload.SolutionScript,
		RunTestsScript: payload.RunTestsScript,
		TestFile:       payload.TestFile,
	}, nil
}

func validatePayload(p *generatedPayload) error {
	if strings.TrimSpace(p.TaskName) == "" {
		return &SchemaError{Reason: "task_name is empty"}
	}
	if strings.TrimSpace(p.TaskYAML.Instruction) == "" {
		return &SchemaError{Reason: "task_yaml.instruction is empty"}
	}
	if !p.TaskYAML.Difficulty.Valid() {
		return &SchemaError{Reason: fmt.Sprintf("task_yaml.difficulty %q is not one of easy/medium/hard", p.TaskYAML.Difficulty)}
	}
	if strings.TrimSpace(p.TaskYAML.Category) == "" {
		return &SchemaError{Reason: "task_yaml.category is empty"}
	}
	for field, value := range map[string]string{
		"dockerfile":        p.Dockerfile,
		"solution_script":   p.SolutionScript,
		"run_tests_script":  p.RunTestsScript,
		"test_file_content": p.TestFile,
	} {
		if strings.TrimSpace(value) == "" {
			return &SchemaError{Reason: field + " is empty"}
		}
	}
	return nil
}
