package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xdotli/agentic-rl/internal/api"
	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/util"
	"github.com/xdotli/agentic-rl/pkg/models"
)

const (
	minQuality = 1.0
	maxQuality = 5.0

	// instruction excerpt length in the rating prompt
	summaryInstructionLen = 400
)

// LLMRater rates a validated task set by prompting the configured rater
// model with a summary of the tasks.
type LLMRater struct {
	cfg     *config.Config
	secrets *config.Secrets
	client  *api.Client
	logger  *slog.Logger
}

// NewLLMRater creates a rater backed by the "rater" model endpoint. It
// fails if the rater model is missing or disabled.
func NewLLMRater(cfg *config.Config, secrets *config.Secrets, client *api.Client, logger *slog.Logger) (*LLMRater, error) {
	raterCfg, ok := cfg.Models["rater"]
	if !ok || !raterCfg.Enabled {
		return nil, fmt.Errorf("rater model must be configured and enabled for validation")
	}
	return &LLMRater{
		cfg:     cfg,
		secrets: secrets,
		client:  client,
		logger:  logger.With("component", "rater"),
	}, nil
}

// Rate asks the rater model for a quality score and a difficulty label over
// the whole task set.
func (r *LLMRater) Rate(ctx context.Context, artifacts []models.TaskArtifact) (*Rating, error) {
	raterCfg := r.cfg.Models["rater"]

	rubric := r.cfg.PromptTemplates.RatingRubric
	if rubric == "" {
		rubric = config.DefaultRatingTemplate()
	}
	prompt, err := util.RenderTemplate(rubric, map[string]interface{}{
		"TaskSummary": summarizeTasks(artifacts),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render rating rubric: %w", err)
	}

	messages := []api.Message{
		{Role: "user", Content: prompt},
	}
	resp, err := r.client.ChatCompletionStructured(ctx, raterCfg, r.secrets.GetAPIKey(raterCfg.BaseURL), messages)
	if err != nil {
		return nil, fmt.Errorf("rater model call failed: %w", err)
	}

	rating, err := parseRating(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Task set rated",
		"quality", rating.Quality,
		"difficulty", rating.Difficulty)
	return rating, nil
}

func parseRating(content string) (*Rating, error) {
	raw := util.ExtractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object found in rater output")
	}

	var rating Rating
	if err := json.Unmarshal([]byte(raw), &rating); err != nil {
		sanitized := util.SanitizeJSON(raw)
		if err2 := json.Unmarshal([]byte(sanitized), &rating); err2 != nil {
			return nil, fmt.Errorf("invalid rater output: %w", err)
		}
	}

	if rating.Quality < minQuality || rating.Quality > maxQuality {
		return nil, fmt.Errorf("rater quality %.2f outside range [%.1f, %.1f]", rating.Quality, minQuality, maxQuality)
	}
	if !rating.Difficulty.Valid() {
		return nil, fmt.Errorf("rater difficulty %q is not one of easy/medium/hard", rating.Difficulty)
	}
	return &rating, nil
}

// summarizeTasks renders a compact plain-text view of the task set for the
// rating prompt. Full file contents stay out of the prompt to keep it small.
func summarizeTasks(artifacts []models.TaskArtifact) string {
	var b strings.Builder
	for i, a := range artifacts {
		fmt.Fprintf(&b, "Task %d: %s\n", i+1, a.Name)
		fmt.Fprintf(&b, "  difficulty: %s, category: %s, tags: %s\n",
			a.Metadata.Difficulty, a.Metadata.Category, strings.Join(a.Metadata.Tags, ", "))
		fmt.Fprintf(&b, "  instruction: %s\n",
			util.TruncateString(strings.ReplaceAll(a.Metadata.Instruction, "\n", " "), summaryInstructionLen))
	}
	return b.String()
}
