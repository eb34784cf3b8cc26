// Package validator runs repeated oracle sweeps over a generated task set:
// every round re-executes all task test suites, and rounds that pass are
// rated for quality and difficulty.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xdotli/agentic-rl/internal/metrics"
	"github.com/xdotli/agentic-rl/pkg/models"
)

// Executor runs the full task set once and reports the first failure.
type Executor interface {
	Execute(ctx context.Context, artifacts []models.TaskArtifact) error
}

// Rater judges a task set that passed execution.
type Rater interface {
	Rate(ctx context.Context, artifacts []models.TaskArtifact) (*Rating, error)
}

// Rating is one judgment over an entire task set.
type Rating struct {
	Quality    float64           `json:"quality"`
	Difficulty models.Difficulty `json:"difficulty"`
}

// Engine runs validation rounds strictly in sequence. Rounds are
// independent: a failure in one round never stops the following rounds.
type Engine struct {
	executor Executor
	rater    Rater
	logger   *slog.Logger
}

// NewEngine creates a validation engine. Both the executor and the rater are
// required; a passed round always carries both ratings.
func NewEngine(executor Executor, rater Rater, logger *slog.Logger) (*Engine, error) {
	if executor == nil {
		return nil, fmt.Errorf("validator: executor is required")
	}
	if rater == nil {
		return nil, fmt.Errorf("validator: rater is required")
	}
	return &Engine{
		executor: executor,
		rater:    rater,
		logger:   logger.With("component", "validator"),
	}, nil
}

// RunValidation performs the requested number of rounds over the task set.
// Every returned round is terminal: passed with ratings, or failed with an
// error detail. Cancellation fails the remaining rounds without running
// them.
func (e *Engine) RunValidation(ctx context.Context, artifacts []models.TaskArtifact, rounds int) []models.ValidationRound {
	results := make([]models.ValidationRound, rounds)
	for i := range results {
		results[i] = models.ValidationRound{Round: i + 1, Status: models.RoundPending}
	}

	if len(artifacts) == 0 {
		for i := range results {
			results[i].Status = models.RoundFailed
			results[i].ErrorDetail = "no task artifacts to validate"
		}
		return results
	}

	e.logger.Info("Starting validation",
		"rounds", rounds,
		"tasks", len(artifacts))

	for i := range results {
		r := &results[i]
		if err := ctx.Err(); err != nil {
			r.Status = models.RoundFailed
			r.ErrorDetail = fmt.Sprintf("validation cancelled: %v", err)
			continue
		}

		r.Status = models.RoundRunning
		start := time.Now()
		e.runRound(ctx, artifacts, r)
		r.Duration = time.Since(start)
		metrics.RecordValidationRound(r.Status == models.RoundPassed, r.Duration)

		if r.Status == models.RoundPassed {
			e.logger.Info("Validation round passed",
				"round", r.Round,
				"quality", *r.Quality,
				"difficulty", *r.Difficulty,
				"duration", r.Duration)
		} else {
			e.logger.Warn("Validation round failed",
				"round", r.Round,
				"error", r.ErrorDetail,
				"duration", r.Duration)
		}
	}

	passed, failed := models.CountRounds(results)
	e.logger.Info("Validation finished", "passed", passed, "failed", failed)
	return results
}

func (e *Engine) runRound(ctx context.Context, artifacts []models.TaskArtifact, r *models.ValidationRound) {
	if err := e.executor.Execute(ctx, artifacts); err != nil {
		r.Status = models.RoundFailed
		r.ErrorDetail = err.Error()
		return
	}

	// A round without ratings is not a passed round: rater failures fail
	// the round even though execution succeeded.
	rating, err := e.rater.Rate(ctx, artifacts)
	if err != nil {
		r.Status = models.RoundFailed
		r.ErrorDetail = fmt.Sprintf("execution passed but rating failed: %v", err)
		return
	}

	r.Status = models.RoundPassed
	r.Quality = &rating.Quality
	difficulty := rating.Difficulty
	r.Difficulty = &difficulty
}
