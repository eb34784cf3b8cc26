package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdotli/agentic-rl/internal/sandbox"
	"github.com/xdotli/agentic-rl/internal/validator"
	"github.com/xdotli/agentic-rl/internal/writer"
	"github.com/xdotli/agentic-rl/pkg/models"
)

func newValidateCmd() *cobra.Command {
	var rounds int

	cmd := &cobra.Command{
		Use:   "validate <artifacts.jsonl>",
		Short: "Validate a generated task set",
		Long: `Validate a generated task set by repeatedly expanding every task and
running its test suite against the reference solution. Rounds that pass
are rated for quality and difficulty by the rater model.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if rounds <= 0 {
				rounds = a.cfg.Generation.ValidationRounds
			}
			return runValidation(ctx, a, args[0], rounds)
		},
	}

	cmd.Flags().IntVar(&rounds, "rounds", 0, "Number of validation rounds (defaults to config)")
	return cmd
}

// runValidation validates the artifacts in the given JSONL file and writes
// the report next to the session output. At least one round must pass for
// the command to succeed.
func runValidation(ctx context.Context, a *app, artifactsPath string, rounds int) error {
	artifacts, err := writer.ReadArtifacts(artifactsPath)
	if err != nil {
		return &configError{err: err}
	}
	if len(artifacts) == 0 {
		return &configError{err: fmt.Errorf("no artifacts found in %s", artifactsPath)}
	}

	rater, err := validator.NewLLMRater(a.cfg, a.secrets, a.client, a.logger)
	if err != nil {
		return &configError{err: err}
	}
	executor := sandbox.NewCommandExecutor(a.cfg.Sandbox, a.logger)
	engine, err := validator.NewEngine(executor, rater, a.logger)
	if err != nil {
		return &configError{err: err}
	}

	results := engine.RunValidation(ctx, artifacts, rounds)
	passed, failed := models.CountRounds(results)

	reportPath := a.session.ValidationPath()
	if err := writer.WriteValidationReport(reportPath, results); err != nil {
		return err
	}

	fmt.Printf("Validation: %d/%d rounds passed (report: %s)\n", passed, rounds, reportPath)
	for _, r := range results {
		if r.Status == models.RoundPassed {
			fmt.Printf("  round %d: passed  quality=%.1f difficulty=%s (%s)\n",
				r.Round, *r.Quality, *r.Difficulty, r.Duration.Round(time.Millisecond))
		} else {
			fmt.Printf("  round %d: failed  %s\n", r.Round, r.ErrorDetail)
		}
	}

	if ctx.Err() != nil {
		return fmt.Errorf("validation interrupted: %w", ctx.Err())
	}
	if passed == 0 {
		return fmt.Errorf("all %d validation rounds failed", failed)
	}
	return nil
}
