package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xdotli/agentic-rl/internal/generator"
	"github.com/xdotli/agentic-rl/internal/orchestrator"
	"github.com/xdotli/agentic-rl/internal/runstate"
	"github.com/xdotli/agentic-rl/internal/writer"
	"github.com/xdotli/agentic-rl/pkg/models"
)

func newGenerateCmd() *cobra.Command {
	var (
		scenario       string
		numTasks       int
		parallelism    int
		model          string
		seedDir        string
		validateRounds int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of benchmark tasks",
		Long: `Generate a batch of benchmark tasks from the configured (or given) seed
task and scenario. Tasks are generated in parallel and written to the
session directory as they complete; optionally the finished task set is
validated for a number of rounds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if seedDir != "" {
				a.seeds.SetActive(seedDir)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := models.GenerationRequest{
				Scenario:    scenario,
				NumTasks:    numTasks,
				Parallelism: parallelism,
				Model:       model,
			}
			stats, err := runGeneration(ctx, a, req)
			if err != nil {
				return err
			}

			a.logger.Info("Generation complete",
				"total", stats.TotalTasks,
				"succeeded", stats.SuccessCount,
				"failed", stats.FailureCount,
				"duration", stats.EndTime.Sub(stats.StartTime),
				"session_dir", a.session.SessionDir())

			if validateRounds > 0 {
				return runValidation(ctx, a, a.session.ArtifactsPath(), validateRounds)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "", "Scenario text (defaults to generation.scenario from config)")
	cmd.Flags().IntVar(&numTasks, "num-tasks", 0, "Number of tasks to generate (defaults to config)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent generation workers (defaults to config)")
	cmd.Flags().StringVar(&model, "model", "", "Override the generator model name")
	cmd.Flags().StringVar(&seedDir, "seed-dir", "", "Seed task directory (defaults to generation.seed_task_dir)")
	cmd.Flags().IntVar(&validateRounds, "validate", 0, "Run this many validation rounds after generation")
	return cmd
}

// runGeneration starts a run, drains its event stream into the session
// output, and returns the final stats.
func runGeneration(ctx context.Context, a *app, req models.GenerationRequest) (models.RunStats, error) {
	store := runstate.NewStore()
	gen := generator.NewLLMGenerator(a.cfg, a.secrets, a.client, a.seeds, a.logger)
	orch := orchestrator.New(a.cfg, gen, store, a.logger)

	artifactWriter, err := writer.NewArtifactWriter(a.session.ArtifactsPath(), a.logger)
	if err != nil {
		return models.RunStats{}, err
	}
	defer func() {
		if err := artifactWriter.Close(); err != nil {
			a.logger.Error("Failed to close artifact writer", "error", err)
		}
	}()

	handle, err := orch.StartRun(ctx, req)
	if err != nil {
		return models.RunStats{}, err
	}

	var bar *progressbar.ProgressBar
	for ev := range handle.Events() {
		switch ev.Type {
		case models.EventStart:
			bar = progressbar.Default(int64(ev.Total), "Generating tasks")
		case models.EventProgress:
			if bar != nil {
				_ = bar.Set(ev.Current)
			}
		case models.EventSuccess:
			if ev.Task != nil {
				if err := artifactWriter.Write(ev.Task); err != nil {
					a.logger.Error("Failed to persist artifact", "task_name", ev.Task.Name, "error", err)
				}
				if _, err := writer.ExpandArtifact(a.session.TasksDir(), ev.Task); err != nil {
					a.logger.Error("Failed to expand task directory", "task_name", ev.Task.Name, "error", err)
				}
			}
		case models.EventError:
			a.logger.Warn(ev.Message)
		}
	}

	stats, err := handle.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return stats, fmt.Errorf("generation interrupted: %w", err)
		}
		return stats, fmt.Errorf("generation failed: %w", err)
	}
	if stats.SuccessCount == 0 {
		return stats, fmt.Errorf("generation produced no tasks (%d failed)", stats.FailureCount)
	}
	return stats, nil
}
