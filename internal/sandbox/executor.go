// Package sandbox runs generated tasks' test suites in a local working
// directory, one expanded task at a time.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/util"
	"github.com/xdotli/agentic-rl/internal/writer"
	"github.com/xdotli/agentic-rl/pkg/models"
)

const maxCapturedOutput = 4000

// CommandExecutor expands each task artifact into a temporary directory and
// runs the configured test command inside it. The whole sweep fails on the
// first task whose command exits non-zero.
type CommandExecutor struct {
	cfg    config.SandboxConfig
	logger *slog.Logger
}

// NewCommandExecutor creates an executor using the sandbox configuration.
func NewCommandExecutor(cfg config.SandboxConfig, logger *slog.Logger) *CommandExecutor {
	return &CommandExecutor{
		cfg:    cfg,
		logger: logger.With("component", "sandbox"),
	}
}

// Execute runs every artifact's tests sequentially. The per-task timeout
// comes from the sandbox config, not from the artifact's own metadata; a
// generated task cannot grant itself more time.
func (e *CommandExecutor) Execute(ctx context.Context, artifacts []models.TaskArtifact) error {
	workDir, err := os.MkdirTemp("", "agentrl-sandbox-*")
	if err != nil {
		return fmt.Errorf("failed to create sandbox directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	for i := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.runTask(ctx, workDir, &artifacts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *CommandExecutor) runTask(ctx context.Context, workDir string, artifact *models.TaskArtifact) error {
	taskDir, err := writer.ExpandArtifact(workDir, artifact)
	if err != nil {
		return fmt.Errorf("failed to expand task %s: %w", artifact.Name, err)
	}

	parts := strings.Fields(e.cfg.Command)
	if len(parts) == 0 {
		return fmt.Errorf("sandbox command is empty")
	}

	timeout := time.Duration(e.cfg.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, parts[0], parts[1:]...)
	cmd.Dir = taskDir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	e.logger.Debug("Running task tests", "task_name", artifact.Name, "command", e.cfg.Command)
	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("task %s timed out after %s", artifact.Name, timeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("task %s tests failed: %v: %s",
			artifact.Name, err, util.TruncateString(output.String(), maxCapturedOutput))
	}

	e.logger.Info("Task tests passed", "task_name", artifact.Name, "duration", duration)
	return nil
}
